package kpi

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
)

// Aggregator computes and writes one channel's KPI records for a window.
// A returned error means the whole channel failed for that window.
type Aggregator interface {
	Channel() domain.Channel
	Aggregate(ctx context.Context, w domain.Window) (ChannelResult, error)
}

// ChannelResult tallies one aggregator invocation.
type ChannelResult struct {
	Channel domain.Channel `json:"channel"`
	Keys    int            `json:"keys"`
	Written int            `json:"records_written"`
	Skipped int            `json:"keys_skipped"`
	Error   string         `json:"error,omitempty"`
}

// keyJob builds the records of one grouping key.
type keyJob struct {
	key   string
	build func(ctx context.Context) ([]domain.KpiRecord, error)
}

// keyWriter runs key jobs with bounded concurrency. One key failing never
// cancels another.
type keyWriter struct {
	repo        Repository
	concurrency int
}

func (kw keyWriter) write(ctx context.Context, channel domain.Channel, jobs []keyJob) ChannelResult {
	errs := make([]error, len(jobs))
	written := make([]int, len(jobs))

	var g errgroup.Group
	if kw.concurrency > 0 {
		g.SetLimit(kw.concurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			records, err := job.build(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("resolve: %w", err)
				return nil
			}
			if err := kw.repo.Save(ctx, records); err != nil {
				errs[i] = fmt.Errorf("save: %w", err)
				return nil
			}
			written[i] = len(records)
			return nil
		})
	}
	_ = g.Wait()

	res := ChannelResult{Channel: channel, Keys: len(jobs)}
	for i, err := range errs {
		if err != nil {
			logger.Error("kpi key skipped", "channel", channel, "key", jobs[i].key, "error", err)
			res.Skipped++
			continue
		}
		res.Written += written[i]
	}
	return res
}

// record stamps campaign identity onto a taxonomy record.
func record(code domain.KpiCode, value float64, w domain.Window, campaignID, campaignSubID string) domain.KpiRecord {
	r := domain.NewKpiRecord(code, value, w)
	r.CampaignID = campaignID
	r.CampaignSubID = campaignSubID
	return r
}

// countBy counts items per key.
func countBy[T any, K comparable](items []T, key func(T) K) map[K]int {
	counts := make(map[K]int)
	for _, it := range items {
		counts[key(it)]++
	}
	return counts
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
