package kpi_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/kpi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func at(d, hour int) time.Time {
	return time.Date(2025, 1, d, hour, 0, 0, 0, time.UTC)
}

// memEvents is an in-memory EventReader. failOn makes every fetch whose
// range starts on that day fail.
type memEvents struct {
	opens  []domain.OpenEvent
	clicks []domain.ClickEvent
	sents  []domain.SentEvent
	push   []domain.PushRecord
	failOn time.Time
}

var errStoreDown = errors.New("store unreachable")

func (m *memEvents) fail(from time.Time) bool {
	return !m.failOn.IsZero() && from.Equal(m.failOn)
}

func in(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (m *memEvents) FindOpens(_ context.Context, from, to time.Time) ([]domain.OpenEvent, error) {
	if m.fail(from) {
		return nil, errStoreDown
	}
	var out []domain.OpenEvent
	for _, e := range m.opens {
		if in(e.EventDate, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) FindClicks(_ context.Context, from, to time.Time) ([]domain.ClickEvent, error) {
	if m.fail(from) {
		return nil, errStoreDown
	}
	var out []domain.ClickEvent
	for _, e := range m.clicks {
		if in(e.EventDate, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) FindSents(_ context.Context, from, to time.Time) ([]domain.SentEvent, error) {
	if m.fail(from) {
		return nil, errStoreDown
	}
	var out []domain.SentEvent
	for _, e := range m.sents {
		if in(e.EventDate, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) FindPush(_ context.Context, fromDay, toDay string, sel kpi.PushSelector) ([]domain.PushRecord, error) {
	if !m.failOn.IsZero() && fromDay == m.failOn.Format(domain.DateLayout) {
		return nil, errStoreDown
	}
	var out []domain.PushRecord
	for _, r := range m.push {
		if r.ProcessDate >= fromDay && r.ProcessDate <= toDay && sel.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memRepo is an in-memory KPI repository. Saves of a record carrying a
// refused code or campaign fail.
type memRepo struct {
	mu             sync.Mutex
	records        []domain.KpiRecord
	refuseCode     domain.KpiCode
	refuseCampaign string
}

func (m *memRepo) Save(_ context.Context, records []domain.KpiRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if (m.refuseCode != "" && r.KpiID == m.refuseCode) || (m.refuseCampaign != "" && r.CampaignID == m.refuseCampaign) {
			return errors.New("write refused")
		}
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memRepo) byCode(code domain.KpiCode) []domain.KpiRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.KpiRecord
	for _, r := range m.records {
		if r.KpiID == code {
			out = append(out, r)
		}
	}
	return out
}

func (m *memRepo) value(code domain.KpiCode, key string) (float64, bool) {
	for _, r := range m.byCode(code) {
		if r.CampaignID == key || r.CampaignSubID == key {
			return r.Value, true
		}
	}
	return 0, false
}

// stubMetrics records which roll-ups the processor triggered.
type stubMetrics struct {
	mu        sync.Mutex
	general   int
	providers []string
	periods   []domain.Window
}

func (s *stubMetrics) CalculateGeneral(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.general++
	return 1, nil
}

func (s *stubMetrics) CalculateForProvider(_ context.Context, id string) (*domain.MetricsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, id)
	return &domain.MetricsSummary{ProviderID: id}, nil
}

func (s *stubMetrics) CalculateForPeriod(_ context.Context, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, domain.Window{Start: from, End: to})
	return 0, nil
}

// failingAggregator stands in for a channel whose store is down.
type failingAggregator struct {
	channel domain.Channel
	panics  bool
}

func (f failingAggregator) Channel() domain.Channel { return f.channel }

func (f failingAggregator) Aggregate(context.Context, domain.Window) (kpi.ChannelResult, error) {
	if f.panics {
		panic("boom")
	}
	return kpi.ChannelResult{}, errStoreDown
}

type memArchive struct {
	mu      sync.Mutex
	reports []*kpi.RunReport
}

func (a *memArchive) Save(_ context.Context, r *kpi.RunReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return nil
}
