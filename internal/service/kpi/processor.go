package kpi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/kpi-processor/internal/batch"
	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/telemetry"
	"github.com/ignite/kpi-processor/internal/utm"
)

// MetricsCalculator is the roll-up the pipeline triggers after windows.
type MetricsCalculator interface {
	CalculateGeneral(ctx context.Context) (int, error)
	CalculateForProvider(ctx context.Context, providerID string) (*domain.MetricsSummary, error)
	CalculateForPeriod(ctx context.Context, from, to time.Time) (int, error)
}

// Config tunes the pipeline.
type Config struct {
	BatchSizeDays            int
	BatchDelay               time.Duration
	MaxConcurrentAggregators int
	KeyConcurrency           int
	LookbackDays             int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSizeDays:            3,
		BatchDelay:               batch.DefaultDelay,
		MaxConcurrentAggregators: len(domain.OwnedChannels),
		KeyConcurrency:           8,
		LookbackDays:             7,
	}
}

// Processor drives KPI pipeline runs.
type Processor struct {
	cfg         Config
	aggregators map[domain.Channel]Aggregator
	metrics     MetricsCalculator
	tel         *telemetry.Metrics
	archive     ReportArchive
	now         func() time.Time
}

// NewProcessor builds a processor with the six owned-medium aggregators.
func NewProcessor(events EventReader, repo Repository, parser *utm.Parser, calc MetricsCalculator, cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.BatchSizeDays <= 0 {
		cfg.BatchSizeDays = def.BatchSizeDays
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.MaxConcurrentAggregators <= 0 {
		cfg.MaxConcurrentAggregators = def.MaxConcurrentAggregators
	}
	if cfg.KeyConcurrency <= 0 {
		cfg.KeyConcurrency = def.KeyConcurrency
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if parser == nil {
		parser = utm.New(nil)
	}
	if calc == nil {
		calc = noMetrics{}
	}

	p := &Processor{
		cfg:         cfg,
		aggregators: make(map[domain.Channel]Aggregator),
		metrics:     calc,
		now:         time.Now,
	}
	for _, a := range []Aggregator{
		NewMailingParent(events, repo, parser, cfg.KeyConcurrency),
		NewMailingHeader(events, repo, parser, cfg.KeyConcurrency),
		NewMailingFeed(events, repo, parser, cfg.KeyConcurrency),
		NewMailingBody(events, repo, parser, cfg.KeyConcurrency),
		NewPushApp(events, repo, cfg.KeyConcurrency),
		NewPushWeb(events, repo, cfg.KeyConcurrency),
	} {
		p.SetAggregator(a)
	}
	return p
}

// SetAggregator replaces the aggregator for a.Channel().
func (p *Processor) SetAggregator(a Aggregator) { p.aggregators[a.Channel()] = a }

// SetTelemetry attaches Prometheus counters.
func (p *Processor) SetTelemetry(m *telemetry.Metrics) { p.tel = m }

// SetArchive stores every finished RunReport.
func (p *Processor) SetArchive(a ReportArchive) { p.archive = a }

// SetClock overrides the clock that anchors ProcessAllPending.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Config returns the effective configuration.
func (p *Processor) Config() Config { return p.cfg }

// ProcessKpis runs every owned channel over [start, end], recomputing period
// metrics after each window and general metrics at the end.
func (p *Processor) ProcessKpis(ctx context.Context, start, end time.Time) (*RunReport, error) {
	return p.processAll(ctx, ModeFull, start, end)
}

func (p *Processor) processAll(ctx context.Context, mode string, start, end time.Time) (*RunReport, error) {
	rep := p.newReport(mode, start, end)
	err := p.run(ctx, rep, start, end, domain.OwnedChannels, true, func(ctx context.Context) {
		n, err := p.metrics.CalculateGeneral(ctx)
		if err != nil {
			logger.Error("general metrics failed", "run_id", rep.RunID, "error", err)
			return
		}
		rep.MetricsProviders = n
	})
	return p.finish(ctx, rep, err)
}

// ProcessKpisByProvider runs the same windows as ProcessKpis and finishes
// with a recompute of providerID only.
func (p *Processor) ProcessKpisByProvider(ctx context.Context, providerID string, start, end time.Time) (*RunReport, error) {
	rep := p.newReport(ModeProvider, start, end)
	rep.ProviderID = providerID
	err := p.run(ctx, rep, start, end, domain.OwnedChannels, true, func(ctx context.Context) {
		if providerID == "" {
			logger.Warn("provider metrics skipped: empty provider id", "run_id", rep.RunID)
			return
		}
		if _, err := p.metrics.CalculateForProvider(ctx, providerID); err != nil {
			logger.Error("provider metrics failed", "run_id", rep.RunID, "provider_id", providerID, "error", err)
			return
		}
		rep.MetricsProviders = 1
	})
	return p.finish(ctx, rep, err)
}

// ProcessKpisByMedium runs the channels of one medium, or a single channel,
// without any metrics pass. Unimplemented and unknown names are logged and
// treated as a successful no-op.
func (p *Processor) ProcessKpisByMedium(ctx context.Context, medium string, start, end time.Time) (*RunReport, error) {
	rep := p.newReport(ModeMedium, start, end)
	rep.Medium = medium

	if _, err := batch.Split(start, end, p.cfg.BatchSizeDays); err != nil {
		return p.finish(ctx, rep, err)
	}
	channels, err := ChannelsForMedium(medium)
	if err != nil {
		logger.Warn("medium not processed", "run_id", rep.RunID, "medium", medium, "error", err)
		rep.Note = err.Error()
		return p.finish(ctx, rep, nil)
	}
	err = p.run(ctx, rep, start, end, channels, false, nil)
	return p.finish(ctx, rep, err)
}

// ProcessAllPending runs ProcessKpis over the lookback period ending today.
func (p *Processor) ProcessAllPending(ctx context.Context) (*RunReport, error) {
	end := domain.Day(p.now().UTC())
	start := end.AddDate(0, 0, -p.cfg.LookbackDays)
	logger.Info("processing pending kpis", "start", start.Format(domain.DateLayout), "end", end.Format(domain.DateLayout))
	return p.processAll(ctx, ModePending, start, end)
}

type noMetrics struct{}

func (noMetrics) CalculateGeneral(context.Context) (int, error) { return 0, nil }
func (noMetrics) CalculateForProvider(_ context.Context, id string) (*domain.MetricsSummary, error) {
	return &domain.MetricsSummary{ProviderID: id}, nil
}
func (noMetrics) CalculateForPeriod(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

// ChannelsForMedium resolves a medium or channel name.
func ChannelsForMedium(name string) ([]domain.Channel, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch domain.Medium(n) {
	case domain.MediumOwned:
		return domain.OwnedChannels, nil
	case domain.MediumPaid, domain.MediumOnSite:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, n)
	}
	for _, ch := range domain.OwnedChannels {
		if domain.Channel(n) == ch {
			return []domain.Channel{ch}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

func (p *Processor) newReport(mode string, start, end time.Time) *RunReport {
	rep := &RunReport{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: p.now().UTC(),
	}
	if !start.IsZero() {
		rep.StartDate = start.Format(domain.DateLayout)
	}
	if !end.IsZero() {
		rep.EndDate = end.Format(domain.DateLayout)
	}
	return rep
}

// run validates the range, drives the windows and calls after once all
// windows are done. Only an invalid range is returned.
func (p *Processor) run(ctx context.Context, rep *RunReport, start, end time.Time, channels []domain.Channel,
	periodMetrics bool, after func(context.Context)) error {
	windows, err := batch.Split(start, end, p.cfg.BatchSizeDays)
	if err != nil {
		return err
	}

	logger.Info("kpi run started", "run_id", rep.RunID, "mode", rep.Mode,
		"start", rep.StartDate, "end", rep.EndDate, "windows", len(windows), "channels", len(channels))

	driver := batch.NewDriver(p.cfg.BatchDelay, rep.Mode)
	res := driver.Run(ctx, windows, func(ctx context.Context, _ int, w domain.Window) error {
		began := time.Now()
		wr := p.runWindow(ctx, w, channels)
		if periodMetrics && wr.Error == "" {
			n, err := p.metrics.CalculateForPeriod(ctx, w.Start, w.End)
			if err != nil {
				logger.Error("period metrics failed", "run_id", rep.RunID, "window", w.String(), "error", err)
			}
			wr.PeriodMetrics = n
		}
		wr.DurationMillis = time.Since(began).Milliseconds()
		rep.addWindow(wr)

		if wr.Error != "" {
			p.tel.WindowDone(false)
			return fmt.Errorf("window %s: %s", w, wr.Error)
		}
		p.tel.WindowDone(true)
		return nil
	})

	rep.WindowsTotal = res.Total
	rep.WindowsSucceeded = res.Succeeded
	rep.WindowsFailed = res.Failed

	if after != nil && ctx.Err() == nil {
		after(ctx)
	}
	return nil
}

// runWindow runs channels concurrently and waits for all of them. A channel
// failure is logged and recorded; it does not stop the others.
func (p *Processor) runWindow(ctx context.Context, w domain.Window, channels []domain.Channel) WindowReport {
	results := make([]ChannelResult, len(channels))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrentAggregators)
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = p.runChannel(ctx, ch, w)
			return nil
		})
	}
	_ = g.Wait()

	wr := WindowReport{Window: w, Channels: results}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 && failed == len(results) {
		wr.Error = ErrAllChannels.Error()
	}
	return wr
}

func (p *Processor) runChannel(ctx context.Context, ch domain.Channel, w domain.Window) (res ChannelResult) {
	agg, ok := p.aggregators[ch]
	if !ok {
		logger.Warn("no aggregator for channel", "channel", ch)
		return ChannelResult{Channel: ch, Error: ErrUnknownChannel.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			res = ChannelResult{Channel: ch, Error: fmt.Sprintf("panic: %v", r)}
			logger.Error("channel aggregator panicked", "channel", ch, "window", w.String(), "panic", r)
		}
		p.tel.ChannelRun(string(ch), res.Error == "")
		p.tel.RecordsWritten(string(ch), res.Written)
		p.tel.KeysSkipped(string(ch), res.Skipped)
	}()

	res, err := agg.Aggregate(ctx, w)
	res.Channel = ch
	if err != nil {
		res.Error = err.Error()
		logger.Error("channel aggregation failed", "channel", ch, "window", w.String(), "error", err)
		return res
	}
	logger.Info("channel aggregated", "channel", ch, "window", w.String(),
		"keys", res.Keys, "written", res.Written, "skipped", res.Skipped)
	return res
}

func (p *Processor) finish(ctx context.Context, rep *RunReport, err error) (*RunReport, error) {
	if err != nil {
		logger.Error("kpi run rejected", "run_id", rep.RunID, "mode", rep.Mode,
			"start", rep.StartDate, "end", rep.EndDate, "error", err)
		return nil, err
	}
	rep.FinishedAt = p.now().UTC()
	p.tel.ObserveRun(rep.Mode, rep.Duration())

	logger.Info("kpi run finished", "run_id", rep.RunID, "mode", rep.Mode,
		"windows_ok", rep.WindowsSucceeded, "windows_failed", rep.WindowsFailed,
		"records", rep.RecordsWritten, "keys_skipped", rep.KeysSkipped, "duration", rep.Duration().String())

	if p.archive != nil {
		if err := p.archive.Save(ctx, rep); err != nil {
			logger.Error("run report archive failed", "run_id", rep.RunID, "error", err)
		}
	}
	return rep, nil
}
