// Package telemetry exposes pipeline counters to Prometheus. Skipped windows
// and keys never fail a run, so these counters are where they show up.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kpi"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	windows        *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	keysSkipped    *prometheus.CounterVec
	channelRuns    *prometheus.CounterVec
	metricsUpserts *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Date windows processed, by outcome",
		}, []string{"status"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "KPI records persisted, by channel",
		}, []string{"channel"}),
		keysSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_skipped_total",
			Help:      "Campaign or send keys skipped after a resolution or write failure",
		}, []string{"channel"}),
		channelRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_runs_total",
			Help:      "Channel aggregator invocations, by channel and outcome",
		}, []string{"channel", "status"}),
		metricsUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_upserts_total",
			Help:      "Provider summary upserts, by outcome",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}, []string{"mode"}),
	}
	reg.MustRegister(m.windows, m.recordsWritten, m.keysSkipped, m.channelRuns, m.metricsUpserts, m.runDuration)
	return m
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (m *Metrics) WindowDone(ok bool) {
	if m == nil {
		return
	}
	m.windows.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) RecordsWritten(channel string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsWritten.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) KeysSkipped(channel string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysSkipped.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) ChannelRun(channel string, ok bool) {
	if m == nil {
		return
	}
	m.channelRuns.WithLabelValues(channel, status(ok)).Inc()
}

func (m *Metrics) MetricsUpsert(ok bool) {
	if m == nil {
		return
	}
	m.metricsUpserts.WithLabelValues(status(ok)).Inc()
}

// ObserveRun records how long a run in the given mode took.
func (m *Metrics) ObserveRun(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(mode).Observe(d.Seconds())
}
