package kpi

import (
	"context"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
)

// Run modes recorded on a RunReport.
const (
	ModeFull     = "full"
	ModeProvider = "provider"
	ModeMedium   = "medium"
	ModePending  = "pending"
)

// RunReport summarizes one pipeline run. Skipped windows and keys only show
// up here and in logs; they never fail the run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	ProviderID string    `json:"provider_id,omitempty"`
	Medium     string    `json:"medium,omitempty"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	WindowsTotal     int            `json:"windows_total"`
	WindowsSucceeded int            `json:"windows_succeeded"`
	WindowsFailed    int            `json:"windows_failed"`
	Windows          []WindowReport `json:"windows"`

	RecordsWritten   int    `json:"records_written"`
	KeysSkipped      int    `json:"keys_skipped"`
	MetricsProviders int    `json:"metrics_providers"`
	Note             string `json:"note,omitempty"`
}

// WindowReport is the outcome of one window.
type WindowReport struct {
	Window         domain.Window   `json:"window"`
	Channels       []ChannelResult `json:"channels"`
	PeriodMetrics  int             `json:"period_metrics_providers"`
	Error          string          `json:"error,omitempty"`
	DurationMillis int64           `json:"duration_ms"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) addWindow(wr WindowReport) {
	r.Windows = append(r.Windows, wr)
	for _, c := range wr.Channels {
		r.RecordsWritten += c.Written
		r.KeysSkipped += c.Skipped
	}
}

// ReportArchive keeps finished run reports.
type ReportArchive interface {
	Save(ctx context.Context, r *RunReport) error
}
