package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/httputil"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/service/kpi"
	"github.com/ignite/kpi-processor/internal/service/metrics"
	"github.com/ignite/kpi-processor/internal/storage"
)

// Pipeline runs KPI processing. *kpi.Processor implements it.
type Pipeline interface {
	ProcessKpis(ctx context.Context, start, end time.Time) (*kpi.RunReport, error)
	ProcessKpisByProvider(ctx context.Context, providerID string, start, end time.Time) (*kpi.RunReport, error)
	ProcessKpisByMedium(ctx context.Context, medium string, start, end time.Time) (*kpi.RunReport, error)
}

// MetricsReader serves stored summaries. *metrics.Service implements it.
type MetricsReader interface {
	GetAll(ctx context.Context) ([]domain.MetricsSummary, error)
	GetProvider(ctx context.Context, providerID string) (*domain.MetricsSummary, error)
}

// ReportStore loads archived run reports. *storage.Archive implements it.
type ReportStore interface {
	Load(ctx context.Context, runID string) (*kpi.RunReport, error)
}

// Handlers contains the KPI HTTP handlers.
type Handlers struct {
	pipeline Pipeline
	metrics  MetricsReader
	reports  ReportStore
}

// NewHandlers creates the handler set. reports may be nil.
func NewHandlers(p Pipeline, m MetricsReader, reports ReportStore) *Handlers {
	return &Handlers{pipeline: p, metrics: m, reports: reports}
}

// ProcessResponse is returned by the process endpoints. A run that skipped
// windows or keys still reports success; the details are in Run.
type ProcessResponse struct {
	Message string         `json:"message"`
	Run     *kpi.RunReport `json:"run"`
}

// ProcessKpis runs the full pipeline for the query range.
//
//	POST /kpi/process?startDate=2025-01-01&endDate=2025-01-10
func (h *Handlers) ProcessKpis(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		httputil.BadRequest(w, r, err.Error())
		return
	}
	rep, err := h.pipeline.ProcessKpis(r.Context(), start, end)
	respondRun(w, r, rep, err)
}

// ProcessKpisByProvider runs the pipeline and recomputes one provider.
//
//	POST /kpi/process/provider/{providerId}?startDate&endDate
func (h *Handlers) ProcessKpisByProvider(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		httputil.BadRequest(w, r, err.Error())
		return
	}
	rep, err := h.pipeline.ProcessKpisByProvider(r.Context(), chi.URLParam(r, "providerId"), start, end)
	respondRun(w, r, rep, err)
}

// ProcessKpisByMedium runs the channels of one medium or a single channel.
//
//	POST /kpi/process/medium/{medium}?startDate&endDate
func (h *Handlers) ProcessKpisByMedium(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		httputil.BadRequest(w, r, err.Error())
		return
	}
	rep, err := h.pipeline.ProcessKpisByMedium(r.Context(), chi.URLParam(r, "medium"), start, end)
	respondRun(w, r, rep, err)
}

// GetMetrics lists every provider summary.
//
//	GET /kpi/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	all, err := h.metrics.GetAll(r.Context())
	if err != nil {
		httputil.InternalError(w, r, err)
		return
	}
	if all == nil {
		all = []domain.MetricsSummary{}
	}
	httputil.OK(w, map[string]interface{}{"metrics": all, "count": len(all)})
}

// GetProviderMetrics returns one provider summary.
//
//	GET /kpi/metrics/{providerId}
func (h *Handlers) GetProviderMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "providerId")
	s, err := h.metrics.GetProvider(r.Context(), id)
	switch {
	case errors.Is(err, metrics.ErrNotFound):
		httputil.NotFound(w, r, fmt.Sprintf("no metrics for provider %q", id))
	case errors.Is(err, metrics.ErrInvalidProvider):
		httputil.BadRequest(w, r, err.Error())
	case err != nil:
		httputil.InternalError(w, r, err)
	default:
		httputil.OK(w, s)
	}
}

// GetRun returns an archived run report.
//
//	GET /kpi/runs/{runId}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		httputil.NotFound(w, r, "run reports are not archived")
		return
	}
	rep, err := h.reports.Load(r.Context(), chi.URLParam(r, "runId"))
	switch {
	case errors.Is(err, storage.ErrReportNotFound):
		httputil.NotFound(w, r, "run not found")
	case errors.Is(err, storage.ErrInvalidRunID):
		httputil.BadRequest(w, r, err.Error())
	case err != nil:
		httputil.InternalError(w, r, err)
	default:
		httputil.OK(w, rep)
	}
}

func respondRun(w http.ResponseWriter, r *http.Request, rep *kpi.RunReport, err error) {
	if err != nil {
		if errors.Is(err, kpi.ErrInvalidRange) {
			httputil.BadRequest(w, r, err.Error())
			return
		}
		httputil.InternalError(w, r, err)
		return
	}
	logger.Info("kpi run served", "run_id", rep.RunID, "mode", rep.Mode,
		"windows_failed", rep.WindowsFailed, "keys_skipped", rep.KeysSkipped)
	httputil.OK(w, ProcessResponse{Message: "Success", Run: rep})
}

// parseRange reads startDate and endDate. Both are required.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := parseDate("startDate", q.Get("startDate"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("endDate", q.Get("endDate"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", kpi.ErrInvalidRange, name)
	}
	if t, err := domain.ParseDay(v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a date", kpi.ErrInvalidRange, name, v)
}
