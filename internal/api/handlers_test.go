package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-processor/internal/batch"
	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/kpi"
	"github.com/ignite/kpi-processor/internal/service/metrics"
	"github.com/ignite/kpi-processor/internal/storage"
	"github.com/ignite/kpi-processor/internal/telemetry"
)

type call struct {
	mode, arg  string
	start, end time.Time
}

type fakePipeline struct {
	calls []call
	err   error
}

func (f *fakePipeline) run(mode, arg string, start, end time.Time) (*kpi.RunReport, error) {
	f.calls = append(f.calls, call{mode, arg, start, end})
	if f.err != nil {
		return nil, f.err
	}
	if _, err := batch.Split(start, end, 3); err != nil {
		return nil, err
	}
	return &kpi.RunReport{RunID: "run-1", Mode: mode, ProviderID: arg, WindowsTotal: 1, WindowsSucceeded: 1}, nil
}

func (f *fakePipeline) ProcessKpis(_ context.Context, start, end time.Time) (*kpi.RunReport, error) {
	return f.run(kpi.ModeFull, "", start, end)
}

func (f *fakePipeline) ProcessKpisByProvider(_ context.Context, id string, start, end time.Time) (*kpi.RunReport, error) {
	return f.run(kpi.ModeProvider, id, start, end)
}

func (f *fakePipeline) ProcessKpisByMedium(_ context.Context, medium string, start, end time.Time) (*kpi.RunReport, error) {
	return f.run(kpi.ModeMedium, medium, start, end)
}

type fakeMetrics struct {
	rows map[string]domain.MetricsSummary
	err  error
}

func (f *fakeMetrics) GetAll(context.Context) ([]domain.MetricsSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MetricsSummary
	for _, s := range f.rows {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeMetrics) GetProvider(_ context.Context, id string) (*domain.MetricsSummary, error) {
	if id == "" {
		return nil, metrics.ErrInvalidProvider
	}
	s, ok := f.rows[id]
	if !ok {
		return nil, metrics.ErrNotFound
	}
	return &s, nil
}

type fakeReports struct{ rep *kpi.RunReport }

func (f fakeReports) Load(_ context.Context, id string) (*kpi.RunReport, error) {
	if id == "run-1" {
		return f.rep, nil
	}
	return nil, storage.ErrReportNotFound
}

func setupTestRouter(t *testing.T) (http.Handler, *fakePipeline, *fakeMetrics) {
	t.Helper()
	p := &fakePipeline{}
	m := &fakeMetrics{rows: map[string]domain.MetricsSummary{
		"P1": {ID: "m1", ProviderID: "P1", TotalActiveCampaigns: 2, TotalInvestmentPeriod: 150, TotalInvestmentForBrand: 75},
	}}
	h := NewHandlers(p, m, fakeReports{rep: &kpi.RunReport{RunID: "run-1", RecordsWritten: 9}})
	reg := prometheus.NewRegistry()
	telemetry.New(reg).RecordsWritten(string(domain.ChannelMailingParent), 5)
	return SetupRoutes(h, NewHealthChecker(nil, nil), reg, nil), p, m
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestProcessKpis(t *testing.T) {
	h, p, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodPost, "/kpi/process?startDate=2025-01-01&endDate=2025-01-10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp.Message)
	assert.Equal(t, kpi.ModeFull, resp.Run.Mode)

	require.Len(t, p.calls, 1)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.calls[0].start)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), p.calls[0].end)
}

func TestProcessKpis_RFC3339(t *testing.T) {
	h, p, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodPost, "/kpi/process?startDate=2025-01-01T10:00:00Z&endDate=2025-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, p.calls[0].start.Hour())
}

func TestProcessKpis_InvalidRange(t *testing.T) {
	tests := []struct {
		name   string
		target string
		called bool
	}{
		{"missing start", "/kpi/process?endDate=2025-01-10", false},
		{"missing end", "/kpi/process?startDate=2025-01-10", false},
		{"not a date", "/kpi/process?startDate=yesterday&endDate=2025-01-10", false},
		{"inverted", "/kpi/process?startDate=2025-01-10&endDate=2025-01-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, p, _ := setupTestRouter(t)
			rec := do(t, h, http.MethodPost, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.called, len(p.calls) == 1)
		})
	}
}

func TestProcessKpis_UnexpectedError(t *testing.T) {
	h, p, _ := setupTestRouter(t)
	p.err = errors.New("boom")

	rec := do(t, h, http.MethodPost, "/kpi/process?startDate=2025-01-01&endDate=2025-01-02")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestProcessByProviderAndMedium(t *testing.T) {
	h, p, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodPost, "/kpi/process/provider/P1?startDate=2025-01-01&endDate=2025-01-02")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/kpi/process/medium/owned?startDate=2025-01-01&endDate=2025-01-02")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, p.calls, 2)
	assert.Equal(t, kpi.ModeProvider, p.calls[0].mode)
	assert.Equal(t, "P1", p.calls[0].arg)
	assert.Equal(t, "owned", p.calls[1].arg)
	assert.Equal(t, kpi.ModeMedium, p.calls[1].mode)
}

func TestGetMetrics(t *testing.T) {
	h, _, m := setupTestRouter(t)

	rec := do(t, h, http.MethodGet, "/kpi/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Metrics []domain.MetricsSummary `json:"metrics"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	m.err = errors.New("db down")
	rec = do(t, h, http.MethodGet, "/kpi/metrics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetProviderMetrics(t *testing.T) {
	h, _, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodGet, "/kpi/metrics/P1")
	require.Equal(t, http.StatusOK, rec.Code)
	var s domain.MetricsSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 75.0, s.TotalInvestmentForBrand)

	rec = do(t, h, http.MethodGet, "/kpi/metrics/P404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun(t *testing.T) {
	h, _, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodGet, "/kpi/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records_written":9`)

	rec = do(t, h, http.MethodGet, "/kpi/runs/other")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_NoArchive(t *testing.T) {
	h := SetupRoutes(NewHandlers(&fakePipeline{}, &fakeMetrics{}, nil), NewHealthChecker(nil, nil), nil, nil)
	rec := do(t, h, http.MethodGet, "/kpi/runs/run-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	h, _, _ := setupTestRouter(t)

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kpi_records_written_total{channel="mailing-parent"} 5`)
}
