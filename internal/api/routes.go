package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/kpi-processor/internal/pkg/httputil"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes. gatherer may be nil, in which case
// /metrics is not mounted.
func SetupRoutes(h *Handlers, hc *HealthChecker, gatherer prometheus.Gatherer, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/kpi", func(r chi.Router) {
		r.Get("/health", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)

		r.Post("/process", h.ProcessKpis)
		r.Post("/process/provider/{providerId}", h.ProcessKpisByProvider)
		r.Post("/process/medium/{medium}", h.ProcessKpisByMedium)

		r.Get("/metrics", h.GetMetrics)
		r.Get("/metrics/{providerId}", h.GetProviderMetrics)
		r.Get("/runs/{runId}", h.GetRun)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, r, "no route for "+r.Method+" "+r.URL.Path)
	})

	return r
}
