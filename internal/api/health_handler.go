package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/kpi-processor/internal/pkg/httputil"
	"github.com/ignite/kpi-processor/internal/worker"
)

// Health states.
const (
	statusUp        = "up"
	statusDown      = "down"
	statusDegraded  = "degraded"
	statusSkipped   = "not configured"
	overallHealthy  = "healthy"
	overallDegraded = "degraded"
	overallDown     = "unhealthy"
)

// ComponentCheck is the outcome of one probe.
type ComponentCheck struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Probe pings one dependency of the pipeline. A nil Ping marks the
// dependency as not configured. A Critical probe that is down makes the
// service unready; any other failure only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Slow     time.Duration
	Ping     func(ctx context.Context) error
}

// SchedulerState is the part of worker.KpiScheduler readiness reports.
type SchedulerState interface {
	Running() bool
	Stats() worker.SchedulerStats
}

// HealthChecker serves liveness and readiness.
type HealthChecker struct {
	probes    []Probe
	scheduler SchedulerState
	started   time.Time
}

// NewHealthChecker probes Postgres (critical) and Redis. Either may be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	hc := &HealthChecker{started: time.Now()}

	pg := Probe{Name: "database", Critical: true, Timeout: 3 * time.Second, Slow: time.Second}
	if db != nil {
		pg.Ping = db.PingContext
	}
	hc.AddProbe(pg)

	rp := Probe{Name: "redis", Timeout: 2 * time.Second, Slow: 500 * time.Millisecond}
	if redisClient != nil {
		rp.Ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	hc.AddProbe(rp)
	return hc
}

// AddProbe registers another dependency, such as the Snowflake event source.
func (hc *HealthChecker) AddProbe(p Probe) {
	if p.Timeout <= 0 {
		p.Timeout = 3 * time.Second
	}
	if p.Slow <= 0 {
		p.Slow = time.Second
	}
	hc.probes = append(hc.probes, p)
}

// SetScheduler adds the recurring trigger's counters to readiness.
func (hc *HealthChecker) SetScheduler(s SchedulerState) { hc.scheduler = s }

// HandleLiveness answers 200 while the process is up.
//
//	GET /kpi/health
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":  "ok",
		"message": "It's running",
		"uptime":  formatUptime(time.Since(hc.started)),
	})
}

// HandleReadiness runs every probe and answers 503 when a critical one is
// down.
//
//	GET /kpi/health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runProbes(r.Context())
	overall := determineOverallStatus(checks)
	body := map[string]interface{}{
		"ready":  overall != overallDown,
		"status": overall,
		"checks": checks,
	}
	if hc.scheduler != nil {
		body["scheduler"] = map[string]interface{}{
			"running": hc.scheduler.Running(),
			"stats":   hc.scheduler.Stats(),
		}
	}
	if overall == overallDown {
		httputil.ServiceUnavailable(w, body)
		return
	}
	httputil.OK(w, body)
}

func (hc *HealthChecker) runProbes(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, len(hc.probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range hc.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := runProbe(ctx, p)
			mu.Lock()
			checks[p.Name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()
	return checks
}

func runProbe(ctx context.Context, p Probe) ComponentCheck {
	if p.Ping == nil {
		return ComponentCheck{Status: statusSkipped, Critical: p.Critical}
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(pingCtx)
	latency := time.Since(start)

	c := ComponentCheck{Critical: p.Critical, Latency: latency.String()}
	switch {
	case err != nil:
		c.Status = statusDown
		c.Message = fmt.Sprintf("ping failed: %v", err)
	case latency > p.Slow:
		c.Status = statusDegraded
		c.Message = fmt.Sprintf("slow response (over %s)", p.Slow)
	default:
		c.Status = statusUp
	}
	return c
}

// determineOverallStatus: a critical probe down is unhealthy; any other
// probe down or slow is degraded. Probes that are not configured count as
// neither.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := overallHealthy
	for _, c := range checks {
		switch c.Status {
		case statusDown:
			if c.Critical {
				return overallDown
			}
			overall = overallDegraded
		case statusDegraded:
			overall = overallDegraded
		}
	}
	return overall
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d)
	}
	return d.String()
}
