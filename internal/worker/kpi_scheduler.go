// Package worker runs the recurring KPI pipeline trigger.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/kpi-processor/internal/pkg/distlock"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/service/kpi"
)

const (
	// DefaultKpiInterval is how often the pending range is reprocessed.
	DefaultKpiInterval = 15 * time.Minute

	schedulerLockKey = "kpi-scheduler"
)

// PendingRunner runs the lookback range. *kpi.Processor implements it.
type PendingRunner interface {
	ProcessAllPending(ctx context.Context) (*kpi.RunReport, error)
}

// SchedulerStats is a snapshot of the scheduler counters.
type SchedulerStats struct {
	Runs     int64 `json:"runs"`
	Skipped  int64 `json:"skipped"`
	Failures int64 `json:"failures"`
}

// KpiScheduler triggers ProcessAllPending on a fixed interval. A tick is
// skipped while the previous run is still going, and a distributed lock
// keeps two replicas from running the same tick.
type KpiScheduler struct {
	runner      PendingRunner
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	workerID    string
	interval    time.Duration
	lockTTL     time.Duration
	lockRefresh time.Duration
	runOnStart  bool

	busy     atomic.Bool
	runs     int64
	skipped  int64
	failures int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewKpiScheduler creates a scheduler. A non-positive interval uses
// DefaultKpiInterval.
func NewKpiScheduler(runner PendingRunner, interval time.Duration) *KpiScheduler {
	if interval <= 0 {
		interval = DefaultKpiInterval
	}
	hostname, _ := os.Hostname()
	return &KpiScheduler{
		runner:   runner,
		workerID: fmt.Sprintf("kpi-scheduler-%s-%d", hostname, time.Now().UnixNano()%10000),
		interval: interval,
		lockTTL:  interval,
		// Refreshed well before expiry so a run longer than the interval
		// keeps the tick.
		lockRefresh: interval / 3,
	}
}

// SetRedisClient sets the Redis client for the cross-replica lock.
func (s *KpiScheduler) SetRedisClient(client *redis.Client) { s.redisClient = client }

// SetDB enables the Postgres advisory lock fallback when Redis is absent.
func (s *KpiScheduler) SetDB(db *sql.DB) { s.db = db }

// SetRunOnStart makes Start trigger one run immediately.
func (s *KpiScheduler) SetRunOnStart(v bool) { s.runOnStart = v }

// Start begins the scheduler loop
func (s *KpiScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("kpi scheduler starting", "worker_id", s.workerID, "interval", s.interval.String())

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels any in-flight run and waits for the loop to exit.
func (s *KpiScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	st := s.Stats()
	logger.Info("kpi scheduler stopped", "worker_id", s.workerID,
		"runs", st.Runs, "skipped", st.Skipped, "failures", st.Failures)
}

// Running reports whether the loop is active.
func (s *KpiScheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *KpiScheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Runs:     atomic.LoadInt64(&s.runs),
		Skipped:  atomic.LoadInt64(&s.skipped),
		Failures: atomic.LoadInt64(&s.failures),
	}
}

func (s *KpiScheduler) loop() {
	defer s.wg.Done()

	if s.runOnStart {
		s.RunNow(s.ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunNow(s.ctx)
		}
	}
}

// RunNow performs one scheduled run and reports whether it ran. It returns
// false when a run is already in progress here or on another replica.
func (s *KpiScheduler) RunNow(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		atomic.AddInt64(&s.skipped, 1)
		logger.Warn("kpi run skipped: previous run still in progress", "worker_id", s.workerID)
		return false
	}
	defer s.busy.Store(false)

	lock := distlock.NewLock(s.redisClient, s.db, schedulerLockKey, s.lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		logger.Error("kpi scheduler lock failed", "worker_id", s.workerID, "error", err)
		return false
	}
	if !acquired {
		atomic.AddInt64(&s.skipped, 1)
		logger.Info("kpi run skipped: another replica holds the lock", "worker_id", s.workerID)
		return false
	}
	defer func() {
		// The run context may already be cancelled on shutdown.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(relCtx); err != nil {
			logger.Warn("kpi scheduler lock release failed", "worker_id", s.workerID, "error", err)
		}
	}()

	if ext, ok := lock.(extendableLock); ok {
		stopRefresh := s.keepLock(ctx, ext)
		defer stopRefresh()
	}

	atomic.AddInt64(&s.runs, 1)
	rep, err := s.runner.ProcessAllPending(ctx)
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		logger.Error("scheduled kpi run failed", "worker_id", s.workerID, "error", err)
		return true
	}
	logger.Info("scheduled kpi run finished", "worker_id", s.workerID, "run_id", rep.RunID,
		"windows_failed", rep.WindowsFailed, "records_written", rep.RecordsWritten)
	return true
}

// extendableLock is a lock with an expiry that can be pushed out, such as
// distlock.RedisLock. Advisory and local locks have no expiry.
type extendableLock interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// keepLock extends the lock every lockRefresh until the returned stop func
// is called. A lost lock is logged once; the run itself is not interrupted.
func (s *KpiScheduler) keepLock(ctx context.Context, lock extendableLock) (stop func()) {
	refreshCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.lockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(refreshCtx, s.lockTTL); err != nil {
					if refreshCtx.Err() != nil {
						return
					}
					logger.Warn("kpi scheduler lock refresh failed", "worker_id", s.workerID, "error", err)
					if errors.Is(err, distlock.ErrNotAcquired) {
						return
					}
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
