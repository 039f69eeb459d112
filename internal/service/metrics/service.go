package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/distlock"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	"github.com/ignite/kpi-processor/internal/telemetry"
)

const lockPrefix = "metrics:"

// Service implements the provider roll-up. All public methods are safe for
// concurrent use if the repositories are.
type Service struct {
	kpis   KpiReader
	repo   Repository
	locker distlock.Locker
	tel    *telemetry.Metrics
	now    func() time.Time
}

// NewService wires the roll-up. A nil locker serializes upserts in-process only.
func NewService(kpis KpiReader, repo Repository, locker distlock.Locker) *Service {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Service{
		kpis:   kpis,
		repo:   repo,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetTelemetry attaches Prometheus counters.
func (s *Service) SetTelemetry(m *telemetry.Metrics) { s.tel = m }

// CalculateGeneral recomputes every provider that has KPI rows. A failed
// provider is logged and skipped; the count of providers upserted is
// returned.
func (s *Service) CalculateGeneral(ctx context.Context) (int, error) {
	records, err := s.kpis.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load kpi records: %w", err)
	}
	return s.upsertGroups(ctx, "general", records), nil
}

// CalculateForPeriod recomputes providers from the KPI rows computed for
// windows inside [from, to].
func (s *Service) CalculateForPeriod(ctx context.Context, from, to time.Time) (int, error) {
	if from.IsZero() || to.IsZero() || from.After(to) {
		return 0, fmt.Errorf("period %s..%s: invalid range", from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	}
	records, err := s.kpis.FindByPeriod(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load kpi records for period: %w", err)
	}
	return s.upsertGroups(ctx, "period", records), nil
}

// CalculateForProvider recomputes a single provider. The provider lock is
// held from the KPI read through the write. A provider with no KPI rows gets
// a zeroed summary.
func (s *Service) CalculateForProvider(ctx context.Context, providerID string) (*domain.MetricsSummary, error) {
	if providerID == "" {
		return nil, ErrInvalidProvider
	}
	var summary *domain.MetricsSummary
	err := s.withProviderLock(ctx, providerID, func() error {
		records, err := s.kpis.FindByProviderID(ctx, providerID)
		if err != nil {
			return fmt.Errorf("load kpi records for provider %s: %w", providerID, err)
		}
		if len(records) == 0 {
			logger.Warn("no kpi records for provider, writing zeroed summary", "provider_id", providerID)
		}
		summary = Compute(records).Summary(providerID)
		return s.write(ctx, summary)
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetAll returns every stored summary.
func (s *Service) GetAll(ctx context.Context) ([]domain.MetricsSummary, error) {
	return s.repo.FindAll(ctx)
}

// GetProvider returns the stored summary for providerID.
func (s *Service) GetProvider(ctx context.Context, providerID string) (*domain.MetricsSummary, error) {
	if providerID == "" {
		return nil, ErrInvalidProvider
	}
	return s.repo.FindByProviderID(ctx, providerID)
}

func (s *Service) upsertGroups(ctx context.Context, scope string, records []domain.KpiRecord) int {
	groups := GroupByProvider(records)
	if len(groups) == 0 {
		logger.Info("no provider-attributed kpi records", "scope", scope, "records", len(records))
		return 0
	}

	providers := make([]string, 0, len(groups))
	for p := range groups {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	written := 0
	for _, providerID := range providers {
		if err := ctx.Err(); err != nil {
			logger.Warn("metrics recompute interrupted", "scope", scope, "error", err)
			break
		}
		summary := Compute(groups[providerID]).Summary(providerID)
		if err := s.upsert(ctx, summary); err != nil {
			logger.Error("metrics upsert failed", "scope", scope, "provider_id", providerID, "error", err)
			continue
		}
		written++
	}
	logger.Info("metrics recomputed", "scope", scope, "providers", len(groups), "written", written)
	return written
}

func (s *Service) upsert(ctx context.Context, summary *domain.MetricsSummary) error {
	return s.withProviderLock(ctx, summary.ProviderID, func() error {
		return s.write(ctx, summary)
	})
}

func (s *Service) withProviderLock(ctx context.Context, providerID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, lockPrefix+providerID)
	if err != nil {
		s.tel.MetricsUpsert(false)
		return fmt.Errorf("lock provider %s: %w", providerID, err)
	}
	defer unlock()
	return fn()
}

func (s *Service) write(ctx context.Context, summary *domain.MetricsSummary) error {
	summary.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, summary); err != nil {
		s.tel.MetricsUpsert(false)
		return fmt.Errorf("upsert metrics for provider %s: %w", summary.ProviderID, err)
	}
	s.tel.MetricsUpsert(true)
	return nil
}

// IsNotFound reports whether err means no summary exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
