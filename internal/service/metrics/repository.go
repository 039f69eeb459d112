package metrics

import (
	"context"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
)

// KpiReader is the read side of the KPI store the roll-up runs over.
type KpiReader interface {
	FindAll(ctx context.Context) ([]domain.KpiRecord, error)
	FindByProviderID(ctx context.Context, providerID string) ([]domain.KpiRecord, error)

	// FindByPeriod returns records whose computation window lies inside
	// [from, to], both inclusive calendar days.
	FindByPeriod(ctx context.Context, from, to time.Time) ([]domain.KpiRecord, error)
}

// Repository persists MetricsSummary rows. Implementations must be safe for
// concurrent use.
type Repository interface {
	// Upsert replaces the numeric fields and UpdatedAt of the row for
	// s.ProviderID, or inserts a new row. On return s carries the stored
	// ID and CreatedAt.
	Upsert(ctx context.Context, s *domain.MetricsSummary) error

	// FindByProviderID returns ErrNotFound if no row exists.
	FindByProviderID(ctx context.Context, providerID string) (*domain.MetricsSummary, error)

	FindAll(ctx context.Context) ([]domain.MetricsSummary, error)
}
