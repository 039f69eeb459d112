package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/metrics"
)

// MetricsRepo implements metrics.Repository. provider_id carries a unique
// index, so the upsert cannot produce a second row for a provider.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

func (r *MetricsRepo) Upsert(ctx context.Context, s *domain.MetricsSummary) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO metrics (id, provider_id, total_active_campaigns, total_investment_period,
		                     total_investment_for_brand, total_sales, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (provider_id) DO UPDATE SET
			total_active_campaigns = EXCLUDED.total_active_campaigns,
			total_investment_period = EXCLUDED.total_investment_period,
			total_investment_for_brand = EXCLUDED.total_investment_for_brand,
			total_sales = EXCLUDED.total_sales,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, s.ID, s.ProviderID, s.TotalActiveCampaigns, s.TotalInvestmentPeriod,
		s.TotalInvestmentForBrand, s.TotalSales, s.UpdatedAt,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

const metricsColumns = `
	SELECT id, provider_id, total_active_campaigns, total_investment_period,
	       total_investment_for_brand, total_sales, created_at, updated_at
	FROM metrics`

func (r *MetricsRepo) FindByProviderID(ctx context.Context, providerID string) (*domain.MetricsSummary, error) {
	m := &domain.MetricsSummary{}
	err := r.db.QueryRowContext(ctx, metricsColumns+` WHERE provider_id = $1`, providerID).Scan(
		&m.ID, &m.ProviderID, &m.TotalActiveCampaigns, &m.TotalInvestmentPeriod,
		&m.TotalInvestmentForBrand, &m.TotalSales, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, metrics.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return m, nil
}

func (r *MetricsRepo) FindAll(ctx context.Context) ([]domain.MetricsSummary, error) {
	rows, err := r.db.QueryContext(ctx, metricsColumns+` ORDER BY provider_id`)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.MetricsSummary
	for rows.Next() {
		var m domain.MetricsSummary
		if err := rows.Scan(&m.ID, &m.ProviderID, &m.TotalActiveCampaigns, &m.TotalInvestmentPeriod,
			&m.TotalInvestmentForBrand, &m.TotalSales, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
