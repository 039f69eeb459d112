package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/kpi-processor/internal/domain"
)

// KpiRepo appends KPI records and serves them back to the metrics roll-up.
// It implements kpi.Repository and metrics.KpiReader.
type KpiRepo struct{ db *sql.DB }

// NewKpiRepo creates a Postgres-backed KPI repository.
func NewKpiRepo(db *sql.DB) *KpiRepo { return &KpiRepo{db: db} }

// Save inserts the records of one key in a single transaction.
func (r *KpiRepo) Save(ctx context.Context, records []domain.KpiRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kpi insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kpis (id, campaign_id, campaign_sub_id, provider_id, kpi_id, kpi_description,
		                  type, value, status, period_start, period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare kpi insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.CampaignID, rec.CampaignSubID, rec.ProviderID,
			string(rec.KpiID), rec.Description, string(rec.Type), rec.Value, rec.Status,
			rec.PeriodStart, rec.PeriodEnd); err != nil {
			return fmt.Errorf("insert kpi %s: %w", rec.KpiID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kpi insert: %w", err)
	}
	return nil
}

const kpiColumns = `
	SELECT id, COALESCE(campaign_id,''), COALESCE(campaign_sub_id,''), COALESCE(provider_id,''),
	       kpi_id, COALESCE(kpi_description,''), type, value, status,
	       period_start, period_end, created_at, updated_at
	FROM kpis`

func (r *KpiRepo) FindAll(ctx context.Context) ([]domain.KpiRecord, error) {
	return r.query(ctx, kpiColumns)
}

func (r *KpiRepo) FindByProviderID(ctx context.Context, providerID string) ([]domain.KpiRecord, error) {
	return r.query(ctx, kpiColumns+` WHERE provider_id = $1`, providerID)
}

func (r *KpiRepo) FindByPeriod(ctx context.Context, from, to time.Time) ([]domain.KpiRecord, error) {
	return r.query(ctx, kpiColumns+` WHERE period_start >= $1 AND period_end <= $2`, from, to)
}

func (r *KpiRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.KpiRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query kpis: %w", err)
	}
	defer rows.Close()

	var out []domain.KpiRecord
	for rows.Next() {
		var k domain.KpiRecord
		var code, typ string
		if err := rows.Scan(&k.ID, &k.CampaignID, &k.CampaignSubID, &k.ProviderID,
			&code, &k.Description, &typ, &k.Value, &k.Status,
			&k.PeriodStart, &k.PeriodEnd, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan kpi: %w", err)
		}
		k.KpiID = domain.KpiCode(code)
		k.Type = domain.KpiType(typ)
		out = append(out, k)
	}
	return out, rows.Err()
}
