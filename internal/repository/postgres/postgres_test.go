package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/kpi"
	"github.com/ignite/kpi-processor/internal/service/metrics"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var (
	jan1 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jan3 = time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
)

func TestEventRepo_FindOpens(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	end := jan3.Add(24*time.Hour - time.Nanosecond)
	mock.ExpectQuery("FROM sfmc_opens").
		WithArgs(jan1, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "send_id", "subscriber_key", "corporation", "is_unique", "event_date"}).
			AddRow("o1", int64(4217), "sk1", "mifarma", true, jan1).
			AddRow("o2", int64(4217), "sk2", "mifarma", false, jan3))

	opens, err := NewEventRepo(db).FindOpens(context.Background(), jan1, end)
	require.NoError(t, err)
	require.Len(t, opens, 2)
	assert.Equal(t, int64(4217), opens[0].SendID)
	assert.True(t, opens[0].IsUnique)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_FindClicks_Error(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM sfmc_clicks").WillReturnError(errors.New("connection reset"))

	_, err := NewEventRepo(db).FindClicks(context.Background(), jan1, jan3)
	assert.ErrorContains(t, err, "query clicks")
}

func TestEventRepo_FindSents(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM sfmc_sents").
		WithArgs(jan1, jan3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "send_id", "subscriber_key", "corporation", "event_date"}).
			AddRow("s1", int64(9), "sk", "mifarma", jan1))

	sents, err := NewEventRepo(db).FindSents(context.Background(), jan1, jan3)
	require.NoError(t, err)
	assert.Len(t, sents, 1)
}

func TestEventRepo_FindPush(t *testing.T) {
	cols := []string{"id", "message_id", "message_name", "app_name", "platform", "corporation", "message_opened", "process_date"}

	tests := []struct {
		sel    kpi.PushSelector
		filter string
	}{
		{kpi.PushApp, `COALESCE\(app_name,''\) <> ''`},
		{kpi.PushWeb, `message_name ILIKE '%web%'`},
	}
	for _, tt := range tests {
		t.Run(tt.sel.String(), func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			mock.ExpectQuery("FROM sfmc_push\\s+WHERE process_date BETWEEN \\$1 AND \\$2 AND "+tt.filter).
				WithArgs("2025-01-01", "2025-01-03").
				WillReturnRows(sqlmock.NewRows(cols).
					AddRow("p1", int64(1), "20250305_x_push", "MiFarma", "ios", "mifarma", true, "2025-01-02"))

			rows, err := NewEventRepo(db).FindPush(context.Background(), "2025-01-01", "2025-01-03", tt.sel)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.True(t, rows[0].MessageOpened)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestKpiRepo_Save(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	w := domain.Window{Start: jan1, End: jan3}
	records := []domain.KpiRecord{
		domain.NewKpiRecord(domain.KpiPushAppSends, 4, w),
		domain.NewKpiRecord(domain.KpiPushAppOpenRate, 50, w),
	}
	for i := range records {
		records[i].CampaignID = "20250305"
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO kpis")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "20250305", "", "", "PA-A", "Reach (sends)", "quantity", 4.0, "A", jan1, jan3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "20250305", "", "", "PA-OR", "Open rate (OR)", "percentage", 50.0, "A", jan1, jan3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewKpiRepo(db).Save(context.Background(), records))
	assert.NotEmpty(t, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKpiRepo_SaveRollsBack(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO kpis")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewKpiRepo(db).Save(context.Background(), []domain.KpiRecord{
		domain.NewKpiRecord(domain.KpiMailingBodyClicks, 1, domain.Window{Start: jan1, End: jan1}),
	})
	assert.ErrorContains(t, err, "insert kpi MBC")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKpiRepo_SaveEmpty(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, NewKpiRepo(db).Save(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var kpiCols = []string{"id", "campaign_id", "campaign_sub_id", "provider_id", "kpi_id", "kpi_description",
	"type", "value", "status", "period_start", "period_end", "created_at", "updated_at"}

func TestKpiRepo_Finders(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewKpiRepo(db)
	ctx := context.Background()

	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(kpiCols).
			AddRow("k1", "A", "", "P1", "investment", "Investment", "quantity", 100.0, "A", jan1, jan3, jan3, jan3)
	}

	mock.ExpectQuery("FROM kpis$").WillReturnRows(row())
	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.KpiInvestment, all[0].KpiID)
	assert.Equal(t, domain.KpiQuantity, all[0].Type)

	mock.ExpectQuery("WHERE provider_id = \\$1").WithArgs("P1").WillReturnRows(row())
	byProvider, err := repo.FindByProviderID(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, byProvider, 1)

	mock.ExpectQuery("WHERE period_start >= \\$1 AND period_end <= \\$2").WithArgs(jan1, jan3).WillReturnRows(row())
	byPeriod, err := repo.FindByPeriod(ctx, jan1, jan3)
	require.NoError(t, err)
	assert.Len(t, byPeriod, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsRepo_Upsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	s := &domain.MetricsSummary{
		ProviderID:              "P1",
		TotalActiveCampaigns:    2,
		TotalInvestmentPeriod:   150,
		TotalInvestmentForBrand: 75,
		UpdatedAt:               now,
	}

	mock.ExpectQuery("INSERT INTO metrics .* ON CONFLICT \\(provider_id\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "P1", 2, 150.0, 75.0, 0.0, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("existing-id", created))

	require.NoError(t, NewMetricsRepo(db).Upsert(context.Background(), s))
	assert.Equal(t, "existing-id", s.ID, "conflict keeps the stored row id")
	assert.Equal(t, created, s.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var metricsCols = []string{"id", "provider_id", "total_active_campaigns", "total_investment_period",
	"total_investment_for_brand", "total_sales", "created_at", "updated_at"}

func TestMetricsRepo_FindByProviderID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewMetricsRepo(db)

	mock.ExpectQuery("FROM metrics WHERE provider_id = \\$1").WithArgs("P1").
		WillReturnRows(sqlmock.NewRows(metricsCols).AddRow("m1", "P1", 2, 150.0, 75.0, 9.5, jan1, jan3))
	m, err := repo.FindByProviderID(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 9.5, m.TotalSales)

	mock.ExpectQuery("FROM metrics WHERE provider_id = \\$1").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByProviderID(context.Background(), "nope")
	assert.ErrorIs(t, err, metrics.ErrNotFound)
}

func TestMetricsRepo_FindAll(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM metrics ORDER BY provider_id").
		WillReturnRows(sqlmock.NewRows(metricsCols).
			AddRow("m1", "P1", 1, 1.0, 1.0, 0.0, jan1, jan1).
			AddRow("m2", "P2", 0, 0.0, 0.0, 0.0, jan1, jan1))

	all, err := NewMetricsRepo(db).FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
