package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/kpi"
)

// EventRepo reads the Marketing Cloud exports loaded into Postgres. It
// implements kpi.EventReader.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed raw event reader.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) FindOpens(ctx context.Context, from, to time.Time) ([]domain.OpenEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, send_id, COALESCE(subscriber_key,''), COALESCE(corporation,''),
		       COALESCE(is_unique,false), event_date
		FROM sfmc_opens
		WHERE event_date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query opens: %w", err)
	}
	defer rows.Close()

	var out []domain.OpenEvent
	for rows.Next() {
		var e domain.OpenEvent
		if err := rows.Scan(&e.ID, &e.SendID, &e.SubscriberKey, &e.Corporation, &e.IsUnique, &e.EventDate); err != nil {
			return nil, fmt.Errorf("scan open: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) FindClicks(ctx context.Context, from, to time.Time) ([]domain.ClickEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, send_id, COALESCE(subscriber_key,''), COALESCE(corporation,''),
		       COALESCE(url,''), event_date
		FROM sfmc_clicks
		WHERE event_date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query clicks: %w", err)
	}
	defer rows.Close()

	var out []domain.ClickEvent
	for rows.Next() {
		var e domain.ClickEvent
		if err := rows.Scan(&e.ID, &e.SendID, &e.SubscriberKey, &e.Corporation, &e.URL, &e.EventDate); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) FindSents(ctx context.Context, from, to time.Time) ([]domain.SentEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, send_id, COALESCE(subscriber_key,''), COALESCE(corporation,''), event_date
		FROM sfmc_sents
		WHERE event_date BETWEEN $1 AND $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sents: %w", err)
	}
	defer rows.Close()

	var out []domain.SentEvent
	for rows.Next() {
		var e domain.SentEvent
		if err := rows.Scan(&e.ID, &e.SendID, &e.SubscriberKey, &e.Corporation, &e.EventDate); err != nil {
			return nil, fmt.Errorf("scan sent: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// pushFilters holds the SQL rendering of each push selector.
var pushFilters = map[kpi.PushSelector]string{
	kpi.PushApp: `COALESCE(app_name,'') <> ''`,
	kpi.PushWeb: `message_name ILIKE '%web%'`,
}

func (r *EventRepo) FindPush(ctx context.Context, fromDay, toDay string, sel kpi.PushSelector) ([]domain.PushRecord, error) {
	filter, ok := pushFilters[sel]
	if !ok {
		return nil, fmt.Errorf("unknown push selector %d", sel)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(message_id,0), COALESCE(message_name,''), COALESCE(app_name,''),
		       COALESCE(platform,''), COALESCE(corporation,''), COALESCE(message_opened,false), process_date
		FROM sfmc_push
		WHERE process_date BETWEEN $1 AND $2 AND `+filter,
		fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query push %s: %w", sel, err)
	}
	defer rows.Close()

	var out []domain.PushRecord
	for rows.Next() {
		var p domain.PushRecord
		if err := rows.Scan(&p.ID, &p.MessageID, &p.MessageName, &p.AppName,
			&p.Platform, &p.Corporation, &p.MessageOpened, &p.ProcessDate); err != nil {
			return nil, fmt.Errorf("scan push: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
