package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/service/kpi"
)

// EventReader runs the raw event queries against the export tables.
type EventReader struct{ c *Client }

func NewEventReader(c *Client) *EventReader { return &EventReader{c: c} }

func (r *EventReader) FindOpens(ctx context.Context, from, to time.Time) ([]domain.OpenEvent, error) {
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT ID, SENDID, COALESCE(SUBSCRIBERKEY,''), COALESCE(CORPORATION,''),
		       COALESCE(ISUNIQUE,FALSE), EVENTDATE
		FROM SFMC_OPENS
		WHERE EVENTDATE BETWEEN ? AND ?
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

func (r *EventReader) FindClicks(ctx context.Context, from, to time.Time) ([]domain.ClickEvent, error) {
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT ID, SENDID, COALESCE(SUBSCRIBERKEY,''), COALESCE(CORPORATION,''),
		       COALESCE(URL,''), EVENTDATE
		FROM SFMC_CLICKS
		WHERE EVENTDATE BETWEEN ? AND ?
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

func (r *EventReader) FindSents(ctx context.Context, from, to time.Time) ([]domain.SentEvent, error) {
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT ID, SENDID, COALESCE(SUBSCRIBERKEY,''), COALESCE(CORPORATION,''), EVENTDATE
		FROM SFMC_SENTS
		WHERE EVENTDATE BETWEEN ? AND ?
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

// FindPush reads the day range and applies sel in process. The push export
// is small per day and its APPNAME column mixes NULL and blanks.
func (r *EventReader) FindPush(ctx context.Context, fromDay, toDay string, sel kpi.PushSelector) ([]domain.PushRecord, error) {
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT ID, MESSAGEID, MESSAGENAME, APPNAME, PLATFORM, CORPORATION, MESSAGEOPENED, PROCESSDATE
		FROM SFMC_PUSH
		WHERE PROCESSDATE BETWEEN ? AND ?
	`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query push %s: %w", sel, err)
	}
	defer rows.Close()

	var out []domain.PushRecord
	for rows.Next() {
		var (
			p                         domain.PushRecord
			messageID                 sql.NullInt64
			name, app, platform, corp sql.NullString
			opened                    sql.NullBool
		)
		if err := rows.Scan(&p.ID, &messageID, &name, &app, &platform, &corp, &opened, &p.ProcessDate); err != nil {
			return nil, fmt.Errorf("scan push: %w", err)
		}
		p.MessageID = messageID.Int64
		p.MessageName = name.String
		p.AppName = app.String
		p.Platform = platform.String
		p.Corporation = corp.String
		p.MessageOpened = opened.Bool
		if sel.Match(p) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}
