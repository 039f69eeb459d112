package kpi

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/kpi-processor/internal/domain"
)

// EventReader reads the raw Marketing Cloud exports. Time bounds are
// inclusive. Implementations must be safe for concurrent use.
type EventReader interface {
	FindOpens(ctx context.Context, from, to time.Time) ([]domain.OpenEvent, error)
	FindClicks(ctx context.Context, from, to time.Time) ([]domain.ClickEvent, error)
	FindSents(ctx context.Context, from, to time.Time) ([]domain.SentEvent, error)

	// FindPush returns push rows whose process date lies in
	// [fromDay, toDay] (YYYY-MM-DD) and that sel selects.
	FindPush(ctx context.Context, fromDay, toDay string, sel PushSelector) ([]domain.PushRecord, error)
}

// Repository appends KPI records.
type Repository interface {
	// Save writes the records of one key. Implementations assign IDs and
	// timestamps.
	Save(ctx context.Context, records []domain.KpiRecord) error
}

// PushSelector picks the push rows one aggregator counts.
type PushSelector int

const (
	// PushApp selects rows with an app name.
	PushApp PushSelector = iota
	// PushWeb selects rows whose message name contains "web", any case.
	PushWeb
)

func (s PushSelector) String() string {
	if s == PushWeb {
		return "web"
	}
	return "app"
}

// Match applies the selector to one row. Readers that cannot push the filter
// down to the store use it.
func (s PushSelector) Match(r domain.PushRecord) bool {
	switch s {
	case PushApp:
		return r.AppName != ""
	case PushWeb:
		return strings.Contains(strings.ToLower(r.MessageName), "web")
	}
	return false
}
