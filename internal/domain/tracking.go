package domain

import "time"

// Raw engagement events are produced by the Marketing Cloud exports and are
// read-only to this service.

// OpenEvent is a single e-mail open.
type OpenEvent struct {
	ID            string    `json:"id" db:"id"`
	SendID        int64     `json:"send_id" db:"send_id"`
	SubscriberKey string    `json:"subscriber_key" db:"subscriber_key"`
	Corporation   string    `json:"corporation" db:"corporation"`
	IsUnique      bool      `json:"is_unique" db:"is_unique"`
	EventDate     time.Time `json:"event_date" db:"event_date"`
}

// ClickEvent is a single e-mail link click. URL carries the utm_campaign token.
type ClickEvent struct {
	ID            string    `json:"id" db:"id"`
	SendID        int64     `json:"send_id" db:"send_id"`
	SubscriberKey string    `json:"subscriber_key" db:"subscriber_key"`
	Corporation   string    `json:"corporation" db:"corporation"`
	URL           string    `json:"url" db:"url"`
	EventDate     time.Time `json:"event_date" db:"event_date"`
}

// SentEvent is a single e-mail send.
type SentEvent struct {
	ID            string    `json:"id" db:"id"`
	SendID        int64     `json:"send_id" db:"send_id"`
	SubscriberKey string    `json:"subscriber_key" db:"subscriber_key"`
	Corporation   string    `json:"corporation" db:"corporation"`
	EventDate     time.Time `json:"event_date" db:"event_date"`
}

// PushRecord is one push notification delivery row. ProcessDate is the
// export's processing day (YYYY-MM-DD).
type PushRecord struct {
	ID            string `json:"id" db:"id"`
	MessageID     int64  `json:"message_id" db:"message_id"`
	MessageName   string `json:"message_name" db:"message_name"`
	AppName       string `json:"app_name" db:"app_name"`
	Platform      string `json:"platform" db:"platform"`
	Corporation   string `json:"corporation" db:"corporation"`
	MessageOpened bool   `json:"message_opened" db:"message_opened"`
	ProcessDate   string `json:"process_date" db:"process_date"`
}
