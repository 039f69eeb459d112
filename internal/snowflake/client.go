// Package snowflake reads the raw Marketing Cloud exports straight from the
// Snowflake data lake. EventReader implements kpi.EventReader.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
)

// Client is a small connection pool to the data lake warehouse.
type Client struct {
	db *sql.DB
}

// DSN renders cfg in the driver's connection string format.
func DSN(cfg Config) (string, error) {
	return sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
}

// NewClient opens a pool sized for the handful of window queries a run
// issues at once. The driver connects lazily.
func NewClient(cfg Config) (*Client, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("build snowflake dsn: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// NewClientWithDB wraps an existing connection pool.
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping checks the warehouse is reachable. Readiness probes use it.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
