// Package app wires configuration into a running pipeline. cmd/server and
// cmd/worker both build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/kpi-processor/internal/config"
	"github.com/ignite/kpi-processor/internal/pkg/distlock"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
	ddbrepo "github.com/ignite/kpi-processor/internal/repository/dynamodb"
	"github.com/ignite/kpi-processor/internal/repository/postgres"
	"github.com/ignite/kpi-processor/internal/service/kpi"
	"github.com/ignite/kpi-processor/internal/service/metrics"
	"github.com/ignite/kpi-processor/internal/snowflake"
	"github.com/ignite/kpi-processor/internal/storage"
	"github.com/ignite/kpi-processor/internal/telemetry"
	"github.com/ignite/kpi-processor/internal/utm"
	"github.com/ignite/kpi-processor/internal/worker"
)

// App holds the process-wide dependencies.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Telemetry *telemetry.Metrics
	Processor *kpi.Processor
	Metrics   *metrics.Service
	Archive   *storage.Archive
	// Snowflake is set when raw events come from the data lake.
	Snowflake *snowflake.Client

	closers []func() error
}

// New connects to every configured backend and assembles the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.Configure(cfg.Logging.Format, logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact())

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Telemetry = telemetry.New(a.Registry)

	db, err := openPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Redis = openRedis(ctx, cfg.Redis)
	if a.Redis != nil {
		a.closers = append(a.closers, a.Redis.Close)
	}

	events, err := a.eventReader()
	if err != nil {
		a.Close()
		return nil, err
	}

	metricsRepo, err := a.metricsRepo(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	kpiRepo := postgres.NewKpiRepo(db)
	a.Metrics = metrics.NewService(kpiRepo, metricsRepo, distlock.NewLocker(a.Redis, cfg.Pipeline.LockTTL()))
	a.Metrics.SetTelemetry(a.Telemetry)

	a.Archive, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Processor = kpi.NewProcessor(events, kpiRepo, utm.New(nil), a.Metrics, PipelineConfig(cfg))
	a.Processor.SetTelemetry(a.Telemetry)
	a.Processor.SetArchive(a.Archive)

	logger.Info("pipeline assembled",
		"events", cfg.Events.Source,
		"metrics_backend", cfg.Storage.MetricsBackend,
		"report_archive", a.Archive.Kind(),
		"redis", a.Redis != nil)
	return a, nil
}

// PipelineConfig maps the configuration file onto processor settings.
func PipelineConfig(cfg *config.Config) kpi.Config {
	return kpi.Config{
		BatchSizeDays:            cfg.Pipeline.BatchSizeDays,
		BatchDelay:               cfg.Pipeline.BatchDelay(),
		MaxConcurrentAggregators: cfg.Pipeline.MaxConcurrentAggregators,
		KeyConcurrency:           cfg.Pipeline.KeyConcurrency,
		LookbackDays:             cfg.Schedule.LookbackDays,
	}
}

// Scheduler builds the recurring trigger for this app.
func (a *App) Scheduler() *worker.KpiScheduler {
	s := worker.NewKpiScheduler(a.Processor, a.Config.Schedule.Interval())
	s.SetRedisClient(a.Redis)
	s.SetDB(a.DB)
	return s
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database.url (DATABASE_URL) is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// openRedis returns nil when Redis is not configured or unreachable; locks
// then fall back to in-process and Postgres advisory locks.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.Addr); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using local locks", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	return client
}

func (a *App) eventReader() (kpi.EventReader, error) {
	switch a.Config.Events.Source {
	case config.SourcePostgres:
		return postgres.NewEventRepo(a.DB), nil
	case config.SourceSnowflake:
		client, err := snowflake.NewClient(SnowflakeConfig(a.Config.Snowflake))
		if err != nil {
			return nil, err
		}
		a.Snowflake = client
		a.closers = append(a.closers, client.Close)
		return snowflake.NewEventReader(client), nil
	default:
		return nil, fmt.Errorf("unknown events.source %q", a.Config.Events.Source)
	}
}

// SnowflakeConfig merges explicit settings over the connection string.
func SnowflakeConfig(c config.SnowflakeConfig) snowflake.Config {
	explicit := snowflake.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Database:  c.Database,
		Schema:    c.Schema,
		Warehouse: c.Warehouse,
		Role:      c.Role,
	}
	if c.ConnectionString == "" {
		return explicit
	}
	return explicit.Merge(snowflake.ParseConnectionString(c.ConnectionString))
}

func (a *App) metricsRepo(ctx context.Context) (metrics.Repository, error) {
	switch a.Config.Storage.MetricsBackend {
	case config.MetricsPostgres:
		return postgres.NewMetricsRepo(a.DB), nil
	case config.MetricsDynamoDB:
		sc := a.Config.Storage
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
			Region:          sc.AWSRegion,
			Profile:         sc.GetAWSProfile(),
			AccessKeyID:     sc.AWSAccessKeyID,
			SecretAccessKey: sc.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return ddbrepo.NewMetricsRepo(dynamodb.NewFromConfig(awsCfg), sc.DynamoDBTable), nil
	default:
		return nil, fmt.Errorf("unknown storage.metrics_backend %q", a.Config.Storage.MetricsBackend)
	}
}
