package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/kpi-processor/internal/api"
	"github.com/ignite/kpi-processor/internal/app"
	"github.com/ignite/kpi-processor/internal/config"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  KPI Processor API (cmd/server/main.go)                   ║")
	log.Println("║  On-demand KPI runs, metrics reads and scheduled backfill ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer a.Close()

	handlers := api.NewHandlers(a.Processor, a.Metrics, a.Archive)
	health := api.NewHealthChecker(a.DB, a.Redis)
	if a.Snowflake != nil {
		health.AddProbe(api.Probe{Name: "snowflake", Timeout: 10 * time.Second, Slow: 3 * time.Second, Ping: a.Snowflake.Ping})
	}

	if cfg.Schedule.Enabled {
		scheduler := a.Scheduler()
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()
		health.SetScheduler(scheduler)
		log.Printf("KPI scheduler started (every %s, lookback %d days)", cfg.Schedule.Interval(), cfg.Schedule.LookbackDays)
	}

	router := api.SetupRoutes(handlers, health, a.Registry, cfg.Server.AllowedOrigins)
	server := api.NewServer(cfg.Server, router)

	log.Printf("Starting server on %s", server.Addr())
	if err := server.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
		return
	}
	log.Println("Server stopped")
}
