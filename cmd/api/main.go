// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Api is the entry point for the Yomira sync core HTTP API.

The server provides a read-through cache and background synchronization
layer in front of a remote novel catalogue: every read composes the memory
cache, the durable store, and (on a miss) the rate-limited upstream
fetcher, while a deferred scheduler and priority job engine keep
previously-read books fresh without blocking request latency.

Usage:

	go run cmd/api/main.go [flags]

The flags/environment variables are:

	SERVER_PORT     Port to listen on (default: 8080)
	ENVIRONMENT     deployment environment (development, production)
	DATABASE_URL    Postgres connection string (required)
	REDIS_URL       Redis connection string (required)
	BASE_URL        Upstream catalogue base URL (required)

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables.
 3. Storage: Establish connections to Postgres and Redis.
 4. Migration: Run idempotent schema updates.
 5. Wiring: Construct the cache/store/upstream stack, then the job engine
    and deferred scheduler, breaking their cyclic reference via the
    catalog.AccessTracker / catalog.JobEnqueuer interfaces.
 6. Server: Bind HTTP listener and handle graceful shutdown: the
    scheduler's context is cancelled, the listener is shut down, and the
    deferred engine and scheduler Stop calls run last.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/yomira/internal/api"
	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/clockutil"
	"github.com/taibuivan/yomira/internal/platform/config"
	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira/internal/platform/postgres"
	redisstore "github.com/taibuivan/yomira/internal/platform/redis"
	"github.com/taibuivan/yomira/internal/upstream"
	"github.com/taibuivan/yomira/internal/upstream/htmlparser"
	"github.com/taibuivan/yomira/internal/worksync"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries for trace correlation
	log := rawLog.With(slog.String("app", "yomira"))
	slog.SetDefault(log)

	log.Info("[Yomira] service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Adjust log level if debug mode is explicitly enabled
	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "yomira"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. PostgreSQL
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// # 4. Redis
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// # 5. Migrations
	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// # 6. Health Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// # 7. Cache + Store + Upstream Tiers (§4.1–§4.4)
	store := catalog.NewPostgresStore(pool)
	cache := catalog.NewRedisCache(rdb)

	upstreamFetcher, err := upstream.New(upstream.Config{
		BaseURL: cfg.BaseURL,
		NoProxy: cfg.NoProxy,
		RPS:     cfg.UpstreamRPS,
		Burst:   cfg.UpstreamBurst,
	}, htmlparser.New(), log)
	if err != nil {
		return fmt.Errorf("construct upstream fetcher: %w", err)
	}
	gatedFetcher := upstream.NewGatedFetcher(upstreamFetcher, upstream.NewGate())

	// # 8. Manager (§4.5)
	// access/jobs are wired in step 10, after the scheduler and engine exist —
	// this breaks the Manager <-> worksync startup cycle (see DESIGN.md).
	manager := catalog.NewManager(store, cache, gatedFetcher, cfg.CacheTTL(), log)

	// # 9. Job Engine + Deferred Scheduler (§4.6–§4.7)
	queueStore := worksync.NewPostgresQueueStore(pool)
	clock := clockutil.Real{}

	engine := worksync.NewEngine(manager, manager, worksync.Config{
		Workers:      cfg.BGJobWorkers,
		RateInterval: time.Duration(cfg.BGJobRateLimit * float64(time.Second)),
	}, clock, log)

	scheduler := worksync.NewScheduler(queueStore, store, engine, worksync.SchedulerConfig{
		TriggerHour:   cfg.MidnightSyncHour,
		TriggerMinute: cfg.MidnightSyncMinute,
		RateInterval:  time.Duration(cfg.MidnightSyncRateLimit * float64(time.Second)),
	}, clock, log)

	// # 10. Close the Manager <-> worksync cycle
	manager.SetAccessTracker(scheduler)
	manager.SetJobEnqueuer(engine)
	engine.SetOnComplete(scheduler.HandleJobComplete)

	engine.Start()
	defer engine.Stop()

	appCtx, appCancel := context.WithCancel(context.Background())
	scheduler.Run(appCtx)
	defer scheduler.Stop()

	// # 11. HTTP Handlers
	catalogHandler := catalog.NewHandler(manager, engine)
	adminHandler := worksync.NewAdminHandler(engine, scheduler)
	crossAdminHandler := api.NewCrossCuttingAdminHandler(store, cache, manager, engine, log)
	syncHealthHandler := api.NewSyncHealthHandler(store, cache, engine)

	handlers := api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		SyncHealth: syncHealthHandler,
		Catalog:    catalogHandler,
		Admin:      adminHandler,
		CrossAdmin: crossAdminHandler,
	}

	server := api.NewServer(appCtx, cfg, log, handlers)

	// # 12. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("yomira_api_running", slog.String("port", cfg.ServerPort))

	// Block until signal or error
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		appCancel()
		return err
	}

	// Start Graceful Shutdown Sequence
	appCancel() // Signal the scheduler and background workers to stop

	log.Info("shutting_down_api_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	log.Info("graceful_shutdown_complete")
	return nil
}
