// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

// Command sweeper is the maintenance entry point for the Aegia
// authentication core. It periodically hard-deletes session rows whose
// expiry is older than the retention window and evicts their cache entries.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Start the sweep loop with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmdang/aegia/internal/auth"
	"github.com/nmdang/aegia/internal/platform/config"
	"github.com/nmdang/aegia/internal/platform/migration"
	pgstore "github.com/nmdang/aegia/internal/platform/postgres"
	redisstore "github.com/nmdang/aegia/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "aegia-sweeper"))
	slog.SetDefault(log)

	log.Info("[Aegia] sweeper_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "aegia-sweeper"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.Duration("interval", cfg.SweepInterval),
		slog.Duration("retention", cfg.SweepRetention),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Sweep Loop ─────────────────────────────────────────────────────
	sessionRepository := auth.NewSessionRepository(pool)
	cache := auth.NewRedisCache(rdb)
	sweeper := auth.NewSweeper(sessionRepository, cache, cfg.SweepRetention, cfg.SweepBatchSize, log)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(runCtx, cfg.SweepInterval)
	}()

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	sig := <-quit
	log.Info("shutdown signal received", slog.String("signal", sig.String()))

	runCancel()
	<-done

	log.Info("sweeper stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
