// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// # Expired Session Sweeper

// Sweeper hard-deletes long-expired session rows and evicts their cache
// entries. Logical expiry never depends on it; a dead sweeper only lets old
// rows accumulate.
type Sweeper struct {
	repository SessionRepository
	cache      Cache
	logger     *slog.Logger

	retention time.Duration
	batchSize int

	// limiter paces batch deletes so a large backlog cannot saturate the
	// database with back-to-back scans.
	limiter *rate.Limiter
}

// NewSweeper constructs a [Sweeper]. One batch delete is permitted per
// second, with a burst of one.
func NewSweeper(repository SessionRepository, cache Cache, retention time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repository: repository,
		cache:      cache,
		logger:     logger,
		retention:  retention,
		batchSize:  batchSize,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

/*
Run sweeps on the given interval until the context is cancelled. Sweep
failures are logged and the loop keeps going; the next tick retries.

Parameters:
  - context: context.Context
  - interval: time.Duration
*/
func (sweeper *Sweeper) Run(context context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First sweep happens immediately, not one interval in.
	for {
		deleted, err := sweeper.SweepOnce(context)
		if err != nil {
			sweeper.logger.Error("sweep_failed", slog.Any("error", err))
		} else if deleted > 0 {
			sweeper.logger.Info("sweep_completed", slog.Int("deleted", deleted))
		}

		select {
		case <-context.Done():
			return
		case <-ticker.C:
		}
	}
}

/*
SweepOnce drains the current backlog of deletable rows in paced batches.

Description: A row is deletable once its expiry is older than the retention
window. Cache eviction per deleted ID is best-effort; an entry that outlives
its row still carries an expiry that fails validation.

Parameters:
  - context: context.Context

Returns:
  - int: Total rows deleted
  - error: Storage failures (the count covers batches that completed)
*/
func (sweeper *Sweeper) SweepOnce(context context.Context) (int, error) {
	cutoff := time.Now().Add(-sweeper.retention)
	total := 0

	for {
		if err := sweeper.limiter.Wait(context); err != nil {
			return total, fmt.Errorf("sweeper_pacing_interrupted: %w", err)
		}

		ids, err := sweeper.repository.DeleteExpiredBefore(context, cutoff, sweeper.batchSize)
		if err != nil {
			return total, fmt.Errorf("sweeper_batch_failed: %w", err)
		}
		total += len(ids)

		for _, id := range ids {
			if err := sweeper.cache.Delete(context, sessionCacheKey(id)); err != nil {
				sweeper.logger.Warn("sweep_evict_degraded",
					slog.String("session_id", id),
					slog.Any("error", err),
				)
			}
		}

		if len(ids) < sweeper.batchSize {
			return total, nil
		}
	}
}
