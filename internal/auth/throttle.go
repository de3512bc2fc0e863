// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nmdang/aegia/internal/platform/apperr"
)

// # Throttle Counter

// Purpose names an independent throttle namespace. Each purpose has its own
// maximum count and window.
type Purpose string

const (
	// PurposeLogin counts failed password attempts per identifier.
	PurposeLogin Purpose = "login_attempts"

	// PurposeOTP counts failed OTP codes per user, with escalating lockout.
	PurposeOTP Purpose = "otp_attempts"

	// PurposeOTPResend throttles OTP challenge re-issues per user.
	PurposeOTPResend Purpose = "otp_resend"

	// PurposeEmailResend throttles registration/reset email re-sends.
	PurposeEmailResend Purpose = "email_resend"
)

// PurposeConfig holds the threshold and window for one purpose.
type PurposeConfig struct {
	// MaxCount is the count at which the caller must apply a lockout.
	MaxCount int64
	// Window is the base TTL of the counter. When it lapses the counter
	// restarts at 1 on the next increment.
	Window time.Duration
	// Escalate extends the window on every failure past the threshold
	// instead of letting a fixed window be waited out.
	Escalate bool
	// LockoutCap bounds the escalated window. Zero means no cap.
	LockoutCap time.Duration
}

// DefaultPurposeConfigs returns the production throttle policy.
func DefaultPurposeConfigs() map[Purpose]PurposeConfig {
	return map[Purpose]PurposeConfig{
		PurposeLogin:       {MaxCount: LoginMaxAttempts, Window: LoginWindow},
		PurposeOTP:         {MaxCount: OTPMaxAttempts, Window: OTPWindow, Escalate: true, LockoutCap: OTPLockoutCap},
		PurposeOTPResend:   {MaxCount: ResendMaxAttempts, Window: ResendWindow},
		PurposeEmailResend: {MaxCount: ResendMaxAttempts, Window: ResendWindow},
	}
}

// Counter tracks failure counts per (identity key, purpose) with the cache
// TTL itself encoding the counter's reset.
//
// # Concurrency
//
// The cache's atomic increment is the sole serialization point for racing
// failures; no increment is ever lost under concurrent load.
type Counter struct {
	cache   Cache
	configs map[Purpose]PurposeConfig
	logger  *slog.Logger
}

// NewCounter constructs a [Counter]. A nil configs map falls back to
// [DefaultPurposeConfigs].
func NewCounter(cache Cache, configs map[Purpose]PurposeConfig, logger *slog.Logger) *Counter {
	if configs == nil {
		configs = DefaultPurposeConfigs()
	}
	return &Counter{
		cache:   cache,
		configs: configs,
		logger:  logger,
	}
}

/*
Increment records one failure and returns the post-increment count.

Description: The first failure of a window arms the purpose's TTL. For
escalating purposes, every failure at or past the threshold EXTENDS the
window (base * overage), so rapid repeated failures cannot simply wait out a
fixed lockout. The extension is best-effort: if it fails, the base window
still enforces a lockout.

Parameters:
  - context: context.Context
  - key: string (identity key such as an identifier or user ID)
  - purpose: Purpose

Returns:
  - int64: Post-increment count
  - error: apperr.Transient on cache failures
*/
func (counter *Counter) Increment(context context.Context, key string, purpose Purpose) (int64, error) {
	cfg := counter.config(purpose)

	count, err := counter.cache.Incr(context, counter.key(key, purpose), cfg.Window)
	if err != nil {
		return 0, apperr.Transient(fmt.Errorf("throttle_increment_failed: %w", err))
	}

	if cfg.Escalate && count >= cfg.MaxCount {
		lockout := cfg.Window * time.Duration(count-cfg.MaxCount+1)
		if cfg.LockoutCap > 0 && lockout > cfg.LockoutCap {
			lockout = cfg.LockoutCap
		}
		if err := counter.cache.Expire(context, counter.key(key, purpose), lockout); err != nil {
			counter.logger.Warn("throttle_escalation_degraded",
				slog.String("purpose", string(purpose)),
				slog.Any("error", err),
			)
		}
	}

	return count, nil
}

/*
Peek returns the current count without recording a failure.

Parameters:
  - context: context.Context
  - key: string
  - purpose: Purpose

Returns:
  - int64: Current count (0 when the window has lapsed or never started)
  - error: apperr.Transient on cache failures
*/
func (counter *Counter) Peek(context context.Context, key string, purpose Purpose) (int64, error) {
	raw, err := counter.cache.Get(context, counter.key(key, purpose))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, nil
		}
		return 0, apperr.Transient(fmt.Errorf("throttle_peek_failed: %w", err))
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, apperr.Fatal(fmt.Errorf("throttle_corrupt_counter: %w", err))
	}

	return count, nil
}

/*
Reset clears the counter, e.g. after a successful authentication.

Parameters:
  - context: context.Context
  - key: string
  - purpose: Purpose

Returns:
  - error: apperr.Transient on cache failures
*/
func (counter *Counter) Reset(context context.Context, key string, purpose Purpose) error {
	if err := counter.cache.Delete(context, counter.key(key, purpose)); err != nil {
		return apperr.Transient(fmt.Errorf("throttle_reset_failed: %w", err))
	}
	return nil
}

// Exceeded reports whether count has reached the purpose's threshold.
func (counter *Counter) Exceeded(count int64, purpose Purpose) bool {
	return count >= counter.config(purpose).MaxCount
}

func (counter *Counter) key(key string, purpose Purpose) string {
	return cachePrefixThrottle + string(purpose) + ":" + key
}

func (counter *Counter) config(purpose Purpose) PurposeConfig {
	if cfg, ok := counter.configs[purpose]; ok {
		return cfg
	}
	// Unknown purposes fail safe with the strictest default.
	return PurposeConfig{MaxCount: 1, Window: time.Hour}
}
