// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nmdang/aegia/internal/platform/apperr"
	"github.com/nmdang/aegia/internal/platform/sec"
)

// # Request Guard

// Guard is the per-request admission check. It validates the session, the
// CSRF double submit, and the role requirement, in that order, and refuses to
// tell the caller which step failed.
type Guard struct {
	sessions *SessionStore
	logger   *slog.Logger
}

// NewGuard constructs a [Guard].
func NewGuard(sessions *SessionStore, logger *slog.Logger) *Guard {
	return &Guard{
		sessions: sessions,
		logger:   logger,
	}
}

/*
Authorize admits or refuses a request carrying a session ID and a separately
transmitted CSRF token.

Description: A session nearing the second half of its lifetime is extended
transparently; the extension is best-effort and an admission never fails
because of it. The returned error always collapses to Unauthenticated or
Forbidden via [apperr.AppError.Public]; the precise internal reason goes to
the log only.

Parameters:
  - context: context.Context
  - sessionID: string
  - csrfToken: string (from a header or body field, never from a cookie)
  - requiredRole: sec.UserRole

Returns:
  - *Session: The admitted session
  - error: apperr with NotFound, Expired, Mismatch, or InsufficientRole reasons
*/
func (guard *Guard) Authorize(context context.Context, sessionID, csrfToken string, requiredRole sec.UserRole) (*Session, error) {
	if !requiredRole.Known() {
		// An unknown requirement is a programming error; admitting against
		// it would rank everything as sufficient.
		return nil, apperr.Fatal(errors.New("guard_unknown_required_role"))
	}

	session, err := guard.sessions.GetValid(context, sessionID, csrfToken)
	if err != nil {
		guard.logger.Warn("guard_admission_refused",
			slog.String("reason", string(apperr.ReasonOf(err))),
		)
		return nil, err
	}

	if !session.Role.AtLeast(requiredRole) {
		guard.logger.Warn("guard_admission_refused",
			slog.String("reason", string(apperr.ReasonInsufficientRole)),
			slog.String("user_id", session.UserID),
			slog.String("role", string(session.Role)),
			slog.String("required", string(requiredRole)),
		)
		return nil, apperr.InsufficientRole()
	}

	guard.slideExpiry(context, session)

	return session, nil
}

// slideExpiry extends the session when it has crossed the refresh threshold.
// Failures degrade: the session stays valid until its current expiry.
func (guard *Guard) slideExpiry(context context.Context, session *Session) {
	if session.NeverExpires() {
		return
	}
	if time.Until(session.ExpiresAt) >= SessionRefreshThreshold {
		return
	}

	refreshed, err := guard.sessions.Refresh(context, session.ID, session.CSRFToken)
	if err != nil {
		guard.logger.Warn("guard_refresh_degraded",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
		return
	}

	session.ExpiresAt = refreshed.ExpiresAt
	session.UpdatedAt = refreshed.UpdatedAt
}
