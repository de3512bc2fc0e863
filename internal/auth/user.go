// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

/*
Package auth implements the session-based authentication core.

It establishes, validates, refreshes, and revokes user sessions; enforces
CSRF double-submit protection; throttles brute-force login and OTP attempts;
and manages short-lived single-use tokens for registration, password-reset,
and OTP-enrollment flows.

# Architecture

  - Service: The authentication state machine (credentials → OTP → session).
  - SessionStore: Cache-aside session lifecycle over the durable store.
  - Guard: Request-time session + CSRF + role gate for protected operations.
  - TokenVault: Single-use short-lived secrets in the cache.
  - Counter: Failure throttling with TTL-encoded windows.

The package depends only on abstract collaborator contracts (UserRepository,
SessionRepository, Cache, Mailer); the concrete Postgres and Redis adapters
live beside it and are selected at process startup.
*/
package auth

import (
	"time"

	"github.com/nmdang/aegia/internal/platform/sec"
)

// # Domain Entities

// User represents a registered account. The durable store owns this record;
// the core reads it and mutates only Frozen (one-way, on repeated failures),
// the password hash (reset/change flows), and the OTP secret (enrollment).
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	OTPSecret    []byte       `json:"-"` // nil when OTP is not enrolled.
	Frozen       bool         `json:"frozen"`
	Role         sec.UserRole `json:"role"`
	GithubID     string       `json:"github_id,omitempty"` // Linked OAuth identifier.
	GoogleID     string       `json:"google_id,omitempty"` // Linked OAuth identifier.
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// OTPEnrolled reports whether the account has a shared TOTP secret configured.
func (u *User) OTPEnrolled() bool {
	return len(u.OTPSecret) > 0
}

// Session represents an active authenticated session.
//
// # Invariant
//
// A session is valid at time t iff the owning account is not frozen, the
// session has not expired at t, and the presented CSRF token equals the
// stored one byte-for-byte. The session ID and CSRF token are generated at
// creation and never change afterwards.
type Session struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	CSRFToken string       `json:"csrf_token"` // Never transmitted in the same channel as ID.
	Role      sec.UserRole `json:"role"`
	Username  string       `json:"username"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	// ExpiresAt is the expiry instant. The zero value is the "never expires"
	// sentinel used by remember-me sessions (stored as NULL).
	ExpiresAt time.Time `json:"expires_at"`
}

// NeverExpires reports whether the session uses the remember-me sentinel.
func (s *Session) NeverExpires() bool {
	return s.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the session is past its expiry at instant t.
func (s *Session) ExpiredAt(t time.Time) bool {
	return !s.NeverExpires() && !t.Before(s.ExpiresAt)
}

// TTLPolicy controls the logical lifetime of a newly created session.
type TTLPolicy struct {
	// RememberMe requests a never-expiring session; TTL is ignored.
	RememberMe bool
	// TTL is the fixed session duration. Zero falls back to [SessionTTL].
	TTL time.Duration
}

// ExpiryFrom computes the expiry instant for a session created at now.
func (p TTLPolicy) ExpiryFrom(now time.Time) time.Time {
	if p.RememberMe {
		return time.Time{}
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return now.Add(ttl)
}
