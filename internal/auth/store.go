// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by [Cache] reads when the key is absent. Every
// other cache error is treated as a transient infrastructure failure and
// degrades to a durable-store round trip.
var ErrCacheMiss = errors.New("auth: cache miss")

// # User Data Access

// UserRepository defines the durable data access contract for user accounts.
// Accounts are owned by flows external to this core; the core mutates only
// the frozen flag, the password hash, and the OTP secret.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByIdentifier returns the account matching the given email or
		username.

		Parameters:
		  - context: context.Context
		  - identifier: string

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByIdentifier(context context.Context, identifier string) (*User, error)

	/*
		Create persists a brand-new user account.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: apperr.Conflict on duplicate email/username, or storage failures
	*/
	Create(context context.Context, user *User) error

	/*
		SetFrozen durably marks the account as frozen. The transition is
		one-way; unfreezing is an out-of-band administrative action.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	SetFrozen(context context.Context, userID string) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		SetOTPSecret stores the shared TOTP secret after a confirmed
		enrollment. A nil secret disables OTP for the account.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - secret: []byte

		Returns:
		  - error: Persistence failures
	*/
	SetOTPSecret(context context.Context, userID string, secret []byte) error
}

// # Session Data Access

// SessionRepository defines the durable data access contract for sessions.
// The durable store is the source of truth; the cache layer above it is
// advisory only.
type SessionRepository interface {

	/*
		Create persists a new session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByID returns the session with the given ID, expired or not.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*Session, error)

	/*
		ExtendExpiry moves the session expiry forward. The write is
		monotonic: a concurrent refresh can never move expiry backward.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - expiresAt: time.Time
		  - updatedAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	ExtendExpiry(context context.Context, sessionID string, expiresAt, updatedAt time.Time) error

	/*
		ExpireNow durably expires the session at the given instant. The write
		is idempotent and never moves an already-passed expiry forward.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - now: time.Time

		Returns:
		  - error: Persistence failures
	*/
	ExpireNow(context context.Context, sessionID string, now time.Time) error

	/*
		ExpireOthers durably expires every non-expired session belonging to
		the user except skipID, and returns the affected sessions. An empty
		skipID expires all of them.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - skipID: string
		  - now: time.Time

		Returns:
		  - []*Session: The sessions that were expired
		  - error: Persistence failures
	*/
	ExpireOthers(context context.Context, userID, skipID string, now time.Time) ([]*Session, error)

	/*
		DeleteExpiredBefore physically removes up to limit sessions whose
		expiry passed before the cutoff, returning the removed IDs so the
		caller can evict stale cache entries.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time
		  - limit: int

		Returns:
		  - []string: IDs of the deleted sessions
		  - error: Cleanup failures
	*/
	DeleteExpiredBefore(context context.Context, cutoff time.Time, limit int) ([]string, error)
}

// # Volatile Data Access

// Cache defines the key-value cache contract consumed by the session store,
// the token vault, and the throttle counter.
//
// # Failure Semantics
//
// Cache unavailability must never be fatal: reads degrade to the durable
// store, writes are best-effort. Only [Cache.GetDel] and [Cache.Incr] carry
// atomicity requirements, as the single serialization points for
// token consumption and failure counting.
type Cache interface {

	// Get returns the value under key, or [ErrCacheMiss].
	Get(context context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(context context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(context context.Context, key string) error

	// GetDel atomically returns and removes the value under key, or
	// [ErrCacheMiss]. Two concurrent calls observe exactly one value.
	GetDel(context context.Context, key string) ([]byte, error)

	// Incr atomically increments the counter under key, arming the TTL when
	// the counter is created. Concurrent increments never lose updates.
	Incr(context context.Context, key string, ttl time.Duration) (int64, error)

	// Expire replaces the TTL of an existing key.
	Expire(context context.Context, key string, ttl time.Duration) error
}
