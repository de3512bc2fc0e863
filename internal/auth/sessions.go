// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmdang/aegia/internal/platform/apperr"
	"github.com/nmdang/aegia/internal/platform/sec"
	"github.com/nmdang/aegia/internal/platform/validate"
	"github.com/nmdang/aegia/pkg/uuidv7"
)

// # Session Store

// SessionStore owns the session lifecycle: a cache-aside layer over the
// durable store.
//
// # Consistency Contract
//
// The durable store is the source of truth. The cache entry is a read-through
// accelerator with a TTL independent of, and much shorter than, the
// session's logical lifetime. A cache hit is advisory: expiry and CSRF are
// re-validated on every read because another node may have purged the session
// without invalidating this node's cache. Every purge/expire therefore writes
// to both the store and the cache; every cache failure degrades to a
// durable-store round trip and is never fatal.
type SessionStore struct {
	repository SessionRepository
	cache      Cache
	logger     *slog.Logger
}

// NewSessionStore constructs a [SessionStore] with its dependencies.
func NewSessionStore(repository SessionRepository, cache Cache, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

/*
Create generates and persists a brand-new session for the given user.

Description: Generates a fresh unguessable session ID and CSRF token, computes
the expiry from the TTL policy, persists durably, then primes the cache.

Parameters:
  - context: context.Context
  - user: *User
  - policy: TTLPolicy (fixed duration, or never-expire for remember-me)

Returns:
  - *Session: The newly created session
  - error: Durable-store failures (fatal for writes)
*/
func (store *SessionStore) Create(context context.Context, user *User, policy TTLPolicy) (*Session, error) {

	csrfToken, err := sec.GenerateSecureToken(CSRFTokenLength)
	if err != nil {
		return nil, apperr.Fatal(fmt.Errorf("session_store_csrf_generation_failed: %w", err))
	}

	now := time.Now()
	session := &Session{
		ID:        uuidv7.New(),
		UserID:    user.ID,
		CSRFToken: csrfToken,
		Role:      user.Role,
		Username:  user.Username,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: policy.ExpiryFrom(now),
	}

	// The durable write is authoritative; its failure propagates.
	if err := store.repository.Create(context, session); err != nil {
		return nil, err
	}

	// The cache write is an accelerator; its failure is logged and ignored.
	store.cacheWrite(context, session)

	return session, nil
}

/*
GetValid resolves a session reference and validates it.

Description: Cache-aside read-through. Attempts the cache first, falls back
to the durable store on a miss and repopulates. Expiry and CSRF equality are
checked on EVERY read, including cache hits, because the cached copy can be
stale relative to an out-of-band purge on another node.

Parameters:
  - context: context.Context
  - id: string
  - csrf: string (presented CSRF token)

Returns:
  - *Session: The valid session
  - error: apperr.NotFound, apperr.Expired, apperr.Mismatch, or store failures
*/
func (store *SessionStore) GetValid(context context.Context, id, csrf string) (*Session, error) {
	// A session reference arrives from a client cookie. Anything that is not
	// a UUID cannot exist and must read as absent, never reach the storage
	// layer where a uuid encode failure would surface as a fault.
	if !wellFormedSessionID(id) {
		return nil, apperr.NotFound("Session")
	}

	session, fromCache := store.cacheRead(context, id)
	if session == nil {
		found, err := store.repository.FindByID(context, id)
		if err != nil {
			return nil, err
		}
		session = found
		store.cacheWrite(context, session)
	}

	if session.ExpiredAt(time.Now()) {
		// A stale cache hit for an expired session is evicted eagerly.
		if fromCache {
			store.cacheEvict(context, session.ID)
		}
		return nil, apperr.Expired("Session")
	}

	// Byte-for-byte, constant-time. No prefix or case-insensitive matching.
	if !sec.ConstantTimeEquals(session.CSRFToken, csrf) {
		return nil, apperr.Mismatch("CSRF token mismatch")
	}

	return session, nil
}

/*
Refresh extends a session's lifetime without rotating its identity.

Description: Re-validates via GetValid, then moves expiry to now + SessionTTL.
The session ID and CSRF token never change (rotating them would invalidate
client-held cookies mid-flight). Expiry is monotonically non-decreasing; a
never-expiring session is returned unchanged.

Parameters:
  - context: context.Context
  - id: string
  - csrf: string

Returns:
  - *Session: The refreshed session
  - error: Validation or durable-store failures
*/
func (store *SessionStore) Refresh(context context.Context, id, csrf string) (*Session, error) {
	session, err := store.GetValid(context, id, csrf)
	if err != nil {
		return nil, err
	}

	// Remember-me sessions have no expiry to extend.
	if session.NeverExpires() {
		return session, nil
	}

	now := time.Now()
	newExpiry := now.Add(SessionTTL)
	if newExpiry.After(session.ExpiresAt) {
		if err := store.repository.ExtendExpiry(context, session.ID, newExpiry, now); err != nil {
			return nil, err
		}
		session.ExpiresAt = newExpiry
		session.UpdatedAt = now
		store.cacheWrite(context, session)
	}

	return session, nil
}

/*
Expire durably invalidates a single session.

Description: Sets expiry to "now" in the durable store and evicts the cache
entry. Idempotent: expiring an already-expired session leaves its original
expiry untouched.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: The session as it stood after expiry
  - error: apperr.NotFound or durable-store failures
*/
func (store *SessionStore) Expire(context context.Context, id string) (*Session, error) {
	if !wellFormedSessionID(id) {
		return nil, apperr.NotFound("Session")
	}

	session, err := store.repository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := store.repository.ExpireNow(context, session.ID, now); err != nil {
		return nil, err
	}

	if !session.ExpiredAt(now) {
		session.ExpiresAt = now
		session.UpdatedAt = now
	}

	store.cacheEvict(context, session.ID)

	return session, nil
}

/*
Purge expires every session belonging to a user, optionally keeping one.

Description: Used on logout-everywhere and password change. Each purged
session is expired durably first, then evicted from the cache, so a node that
misses the eviction still rejects on its next durable-store read.

Parameters:
  - context: context.Context
  - userID: string
  - skipID: string (empty purges every session)

Returns:
  - []*Session: The sessions that were purged
  - error: Durable-store failures
*/
func (store *SessionStore) Purge(context context.Context, userID, skipID string) ([]*Session, error) {
	purged, err := store.repository.ExpireOthers(context, userID, skipID, time.Now())
	if err != nil {
		return nil, err
	}

	for _, session := range purged {
		store.cacheEvict(context, session.ID)
	}

	return purged, nil
}

// # Cache Plumbing

// wellFormedSessionID reports whether id has the shape of a session key.
func wellFormedSessionID(id string) bool {
	validator := &validate.Validator{}
	validator.UUID("session_id", id)
	return !validator.HasErrors()
}

func sessionCacheKey(id string) string {
	return cachePrefixSession + id
}

// cacheRead returns the cached session, or nil on a miss or any cache
// failure. The boolean reports whether the value came from the cache.
func (store *SessionStore) cacheRead(context context.Context, id string) (*Session, bool) {
	raw, err := store.cache.Get(context, sessionCacheKey(id))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			store.logger.Warn("session_cache_read_degraded", slog.String("session_id", id), slog.Any("error", err))
		}
		return nil, false
	}

	session := &Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		// A corrupt cache entry is dropped; the durable store remains authoritative.
		store.logger.Warn("session_cache_corrupt_entry", slog.String("session_id", id), slog.Any("error", err))
		store.cacheEvict(context, id)
		return nil, false
	}

	return session, true
}

// cacheWrite stores a serialized copy of the session, best-effort.
func (store *SessionStore) cacheWrite(context context.Context, session *Session) {
	raw, err := json.Marshal(session)
	if err != nil {
		store.logger.Warn("session_cache_marshal_failed", slog.String("session_id", session.ID), slog.Any("error", err))
		return
	}

	// Never cache past the session's own expiry.
	ttl := SessionCacheTTL
	if !session.NeverExpires() {
		if remaining := time.Until(session.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	if err := store.cache.Set(context, sessionCacheKey(session.ID), raw, ttl); err != nil {
		store.logger.Warn("session_cache_write_degraded", slog.String("session_id", session.ID), slog.Any("error", err))
	}
}

// cacheEvict removes the cache entry, best-effort.
func (store *SessionStore) cacheEvict(context context.Context, id string) {
	if err := store.cache.Delete(context, sessionCacheKey(id)); err != nil {
		store.logger.Warn("session_cache_evict_degraded", slog.String("session_id", id), slog.Any("error", err))
	}
}
