// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nmdang/aegia/internal/auth"
	"github.com/nmdang/aegia/internal/platform/apperr"
)

// testLogger discards output. Tests assert on behavior, not log lines.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCache backs the Cache contract with an embedded Redis.
func newTestCache(t *testing.T) (*auth.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return auth.NewRedisCache(client), mr
}

// # In-Memory Repositories

// memoryUserRepository implements [auth.UserRepository] for tests.
type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{users: make(map[string]*auth.User)}
}

func (repository *memoryUserRepository) put(user *auth.User) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	clone := *user
	repository.users[user.ID] = &clone
}

func (repository *memoryUserRepository) FindByID(_ context.Context, id string) (*auth.User, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user, ok := repository.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &clone, nil
}

func (repository *memoryUserRepository) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, user := range repository.users {
		if strings.EqualFold(user.Email, identifier) || user.Username == identifier {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repository *memoryUserRepository) Create(_ context.Context, user *auth.User) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, existing := range repository.users {
		if strings.EqualFold(existing.Email, user.Email) || existing.Username == user.Username {
			return apperr.Conflict("identity already exists")
		}
	}
	clone := *user
	repository.users[user.ID] = &clone
	return nil
}

func (repository *memoryUserRepository) SetFrozen(_ context.Context, userID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user, ok := repository.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.Frozen = true
	return nil
}

func (repository *memoryUserRepository) UpdatePassword(_ context.Context, userID, newHash string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user, ok := repository.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.PasswordHash = newHash
	return nil
}

func (repository *memoryUserRepository) SetOTPSecret(_ context.Context, userID string, secret []byte) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user, ok := repository.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.OTPSecret = append([]byte(nil), secret...)
	return nil
}

// memorySessionRepository implements [auth.SessionRepository] with the same
// monotonic expiry semantics the SQL implementation encodes.
type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
}

// uuidShape mirrors the uuid parameter binding of the SQL implementation: a
// lookup key that cannot encode as uuid errors before touching a row.
var uuidShape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func uuidParamError(param, value string) error {
	return apperr.Fatal(fmt.Errorf("memory_session_repo_uuid_encode_failed: %s=%q", param, value))
}

func newMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*auth.Session)}
}

func (repository *memorySessionRepository) Create(_ context.Context, session *auth.Session) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	clone := *session
	repository.sessions[session.ID] = &clone
	return nil
}

func (repository *memorySessionRepository) FindByID(_ context.Context, id string) (*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if !uuidShape.MatchString(id) {
		return nil, uuidParamError("id", id)
	}

	session, ok := repository.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	clone := *session
	return &clone, nil
}

func (repository *memorySessionRepository) ExtendExpiry(_ context.Context, sessionID string, expiresAt, updatedAt time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	session, ok := repository.sessions[sessionID]
	if !ok || session.ExpiresAt.IsZero() {
		return nil
	}
	if expiresAt.After(session.ExpiresAt) {
		session.ExpiresAt = expiresAt
		session.UpdatedAt = updatedAt
	}
	return nil
}

func (repository *memorySessionRepository) ExpireNow(_ context.Context, sessionID string, now time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	session, ok := repository.sessions[sessionID]
	if !ok {
		return nil
	}
	if session.ExpiresAt.IsZero() || now.Before(session.ExpiresAt) {
		session.ExpiresAt = now
		session.UpdatedAt = now
	}
	return nil
}

func (repository *memorySessionRepository) ExpireOthers(_ context.Context, userID, skipID string, now time.Time) ([]*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	// An empty skip means "expire everything", matching the NULL binding of
	// the SQL implementation. A non-empty skip must encode as uuid.
	if skipID != "" && !uuidShape.MatchString(skipID) {
		return nil, uuidParamError("skipid", skipID)
	}

	var expired []*auth.Session
	for _, session := range repository.sessions {
		if session.UserID != userID || (skipID != "" && session.ID == skipID) {
			continue
		}
		if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
			continue
		}
		session.ExpiresAt = now
		session.UpdatedAt = now
		clone := *session
		expired = append(expired, &clone)
	}
	return expired, nil
}

func (repository *memorySessionRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var deleted []string
	for id, session := range repository.sessions {
		if len(deleted) >= limit {
			break
		}
		if session.ExpiresAt.IsZero() || !session.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(repository.sessions, id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// # Mail Capture

type sentMail struct {
	Recipient  string
	TemplateID string
	Params     map[string]string
}

// captureMailer records what would have been delivered.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (mailer *captureMailer) Send(_ context.Context, recipient, templateID string, params map[string]string) error {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	mailer.sent = append(mailer.sent, sentMail{Recipient: recipient, TemplateID: templateID, Params: params})
	return nil
}

func (mailer *captureMailer) last() *sentMail {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	if len(mailer.sent) == 0 {
		return nil
	}
	return &mailer.sent[len(mailer.sent)-1]
}

func (mailer *captureMailer) count() int {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	return len(mailer.sent)
}
