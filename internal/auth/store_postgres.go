// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

// # Storage Adapters (PostgreSQL)
//
// Repositories in this file are strictly separated from domain logic. They
// implement the domain-defined interfaces ([UserRepository],
// [SessionRepository]) using the [pgxpool.Pool] connection manager.
//
// Storage-specific errors (like pgx.ErrNoRows or SQLSTATE codes) are mapped
// to domain-friendly [apperr.AppError] values at this boundary via dberr,
// so no storage implementation detail leaks upward.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmdang/aegia/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, username, email, passwordhash, otpsecret, frozen, role, githubid, googleid, createdat, updatedat`

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE id = $1`

	return repository.scanUser(repository.pool.QueryRow(context, query, id))
}

/*
FindByIdentifier retrieves a user record by email or username.

Description: Flexible lookup used by the login flow; the caller never learns
which identifier form matched. Email matching is case-insensitive, username
matching is exact.

Parameters:
  - context: context.Context
  - identifier: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByIdentifier(context context.Context, identifier string) (*User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE LOWER(email) = LOWER($1) OR username = $1`

	return repository.scanUser(repository.pool.QueryRow(context, query, identifier))
}

/*
Create persists a new user record into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: apperr.Conflict on duplicate email/username, or storage failures
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, username, email, passwordhash, otpsecret, frozen, role, githubid, googleid, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.OTPSecret,
		user.Frozen,
		user.Role,
		nullableString(user.GithubID),
		nullableString(user.GoogleID),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_create_failed: %w", err), "Account")
	}

	return nil
}

/*
SetFrozen durably marks the account as frozen.

Description: One-way transition set by the authentication state machine on
repeated credential failures.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresUserRepository) SetFrozen(context context.Context, userID string) error {
	const query = "UPDATE users.account SET frozen = TRUE, updatedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_set_frozen_failed: %w", err), "Account")
	}
	return nil
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_update_password_failed: %w", err), "Account")
	}

	return nil
}

/*
SetOTPSecret stores (or clears) the shared TOTP secret for a user.

Parameters:
  - context: context.Context
  - userID: string
  - secret: []byte (nil disables OTP)

Returns:
  - error: Persistence failures
*/
func (repository *PostgresUserRepository) SetOTPSecret(context context.Context, userID string, secret []byte) error {
	const query = `
		UPDATE users.account
		SET otpsecret = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, secret, time.Now())
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_set_otp_secret_failed: %w", err), "Account")
	}

	return nil
}

// rowScanner abstracts pgx.Row for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func (repository *PostgresUserRepository) scanUser(row rowScanner) (*User, error) {
	user := &User{}
	var githubID, googleID *string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.OTPSecret,
		&user.Frozen,
		&user.Role,
		&githubID,
		&googleID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_user_repo_scan_failed: %w", err), "Account")
	}

	if githubID != nil {
		user.GithubID = *githubID
	}
	if googleID != nil {
		user.GoogleID = *googleID
	}

	return user, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `id, userid, csrftoken, role, username, createdat, updatedat, expiresat`

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, userid, csrftoken, role, username, createdat, updatedat, expiresat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = session.CreatedAt

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.CSRFToken,
		session.Role,
		session.Username,
		session.CreatedAt,
		session.UpdatedAt,
		nullableTime(session.ExpiresAt),
	)

	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_session_repo_create_failed: %w", err), "Session")
	}

	return nil
}

/*
FindByID retrieves a session by its unique ID, expired or not.

Description: Expiry and CSRF validation happen in the session store, not in
SQL, so a cache hit and a database read go through identical checks.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: Hydrated session
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByID(context context.Context, id string) (*Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM users.session
		WHERE id = $1`

	return scanSession(repository.pool.QueryRow(context, query, id))
}

/*
ExtendExpiry moves a session's expiry forward, never backward.

Description: GREATEST makes the write monotonic under concurrent refreshes.
Never-expiring sessions (NULL expiry) are left untouched.

Parameters:
  - context: context.Context
  - sessionID: string
  - expiresAt: time.Time
  - updatedAt: time.Time

Returns:
  - error: Persistence failures
*/
func (repository *PostgresSessionRepository) ExtendExpiry(context context.Context, sessionID string, expiresAt, updatedAt time.Time) error {
	const query = `
		UPDATE users.session
		SET expiresat = GREATEST(expiresat, $2), updatedat = $3
		WHERE id = $1 AND expiresat IS NOT NULL`

	_, err := repository.pool.Exec(context, query, sessionID, expiresAt, updatedAt)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_session_repo_extend_expiry_failed: %w", err), "Session")
	}

	return nil
}

/*
ExpireNow durably expires a session at the given instant.

Description: LEAST keeps an already-passed expiry where it is, making the
write idempotent. NULL (never-expire) collapses to now.

Parameters:
  - context: context.Context
  - sessionID: string
  - now: time.Time

Returns:
  - error: Persistence failures
*/
func (repository *PostgresSessionRepository) ExpireNow(context context.Context, sessionID string, now time.Time) error {
	const query = `
		UPDATE users.session
		SET expiresat = LEAST(COALESCE(expiresat, $2), $2), updatedat = $2
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, sessionID, now)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_session_repo_expire_failed: %w", err), "Session")
	}

	return nil
}

/*
ExpireOthers durably expires every live session of a user except skipID.

Parameters:
  - context: context.Context
  - userID: string
  - skipID: string (empty expires all sessions)
  - now: time.Time

Returns:
  - []*Session: The sessions that were expired
  - error: Batch revocation failures
*/
func (repository *PostgresSessionRepository) ExpireOthers(context context.Context, userID, skipID string, now time.Time) ([]*Session, error) {
	const query = `
		UPDATE users.session
		SET expiresat = $3, updatedat = $3
		WHERE userid = $1 AND ($2::uuid IS NULL OR id <> $2::uuid) AND (expiresat IS NULL OR expiresat > $3)
		RETURNING ` + sessionColumns

	// An empty skip binds NULL; an empty string would not encode as uuid and
	// the purge-all form would fail before touching a row.
	rows, err := repository.pool.Query(context, query, userID, nullableString(skipID), now)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_expire_others_failed: %w", err), "Session")
	}
	defer rows.Close()

	var expired []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, session)
	}

	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_expire_others_rows_failed: %w", err), "Session")
	}

	return expired, nil
}

/*
DeleteExpiredBefore permanently removes long-expired sessions in bounded batches.

Description: Cleanup task to reclaim storage from stale sessions; the returned
IDs let the caller evict matching cache entries.

Parameters:
  - context: context.Context
  - cutoff: time.Time
  - limit: int

Returns:
  - []string: IDs of the deleted rows
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpiredBefore(context context.Context, cutoff time.Time, limit int) ([]string, error) {
	const query = `
		DELETE FROM users.session
		WHERE id IN (
			SELECT id FROM users.session
			WHERE expiresat IS NOT NULL AND expiresat <= $1
			LIMIT $2
		)
		RETURNING id`

	rows, err := repository.pool.Query(context, query, cutoff, limit)
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err), "Session")
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_delete_expired_scan_failed: %w", err), "Session")
		}
		deleted = append(deleted, id)
	}

	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_delete_expired_rows_failed: %w", err), "Session")
	}

	return deleted, nil
}

func scanSession(row rowScanner) (*Session, error) {
	session := &Session{}
	var expiresAt *time.Time

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.CSRFToken,
		&session.Role,
		&session.Username,
		&session.CreatedAt,
		&session.UpdatedAt,
		&expiresAt,
	)

	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_session_repo_scan_failed: %w", err), "Session")
	}

	if expiresAt != nil {
		session.ExpiresAt = *expiresAt
	}

	return session, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
