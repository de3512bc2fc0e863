// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nmdang/aegia/internal/platform/apperr"
	"github.com/nmdang/aegia/internal/platform/sec"
)

// # Token Vault

// TokenKind partitions the vault's key space by flow.
type TokenKind string

const (
	// TokenRegistration authorizes completing a pending registration.
	TokenRegistration TokenKind = "registration"

	// TokenPasswordReset authorizes setting a new password.
	TokenPasswordReset TokenKind = "password_reset"

	// TokenOTPChallenge bridges a correct password and the second factor.
	TokenOTPChallenge TokenKind = "otp_challenge"

	// TokenOTPSetup parks a provisional TOTP secret during enrollment.
	TokenOTPSetup TokenKind = "otp_setup"
)

// TokenClaim is the stored payload resolved when a token is consumed.
type TokenClaim struct {
	// Subject identifies the flow's principal: a user ID, or the
	// pending-registration email.
	Subject string `json:"subject"`
	// Payload carries flow-specific extras (e.g. the provisional OTP secret).
	Payload map[string]string `json:"payload,omitempty"`
	// IssuedAt is the issuance instant.
	IssuedAt time.Time `json:"issued_at"`
}

// TokenVault issues and single-use-consumes short-lived opaque secrets in
// the cache.
//
// # Durability
//
// Tokens have no durable-store representation. Losing the cache before
// consumption simply forces the user to restart the flow; every kind is
// re-issuable.
type TokenVault struct {
	cache Cache
}

// NewTokenVault constructs a [TokenVault] over the given cache.
func NewTokenVault(cache Cache) *TokenVault {
	return &TokenVault{cache: cache}
}

/*
Issue mints a fresh unguessable token and stores its claim under the kind's
key space with the given TTL.

Parameters:
  - context: context.Context
  - kind: TokenKind
  - subject: string
  - payload: map[string]string (may be nil)
  - ttl: time.Duration

Returns:
  - string: The opaque token value handed to the user
  - error: Generation or cache failures (issuance requires the cache)
*/
func (vault *TokenVault) Issue(context context.Context, kind TokenKind, subject string, payload map[string]string, ttl time.Duration) (string, error) {
	value, err := sec.GenerateSecureToken(TokenLength)
	if err != nil {
		return "", apperr.Fatal(fmt.Errorf("token_vault_generation_failed: %w", err))
	}

	claim := TokenClaim{
		Subject:  subject,
		Payload:  payload,
		IssuedAt: time.Now(),
	}

	raw, err := json.Marshal(claim)
	if err != nil {
		return "", apperr.Fatal(fmt.Errorf("token_vault_marshal_failed: %w", err))
	}

	if err := vault.cache.Set(context, vault.key(kind, value), raw, ttl); err != nil {
		return "", apperr.Transient(fmt.Errorf("token_vault_store_failed: %w", err))
	}

	return value, nil
}

/*
Consume atomically resolves and deletes a token.

Description: The read-and-delete is a single cache operation, never a
read-then-delete pair. Two concurrent consumptions of the same value yield
exactly one claim and one NotFound.

Parameters:
  - context: context.Context
  - kind: TokenKind
  - value: string

Returns:
  - *TokenClaim: The stored claim
  - error: apperr.NotFound when absent/expired/raced, apperr.Transient on cache failures
*/
func (vault *TokenVault) Consume(context context.Context, kind TokenKind, value string) (*TokenClaim, error) {
	raw, err := vault.cache.GetDel(context, vault.key(kind, value))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, apperr.NotFound("Token")
		}
		return nil, apperr.Transient(fmt.Errorf("token_vault_consume_failed: %w", err))
	}

	return vault.decode(raw)
}

/*
Peek resolves a token without consuming it.

Description: Used by flows where a failed attempt must NOT burn the token;
the attempt-count throttle governs retries instead.

Parameters:
  - context: context.Context
  - kind: TokenKind
  - value: string

Returns:
  - *TokenClaim: The stored claim
  - error: apperr.NotFound when absent/expired, apperr.Transient on cache failures
*/
func (vault *TokenVault) Peek(context context.Context, kind TokenKind, value string) (*TokenClaim, error) {
	raw, err := vault.cache.Get(context, vault.key(kind, value))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, apperr.NotFound("Token")
		}
		return nil, apperr.Transient(fmt.Errorf("token_vault_peek_failed: %w", err))
	}

	return vault.decode(raw)
}

/*
Revoke removes a token outright, e.g. when a throttle threshold trips.

Parameters:
  - context: context.Context
  - kind: TokenKind
  - value: string

Returns:
  - error: Cache failures
*/
func (vault *TokenVault) Revoke(context context.Context, kind TokenKind, value string) error {
	if err := vault.cache.Delete(context, vault.key(kind, value)); err != nil {
		return apperr.Transient(fmt.Errorf("token_vault_revoke_failed: %w", err))
	}
	return nil
}

func (vault *TokenVault) key(kind TokenKind, value string) string {
	// The stored key is a digest of the opaque value, so a cache dump never
	// yields replayable tokens.
	return cachePrefixToken + string(kind) + ":" + sec.HashToken(value)
}

func (vault *TokenVault) decode(raw []byte) (*TokenClaim, error) {
	claim := &TokenClaim{}
	if err := json.Unmarshal(raw, claim); err != nil {
		return nil, apperr.Fatal(fmt.Errorf("token_vault_decode_failed: %w", err))
	}
	return claim, nil
}
