// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import "time"

// # Session Constraints

const (
	// SessionTTL is the default logical lifetime of a session.
	SessionTTL = 7 * 24 * time.Hour

	// SessionCacheTTL bounds the cache copy of a session. It is deliberately
	// much shorter than the logical lifetime: the cache entry is a
	// read-through accelerator, never the source of truth.
	SessionCacheTTL = 15 * time.Minute

	// SessionRefreshThreshold is the remaining lifetime below which the guard
	// transparently extends a session on a successful request.
	SessionRefreshThreshold = SessionTTL / 2

	// CSRFTokenLength is the byte length of the random CSRF token.
	CSRFTokenLength = 32
)

// # Token Constraints

const (
	// TokenLength is the byte length of random single-use token values.
	TokenLength = 32

	// RegistrationTokenTTL is long-lived (24 hours) as users might not check
	// email immediately.
	RegistrationTokenTTL = 24 * time.Hour

	// ResetTokenTTL is short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// OTPChallengeTTL bounds the window between a correct password and the
	// second factor.
	OTPChallengeTTL = 5 * time.Minute

	// OTPSetupTTL bounds an enrollment attempt before the parked secret is
	// discarded.
	OTPSetupTTL = 10 * time.Minute

	// OTPIssuer is the issuer label shown in authenticator apps.
	OTPIssuer = "Aegia"
)

// # Throttle Constraints

const (
	// LoginMaxAttempts is the failed-password count that freezes an account.
	LoginMaxAttempts = 5

	// LoginWindow is the throttle window for failed password attempts.
	LoginWindow = 15 * time.Minute

	// OTPMaxAttempts is the failed-code count that starts an OTP lockout.
	OTPMaxAttempts = 5

	// OTPWindow is the base OTP lockout window. Failures past the threshold
	// extend the window instead of resetting it.
	OTPWindow = 1 * time.Minute

	// OTPLockoutCap bounds the escalating OTP lockout.
	OTPLockoutCap = 1 * time.Hour

	// ResendMaxAttempts bounds registration/reset email re-sends per window.
	ResendMaxAttempts = 3

	// ResendWindow is the throttle window for email re-sends.
	ResendWindow = 10 * time.Minute
)

// # Cache Key Taxonomy

// Each component owns its prefix exclusively; no component reaches into
// another's keys.
const (
	cachePrefixSession  = "auth:session:"
	cachePrefixToken    = "auth:token:"
	cachePrefixThrottle = "auth:throttle:"
)

// # Mail Templates

const (
	// MailTemplateRegistration carries the registration verification link.
	MailTemplateRegistration = "registration_verify"

	// MailTemplatePasswordReset carries the password reset link.
	MailTemplatePasswordReset = "password_reset"
)
