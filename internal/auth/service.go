// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"encoding/base32"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmdang/aegia/internal/platform/apperr"
	"github.com/nmdang/aegia/internal/platform/sec"
	"github.com/nmdang/aegia/internal/platform/validate"
	"github.com/nmdang/aegia/pkg/uuidv7"
)

// # Contracts & Types

// Service drives the authentication state machine. It is the only component
// allowed to transition accounts between the anonymous, password-verified,
// OTP-pending, authenticated, and frozen states.
//
// # Review Process
//
// This service is critical for security. Any changes to freezing, throttling,
// or token consumption logic must be reviewed by the security team.
type Service struct {
	users    UserRepository
	sessions *SessionStore
	vault    *TokenVault
	throttle *Counter
	mailer   Mailer
	verify   sec.PasswordVerifier
	logger   *slog.Logger
}

// NewService constructs a [Service] with necessary dependencies.
func NewService(
	users UserRepository,
	sessions *SessionStore,
	vault *TokenVault,
	throttle *Counter,
	mailer Mailer,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		vault:    vault,
		throttle: throttle,
		mailer:   mailer,
		verify:   sec.CheckPasswordHash,
		logger:   logger,
	}
}

// LoginOutcome is the result of a credential or OTP submission. Exactly one
// of Session and OTPChallenge is set on success.
type LoginOutcome struct {
	// Session is the established session when authentication completed.
	Session *Session

	// User is the authenticated account.
	User *User

	// OTPChallenge is the single-use challenge token handed back when the
	// account still owes a second factor.
	OTPChallenge string
}

// NeedsOTP reports whether the login is parked waiting for a second factor.
func (outcome *LoginOutcome) NeedsOTP() bool {
	return outcome.OTPChallenge != ""
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Identifier string // Email or username.
	Password   string
	RememberMe bool
}

/*
SubmitCredentials verifies a password and either establishes a session or
parks the login behind an OTP challenge.

Description: The first transition of the state machine. Unknown identifiers
and wrong passwords are indistinguishable to the caller, and both count
against the identifier's failure throttle. Reaching the threshold freezes the
account durably and expires every session it owns.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginOutcome: Session, or OTP challenge token for enrolled accounts
  - error: apperr with Mismatch, Frozen, or infrastructure reasons
*/
func (service *Service) SubmitCredentials(context context.Context, input LoginInput) (*LoginOutcome, error) {
	validator := &validate.Validator{}
	validator.Required("identifier", input.Identifier).Required("password", input.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	throttleKey := strings.ToLower(strings.TrimSpace(input.Identifier))

	user, err := service.users.FindByIdentifier(context, input.Identifier)
	if err != nil {
		if !apperr.IsReason(err, apperr.ReasonNotFound) {
			return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}
		// Unknown identifiers still feed the throttle so probing an
		// identifier is no cheaper than guessing its password.
		if _, err := service.throttle.Increment(context, throttleKey, PurposeLogin); err != nil {
			return nil, err
		}
		return nil, apperr.Mismatch("Invalid login credentials")
	}

	if user.Frozen {
		return nil, apperr.Frozen()
	}

	if !service.verify(input.Password, user.PasswordHash) {
		count, err := service.throttle.Increment(context, throttleKey, PurposeLogin)
		if err != nil {
			return nil, err
		}
		if service.throttle.Exceeded(count, PurposeLogin) {
			return nil, service.freeze(context, user)
		}
		return nil, apperr.Mismatch("Invalid login credentials")
	}

	// Correct password clears the identifier's failure history.
	if err := service.throttle.Reset(context, throttleKey, PurposeLogin); err != nil {
		service.logger.Warn("auth_login_throttle_reset_degraded", slog.Any("error", err))
	}

	if user.OTPEnrolled() {
		challenge, err := service.vault.Issue(context, TokenOTPChallenge, user.ID, nil, OTPChallengeTTL)
		if err != nil {
			return nil, fmt.Errorf("auth_service_challenge_issue_failed: %w", err)
		}
		return &LoginOutcome{User: user, OTPChallenge: challenge}, nil
	}

	session, err := service.sessions.Create(context, user, TTLPolicy{RememberMe: input.RememberMe})
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginOutcome{User: user, Session: session}, nil
}

// OTPLoginInput carries the second factor for a parked login.
type OTPLoginInput struct {
	ChallengeToken string
	Code           string
	RememberMe     bool
}

/*
SubmitOTP completes a parked login by verifying the second factor.

Description: The challenge token is only read, never consumed, while the code
is wrong; a failed attempt must not force the user back to the password step.
Consumption is atomic and happens exactly once, on success, so two racing
submissions with the correct code establish exactly one session. Reaching the
failure threshold revokes the challenge and locks the factor with an
escalating window; while that window is active, every submission is refused
before the code is even looked at.

Parameters:
  - context: context.Context
  - input: OTPLoginInput

Returns:
  - *LoginOutcome: Established session
  - error: apperr with NotFound, Mismatch, Throttled, or Frozen reasons
*/
func (service *Service) SubmitOTP(context context.Context, input OTPLoginInput) (*LoginOutcome, error) {
	validator := &validate.Validator{}
	validator.Required("challenge_token", input.ChallengeToken).Required("code", input.Code)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	claim, err := service.vault.Peek(context, TokenOTPChallenge, input.ChallengeToken)
	if err != nil {
		return nil, err
	}

	user, err := service.users.FindByID(context, claim.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth_service_otp_lookup_failed: %w", err)
	}

	// Frozen wins over everything else and never burns an OTP attempt.
	if user.Frozen {
		return nil, apperr.Frozen()
	}

	if !user.OTPEnrolled() {
		return nil, apperr.NotFound("otp_challenge")
	}

	// An active lockout gates the factor before any code is evaluated; a
	// correct guess inside the window must not open a session, and a wrong
	// one must not feed the oracle.
	count, err := service.throttle.Peek(context, user.ID, PurposeOTP)
	if err != nil {
		return nil, err
	}
	if service.throttle.Exceeded(count, PurposeOTP) {
		return nil, apperr.Throttled("Too many incorrect codes")
	}

	if !sec.VerifyTOTP(user.OTPSecret, input.Code, time.Now()) {
		count, err := service.throttle.Increment(context, user.ID, PurposeOTP)
		if err != nil {
			return nil, err
		}
		if service.throttle.Exceeded(count, PurposeOTP) {
			// The challenge dies with the lockout; restarting from the
			// password step is part of the penalty.
			if err := service.vault.Revoke(context, TokenOTPChallenge, input.ChallengeToken); err != nil {
				service.logger.Warn("auth_otp_challenge_revoke_degraded", slog.Any("error", err))
			}
			return nil, apperr.Throttled("Too many incorrect codes")
		}
		return nil, apperr.Mismatch("Incorrect code")
	}

	// Atomic consume is the race arbiter: the loser of two concurrent
	// correct submissions observes NotFound here.
	if _, err := service.vault.Consume(context, TokenOTPChallenge, input.ChallengeToken); err != nil {
		return nil, err
	}

	if err := service.throttle.Reset(context, user.ID, PurposeOTP); err != nil {
		service.logger.Warn("auth_otp_throttle_reset_degraded", slog.Any("error", err))
	}

	// The challenge is already burned; a session failure here is not
	// refundable and surfaces as-is.
	session, err := service.sessions.Create(context, user, TTLPolicy{RememberMe: input.RememberMe})
	if err != nil {
		return nil, fmt.Errorf("auth_service_otp_session_creation_failed: %w", err)
	}

	return &LoginOutcome{User: user, Session: session}, nil
}

/*
ResendOTPChallenge re-issues a parked login's challenge with a fresh TTL.

Description: Lets a user whose challenge window is running out restart the
second factor without re-entering the password. The old challenge is revoked
before the new one is issued, so at most one challenge per parked login is
live. Re-issuance is throttled per account.

Parameters:
  - context: context.Context
  - challengeToken: string

Returns:
  - string: The replacement challenge token
  - error: apperr with NotFound, Frozen, or Throttled reasons
*/
func (service *Service) ResendOTPChallenge(context context.Context, challengeToken string) (string, error) {
	validator := &validate.Validator{}
	validator.Required("challenge_token", challengeToken)
	if err := validator.Err(); err != nil {
		return "", err
	}

	claim, err := service.vault.Peek(context, TokenOTPChallenge, challengeToken)
	if err != nil {
		return "", err
	}

	user, err := service.users.FindByID(context, claim.Subject)
	if err != nil {
		return "", fmt.Errorf("auth_service_otp_resend_lookup_failed: %w", err)
	}
	if user.Frozen {
		return "", apperr.Frozen()
	}

	count, err := service.throttle.Increment(context, user.ID, PurposeOTPResend)
	if err != nil {
		return "", err
	}
	if service.throttle.Exceeded(count, PurposeOTPResend) {
		return "", apperr.Throttled("Too many challenge re-issues")
	}

	if err := service.vault.Revoke(context, TokenOTPChallenge, challengeToken); err != nil {
		service.logger.Warn("auth_otp_challenge_revoke_degraded", slog.Any("error", err))
	}

	challenge, err := service.vault.Issue(context, TokenOTPChallenge, user.ID, nil, OTPChallengeTTL)
	if err != nil {
		return "", fmt.Errorf("auth_service_challenge_issue_failed: %w", err)
	}

	return challenge, nil
}

/*
Logout expires the given session. Missing or already-expired sessions are
treated as success (idempotent operation).

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Storage failures only
*/
func (service *Service) Logout(context context.Context, sessionID string) error {
	if _, err := service.sessions.Expire(context, sessionID); err != nil {
		if apperr.IsReason(err, apperr.ReasonNotFound) {
			return nil
		}
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

/*
LogoutOthers expires every session of the user except the one making the
request.

Parameters:
  - context: context.Context
  - userID: string
  - keepSessionID: string

Returns:
  - int: Number of sessions expired
  - error: Storage failures
*/
func (service *Service) LogoutOthers(context context.Context, userID, keepSessionID string) (int, error) {
	expired, err := service.sessions.Purge(context, userID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("auth_service_logout_others_failed: %w", err)
	}
	return len(expired), nil
}

// # Registration Flow

// RegisterInput identifies the account a visitor wants to claim.
type RegisterInput struct {
	Username string
	Email    string
}

/*
StartRegistration validates the requested identity and mails a single-use
verification token. No account row exists until the token is redeemed.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - error: apperr with Validation, Conflict, or Throttled reasons
*/
func (service *Service) StartRegistration(context context.Context, input RegisterInput) error {
	validator := &validate.Validator{}
	validator.Required("username", input.Username).Username("username", input.Username)
	validator.Required("email", input.Email).Email("email", input.Email)
	if err := validator.Err(); err != nil {
		return err
	}

	count, err := service.throttle.Increment(context, strings.ToLower(input.Email), PurposeEmailResend)
	if err != nil {
		return err
	}
	if service.throttle.Exceeded(count, PurposeEmailResend) {
		return apperr.Throttled("Too many verification emails requested")
	}

	// Verify identity uniqueness. Return a client-safe Conflict err.
	if _, err := service.users.FindByIdentifier(context, input.Email); err == nil {
		return apperr.Conflict("Email is already registered")
	}
	if _, err := service.users.FindByIdentifier(context, input.Username); err == nil {
		return apperr.Conflict("Username is already taken")
	}

	return service.issueRegistration(context, input.Email, input.Username)
}

/*
ResendVerification re-issues the registration token for a pending signup.
The previous token stays valid until its own TTL lapses.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - error: apperr with Validation or Throttled reasons
*/
func (service *Service) ResendVerification(context context.Context, input RegisterInput) error {
	validator := &validate.Validator{}
	validator.Required("username", input.Username).Username("username", input.Username)
	validator.Required("email", input.Email).Email("email", input.Email)
	if err := validator.Err(); err != nil {
		return err
	}

	count, err := service.throttle.Increment(context, strings.ToLower(input.Email), PurposeEmailResend)
	if err != nil {
		return err
	}
	if service.throttle.Exceeded(count, PurposeEmailResend) {
		return apperr.Throttled("Too many verification emails requested")
	}

	return service.issueRegistration(context, input.Email, input.Username)
}

/*
InspectRegistration returns the claim behind a registration token without
consuming it, so a signup form can be pre-filled safely.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *TokenClaim: Subject is the email, payload carries the username
  - error: apperr.NotFound when the token is invalid or expired
*/
func (service *Service) InspectRegistration(context context.Context, token string) (*TokenClaim, error) {
	return service.vault.Peek(context, TokenRegistration, token)
}

/*
CompleteRegistration redeems a registration token and creates the account.

Description: The token is consumed atomically before any write; two racing
redemptions create exactly one account. A creation failure after the consume
does not refund the token.

Parameters:
  - context: context.Context
  - token: string
  - password: string

Returns:
  - *User: Created entity
  - error: apperr with NotFound, Validation, or Conflict reasons
*/
func (service *Service) CompleteRegistration(context context.Context, token, password string) (*User, error) {
	validator := &validate.Validator{}
	validator.Required("password", password).MinLen("password", password, 8).MaxLen("password", password, 128)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	claim, err := service.vault.Consume(context, TokenRegistration, token)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := sec.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	now := time.Now()

	// Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:           uuidv7.New(),
		Username:     claim.Payload["username"],
		Email:        claim.Subject,
		PasswordHash: hashedPassword,
		Role:         sec.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := service.users.Create(context, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return user, nil
}

// # Password Lifecycle

/*
RequestPasswordReset mails a single-use reset token to the account.

Description: The operation is deliberately silent about whether the email
maps to an account; only the throttle and the mail delivery observe the
difference.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: apperr with Validation or Throttled reasons
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	validator := &validate.Validator{}
	validator.Required("email", email).Email("email", email)
	if err := validator.Err(); err != nil {
		return err
	}

	count, err := service.throttle.Increment(context, strings.ToLower(email), PurposeEmailResend)
	if err != nil {
		return err
	}
	if service.throttle.Exceeded(count, PurposeEmailResend) {
		return apperr.Throttled("Too many reset emails requested")
	}

	user, err := service.users.FindByIdentifier(context, email)
	if err != nil {
		if apperr.IsReason(err, apperr.ReasonNotFound) {
			// Same response as the happy path. No enumeration.
			return nil
		}
		return fmt.Errorf("auth_service_reset_lookup_failed: %w", err)
	}

	token, err := service.vault.Issue(context, TokenPasswordReset, user.ID, nil, ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("auth_service_reset_issue_failed: %w", err)
	}

	service.sendMail(context, user.Email, MailTemplatePasswordReset, map[string]string{
		"token":    token,
		"username": user.Username,
	})

	return nil
}

/*
ResetPassword redeems a reset token and replaces the account password.

Description: The token is consumed atomically; the loser of a race observes
NotFound. Every session of the account is expired afterwards, a password
reset is assumed to mean the old credentials were compromised.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: apperr with NotFound or Validation reasons
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	validator := &validate.Validator{}
	validator.Required("password", newPassword).MinLen("password", newPassword, 8).MaxLen("password", newPassword, 128)
	if err := validator.Err(); err != nil {
		return err
	}

	claim, err := service.vault.Consume(context, TokenPasswordReset, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, claim.Subject, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_update_failed: %w", err)
	}

	if _, err := service.sessions.Purge(context, claim.Subject, ""); err != nil {
		return fmt.Errorf("auth_service_reset_purge_failed: %w", err)
	}

	return nil
}

/*
ChangePassword replaces the password of a logged-in user after re-verifying
the current one, then expires every other session of the account.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - keepSessionID: string (the caller's own session survives)

Returns:
  - error: apperr with Mismatch, Frozen, or Validation reasons
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, keepSessionID string) error {
	validator := &validate.Validator{}
	validator.Required("current_password", currentPassword)
	validator.Required("new_password", newPassword).MinLen("new_password", newPassword, 8).MaxLen("new_password", newPassword, 128)
	validator.Custom("new_password", newPassword != "" && newPassword == currentPassword, "Must differ from the current password")
	if err := validator.Err(); err != nil {
		return err
	}

	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return fmt.Errorf("auth_service_change_lookup_failed: %w", err)
	}
	if user.Frozen {
		return apperr.Frozen()
	}

	if !service.verify(currentPassword, user.PasswordHash) {
		return apperr.Mismatch("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_update_failed: %w", err)
	}

	if _, err := service.sessions.Purge(context, user.ID, keepSessionID); err != nil {
		return fmt.Errorf("auth_service_change_purge_failed: %w", err)
	}

	return nil
}

// # OTP Enrollment

// OTPSetup hands the enrollment material back to the caller.
type OTPSetup struct {
	// SetupToken must be returned together with one valid code to confirm.
	SetupToken string

	// SecretBase32 is the shared secret for manual authenticator entry.
	SecretBase32 string

	// ProvisionURI is the otpauth:// URI for QR rendering.
	ProvisionURI string
}

/*
StartOTPSetup generates a fresh TOTP secret and parks it behind a single-use
setup token. Nothing touches the account until the user proves possession of
the secret.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *OTPSetup: Enrollment material
  - error: apperr with Frozen or Conflict reasons
*/
func (service *Service) StartOTPSetup(context context.Context, userID string) (*OTPSetup, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_otp_setup_lookup_failed: %w", err)
	}
	if user.Frozen {
		return nil, apperr.Frozen()
	}
	if user.OTPEnrolled() {
		return nil, apperr.Conflict("OTP is already enabled for this account")
	}

	_, secretBase32, err := sec.GenerateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("auth_service_otp_secret_failed: %w", err)
	}

	setupToken, err := service.vault.Issue(context, TokenOTPSetup, user.ID, map[string]string{
		"secret": secretBase32,
	}, OTPSetupTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_otp_setup_issue_failed: %w", err)
	}

	return &OTPSetup{
		SetupToken:   setupToken,
		SecretBase32: secretBase32,
		ProvisionURI: sec.TOTPProvisionURI(OTPIssuer, user.Email, secretBase32),
	}, nil
}

/*
ConfirmOTPSetup validates one code against the parked secret and enables OTP
for the account.

Description: The setup token survives wrong codes; only a verified code
consumes it. The consume is the race arbiter for concurrent confirmations.

Parameters:
  - context: context.Context
  - userID: string
  - setupToken: string
  - code: string

Returns:
  - error: apperr with NotFound or Mismatch reasons
*/
func (service *Service) ConfirmOTPSetup(context context.Context, userID, setupToken, code string) error {
	validator := &validate.Validator{}
	validator.Required("setup_token", setupToken).Required("code", code)
	if err := validator.Err(); err != nil {
		return err
	}

	claim, err := service.vault.Peek(context, TokenOTPSetup, setupToken)
	if err != nil {
		return err
	}
	if claim.Subject != userID {
		return apperr.NotFound("otp_setup")
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(claim.Payload["secret"])
	if err != nil {
		return apperr.Fatal(fmt.Errorf("auth_service_otp_setup_corrupt_secret: %w", err))
	}

	if !sec.VerifyTOTP(secret, code, time.Now()) {
		return apperr.Mismatch("Incorrect code")
	}

	if _, err := service.vault.Consume(context, TokenOTPSetup, setupToken); err != nil {
		return err
	}

	if err := service.users.SetOTPSecret(context, userID, secret); err != nil {
		return fmt.Errorf("auth_service_otp_enable_failed: %w", err)
	}

	return nil
}

// # Internal Helpers

// freeze durably freezes the account and expires everything it owns. The
// frozen flag is the authority; the purge only shortens the window in which
// existing sessions could still be replayed.
func (service *Service) freeze(context context.Context, user *User) error {
	if err := service.users.SetFrozen(context, user.ID); err != nil {
		return fmt.Errorf("auth_service_freeze_failed: %w", err)
	}

	if _, err := service.sessions.Purge(context, user.ID, ""); err != nil {
		service.logger.Warn("auth_freeze_purge_degraded",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	service.logger.Warn("account_frozen", slog.String("user_id", user.ID))
	return apperr.Frozen()
}

// issueRegistration mints the registration token and mails it. Mail delivery
// is best-effort.
func (service *Service) issueRegistration(context context.Context, email, username string) error {
	token, err := service.vault.Issue(context, TokenRegistration, email, map[string]string{
		"username": username,
	}, RegistrationTokenTTL)
	if err != nil {
		return fmt.Errorf("auth_service_registration_issue_failed: %w", err)
	}

	service.sendMail(context, email, MailTemplateRegistration, map[string]string{
		"token":    token,
		"username": username,
	})

	return nil
}

// sendMail delivers best-effort. A lost mail is recoverable via resend; a
// failed flow is not.
func (service *Service) sendMail(context context.Context, recipient, templateID string, params map[string]string) {
	if err := service.mailer.Send(context, recipient, templateID, params); err != nil {
		service.logger.Warn("auth_mail_delivery_degraded",
			slog.String("template", templateID),
			slog.Any("error", err),
		)
	}
}
