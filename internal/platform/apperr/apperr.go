// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for Aegia.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and the two caller-visible authentication outcomes.

Architecture:

  - AppError: A struct carrying a machine-readable Code, an internal Reason, and
    a client-safe message.
  - Collapse: Security-relevant rejections are collapsed onto exactly two public
    outcomes (unauthenticated / forbidden) so a caller can never tell WHICH check
    failed. The precise Reason is preserved for audit logging only.
  - Mapping: Storage and cache errors are classified as transient or fatal at the
    repository boundary.

Every error that leaves the service layer should be wrapped as an [AppError] to
ensure consistent, non-leaking responses.
*/
package apperr

import (
	"errors"
)

// # Internal Reasons

// Reason classifies an error for audit logging. Reasons are internal only and
// must never be surfaced verbatim to an unauthenticated caller.
type Reason string

const (
	// ReasonNotFound marks a user, session, or token that does not exist.
	ReasonNotFound Reason = "not_found"

	// ReasonExpired marks a session or token past its TTL.
	ReasonExpired Reason = "expired"

	// ReasonMismatch marks an incorrect CSRF token or OTP code.
	ReasonMismatch Reason = "mismatch"

	// ReasonThrottled marks a tripped failure-counter threshold.
	ReasonThrottled Reason = "throttled"

	// ReasonFrozen marks a locked account.
	ReasonFrozen Reason = "frozen"

	// ReasonInsufficientRole marks a role below the required minimum.
	ReasonInsufficientRole Reason = "insufficient_role"

	// ReasonTransientIO marks a cache/store timeout or connectivity failure.
	ReasonTransientIO Reason = "transient_io"

	// ReasonFatal marks store corruption or a serialization failure.
	ReasonFatal Reason = "fatal"

	// ReasonConflict marks a uniqueness violation (duplicate email/username).
	ReasonConflict Reason = "conflict"

	// ReasonValidation marks semantically invalid input.
	ReasonValidation Reason = "validation"
)

// # Public Outcomes

// Outcome is the caller-visible result of a rejected operation.
//
// # Security
//
// All security-relevant rejections (NotFound/Expired/Mismatch) collapse to
// [OutcomeUnauthenticated]; Throttled/Frozen/InsufficientRole collapse to
// [OutcomeForbidden]. This prevents an attacker from learning which specific
// check failed.
type Outcome string

const (
	OutcomeUnauthenticated Outcome = "UNAUTHENTICATED"
	OutcomeForbidden       Outcome = "FORBIDDEN"
	OutcomeRetryable       Outcome = "RETRYABLE"
	OutcomeInvalid         Outcome = "INVALID"
	OutcomeConflict        Outcome = "CONFLICT"
	OutcomeInternal        Outcome = "INTERNAL"
)

// # Error Type

// AppError is the canonical error type for the Aegia authentication core.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to callers
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND").
	Code string `json:"code"`
	// Reason classifies the error for audit logging.
	Reason Reason `json:"-"`
	// Message is a human-readable description safe for server-side logs.
	Message string `json:"error"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the input field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the log-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Public collapses the error onto a caller-visible [Outcome].
func (e *AppError) Public() Outcome {
	switch e.Reason {
	case ReasonNotFound, ReasonExpired, ReasonMismatch:
		return OutcomeUnauthenticated
	case ReasonThrottled, ReasonFrozen, ReasonInsufficientRole:
		return OutcomeForbidden
	case ReasonTransientIO:
		return OutcomeRetryable
	case ReasonValidation:
		return OutcomeInvalid
	case ReasonConflict:
		return OutcomeConflict
	default:
		return OutcomeInternal
	}
}

// # Rejections

// NotFound creates an [AppError] for a named absent resource.
//
// Example:
//
//	apperr.NotFound("Session") // Returns "Session not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Reason:  ReasonNotFound,
		Message: resource + " not found",
	}
}

// Expired creates an [AppError] for a session or token past its TTL.
func Expired(resource string) *AppError {
	return &AppError{
		Code:    "EXPIRED",
		Reason:  ReasonExpired,
		Message: resource + " has expired",
	}
}

// Mismatch creates an [AppError] for an incorrect CSRF token or OTP code.
func Mismatch(msg string) *AppError {
	return &AppError{
		Code:    "MISMATCH",
		Reason:  ReasonMismatch,
		Message: msg,
	}
}

// Throttled creates an [AppError] for a tripped failure threshold.
func Throttled(msg string) *AppError {
	return &AppError{
		Code:    "THROTTLED",
		Reason:  ReasonThrottled,
		Message: msg,
	}
}

// Frozen creates an [AppError] for a locked account.
func Frozen() *AppError {
	return &AppError{
		Code:    "FROZEN",
		Reason:  ReasonFrozen,
		Message: "Account is frozen",
	}
}

// InsufficientRole creates an [AppError] for a role below the requirement.
func InsufficientRole() *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_ROLE",
		Reason:  ReasonInsufficientRole,
		Message: "Insufficient permissions",
	}
}

// Conflict creates an [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Reason:  ReasonConflict,
		Message: msg,
	}
}

// ValidationError creates an [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Reason:  ReasonValidation,
		Message: msg,
		Details: details,
	}
}

// # Infrastructure Failures

// Transient wraps a cache/store timeout or connectivity failure. The core does
// not retry; retry policy belongs to the external driver layer.
func Transient(cause error) *AppError {
	return &AppError{
		Code:    "TRANSIENT_IO",
		Reason:  ReasonTransientIO,
		Message: "Temporary storage failure",
		Cause:   cause,
	}
}

// Fatal wraps store corruption or a serialization failure. Fatal errors abort
// the in-flight operation but never crash the process.
func Fatal(cause error) *AppError {
	return &AppError{
		Code:    "FATAL",
		Reason:  ReasonFatal,
		Message: "An unexpected error occurred",
		Cause:   cause,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// ReasonOf returns the internal [Reason] of err, or [ReasonFatal] when err is
// not an [*AppError].
func ReasonOf(err error) Reason {
	if ae := As(err); ae != nil {
		return ae.Reason
	}
	return ReasonFatal
}

// IsReason reports whether err carries the given internal [Reason].
func IsReason(err error, reason Reason) bool {
	if ae := As(err); ae != nil {
		return ae.Reason == reason
	}
	return false
}
