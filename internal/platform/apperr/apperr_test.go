// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmdang/aegia/internal/platform/apperr"
)

/*
TestAppError_PublicCollapse verifies that internal reasons collapse onto the
coarse caller-visible outcomes.
*/
func TestAppError_PublicCollapse(t *testing.T) {
	tests := []struct {
		name string
		err  *apperr.AppError
		want apperr.Outcome
	}{
		{"not_found", apperr.NotFound("Session"), apperr.OutcomeUnauthenticated},
		{"expired", apperr.Expired("Session"), apperr.OutcomeUnauthenticated},
		{"mismatch", apperr.Mismatch("bad csrf"), apperr.OutcomeUnauthenticated},
		{"throttled", apperr.Throttled("slow down"), apperr.OutcomeForbidden},
		{"frozen", apperr.Frozen(), apperr.OutcomeForbidden},
		{"insufficient_role", apperr.InsufficientRole(), apperr.OutcomeForbidden},
		{"transient", apperr.Transient(errors.New("timeout")), apperr.OutcomeRetryable},
		{"fatal", apperr.Fatal(errors.New("corrupt")), apperr.OutcomeInternal},
		{"conflict", apperr.Conflict("taken"), apperr.OutcomeConflict},
		{"validation", apperr.ValidationError("bad input"), apperr.OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Public())
		})
	}
}

/*
TestReasonOf verifies reason extraction through wrapping.
*/
func TestReasonOf(t *testing.T) {
	base := apperr.Expired("Session")

	assert.Equal(t, apperr.ReasonExpired, apperr.ReasonOf(base))
	assert.True(t, apperr.IsReason(base, apperr.ReasonExpired))
	assert.False(t, apperr.IsReason(base, apperr.ReasonNotFound))

	// Wrapped with %w, the reason survives.
	wrapped := fmt.Errorf("session_lookup_failed: %w", base)
	assert.Equal(t, apperr.ReasonExpired, apperr.ReasonOf(wrapped))
	assert.True(t, apperr.IsReason(wrapped, apperr.ReasonExpired))

	// Plain errors carry no reason.
	assert.False(t, apperr.IsReason(errors.New("plain"), apperr.ReasonExpired))
	assert.False(t, apperr.IsReason(nil, apperr.ReasonExpired))
}

/*
TestAppError_Unwrap verifies cause chain traversal for errors.Is.
*/
func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Transient(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, err.Unwrap())
}

/*
TestAs verifies typed extraction from wrapped chains.
*/
func TestAs(t *testing.T) {
	base := apperr.Conflict("Email is already registered")
	wrapped := fmt.Errorf("register_failed: %w", base)

	extracted := apperr.As(wrapped)
	require.NotNil(t, extracted)
	assert.Equal(t, apperr.ReasonConflict, extracted.Reason)

	assert.Nil(t, apperr.As(errors.New("plain")))
	assert.Nil(t, apperr.As(nil))
}

/*
TestValidationError_Details verifies field error aggregation.
*/
func TestValidationError_Details(t *testing.T) {
	err := apperr.ValidationError("invalid input",
		apperr.FieldError{Field: "email", Message: "Invalid email format"},
		apperr.FieldError{Field: "username", Message: "This field is required"},
	)

	require.Len(t, err.Details, 2)
	assert.Equal(t, "email", err.Details[0].Field)
	assert.Equal(t, apperr.OutcomeInvalid, err.Public())
}
