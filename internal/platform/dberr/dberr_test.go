// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package dberr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/nmdang/aegia/internal/platform/apperr"
	"github.com/nmdang/aegia/internal/platform/dberr"
)

/*
TestWrap_Classification verifies the mapping from driver errors onto the
core error taxonomy.
*/
func TestWrap_Classification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason apperr.Reason
	}{
		{"no_rows", pgx.ErrNoRows, apperr.ReasonNotFound},
		{"wrapped_no_rows", fmt.Errorf("query: %w", pgx.ErrNoRows), apperr.ReasonNotFound},
		{"deadline", context.DeadlineExceeded, apperr.ReasonTransientIO},
		{"cancellation", context.Canceled, apperr.ReasonTransientIO},
		{"unique_violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, apperr.ReasonConflict},
		{"connection_failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, apperr.ReasonTransientIO},
		{"query_canceled", &pgconn.PgError{Code: pgerrcode.QueryCanceled}, apperr.ReasonTransientIO},
		{"anything_else", errors.New("disk on fire"), apperr.ReasonFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := dberr.Wrap(tt.err, "Session")
			assert.True(t, apperr.IsReason(wrapped, tt.reason))
		})
	}
}

/*
TestWrap_Nil verifies that success passes through untouched.
*/
func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, dberr.Wrap(nil, "Session"))
}

/*
TestWrap_AlreadyClassified verifies that an error carrying a classification
keeps it instead of collapsing to Fatal on the second pass.
*/
func TestWrap_AlreadyClassified(t *testing.T) {
	classified := apperr.NotFound("Session")

	wrapped := dberr.Wrap(classified, "Session")
	assert.Same(t, classified, wrapped)

	rewrapped := dberr.Wrap(fmt.Errorf("outer: %w", apperr.Expired("Session")), "Session")
	assert.True(t, apperr.IsReason(rewrapped, apperr.ReasonExpired))
}
