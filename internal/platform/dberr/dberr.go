// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nmdang/aegia/internal/platform/apperr"
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the caller while classifying the
// error per the core taxonomy.
func Wrap(err error, resource string) error {
	if err == nil {
		return nil
	}

	// Already-classified errors pass through unchanged, so repository
	// helpers can layer without re-classifying each other's results.
	if apperr.IsAppError(err) {
		return err
	}

	// 1. Not Found mapping.
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	// 2. Timeouts and cancellations are transient; the caller may retry.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Transient(err)
	}

	// 3. SQLSTATE classification.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return apperr.Conflict(resource + " already exists")
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgErr.Code == pgerrcode.QueryCanceled:
			return apperr.Transient(err)
		}
	}

	// 4. Everything else is a fatal store failure.
	return apperr.Fatal(err)
}
