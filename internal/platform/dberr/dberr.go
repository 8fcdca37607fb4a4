// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/yomira/internal/platform/apperr"
)

// writeRetryBackoff is the fixed pause before the single retry [Retry] grants
// a write that hit transient contention.
const writeRetryBackoff = 200 * time.Millisecond

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Postgres SQLSTATE codes this package classifies explicitly.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateSerializationFail   = "40001"
	sqlStateDeadlockDetected    = "40P01"
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Caller cancelled or the deadline lapsed mid-query.
	if errors.Is(err, context.Canceled) {
		return apperr.Cancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.StoreBusy(err)
	}

	// 3. Constraint/contention classification via SQLSTATE.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return apperr.Conflict(action + " conflicts with an existing record")
		case sqlStateForeignKeyViolation:
			return apperr.Unprocessable(action + " references a record that does not exist")
		case sqlStateSerializationFail, sqlStateDeadlockDetected:
			return apperr.StoreBusy(err)
		}
		return apperr.StoreFatal(err)
	}

	// 4. Anything else (driver/network failure) is non-recoverable for this call.
	return apperr.StoreFatal(err)
}

// Retry runs fn and wraps its result through [Wrap]. If that classifies as
// [apperr.StoreBusy] — transient write contention, not a fatal or not-found
// error — it waits writeRetryBackoff and runs fn exactly once more, returning
// whatever that second attempt produces. Any other classification is
// returned immediately with no retry: contention is the only failure mode
// this package considers transient.
func Retry(ctx context.Context, action string, fn func() error) error {
	wrapped := Wrap(fn(), action)
	if !isStoreBusy(wrapped) {
		return wrapped
	}

	select {
	case <-time.After(writeRetryBackoff):
	case <-ctx.Done():
		return wrapped
	}

	return Wrap(fn(), action)
}

func isStoreBusy(err error) bool {
	appErr, ok := err.(*apperr.AppError)
	return ok && appErr.Code == "STORE_BUSY"
}
