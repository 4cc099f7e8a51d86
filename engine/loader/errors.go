package loader

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OrderError reports the order and entity whose write aborted a batch.
// The whole batch has been rolled back when it is returned.
type OrderError struct {
	OrderID string
	Source  string
	Entity  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("load order %s: write %s: %v", e.OrderID, e.Entity, e.Err)
	}
	return fmt.Sprintf("load order %s (%s): write %s: %v", e.OrderID, e.Source, e.Entity, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a connectivity or contention failure
// after which retrying the whole batch may succeed. Constraint and type
// errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return true
		case pgErr.Code == pgerrcode.SerializationFailure, pgErr.Code == pgerrcode.DeadlockDetected:
			return true
		default:
			return false
		}
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		default:
			return false
		}
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// errorFields extracts store diagnostics for structured logs.
func errorFields(err error) []any {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields := []any{"sqlstate", pgErr.Code}
		if pgErr.ConstraintName != "" {
			fields = append(fields, "constraint", pgErr.ConstraintName)
		}
		if pgErr.TableName != "" {
			fields = append(fields, "table", pgErr.TableName)
		}
		return fields
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return []any{"sqlite_code", sqliteErr.Code()}
	}
	return nil
}
