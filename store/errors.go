package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means no order has the requested id. Not retryable.
	ErrNotFound = errors.New("order not found")
	// ErrTransientIO marks connection-class failures that are safe to retry
	ErrTransientIO = errors.New("transient store failure")
	// ErrPreconditionFailed means the order changed since the caller read it
	ErrPreconditionFailed = errors.New("order was modified concurrently")
)

// Postgres SQLSTATE codes that indicate a retryable condition
var transientSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// classify maps driver errors onto the store's sentinel errors
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransientIO) || errors.Is(err, ErrPreconditionFailed) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if transient(err) {
		return fmt.Errorf("%w: %w", ErrTransientIO, err)
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	return pgconn.SafeToRetry(err)
}

// errorClass is the metric label for a classified error
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientIO):
		return "transient"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition"
	default:
		return "other"
	}
}
