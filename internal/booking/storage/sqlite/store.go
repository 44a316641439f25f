// Package sqlite provides the SQLite-backed store implementing the booking
// storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/storage/sqlite/migrations"
	"github.com/airstriplabs/slotbook/internal/platform/storage/sqlitemigrate"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing the event journal, the
// outboxes, the read model and the watermarks in one database.
type Store struct {
	sqlDB         *sql.DB
	eventRegistry *event.Registry

	propagationOutboxEnabled     bool
	projectionApplyOutboxEnabled bool
}

// Option configures store behavior.
type Option func(*Store)

// WithPropagationOutboxEnabled toggles enqueueing propagation work for
// appended slot events.
func WithPropagationOutboxEnabled(enabled bool) Option {
	return func(s *Store) {
		s.propagationOutboxEnabled = enabled
	}
}

// WithProjectionApplyOutboxEnabled toggles enqueueing projection-apply work
// for appended participant-slot events.
func WithProjectionApplyOutboxEnabled(enabled bool) Option {
	return func(s *Store) {
		s.projectionApplyOutboxEnabled = enabled
	}
}

// Open opens a SQLite booking store at the provided path and applies embedded
// migrations before the store is handed to higher layers.
func Open(path string, registry *event.Registry, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("event registry is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.BookingFS, "booking"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &Store{
		sqlDB:         sqlDB,
		eventRegistry: registry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Close closes the underlying SQLite database. Nil-safe so callers can defer
// it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

const (
	maxBusyRetries     = 8
	busyRetryBaseDelay = 10 * time.Millisecond
)

// withBusyRetry retries fn while SQLite reports the database busy or locked.
// Any other error returns immediately.
func withBusyRetry(ctx context.Context, fn func() error) error {
	var lastBusyErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		lastBusyErr = err
		if attempt >= maxBusyRetries {
			return fmt.Errorf("sqlite remained busy after %d retries: %w", maxBusyRetries, lastBusyErr)
		}

		delay := time.Duration(attempt+1) * busyRetryBaseDelay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
