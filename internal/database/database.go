// Package database implements the slot/enrollment store on sqlite.
//
// The two correctness-critical guarantees of the booking engine live here:
// a partial unique index keeps at most one capacity-holding booking per
// (slot, occurrence date, enrollment), and a single conditional INSERT
// enforces max occupancy against simultaneous writers. sqlite serializes
// writes, so neither guarantee depends on check-then-insert sequences.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection for the booking engine.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrNotFound is returned when a slot, enrollment or booking is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyBooked is returned when a capacity-holding booking already
	// exists for the same (slot, occurrence date, enrollment) tuple.
	ErrAlreadyBooked = errors.New("already booked")

	// ErrCapacityFull is returned when the occurrence has no spots left.
	ErrCapacityFull = errors.New("capacity exhausted")

	// ErrDuplicateSlot is returned when an active slot already exists for
	// the same (tutor, day of week, start time).
	ErrDuplicateSlot = errors.New("active slot already exists for tutor at this time")

	// ErrInvalidTransition is returned when a status update is attempted
	// from a terminal state.
	ErrInvalidTransition = errors.New("booking is not in a cancellable state")
)

// NewDB opens the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode and a busy timeout so concurrent booking attempts queue up
	// instead of failing immediately.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		// Recurring slot definitions
		`CREATE TABLE IF NOT EXISTS slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id INTEGER NOT NULL,
			tutor_id INTEGER NOT NULL,
			tutor_name TEXT NOT NULL DEFAULT '',
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 60,
			max_occupants INTEGER NOT NULL DEFAULT 1,
			timezone TEXT NOT NULL,
			effective_from TEXT NOT NULL,
			effective_until TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Enrollments (read-mostly; owned by the surrounding CRUD layer)
		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id INTEGER NOT NULL,
			student_name TEXT NOT NULL DEFAULT '',
			batch_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			expiry_date TEXT NOT NULL,
			sessions_used INTEGER NOT NULL DEFAULT 0,
			sessions_allowed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bookings, keyed by local occurrence date
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot_id INTEGER NOT NULL,
			enrollment_id INTEGER NOT NULL,
			occurrence_date TEXT NOT NULL,
			starts_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'booked',
			booking_type TEXT NOT NULL DEFAULT 'single',
			package_group_id TEXT,
			package_end_date TEXT,
			attended BOOLEAN NOT NULL DEFAULT 0,
			cancelled_by TEXT,
			cancel_reason TEXT,
			cancelled_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (slot_id) REFERENCES slots(id),
			FOREIGN KEY (enrollment_id) REFERENCES enrollments(id)
		)`,

		// Audit trail of engine actions
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			details TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One active recurrence per (tutor, weekday, time)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_tutor_unique
			ON slots(tutor_id, day_of_week, start_time) WHERE is_active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_slots_batch ON slots(batch_id, is_active)`,

		// The uniqueness invariant: at most one capacity-holding booking
		// per (slot, occurrence date, enrollment)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_unique_active
			ON bookings(slot_id, occurrence_date, enrollment_id)
			WHERE status IN ('booked', 'completed')`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot_date ON bookings(slot_id, occurrence_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_enrollment ON bookings(enrollment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func statusPlaceholders(statuses []string) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = s
	}
	return strings.Join(marks, ", "), args
}
