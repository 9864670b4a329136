package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"tutorbook/internal/models"
)

const slotColumns = `id, batch_id, tutor_id, tutor_name, day_of_week, start_time,
	duration_minutes, max_occupants, timezone, effective_from, effective_until,
	is_active, created_at, updated_at`

// CreateSlot inserts a slot definition. The partial unique index rejects a
// second active slot for the same (tutor, day of week, start time).
func (db *DB) CreateSlot(ctx context.Context, s *models.SlotDefinition) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO slots (
			batch_id, tutor_id, tutor_name, day_of_week, start_time,
			duration_minutes, max_occupants, timezone, effective_from,
			effective_until, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.BatchID, s.TutorID, s.TutorName, s.DayOfWeek, s.StartTime,
		s.DurationMinutes, s.MaxOccupants, s.Timezone, s.EffectiveFrom,
		nullString(s.EffectiveUntil), s.IsActive, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetSlot returns a slot definition by id.
func (db *DB) GetSlot(ctx context.Context, id int64) (*models.SlotDefinition, error) {
	row := db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	return scanSlot(row)
}

// ListActiveSlots returns all active slot definitions of a batch.
func (db *DB) ListActiveSlots(ctx context.Context, batchID int64) ([]models.SlotDefinition, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE batch_id = ? AND is_active = 1
		ORDER BY day_of_week, start_time`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.SlotDefinition
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

// UpdateSlot rewrites the mutable fields of a slot definition.
func (db *DB) UpdateSlot(ctx context.Context, s *models.SlotDefinition) error {
	res, err := db.ExecContext(ctx, `
		UPDATE slots
		SET tutor_id = ?, tutor_name = ?, day_of_week = ?, start_time = ?,
		    duration_minutes = ?, max_occupants = ?, timezone = ?,
		    effective_from = ?, effective_until = ?, updated_at = ?
		WHERE id = ?`,
		s.TutorID, s.TutorName, s.DayOfWeek, s.StartTime,
		s.DurationMinutes, s.MaxOccupants, s.Timezone,
		s.EffectiveFrom, nullString(s.EffectiveUntil), time.Now().UTC(),
		s.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSlotActive flips the soft-delete flag. Slots with booking history are
// never physically deleted.
func (db *DB) SetSlotActive(ctx context.Context, id int64, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE slots SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row rowScanner) (*models.SlotDefinition, error) {
	var s models.SlotDefinition
	var effectiveUntil sql.NullString
	err := row.Scan(
		&s.ID, &s.BatchID, &s.TutorID, &s.TutorName, &s.DayOfWeek, &s.StartTime,
		&s.DurationMinutes, &s.MaxOccupants, &s.Timezone, &s.EffectiveFrom,
		&effectiveUntil, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if effectiveUntil.Valid {
		s.EffectiveUntil = effectiveUntil.String
	}
	return &s, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
