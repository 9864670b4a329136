package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutorbook/internal/models"
)

const bookingColumns = `id, slot_id, enrollment_id, occurrence_date, starts_at, status,
	booking_type, package_group_id, package_end_date, attended,
	cancelled_by, cancel_reason, cancelled_at, created_at, updated_at`

// BookingAttrs carries the write-time attributes of a new booking.
type BookingAttrs struct {
	StartsAt       time.Time // absolute occurrence instant, stored in UTC
	BookingType    string
	PackageGroupID string
	PackageEndDate string
}

// BookingFilter selects bookings in ListBookings. Zero-valued fields are
// ignored.
type BookingFilter struct {
	SlotID       int64
	EnrollmentID int64
	Statuses     []string
	DateFrom     string // inclusive, "YYYY-MM-DD"
	DateTo       string // inclusive
	PackageGroup string
}

// InsertBookingIfAbsent atomically creates a booking for an occurrence.
//
// Capacity is enforced by the conditional INSERT: the row is only written
// while the occurrence's capacity-holding bookings number fewer than
// maxOccupants. Uniqueness is enforced by the partial unique index. Both
// checks happen inside a single serialized sqlite write, so concurrent
// callers cannot overbook and at most one of two identical requests wins.
//
// The count excludes the requesting enrollment's own row so that a retry
// against a full occurrence still reaches the unique index and reports
// "already booked" rather than "full": the requester holding one of the
// spots is never a capacity conflict.
//
// Returns ErrAlreadyBooked when the enrollment already holds the occurrence
// and ErrCapacityFull when no spots remain.
func (db *DB) InsertBookingIfAbsent(ctx context.Context, slotID int64, occurrenceDate string, enrollmentID int64, maxOccupants int, attrs BookingAttrs) (*models.Booking, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO bookings (
			slot_id, enrollment_id, occurrence_date, starts_at, status,
			booking_type, package_group_id, package_end_date, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, 'booked', ?, ?, ?, ?, ?
		WHERE (
			SELECT COUNT(*) FROM bookings
			WHERE slot_id = ? AND occurrence_date = ?
			  AND status IN ('booked', 'completed')
			  AND enrollment_id != ?
		) < ?`,
		slotID, enrollmentID, occurrenceDate, attrs.StartsAt.UTC(), attrs.BookingType,
		nullString(attrs.PackageGroupID), nullString(attrs.PackageEndDate), now, now,
		slotID, occurrenceDate, enrollmentID, maxOccupants,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyBooked
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrCapacityFull
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// CountBookings counts bookings of a slot on a local date with any of the
// given statuses. The capacity aggregator calls this with CapacityStatuses.
func (db *DB) CountBookings(ctx context.Context, slotID int64, occurrenceDate string, statuses []string) (int, error) {
	if len(statuses) == 0 {
		statuses = models.CapacityStatuses
	}
	marks, args := statusPlaceholders(statuses)

	query := `SELECT COUNT(*) FROM bookings WHERE slot_id = ? AND occurrence_date = ? AND status IN (` + marks + `)`
	full := append([]interface{}{slotID, occurrenceDate}, args...)

	var count int
	err := db.QueryRowContext(ctx, query, full...).Scan(&count)
	return count, err
}

// CancelBooking moves a booking from booked to cancelled, recording who
// cancelled it and why. The guarded UPDATE makes the transition atomic:
// a booking racing into another terminal state loses exactly one of the
// two updates.
func (db *DB) CancelBooking(ctx context.Context, id int64, cancelledBy, reason string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_by = ?, cancel_reason = ?,
		    cancelled_at = ?, updated_at = ?
		WHERE id = ? AND status = 'booked'`,
		cancelledBy, reason, at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return err
	}
	return db.transitionOutcome(ctx, res, id)
}

// MarkBookingStatus moves a booking from booked to completed or no_show.
// Completed bookings are flagged as attended.
func (db *DB) MarkBookingStatus(ctx context.Context, id int64, status string) error {
	if status != models.StatusCompleted && status != models.StatusNoShow {
		return fmt.Errorf("unsupported status transition to %q", status)
	}
	attended := status == models.StatusCompleted

	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, attended = ?, updated_at = ?
		WHERE id = ? AND status = 'booked'`,
		status, attended, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return db.transitionOutcome(ctx, res, id)
}

// transitionOutcome distinguishes "row missing" from "row already terminal"
// after a guarded status update touched zero rows.
func (db *DB) transitionOutcome(ctx context.Context, res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := db.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// ListBookings returns bookings matching the filter, newest occurrence first.
func (db *DB) ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []interface{}

	if filter.SlotID != 0 {
		query += ` AND slot_id = ?`
		args = append(args, filter.SlotID)
	}
	if filter.EnrollmentID != 0 {
		query += ` AND enrollment_id = ?`
		args = append(args, filter.EnrollmentID)
	}
	if len(filter.Statuses) > 0 {
		marks, statusArgs := statusPlaceholders(filter.Statuses)
		query += ` AND status IN (` + marks + `)`
		args = append(args, statusArgs...)
	}
	if filter.DateFrom != "" {
		query += ` AND occurrence_date >= ?`
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		query += ` AND occurrence_date <= ?`
		args = append(args, filter.DateTo)
	}
	if filter.PackageGroup != "" {
		query += ` AND package_group_id = ?`
		args = append(args, filter.PackageGroup)
	}
	query += ` ORDER BY occurrence_date DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// ListFutureBooked returns the still-booked occurrences of a slot starting
// after the given instant. Used by the deactivation cascade.
func (db *DB) ListFutureBooked(ctx context.Context, slotID int64, after time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE slot_id = ? AND status = 'booked' AND starts_at > ?
		ORDER BY starts_at`,
		slotID, after.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// CompletePastBookings marks every booked occurrence whose end instant has
// passed as completed, in one statement. Returns the number of rows swept.
func (db *DB) CompletePastBookings(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'completed', attended = 1, updated_at = ?
		WHERE status = 'booked' AND id IN (
			SELECT b.id FROM bookings b
			JOIN slots s ON s.id = b.slot_id
			WHERE b.status = 'booked'
			  AND datetime(b.starts_at, '+' || s.duration_minutes || ' minutes') <= datetime(?)
		)`,
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var groupID, endDate, cancelledBy, cancelReason sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.SlotID, &b.EnrollmentID, &b.OccurrenceDate, &b.StartsAt, &b.Status,
		&b.BookingType, &groupID, &endDate, &b.Attended,
		&cancelledBy, &cancelReason, &cancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		b.PackageGroupID = groupID.String
	}
	if endDate.Valid {
		b.PackageEndDate = endDate.String
	}
	if cancelledBy.Valid {
		b.CancelledBy = cancelledBy.String
	}
	if cancelReason.Valid {
		b.CancelReason = cancelReason.String
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}
