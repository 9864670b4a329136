package database

import (
	"context"
	"database/sql"
	"time"

	"tutorbook/internal/models"
)

// CreateEnrollment inserts an enrollment record. Enrollment lifecycle is
// owned by the surrounding application; the engine only needs reads and the
// consumed-session counter.
func (db *DB) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	now := time.Now().UTC()
	if e.Status == "" {
		e.Status = models.EnrollmentActive
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO enrollments (
			student_id, student_name, batch_id, status, expiry_date,
			sessions_used, sessions_allowed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StudentID, e.StudentName, e.BatchID, e.Status, e.ExpiryDate,
		e.SessionsUsed, e.SessionsAllowed, now, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetEnrollment returns an enrollment by id.
func (db *DB) GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error) {
	var e models.Enrollment
	err := db.QueryRowContext(ctx, `
		SELECT id, student_id, student_name, batch_id, status, expiry_date,
		       sessions_used, sessions_allowed, created_at, updated_at
		FROM enrollments WHERE id = ?`,
		id,
	).Scan(
		&e.ID, &e.StudentID, &e.StudentName, &e.BatchID, &e.Status, &e.ExpiryDate,
		&e.SessionsUsed, &e.SessionsAllowed, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// IncrementSessionsUsed bumps the consumed-session counter after a
// successful booking.
func (db *DB) IncrementSessionsUsed(ctx context.Context, enrollmentID int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE enrollments
		SET sessions_used = sessions_used + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), enrollmentID,
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
