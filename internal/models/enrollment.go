package models

import "time"

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentExpired   = "expired"
	EnrollmentSuspended = "suspended"
)

// Enrollment is a student's time-boxed access grant to a batch of slots.
// Identity management lives outside this service; the engine only reads
// expiry and status and bumps the consumed-session counter.
type Enrollment struct {
	ID              int64     `json:"id"`
	StudentID       int64     `json:"student_id"`
	StudentName     string    `json:"student_name"`
	BatchID         int64     `json:"batch_id"`
	Status          string    `json:"status"`
	ExpiryDate      string    `json:"expiry_date"` // "YYYY-MM-DD"
	SessionsUsed    int       `json:"sessions_used"`
	SessionsAllowed int       `json:"sessions_allowed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsActive reports whether the enrollment can make bookings at all.
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentActive
}

// CoversDate reports whether the enrollment is valid on the given local date.
func (e *Enrollment) CoversDate(localDate string) bool {
	return localDate <= e.ExpiryDate
}
