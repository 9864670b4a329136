package models

import "time"

// Booking statuses. A booking starts as booked and moves to exactly one
// terminal state; there is no transition out of a terminal state.
const (
	StatusBooked    = "booked"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Booking types.
const (
	TypeSingle = "single"
	TypeWeekly = "weekly"
)

// CapacityStatuses are the statuses that hold a spot on an occurrence.
// Cancelled and no-show bookings free the spot.
var CapacityStatuses = []string{StatusBooked, StatusCompleted}

// Booking is a reservation of one occurrence by one enrollment.
type Booking struct {
	ID             int64      `json:"id"`
	SlotID         int64      `json:"slot_id"`
	EnrollmentID   int64      `json:"enrollment_id"`
	OccurrenceDate string     `json:"occurrence_date"` // local calendar date, "YYYY-MM-DD"
	StartsAt       time.Time  `json:"starts_at"`       // absolute instant, stored in UTC
	Status         string     `json:"status"`
	BookingType    string     `json:"booking_type"`
	PackageGroupID string     `json:"package_group_id,omitempty"` // links bookings of one weekly package
	PackageEndDate string     `json:"package_end_date,omitempty"`
	Attended       bool       `json:"attended"`
	CancelledBy    string     `json:"cancelled_by,omitempty"` // "student", "admin", "system"
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the booking reached a final state.
func (b *Booking) IsTerminal() bool {
	return b.Status != StatusBooked
}

// HoldsCapacity reports whether the booking occupies a spot.
func (b *Booking) HoldsCapacity() bool {
	return b.Status == StatusBooked || b.Status == StatusCompleted
}

// CanTransitionTo validates the booking state machine:
// booked -> {completed | cancelled | no_show}.
func (b *Booking) CanTransitionTo(status string) bool {
	if b.Status != StatusBooked {
		return false
	}
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// EndsAt returns the end instant given the owning slot's duration.
func (b *Booking) EndsAt(duration time.Duration) time.Time {
	return b.StartsAt.Add(duration)
}
