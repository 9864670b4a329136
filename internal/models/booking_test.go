package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestBooking_CanTransitionTo(t *testing.T) {
	b := Booking{Status: StatusBooked}
	assert.True(t, b.CanTransitionTo(StatusCompleted))
	assert.True(t, b.CanTransitionTo(StatusCancelled))
	assert.True(t, b.CanTransitionTo(StatusNoShow))
	assert.False(t, b.CanTransitionTo(StatusBooked))
	assert.False(t, b.CanTransitionTo("unknown"))

	// Terminal states allow nothing.
	for _, status := range []string{StatusCompleted, StatusCancelled, StatusNoShow} {
		terminal := Booking{Status: status}
		assert.False(t, terminal.CanTransitionTo(StatusCancelled), status)
		assert.True(t, terminal.IsTerminal(), status)
	}
}

func TestBooking_HoldsCapacity(t *testing.T) {
	assert.True(t, (&Booking{Status: StatusBooked}).HoldsCapacity())
	assert.True(t, (&Booking{Status: StatusCompleted}).HoldsCapacity())
	assert.False(t, (&Booking{Status: StatusCancelled}).HoldsCapacity())
	assert.False(t, (&Booking{Status: StatusNoShow}).HoldsCapacity())
}

func TestBooking_EndsAt(t *testing.T) {
	b := Booking{StartsAt: datetime(2025, 3, 4, 10, 0)}
	assert.Equal(t, datetime(2025, 3, 4, 11, 0), b.EndsAt(60*time.Minute))
}

func TestSlotDefinition_EffectiveOn(t *testing.T) {
	open := SlotDefinition{EffectiveFrom: "2024-01-01"}
	assert.False(t, open.EffectiveOn("2023-12-31"))
	assert.True(t, open.EffectiveOn("2024-01-01"))
	assert.True(t, open.EffectiveOn("2030-06-15"))

	bounded := SlotDefinition{EffectiveFrom: "2024-01-01", EffectiveUntil: "2024-06-30"}
	assert.True(t, bounded.EffectiveOn("2024-06-30"))
	assert.False(t, bounded.EffectiveOn("2024-07-01"))
}

func TestEnrollment_CoversDate(t *testing.T) {
	e := Enrollment{Status: EnrollmentActive, ExpiryDate: "2025-03-20"}
	assert.True(t, e.IsActive())
	assert.True(t, e.CoversDate("2025-03-20"))
	assert.False(t, e.CoversDate("2025-03-21"))

	suspended := Enrollment{Status: EnrollmentSuspended}
	assert.False(t, suspended.IsActive())
}
