package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorbook/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSlot(t *testing.T, db *DB, maxOccupants int) *models.SlotDefinition {
	t.Helper()
	slot := &models.SlotDefinition{
		BatchID:         1,
		TutorID:         10,
		TutorName:       "Alice",
		DayOfWeek:       2,
		StartTime:       "10:00",
		DurationMinutes: 60,
		MaxOccupants:    maxOccupants,
		Timezone:        "Australia/Sydney",
		EffectiveFrom:   "2024-01-01",
		IsActive:        true,
	}
	require.NoError(t, db.CreateSlot(context.Background(), slot))
	return slot
}

func seedEnrollment(t *testing.T, db *DB, studentID int64) *models.Enrollment {
	t.Helper()
	e := &models.Enrollment{
		StudentID:       studentID,
		BatchID:         1,
		ExpiryDate:      "2026-12-31",
		SessionsAllowed: 20,
	}
	require.NoError(t, db.CreateEnrollment(context.Background(), e))
	return e
}

func attrsAt(startsAt time.Time) BookingAttrs {
	return BookingAttrs{StartsAt: startsAt, BookingType: models.TypeSingle}
}

func TestCreateSlot_UniqueActivePattern(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedSlot(t, db, 2)

	dup := &models.SlotDefinition{
		BatchID: 2, TutorID: 10, DayOfWeek: 2, StartTime: "10:00",
		DurationMinutes: 60, MaxOccupants: 1, Timezone: "UTC",
		EffectiveFrom: "2024-01-01", IsActive: true,
	}
	assert.ErrorIs(t, db.CreateSlot(ctx, dup), ErrDuplicateSlot)

	// Same tutor, different time is fine.
	dup.StartTime = "11:00"
	assert.NoError(t, db.CreateSlot(ctx, dup))

	// Deactivated patterns do not block new ones.
	require.NoError(t, db.SetSlotActive(ctx, dup.ID, false))
	again := *dup
	again.ID = 0
	assert.NoError(t, db.CreateSlot(ctx, &again))
}

func TestInsertBookingIfAbsent_Uniqueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 5)
	enr := seedEnrollment(t, db, 100)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	first, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", enr.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, first.Status)
	assert.Equal(t, "2025-03-04", first.OccurrenceDate)

	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", enr.ID, slot.MaxOccupants, attrsAt(startsAt))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	// A different week is a different occurrence.
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-11", enr.ID, slot.MaxOccupants, attrsAt(startsAt.AddDate(0, 0, 7)))
	assert.NoError(t, err)
}

func TestInsertBookingIfAbsent_Capacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 2)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	a := seedEnrollment(t, db, 100)
	b := seedEnrollment(t, db, 101)
	c := seedEnrollment(t, db, 102)

	_, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", a.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", b.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)

	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", c.ID, slot.MaxOccupants, attrsAt(startsAt))
	assert.ErrorIs(t, err, ErrCapacityFull)

	count, err := db.CountBookings(ctx, slot.ID, "2025-03-04", models.CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInsertBookingIfAbsent_RetryOnFullOccurrence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 2)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	a := seedEnrollment(t, db, 100)
	b := seedEnrollment(t, db, 101)

	_, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", a.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", b.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)

	// The occurrence is full, but a holder's retry is a duplicate, not a
	// capacity conflict: their own spot never counts against them.
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", a.ID, slot.MaxOccupants, attrsAt(startsAt))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	// A completed booking still holds the spot and still reads as held.
	held, err := db.ListBookings(ctx, BookingFilter{SlotID: slot.ID, EnrollmentID: a.ID})
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.NoError(t, db.MarkBookingStatus(ctx, held[0].ID, models.StatusCompleted))

	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", a.ID, slot.MaxOccupants, attrsAt(startsAt))
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	// No extra row was written along the way.
	count, err := db.CountBookings(ctx, slot.ID, "2025-03-04", models.CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCancelBooking_FreesCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 1)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	a := seedEnrollment(t, db, 100)
	b := seedEnrollment(t, db, 101)

	booking, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", a.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)

	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", b.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.ErrorIs(t, err, ErrCapacityFull)

	require.NoError(t, db.CancelBooking(ctx, booking.ID, "student", "sick", time.Now()))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "student", got.CancelledBy)
	assert.Equal(t, "sick", got.CancelReason)
	assert.NotNil(t, got.CancelledAt)

	// The freed spot is bookable again, including by the same enrollment.
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", b.ID, slot.MaxOccupants, attrsAt(startsAt))
	assert.NoError(t, err)
}

func TestCancelBooking_TerminalStates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 1)
	enr := seedEnrollment(t, db, 100)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	booking, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", enr.ID, slot.MaxOccupants, attrsAt(startsAt))
	require.NoError(t, err)

	require.NoError(t, db.CancelBooking(ctx, booking.ID, "admin", "test", time.Now()))

	// No transition out of a terminal state, and no un-cancelling.
	assert.ErrorIs(t, db.CancelBooking(ctx, booking.ID, "admin", "again", time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, db.MarkBookingStatus(ctx, booking.ID, models.StatusCompleted), ErrInvalidTransition)

	assert.ErrorIs(t, db.CancelBooking(ctx, 99999, "admin", "x", time.Now()), ErrNotFound)
}

func TestInsertBookingIfAbsent_ConcurrentLastSpot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 1)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	const racers = 4
	enrollments := make([]*models.Enrollment, racers)
	for i := range enrollments {
		enrollments[i] = seedEnrollment(t, db, int64(200+i))
	}

	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", enrollments[i].ID, slot.MaxOccupants, attrsAt(startsAt))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrCapacityFull)
		}
	}
	assert.Equal(t, 1, winners)

	count, err := db.CountBookings(ctx, slot.ID, "2025-03-04", models.CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListBookings_Filter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 5)
	enr := seedEnrollment(t, db, 100)
	startsAt := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)

	dates := []string{"2025-03-04", "2025-03-11", "2025-03-18"}
	for i, d := range dates {
		_, err := db.InsertBookingIfAbsent(ctx, slot.ID, d, enr.ID, slot.MaxOccupants,
			BookingAttrs{StartsAt: startsAt.AddDate(0, 0, 7*i), BookingType: models.TypeWeekly, PackageGroupID: "grp-1"})
		require.NoError(t, err)
	}

	all, err := db.ListBookings(ctx, BookingFilter{SlotID: slot.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ranged, err := db.ListBookings(ctx, BookingFilter{SlotID: slot.ID, DateFrom: "2025-03-10", DateTo: "2025-03-18"})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	grouped, err := db.ListBookings(ctx, BookingFilter{PackageGroup: "grp-1"})
	require.NoError(t, err)
	assert.Len(t, grouped, 3)

	cancelled, err := db.ListBookings(ctx, BookingFilter{Statuses: []string{models.StatusCancelled}})
	require.NoError(t, err)
	assert.Empty(t, cancelled)
}

func TestListFutureBooked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 5)
	enr := seedEnrollment(t, db, 100)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	past, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-04", enr.ID, slot.MaxOccupants, attrsAt(now.AddDate(0, 0, -6)))
	require.NoError(t, err)
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-11", enr.ID, slot.MaxOccupants, attrsAt(now.AddDate(0, 0, 1)))
	require.NoError(t, err)
	_, err = db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-18", enr.ID, slot.MaxOccupants, attrsAt(now.AddDate(0, 0, 8)))
	require.NoError(t, err)

	future, err := db.ListFutureBooked(ctx, slot.ID, now)
	require.NoError(t, err)
	require.Len(t, future, 2)
	assert.Equal(t, "2025-03-11", future[0].OccurrenceDate)
	assert.Equal(t, "2025-03-18", future[1].OccurrenceDate)

	// Cancelled bookings fall out of the cascade set.
	require.NoError(t, db.CancelBooking(ctx, future[0].ID, "system", "slot removed", now))
	remaining, err := db.ListFutureBooked(ctx, slot.ID, now)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	_ = past
}

func TestCompletePastBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slot := seedSlot(t, db, 5) // 60 minutes
	enr := seedEnrollment(t, db, 100)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	ended, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-10", enr.ID, slot.MaxOccupants, attrsAt(now.Add(-2*time.Hour)))
	require.NoError(t, err)
	running, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-11", enr.ID, slot.MaxOccupants, attrsAt(now.Add(-30*time.Minute)))
	require.NoError(t, err)
	upcoming, err := db.InsertBookingIfAbsent(ctx, slot.ID, "2025-03-18", enr.ID, slot.MaxOccupants, attrsAt(now.Add(48*time.Hour)))
	require.NoError(t, err)

	swept, err := db.CompletePastBookings(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	got, err := db.GetBooking(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.Attended)

	for _, id := range []int64{running.ID, upcoming.ID} {
		got, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBooked, got.Status)
	}
}

func TestIncrementSessionsUsed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	enr := seedEnrollment(t, db, 100)

	require.NoError(t, db.IncrementSessionsUsed(ctx, enr.ID))
	require.NoError(t, db.IncrementSessionsUsed(ctx, enr.ID))

	got, err := db.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SessionsUsed)

	assert.ErrorIs(t, db.IncrementSessionsUsed(ctx, 9999), ErrNotFound)
}
