package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability_CapacityMath(t *testing.T) {
	slot := sydneySlot() // max occupants 2
	occ := Occurrence{SlotID: slot.ID, LocalDate: "2025-03-04", DayOfWeek: 2}
	ok := Decision{OK: true}

	tests := []struct {
		name        string
		bookedCount int
		decision    Decision
		isPast      bool
		wantSpots   int
		wantOpen    bool
	}{
		{"empty occurrence", 0, ok, false, 2, true},
		{"one booked", 1, ok, false, 1, true},
		{"full", 2, ok, false, 0, false},
		{"overfull clamps to zero", 3, ok, false, 0, false},
		{"ineligible hides spots", 0, Decision{Reason: "occurrence is in the past"}, false, 2, false},
		{"past occurrence", 0, ok, true, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := occ
			o.IsPast = tt.isPast
			got := Availability(slot, o, tt.bookedCount, tt.decision)
			assert.Equal(t, tt.wantSpots, got.AvailableSpots)
			assert.Equal(t, tt.wantOpen, got.Available)
			assert.Equal(t, tt.bookedCount, got.BookedCount)
		})
	}
}

func TestAvailability_FullReason(t *testing.T) {
	slot := sydneySlot()
	got := Availability(slot, Occurrence{}, 2, Decision{OK: true})
	assert.Equal(t, "no spots left", got.Reason)
}

func TestBuildWeekView(t *testing.T) {
	weekStart := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	tuesdaySlot := sydneySlot()
	fridaySlot := sydneySlot()
	fridaySlot.ID = 2
	fridaySlot.DayOfWeek = 5
	lateTuesday := sydneySlot()
	lateTuesday.ID = 3
	lateTuesday.StartTime = "18:00"

	entries := []SlotAvailability{
		{Slot: lateTuesday, Occurrence: Occurrence{SlotID: 3, DayOfWeek: 2, LocalDate: "2025-03-04", LocalTime: "18:00"}},
		{Slot: fridaySlot, Occurrence: Occurrence{SlotID: 2, DayOfWeek: 5, LocalDate: "2025-03-07", LocalTime: "10:00"}},
		{Slot: tuesdaySlot, Occurrence: Occurrence{SlotID: 1, DayOfWeek: 2, LocalDate: "2025-03-04", LocalTime: "10:00"}},
	}

	view, err := BuildWeekView(weekStart, "UTC", entries)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-03", view.WeekStart)
	assert.Len(t, view.Days, 7)
	assert.Len(t, view.Flat, 3)

	tuesday := view.Days[1]
	assert.Equal(t, "Tuesday", tuesday.Day)
	assert.Equal(t, "2025-03-04", tuesday.Date)
	require.Len(t, tuesday.Slots, 2)
	// Ordered by local time within the day.
	assert.Equal(t, int64(1), tuesday.Slots[0].Slot.ID)
	assert.Equal(t, int64(3), tuesday.Slots[1].Slot.ID)

	friday := view.Days[4]
	assert.Equal(t, "Friday", friday.Day)
	require.Len(t, friday.Slots, 1)

	monday := view.Days[0]
	assert.Empty(t, monday.Slots)
}
