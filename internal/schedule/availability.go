package schedule

import (
	"sort"
	"time"

	"tutorbook/internal/models"
)

// SlotAvailability is the per-occurrence availability view: resolver output
// merged with live capacity and the eligibility decision.
type SlotAvailability struct {
	Slot           *models.SlotDefinition `json:"slot"`
	Occurrence     Occurrence             `json:"occurrence"`
	BookedCount    int                    `json:"booked_count"`
	AvailableSpots int                    `json:"available_spots"`
	Available      bool                   `json:"available"`
	Reason         string                 `json:"reason,omitempty"`
}

// DayAvailability groups a day's occurrences for calendar-style rendering.
type DayAvailability struct {
	Day   string             `json:"day"`
	Date  string             `json:"date"`
	Slots []SlotAvailability `json:"slots"`
}

// WeekView is the availability response for one week: a day-grouped view for
// display plus the flat list for programmatic consumption.
type WeekView struct {
	WeekStart string             `json:"week_start"`
	Timezone  string             `json:"timezone"`
	Days      []DayAvailability  `json:"days"`
	Flat      []SlotAvailability `json:"slots"`
}

// Availability merges one resolved occurrence with its live booked count and
// eligibility decision. bookedCount must cover only capacity-holding
// statuses (booked, completed); cancelled and no-show bookings free spots.
func Availability(slot *models.SlotDefinition, occ Occurrence, bookedCount int, decision Decision) SlotAvailability {
	spots := slot.MaxOccupants - bookedCount
	if spots < 0 {
		spots = 0
	}

	available := spots > 0 && decision.OK && !occ.IsPast
	reason := decision.Reason
	if reason == "" && spots == 0 {
		reason = "no spots left"
	}

	return SlotAvailability{
		Slot:           slot,
		Occurrence:     occ,
		BookedCount:    bookedCount,
		AvailableSpots: spots,
		Available:      available,
		Reason:         reason,
	}
}

// BuildWeekView groups per-occurrence availability by day of week, Monday
// through Sunday, with slots within a day ordered by start time.
func BuildWeekView(weekStart time.Time, tz string, entries []SlotAvailability) (*WeekView, error) {
	dates, err := WeekDates(weekStart, tz)
	if err != nil {
		return nil, err
	}

	byDay := make(map[int][]SlotAvailability, 7)
	for _, e := range entries {
		byDay[e.Occurrence.DayOfWeek] = append(byDay[e.Occurrence.DayOfWeek], e)
	}

	view := &WeekView{
		Timezone: tz,
		Flat:     entries,
	}

	for d := 1; d <= 7; d++ {
		day := models.DayNames[d]
		slots := byDay[d]
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].Occurrence.LocalTime < slots[j].Occurrence.LocalTime
		})
		view.Days = append(view.Days, DayAvailability{
			Day:   day,
			Date:  dates[day],
			Slots: slots,
		})
	}
	view.WeekStart = view.Days[0].Date

	return view, nil
}
