// Package schedule contains the pure calendar logic of the booking engine:
// resolving a weekly recurrence onto a concrete week, deciding bookability
// and aggregating live capacity. Nothing in this package reads the clock or
// touches storage; callers pass "now" explicitly.
package schedule

import (
	"fmt"
	"regexp"
	"time"

	"tutorbook/internal/models"
)

// DateLayout is the local calendar date format used as the booking key.
const DateLayout = "2006-01-02"

// ClockLayout is the time-of-day format carried by slot definitions.
const ClockLayout = "15:04"

var clockRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Occurrence is one concrete calendar instance of a slot in a specific week.
// It is derived, never persisted, and must be reproducible byte-for-byte
// from the same inputs: the booking uniqueness key is its LocalDate.
type Occurrence struct {
	SlotID    int64     `json:"slot_id"`
	StartsAt  time.Time `json:"starts_at"`
	LocalDate string    `json:"local_date"` // "YYYY-MM-DD" in the slot's timezone
	LocalTime string    `json:"local_time"` // "HH:MM"
	DayOfWeek int       `json:"day_of_week"`
	IsPast    bool      `json:"is_past"`
}

// ValidClock reports whether s is a well-formed 24h "HH:MM" string.
func ValidClock(s string) bool {
	return clockRe.MatchString(s)
}

// ParseClock splits a validated "HH:MM" string into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	if !ValidClock(s) {
		return 0, 0, fmt.Errorf("invalid time %q; expected HH:MM", s)
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	minute = int(s[3]-'0')*10 + int(s[4]-'0')
	return hour, minute, nil
}

// IsValidTimezone reports whether name resolves against the IANA database.
func IsValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// WeekMonday returns midnight of the Monday of the ISO week containing t,
// in t's location.
func WeekMonday(t time.Time) time.Time {
	year, month, day := t.Date()
	base := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	offset := (int(base.Weekday()) + 6) % 7 // Monday = 0
	return base.AddDate(0, 0, -offset)
}

// Resolve projects a slot definition onto the ISO week containing weekStart.
// The week is interpreted in the slot's timezone unless tzOverride is set.
// The result is deterministic: two calls with identical inputs produce
// identical occurrences.
func Resolve(slot *models.SlotDefinition, weekStart, now time.Time, tzOverride string) (Occurrence, error) {
	tz := slot.Timezone
	if tzOverride != "" {
		tz = tzOverride
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Occurrence{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	hour, minute, err := ParseClock(slot.StartTime)
	if err != nil {
		return Occurrence{}, err
	}
	if slot.DayOfWeek < 1 || slot.DayOfWeek > 7 {
		return Occurrence{}, fmt.Errorf("invalid day of week %d", slot.DayOfWeek)
	}

	monday := WeekMonday(weekStart.In(loc))
	target := monday.AddDate(0, 0, slot.DayOfWeek-1)

	year, month, day := target.Date()
	startsAt := time.Date(year, month, day, hour, minute, 0, 0, loc)

	return Occurrence{
		SlotID:    slot.ID,
		StartsAt:  startsAt,
		LocalDate: startsAt.Format(DateLayout),
		LocalTime: startsAt.Format(ClockLayout),
		DayOfWeek: slot.DayOfWeek,
		IsPast:    startsAt.Before(now),
	}, nil
}

// ResolveDate resolves the slot's occurrence in the ISO week containing the
// given local date. The date is interpreted in the slot's own timezone; the
// caller is expected to verify that the returned LocalDate matches when the
// request names an exact date.
func ResolveDate(slot *models.SlotDefinition, localDate string, now time.Time) (Occurrence, error) {
	loc, err := time.LoadLocation(slot.Timezone)
	if err != nil {
		return Occurrence{}, fmt.Errorf("load timezone %q: %w", slot.Timezone, err)
	}
	day, err := time.ParseInLocation(DateLayout, localDate, loc)
	if err != nil {
		return Occurrence{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", localDate)
	}
	return Resolve(slot, day, now, "")
}

// ResolveWeek resolves the slot's occurrence in the ISO week containing the
// given local date. Unlike ResolveDate the date is interpreted in the display
// timezone when tzOverride is set; a week-start date names a calendar week,
// never an instant, so it must not shift across the date line.
func ResolveWeek(slot *models.SlotDefinition, localDate string, now time.Time, tzOverride string) (Occurrence, error) {
	tz := slot.Timezone
	if tzOverride != "" {
		tz = tzOverride
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Occurrence{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	day, err := time.ParseInLocation(DateLayout, localDate, loc)
	if err != nil {
		return Occurrence{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", localDate)
	}
	return Resolve(slot, day, now, tzOverride)
}

// WeekDates returns the Monday..Sunday local dates of the ISO week containing
// weekStart, keyed by day name, for calendar display.
func WeekDates(weekStart time.Time, tz string) (map[string]string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	monday := WeekMonday(weekStart.In(loc))
	dates := make(map[string]string, 7)
	for d := 1; d <= 7; d++ {
		dates[models.DayNames[d]] = monday.AddDate(0, 0, d-1).Format(DateLayout)
	}
	return dates, nil
}

// ConvertTimezone re-expresses an instant in another IANA timezone.
func ConvertTimezone(t time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return t.In(loc), nil
}
