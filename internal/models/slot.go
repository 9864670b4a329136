package models

import "time"

// SlotDefinition is a recurring weekly time pattern owned by a tutor.
// DayOfWeek uses 1 = Monday .. 7 = Sunday.
type SlotDefinition struct {
	ID              int64     `json:"id"`
	BatchID         int64     `json:"batch_id"`
	TutorID         int64     `json:"tutor_id"`
	TutorName       string    `json:"tutor_name"`
	DayOfWeek       int       `json:"day_of_week"`
	StartTime       string    `json:"start_time"` // "HH:MM", 24h
	DurationMinutes int       `json:"duration_minutes"`
	MaxOccupants    int       `json:"max_occupants"`
	Timezone        string    `json:"timezone"` // IANA name
	EffectiveFrom   string    `json:"effective_from"`            // "YYYY-MM-DD"
	EffectiveUntil  string    `json:"effective_until,omitempty"` // empty = open-ended
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the slot length.
func (s *SlotDefinition) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// EffectiveOn reports whether the recurrence pattern is live on the given
// local date. Dates are "YYYY-MM-DD" strings, which compare correctly
// lexicographically.
func (s *SlotDefinition) EffectiveOn(localDate string) bool {
	if localDate < s.EffectiveFrom {
		return false
	}
	if s.EffectiveUntil != "" && localDate > s.EffectiveUntil {
		return false
	}
	return true
}

// DayNames maps DayOfWeek values to display names.
var DayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}
