package schedule

import (
	"fmt"
	"time"

	"tutorbook/internal/models"
)

// Policy holds the booking-time rules the evaluator enforces.
type Policy struct {
	// MinAdvance is the minimum notice required between "now" and the
	// occurrence start for a booking to be created.
	MinAdvance time.Duration
}

// Decision is the outcome of an eligibility check. Reason is set when
// OK is false and is safe to show to the caller verbatim.
type Decision struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func notBookable(reason string) Decision {
	return Decision{OK: false, Reason: reason}
}

// IsBookable decides whether an occurrence can be booked right now.
// Checks run in order and the first failure wins:
//
//  1. the occurrence must not be in the past;
//  2. the occurrence must be at least MinAdvance away;
//  3. the slot pattern must be effective today, where "today" is always the
//     slot's own timezone even when the occurrence was resolved for display
//     in another zone.
//
// Effectiveness is evaluated against today's date, not the occurrence date:
// a pattern is either live or not, and its future occurrences are not
// independently gated by the effective window.
//
// The function is pure. It is used both for availability display and for
// re-validation immediately before a booking is committed, which closes the
// race between "shown as available" and "booked".
func IsBookable(slot *models.SlotDefinition, occ Occurrence, now time.Time, policy Policy) Decision {
	if !occ.StartsAt.After(now) {
		return notBookable("occurrence is in the past")
	}

	if occ.StartsAt.Sub(now) < policy.MinAdvance {
		return notBookable(fmt.Sprintf("booking requires at least %s advance notice", policy.MinAdvance))
	}

	loc, err := time.LoadLocation(slot.Timezone)
	if err != nil {
		return notBookable(fmt.Sprintf("unknown timezone %q", slot.Timezone))
	}
	today := now.In(loc).Format(DateLayout)
	if today < slot.EffectiveFrom {
		return notBookable(fmt.Sprintf("slot is not effective until %s", slot.EffectiveFrom))
	}
	if slot.EffectiveUntil != "" && today > slot.EffectiveUntil {
		return notBookable(fmt.Sprintf("slot was effective until %s", slot.EffectiveUntil))
	}

	return Decision{OK: true}
}
