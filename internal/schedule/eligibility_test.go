package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBookable(t *testing.T) {
	slot := sydneySlot()
	policy := Policy{MinAdvance: time.Hour}

	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	weekStart := time.Date(2025, 3, 3, 0, 0, 0, 0, loc)
	resolveAt := func(now time.Time) Occurrence {
		occ, err := Resolve(slot, weekStart, now, "")
		require.NoError(t, err)
		return occ
	}

	t.Run("past occurrence", func(t *testing.T) {
		now := time.Date(2025, 3, 4, 11, 0, 0, 0, loc)
		d := IsBookable(slot, resolveAt(now), now, policy)
		assert.False(t, d.OK)
		assert.Equal(t, "occurrence is in the past", d.Reason)
	})

	t.Run("inside advance notice window", func(t *testing.T) {
		now := time.Date(2025, 3, 4, 9, 30, 0, 0, loc)
		d := IsBookable(slot, resolveAt(now), now, policy)
		assert.False(t, d.OK)
		assert.Contains(t, d.Reason, "advance notice")
	})

	t.Run("pattern not yet effective", func(t *testing.T) {
		future := sydneySlot()
		future.EffectiveFrom = "2025-06-01"
		now := time.Date(2025, 3, 2, 9, 0, 0, 0, loc)
		occ, err := Resolve(future, weekStart, now, "")
		require.NoError(t, err)
		d := IsBookable(future, occ, now, policy)
		assert.False(t, d.OK)
		assert.Contains(t, d.Reason, "not effective until 2025-06-01")
	})

	t.Run("pattern ended", func(t *testing.T) {
		ended := sydneySlot()
		ended.EffectiveUntil = "2025-02-28"
		now := time.Date(2025, 3, 2, 9, 0, 0, 0, loc)
		occ, err := Resolve(ended, weekStart, now, "")
		require.NoError(t, err)
		d := IsBookable(ended, occ, now, policy)
		assert.False(t, d.OK)
		assert.Contains(t, d.Reason, "effective until 2025-02-28")
	})

	t.Run("effectiveness is judged on today, not the occurrence date", func(t *testing.T) {
		// The pattern ends before the occurrence date but is still live
		// today, so the occurrence remains bookable.
		ending := sydneySlot()
		ending.EffectiveUntil = "2025-03-03"
		now := time.Date(2025, 3, 2, 9, 0, 0, 0, loc)
		occ, err := Resolve(ending, weekStart, now, "")
		require.NoError(t, err)
		d := IsBookable(ending, occ, now, policy)
		assert.True(t, d.OK)
	})

	t.Run("today comes from the slot timezone, not the display zone", func(t *testing.T) {
		// It is already March 4 in Sydney, so the pattern has ended even
		// though the occurrence was resolved for display in UTC, where the
		// calendar still reads March 3.
		ended := sydneySlot()
		ended.EffectiveUntil = "2025-03-03"
		now := time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC)
		wk := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
		occ, err := Resolve(ended, wk, now, "UTC")
		require.NoError(t, err)
		d := IsBookable(ended, occ, now, policy)
		assert.False(t, d.OK)
		assert.Contains(t, d.Reason, "effective until 2025-03-03")
	})

	t.Run("bookable", func(t *testing.T) {
		now := time.Date(2025, 3, 2, 9, 0, 0, 0, loc)
		d := IsBookable(slot, resolveAt(now), now, policy)
		assert.True(t, d.OK)
		assert.Empty(t, d.Reason)
	})

	t.Run("check order: past wins over notice", func(t *testing.T) {
		now := time.Date(2025, 3, 4, 10, 0, 0, 0, loc) // exactly at start
		d := IsBookable(slot, resolveAt(now), now, policy)
		assert.False(t, d.OK)
		assert.Equal(t, "occurrence is in the past", d.Reason)
	})
}
