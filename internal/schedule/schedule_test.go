package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClock(t *testing.T, v string) MinuteOfDay {
	t.Helper()
	m, err := ParseClock(v)
	require.NoError(t, err)
	return m
}

func weekdaySchedule(t *testing.T) Weekly {
	t.Helper()
	return Weekly{
		Days:            NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		DayStart:        mustClock(t, "08:00"),
		DayEnd:          mustClock(t, "12:00"),
		DurationMinutes: 30,
	}
}

func TestSlotTimesOnWorkingDay(t *testing.T) {
	w := weekdaySchedule(t)
	monday := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	slots := SlotTimes(w, monday)
	require.Len(t, slots, 8)

	assert.Equal(t, time.Date(2025, 9, 8, 8, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, 9, 8, 8, 30, 0, 0, time.UTC), slots[0].End)
	assert.Equal(t, time.Date(2025, 9, 8, 11, 30, 0, 0, time.UTC), slots[7].Start)
	assert.Equal(t, time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC), slots[7].End)

	// Pairwise non-overlap: each slot starts where the previous ended.
	for i := 1; i < len(slots); i++ {
		assert.Equal(t, slots[i-1].End, slots[i].Start)
	}
}

func TestSlotTimesOnNonWorkingDay(t *testing.T) {
	w := weekdaySchedule(t)
	saturday := time.Date(2025, 9, 13, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, saturday.Weekday())

	assert.Empty(t, SlotTimes(w, saturday))
}

func TestSlotTimesDiscardsTrailingPartialSlot(t *testing.T) {
	w := weekdaySchedule(t)
	w.DayEnd = mustClock(t, "09:45") // room for 3 full slots and a 15m remainder

	monday := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	slots := SlotTimes(w, monday)
	require.Len(t, slots, 3)
	assert.Equal(t, time.Date(2025, 9, 8, 9, 30, 0, 0, time.UTC), slots[2].End)
}

func TestWeeklyValidate(t *testing.T) {
	valid := weekdaySchedule(t)
	require.NoError(t, valid.Validate())

	noDays := valid
	noDays.Days = 0
	assert.ErrorIs(t, noDays.Validate(), ErrNoWorkingDays)

	inverted := valid
	inverted.DayStart, inverted.DayEnd = inverted.DayEnd, inverted.DayStart
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidWorkingHours)

	zeroDuration := valid
	zeroDuration.DurationMinutes = 0
	assert.ErrorIs(t, zeroDuration.Validate(), ErrInvalidSlotDuration)

	tooLong := valid
	tooLong.DurationMinutes = 500
	assert.ErrorIs(t, tooLong.Validate(), ErrInvalidSlotDuration)
}

func TestParseWeekdaySet(t *testing.T) {
	s, err := ParseWeekdaySet([]string{"monday", "Wednesday", " friday"})
	require.NoError(t, err)
	assert.True(t, s.Has(time.Monday))
	assert.True(t, s.Has(time.Wednesday))
	assert.True(t, s.Has(time.Friday))
	assert.False(t, s.Has(time.Sunday))

	_, err = ParseWeekdaySet([]string{"funday"})
	assert.ErrorIs(t, err, ErrUnknownWeekday)
}

func TestDatesBetweenInclusive(t *testing.T) {
	start := time.Date(2025, 9, 8, 14, 30, 0, 0, time.UTC)
	end := time.Date(2025, 9, 10, 2, 0, 0, 0, time.UTC)

	dates := DatesBetween(start, end)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), dates[2])
}

func TestParseClockRoundTrip(t *testing.T) {
	m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, "08:30", m.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
