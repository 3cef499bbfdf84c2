package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidWorkingHours = errors.New("schedule start must be before end")
	ErrInvalidSlotDuration = errors.New("slot duration must be positive and fit the working hours")
	ErrNoWorkingDays       = errors.New("schedule needs at least one working day")
	ErrUnknownWeekday      = errors.New("unknown weekday name")
)

// WeekdaySet is a bitmask over time.Weekday. Sunday is bit 0.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// ParseWeekdaySet accepts lowercase English day names, e.g. from the
// doctor's stored working_days list.
func ParseWeekdaySet(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, name := range names {
		d, err := parseWeekday(name)
		if err != nil {
			return 0, err
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) IsEmpty() bool {
	return s == 0
}

func (s WeekdaySet) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	var names []string
	for _, d := range s.Weekdays() {
		names = append(names, strings.ToLower(d.String()))
	}
	return strings.Join(names, ",")
}

// MinuteOfDay is a clock time expressed as minutes since midnight.
type MinuteOfDay int

// ParseClock parses "HH:MM" into a MinuteOfDay.
func ParseClock(v string) (MinuteOfDay, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", v, err)
	}
	return MinuteOfDay(t.Hour()*60 + t.Minute()), nil
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// On anchors the clock time onto a calendar date in the date's location.
func (m MinuteOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, date.Location())
}

// Weekly is a doctor's recurring availability template.
type Weekly struct {
	Days            WeekdaySet
	DayStart        MinuteOfDay
	DayEnd          MinuteOfDay
	DurationMinutes int
}

func (w Weekly) Validate() error {
	if w.Days.IsEmpty() {
		return ErrNoWorkingDays
	}
	if w.DayStart >= w.DayEnd {
		return ErrInvalidWorkingHours
	}
	if w.DurationMinutes <= 0 || MinuteOfDay(w.DurationMinutes) > w.DayEnd-w.DayStart {
		return ErrInvalidSlotDuration
	}
	return nil
}

// Interval is one bookable (start, end) pair on a concrete date.
type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotTimes expands the weekly template for a single date. It is a pure
// function: callers persist the result. A trailing slot shorter than the
// configured duration is discarded.
func SlotTimes(w Weekly, date time.Time) []Interval {
	if !w.Days.Has(date.Weekday()) {
		return nil
	}

	step := MinuteOfDay(w.DurationMinutes)
	var out []Interval
	for start := w.DayStart; start+step <= w.DayEnd; start += step {
		out = append(out, Interval{
			Start: start.On(date),
			End:   (start + step).On(date),
		})
	}
	return out
}

// DatesBetween returns each calendar date from start through end
// inclusive, truncated to midnight in start's location.
func DatesBetween(start, end time.Time) []time.Time {
	start = midnight(start)
	end = midnight(end)

	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
