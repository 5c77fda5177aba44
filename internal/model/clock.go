package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in minutes since midnight. Working hours and
// schedule intervals are stored as "HH:MM" text and parsed into Clock
// values for comparison.
type Clock int

// ParseClock parses "HH:MM" (also accepts "HH:MM:SS", seconds ignored).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	// Hour 24 is only valid as the end-of-day sentinel "24:00".
	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return Clock(hour*60 + minute), nil
}

// MustClock is ParseClock for literals in tests and defaults.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf extracts the time of day from t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// OnDate places the clock value on the given calendar date, keeping the
// date's location.
func (c Clock) OnDate(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(c)/60, int(c)%60, 0, 0, date.Location())
}

// Weekday returns the weekday of t with Monday=0 .. Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Interval is a half-open [Start, End) time-of-day range.
type Interval struct {
	Start Clock
	End   Clock
}

// Valid reports whether Start < End.
func (iv Interval) Valid() bool { return iv.Start < iv.End }

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return iv.Start <= other.Start && other.End <= iv.End
}

// ContainsClock reports whether c falls inside the half-open interval.
func (iv Interval) ContainsClock(c Clock) bool {
	return iv.Start <= c && c < iv.End
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// MergeIntervals sorts intervals by start and folds overlapping or
// adjacent ranges into one. Invalid (start>=end) entries are dropped.
// The input slice is not modified.
func MergeIntervals(intervals []Interval) []Interval {
	valid := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})

	merged := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether both instants fall on one calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
