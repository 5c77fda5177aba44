package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9*60+30), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClock("21:00:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(21*60), c)

	// End-of-day sentinel.
	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(24*60), c)

	_, err = ParseClock("930")
	assert.Error(t, err)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("10:75")
	assert.Error(t, err)
	// Only 24:00 is valid past 23:59.
	_, err = ParseClock("24:59")
	assert.Error(t, err)
	_, err = ParseClock("24:01")
	assert.Error(t, err)
}

func TestWeekday(t *testing.T) {
	// 2025-03-10 is a Monday.
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(monday))

	sunday := monday.AddDate(0, 0, 6)
	assert.Equal(t, 6, Weekday(sunday))
}

func TestIntervalOverlaps(t *testing.T) {
	base := Interval{MustClock("10:00"), MustClock("14:00")}

	assert.True(t, base.Overlaps(Interval{MustClock("13:00"), MustClock("15:00")}))
	assert.True(t, base.Overlaps(Interval{MustClock("11:00"), MustClock("12:00")}))
	// Back-to-back windows do not overlap.
	assert.False(t, base.Overlaps(Interval{MustClock("14:00"), MustClock("16:00")}))
	assert.False(t, base.Overlaps(Interval{MustClock("08:00"), MustClock("10:00")}))
}

func TestIntervalContains(t *testing.T) {
	work := Interval{MustClock("10:00"), MustClock("14:00")}

	assert.True(t, work.Contains(Interval{MustClock("10:00"), MustClock("14:00")}))
	assert.True(t, work.Contains(Interval{MustClock("12:00"), MustClock("13:00")}))
	assert.False(t, work.Contains(Interval{MustClock("09:00"), MustClock("11:00")}))
	assert.False(t, work.Contains(Interval{MustClock("15:00"), MustClock("16:00")}))
}

func TestMergeIntervals(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "disjoint stay separate",
			in: []Interval{
				{MustClock("14:00"), MustClock("16:00")},
				{MustClock("09:00"), MustClock("12:00")},
			},
			want: []Interval{
				{MustClock("09:00"), MustClock("12:00")},
				{MustClock("14:00"), MustClock("16:00")},
			},
		},
		{
			name: "overlapping fold",
			in: []Interval{
				{MustClock("09:00"), MustClock("12:00")},
				{MustClock("11:00"), MustClock("13:00")},
			},
			want: []Interval{{MustClock("09:00"), MustClock("13:00")}},
		},
		{
			name: "adjacent fold",
			in: []Interval{
				{MustClock("09:00"), MustClock("12:00")},
				{MustClock("12:00"), MustClock("14:00")},
			},
			want: []Interval{{MustClock("09:00"), MustClock("14:00")}},
		},
		{
			name: "invalid dropped",
			in: []Interval{
				{MustClock("12:00"), MustClock("12:00")},
				{MustClock("09:00"), MustClock("10:00")},
			},
			want: []Interval{{MustClock("09:00"), MustClock("10:00")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeIntervals(tt.in))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusApproved))
	assert.True(t, StatusApproved.CanTransition(StatusPaid))
	assert.True(t, StatusPending.CanTransition(StatusCancelled))
	assert.True(t, StatusApproved.CanTransition(StatusRejected))
	assert.True(t, StatusPaid.CanTransition(StatusCancelled))

	assert.False(t, StatusPending.CanTransition(StatusPaid))
	assert.False(t, StatusCancelled.CanTransition(StatusPending))
	assert.False(t, StatusRejected.CanTransition(StatusApproved))
	assert.False(t, StatusPaid.CanTransition(StatusApproved))
}
