package model

import "time"

// Specialist is a staff member assignable to reservations. ClientID,
// when set, links the specialist to a client identity so the same person
// can also be booked as an attendee elsewhere.
type Specialist struct {
	ID           int64
	Name         string
	IsActive     bool
	ClientID     *int64
	DirectionIDs []int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WeeklyInterval is a recurring working window for one weekday
// (Monday=0 .. Sunday=6).
type WeeklyInterval struct {
	ID           int64
	SpecialistID int64
	Weekday      int
	Start        Clock
	End          Clock
}

// Interval returns the window as a plain interval.
func (w WeeklyInterval) Interval() Interval {
	return Interval{Start: w.Start, End: w.End}
}

// ScheduleOverride is a date-specific exception that fully supersedes
// the weekly schedule for that date: either a day off, or its own set
// of working intervals.
type ScheduleOverride struct {
	ID           int64
	SpecialistID int64
	Date         time.Time
	IsDayOff     bool
	Note         string
	Intervals    []Interval
}
