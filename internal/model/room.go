package model

import "time"

// Area groups rooms (a floor, a wing).
type Area struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Room is a bookable space with a daily working-hours window.
type Room struct {
	ID          int64
	Name        string
	Description string
	AreaID      *int64
	HourStart   Clock
	HourEnd     Clock
	IsActive    bool
	ScenarioIDs []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkingHours returns the room's daily window as an interval.
func (r *Room) WorkingHours() Interval {
	return Interval{Start: r.HourStart, End: r.HourEnd}
}

// AllowsScenario reports whether the scenario is linked to the room.
// A room with no links accepts any scenario.
func (r *Room) AllowsScenario(scenarioID int64) bool {
	if len(r.ScenarioIDs) == 0 {
		return true
	}
	for _, id := range r.ScenarioIDs {
		if id == scenarioID {
			return true
		}
	}
	return false
}
