package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scenario is a named booking template (a business line) that selects
// which pricing and validation rules apply to a reservation.
type Scenario struct {
	ID                 int64
	Name               string
	IsActive           bool
	MinBookingDuration int // minutes, 0 = no minimum
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TariffWeeklyInterval defines when a tariff is purchasable on a given
// weekday (Monday=0 .. Sunday=6).
type TariffWeeklyInterval struct {
	ID       int64
	TariffID int64
	Weekday  int
	Start    Clock
	End      Clock
}

// Interval returns the purchasable window as a plain interval.
func (t TariffWeeklyInterval) Interval() Interval {
	return Interval{Start: t.Start, End: t.End}
}

// Tariff is a capacity- and time-window-scoped pricing template for a
// room+scenario combination. BaseCost buys BaseDurationMinutes; longer
// reservations are prorated linearly.
type Tariff struct {
	ID                  int64
	Name                string
	IsActive            bool
	MaxPeople           int
	BaseDurationMinutes int
	BaseCost            decimal.Decimal
	RoomIDs             []int64
	ScenarioIDs         []int64
	WeeklyIntervals     []TariffWeeklyInterval
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LinkedToRoom reports whether the tariff applies to the room.
func (t *Tariff) LinkedToRoom(roomID int64) bool {
	for _, id := range t.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// LinkedToScenario reports whether the tariff applies to the scenario.
func (t *Tariff) LinkedToScenario(scenarioID int64) bool {
	for _, id := range t.ScenarioIDs {
		if id == scenarioID {
			return true
		}
	}
	return false
}

// TariffUnit defines the prepaid unit granularity for a scenario: one
// unit buys UnitDurationMinutes of rental at UnitCost.
type TariffUnit struct {
	ID                  int64
	ScenarioID          int64
	UnitDurationMinutes int
	UnitCost            decimal.Decimal
}

// Subscription is a client's prepaid tariff-unit balance for a scenario.
type Subscription struct {
	ID         int64
	ClientID   int64
	ScenarioID int64
	Balance    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
