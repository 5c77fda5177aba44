// Package pricing selects eligible tariffs and computes prorated rental
// costs for reservations.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"studiobron/internal/model"
)

// Store reads pricing catalogs. TariffsForScenario returns active
// tariffs linked to the scenario, weekly intervals attached.
type Store interface {
	TariffsForScenario(ctx context.Context, scenarioID int64) ([]model.Tariff, error)
	ServicesByIDs(ctx context.Context, ids []int64) ([]model.Service, error)
}

// Query describes one tariff lookup. EndTime nil means only the start
// has to fall inside a purchasable window.
type Query struct {
	ScenarioID  int64
	RoomID      int64
	Date        time.Time
	StartTime   model.Clock
	EndTime     *model.Clock
	PeopleCount int // 0 treated as 1
}

// DayTariff is a tariff together with its purchasable windows on the
// queried weekday.
type DayTariff struct {
	Tariff    model.Tariff
	Intervals []model.Interval
}

// Engine prices reservations. Safe for concurrent use.
type Engine struct {
	store  Store
	logger *zerolog.Logger
}

func NewEngine(store Store, logger *zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// AvailableTariffs lists tariffs purchasable for the query, each with
// the queried weekday's windows.
func (e *Engine) AvailableTariffs(ctx context.Context, q Query) ([]DayTariff, error) {
	tariffs, err := e.store.TariffsForScenario(ctx, q.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("load tariffs: %w", err)
	}

	weekday := model.Weekday(q.Date)
	people := q.PeopleCount
	if people <= 0 {
		people = 1
	}

	var out []DayTariff
	for i := range tariffs {
		t := &tariffs[i]
		if !t.IsActive || !t.LinkedToRoom(q.RoomID) || !t.LinkedToScenario(q.ScenarioID) {
			continue
		}
		if t.MaxPeople < people {
			continue
		}
		windows := dayWindows(t, weekday)
		if !matchesWindow(windows, q.StartTime, q.EndTime) {
			continue
		}
		out = append(out, DayTariff{Tariff: *t, Intervals: windows})
	}
	return out, nil
}

// Eligible reports whether one tariff fits the query, with the reason
// it does not.
func (e *Engine) Eligible(t *model.Tariff, q Query) error {
	if !t.IsActive {
		return model.NewValidation("tariff", "tariff is not active")
	}
	if !t.LinkedToScenario(q.ScenarioID) {
		return model.NewValidation("tariff", "tariff is not linked to the scenario")
	}
	if !t.LinkedToRoom(q.RoomID) {
		return model.NewValidation("tariff", "tariff is not linked to the room")
	}
	people := q.PeopleCount
	if people <= 0 {
		people = 1
	}
	if t.MaxPeople < people {
		return model.NewValidation("people_count", "tariff allows at most %d people", t.MaxPeople)
	}
	if !matchesWindow(dayWindows(t, model.Weekday(q.Date)), q.StartTime, q.EndTime) {
		return model.NewValidation("tariff", "tariff is not purchasable at this time")
	}
	return nil
}

// RentalCost prorates the tariff's base cost over the actual duration:
// base_cost * minutes / base_duration, rounded half up to two digits.
func RentalCost(t *model.Tariff, durationMinutes int) (decimal.Decimal, error) {
	if t.BaseDurationMinutes <= 0 {
		return decimal.Zero, model.Invariant("tariff %d has base duration %d", t.ID, t.BaseDurationMinutes)
	}
	cost := t.BaseCost.
		Mul(decimal.NewFromInt(int64(durationMinutes))).
		Div(decimal.NewFromInt(int64(t.BaseDurationMinutes)))
	return model.RoundMoney(cost), nil
}

// ComputeCost returns rental plus ancillary service costs. A nil tariff
// prices only the services.
func (e *Engine) ComputeCost(ctx context.Context, tariff *model.Tariff, durationMinutes int, serviceIDs []int64) (decimal.Decimal, error) {
	total := decimal.Zero
	if tariff != nil {
		rental, err := RentalCost(tariff, durationMinutes)
		if err != nil {
			return decimal.Zero, err
		}
		total = rental
	}
	if len(serviceIDs) > 0 {
		services, err := e.store.ServicesByIDs(ctx, serviceIDs)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load services: %w", err)
		}
		if len(services) != len(serviceIDs) {
			return decimal.Zero, model.NewValidation("services", "unknown service id in %v", serviceIDs)
		}
		for i := range services {
			total = total.Add(services[i].Cost)
		}
	}
	return model.RoundMoney(total), nil
}

func dayWindows(t *model.Tariff, weekday int) []model.Interval {
	var out []model.Interval
	for _, w := range t.WeeklyIntervals {
		if w.Weekday == weekday {
			out = append(out, w.Interval())
		}
	}
	return model.MergeIntervals(out)
}

func matchesWindow(windows []model.Interval, start model.Clock, end *model.Clock) bool {
	for _, w := range windows {
		if end != nil {
			if w.Contains(model.Interval{Start: start, End: *end}) {
				return true
			}
			continue
		}
		if w.ContainsClock(start) {
			return true
		}
	}
	return false
}
