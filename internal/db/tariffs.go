package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studiobron/internal/model"
)

// ScenarioByID loads one scenario.
func (s *Store) ScenarioByID(ctx context.Context, id int64) (*model.Scenario, error) {
	var sc model.Scenario
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, is_active, min_booking_duration, created_at, updated_at
		FROM scenarios
		WHERE id = ?`,
		id,
	).Scan(&sc.ID, &sc.Name, &sc.IsActive, &sc.MinBookingDuration, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("scenario", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario %d: %w", id, err)
	}
	return &sc, nil
}

// CreateScenario inserts a scenario row.
func (s *Store) CreateScenario(ctx context.Context, sc *model.Scenario) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO scenarios (name, is_active, min_booking_duration) VALUES (?, ?, ?)",
		sc.Name, sc.IsActive, sc.MinBookingDuration,
	)
	if err != nil {
		return fmt.Errorf("create scenario: %w", err)
	}
	sc.ID, err = res.LastInsertId()
	return err
}

// TariffByID loads a tariff with room/scenario links and weekly
// intervals.
func (s *Store) TariffByID(ctx context.Context, id int64) (*model.Tariff, error) {
	var t model.Tariff
	var baseCost string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, is_active, max_people, base_duration_minutes, base_cost, created_at, updated_at
		FROM tariffs
		WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Name, &t.IsActive, &t.MaxPeople, &t.BaseDurationMinutes, &baseCost, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("tariff", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tariff %d: %w", id, err)
	}
	if t.BaseCost, err = model.ParseMoney(baseCost); err != nil {
		return nil, fmt.Errorf("tariff %d base_cost: %w", id, err)
	}
	if err := s.loadTariffLinks(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TariffsForScenario returns active tariffs linked to the scenario,
// links and weekly intervals attached.
func (s *Store) TariffsForScenario(ctx context.Context, scenarioID int64) ([]model.Tariff, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT t.id, t.name, t.is_active, t.max_people, t.base_duration_minutes, t.base_cost, t.created_at, t.updated_at
		FROM tariffs t
		JOIN tariff_scenarios ts ON ts.tariff_id = t.id
		WHERE ts.scenario_id = ? AND t.is_active = 1
		ORDER BY t.name`,
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tariffs: %w", err)
	}
	defer rows.Close()

	var out []model.Tariff
	for rows.Next() {
		var t model.Tariff
		var baseCost string
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.MaxPeople, &t.BaseDurationMinutes, &baseCost, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.BaseCost, err = model.ParseMoney(baseCost); err != nil {
			return nil, fmt.Errorf("tariff %d base_cost: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadTariffLinks(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateTariff inserts a tariff with links and weekly intervals.
func (s *Store) CreateTariff(ctx context.Context, t *model.Tariff) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO tariffs (name, is_active, max_people, base_duration_minutes, base_cost)
		VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.IsActive, t.MaxPeople, t.BaseDurationMinutes, model.MoneyString(t.BaseCost),
	)
	if err != nil {
		return fmt.Errorf("create tariff: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for _, roomID := range t.RoomIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO tariff_rooms (tariff_id, room_id) VALUES (?, ?)", t.ID, roomID,
		); err != nil {
			return fmt.Errorf("link tariff %d room %d: %w", t.ID, roomID, err)
		}
	}
	for _, scenarioID := range t.ScenarioIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO tariff_scenarios (tariff_id, scenario_id) VALUES (?, ?)", t.ID, scenarioID,
		); err != nil {
			return fmt.Errorf("link tariff %d scenario %d: %w", t.ID, scenarioID, err)
		}
	}
	for i := range t.WeeklyIntervals {
		w := &t.WeeklyIntervals[i]
		w.TariffID = t.ID
		res, err := s.q.ExecContext(ctx,
			"INSERT INTO tariff_weekly_intervals (tariff_id, weekday, start_time, end_time) VALUES (?, ?, ?, ?)",
			t.ID, w.Weekday, w.Start.String(), w.End.String(),
		)
		if err != nil {
			return fmt.Errorf("insert tariff interval: %w", err)
		}
		if w.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// TariffUnitForScenario returns the unit pricing for a scenario, or a
// NotFoundError when the scenario has none.
func (s *Store) TariffUnitForScenario(ctx context.Context, scenarioID int64) (*model.TariffUnit, error) {
	var u model.TariffUnit
	var unitCost string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, scenario_id, unit_duration_minutes, unit_cost
		FROM tariff_units
		WHERE scenario_id = ?`,
		scenarioID,
	).Scan(&u.ID, &u.ScenarioID, &u.UnitDurationMinutes, &unitCost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("tariff_unit", scenarioID)
	}
	if err != nil {
		return nil, fmt.Errorf("get tariff unit: %w", err)
	}
	if u.UnitCost, err = model.ParseMoney(unitCost); err != nil {
		return nil, fmt.Errorf("tariff unit %d cost: %w", u.ID, err)
	}
	return &u, nil
}

// SaveTariffUnit upserts the unit pricing for a scenario.
func (s *Store) SaveTariffUnit(ctx context.Context, u *model.TariffUnit) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tariff_units (scenario_id, unit_duration_minutes, unit_cost)
		VALUES (?, ?, ?)
		ON CONFLICT(scenario_id) DO UPDATE SET
			unit_duration_minutes = excluded.unit_duration_minutes,
			unit_cost = excluded.unit_cost`,
		u.ScenarioID, u.UnitDurationMinutes, model.MoneyString(u.UnitCost),
	)
	if err != nil {
		return fmt.Errorf("save tariff unit: %w", err)
	}
	return s.q.QueryRowContext(ctx,
		"SELECT id FROM tariff_units WHERE scenario_id = ?", u.ScenarioID,
	).Scan(&u.ID)
}

func (s *Store) loadTariffLinks(ctx context.Context, t *model.Tariff) error {
	var err error
	t.RoomIDs, err = s.linkedIDs(ctx,
		"SELECT room_id FROM tariff_rooms WHERE tariff_id = ? ORDER BY room_id", t.ID)
	if err != nil {
		return fmt.Errorf("tariff %d rooms: %w", t.ID, err)
	}
	t.ScenarioIDs, err = s.linkedIDs(ctx,
		"SELECT scenario_id FROM tariff_scenarios WHERE tariff_id = ? ORDER BY scenario_id", t.ID)
	if err != nil {
		return fmt.Errorf("tariff %d scenarios: %w", t.ID, err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tariff_id, weekday, start_time, end_time
		FROM tariff_weekly_intervals
		WHERE tariff_id = ?
		ORDER BY weekday, start_time`,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("tariff %d intervals: %w", t.ID, err)
	}
	defer rows.Close()

	t.WeeklyIntervals = nil
	for rows.Next() {
		var w model.TariffWeeklyInterval
		var startStr, endStr string
		if err := rows.Scan(&w.ID, &w.TariffID, &w.Weekday, &startStr, &endStr); err != nil {
			return err
		}
		iv, err := parseInterval(startStr, endStr)
		if err != nil {
			return fmt.Errorf("tariff interval %d: %w", w.ID, err)
		}
		w.Start, w.End = iv.Start, iv.End
		t.WeeklyIntervals = append(t.WeeklyIntervals, w)
	}
	return rows.Err()
}
