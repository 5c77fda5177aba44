package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studiobron/internal/model"
)

// RoomByID loads a room with its scenario links.
func (s *Store) RoomByID(ctx context.Context, id int64) (*model.Room, error) {
	var r model.Room
	var description sql.NullString
	var areaID sql.NullInt64
	var hourStart, hourEnd string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, description, area_id, hour_start, hour_end, is_active, created_at, updated_at
		FROM rooms
		WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.Name, &description, &areaID, &hourStart, &hourEnd, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("room", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", id, err)
	}
	r.Description = description.String
	r.AreaID = int64Ptr(areaID)
	if r.HourStart, err = model.ParseClock(hourStart); err != nil {
		return nil, fmt.Errorf("room %d hour_start: %w", id, err)
	}
	if r.HourEnd, err = model.ParseClock(hourEnd); err != nil {
		return nil, fmt.Errorf("room %d hour_end: %w", id, err)
	}

	r.ScenarioIDs, err = s.linkedIDs(ctx,
		"SELECT scenario_id FROM room_scenarios WHERE room_id = ? ORDER BY scenario_id", id)
	if err != nil {
		return nil, fmt.Errorf("room %d scenarios: %w", id, err)
	}
	return &r, nil
}

// ListActiveRooms returns active rooms ordered by name.
func (s *Store) ListActiveRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, description, area_id, hour_start, hour_end, is_active, created_at, updated_at
		FROM rooms
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		var r model.Room
		var description sql.NullString
		var areaID sql.NullInt64
		var hourStart, hourEnd string
		if err := rows.Scan(&r.ID, &r.Name, &description, &areaID, &hourStart, &hourEnd, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Description = description.String
		r.AreaID = int64Ptr(areaID)
		if r.HourStart, err = model.ParseClock(hourStart); err != nil {
			return nil, err
		}
		if r.HourEnd, err = model.ParseClock(hourEnd); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRoom inserts a room and its scenario links. Used by seeding
// and admin tooling.
func (s *Store) CreateRoom(ctx context.Context, r *model.Room) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO rooms (name, description, area_id, hour_start, hour_end, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.Description, nullInt64(r.AreaID), r.HourStart.String(), r.HourEnd.String(), r.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for _, scenarioID := range r.ScenarioIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO room_scenarios (room_id, scenario_id) VALUES (?, ?)",
			r.ID, scenarioID,
		); err != nil {
			return fmt.Errorf("link room %d scenario %d: %w", r.ID, scenarioID, err)
		}
	}
	return nil
}

func (s *Store) linkedIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
