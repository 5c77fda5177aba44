package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiobron/internal/model"
)

// SpecialistByID loads a specialist with direction links.
func (s *Store) SpecialistByID(ctx context.Context, id int64) (*model.Specialist, error) {
	var sp model.Specialist
	var clientID sql.NullInt64
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, is_active, client_id, created_at, updated_at
		FROM specialists
		WHERE id = ?`,
		id,
	).Scan(&sp.ID, &sp.Name, &sp.IsActive, &clientID, &sp.CreatedAt, &sp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("specialist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get specialist %d: %w", id, err)
	}
	sp.ClientID = int64Ptr(clientID)

	sp.DirectionIDs, err = s.linkedIDs(ctx,
		"SELECT direction_id FROM specialist_directions WHERE specialist_id = ? ORDER BY direction_id", id)
	if err != nil {
		return nil, fmt.Errorf("specialist %d directions: %w", id, err)
	}
	return &sp, nil
}

// CreateSpecialist inserts a specialist row.
func (s *Store) CreateSpecialist(ctx context.Context, sp *model.Specialist) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO specialists (name, is_active, client_id)
		VALUES (?, ?, ?)`,
		sp.Name, sp.IsActive, nullInt64(sp.ClientID),
	)
	if err != nil {
		return fmt.Errorf("create specialist: %w", err)
	}
	sp.ID, err = res.LastInsertId()
	return err
}

// OverrideForDate returns the schedule override for the date with its
// intervals, or nil when none exists.
func (s *Store) OverrideForDate(ctx context.Context, specialistID int64, date time.Time) (*model.ScheduleOverride, error) {
	var o model.ScheduleOverride
	var note sql.NullString
	var dateStr string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, specialist_id, date, is_day_off, note
		FROM specialist_schedule_overrides
		WHERE specialist_id = ? AND date = ?`,
		specialistID, date.Format(dateLayout),
	).Scan(&o.ID, &o.SpecialistID, &dateStr, &o.IsDayOff, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	o.Note = note.String
	if o.Date, err = time.ParseInLocation(dateLayout, dateStr, date.Location()); err != nil {
		return nil, fmt.Errorf("override %d date: %w", o.ID, err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT start_time, end_time
		FROM specialist_override_intervals
		WHERE override_id = ?
		ORDER BY start_time`,
		o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("override %d intervals: %w", o.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, err
		}
		iv, err := parseInterval(startStr, endStr)
		if err != nil {
			return nil, fmt.Errorf("override %d: %w", o.ID, err)
		}
		o.Intervals = append(o.Intervals, iv)
	}
	return &o, rows.Err()
}

// SaveOverride upserts the override for (specialist, date) and replaces
// its intervals. An override is either a day off or a set of
// non-overlapping intervals, never both.
func (s *Store) SaveOverride(ctx context.Context, o *model.ScheduleOverride) error {
	if o.IsDayOff && len(o.Intervals) > 0 {
		return model.NewValidation("intervals", "a day off cannot carry intervals")
	}
	for i, iv := range o.Intervals {
		if !iv.Valid() {
			return model.NewValidation("intervals", "interval %s is empty", iv)
		}
		for j := 0; j < i; j++ {
			if iv.Overlaps(o.Intervals[j]) {
				return model.NewValidation("intervals", "intervals %s and %s overlap", o.Intervals[j], iv)
			}
		}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO specialist_schedule_overrides (specialist_id, date, is_day_off, note, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(specialist_id, date) DO UPDATE SET
			is_day_off = excluded.is_day_off,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		o.SpecialistID, o.Date.Format(dateLayout), o.IsDayOff, o.Note,
	)
	if err != nil {
		return fmt.Errorf("save override: %w", err)
	}
	if err := s.q.QueryRowContext(ctx,
		"SELECT id FROM specialist_schedule_overrides WHERE specialist_id = ? AND date = ?",
		o.SpecialistID, o.Date.Format(dateLayout),
	).Scan(&o.ID); err != nil {
		return fmt.Errorf("resolve override id: %w", err)
	}

	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM specialist_override_intervals WHERE override_id = ?", o.ID,
	); err != nil {
		return fmt.Errorf("clear override intervals: %w", err)
	}
	for _, iv := range o.Intervals {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO specialist_override_intervals (override_id, start_time, end_time) VALUES (?, ?, ?)",
			o.ID, iv.Start.String(), iv.End.String(),
		); err != nil {
			return fmt.Errorf("insert override interval: %w", err)
		}
	}
	return nil
}

// HasWeeklyIntervals reports whether the specialist has any weekly
// interval on any weekday.
func (s *Store) HasWeeklyIntervals(ctx context.Context, specialistID int64) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM specialist_weekly_intervals WHERE specialist_id = ?",
		specialistID,
	).Scan(&count)
	return count > 0, err
}

// WeeklyIntervals returns the intervals configured for one weekday.
func (s *Store) WeeklyIntervals(ctx context.Context, specialistID int64, weekday int) ([]model.WeeklyInterval, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, specialist_id, weekday, start_time, end_time
		FROM specialist_weekly_intervals
		WHERE specialist_id = ? AND weekday = ?
		ORDER BY start_time`,
		specialistID, weekday,
	)
	if err != nil {
		return nil, fmt.Errorf("weekly intervals: %w", err)
	}
	defer rows.Close()

	var out []model.WeeklyInterval
	for rows.Next() {
		var w model.WeeklyInterval
		var startStr, endStr string
		if err := rows.Scan(&w.ID, &w.SpecialistID, &w.Weekday, &startStr, &endStr); err != nil {
			return nil, err
		}
		iv, err := parseInterval(startStr, endStr)
		if err != nil {
			return nil, fmt.Errorf("weekly interval %d: %w", w.ID, err)
		}
		w.Start, w.End = iv.Start, iv.End
		out = append(out, w)
	}
	return out, rows.Err()
}

// AddWeeklyInterval inserts one weekly working window. Windows on the
// same specialist+weekday must not overlap.
func (s *Store) AddWeeklyInterval(ctx context.Context, w *model.WeeklyInterval) error {
	candidate := model.Interval{Start: w.Start, End: w.End}
	if !candidate.Valid() {
		return model.NewValidation("weekly_interval", "interval %s is empty", candidate)
	}
	existing, err := s.WeeklyIntervals(ctx, w.SpecialistID, w.Weekday)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if candidate.Overlaps(e.Interval()) {
			return model.NewValidation("weekly_interval", "overlaps existing interval %s", e.Interval())
		}
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO specialist_weekly_intervals (specialist_id, weekday, start_time, end_time)
		VALUES (?, ?, ?, ?)`,
		w.SpecialistID, w.Weekday, w.Start.String(), w.End.String(),
	)
	if err != nil {
		return fmt.Errorf("add weekly interval: %w", err)
	}
	w.ID, err = res.LastInsertId()
	return err
}

func parseInterval(start, end string) (model.Interval, error) {
	s, err := model.ParseClock(start)
	if err != nil {
		return model.Interval{}, err
	}
	e, err := model.ParseClock(end)
	if err != nil {
		return model.Interval{}, err
	}
	return model.Interval{Start: s, End: e}, nil
}
