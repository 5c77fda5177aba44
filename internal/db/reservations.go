package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiobron/internal/model"
)

const reservationColumns = `
	id, room_id, specialist_id, client_id, client_group_id, scenario_id,
	status, cancellation_reason_id, tariff_id, people_count, total_cost,
	comment, start_time, end_time, created_at, updated_at`

// ReservationByID loads a reservation with its attached services.
func (s *Store) ReservationByID(ctx context.Context, id int64) (*model.Reservation, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT"+reservationColumns+" FROM reservations WHERE id = ?", id)
	r, err := scanReservation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}

	r.ServiceIDs, err = s.linkedIDs(ctx,
		"SELECT service_id FROM reservation_services WHERE reservation_id = ? ORDER BY service_id", id)
	if err != nil {
		return nil, fmt.Errorf("reservation %d services: %w", id, err)
	}
	return r, nil
}

// RoomReservationsOn returns the room's non-terminal reservations that
// start on the given date, ordered by start time.
func (s *Store) RoomReservationsOn(ctx context.Context, roomID int64, date time.Time) ([]model.Reservation, error) {
	start, end := dayBounds(date)
	return s.listReservations(ctx, `
		SELECT`+reservationColumns+`
		FROM reservations
		WHERE room_id = ?
		AND start_time >= ? AND start_time < ?
		AND status NOT IN ('cancelled', 'rejected')
		ORDER BY start_time`,
		roomID, start, end)
}

// SpecialistReservationsOn returns the specialist's own non-terminal
// reservations on the date.
func (s *Store) SpecialistReservationsOn(ctx context.Context, specialistID int64, date time.Time) ([]model.Reservation, error) {
	start, end := dayBounds(date)
	return s.listReservations(ctx, `
		SELECT`+reservationColumns+`
		FROM reservations
		WHERE specialist_id = ?
		AND start_time >= ? AND start_time < ?
		AND status NOT IN ('cancelled', 'rejected')
		ORDER BY start_time`,
		specialistID, start, end)
}

// ClientReservationsOn returns non-terminal reservations where the
// client attends, on the date.
func (s *Store) ClientReservationsOn(ctx context.Context, clientID int64, date time.Time) ([]model.Reservation, error) {
	start, end := dayBounds(date)
	return s.listReservations(ctx, `
		SELECT`+reservationColumns+`
		FROM reservations
		WHERE client_id = ?
		AND start_time >= ? AND start_time < ?
		AND status NOT IN ('cancelled', 'rejected')
		ORDER BY start_time`,
		clientID, start, end)
}

// ReservationsBetween returns all reservations starting in [from, to),
// any status, for reporting.
func (s *Store) ReservationsBetween(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT`+reservationColumns+`
		FROM reservations
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		from, to)
}

// InsertReservation writes the row and its service links, filling r.ID.
func (s *Store) InsertReservation(ctx context.Context, r *model.Reservation) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO reservations (
			room_id, specialist_id, client_id, client_group_id, scenario_id,
			status, cancellation_reason_id, tariff_id, people_count, total_cost,
			comment, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoomID, nullInt64(r.SpecialistID), nullInt64(r.ClientID), nullInt64(r.ClientGroupID),
		r.ScenarioID, string(r.Status), nullInt64(r.CancellationReasonID), nullInt64(r.TariffID),
		r.PeopleCount, model.MoneyString(r.TotalCost), r.Comment, r.StartTime, r.EndTime,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return s.replaceReservationServices(ctx, r.ID, r.ServiceIDs)
}

// UpdateReservation rewrites the mutable fields and service links.
func (s *Store) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE reservations SET
			room_id = ?, specialist_id = ?, client_id = ?, client_group_id = ?,
			scenario_id = ?, status = ?, cancellation_reason_id = ?, tariff_id = ?,
			people_count = ?, total_cost = ?, comment = ?, start_time = ?, end_time = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		r.RoomID, nullInt64(r.SpecialistID), nullInt64(r.ClientID), nullInt64(r.ClientGroupID),
		r.ScenarioID, string(r.Status), nullInt64(r.CancellationReasonID), nullInt64(r.TariffID),
		r.PeopleCount, model.MoneyString(r.TotalCost), r.Comment, r.StartTime, r.EndTime,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", r.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.NewNotFound("reservation", r.ID)
	}
	return s.replaceReservationServices(ctx, r.ID, r.ServiceIDs)
}

// UpdateReservationStatus sets the status column only.
func (s *Store) UpdateReservationStatus(ctx context.Context, id int64, status model.Status) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.NewNotFound("reservation", id)
	}
	return nil
}

func (s *Store) replaceReservationServices(ctx context.Context, reservationID int64, serviceIDs []int64) error {
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM reservation_services WHERE reservation_id = ?", reservationID,
	); err != nil {
		return fmt.Errorf("clear reservation services: %w", err)
	}
	for _, serviceID := range serviceIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO reservation_services (reservation_id, service_id) VALUES (?, ?)",
			reservationID, serviceID,
		); err != nil {
			return fmt.Errorf("link reservation %d service %d: %w", reservationID, serviceID, err)
		}
	}
	return nil
}

func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReservation(scan func(dest ...any) error) (*model.Reservation, error) {
	var r model.Reservation
	var specialistID, clientID, clientGroupID, reasonID, tariffID sql.NullInt64
	var status, totalCost string
	var comment sql.NullString
	err := scan(
		&r.ID, &r.RoomID, &specialistID, &clientID, &clientGroupID, &r.ScenarioID,
		&status, &reasonID, &tariffID, &r.PeopleCount, &totalCost,
		&comment, &r.StartTime, &r.EndTime, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.SpecialistID = int64Ptr(specialistID)
	r.ClientID = int64Ptr(clientID)
	r.ClientGroupID = int64Ptr(clientGroupID)
	r.CancellationReasonID = int64Ptr(reasonID)
	r.TariffID = int64Ptr(tariffID)
	r.Status = model.Status(status)
	r.Comment = comment.String
	if r.TotalCost, err = model.ParseMoney(totalCost); err != nil {
		return nil, fmt.Errorf("reservation %d total_cost: %w", r.ID, err)
	}
	return &r, nil
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := model.DateOf(date)
	return start, start.AddDate(0, 0, 1)
}
