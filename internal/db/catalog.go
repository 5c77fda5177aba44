package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"studiobron/internal/model"
)

// ClientByID loads one client.
func (s *Store) ClientByID(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	var phone, email sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM clients
		WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &phone, &email, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("client", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get client %d: %w", id, err)
	}
	c.Phone = phone.String
	c.Email = email.String
	return &c, nil
}

// CreateClient inserts a client row.
func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO clients (name, phone, email) VALUES (?, ?, ?)",
		c.Name, c.Phone, c.Email,
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ClientGroupByID loads one client group.
func (s *Store) ClientGroupByID(ctx context.Context, id int64) (*model.ClientGroup, error) {
	var g model.ClientGroup
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name FROM client_groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("client_group", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get client group %d: %w", id, err)
	}
	return &g, nil
}

// ServicesByIDs loads the services for the given ids. Missing ids are
// simply absent from the result.
func (s *Store) ServicesByIDs(ctx context.Context, ids []int64) ([]model.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT id, name, cost, group_id FROM services WHERE id IN ("+placeholders+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		var cost string
		var groupID sql.NullInt64
		if err := rows.Scan(&svc.ID, &svc.Name, &cost, &groupID); err != nil {
			return nil, err
		}
		svc.GroupID = int64Ptr(groupID)
		if svc.Cost, err = model.ParseMoney(cost); err != nil {
			return nil, fmt.Errorf("service %d cost: %w", svc.ID, err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// CreateService inserts a service row.
func (s *Store) CreateService(ctx context.Context, svc *model.Service) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO services (name, cost, group_id) VALUES (?, ?, ?)",
		svc.Name, model.MoneyString(svc.Cost), nullInt64(svc.GroupID),
	)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	svc.ID, err = res.LastInsertId()
	return err
}

// CancellationReasonByID loads one catalog entry.
func (s *Store) CancellationReasonByID(ctx context.Context, id int64) (*model.CancellationReason, error) {
	var cr model.CancellationReason
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, is_active, sort_order FROM cancellation_reasons WHERE id = ?", id,
	).Scan(&cr.ID, &cr.Name, &cr.IsActive, &cr.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("cancellation_reason", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get cancellation reason %d: %w", id, err)
	}
	return &cr, nil
}

// ListCancellationReasons returns active reasons in display order.
func (s *Store) ListCancellationReasons(ctx context.Context) ([]model.CancellationReason, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, is_active, sort_order
		FROM cancellation_reasons
		WHERE is_active = 1
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list cancellation reasons: %w", err)
	}
	defer rows.Close()

	var out []model.CancellationReason
	for rows.Next() {
		var cr model.CancellationReason
		if err := rows.Scan(&cr.ID, &cr.Name, &cr.IsActive, &cr.Order); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// CreateCancellationReason inserts a catalog entry.
func (s *Store) CreateCancellationReason(ctx context.Context, cr *model.CancellationReason) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO cancellation_reasons (name, is_active, sort_order) VALUES (?, ?, ?)",
		cr.Name, cr.IsActive, cr.Order,
	)
	if err != nil {
		return fmt.Errorf("create cancellation reason: %w", err)
	}
	cr.ID, err = res.LastInsertId()
	return err
}

// PaymentTypeByID loads one catalog entry.
func (s *Store) PaymentTypeByID(ctx context.Context, id int64) (*model.PaymentType, error) {
	var pt model.PaymentType
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, is_active, sort_order FROM payment_types WHERE id = ?", id,
	).Scan(&pt.ID, &pt.Name, &pt.IsActive, &pt.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("payment_type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment type %d: %w", id, err)
	}
	return &pt, nil
}

// PaymentTypeByName loads a catalog entry by its unique name.
func (s *Store) PaymentTypeByName(ctx context.Context, name string) (*model.PaymentType, error) {
	var pt model.PaymentType
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, is_active, sort_order FROM payment_types WHERE name = ?", name,
	).Scan(&pt.ID, &pt.Name, &pt.IsActive, &pt.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("payment_type", 0)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment type %q: %w", name, err)
	}
	return &pt, nil
}

// ListManualPaymentTypes returns active types offered for manual
// payments. The reserved tariff-units type is excluded.
func (s *Store) ListManualPaymentTypes(ctx context.Context) ([]model.PaymentType, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, is_active, sort_order
		FROM payment_types
		WHERE is_active = 1 AND name != ?
		ORDER BY sort_order, id`,
		model.TariffUnitsPaymentType,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment types: %w", err)
	}
	defer rows.Close()

	var out []model.PaymentType
	for rows.Next() {
		var pt model.PaymentType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.IsActive, &pt.Order); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// EnsurePaymentType inserts the type when it is missing and returns it.
func (s *Store) EnsurePaymentType(ctx context.Context, name string) (*model.PaymentType, error) {
	pt, err := s.PaymentTypeByName(ctx, name)
	if err == nil {
		return pt, nil
	}
	if _, ok := model.AsNotFound(err); !ok {
		return nil, err
	}
	if _, err := s.q.ExecContext(ctx,
		"INSERT INTO payment_types (name, is_active) VALUES (?, 1)", name,
	); err != nil {
		return nil, fmt.Errorf("create payment type %q: %w", name, err)
	}
	return s.PaymentTypeByName(ctx, name)
}
