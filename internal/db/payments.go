package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"studiobron/internal/model"
)

const paymentColumns = `
	id, reservation_id, payment_type_id, amount, is_cancelled,
	comment, idempotency_key, created_at, updated_at`

// PaymentByID loads one ledger entry.
func (s *Store) PaymentByID(ctx context.Context, id int64) (*model.Payment, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("payment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}
	return p, nil
}

// PaymentByIdempotencyKey returns the entry recorded under the key, or
// nil when the key is unseen.
func (s *Store) PaymentByIdempotencyKey(ctx context.Context, key string) (*model.Payment, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE idempotency_key = ?", key)
	p, err := scanPayment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by key: %w", err)
	}
	return p, nil
}

// PaymentsForReservation returns every entry for the reservation,
// cancelled ones included, oldest first.
func (s *Store) PaymentsForReservation(ctx context.Context, reservationID int64) ([]model.Payment, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE reservation_id = ? ORDER BY id", reservationID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ActivePaymentTotal sums the non-cancelled entries for a reservation.
// excludeID, when nonzero, removes one entry from the sum for edits.
func (s *Store) ActivePaymentTotal(ctx context.Context, reservationID, excludeID int64) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT amount FROM payments
		WHERE reservation_id = ? AND is_cancelled = 0 AND id != ?`,
		reservationID, excludeID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, err
		}
		amount, err := model.ParseMoney(amountStr)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// InsertPayment writes one ledger entry, filling p.ID.
func (s *Store) InsertPayment(ctx context.Context, p *model.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (reservation_id, payment_type_id, amount, is_cancelled, comment, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ReservationID, p.PaymentTypeID, model.MoneyString(p.Amount), p.IsCancelled, p.Comment, p.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// UpdatePayment rewrites amount, type and comment.
func (s *Store) UpdatePayment(ctx context.Context, p *model.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET
			payment_type_id = ?, amount = ?, comment = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		p.PaymentTypeID, model.MoneyString(p.Amount), p.Comment, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.NewNotFound("payment", p.ID)
	}
	return nil
}

// MarkPaymentCancelled flips the cancelled flag.
func (s *Store) MarkPaymentCancelled(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE payments SET is_cancelled = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("cancel payment %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.NewNotFound("payment", id)
	}
	return nil
}

func scanPayment(scan func(dest ...any) error) (*model.Payment, error) {
	var p model.Payment
	var amountStr string
	var comment, key sql.NullString
	err := scan(
		&p.ID, &p.ReservationID, &p.PaymentTypeID, &amountStr, &p.IsCancelled,
		&comment, &key, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Comment = comment.String
	p.IdempotencyKey = key.String
	if p.Amount, err = model.ParseMoney(amountStr); err != nil {
		return nil, fmt.Errorf("payment %d amount: %w", p.ID, err)
	}
	return &p, nil
}
