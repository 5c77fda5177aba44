// Package ledger records, edits and cancels payments against a
// reservation's total cost, enforcing the non-overpayment invariant and
// the paid-status transition.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"studiobron/internal/db"
	"studiobron/internal/metrics"
	"studiobron/internal/model"
)

// Entry is one incoming payment in a submission. A nonempty
// IdempotencyKey makes re-submission return the original entry instead
// of recording a duplicate.
type Entry struct {
	PaymentTypeID  int64
	Amount         decimal.Decimal
	Comment        string
	IdempotencyKey string
}

// Service is the payment ledger.
type Service struct {
	store  *db.Store
	logger *zerolog.Logger
}

func NewService(store *db.Store, logger *zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Record writes the entries in one transaction. The whole submission is
// rejected when the incoming sum exceeds what remains of the total
// cost; nothing is applied partially. Reaching the total cost moves the
// reservation to paid.
func (s *Service) Record(ctx context.Context, reservationID int64, entries []Entry) ([]*model.Payment, error) {
	if len(entries) == 0 {
		return nil, model.NewValidation("payments", "at least one payment is required")
	}

	var recorded []*model.Payment
	err := s.store.WithTx(ctx, func(tx *db.Store) error {
		r, err := tx.ReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status.IsTerminal() {
			return model.NewValidation("status", "cannot pay a %s reservation", r.Status)
		}

		// Replays of an already-recorded submission return the stored
		// entries without touching the balance check.
		replayed, done, err := s.replay(ctx, tx, entries)
		if err != nil {
			return err
		}
		if done {
			recorded = replayed
			return nil
		}

		existing, err := tx.ActivePaymentTotal(ctx, reservationID, 0)
		if err != nil {
			return err
		}
		incoming := decimal.Zero
		for _, e := range entries {
			incoming = incoming.Add(e.Amount)
		}
		if existing.Add(incoming).GreaterThan(r.TotalCost) {
			remaining := r.TotalCost.Sub(existing)
			return model.NewValidation("amount", "payment of %s exceeds remaining %s",
				model.MoneyString(incoming), model.MoneyString(remaining))
		}

		for _, e := range entries {
			pt, err := tx.PaymentTypeByID(ctx, e.PaymentTypeID)
			if err != nil {
				return err
			}
			if !pt.IsActive {
				return model.NewValidation("payment_type", "payment type %q is not active", pt.Name)
			}
			if pt.Name == model.TariffUnitsPaymentType {
				return model.NewValidation("payment_type", "tariff units are paid through the subscription balance")
			}
			p := &model.Payment{
				ReservationID:  reservationID,
				PaymentTypeID:  e.PaymentTypeID,
				Amount:         model.RoundMoney(e.Amount),
				Comment:        e.Comment,
				IdempotencyKey: e.IdempotencyKey,
			}
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			recorded = append(recorded, p)
			metrics.IncPaymentRecorded(pt.Name)
		}
		return s.maybeMarkPaid(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info().
			Int64("reservation_id", reservationID).
			Int("entries", len(recorded)).
			Msg("payments recorded")
	}
	return recorded, nil
}

// PayWithUnits charges the client's subscription balance: units at the
// scenario's unit cost, bounded by the remaining rental cost and the
// balance. The decrement and the ledger entry share one transaction.
func (s *Service) PayWithUnits(ctx context.Context, reservationID int64, units int) (*model.Payment, error) {
	if units <= 0 {
		return nil, model.NewValidation("units", "units must be positive")
	}

	var payment *model.Payment
	err := s.store.WithTx(ctx, func(tx *db.Store) error {
		r, err := tx.ReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status.IsTerminal() {
			return model.NewValidation("status", "cannot pay a %s reservation", r.Status)
		}
		if r.ClientID == nil {
			return model.NewValidation("client", "unit payments require a client")
		}

		unit, err := tx.TariffUnitForScenario(ctx, r.ScenarioID)
		if err != nil {
			return err
		}
		if !unit.UnitCost.IsPositive() {
			return model.Invariant("tariff unit for scenario %d has non-positive cost", r.ScenarioID)
		}
		sub, err := tx.SubscriptionFor(ctx, *r.ClientID, r.ScenarioID)
		if err != nil {
			return err
		}

		maxUnits, err := s.unitHeadroom(ctx, tx, r, unit, sub)
		if err != nil {
			return err
		}
		if units > maxUnits {
			return model.NewValidation("units", "at most %d units can be applied", maxUnits)
		}

		unitType, err := tx.EnsurePaymentType(ctx, model.TariffUnitsPaymentType)
		if err != nil {
			return err
		}
		if err := tx.AdjustSubscriptionBalance(ctx, sub.ID, -units); err != nil {
			return err
		}

		amount := unit.UnitCost.Mul(decimal.NewFromInt(int64(units)))
		payment = &model.Payment{
			ReservationID: reservationID,
			PaymentTypeID: unitType.ID,
			Amount:        model.RoundMoney(amount),
			Comment:       fmt.Sprintf("%d units", units),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		metrics.IncPaymentRecorded(model.TariffUnitsPaymentType)
		return s.maybeMarkPaid(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Edit rewrites a payment's type, amount and comment, re-running the
// balance check with the edited entry excluded. Cancelled entries
// cannot be edited.
func (s *Service) Edit(ctx context.Context, paymentID, paymentTypeID int64, amount decimal.Decimal, comment string) error {
	return s.store.WithTx(ctx, func(tx *db.Store) error {
		p, err := tx.PaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.IsCancelled {
			return model.NewValidation("payment", "cannot edit a cancelled payment")
		}

		r, err := tx.ReservationByID(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		others, err := tx.ActivePaymentTotal(ctx, p.ReservationID, paymentID)
		if err != nil {
			return err
		}
		if others.Add(amount).GreaterThan(r.TotalCost) {
			return model.NewValidation("amount", "payment of %s exceeds remaining %s",
				model.MoneyString(amount), model.MoneyString(r.TotalCost.Sub(others)))
		}

		pt, err := tx.PaymentTypeByID(ctx, paymentTypeID)
		if err != nil {
			return err
		}
		if !pt.IsActive {
			return model.NewValidation("payment_type", "payment type %q is not active", pt.Name)
		}

		p.PaymentTypeID = paymentTypeID
		p.Amount = model.RoundMoney(amount)
		p.Comment = comment
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		return s.maybeMarkPaid(ctx, tx, r)
	})
}

// Cancel flips the cancelled flag, excluding the entry from every
// future balance computation. The subscription balance is not restored
// here; only reservation cancellation refunds units.
func (s *Service) Cancel(ctx context.Context, paymentID int64) error {
	return s.store.WithTx(ctx, func(tx *db.Store) error {
		p, err := tx.PaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.IsCancelled {
			return model.NewValidation("payment", "payment is already cancelled")
		}
		return tx.MarkPaymentCancelled(ctx, paymentID)
	})
}

// maybeMarkPaid moves the reservation to paid once the non-cancelled
// total reaches the total cost.
func (s *Service) maybeMarkPaid(ctx context.Context, tx *db.Store, r *model.Reservation) error {
	total, err := tx.ActivePaymentTotal(ctx, r.ID, 0)
	if err != nil {
		return err
	}
	if total.LessThan(r.TotalCost) || r.Status == model.StatusPaid {
		return nil
	}
	status := r.Status
	if status == model.StatusPending {
		if err := tx.UpdateReservationStatus(ctx, r.ID, model.StatusApproved); err != nil {
			return err
		}
		status = model.StatusApproved
	}
	if !status.CanTransition(model.StatusPaid) {
		return nil
	}
	return tx.UpdateReservationStatus(ctx, r.ID, model.StatusPaid)
}

func (s *Service) replay(ctx context.Context, tx *db.Store, entries []Entry) ([]*model.Payment, bool, error) {
	var found []*model.Payment
	keyed := 0
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		keyed++
		p, err := tx.PaymentByIdempotencyKey(ctx, e.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if p != nil {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	if len(found) != keyed || keyed != len(entries) {
		return nil, false, model.NewValidation("idempotency_key", "submission partially recorded under other keys")
	}
	return found, true, nil
}

func (s *Service) unitHeadroom(ctx context.Context, tx *db.Store, r *model.Reservation, unit *model.TariffUnit, sub *model.Subscription) (int, error) {
	servicesCost := decimal.Zero
	if len(r.ServiceIDs) > 0 {
		services, err := tx.ServicesByIDs(ctx, r.ServiceIDs)
		if err != nil {
			return 0, err
		}
		for i := range services {
			servicesCost = servicesCost.Add(services[i].Cost)
		}
	}
	rental := r.TotalCost.Sub(servicesCost)
	if rental.IsNegative() {
		rental = decimal.Zero
	}

	unitType, err := tx.PaymentTypeByName(ctx, model.TariffUnitsPaymentType)
	unitPaid := decimal.Zero
	if err == nil {
		payments, err := tx.PaymentsForReservation(ctx, r.ID)
		if err != nil {
			return 0, err
		}
		for _, p := range payments {
			if p.PaymentTypeID == unitType.ID && !p.IsCancelled {
				unitPaid = unitPaid.Add(p.Amount)
			}
		}
	} else if _, ok := model.AsNotFound(err); !ok {
		return 0, err
	}

	remainingRental := rental.Sub(unitPaid)
	if remainingRental.IsNegative() {
		remainingRental = decimal.Zero
	}
	maxUnits := int(remainingRental.Div(unit.UnitCost).IntPart())
	if sub.Balance < maxUnits {
		maxUnits = sub.Balance
	}
	return maxUnits, nil
}
