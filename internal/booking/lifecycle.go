package booking

import (
	"context"
	"fmt"
	"strings"

	"studiobron/internal/db"
	"studiobron/internal/metrics"
	"studiobron/internal/model"
)

// Confirm moves a pending reservation to approved. No other side
// effects.
func (s *Service) Confirm(ctx context.Context, id int64) error {
	return s.transition(ctx, id, model.StatusApproved)
}

// Reject marks the reservation rejected, freeing its slot.
func (s *Service) Reject(ctx context.Context, id int64) error {
	return s.transition(ctx, id, model.StatusRejected)
}

func (s *Service) transition(ctx context.Context, id int64, next model.Status) error {
	return s.store.WithTx(ctx, func(tx *db.Store) error {
		r, err := tx.ReservationByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(next) {
			return model.NewValidation("status", "cannot move from %s to %s", r.Status, next)
		}
		return tx.UpdateReservationStatus(ctx, id, next)
	})
}

// Cancel marks the reservation cancelled, appends the reason to the
// comment and refunds tariff-unit payments back to the client's
// subscription balance, recording a negative ledger entry for each
// refund. The row itself is retained.
func (s *Service) Cancel(ctx context.Context, id, reasonID int64, comment string) error {
	reason, err := s.store.CancellationReasonByID(ctx, reasonID)
	if err != nil {
		return err
	}
	if !reason.IsActive {
		return model.NewValidation("cancellation_reason", "reason is not active")
	}

	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		r, err := tx.ReservationByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(model.StatusCancelled) {
			return model.NewValidation("status", "cannot cancel a %s reservation", r.Status)
		}

		if err := s.refundTariffUnits(ctx, tx, r); err != nil {
			return err
		}

		r.Status = model.StatusCancelled
		r.CancellationReasonID = &reason.ID
		note := "cancelled: " + reason.Name
		if comment != "" {
			note += " (" + comment + ")"
		}
		if r.Comment != "" {
			r.Comment = strings.TrimRight(r.Comment, "\n") + "\n" + note
		} else {
			r.Comment = note
		}
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return err
	}

	metrics.IncReservationCancelled()
	if s.logger != nil {
		s.logger.Info().
			Int64("reservation_id", id).
			Str("reason", reason.Name).
			Msg("reservation cancelled")
	}
	return nil
}

// refundTariffUnits credits units consumed by non-cancelled tariff-unit
// payments back to the client's subscription.
func (s *Service) refundTariffUnits(ctx context.Context, tx *db.Store, r *model.Reservation) error {
	payments, err := tx.PaymentsForReservation(ctx, r.ID)
	if err != nil {
		return err
	}
	unitType, err := tx.PaymentTypeByName(ctx, model.TariffUnitsPaymentType)
	if err != nil {
		if _, ok := model.AsNotFound(err); ok {
			return nil
		}
		return err
	}

	var unitPayments []model.Payment
	for _, p := range payments {
		if p.PaymentTypeID == unitType.ID && !p.IsCancelled && p.Amount.IsPositive() {
			unitPayments = append(unitPayments, p)
		}
	}
	if len(unitPayments) == 0 {
		return nil
	}
	if r.ClientID == nil {
		return model.Invariant("reservation %d has tariff-unit payments but no client", r.ID)
	}

	unit, err := tx.TariffUnitForScenario(ctx, r.ScenarioID)
	if err != nil {
		return err
	}
	if unit.UnitCost.IsZero() {
		return model.Invariant("tariff unit for scenario %d has zero cost", r.ScenarioID)
	}
	sub, err := tx.SubscriptionFor(ctx, *r.ClientID, r.ScenarioID)
	if err != nil {
		return err
	}

	for _, p := range unitPayments {
		units := int(p.Amount.Div(unit.UnitCost).IntPart())
		if units <= 0 {
			continue
		}
		if err := tx.AdjustSubscriptionBalance(ctx, sub.ID, units); err != nil {
			return err
		}
		refund := &model.Payment{
			ReservationID: r.ID,
			PaymentTypeID: unitType.ID,
			Amount:        p.Amount.Neg(),
			Comment:       fmt.Sprintf("refund of %d units for payment %d", units, p.ID),
		}
		if err := tx.InsertPayment(ctx, refund); err != nil {
			return err
		}
	}
	return nil
}
