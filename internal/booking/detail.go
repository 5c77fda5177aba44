package booking

import (
	"context"

	"github.com/shopspring/decimal"

	"studiobron/internal/model"
)

// Detail is the billing view of one reservation: the rental/services
// cost split, what has been paid and how many prepaid units could still
// be applied.
type Detail struct {
	Reservation     model.Reservation
	RentalCost      decimal.Decimal
	ServicesCost    decimal.Decimal
	PaidTotal       decimal.Decimal
	Remaining       decimal.Decimal
	RemainingRental decimal.Decimal
	MaxTariffUnits  int
}

// Detail assembles the billing view.
func (s *Service) Detail(ctx context.Context, id int64) (*Detail, error) {
	r, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	servicesCost := decimal.Zero
	if len(r.ServiceIDs) > 0 {
		services, err := s.store.ServicesByIDs(ctx, r.ServiceIDs)
		if err != nil {
			return nil, err
		}
		for i := range services {
			servicesCost = servicesCost.Add(services[i].Cost)
		}
	}
	rental := r.TotalCost.Sub(servicesCost)
	if rental.IsNegative() {
		rental = decimal.Zero
	}

	paid, err := s.store.ActivePaymentTotal(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Reservation:  *r,
		RentalCost:   rental,
		ServicesCost: servicesCost,
		PaidTotal:    paid,
		Remaining:    r.TotalCost.Sub(paid),
	}

	d.RemainingRental, d.MaxTariffUnits, err = s.unitHeadroom(ctx, r, rental)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// unitHeadroom computes how much rental is still payable with prepaid
// units: remaining rental bounded by the client's balance.
func (s *Service) unitHeadroom(ctx context.Context, r *model.Reservation, rental decimal.Decimal) (decimal.Decimal, int, error) {
	unitType, err := s.store.PaymentTypeByName(ctx, model.TariffUnitsPaymentType)
	if err != nil {
		if _, ok := model.AsNotFound(err); ok {
			return rental, 0, nil
		}
		return decimal.Zero, 0, err
	}

	payments, err := s.store.PaymentsForReservation(ctx, r.ID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	unitPaid := decimal.Zero
	for _, p := range payments {
		if p.PaymentTypeID == unitType.ID && !p.IsCancelled {
			unitPaid = unitPaid.Add(p.Amount)
		}
	}
	remainingRental := rental.Sub(unitPaid)
	if remainingRental.IsNegative() {
		remainingRental = decimal.Zero
	}

	if r.ClientID == nil {
		return remainingRental, 0, nil
	}
	unit, err := s.store.TariffUnitForScenario(ctx, r.ScenarioID)
	if err != nil {
		if _, ok := model.AsNotFound(err); ok {
			return remainingRental, 0, nil
		}
		return decimal.Zero, 0, err
	}
	if unit.UnitCost.IsZero() {
		return remainingRental, 0, nil
	}
	sub, err := s.store.SubscriptionFor(ctx, *r.ClientID, r.ScenarioID)
	if err != nil {
		if _, ok := model.AsNotFound(err); ok {
			return remainingRental, 0, nil
		}
		return decimal.Zero, 0, err
	}

	maxUnits := int(remainingRental.Div(unit.UnitCost).IntPart())
	if sub.Balance < maxUnits {
		maxUnits = sub.Balance
	}
	return remainingRental, maxUnits, nil
}
