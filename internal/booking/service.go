// Package booking is the reservation lifecycle manager: it validates
// reservation requests per scenario, runs availability and pricing, and
// drives the status state machine.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"studiobron/internal/availability"
	"studiobron/internal/config"
	"studiobron/internal/database"
	"studiobron/internal/db"
	"studiobron/internal/metrics"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
)

// Params is the full parameter set for creating or editing one
// reservation. TotalCost is honored only for scenarios without tariff
// pricing; when nil, the cost of the attached services is used.
type Params struct {
	RoomID        int64
	SpecialistID  *int64
	ClientID      *int64
	ClientGroupID *int64
	ScenarioID    int64
	TariffID      *int64
	PeopleCount   int
	Start         time.Time
	End           time.Time
	ServiceIDs    []int64
	Comment       string
	TotalCost     *decimal.Decimal
}

// Service coordinates reservation mutations. Every mutating operation
// runs under the per-resource locks and inside one transaction.
type Service struct {
	store   *db.Store
	checker *availability.Checker
	pricer  *pricing.Engine
	locks   *database.LockManager
	rules   config.BookingConfig
	logger  *zerolog.Logger
}

func NewService(
	store *db.Store,
	checker *availability.Checker,
	pricer *pricing.Engine,
	locks *database.LockManager,
	rules config.BookingConfig,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		store:   store,
		checker: checker,
		pricer:  pricer,
		locks:   locks,
		rules:   rules,
		logger:  logger,
	}
}

// Create validates and persists one reservation, returning it with the
// assigned id and computed total cost.
func (s *Service) Create(ctx context.Context, p Params) (*model.Reservation, error) {
	release := s.locks.Lock(lockKeys(p)...)
	defer release()

	r, err := s.validate(ctx, p, 0)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logCreated(r)
	return r, nil
}

// CreateBatch persists several blocks in one transaction. Blocks are
// first cross-checked against each other in memory, then each against
// the store; any failure aborts the whole batch and carries the
// offending block's index.
func (s *Service) CreateBatch(ctx context.Context, blocks []Params) ([]*model.Reservation, error) {
	if len(blocks) == 0 {
		return nil, model.NewValidation("blocks", "at least one block is required")
	}
	if err := checkIntraBatch(blocks); err != nil {
		return nil, err
	}

	var keys []string
	for _, p := range blocks {
		keys = append(keys, lockKeys(p)...)
	}
	release := s.locks.Lock(keys...)
	defer release()

	reservations := make([]*model.Reservation, 0, len(blocks))
	for i, p := range blocks {
		r, err := s.validate(ctx, p, 0)
		if err != nil {
			if ve, ok := model.AsValidation(err); ok {
				return nil, ve.AtBlock(i)
			}
			return nil, err
		}
		reservations = append(reservations, r)
	}

	err := s.store.WithTx(ctx, func(tx *db.Store) error {
		for _, r := range reservations {
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range reservations {
		s.logCreated(r)
	}
	return reservations, nil
}

// Edit revalidates and rewrites a reservation, excluding its own row
// from conflict checks.
func (s *Service) Edit(ctx context.Context, id int64, p Params) (*model.Reservation, error) {
	release := s.locks.Lock(lockKeys(p)...)
	defer release()

	existing, err := s.store.ReservationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		return nil, model.NewValidation("status", "cannot edit a %s reservation", existing.Status)
	}

	r, err := s.validate(ctx, p, id)
	if err != nil {
		return nil, err
	}
	r.ID = id
	r.Status = existing.Status
	r.CancellationReasonID = existing.CancellationReasonID
	r.CreatedAt = existing.CreatedAt

	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// validate resolves references, applies scenario policy, checks
// availability and prices the reservation. excludeID is the row to
// skip in conflict scans (0 for creates).
func (s *Service) validate(ctx context.Context, p Params, excludeID int64) (*model.Reservation, error) {
	if !p.Start.Before(p.End) {
		return nil, model.NewValidation("start_time", "start must be before end")
	}

	scenario, err := s.store.ScenarioByID(ctx, p.ScenarioID)
	if err != nil {
		return nil, err
	}
	if !scenario.IsActive {
		return nil, model.NewValidation("scenario", "scenario is not active")
	}
	durationMinutes := int(p.End.Sub(p.Start) / time.Minute)
	if scenario.MinBookingDuration > 0 && durationMinutes < scenario.MinBookingDuration {
		return nil, model.NewValidation("end_time", "minimum booking duration is %d minutes", scenario.MinBookingDuration)
	}

	room, err := s.store.RoomByID(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, model.NewValidation("room", "room is not active")
	}
	if !room.AllowsScenario(p.ScenarioID) {
		return nil, model.NewValidation("room", "scenario is not available in this room")
	}

	if p.ClientID != nil {
		if _, err := s.store.ClientByID(ctx, *p.ClientID); err != nil {
			return nil, err
		}
	}
	if p.ClientGroupID != nil {
		if _, err := s.store.ClientGroupByID(ctx, *p.ClientGroupID); err != nil {
			return nil, err
		}
	}

	people := p.PeopleCount
	if people <= 0 {
		people = 1
	}

	var totalCost decimal.Decimal
	if s.rules.TariffRequired(scenario.Name) {
		if p.ClientID == nil && p.ClientGroupID == nil {
			return nil, model.NewValidation("client", "a client or client group is required")
		}
		if p.TariffID == nil {
			return nil, model.NewValidation("tariff", "scenario %q requires a tariff", scenario.Name)
		}
		tariff, err := s.store.TariffByID(ctx, *p.TariffID)
		if err != nil {
			return nil, err
		}
		end := model.ClockOf(p.End)
		q := pricing.Query{
			ScenarioID:  p.ScenarioID,
			RoomID:      p.RoomID,
			Date:        p.Start,
			StartTime:   model.ClockOf(p.Start),
			EndTime:     &end,
			PeopleCount: people,
		}
		if err := s.pricer.Eligible(tariff, q); err != nil {
			return nil, err
		}
		totalCost, err = s.pricer.ComputeCost(ctx, tariff, durationMinutes, p.ServiceIDs)
		if err != nil {
			return nil, err
		}
	} else {
		if p.TariffID != nil {
			return nil, model.NewValidation("tariff", "scenario %q does not allow a tariff", scenario.Name)
		}
		if p.TotalCost != nil {
			if p.TotalCost.IsNegative() {
				return nil, model.NewValidation("total_cost", "total cost cannot be negative")
			}
			totalCost = model.RoundMoney(*p.TotalCost)
		} else {
			totalCost, err = s.pricer.ComputeCost(ctx, nil, durationMinutes, p.ServiceIDs)
			if err != nil {
				return nil, err
			}
		}
	}

	err = s.checker.Check(ctx, availability.Request{
		RoomID:       p.RoomID,
		SpecialistID: p.SpecialistID,
		Start:        p.Start,
		End:          p.End,
		ExcludeID:    excludeID,
	})
	if err != nil {
		if ve, ok := model.AsValidation(err); ok {
			metrics.IncAvailabilityConflict(ve.Field)
		}
		return nil, err
	}

	return &model.Reservation{
		RoomID:        p.RoomID,
		SpecialistID:  p.SpecialistID,
		ClientID:      p.ClientID,
		ClientGroupID: p.ClientGroupID,
		ScenarioID:    p.ScenarioID,
		Status:        model.StatusPending,
		TariffID:      p.TariffID,
		PeopleCount:   people,
		TotalCost:     totalCost,
		Comment:       p.Comment,
		StartTime:     p.Start,
		EndTime:       p.End,
		ServiceIDs:    p.ServiceIDs,
	}, nil
}

// checkIntraBatch rejects batches whose blocks overlap each other on
// the same room or the same specialist, independent of stored data.
func checkIntraBatch(blocks []Params) error {
	for j := 1; j < len(blocks); j++ {
		for i := 0; i < j; i++ {
			a, b := blocks[i], blocks[j]
			if !(a.Start.Before(b.End) && b.Start.Before(a.End)) {
				continue
			}
			if a.RoomID == b.RoomID {
				return model.NewValidation("room", "block overlaps block %d in the same room", i).AtBlock(j)
			}
			if a.SpecialistID != nil && b.SpecialistID != nil && *a.SpecialistID == *b.SpecialistID {
				return model.NewValidation("specialist", "block overlaps block %d for the same specialist", i).AtBlock(j)
			}
		}
	}
	return nil
}

func lockKeys(p Params) []string {
	keys := []string{database.RoomKey(p.RoomID)}
	if p.SpecialistID != nil {
		keys = append(keys, database.SpecialistKey(*p.SpecialistID))
	}
	return keys
}

func (s *Service) logCreated(r *model.Reservation) {
	metrics.IncReservationCreated(fmt.Sprintf("%d", r.ScenarioID))
	if s.logger != nil {
		s.logger.Info().
			Int64("reservation_id", r.ID).
			Int64("room_id", r.RoomID).
			Time("start", r.StartTime).
			Time("end", r.EndTime).
			Str("total_cost", model.MoneyString(r.TotalCost)).
			Msg("reservation created")
	}
}
