// Package availability answers whether a candidate room/specialist/time
// window can be booked, checking room hours, existing reservations and
// the specialist's resolved schedule in a fixed fail-fast order.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studiobron/internal/model"
	"studiobron/internal/schedule"
)

// Store reads the rows a check needs. Reservation queries must already
// exclude cancelled and rejected rows.
type Store interface {
	RoomByID(ctx context.Context, id int64) (*model.Room, error)
	SpecialistByID(ctx context.Context, id int64) (*model.Specialist, error)
	RoomReservationsOn(ctx context.Context, roomID int64, date time.Time) ([]model.Reservation, error)
	SpecialistReservationsOn(ctx context.Context, specialistID int64, date time.Time) ([]model.Reservation, error)
	ClientReservationsOn(ctx context.Context, clientID int64, date time.Time) ([]model.Reservation, error)
}

// Request is one candidate window. ExcludeID, when nonzero, removes
// that reservation from every conflict scan so edits do not collide
// with their own row.
type Request struct {
	RoomID       int64
	SpecialistID *int64
	Start        time.Time
	End          time.Time
	ExcludeID    int64
}

// Checker runs availability checks. Safe for concurrent use.
type Checker struct {
	store    Store
	resolver *schedule.Resolver
	logger   *zerolog.Logger
}

func NewChecker(store Store, resolver *schedule.Resolver, logger *zerolog.Logger) *Checker {
	return &Checker{store: store, resolver: resolver, logger: logger}
}

// Check returns nil when the window is free. Conflicts and bad input
// come back as *model.ValidationError; anything else is an
// infrastructure failure.
//
// Order is fixed: room hours, room overlap, specialist schedule, the
// specialist's client identity, the specialist's own reservations. The
// first failing check wins.
func (c *Checker) Check(ctx context.Context, req Request) error {
	if !req.Start.Before(req.End) {
		return model.NewValidation("start_time", "start must be before end")
	}
	if !model.SameDay(req.Start, req.End) {
		return model.NewValidation("end_time", "reservation must stay within one calendar day")
	}

	room, err := c.store.RoomByID(ctx, req.RoomID)
	if err != nil {
		return err
	}
	window := model.Interval{Start: model.ClockOf(req.Start), End: model.ClockOf(req.End)}
	if !room.WorkingHours().Contains(window) {
		return model.NewValidation("room", "outside room hours %s", room.WorkingHours())
	}

	if err := c.checkRoomOverlap(ctx, req); err != nil {
		return err
	}
	if req.SpecialistID == nil {
		return nil
	}
	return c.checkSpecialist(ctx, req, *req.SpecialistID, window)
}

func (c *Checker) checkRoomOverlap(ctx context.Context, req Request) error {
	existing, err := c.store.RoomReservationsOn(ctx, req.RoomID, req.Start)
	if err != nil {
		return fmt.Errorf("load room reservations: %w", err)
	}
	for i := range existing {
		r := &existing[i]
		if r.ID == req.ExcludeID {
			continue
		}
		// Back-to-back is fine: an existing row ending at our start
		// does not satisfy the half-open overlap anyway.
		if r.OverlapsWindow(req.Start, req.End) {
			return model.NewValidation("room", "room busy %s-%s",
				r.StartTime.Format("15:04"), r.EndTime.Format("15:04"))
		}
	}
	return nil
}

func (c *Checker) checkSpecialist(ctx context.Context, req Request, specialistID int64, window model.Interval) error {
	spec, err := c.store.SpecialistByID(ctx, specialistID)
	if err != nil {
		return err
	}
	if !spec.IsActive {
		return model.NewValidation("specialist", "specialist is not active")
	}

	ds, err := c.resolver.Resolve(ctx, specialistID, req.Start)
	if err != nil {
		return fmt.Errorf("resolve schedule: %w", err)
	}
	if !ds.Allows(window) {
		if ds.Kind == schedule.DayOff {
			return model.NewValidation("specialist", "specialist has a day off on %s",
				req.Start.Format("2006-01-02"))
		}
		return model.NewValidation("specialist", "outside specialist working hours")
	}

	// The same person cannot attend one reservation and run another.
	if spec.ClientID != nil {
		asClient, err := c.store.ClientReservationsOn(ctx, *spec.ClientID, req.Start)
		if err != nil {
			return fmt.Errorf("load client reservations: %w", err)
		}
		for i := range asClient {
			r := &asClient[i]
			if r.ID == req.ExcludeID {
				continue
			}
			if r.OverlapsWindow(req.Start, req.End) {
				return model.NewValidation("specialist", "specialist attends another reservation %s-%s",
					r.StartTime.Format("15:04"), r.EndTime.Format("15:04"))
			}
		}
	}

	teaching, err := c.store.SpecialistReservationsOn(ctx, specialistID, req.Start)
	if err != nil {
		return fmt.Errorf("load specialist reservations: %w", err)
	}
	for i := range teaching {
		r := &teaching[i]
		if r.ID == req.ExcludeID {
			continue
		}
		if r.OverlapsWindow(req.Start, req.End) {
			return model.NewValidation("specialist", "specialist busy %s-%s",
				r.StartTime.Format("15:04"), r.EndTime.Format("15:04"))
		}
	}
	return nil
}
