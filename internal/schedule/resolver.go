// Package schedule resolves a specialist's effective working intervals
// for a calendar date from the recurring weekly template and
// date-specific overrides.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studiobron/internal/model"
)

// Store reads schedule configuration for one specialist.
type Store interface {
	// OverrideForDate returns the override for the date, or nil when none exists.
	OverrideForDate(ctx context.Context, specialistID int64, date time.Time) (*model.ScheduleOverride, error)
	// HasWeeklyIntervals reports whether the specialist has any weekly
	// interval configured at all, on any weekday.
	HasWeeklyIntervals(ctx context.Context, specialistID int64) (bool, error)
	// WeeklyIntervals returns the intervals configured for one weekday
	// (Monday=0 .. Sunday=6).
	WeeklyIntervals(ctx context.Context, specialistID int64, weekday int) ([]model.WeeklyInterval, error)
}

// Cache is an optional read-through cache for resolved day schedules.
// Misses and cache errors both fall through to the store.
type Cache interface {
	Get(ctx context.Context, specialistID int64, date time.Time) (DaySchedule, bool)
	Set(ctx context.Context, specialistID int64, date time.Time, ds DaySchedule)
}

// Kind tags the resolution result.
type Kind int

const (
	// Unrestricted means no schedule is configured at all: the
	// specialist is considered available at any time.
	Unrestricted Kind = iota
	// DayOff means no booking is allowed on this date.
	DayOff
	// Working means bookings must fit inside one of the intervals.
	Working
)

func (k Kind) String() string {
	switch k {
	case Unrestricted:
		return "unrestricted"
	case DayOff:
		return "day_off"
	case Working:
		return "working"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DaySchedule is the resolved schedule of one specialist for one date.
// Intervals is populated only for Working and is always merged: sorted
// by start with overlapping and adjacent ranges folded together.
type DaySchedule struct {
	Kind      Kind
	Intervals []model.Interval
}

// Allows reports whether the candidate window may be booked. A window
// is allowed only when it fits entirely inside one interval.
func (d DaySchedule) Allows(window model.Interval) bool {
	switch d.Kind {
	case Unrestricted:
		return true
	case DayOff:
		return false
	}
	for _, iv := range d.Intervals {
		if iv.Contains(window) {
			return true
		}
	}
	return false
}

// Resolver computes day schedules. Safe for concurrent use.
type Resolver struct {
	store  Store
	cache  Cache
	logger *zerolog.Logger
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(store Store, cache Cache, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, logger: logger}
}

// Resolve returns the specialist's schedule for the date. An override
// for the date fully supersedes the weekly template. With no override,
// a specialist with zero weekly intervals anywhere is Unrestricted, and
// a weekday with no configured intervals is a DayOff.
func (r *Resolver) Resolve(ctx context.Context, specialistID int64, date time.Time) (DaySchedule, error) {
	date = model.DateOf(date)

	if r.cache != nil {
		if ds, ok := r.cache.Get(ctx, specialistID, date); ok {
			return ds, nil
		}
	}

	ds, err := r.resolve(ctx, specialistID, date)
	if err != nil {
		return DaySchedule{}, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, specialistID, date, ds)
	}
	return ds, nil
}

func (r *Resolver) resolve(ctx context.Context, specialistID int64, date time.Time) (DaySchedule, error) {
	override, err := r.store.OverrideForDate(ctx, specialistID, date)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("load schedule override: %w", err)
	}
	if override != nil {
		if override.IsDayOff {
			return DaySchedule{Kind: DayOff}, nil
		}
		merged := model.MergeIntervals(override.Intervals)
		if len(merged) == 0 {
			// An override without intervals blocks the whole day.
			return DaySchedule{Kind: DayOff}, nil
		}
		return DaySchedule{Kind: Working, Intervals: merged}, nil
	}

	hasWeekly, err := r.store.HasWeeklyIntervals(ctx, specialistID)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("check weekly schedule: %w", err)
	}
	if !hasWeekly {
		return DaySchedule{Kind: Unrestricted}, nil
	}

	weekly, err := r.store.WeeklyIntervals(ctx, specialistID, model.Weekday(date))
	if err != nil {
		return DaySchedule{}, fmt.Errorf("load weekly intervals: %w", err)
	}
	if len(weekly) == 0 {
		return DaySchedule{Kind: DayOff}, nil
	}

	intervals := make([]model.Interval, 0, len(weekly))
	for _, w := range weekly {
		intervals = append(intervals, w.Interval())
	}
	merged := model.MergeIntervals(intervals)
	if len(merged) != len(intervals) && r.logger != nil {
		r.logger.Warn().
			Int64("specialist_id", specialistID).
			Str("date", date.Format("2006-01-02")).
			Msg("stored weekly intervals required merging")
	}
	if len(merged) == 0 {
		return DaySchedule{Kind: DayOff}, nil
	}
	return DaySchedule{Kind: Working, Intervals: merged}, nil
}
