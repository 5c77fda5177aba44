package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the reservation lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// statusTransitions lists the allowed lifecycle moves. Cancelled and
// rejected are terminal; paid is terminal for billing but can still be
// cancelled or rejected.
var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled, StatusRejected},
	StatusApproved: {StatusPaid, StatusCancelled, StatusRejected},
	StatusPaid:     {StatusCancelled, StatusRejected},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status frees the reserved slot.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRejected
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Reservation books a room for a time window within one calendar day.
// Rows are never deleted; cancellation is a status change.
type Reservation struct {
	ID                   int64
	RoomID               int64
	SpecialistID         *int64
	ClientID             *int64
	ClientGroupID        *int64
	ScenarioID           int64
	Status               Status
	CancellationReasonID *int64
	TariffID             *int64
	PeopleCount          int
	TotalCost            decimal.Decimal
	Comment              string
	StartTime            time.Time
	EndTime              time.Time
	ServiceIDs           []int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Duration returns the booked window length.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// DurationMinutes returns the booked window length in whole minutes.
func (r *Reservation) DurationMinutes() int {
	return int(r.Duration() / time.Minute)
}

// OverlapsWith reports half-open interval overlap with another
// reservation's window.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	return r.StartTime.Before(other.EndTime) && other.StartTime.Before(r.EndTime)
}

// OverlapsWindow reports half-open overlap with an arbitrary window.
func (r *Reservation) OverlapsWindow(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// IsSingleDay reports whether the window stays within one calendar day.
func (r *Reservation) IsSingleDay() bool {
	return SameDay(r.StartTime, r.EndTime)
}
