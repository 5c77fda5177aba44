package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a billable person. Simple CRUD around clients lives outside
// this core; the struct exists because reservations and subscriptions
// reference it.
type Client struct {
	ID        int64
	Name      string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientGroup is a named set of clients booked together.
type ClientGroup struct {
	ID   int64
	Name string
}

// Service is an ancillary paid extra attached to a reservation
// (equipment rental, recording, and so on).
type Service struct {
	ID      int64
	Name    string
	Cost    decimal.Decimal
	GroupID *int64
}

// CancellationReason is a catalog entry required when cancelling.
type CancellationReason struct {
	ID       int64
	Name     string
	IsActive bool
	Order    int
}
