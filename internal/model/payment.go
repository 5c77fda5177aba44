package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TariffUnitsPaymentType is the reserved payment type for
// subscription-funded payments. It never appears in the manual payment
// type list and is the only type whose cancellation semantics differ
// from a plain ledger entry.
const TariffUnitsPaymentType = "tariff_units"

// PaymentType is a catalog entry (cash, card, transfer, tariff units).
type PaymentType struct {
	ID       int64
	Name     string
	IsActive bool
	Order    int
}

// Payment is a signed ledger entry against a reservation's total cost.
// Negative amounts are refunds. Cancelled entries stay in the table but
// are excluded from every balance computation.
type Payment struct {
	ID             int64
	ReservationID  int64
	PaymentTypeID  int64
	Amount         decimal.Decimal
	IsCancelled    bool
	Comment        string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
