package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobron/internal/database"
	"studiobron/internal/db"
	"studiobron/internal/model"
)

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type env struct {
	store *db.Store
	svc   *Service

	scenario model.Scenario
	client   model.Client
	cash     *model.PaymentType
	roomID   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	d, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	store := db.New(d)

	e := &env{store: store, svc: NewService(store, nil)}

	e.scenario = model.Scenario{Name: "Репетиционная точка", IsActive: true}
	require.NoError(t, store.CreateScenario(ctx, &e.scenario))

	room := model.Room{
		Name:      "Зал 1",
		HourStart: model.MustClock("09:00"),
		HourEnd:   model.MustClock("21:00"),
		IsActive:  true,
	}
	require.NoError(t, store.CreateRoom(ctx, &room))
	e.client = model.Client{Name: "Иван"}
	require.NoError(t, store.CreateClient(ctx, &e.client))

	e.cash, err = store.EnsurePaymentType(ctx, "cash")
	require.NoError(t, err)
	_, err = store.EnsurePaymentType(ctx, model.TariffUnitsPaymentType)
	require.NoError(t, err)

	e.roomID = room.ID
	return e
}

// reservation inserts a pending reservation with the given total cost.
func (e *env) reservation(t *testing.T, cost string) *model.Reservation {
	t.Helper()
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	r := &model.Reservation{
		RoomID:     e.roomID,
		ClientID:   &e.client.ID,
		ScenarioID: e.scenario.ID,
		Status:     model.StatusPending,
		TotalCost:  money(cost),
		StartTime:  start,
		EndTime:    start.Add(90 * time.Minute),
	}
	require.NoError(t, e.store.InsertReservation(context.Background(), r))
	return r
}

func (e *env) status(t *testing.T, id int64) model.Status {
	t.Helper()
	r, err := e.store.ReservationByID(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func TestRecordNonOverpayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "170.00")

	entry := func(amount string) []Entry {
		return []Entry{{PaymentTypeID: e.cash.ID, Amount: money(amount)}}
	}

	_, err := e.svc.Record(ctx, r.ID, entry("100.00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, e.status(t, r.ID))

	// 100 + 80 > 170: the whole submission is rejected.
	_, err = e.svc.Record(ctx, r.ID, entry("80.00"))
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "amount", ve.Field)

	_, err = e.svc.Record(ctx, r.ID, entry("70.00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, e.status(t, r.ID))
}

func TestRecordBatchAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	_, err := e.svc.Record(ctx, r.ID, []Entry{
		{PaymentTypeID: e.cash.ID, Amount: money("60.00")},
		{PaymentTypeID: e.cash.ID, Amount: money("60.00")},
	})
	_, ok := model.AsValidation(err)
	require.True(t, ok)

	total, err := e.store.ActivePaymentTotal(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), total.String())
}

func TestRecordRejectsUnitType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	unitType, err := e.store.PaymentTypeByName(ctx, model.TariffUnitsPaymentType)
	require.NoError(t, err)
	_, err = e.svc.Record(ctx, r.ID, []Entry{{PaymentTypeID: unitType.ID, Amount: money("10.00")}})
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "payment_type", ve.Field)
}

func TestRecordIdempotencyReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	entries := []Entry{{PaymentTypeID: e.cash.ID, Amount: money("40.00"), IdempotencyKey: "sub-1"}}
	first, err := e.svc.Record(ctx, r.ID, entries)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := e.svc.Record(ctx, r.ID, entries)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)

	total, err := e.store.ActivePaymentTotal(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "40.00", model.MoneyString(total))

	// Mixing a recorded key with a fresh one is ambiguous.
	_, err = e.svc.Record(ctx, r.ID, []Entry{
		{PaymentTypeID: e.cash.ID, Amount: money("40.00"), IdempotencyKey: "sub-1"},
		{PaymentTypeID: e.cash.ID, Amount: money("10.00"), IdempotencyKey: "sub-2"},
	})
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "idempotency_key", ve.Field)
}

func TestPayWithUnits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	require.NoError(t, e.store.SaveTariffUnit(ctx, &model.TariffUnit{
		ScenarioID:          e.scenario.ID,
		UnitDurationMinutes: 30,
		UnitCost:            money("10.00"),
	}))
	sub := &model.Subscription{ClientID: e.client.ID, ScenarioID: e.scenario.ID, Balance: 6}
	require.NoError(t, e.store.UpsertSubscription(ctx, sub))

	// Rental allows 10 units, balance caps at 6.
	_, err := e.svc.PayWithUnits(ctx, r.ID, 7)
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "units", ve.Field)

	p, err := e.svc.PayWithUnits(ctx, r.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "50.00", model.MoneyString(p.Amount))
	assert.Equal(t, "5 units", p.Comment)

	after, err := e.store.SubscriptionFor(ctx, e.client.ID, e.scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Balance)

	// Only one unit is left on the balance.
	_, err = e.svc.PayWithUnits(ctx, r.ID, 2)
	_, ok = model.AsValidation(err)
	require.True(t, ok)
	_, err = e.svc.PayWithUnits(ctx, r.ID, 1)
	require.NoError(t, err)
}

func TestPayWithUnitsMarksPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "50.00")

	require.NoError(t, e.store.SaveTariffUnit(ctx, &model.TariffUnit{
		ScenarioID:          e.scenario.ID,
		UnitDurationMinutes: 30,
		UnitCost:            money("10.00"),
	}))
	sub := &model.Subscription{ClientID: e.client.ID, ScenarioID: e.scenario.ID, Balance: 10}
	require.NoError(t, e.store.UpsertSubscription(ctx, sub))

	_, err := e.svc.PayWithUnits(ctx, r.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, e.status(t, r.ID))
}

func TestEditPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	recorded, err := e.svc.Record(ctx, r.ID, []Entry{
		{PaymentTypeID: e.cash.ID, Amount: money("30.00")},
		{PaymentTypeID: e.cash.ID, Amount: money("40.00")},
	})
	require.NoError(t, err)

	// Raising the first entry to 60.00 keeps the total at 100.00; the
	// edited entry itself is excluded from the balance check.
	require.NoError(t, e.svc.Edit(ctx, recorded[0].ID, e.cash.ID, money("60.00"), "corrected"))
	assert.Equal(t, model.StatusPaid, e.status(t, r.ID))

	// 61.00 would overshoot.
	err = e.svc.Edit(ctx, recorded[1].ID, e.cash.ID, money("61.00"), "")
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "amount", ve.Field)
}

func TestCancelPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")

	require.NoError(t, e.store.SaveTariffUnit(ctx, &model.TariffUnit{
		ScenarioID:          e.scenario.ID,
		UnitDurationMinutes: 30,
		UnitCost:            money("10.00"),
	}))
	sub := &model.Subscription{ClientID: e.client.ID, ScenarioID: e.scenario.ID, Balance: 5}
	require.NoError(t, e.store.UpsertSubscription(ctx, sub))

	p, err := e.svc.PayWithUnits(ctx, r.ID, 3)
	require.NoError(t, err)

	require.NoError(t, e.svc.Cancel(ctx, p.ID))
	err = e.svc.Cancel(ctx, p.ID)
	_, ok := model.AsValidation(err)
	assert.True(t, ok)

	total, err := e.store.ActivePaymentTotal(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), total.String())

	// Cancelling the entry does not restore the spent units.
	after, err := e.store.SubscriptionFor(ctx, e.client.ID, e.scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Balance)

	// The freed headroom can be paid again.
	_, err = e.svc.PayWithUnits(ctx, r.ID, 2)
	require.NoError(t, err)
}

func TestRecordOnTerminalReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.reservation(t, "100.00")
	require.NoError(t, e.store.UpdateReservationStatus(ctx, r.ID, model.StatusCancelled))

	_, err := e.svc.Record(ctx, r.ID, []Entry{{PaymentTypeID: e.cash.ID, Amount: money("10.00")}})
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "status", ve.Field)
}
