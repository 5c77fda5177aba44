package booking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobron/internal/availability"
	"studiobron/internal/config"
	"studiobron/internal/database"
	"studiobron/internal/db"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
	"studiobron/internal/schedule"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

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

	rehearsal model.Scenario // tariff-required
	rental    model.Scenario // no tariff allowed
	room      model.Room
	client    model.Client
	spec      model.Specialist
	tariff    model.Tariff
	service   model.Service
	reason    model.CancellationReason
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	d, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	store := db.New(d)

	e := &env{store: store}

	e.rehearsal = model.Scenario{Name: "Репетиционная точка", IsActive: true}
	require.NoError(t, store.CreateScenario(ctx, &e.rehearsal))
	e.rental = model.Scenario{Name: "Аренда", IsActive: true}
	require.NoError(t, store.CreateScenario(ctx, &e.rental))

	e.room = model.Room{
		Name:        "Зал 1",
		HourStart:   model.MustClock("09:00"),
		HourEnd:     model.MustClock("21:00"),
		IsActive:    true,
		ScenarioIDs: []int64{e.rehearsal.ID, e.rental.ID},
	}
	require.NoError(t, store.CreateRoom(ctx, &e.room))

	e.client = model.Client{Name: "Иван"}
	require.NoError(t, store.CreateClient(ctx, &e.client))

	e.spec = model.Specialist{Name: "Анна", IsActive: true}
	require.NoError(t, store.CreateSpecialist(ctx, &e.spec))
	require.NoError(t, store.AddWeeklyInterval(ctx, &model.WeeklyInterval{
		SpecialistID: e.spec.ID,
		Weekday:      0,
		Start:        model.MustClock("10:00"),
		End:          model.MustClock("14:00"),
	}))

	e.tariff = model.Tariff{
		Name:                "Почасовой",
		IsActive:            true,
		MaxPeople:           4,
		BaseDurationMinutes: 60,
		BaseCost:            money("100.00"),
		RoomIDs:             []int64{e.room.ID},
		ScenarioIDs:         []int64{e.rehearsal.ID},
		WeeklyIntervals: []model.TariffWeeklyInterval{
			{Weekday: 0, Start: model.MustClock("09:00"), End: model.MustClock("21:00")},
		},
	}
	require.NoError(t, store.CreateTariff(ctx, &e.tariff))

	e.service = model.Service{Name: "Запись", Cost: money("20.00")}
	require.NoError(t, store.CreateService(ctx, &e.service))

	e.reason = model.CancellationReason{Name: "Клиент отменил", IsActive: true}
	require.NoError(t, store.CreateCancellationReason(ctx, &e.reason))

	_, err = store.EnsurePaymentType(ctx, model.TariffUnitsPaymentType)
	require.NoError(t, err)

	resolver := schedule.NewResolver(store, nil, nil)
	checker := availability.NewChecker(store, resolver, nil)
	pricer := pricing.NewEngine(store, nil)
	rules := config.BookingConfig{TariffRequiredScenarios: []string{"Репетиционная точка", "Музыкальный класс"}}
	e.svc = NewService(store, checker, pricer, database.NewLockManager(), rules, nil)
	return e
}

func (e *env) rehearsalParams() Params {
	return Params{
		RoomID:     e.room.ID,
		ClientID:   &e.client.ID,
		ScenarioID: e.rehearsal.ID,
		TariffID:   &e.tariff.ID,
		Start:      at(10, 0),
		End:        at(11, 30),
		ServiceIDs: []int64{e.service.ID},
	}
}

func TestCreateComputesProratedCost(t *testing.T) {
	e := newEnv(t)

	// 90 minutes at 100.00/60min plus a 20.00 service.
	r, err := e.svc.Create(context.Background(), e.rehearsalParams())
	require.NoError(t, err)
	assert.Equal(t, "170.00", model.MoneyString(r.TotalCost))
	assert.Equal(t, model.StatusPending, r.Status)

	got, err := e.store.ReservationByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{e.service.ID}, got.ServiceIDs)
}

func TestCreateTariffPolicy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.rehearsalParams()
	p.TariffID = nil
	_, err := e.svc.Create(ctx, p)
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "tariff", ve.Field)

	// The rental scenario must not carry a tariff.
	p = Params{
		RoomID:     e.room.ID,
		ScenarioID: e.rental.ID,
		TariffID:   &e.tariff.ID,
		Start:      at(10, 0),
		End:        at(11, 0),
	}
	_, err = e.svc.Create(ctx, p)
	ve, ok = model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "tariff", ve.Field)
}

func TestCreateHonorsProvidedCost(t *testing.T) {
	e := newEnv(t)

	cost := money("500.00")
	r, err := e.svc.Create(context.Background(), Params{
		RoomID:     e.room.ID,
		ScenarioID: e.rental.ID,
		Start:      at(10, 0),
		End:        at(12, 0),
		TotalCost:  &cost,
	})
	require.NoError(t, err)
	assert.Equal(t, "500.00", model.MoneyString(r.TotalCost))
}

func TestCreateConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)

	// Same window is busy.
	_, err = e.svc.Create(ctx, e.rehearsalParams())
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "room", ve.Field)

	// Back-to-back is allowed.
	p := e.rehearsalParams()
	p.Start = at(11, 30)
	p.End = at(12, 30)
	_, err = e.svc.Create(ctx, p)
	assert.NoError(t, err)
}

func TestCreateSpecialistSchedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.rehearsalParams()
	p.SpecialistID = &e.spec.ID
	p.Start = at(10, 0)
	p.End = at(11, 0)
	_, err := e.svc.Create(ctx, p)
	require.NoError(t, err)

	// Outside the Monday 10:00-14:00 window.
	p2 := e.rehearsalParams()
	p2.SpecialistID = &e.spec.ID
	p2.Start = at(15, 0)
	p2.End = at(16, 0)
	_, err = e.svc.Create(ctx, p2)
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "specialist", ve.Field)
}

func TestCreateBatchIntraConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.rehearsalParams()
	b := e.rehearsalParams()
	b.Start = at(11, 0)
	b.End = at(12, 0)

	_, err := e.svc.CreateBatch(ctx, []Params{a, b})
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	require.NotNil(t, ve.BlockIndex)
	assert.Equal(t, 1, *ve.BlockIndex)

	// Nothing was written.
	got, err := e.store.RoomReservationsOn(ctx, e.room.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Second block falls outside room hours, so the first must not
	// survive either.
	a := e.rehearsalParams()
	b := e.rehearsalParams()
	b.Start = at(7, 0)
	b.End = at(8, 0)

	_, err := e.svc.CreateBatch(ctx, []Params{a, b})
	ve, ok := model.AsValidation(err)
	require.True(t, ok)
	require.NotNil(t, ve.BlockIndex)
	assert.Equal(t, 1, *ve.BlockIndex)

	got, err := e.store.RoomReservationsOn(ctx, e.room.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A clean batch persists both blocks.
	b.Start = at(12, 0)
	b.End = at(13, 0)
	created, err := e.svc.CreateBatch(ctx, []Params{a, b})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestEditExcludesOwnRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)

	// Shifting within its own original window must not self-conflict,
	// and the cost is recomputed for the new duration.
	p := e.rehearsalParams()
	p.Start = at(10, 30)
	p.End = at(12, 30)
	updated, err := e.svc.Edit(ctx, r.ID, p)
	require.NoError(t, err)
	assert.Equal(t, r.ID, updated.ID)
	assert.Equal(t, "220.00", model.MoneyString(updated.TotalCost))
}

func TestConfirmAndReject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)

	require.NoError(t, e.svc.Confirm(ctx, r.ID))
	got, err := e.store.ReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	// Confirm is pending-only.
	err = e.svc.Confirm(ctx, r.ID)
	_, ok := model.AsValidation(err)
	assert.True(t, ok)

	require.NoError(t, e.svc.Reject(ctx, r.ID))
	got, err = e.store.ReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
}

func TestCancelRefundsTariffUnits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)

	// A 50.00 tariff-unit payment at 10.00 per unit.
	require.NoError(t, e.store.SaveTariffUnit(ctx, &model.TariffUnit{
		ScenarioID:          e.rehearsal.ID,
		UnitDurationMinutes: 30,
		UnitCost:            money("10.00"),
	}))
	sub := &model.Subscription{ClientID: e.client.ID, ScenarioID: e.rehearsal.ID, Balance: 3}
	require.NoError(t, e.store.UpsertSubscription(ctx, sub))

	unitType, err := e.store.PaymentTypeByName(ctx, model.TariffUnitsPaymentType)
	require.NoError(t, err)
	require.NoError(t, e.store.InsertPayment(ctx, &model.Payment{
		ReservationID: r.ID,
		PaymentTypeID: unitType.ID,
		Amount:        money("50.00"),
	}))

	require.NoError(t, e.svc.Cancel(ctx, r.ID, e.reason.ID, "уехал"))

	got, err := e.store.ReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.True(t, strings.Contains(got.Comment, "cancelled: Клиент отменил"), got.Comment)

	// 5 units credited back.
	after, err := e.store.SubscriptionFor(ctx, e.client.ID, e.rehearsal.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.Balance)

	// A negative ledger entry documents the refund.
	payments, err := e.store.PaymentsForReservation(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "-50.00", model.MoneyString(payments[1].Amount))
}

func TestCancelIsTerminal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)
	require.NoError(t, e.svc.Cancel(ctx, r.ID, e.reason.ID, ""))

	err = e.svc.Cancel(ctx, r.ID, e.reason.ID, "")
	_, ok := model.AsValidation(err)
	assert.True(t, ok)

	// The slot is free again.
	_, err = e.svc.Create(ctx, e.rehearsalParams())
	assert.NoError(t, err)
}

func TestDetailAssembly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.svc.Create(ctx, e.rehearsalParams())
	require.NoError(t, err)

	require.NoError(t, e.store.SaveTariffUnit(ctx, &model.TariffUnit{
		ScenarioID:          e.rehearsal.ID,
		UnitDurationMinutes: 30,
		UnitCost:            money("10.00"),
	}))
	sub := &model.Subscription{ClientID: e.client.ID, ScenarioID: e.rehearsal.ID, Balance: 4}
	require.NoError(t, e.store.UpsertSubscription(ctx, sub))

	d, err := e.svc.Detail(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", model.MoneyString(d.RentalCost))
	assert.Equal(t, "20.00", model.MoneyString(d.ServicesCost))
	assert.Equal(t, "170.00", model.MoneyString(d.Remaining))
	assert.Equal(t, "150.00", model.MoneyString(d.RemainingRental))
	// 150.00/10.00 = 15 units would fit, balance caps at 4.
	assert.Equal(t, 4, d.MaxTariffUnits)
}
