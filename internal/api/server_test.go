package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobron/internal/availability"
	"studiobron/internal/booking"
	"studiobron/internal/config"
	"studiobron/internal/database"
	"studiobron/internal/db"
	"studiobron/internal/ledger"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
	"studiobron/internal/report"
	"studiobron/internal/schedule"
)

func mustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type testEnv struct {
	handler http.Handler
	store   *db.Store

	scenario model.Scenario
	room     model.Room
	client   model.Client
	spec     model.Specialist
	tariff   model.Tariff
	cash     *model.PaymentType
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	d, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	store := db.New(d)
	e := &testEnv{store: store}

	e.scenario = model.Scenario{Name: "Репетиционная точка", IsActive: true}
	require.NoError(t, store.CreateScenario(ctx, &e.scenario))
	e.room = model.Room{
		Name:        "Зал 1",
		HourStart:   model.MustClock("09:00"),
		HourEnd:     model.MustClock("21:00"),
		IsActive:    true,
		ScenarioIDs: []int64{e.scenario.ID},
	}
	require.NoError(t, store.CreateRoom(ctx, &e.room))
	e.client = model.Client{Name: "Иван"}
	require.NoError(t, store.CreateClient(ctx, &e.client))
	e.spec = model.Specialist{Name: "Анна", IsActive: true}
	require.NoError(t, store.CreateSpecialist(ctx, &e.spec))
	e.tariff = model.Tariff{
		Name:                "Почасовой",
		IsActive:            true,
		MaxPeople:           4,
		BaseDurationMinutes: 60,
		BaseCost:            mustMoney("100.00"),
		RoomIDs:             []int64{e.room.ID},
		ScenarioIDs:         []int64{e.scenario.ID},
		WeeklyIntervals: []model.TariffWeeklyInterval{
			{Weekday: 0, Start: model.MustClock("09:00"), End: model.MustClock("21:00")},
		},
	}
	require.NoError(t, store.CreateTariff(ctx, &e.tariff))
	e.cash, err = store.EnsurePaymentType(ctx, "cash")
	require.NoError(t, err)
	_, err = store.EnsurePaymentType(ctx, model.TariffUnitsPaymentType)
	require.NoError(t, err)

	resolver := schedule.NewResolver(store, nil, nil)
	checker := availability.NewChecker(store, resolver, nil)
	pricer := pricing.NewEngine(store, nil)
	rules := config.BookingConfig{TariffRequiredScenarios: []string{"Репетиционная точка"}}
	bookings := booking.NewService(store, checker, pricer, database.NewLockManager(), rules, nil)
	payments := ledger.NewService(store, nil)
	exporter := report.NewExporter(store, nil)

	server := NewHTTPServer(store, bookings, payments, checker, resolver, pricer, exporter, nil, nil, nil)
	e.handler = server.Handler()
	return e
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *testEnv) createBody() map[string]any {
	return map[string]any{
		"room_id":     e.room.ID,
		"client_id":   e.client.ID,
		"scenario_id": e.scenario.ID,
		"tariff_id":   e.tariff.ID,
		// 2025-03-10 is a Monday.
		"start": "2025-03-10T10:00:00Z",
		"end":   "2025-03-10T11:30:00Z",
	}
}

func TestCreateReservationEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/reservations", e.createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "150.00", body["total_cost"])
	assert.NotZero(t, body["id"])

	// The same window now conflicts, with the field named.
	rec = e.do(t, http.MethodPost, "/api/reservations", e.createBody())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "room", body["field"])
}

func TestBatchBlockIndexSurfaces(t *testing.T) {
	e := newTestEnv(t)

	a := e.createBody()
	b := e.createBody()
	b["start"] = "2025-03-10T11:00:00Z"
	b["end"] = "2025-03-10T12:00:00Z"
	rec := e.do(t, http.MethodPost, "/api/reservations", map[string]any{"blocks": []any{a, b}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["block_index"])
}

func TestPaymentEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/reservations", e.createBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decode(t, rec)["id"].(float64))

	pay := func(amount string) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, fmt.Sprintf("/api/reservations/%d/payments", id), map[string]any{
			"payments": []any{map[string]any{"payment_type_id": e.cash.ID, "amount": amount}},
		})
	}

	require.Equal(t, http.StatusCreated, pay("100.00").Code)

	rec = pay("80.00")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "amount", decode(t, rec)["field"])

	require.Equal(t, http.StatusCreated, pay("50.00").Code)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/reservations/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "paid", body["status"])
	assert.Equal(t, "0.00", body["remaining"])
}

func TestScheduleEndpoints(t *testing.T) {
	e := newTestEnv(t)
	base := fmt.Sprintf("/api/specialists/%d/schedule", e.spec.ID)

	// No configuration at all: unrestricted.
	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/schedule?specialist_id=%d&date=2025-03-10", e.spec.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unrestricted", decode(t, rec)["kind"])

	rec = e.do(t, http.MethodPost, base+"/weekly", map[string]any{
		"weekday": 0, "start": "10:00", "end": "14:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/schedule?specialist_id=%d&date=2025-03-10", e.spec.ID), nil)
	body := decode(t, rec)
	assert.Equal(t, "working", body["kind"])

	// Overlapping the stored Monday window is refused.
	rec = e.do(t, http.MethodPost, base+"/weekly", map[string]any{
		"weekday": 0, "start": "12:00", "end": "16:00",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "weekly_interval", decode(t, rec)["field"])

	// A day off cannot carry intervals.
	rec = e.do(t, http.MethodPut, base+"/override", map[string]any{
		"date": "2025-03-10", "is_day_off": true,
		"intervals": []any{map[string]any{"start": "10:00", "end": "12:00"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "intervals", decode(t, rec)["field"])

	// Tuesday has no template now, so it is a day off.
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/schedule?specialist_id=%d&date=2025-03-11", e.spec.ID), nil)
	assert.Equal(t, "day_off", decode(t, rec)["kind"])

	// A day-off override beats the Monday template.
	rec = e.do(t, http.MethodPut, base+"/override", map[string]any{
		"date": "2025-03-10", "is_day_off": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/schedule?specialist_id=%d&date=2025-03-10", e.spec.ID), nil)
	assert.Equal(t, "day_off", decode(t, rec)["kind"])
}

func TestCatalogEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rooms := decode(t, rec)["rooms"].([]any)
	require.Len(t, rooms, 1)

	// The reserved units type stays out of the manual list.
	rec = e.do(t, http.MethodGet, "/api/payment-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode(t, rec)["payment_types"].([]any)
	require.Len(t, types, 1)
	assert.Equal(t, "cash", types[0].(map[string]any)["name"])
}

func TestAvailabilityCheckEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/availability/check", map[string]any{
		"room_id": e.room.ID,
		"start":   "2025-03-10T10:00:00Z",
		"end":     "2025-03-10T11:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["available"])

	// Outside room hours.
	rec = e.do(t, http.MethodPost, "/api/availability/check", map[string]any{
		"room_id": e.room.ID,
		"start":   "2025-03-10T07:00:00Z",
		"end":     "2025-03-10T08:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["available"])
	assert.Equal(t, "room", body["field"])
}

func TestNotFoundMapsTo404(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/reservations/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
