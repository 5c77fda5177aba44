package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobron/internal/model"
)

type fakeStore struct {
	tariffs  []model.Tariff
	services map[int64]model.Service
}

func (f *fakeStore) TariffsForScenario(_ context.Context, scenarioID int64) ([]model.Tariff, error) {
	var out []model.Tariff
	for _, t := range f.tariffs {
		if t.LinkedToScenario(scenarioID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ServicesByIDs(_ context.Context, ids []int64) ([]model.Service, error) {
	var out []model.Service
	for _, id := range ids {
		if s, ok := f.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hourlyTariff() model.Tariff {
	return model.Tariff{
		ID:                  1,
		Name:                "Почасовой",
		IsActive:            true,
		MaxPeople:           4,
		BaseDurationMinutes: 60,
		BaseCost:            money("100.00"),
		RoomIDs:             []int64{1},
		ScenarioIDs:         []int64{2},
		WeeklyIntervals: []model.TariffWeeklyInterval{
			{TariffID: 1, Weekday: 0, Start: model.MustClock("09:00"), End: model.MustClock("21:00")},
		},
	}
}

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestRentalCostProration(t *testing.T) {
	tariff := hourlyTariff()

	// Base duration prices exactly at base cost.
	rental, err := RentalCost(&tariff, 60)
	require.NoError(t, err)
	assert.True(t, rental.Equal(money("100.00")), rental.String())

	rental, err = RentalCost(&tariff, 90)
	require.NoError(t, err)
	assert.True(t, rental.Equal(money("150.00")), rental.String())

	// 100 * 50/60 = 83.333... rounds half up.
	rental, err = RentalCost(&tariff, 50)
	require.NoError(t, err)
	assert.Equal(t, "83.33", rental.StringFixed(2))
}

func TestComputeCostWithServices(t *testing.T) {
	tariff := hourlyTariff()
	store := &fakeStore{
		services: map[int64]model.Service{
			7: {ID: 7, Name: "Запись", Cost: money("20.00")},
		},
	}
	engine := NewEngine(store, nil)

	total, err := engine.ComputeCost(context.Background(), &tariff, 90, []int64{7})
	require.NoError(t, err)
	assert.Equal(t, "170.00", total.StringFixed(2))

	_, err = engine.ComputeCost(context.Background(), &tariff, 90, []int64{7, 99})
	_, ok := model.AsValidation(err)
	assert.True(t, ok)
}

func TestAvailableTariffs(t *testing.T) {
	wrongRoom := hourlyTariff()
	wrongRoom.ID = 2
	wrongRoom.RoomIDs = []int64{99}

	inactive := hourlyTariff()
	inactive.ID = 3
	inactive.IsActive = false

	small := hourlyTariff()
	small.ID = 4
	small.MaxPeople = 1

	store := &fakeStore{tariffs: []model.Tariff{hourlyTariff(), wrongRoom, inactive, small}}
	engine := NewEngine(store, nil)

	end := model.MustClock("12:00")
	got, err := engine.AvailableTariffs(context.Background(), Query{
		ScenarioID:  2,
		RoomID:      1,
		Date:        monday,
		StartTime:   model.MustClock("10:00"),
		EndTime:     &end,
		PeopleCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Tariff.ID)
	require.Len(t, got[0].Intervals, 1)
	assert.Equal(t, "09:00-21:00", got[0].Intervals[0].String())
}

func TestAvailableTariffsWindow(t *testing.T) {
	tariff := hourlyTariff()
	tariff.WeeklyIntervals = []model.TariffWeeklyInterval{
		{TariffID: 1, Weekday: 0, Start: model.MustClock("10:00"), End: model.MustClock("14:00")},
	}
	store := &fakeStore{tariffs: []model.Tariff{tariff}}
	engine := NewEngine(store, nil)

	// Window must contain the whole reservation when the end is known.
	end := model.MustClock("15:00")
	got, err := engine.AvailableTariffs(context.Background(), Query{
		ScenarioID: 2, RoomID: 1, Date: monday,
		StartTime: model.MustClock("13:00"), EndTime: &end,
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	// With no end, the start alone decides.
	got, err = engine.AvailableTariffs(context.Background(), Query{
		ScenarioID: 2, RoomID: 1, Date: monday,
		StartTime: model.MustClock("13:00"),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Wrong weekday.
	got, err = engine.AvailableTariffs(context.Background(), Query{
		ScenarioID: 2, RoomID: 1, Date: monday.AddDate(0, 0, 1),
		StartTime: model.MustClock("13:00"),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEligible(t *testing.T) {
	tariff := hourlyTariff()
	engine := NewEngine(&fakeStore{}, nil)

	q := Query{ScenarioID: 2, RoomID: 1, Date: monday, StartTime: model.MustClock("10:00"), PeopleCount: 2}
	assert.NoError(t, engine.Eligible(&tariff, q))

	q.PeopleCount = 10
	ve, ok := model.AsValidation(engine.Eligible(&tariff, q))
	require.True(t, ok)
	assert.Equal(t, "people_count", ve.Field)
}
