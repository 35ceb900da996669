package mpg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func f(v float64) *float64 { return &v }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestCompute(t *testing.T) {
	tests := []struct {
		name            string
		prev, odo, gals float64
		want            float64
		ok              bool
	}{
		{"normal", 50000, 50300, 10, 30, true},
		{"rounds to two places", 1000, 1100, 3, 33.33, true},
		{"rounds up", 0, 2, 3, 0.67, true},
		{"odometer went backwards", 50300, 50000, 10, 0, false},
		{"no distance", 50000, 50000, 10, 0, false},
		{"no fuel", 50000, 50300, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compute(tt.prev, tt.odo, tt.gals)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRecomputeOrdersByDateThenID(t *testing.T) {
	readings := []Reading{
		{ID: 3, FillupDate: day(21), Odometer: f(52400), Gallons: 40},
		{ID: 1, FillupDate: day(1), Odometer: f(50000), Gallons: 50},
		{ID: 2, FillupDate: day(21), Odometer: f(51200), Gallons: 48},
	}

	updates := Recompute(readings)
	assert.Equal(t, []Update{
		{ID: 2, MPG: 25},
		{ID: 3, MPG: 30},
	}, updates)
}

func TestRecomputeSkipsBackwardsAndMissingReadings(t *testing.T) {
	readings := []Reading{
		{ID: 1, FillupDate: day(1), Odometer: f(50000), Gallons: 50},
		{ID: 2, FillupDate: day(2), Odometer: f(49000), Gallons: 50},
		{ID: 3, FillupDate: day(3), Odometer: f(49500), Gallons: 10},
		{ID: 4, FillupDate: day(4), Odometer: nil, Gallons: 10},
		{ID: 5, FillupDate: day(5), Odometer: f(50000), Gallons: 10},
	}

	// 2 went backwards but still becomes the baseline for 3; 4 has no reading
	// so 5 has no baseline.
	assert.Equal(t, []Update{{ID: 3, MPG: 50}}, Recompute(readings))
}

type fakeStore struct {
	vehicles []int64
	readings map[int64][]Reading
	saved    map[int64]float64
	failSet  bool
}

func (s *fakeStore) VehiclesWithFillups(_ context.Context, _ int64) ([]int64, error) {
	return s.vehicles, nil
}

func (s *fakeStore) FillupReadings(_ context.Context, vehicleID int64) ([]Reading, error) {
	return s.readings[vehicleID], nil
}

func (s *fakeStore) SetFillupMPG(_ context.Context, id int64, v float64) error {
	if s.failSet {
		return errors.New("db down")
	}
	s.saved[id] = v
	return nil
}

func TestRecomputerRun(t *testing.T) {
	store := &fakeStore{
		vehicles: []int64{10, 20},
		readings: map[int64][]Reading{
			10: {
				{ID: 1, VehicleID: 10, FillupDate: day(1), Odometer: f(50000), Gallons: 50},
				{ID: 2, VehicleID: 10, FillupDate: day(21), Odometer: f(51200), Gallons: 40},
			},
			20: {
				{ID: 3, VehicleID: 20, FillupDate: day(1), Odometer: f(1000), Gallons: 10},
			},
		},
		saved: map[int64]float64{},
	}

	n, err := NewRecomputer(store, zaptest.NewLogger(t)).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[int64]float64{2: 30}, store.saved)
}

func TestRecomputerRunPropagatesErrors(t *testing.T) {
	store := &fakeStore{
		vehicles: []int64{10},
		readings: map[int64][]Reading{
			10: {
				{ID: 1, FillupDate: day(1), Odometer: f(0), Gallons: 1},
				{ID: 2, FillupDate: day(2), Odometer: f(10), Gallons: 1},
			},
		},
		saved:   map[int64]float64{},
		failSet: true,
	}

	_, err := NewRecomputer(store, zaptest.NewLogger(t)).Run(context.Background(), 0)
	assert.Error(t, err)
}
