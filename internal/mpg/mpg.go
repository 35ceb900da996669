// Package mpg derives fuel economy from consecutive odometer readings.
package mpg

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/metrics"
)

// Compute returns miles per gallon for a fill-up given the previous odometer
// reading. ok is false when there is no forward distance or no fuel.
func Compute(prevOdometer, odometer, gallons float64) (mpg float64, ok bool) {
	distance := odometer - prevOdometer
	if distance <= 0 || gallons <= 0 {
		return 0, false
	}
	return Round(distance/gallons, 2), true
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Reading is one fill-up as seen by the recompute pass.
type Reading struct {
	ID         int64     `db:"id"`
	VehicleID  int64     `db:"vehicle_id"`
	FillupDate time.Time `db:"fillup_date"`
	Odometer   *float64  `db:"odometer_reading"`
	Gallons    float64   `db:"gallons"`
}

// Update is a new mpg value for a fill-up.
type Update struct {
	ID  int64
	MPG float64
}

// Recompute walks one vehicle's fill-ups in date order (id breaks ties) and
// returns the rows whose mpg can be derived from the reading before them.
// The previous reading is always the immediately preceding row, so a row
// without an odometer reading breaks the chain for the row after it.
func Recompute(readings []Reading) []Update {
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].FillupDate.Equal(sorted[j].FillupDate) {
			return sorted[i].FillupDate.Before(sorted[j].FillupDate)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var updates []Update
	var prev *float64
	for _, r := range sorted {
		if prev != nil && r.Odometer != nil {
			if v, ok := Compute(*prev, *r.Odometer, r.Gallons); ok {
				updates = append(updates, Update{ID: r.ID, MPG: v})
			}
		}
		prev = r.Odometer
	}
	return updates
}

// Store is the persistence the recompute pass needs.
type Store interface {
	// VehiclesWithFillups lists vehicle ids that have fill-ups, restricted to
	// companyID when it is non-zero.
	VehiclesWithFillups(ctx context.Context, companyID int64) ([]int64, error)
	FillupReadings(ctx context.Context, vehicleID int64) ([]Reading, error)
	SetFillupMPG(ctx context.Context, fillupID int64, mpg float64) error
}

// Recomputer rewrites stored mpg values for every vehicle.
type Recomputer struct {
	store  Store
	logger *zap.Logger
}

func NewRecomputer(store Store, logger *zap.Logger) *Recomputer {
	return &Recomputer{store: store, logger: logger}
}

// Run recomputes all vehicles (of companyID, or every company when zero) and
// returns how many fill-ups were updated.
func (r *Recomputer) Run(ctx context.Context, companyID int64) (int, error) {
	vehicles, err := r.store.VehiclesWithFillups(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("list vehicles: %w", err)
	}

	total := 0
	for _, vehicleID := range vehicles {
		readings, err := r.store.FillupReadings(ctx, vehicleID)
		if err != nil {
			return total, fmt.Errorf("load fillups for vehicle %d: %w", vehicleID, err)
		}
		updates := Recompute(readings)
		for _, u := range updates {
			if err := r.store.SetFillupMPG(ctx, u.ID, u.MPG); err != nil {
				return total, fmt.Errorf("update fillup %d: %w", u.ID, err)
			}
		}
		total += len(updates)
		metrics.MPGRecomputed.Add(float64(len(updates)))
		r.logger.Debug("Recomputed vehicle mpg",
			zap.Int64("vehicle_id", vehicleID),
			zap.Int("fillups", len(readings)),
			zap.Int("updated", len(updates)),
		)
	}

	r.logger.Info("MPG recompute finished",
		zap.Int64("company_id", companyID),
		zap.Int("vehicles", len(vehicles)),
		zap.Int("updated", total),
	)
	return total, nil
}
