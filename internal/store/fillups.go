package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/mpg"
)

const fillupColumns = `id, company_id, vehicle_id, driver_id, gallons, cost_per_gallon, cost,
	odometer_reading, mpg, fillup_date, created_at, updated_at, deleted_at`

var _ mpg.Store = (*Store)(nil)

func (s *Store) ListFillups(ctx context.Context, companyID int64) ([]FuelFillup, error) {
	fillups := []FuelFillup{}
	if err := sqlx.SelectContext(ctx, s.db, &fillups,
		`SELECT `+fillupColumns+` FROM fuel_fillups
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY fillup_date DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list fillups: %w", err)
	}
	if err := s.attachFillupRelations(ctx, fillups); err != nil {
		return nil, err
	}
	return fillups, nil
}

func (s *Store) attachFillupRelations(ctx context.Context, fillups []FuelFillup) error {
	vehicleIDs := make([]int64, 0, len(fillups))
	driverIDs := make([]int64, 0, len(fillups))
	for _, f := range fillups {
		vehicleIDs = append(vehicleIDs, f.VehicleID)
		driverIDs = append(driverIDs, f.DriverID)
	}
	vehicles, drivers, err := s.vehicleAndDriver(ctx, vehicleIDs, driverIDs)
	if err != nil {
		return err
	}
	for i := range fillups {
		fillups[i].Vehicle = vehicles[fillups[i].VehicleID]
		fillups[i].Driver = drivers[fillups[i].DriverID]
	}
	return nil
}

func (s *Store) findFillup(ctx context.Context, companyID, id int64) (*FuelFillup, error) {
	var f FuelFillup
	if err := s.get(ctx, s.db, &f,
		`SELECT `+fillupColumns+` FROM fuel_fillups WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(f.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) GetFillup(ctx context.Context, companyID, id int64, withRelations bool) (*FuelFillup, error) {
	f, err := s.findFillup(ctx, companyID, id)
	if err != nil || !withRelations {
		return f, err
	}
	one := []FuelFillup{*f}
	if err := s.attachFillupRelations(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// prepareFillup derives cost per gallon and mpg before a save. mpg keeps its
// current value when no earlier reading gives a forward distance.
func (s *Store) prepareFillup(ctx context.Context, f *FuelFillup) error {
	if f.Gallons > 0 {
		f.CostPerGallon = mpg.Round(f.Cost/f.Gallons, 3)
	}
	prev, err := s.previousOdometer(ctx, f.VehicleID, f.FillupDate, f.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		if v, ok := mpg.Compute(*prev, f.OdometerReading, f.Gallons); ok {
			f.MPG = &v
		}
	}
	return nil
}

// previousOdometer finds the reading of the latest other fill-up of the
// vehicle on or before date.
func (s *Store) previousOdometer(ctx context.Context, vehicleID int64, date time.Time, exceptID int64) (*float64, error) {
	var odo float64
	err := s.get(ctx, s.db, &odo, `
		SELECT odometer_reading FROM fuel_fillups
		WHERE vehicle_id = $1 AND fillup_date <= $2 AND id <> $3
			AND odometer_reading IS NOT NULL AND deleted_at IS NULL
		ORDER BY fillup_date DESC, id DESC LIMIT 1`,
		vehicleID, date, exceptID)
	switch err {
	case nil:
		return &odo, nil
	case ErrNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find previous fillup of vehicle %d: %w", vehicleID, err)
	}
}

func (s *Store) CreateFillup(ctx context.Context, f *FuelFillup) error {
	f.ID = 0
	if err := s.prepareFillup(ctx, f); err != nil {
		return err
	}
	err := s.get(ctx, s.db, f, `
		INSERT INTO fuel_fillups (company_id, vehicle_id, driver_id, gallons, cost_per_gallon, cost,
			odometer_reading, mpg, fillup_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+fillupColumns,
		f.CompanyID, f.VehicleID, f.DriverID, f.Gallons, f.CostPerGallon, f.Cost,
		f.OdometerReading, f.MPG, f.FillupDate)
	if err != nil {
		return fmt.Errorf("create fillup: %w", err)
	}
	metrics.RecordFillup(f.MPG)
	s.logger.Info("Fuel fillup created",
		zap.Int64("company_id", f.CompanyID),
		zap.Int64("fillup_id", f.ID),
		zap.Int64("vehicle_id", f.VehicleID),
	)
	return nil
}

func (s *Store) UpdateFillup(ctx context.Context, companyID, id int64, f *FuelFillup) (*FuelFillup, error) {
	cur, err := s.findFillup(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	f.ID = id
	f.MPG = cur.MPG
	if err := s.prepareFillup(ctx, f); err != nil {
		return nil, err
	}
	var out FuelFillup
	err = s.get(ctx, s.db, &out, `
		UPDATE fuel_fillups SET vehicle_id = $1, driver_id = $2, gallons = $3, cost_per_gallon = $4,
			cost = $5, odometer_reading = $6, mpg = $7, fillup_date = $8, updated_at = NOW()
		WHERE id = $9 AND company_id = $10 AND deleted_at IS NULL
		RETURNING `+fillupColumns,
		f.VehicleID, f.DriverID, f.Gallons, f.CostPerGallon, f.Cost, f.OdometerReading,
		f.MPG, f.FillupDate, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update fillup %d: %w", id, err)
	}
	metrics.RecordFillup(out.MPG)
	return &out, nil
}

func (s *Store) DeleteFillup(ctx context.Context, companyID, id int64) error {
	if _, err := s.findFillup(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableFillups, companyID, id)
}

// VehiclesWithFillups lists vehicles with live fill-ups; companyID 0 means all.
func (s *Store) VehiclesWithFillups(ctx context.Context, companyID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, s.db, &ids, `
		SELECT DISTINCT vehicle_id FROM fuel_fillups
		WHERE deleted_at IS NULL AND ($1::bigint = 0 OR company_id = $1)
		ORDER BY vehicle_id`, companyID)
	return ids, err
}

func (s *Store) FillupReadings(ctx context.Context, vehicleID int64) ([]mpg.Reading, error) {
	var readings []mpg.Reading
	err := sqlx.SelectContext(ctx, s.db, &readings, `
		SELECT id, vehicle_id, fillup_date, odometer_reading, gallons FROM fuel_fillups
		WHERE vehicle_id = $1 AND deleted_at IS NULL
		ORDER BY fillup_date, id`, vehicleID)
	return readings, err
}

func (s *Store) SetFillupMPG(ctx context.Context, fillupID int64, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fuel_fillups SET mpg = $1, updated_at = NOW() WHERE id = $2`, value, fillupID)
	return err
}
