package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const tripColumns = `id, company_id, vehicle_id, driver_id, start_location, end_location,
	start_time, end_time, start_mileage, end_mileage, distance, trip_date, status,
	created_at, updated_at, deleted_at`

// ListTrips returns the company's trips with vehicle and driver.user loaded.
func (s *Store) ListTrips(ctx context.Context, companyID int64) ([]Trip, error) {
	trips := []Trip{}
	if err := sqlx.SelectContext(ctx, s.db, &trips,
		`SELECT `+tripColumns+` FROM trips
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY trip_date DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	if err := s.attachTripRelations(ctx, trips); err != nil {
		return nil, err
	}
	return trips, nil
}

func (s *Store) attachTripRelations(ctx context.Context, trips []Trip) error {
	vehicleIDs := make([]int64, 0, len(trips))
	driverIDs := make([]int64, 0, len(trips))
	for _, t := range trips {
		vehicleIDs = append(vehicleIDs, t.VehicleID)
		driverIDs = append(driverIDs, t.DriverID)
	}
	vehicles, drivers, err := s.vehicleAndDriver(ctx, vehicleIDs, driverIDs)
	if err != nil {
		return err
	}
	for i := range trips {
		trips[i].Vehicle = vehicles[trips[i].VehicleID]
		trips[i].Driver = drivers[trips[i].DriverID]
	}
	return nil
}

func (s *Store) findTrip(ctx context.Context, companyID, id int64) (*Trip, error) {
	var t Trip
	if err := s.get(ctx, s.db, &t,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(t.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTrip returns a trip with relations. The edit form uses the bare row.
func (s *Store) GetTrip(ctx context.Context, companyID, id int64, withRelations bool) (*Trip, error) {
	t, err := s.findTrip(ctx, companyID, id)
	if err != nil || !withRelations {
		return t, err
	}
	one := []Trip{*t}
	if err := s.attachTripRelations(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// deriveDistance fills distance from the mileages when it was not given.
func deriveDistance(t *Trip) {
	if t.Distance != nil || t.EndMileage == nil {
		return
	}
	if d := *t.EndMileage - t.StartMileage; d >= 0 {
		t.Distance = &d
	}
}

func (s *Store) CreateTrip(ctx context.Context, t *Trip) error {
	if t.Status == "" {
		t.Status = "planned"
	}
	deriveDistance(t)
	err := s.get(ctx, s.db, t, `
		INSERT INTO trips (company_id, vehicle_id, driver_id, start_location, end_location,
			start_time, end_time, start_mileage, end_mileage, distance, trip_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+tripColumns,
		t.CompanyID, t.VehicleID, t.DriverID, t.StartLocation, t.EndLocation,
		t.StartTime, t.EndTime, t.StartMileage, t.EndMileage, t.Distance, t.TripDate, t.Status)
	if err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	s.logger.Info("Trip created", zap.Int64("company_id", t.CompanyID), zap.Int64("trip_id", t.ID))
	return nil
}

func (s *Store) UpdateTrip(ctx context.Context, companyID, id int64, t *Trip) (*Trip, error) {
	if _, err := s.findTrip(ctx, companyID, id); err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = "planned"
	}
	deriveDistance(t)
	var out Trip
	err := s.get(ctx, s.db, &out, `
		UPDATE trips SET vehicle_id = $1, driver_id = $2, start_location = $3, end_location = $4,
			start_time = $5, end_time = $6, start_mileage = $7, end_mileage = $8, distance = $9,
			trip_date = $10, status = $11, updated_at = NOW()
		WHERE id = $12 AND company_id = $13 AND deleted_at IS NULL
		RETURNING `+tripColumns,
		t.VehicleID, t.DriverID, t.StartLocation, t.EndLocation, t.StartTime, t.EndTime,
		t.StartMileage, t.EndMileage, t.Distance, t.TripDate, t.Status, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update trip %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteTrip(ctx context.Context, companyID, id int64) error {
	if _, err := s.findTrip(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableTrips, companyID, id)
}
