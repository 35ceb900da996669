package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/mpg"
)

const vehicleColumns = `id, company_id, driver_id, name, license_plate, type, make, model, year,
	vin, fuel_type, fuel_capacity, status, notes, created_at, updated_at, deleted_at`

// ListVehicles returns the company's vehicles with driver.user loaded, newest first.
func (s *Store) ListVehicles(ctx context.Context, companyID int64) ([]Vehicle, error) {
	vehicles := []Vehicle{}
	if err := sqlx.SelectContext(ctx, s.db, &vehicles,
		`SELECT `+vehicleColumns+` FROM vehicles
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	if err := s.attachVehicleDrivers(ctx, vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *Store) attachVehicleDrivers(ctx context.Context, vehicles []Vehicle) error {
	ids := make([]*int64, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.DriverID)
	}
	drivers, err := s.driversByID(ctx, derefIDs(ids))
	if err != nil {
		return err
	}
	for i := range vehicles {
		if vehicles[i].DriverID != nil {
			vehicles[i].Driver = drivers[*vehicles[i].DriverID]
		}
	}
	return nil
}

// findVehicle loads a live vehicle and checks it belongs to companyID.
func (s *Store) findVehicle(ctx context.Context, companyID, id int64) (*Vehicle, error) {
	var v Vehicle
	if err := s.get(ctx, s.db, &v,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(v.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVehicle returns one vehicle with driver.user loaded.
func (s *Store) GetVehicle(ctx context.Context, companyID, id int64) (*Vehicle, error) {
	v, err := s.findVehicle(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	one := []Vehicle{*v}
	if err := s.attachVehicleDrivers(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// CreateVehicle inserts v and fills in its generated columns.
func (s *Store) CreateVehicle(ctx context.Context, v *Vehicle) error {
	if v.Status == "" {
		v.Status = "active"
	}
	err := s.get(ctx, s.db, v, `
		INSERT INTO vehicles (company_id, driver_id, name, license_plate, type, make, model,
			year, vin, fuel_type, fuel_capacity, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+vehicleColumns,
		v.CompanyID, v.DriverID, v.Name, v.LicensePlate, v.Type, v.Make, v.Model,
		v.Year, v.VIN, v.FuelType, v.FuelCapacity, v.Status, v.Notes)
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	s.logger.Info("Vehicle created", zap.Int64("company_id", v.CompanyID), zap.Int64("vehicle_id", v.ID))
	return nil
}

// UpdateVehicle replaces the editable fields of vehicle id.
func (s *Store) UpdateVehicle(ctx context.Context, companyID, id int64, v *Vehicle) (*Vehicle, error) {
	if _, err := s.findVehicle(ctx, companyID, id); err != nil {
		return nil, err
	}
	if v.Status == "" {
		v.Status = "active"
	}
	var out Vehicle
	err := s.get(ctx, s.db, &out, `
		UPDATE vehicles SET driver_id = $1, name = $2, license_plate = $3, type = $4, make = $5,
			model = $6, year = $7, vin = $8, fuel_type = $9, fuel_capacity = $10, status = $11,
			notes = $12, updated_at = NOW()
		WHERE id = $13 AND company_id = $14 AND deleted_at IS NULL
		RETURNING `+vehicleColumns,
		v.DriverID, v.Name, v.LicensePlate, v.Type, v.Make, v.Model, v.Year, v.VIN,
		v.FuelType, v.FuelCapacity, v.Status, v.Notes, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update vehicle %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteVehicle(ctx context.Context, companyID, id int64) error {
	if _, err := s.findVehicle(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableVehicles, companyID, id)
}

// VehicleFieldTaken reports whether another live vehicle of the company
// already uses value in column (license_plate or vin).
func (s *Store) VehicleFieldTaken(ctx context.Context, companyID int64, column, value string, exceptID int64) (bool, error) {
	switch column {
	case "license_plate", "vin":
	default:
		return false, fmt.Errorf("unsupported vehicle column %q", column)
	}
	var taken bool
	err := s.get(ctx, s.db, &taken, `SELECT EXISTS(SELECT 1 FROM vehicles
		WHERE company_id = $1 AND `+column+` = $2 AND id <> $3 AND deleted_at IS NULL)`,
		companyID, value, exceptID)
	if err != nil {
		return false, fmt.Errorf("check vehicle %s: %w", column, err)
	}
	return taken, nil
}

// VehicleOptions lists id and label pairs for the driver form's vehicle picker.
func (s *Store) VehicleOptions(ctx context.Context, companyID int64) ([]Vehicle, error) {
	vehicles := []Vehicle{}
	if err := sqlx.SelectContext(ctx, s.db, &vehicles,
		`SELECT `+vehicleColumns+` FROM vehicles
		WHERE company_id = $1 AND deleted_at IS NULL ORDER BY license_plate`, companyID); err != nil {
		return nil, fmt.Errorf("list vehicle options: %w", err)
	}
	return vehicles, nil
}

// FuelEconomy summarizes the fillups of one vehicle.
type FuelEconomy struct {
	VehicleID    int64        `json:"vehicle_id"`
	Fillups      int          `json:"fillups"`
	TotalGallons float64      `json:"total_gallons"`
	TotalCost    float64      `json:"total_cost"`
	AverageMPG   *float64     `json:"average_mpg"`
	History      []FuelFillup `json:"history"`
}

// VehicleFuelEconomy returns the fillup history of a vehicle in date order with
// the aggregate gallons, cost and average of computed mpg values.
func (s *Store) VehicleFuelEconomy(ctx context.Context, companyID, id int64) (*FuelEconomy, error) {
	if _, err := s.findVehicle(ctx, companyID, id); err != nil {
		return nil, err
	}
	history := []FuelFillup{}
	if err := sqlx.SelectContext(ctx, s.db, &history,
		`SELECT `+fillupColumns+` FROM fuel_fillups
		WHERE vehicle_id = $1 AND deleted_at IS NULL
		ORDER BY fillup_date, id`, id); err != nil {
		return nil, fmt.Errorf("load fuel history for vehicle %d: %w", id, err)
	}
	fe := &FuelEconomy{VehicleID: id, Fillups: len(history), History: history}
	var mpgSum float64
	var mpgCount int
	for _, f := range history {
		fe.TotalGallons += f.Gallons
		fe.TotalCost += f.Cost
		if f.MPG != nil && *f.MPG > 0 {
			mpgSum += *f.MPG
			mpgCount++
		}
	}
	if mpgCount > 0 {
		avg := mpg.Round(mpgSum/float64(mpgCount), 2)
		fe.AverageMPG = &avg
	}
	fe.TotalGallons = mpg.Round(fe.TotalGallons, 2)
	fe.TotalCost = mpg.Round(fe.TotalCost, 2)
	return fe, nil
}
