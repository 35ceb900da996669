package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const inspectionColumns = `id, company_id, vehicle_id, driver_id, inspection_date, notes, result,
	next_due_date, status, created_at, updated_at, deleted_at`

func (s *Store) ListInspections(ctx context.Context, companyID int64) ([]Inspection, error) {
	inspections := []Inspection{}
	if err := sqlx.SelectContext(ctx, s.db, &inspections,
		`SELECT `+inspectionColumns+` FROM inspections
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY inspection_date DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	if err := s.attachInspectionRelations(ctx, inspections); err != nil {
		return nil, err
	}
	return inspections, nil
}

func (s *Store) attachInspectionRelations(ctx context.Context, inspections []Inspection) error {
	vehicleIDs := make([]int64, 0, len(inspections))
	driverIDs := make([]int64, 0, len(inspections))
	for _, in := range inspections {
		vehicleIDs = append(vehicleIDs, in.VehicleID)
		driverIDs = append(driverIDs, in.DriverID)
	}
	vehicles, drivers, err := s.vehicleAndDriver(ctx, vehicleIDs, driverIDs)
	if err != nil {
		return err
	}
	for i := range inspections {
		inspections[i].Vehicle = vehicles[inspections[i].VehicleID]
		inspections[i].Driver = drivers[inspections[i].DriverID]
	}
	return nil
}

func (s *Store) findInspection(ctx context.Context, companyID, id int64) (*Inspection, error) {
	var in Inspection
	if err := s.get(ctx, s.db, &in,
		`SELECT `+inspectionColumns+` FROM inspections WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(in.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Store) GetInspection(ctx context.Context, companyID, id int64, withRelations bool) (*Inspection, error) {
	in, err := s.findInspection(ctx, companyID, id)
	if err != nil || !withRelations {
		return in, err
	}
	one := []Inspection{*in}
	if err := s.attachInspectionRelations(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func defaultInspection(in *Inspection) {
	if in.Result == "" {
		in.Result = "pending"
	}
	if in.Status == "" {
		in.Status = "passed"
	}
}

// CreateInspection inserts the inspection and returns it with vehicle and driver loaded.
func (s *Store) CreateInspection(ctx context.Context, in *Inspection) error {
	defaultInspection(in)
	err := s.get(ctx, s.db, in, `
		INSERT INTO inspections (company_id, vehicle_id, driver_id, inspection_date, notes, result,
			next_due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+inspectionColumns,
		in.CompanyID, in.VehicleID, in.DriverID, in.InspectionDate, in.Notes, in.Result,
		in.NextDueDate, in.Status)
	if err != nil {
		return fmt.Errorf("create inspection: %w", err)
	}
	one := []Inspection{*in}
	if err := s.attachInspectionRelations(ctx, one); err != nil {
		return err
	}
	*in = one[0]
	return nil
}

func (s *Store) UpdateInspection(ctx context.Context, companyID, id int64, in *Inspection) (*Inspection, error) {
	if _, err := s.findInspection(ctx, companyID, id); err != nil {
		return nil, err
	}
	defaultInspection(in)
	var out Inspection
	err := s.get(ctx, s.db, &out, `
		UPDATE inspections SET vehicle_id = $1, driver_id = $2, inspection_date = $3, notes = $4,
			result = $5, next_due_date = $6, status = $7, updated_at = NOW()
		WHERE id = $8 AND company_id = $9 AND deleted_at IS NULL
		RETURNING `+inspectionColumns,
		in.VehicleID, in.DriverID, in.InspectionDate, in.Notes, in.Result, in.NextDueDate,
		in.Status, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update inspection %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteInspection(ctx context.Context, companyID, id int64) error {
	if _, err := s.findInspection(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableInspections, companyID, id)
}
