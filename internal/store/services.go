package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const serviceColumns = `id, company_id, vehicle_id, service_type, service_date, cost, description,
	notes, status, created_at, updated_at, deleted_at`

func (s *Store) ListServices(ctx context.Context, companyID int64) ([]Service, error) {
	services := []Service{}
	if err := sqlx.SelectContext(ctx, s.db, &services,
		`SELECT `+serviceColumns+` FROM services
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY service_date DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if err := s.attachServiceVehicles(ctx, services); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) attachServiceVehicles(ctx context.Context, services []Service) error {
	ids := make([]int64, 0, len(services))
	for _, sv := range services {
		ids = append(ids, sv.VehicleID)
	}
	vehicles, err := s.vehiclesByID(ctx, ids)
	if err != nil {
		return err
	}
	for i := range services {
		services[i].Vehicle = vehicles[services[i].VehicleID]
	}
	return nil
}

func (s *Store) findService(ctx context.Context, companyID, id int64) (*Service, error) {
	var sv Service
	if err := s.get(ctx, s.db, &sv,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(sv.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &sv, nil
}

func (s *Store) GetService(ctx context.Context, companyID, id int64, withRelations bool) (*Service, error) {
	sv, err := s.findService(ctx, companyID, id)
	if err != nil || !withRelations {
		return sv, err
	}
	one := []Service{*sv}
	if err := s.attachServiceVehicles(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// normalizeService mirrors notes into description and defaults the status.
func normalizeService(sv *Service) {
	if sv.Status == "" {
		sv.Status = "completed"
	}
	desc := ""
	if sv.Notes != nil {
		desc = *sv.Notes
	}
	sv.Description = &desc
}

func (s *Store) CreateService(ctx context.Context, sv *Service) error {
	normalizeService(sv)
	err := s.get(ctx, s.db, sv, `
		INSERT INTO services (company_id, vehicle_id, service_type, service_date, cost, description, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+serviceColumns,
		sv.CompanyID, sv.VehicleID, sv.ServiceType, sv.ServiceDate, sv.Cost, sv.Description, sv.Notes, sv.Status)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, companyID, id int64, sv *Service) (*Service, error) {
	if _, err := s.findService(ctx, companyID, id); err != nil {
		return nil, err
	}
	normalizeService(sv)
	var out Service
	err := s.get(ctx, s.db, &out, `
		UPDATE services SET vehicle_id = $1, service_type = $2, service_date = $3, cost = $4,
			description = $5, notes = $6, status = $7, updated_at = NOW()
		WHERE id = $8 AND company_id = $9 AND deleted_at IS NULL
		RETURNING `+serviceColumns,
		sv.VehicleID, sv.ServiceType, sv.ServiceDate, sv.Cost, sv.Description, sv.Notes, sv.Status,
		id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update service %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteService(ctx context.Context, companyID, id int64) error {
	if _, err := s.findService(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableServices, companyID, id)
}
