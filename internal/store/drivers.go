package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/db"
)

const driverColumns = `id, company_id, user_id, license_number, license_expiry, phone, status,
	address, created_at, updated_at, deleted_at`

// ListDrivers returns the company's drivers with their user, newest first.
func (s *Store) ListDrivers(ctx context.Context, companyID int64) ([]Driver, error) {
	drivers := []Driver{}
	if err := sqlx.SelectContext(ctx, s.db, &drivers,
		`SELECT `+driverColumns+` FROM drivers
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	ids := make([]int64, 0, len(drivers))
	for _, d := range drivers {
		ids = append(ids, d.UserID)
	}
	users, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range drivers {
		drivers[i].User = users[drivers[i].UserID]
	}
	return drivers, nil
}

func (s *Store) findDriver(ctx context.Context, companyID, id int64) (*Driver, error) {
	var d Driver
	if err := s.get(ctx, s.db, &d,
		`SELECT `+driverColumns+` FROM drivers WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(d.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDriver returns a driver with user, assigned vehicle and the latest 10 trips.
func (s *Store) GetDriver(ctx context.Context, companyID, id int64) (*Driver, error) {
	d, err := s.findDriver(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	users, err := s.usersByID(ctx, []int64{d.UserID})
	if err != nil {
		return nil, err
	}
	d.User = users[d.UserID]

	var v Vehicle
	switch err := s.get(ctx, s.db, &v,
		`SELECT `+vehicleColumns+` FROM vehicles
		WHERE driver_id = $1 AND deleted_at IS NULL ORDER BY id LIMIT 1`, d.ID); err {
	case nil:
		d.Vehicle = &v
	case ErrNotFound:
	default:
		return nil, fmt.Errorf("load vehicle of driver %d: %w", id, err)
	}

	d.Trips = []Trip{}
	if err := sqlx.SelectContext(ctx, s.db, &d.Trips,
		`SELECT `+tripColumns+` FROM trips
		WHERE driver_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC LIMIT 10`, d.ID); err != nil {
		return nil, fmt.Errorf("load trips of driver %d: %w", id, err)
	}
	return d, nil
}

// CreateDriver creates the driver's login user and the driver row, then
// assigns the selected vehicle, all in one transaction.
func (s *Store) CreateDriver(ctx context.Context, companyID int64, in *DriverInput, passwordHash string) (*Driver, error) {
	var d Driver
	err := db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		var userID int64
		if err := tx.GetContext(ctx, &userID, `
			INSERT INTO users (company_id, name, email, password_hash, role)
			VALUES ($1, $2, $3, $4, 'driver') RETURNING id`,
			companyID, in.Name, in.Email, passwordHash); err != nil {
			return fmt.Errorf("create driver user: %w", err)
		}
		if err := tx.GetContext(ctx, &d, `
			INSERT INTO drivers (company_id, user_id, license_number, license_expiry, phone, status, address)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+driverColumns,
			companyID, userID, in.LicenseNumber, in.LicenseExpiry, in.Phone, in.Status, in.Address); err != nil {
			return fmt.Errorf("create driver: %w", err)
		}
		return assignVehicle(ctx, tx, companyID, d.ID, in.VehicleID)
	})
	if err != nil {
		return nil, err
	}
	d.User = &UserRef{ID: d.UserID, Name: in.Name, Email: in.Email, Role: "driver"}
	s.logger.Info("Driver created",
		zap.Int64("company_id", companyID),
		zap.Int64("driver_id", d.ID),
		zap.Int64("user_id", d.UserID),
	)
	return &d, nil
}

// UpdateDriver updates the driver row, its user's name and email, and the
// vehicle assignment.
func (s *Store) UpdateDriver(ctx context.Context, companyID, id int64, in *DriverInput) (*Driver, error) {
	cur, err := s.findDriver(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	var d Driver
	err = db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &d, `
			UPDATE drivers SET license_number = $1, license_expiry = $2, phone = $3, status = $4,
				address = $5, updated_at = NOW()
			WHERE id = $6 AND company_id = $7
			RETURNING `+driverColumns,
			in.LicenseNumber, in.LicenseExpiry, in.Phone, in.Status, in.Address, id, companyID); err != nil {
			return fmt.Errorf("update driver: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET name = $1, email = $2, updated_at = NOW() WHERE id = $3`,
			in.Name, in.Email, cur.UserID); err != nil {
			return fmt.Errorf("update driver user: %w", err)
		}
		return assignVehicle(ctx, tx, companyID, id, in.VehicleID)
	})
	if err != nil {
		return nil, err
	}
	d.User = &UserRef{ID: d.UserID, Name: in.Name, Email: in.Email, Role: "driver"}
	return &d, nil
}

// assignVehicle makes vehicleID the driver's only vehicle. A nil vehicleID
// leaves the driver without a vehicle.
func assignVehicle(ctx context.Context, tx *sqlx.Tx, companyID, driverID int64, vehicleID *int64) error {
	var keep int64
	if vehicleID != nil {
		keep = *vehicleID
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE vehicles SET driver_id = NULL, updated_at = NOW() WHERE driver_id = $1 AND id <> $2`,
		driverID, keep); err != nil {
		return fmt.Errorf("unassign vehicles of driver %d: %w", driverID, err)
	}
	if vehicleID == nil {
		return nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE vehicles SET driver_id = $1, updated_at = NOW()
		WHERE id = $2 AND company_id = $3 AND deleted_at IS NULL`,
		driverID, *vehicleID, companyID)
	if err != nil {
		return fmt.Errorf("assign vehicle %d: %w", *vehicleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDriver unassigns the driver's vehicle and soft deletes the driver.
func (s *Store) DeleteDriver(ctx context.Context, companyID, id int64) error {
	if _, err := s.findDriver(ctx, companyID, id); err != nil {
		return err
	}
	return db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := assignVehicle(ctx, tx, companyID, id, nil); err != nil {
			return err
		}
		return s.softDelete(ctx, tx, tableDrivers, companyID, id)
	})
}

// DriverVehicleID returns the id of the vehicle assigned to a driver, if any.
func (s *Store) DriverVehicleID(ctx context.Context, driverID int64) (*int64, error) {
	var id int64
	switch err := s.get(ctx, s.db, &id,
		`SELECT id FROM vehicles WHERE driver_id = $1 AND deleted_at IS NULL ORDER BY id LIMIT 1`,
		driverID); err {
	case nil:
		return &id, nil
	case ErrNotFound:
		return nil, nil
	default:
		return nil, err
	}
}

// DriverUserID returns the user id behind a driver of the company.
func (s *Store) DriverUserID(ctx context.Context, companyID, id int64) (int64, error) {
	d, err := s.findDriver(ctx, companyID, id)
	if err != nil {
		return 0, err
	}
	return d.UserID, nil
}

// LicenseNumberTaken checks license numbers across all live drivers.
func (s *Store) LicenseNumberTaken(ctx context.Context, number string, exceptDriverID int64) (bool, error) {
	var taken bool
	if err := s.get(ctx, s.db, &taken, `SELECT EXISTS(SELECT 1 FROM drivers
		WHERE license_number = $1 AND id <> $2 AND deleted_at IS NULL)`,
		number, exceptDriverID); err != nil {
		return false, fmt.Errorf("check license number: %w", err)
	}
	return taken, nil
}

// EmailTaken checks user emails across all companies.
func (s *Store) EmailTaken(ctx context.Context, email string, exceptUserID int64) (bool, error) {
	var taken bool
	if err := s.get(ctx, s.db, &taken,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
		email, exceptUserID); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}
