// Package store persists fleet records. Every call is scoped to a company and
// fleet records are soft deleted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/db"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("record belongs to another company")
	ErrConflict  = errors.New("record conflicts with existing data")
)

// Store is the fleet data access layer.
type Store struct {
	db     db.Handle
	logger *zap.Logger
}

func New(h db.Handle, logger *zap.Logger) *Store {
	return &Store{db: h, logger: logger}
}

// get runs a single-row query, mapping no rows to ErrNotFound.
func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// owned checks a loaded row against the caller's company.
func owned(rowCompanyID, companyID int64) error {
	if rowCompanyID != companyID {
		return ErrForbidden
	}
	return nil
}

// table names accepted by the generic helpers.
const (
	tableVehicles    = "vehicles"
	tableDrivers     = "drivers"
	tableTrips       = "trips"
	tableFillups     = "fuel_fillups"
	tableServices    = "services"
	tableInspections = "inspections"
	tableIssues      = "issues"
	tableExpenses    = "expenses"
)

// Exists reports whether a live row with id belongs to companyID. It backs the
// "selected X is invalid" validation for foreign keys.
func (s *Store) Exists(ctx context.Context, table string, companyID, id int64) (bool, error) {
	var ok bool
	query := fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL)`, table)
	if err := sqlx.GetContext(ctx, s.db, &ok, query, id, companyID); err != nil {
		return false, fmt.Errorf("check %s %d: %w", table, id, err)
	}
	return ok, nil
}

func (s *Store) VehicleExists(ctx context.Context, companyID, id int64) (bool, error) {
	return s.Exists(ctx, tableVehicles, companyID, id)
}

func (s *Store) DriverExists(ctx context.Context, companyID, id int64) (bool, error) {
	return s.Exists(ctx, tableDrivers, companyID, id)
}

// softDelete marks a row deleted. The row must already be known to belong to companyID.
func (s *Store) softDelete(ctx context.Context, e sqlx.ExecerContext, table string, companyID, id int64) error {
	query := fmt.Sprintf(
		`UPDATE %s SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL`, table)
	res, err := e.ExecContext(ctx, query, id, companyID)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// selectIn runs query with an IN (?) clause expanded over ids.
func selectIn(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, ids []int64) error {
	expanded, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q, dest, sqlx.Rebind(sqlx.DOLLAR, expanded), args...)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
