package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const issueColumns = `id, company_id, vehicle_id, driver_id, title, description, priority, status,
	reported_date, created_at, updated_at, deleted_at`

func (s *Store) ListIssues(ctx context.Context, companyID int64) ([]Issue, error) {
	issues := []Issue{}
	if err := sqlx.SelectContext(ctx, s.db, &issues,
		`SELECT `+issueColumns+` FROM issues
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`, companyID); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if err := s.attachIssueRelations(ctx, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *Store) attachIssueRelations(ctx context.Context, issues []Issue) error {
	vehicleIDs := make([]int64, 0, len(issues))
	driverIDs := make([]*int64, 0, len(issues))
	for _, is := range issues {
		vehicleIDs = append(vehicleIDs, is.VehicleID)
		driverIDs = append(driverIDs, is.DriverID)
	}
	vehicles, drivers, err := s.vehicleAndDriver(ctx, vehicleIDs, derefIDs(driverIDs))
	if err != nil {
		return err
	}
	for i := range issues {
		issues[i].Vehicle = vehicles[issues[i].VehicleID]
		if issues[i].DriverID != nil {
			issues[i].Driver = drivers[*issues[i].DriverID]
		}
	}
	return nil
}

func (s *Store) findIssue(ctx context.Context, companyID, id int64) (*Issue, error) {
	var is Issue
	if err := s.get(ctx, s.db, &is,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	if err := owned(is.CompanyID, companyID); err != nil {
		return nil, err
	}
	return &is, nil
}

func (s *Store) GetIssue(ctx context.Context, companyID, id int64, withRelations bool) (*Issue, error) {
	is, err := s.findIssue(ctx, companyID, id)
	if err != nil || !withRelations {
		return is, err
	}
	one := []Issue{*is}
	if err := s.attachIssueRelations(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func defaultIssue(is *Issue, today time.Time) {
	if is.Priority == "" {
		is.Priority = "medium"
	}
	if is.Status == "" {
		is.Status = "open"
	}
	if is.ReportedDate.IsZero() {
		is.ReportedDate = today
	}
}

func (s *Store) CreateIssue(ctx context.Context, is *Issue) error {
	defaultIssue(is, time.Now())
	err := s.get(ctx, s.db, is, `
		INSERT INTO issues (company_id, vehicle_id, driver_id, title, description, priority, status, reported_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+issueColumns,
		is.CompanyID, is.VehicleID, is.DriverID, is.Title, is.Description, is.Priority, is.Status,
		is.ReportedDate)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *Store) UpdateIssue(ctx context.Context, companyID, id int64, is *Issue) (*Issue, error) {
	cur, err := s.findIssue(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	defaultIssue(is, cur.ReportedDate)
	var out Issue
	err = s.get(ctx, s.db, &out, `
		UPDATE issues SET vehicle_id = $1, driver_id = $2, title = $3, description = $4,
			priority = $5, status = $6, reported_date = $7, updated_at = NOW()
		WHERE id = $8 AND company_id = $9 AND deleted_at IS NULL
		RETURNING `+issueColumns,
		is.VehicleID, is.DriverID, is.Title, is.Description, is.Priority, is.Status,
		is.ReportedDate, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("update issue %d: %w", id, err)
	}
	return &out, nil
}

func (s *Store) DeleteIssue(ctx context.Context, companyID, id int64) error {
	if _, err := s.findIssue(ctx, companyID, id); err != nil {
		return err
	}
	return s.softDelete(ctx, s.db, tableIssues, companyID, id)
}
