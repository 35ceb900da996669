package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Location is a position report for a vehicle (or an unassigned phone).
type Location struct {
	ID                  int64     `json:"id" db:"id"`
	CompanyID           int64     `json:"company_id" db:"company_id"`
	VehicleID           *int64    `json:"vehicle_id" db:"vehicle_id"`
	UserID              *int64    `json:"user_id" db:"user_id"`
	Latitude            float64   `json:"latitude" db:"latitude"`
	Longitude           float64   `json:"longitude" db:"longitude"`
	Accuracy            *float64  `json:"accuracy" db:"accuracy"`
	Speed               *float64  `json:"speed" db:"speed"`
	LocationDescription *string   `json:"location_description" db:"location_description"`
	RecordedAt          time.Time `json:"recorded_at" db:"recorded_at"`
}

const locationColumns = `id, company_id, vehicle_id, user_id, latitude, longitude, accuracy, speed,
	location_description, recorded_at`

func (s *Store) RecordLocation(ctx context.Context, l *Location) error {
	err := s.get(ctx, s.db, l, `
		INSERT INTO vehicle_locations (company_id, vehicle_id, user_id, latitude, longitude, accuracy,
			speed, location_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+locationColumns,
		l.CompanyID, l.VehicleID, l.UserID, l.Latitude, l.Longitude, l.Accuracy, l.Speed,
		l.LocationDescription)
	if err != nil {
		return fmt.Errorf("record location: %w", err)
	}
	return nil
}

// LatestLocations returns the most recent report per vehicle of the company.
// Reports without a vehicle are grouped by the reporting user.
func (s *Store) LatestLocations(ctx context.Context, companyID int64) ([]Location, error) {
	locations := []Location{}
	err := sqlx.SelectContext(ctx, s.db, &locations, `
		SELECT DISTINCT ON (vehicle_id, CASE WHEN vehicle_id IS NULL THEN user_id END) `+locationColumns+`
		FROM vehicle_locations
		WHERE company_id = $1
		ORDER BY vehicle_id, CASE WHEN vehicle_id IS NULL THEN user_id END, recorded_at DESC, id DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("latest locations: %w", err)
	}
	return locations, nil
}
