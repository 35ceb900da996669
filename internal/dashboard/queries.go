package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// totals holds the single-row aggregates behind the KPI cards.
type totals struct {
	TotalVehicles  int64    `db:"total_vehicles"`
	ActiveVehicles int64    `db:"active_vehicles"`
	TotalDrivers   int64    `db:"total_drivers"`
	ActiveDrivers  int64    `db:"active_drivers"`
	TotalTrips     int64    `db:"total_trips"`
	CompletedTrips int64    `db:"completed_trips"`
	TotalExpenses  float64  `db:"total_expenses"`
	AvgMPG         *float64 `db:"avg_mpg"`
}

const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM vehicles WHERE company_id = $1 AND deleted_at IS NULL) AS total_vehicles,
	(SELECT COUNT(*) FROM vehicles WHERE company_id = $1 AND deleted_at IS NULL AND status = 'active') AS active_vehicles,
	(SELECT COUNT(*) FROM drivers WHERE company_id = $1 AND deleted_at IS NULL) AS total_drivers,
	(SELECT COUNT(*) FROM drivers WHERE company_id = $1 AND deleted_at IS NULL AND status = 'active') AS active_drivers,
	(SELECT COUNT(*) FROM trips WHERE company_id = $1 AND deleted_at IS NULL) AS total_trips,
	(SELECT COUNT(*) FROM trips WHERE company_id = $1 AND deleted_at IS NULL AND status = 'completed') AS completed_trips,
	(SELECT COALESCE(SUM(amount), 0)::FLOAT8 FROM expenses WHERE company_id = $1 AND deleted_at IS NULL
		AND created_at >= $2 AND created_at < $3) AS total_expenses,
	(SELECT AVG(mpg)::FLOAT8 FROM fuel_fillups WHERE company_id = $1 AND deleted_at IS NULL AND mpg > 0) AS avg_mpg`

// monthly aggregates one table over the given year, keyed by month 1..12.
// table, column and agg are fixed strings from this package, never user input.
func (s *Service) monthly(ctx context.Context, table, column, agg string, companyID int64, from, to time.Time) (map[int]float64, error) {
	var rows []struct {
		Month int     `db:"month"`
		Value float64 `db:"value"`
	}
	query := fmt.Sprintf(`
		SELECT EXTRACT(MONTH FROM %[2]s)::INT AS month, %[3]s::FLOAT8 AS value
		FROM %[1]s
		WHERE company_id = $1 AND deleted_at IS NULL AND %[2]s >= $2 AND %[2]s < $3
		GROUP BY 1 ORDER BY 1`, table, column, agg)
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, companyID, from, to); err != nil {
		return nil, fmt.Errorf("monthly %s: %w", table, err)
	}
	out := make(map[int]float64, len(rows))
	for _, r := range rows {
		out[r.Month] = r.Value
	}
	return out, nil
}

func (s *Service) utilization(ctx context.Context, companyID int64) ([]Utilization, error) {
	rows := []Utilization{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT vehicle_id, COUNT(*) AS trip_count, SUM(COALESCE(distance, 0))::FLOAT8 AS total_distance
		FROM trips
		WHERE company_id = $1 AND deleted_at IS NULL AND distance IS NOT NULL
		GROUP BY vehicle_id
		ORDER BY total_distance DESC
		LIMIT 10`, companyID)
	if err != nil {
		return nil, fmt.Errorf("vehicle utilization: %w", err)
	}
	return rows, nil
}

type vehicleCols struct {
	Make         *string `db:"make"`
	Model        *string `db:"model"`
	LicensePlate *string `db:"license_plate"`
}

func (v vehicleCols) ref(id int64) *VehicleRef {
	if v.Make == nil && v.Model == nil && v.LicensePlate == nil {
		return nil
	}
	return &VehicleRef{ID: id, Make: v.Make, Model: v.Model, LicensePlate: v.LicensePlate}
}

func (s *Service) recentIssues(ctx context.Context, companyID int64) ([]RecentIssue, error) {
	var rows []struct {
		ID        int64     `db:"id"`
		VehicleID int64     `db:"vehicle_id"`
		Title     string    `db:"title"`
		Priority  string    `db:"priority"`
		CreatedAt time.Time `db:"created_at"`
		vehicleCols
	}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT i.id, i.vehicle_id, i.title, i.priority, i.created_at, v.make, v.model, v.license_plate
		FROM issues i
		LEFT JOIN vehicles v ON v.id = i.vehicle_id
		WHERE i.company_id = $1 AND i.deleted_at IS NULL
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT 5`, companyID)
	if err != nil {
		return nil, fmt.Errorf("recent issues: %w", err)
	}
	out := make([]RecentIssue, 0, len(rows))
	for _, r := range rows {
		out = append(out, RecentIssue{
			ID: r.ID, VehicleID: r.VehicleID, Title: r.Title, Priority: r.Priority,
			CreatedAt: r.CreatedAt, Vehicle: r.ref(r.VehicleID),
		})
	}
	return out, nil
}

func (s *Service) upcomingServices(ctx context.Context, companyID int64, today time.Time) ([]UpcomingService, error) {
	var rows []struct {
		ID          int64     `db:"id"`
		VehicleID   int64     `db:"vehicle_id"`
		ServiceType string    `db:"service_type"`
		ServiceDate time.Time `db:"service_date"`
		Status      string    `db:"status"`
		vehicleCols
	}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT sv.id, sv.vehicle_id, sv.service_type, sv.service_date, sv.status,
			v.make, v.model, v.license_plate
		FROM services sv
		LEFT JOIN vehicles v ON v.id = sv.vehicle_id
		WHERE sv.company_id = $1 AND sv.deleted_at IS NULL AND sv.service_date >= $2
		ORDER BY sv.service_date, sv.id
		LIMIT 5`, companyID, today)
	if err != nil {
		return nil, fmt.Errorf("upcoming services: %w", err)
	}
	out := make([]UpcomingService, 0, len(rows))
	for _, r := range rows {
		out = append(out, UpcomingService{
			ID: r.ID, VehicleID: r.VehicleID, ServiceType: r.ServiceType,
			ServiceDate: r.ServiceDate, Status: r.Status, Vehicle: r.ref(r.VehicleID),
		})
	}
	return out, nil
}

func monthKeys(m map[int]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}

func monthCounts(m map[int]float64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = int64(v)
	}
	return out
}
