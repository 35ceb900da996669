package dashboard

import "time"

// VehicleRef is the vehicle summary shown next to issues and services.
type VehicleRef struct {
	ID           int64   `json:"id"`
	Make         *string `json:"make"`
	Model        *string `json:"model"`
	LicensePlate *string `json:"license_plate"`
}

type Utilization struct {
	VehicleID     int64   `json:"vehicle_id" db:"vehicle_id"`
	TripCount     int64   `json:"trip_count" db:"trip_count"`
	TotalDistance float64 `json:"total_distance" db:"total_distance"`
}

type RecentIssue struct {
	ID        int64       `json:"id"`
	VehicleID int64       `json:"vehicle_id"`
	Title     string      `json:"title"`
	Priority  string      `json:"priority"`
	CreatedAt time.Time   `json:"created_at"`
	Vehicle   *VehicleRef `json:"vehicle"`
}

type UpcomingService struct {
	ID          int64       `json:"id"`
	VehicleID   int64       `json:"vehicle_id"`
	ServiceType string      `json:"service_type"`
	ServiceDate time.Time   `json:"service_date"`
	Status      string      `json:"status"`
	Vehicle     *VehicleRef `json:"vehicle"`
}

// Stats is the dashboard KPI payload. Monthly maps are keyed by month number
// ("1".."12") and only hold months with data.
type Stats struct {
	TotalVehicles       int64              `json:"total_vehicles"`
	ActiveVehicles      int64              `json:"active_vehicles"`
	TotalDrivers        int64              `json:"total_drivers"`
	ActiveDrivers       int64              `json:"active_drivers"`
	TotalTrips          int64              `json:"total_trips"`
	CompletedTrips      int64              `json:"completed_trips"`
	MonthlyTrips        map[string]int64   `json:"monthly_trips"`
	MonthlyExpenses     map[string]float64 `json:"monthly_expenses"`
	MonthlyFuelCosts    map[string]float64 `json:"monthly_fuel_costs"`
	VehicleUtilization  []Utilization      `json:"vehicle_utilization"`
	RecentIssues        []RecentIssue      `json:"recent_issues"`
	UpcomingServices    []UpcomingService  `json:"upcoming_services"`
	TotalCost           float64            `json:"total_cost"`
	TotalExpenses       float64            `json:"total_expenses"`
	AvgMPG              float64            `json:"avg_mpg"`
	DowntimeDays        float64            `json:"downtime_days"`
	CostIncreasePercent float64            `json:"cost_increase_percent"`
	OverdueReminders    int64              `json:"overdue_reminders"`
	OpenIssues          int64              `json:"open_issues"`
	MaintenanceQueue    int64              `json:"maintenance_queue"`
	RenewalCount        int64              `json:"renewal_count"`
	CostPerMile         float64            `json:"cost_per_mile"`
	CostPerDay          float64            `json:"cost_per_day"`

	// The frontend reads both spellings.
	RecentIssuesAlt     []RecentIssue     `json:"recentIssues"`
	UpcomingServicesAlt []UpcomingService `json:"upcomingServices"`
}

// ChartData is twelve months of expenses and fuel spend for the current year.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Expenses []float64 `json:"expenses"`
	Revenue  []float64 `json:"revenue"`
}

var monthLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// DefaultAvgMPG is reported when no fillup has a derived mpg yet.
const DefaultAvgMPG = 8.5
