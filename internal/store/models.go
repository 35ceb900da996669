package store

import "time"

// UserRef is the user summary embedded in driver payloads.
type UserRef struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Role  string `json:"role" db:"role"`
}

type Vehicle struct {
	ID           int64      `json:"id" db:"id"`
	CompanyID    int64      `json:"company_id" db:"company_id"`
	DriverID     *int64     `json:"driver_id" db:"driver_id"`
	Name         *string    `json:"name" db:"name"`
	LicensePlate string     `json:"license_plate" db:"license_plate"`
	Type         *string    `json:"type" db:"type"`
	Make         string     `json:"make" db:"make"`
	Model        string     `json:"model" db:"model"`
	Year         *int64     `json:"year" db:"year"`
	VIN          *string    `json:"vin" db:"vin"`
	FuelType     *string    `json:"fuel_type" db:"fuel_type"`
	FuelCapacity *float64   `json:"fuel_capacity" db:"fuel_capacity"`
	Status       string     `json:"status" db:"status"`
	Notes        *string    `json:"notes" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`

	Driver *Driver `json:"driver,omitempty" db:"-"`
}

type Driver struct {
	ID            int64      `json:"id" db:"id"`
	CompanyID     int64      `json:"company_id" db:"company_id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	LicenseNumber string     `json:"license_number" db:"license_number"`
	LicenseExpiry time.Time  `json:"license_expiry" db:"license_expiry"`
	Phone         string     `json:"phone" db:"phone"`
	Status        string     `json:"status" db:"status"`
	Address       *string    `json:"address" db:"address"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"-" db:"deleted_at"`

	User    *UserRef `json:"user,omitempty" db:"-"`
	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
	Trips   []Trip   `json:"trips,omitempty" db:"-"`
}

// DriverInput carries the driver form, which spans the users and drivers tables.
type DriverInput struct {
	Name          string
	Email         string
	Phone         string
	LicenseNumber string
	LicenseExpiry time.Time
	Status        string
	VehicleID     *int64
	Address       *string
}

type Trip struct {
	ID            int64      `json:"id" db:"id"`
	CompanyID     int64      `json:"company_id" db:"company_id"`
	VehicleID     int64      `json:"vehicle_id" db:"vehicle_id"`
	DriverID      int64      `json:"driver_id" db:"driver_id"`
	StartLocation string     `json:"start_location" db:"start_location"`
	EndLocation   string     `json:"end_location" db:"end_location"`
	StartTime     time.Time  `json:"start_time" db:"start_time"`
	EndTime       *time.Time `json:"end_time" db:"end_time"`
	StartMileage  float64    `json:"start_mileage" db:"start_mileage"`
	EndMileage    *float64   `json:"end_mileage" db:"end_mileage"`
	Distance      *float64   `json:"distance" db:"distance"`
	TripDate      time.Time  `json:"trip_date" db:"trip_date"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
	Driver  *Driver  `json:"driver,omitempty" db:"-"`
}

type FuelFillup struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"company_id" db:"company_id"`
	VehicleID       int64      `json:"vehicle_id" db:"vehicle_id"`
	DriverID        int64      `json:"driver_id" db:"driver_id"`
	Gallons         float64    `json:"gallons" db:"gallons"`
	CostPerGallon   float64    `json:"cost_per_gallon" db:"cost_per_gallon"`
	Cost            float64    `json:"cost" db:"cost"`
	OdometerReading float64    `json:"odometer_reading" db:"odometer_reading"`
	MPG             *float64   `json:"mpg" db:"mpg"`
	FillupDate      time.Time  `json:"fillup_date" db:"fillup_date"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
	Driver  *Driver  `json:"driver,omitempty" db:"-"`
}

type Service struct {
	ID          int64      `json:"id" db:"id"`
	CompanyID   int64      `json:"company_id" db:"company_id"`
	VehicleID   int64      `json:"vehicle_id" db:"vehicle_id"`
	ServiceType string     `json:"service_type" db:"service_type"`
	ServiceDate time.Time  `json:"service_date" db:"service_date"`
	Cost        float64    `json:"cost" db:"cost"`
	Description *string    `json:"description" db:"description"`
	Notes       *string    `json:"notes" db:"notes"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
}

type Inspection struct {
	ID             int64      `json:"id" db:"id"`
	CompanyID      int64      `json:"company_id" db:"company_id"`
	VehicleID      int64      `json:"vehicle_id" db:"vehicle_id"`
	DriverID       int64      `json:"driver_id" db:"driver_id"`
	InspectionDate time.Time  `json:"inspection_date" db:"inspection_date"`
	Notes          string     `json:"notes" db:"notes"`
	Result         string     `json:"result" db:"result"`
	NextDueDate    *time.Time `json:"next_due_date" db:"next_due_date"`
	Status         string     `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
	Driver  *Driver  `json:"driver,omitempty" db:"-"`
}

type Issue struct {
	ID           int64      `json:"id" db:"id"`
	CompanyID    int64      `json:"company_id" db:"company_id"`
	VehicleID    int64      `json:"vehicle_id" db:"vehicle_id"`
	DriverID     *int64     `json:"driver_id" db:"driver_id"`
	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description" db:"description"`
	Priority     string     `json:"priority" db:"priority"`
	Status       string     `json:"status" db:"status"`
	ReportedDate time.Time  `json:"reported_date" db:"reported_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
	Driver  *Driver  `json:"driver,omitempty" db:"-"`
}

type Expense struct {
	ID          int64      `json:"id" db:"id"`
	CompanyID   int64      `json:"company_id" db:"company_id"`
	VehicleID   *int64     `json:"vehicle_id" db:"vehicle_id"`
	Category    string     `json:"category" db:"category"`
	Amount      float64    `json:"amount" db:"amount"`
	ExpenseDate time.Time  `json:"expense_date" db:"expense_date"`
	Description *string    `json:"description" db:"description"`
	Notes       *string    `json:"notes" db:"notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"-" db:"deleted_at"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
}

// Company holds the settings editable from the company settings page.
type Company struct {
	ID                 int64     `json:"id" db:"id"`
	Name               string    `json:"company_name" db:"name"`
	Email              *string   `json:"email" db:"email"`
	Phone              *string   `json:"phone" db:"phone"`
	Address            *string   `json:"address" db:"address"`
	City               *string   `json:"city" db:"city"`
	State              *string   `json:"state" db:"state"`
	Zip                *string   `json:"zip" db:"zip"`
	Country            *string   `json:"country" db:"country"`
	RegistrationNumber *string   `json:"registration_number" db:"registration_number"`
	TaxID              *string   `json:"tax_id" db:"tax_id"`
	Website            *string   `json:"website" db:"website"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
