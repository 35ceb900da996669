package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/db"
	"github.com/fleetworks/fleet-api/internal/mpg"
	"github.com/fleetworks/fleet-api/internal/store"
)

//go:embed fixtures.yaml
var defaultFixture []byte

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo company with vehicles, drivers and fuel history",
	Long: `Creates (or reuses) the fixture company, its vehicles and drivers, then a
series of fill-ups per vehicle with a steadily rising odometer, and finally
recomputes mpg for the company. Records that already exist are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := loadFixture(seedFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		client, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		h := client.Wrapper()
		dash, closeCache := openDashboard(ctx, h)
		defer closeCache()

		st := store.New(h, logger)
		s := &seeder{
			accounts: auth.NewService(h, logger, auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL), cfg.App.URL),
			store:    st,
			mpg:      mpg.NewRecomputer(st, logger),
			cache:    dash,
			logger:   logger,
			out:      cmd.OutOrStdout(),
			now:      time.Now,
		}
		return s.run(ctx, fx)
	},
}

// Fixture describes the demo data set.
type Fixture struct {
	Company  CompanyFixture   `yaml:"company"`
	Vehicles []VehicleFixture `yaml:"vehicles"`
	Drivers  []DriverFixture  `yaml:"drivers"`
	Fillups  FillupFixture    `yaml:"fillups"`
}

type CompanyFixture struct {
	Name          string `yaml:"name"`
	AdminName     string `yaml:"admin_name"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

type VehicleFixture struct {
	Name         string  `yaml:"name"`
	Make         string  `yaml:"make"`
	Model        string  `yaml:"model"`
	Year         int64   `yaml:"year"`
	LicensePlate string  `yaml:"license_plate"`
	VIN          string  `yaml:"vin"`
	FuelType     string  `yaml:"fuel_type"`
	FuelCapacity float64 `yaml:"fuel_capacity"`
}

type DriverFixture struct {
	Name          string `yaml:"name"`
	Email         string `yaml:"email"`
	Phone         string `yaml:"phone"`
	LicenseNumber string `yaml:"license_number"`
}

// FillupFixture generates PerVehicle fill-ups per vehicle, the first one
// MonthsBack months ago, each IntervalDays after the previous with the
// odometer OdometerStep higher. Gallons cycle through the list.
type FillupFixture struct {
	PerVehicle    int       `yaml:"per_vehicle"`
	StartOdometer float64   `yaml:"start_odometer"`
	OdometerStep  float64   `yaml:"odometer_step"`
	IntervalDays  int       `yaml:"interval_days"`
	MonthsBack    int       `yaml:"months_back"`
	CostPerGallon float64   `yaml:"cost_per_gallon"`
	Gallons       []float64 `yaml:"gallons"`
}

// loadFixture reads path, or the built-in fixture when path is empty.
func loadFixture(path string) (*Fixture, error) {
	data := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		data = b
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if fx.Company.Name == "" || fx.Company.AdminEmail == "" || fx.Company.AdminPassword == "" {
		return nil, errors.New("fixture company needs name, admin_email and admin_password")
	}
	if fx.Company.AdminName == "" {
		fx.Company.AdminName = fx.Company.Name
	}
	f := &fx.Fillups
	if f.PerVehicle < 0 {
		return nil, errors.New("fillups.per_vehicle must not be negative")
	}
	if f.PerVehicle > 0 && len(f.Gallons) == 0 {
		return nil, errors.New("fillups.gallons must list at least one value")
	}
	for _, g := range f.Gallons {
		if g <= 0 {
			return nil, fmt.Errorf("fillups.gallons: %v is not positive", g)
		}
	}
	if f.IntervalDays == 0 {
		f.IntervalDays = 20
	}
	return &fx, nil
}

// fillupPlan is one generated fill-up before ids are known.
type fillupPlan struct {
	Odometer      float64
	Gallons       float64
	CostPerGallon float64
	Cost          float64
	Date          time.Time
}

// planFillups lays out one vehicle's fill-up history ending before now.
func planFillups(f FillupFixture, now time.Time) []fillupPlan {
	start := now.AddDate(0, -f.MonthsBack, 0)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	plans := make([]fillupPlan, 0, f.PerVehicle)
	for i := 0; i < f.PerVehicle; i++ {
		gallons := f.Gallons[i%len(f.Gallons)]
		plans = append(plans, fillupPlan{
			Odometer:      f.StartOdometer + float64(i)*f.OdometerStep,
			Gallons:       gallons,
			CostPerGallon: f.CostPerGallon,
			Cost:          mpg.Round(gallons*f.CostPerGallon, 2),
			Date:          start.AddDate(0, 0, i*f.IntervalDays),
		})
	}
	return plans
}

type seedAccounts interface {
	Register(ctx context.Context, req *auth.RegisterRequest) (*auth.User, *auth.TokenPair, error)
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.User, *auth.TokenPair, error)
}

type seedStore interface {
	CreateVehicle(ctx context.Context, v *store.Vehicle) error
	CreateDriver(ctx context.Context, companyID int64, in *store.DriverInput, passwordHash string) (*store.Driver, error)
	CreateFillup(ctx context.Context, f *store.FuelFillup) error
}

type seeder struct {
	accounts seedAccounts
	store    seedStore
	mpg      recomputer
	cache    dashboardCache
	logger   *zap.Logger
	out      io.Writer
	now      func() time.Time
}

func (s *seeder) run(ctx context.Context, fx *Fixture) error {
	companyID, err := s.company(ctx, fx.Company)
	if err != nil {
		return err
	}

	var vehicleIDs []int64
	for _, vf := range fx.Vehicles {
		v := vehicleFromFixture(companyID, vf)
		if err := s.store.CreateVehicle(ctx, v); err != nil {
			if db.IsUniqueViolation(err) {
				fmt.Fprintf(s.out, "Vehicle %s already exists, skipping...\n", vf.LicensePlate)
				continue
			}
			return err
		}
		vehicleIDs = append(vehicleIDs, v.ID)
	}
	fmt.Fprintf(s.out, "Created %d test vehicles\n", len(vehicleIDs))

	hash, err := auth.HashPassword(auth.DefaultDriverPassword)
	if err != nil {
		return err
	}
	var driverIDs []int64
	expiry := s.now().AddDate(3, 0, 0).Truncate(24 * time.Hour)
	for _, df := range fx.Drivers {
		d, err := s.store.CreateDriver(ctx, companyID, &store.DriverInput{
			Name:          df.Name,
			Email:         df.Email,
			Phone:         df.Phone,
			LicenseNumber: df.LicenseNumber,
			LicenseExpiry: expiry,
			Status:        "active",
		}, hash)
		if err != nil {
			if db.IsUniqueViolation(err) {
				fmt.Fprintf(s.out, "Driver %s already exists, skipping...\n", df.Email)
				continue
			}
			return err
		}
		driverIDs = append(driverIDs, d.ID)
	}
	fmt.Fprintf(s.out, "Created %d drivers\n", len(driverIDs))

	if len(vehicleIDs) > 0 && fx.Fillups.PerVehicle > 0 {
		if len(driverIDs) == 0 {
			return errors.New("no new drivers to attach fill-ups to")
		}
		plans := planFillups(fx.Fillups, s.now())
		for i, vehicleID := range vehicleIDs {
			driverID := driverIDs[i%len(driverIDs)]
			for _, p := range plans {
				if err := s.store.CreateFillup(ctx, &store.FuelFillup{
					CompanyID:       companyID,
					VehicleID:       vehicleID,
					DriverID:        driverID,
					Gallons:         p.Gallons,
					CostPerGallon:   p.CostPerGallon,
					Cost:            p.Cost,
					OdometerReading: p.Odometer,
					FillupDate:      p.Date,
				}); err != nil {
					return err
				}
			}
		}
		fmt.Fprintf(s.out, "Created %d test fuel fillups\n", len(vehicleIDs)*len(plans))
	}

	n, err := s.mpg.Run(ctx, companyID)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Fuel Fillups with calculated MPG: %d\n", n)
	clearDashboard(ctx, s.out, s.cache, companyID)
	s.logger.Info("Seed finished", zap.Int64("company_id", companyID), zap.Int("vehicles", len(vehicleIDs)))
	return nil
}

// company registers the fixture admin, or logs in when the account exists,
// and returns the company id.
func (s *seeder) company(ctx context.Context, c CompanyFixture) (int64, error) {
	u, _, err := s.accounts.Register(ctx, &auth.RegisterRequest{
		Name:        c.AdminName,
		Email:       c.AdminEmail,
		Password:    c.AdminPassword,
		CompanyName: c.Name,
	})
	if err == nil {
		fmt.Fprintf(s.out, "Created test company with ID: %d\n", u.CompanyID)
		return u.CompanyID, nil
	}
	if !errors.Is(err, auth.ErrEmailTaken) {
		return 0, fmt.Errorf("register fixture company: %w", err)
	}
	u, _, err = s.accounts.Login(ctx, &auth.LoginRequest{Email: c.AdminEmail, Password: c.AdminPassword})
	if err != nil {
		return 0, fmt.Errorf("fixture admin %s exists but cannot log in: %w", c.AdminEmail, err)
	}
	fmt.Fprintf(s.out, "Using existing company: %d\n", u.CompanyID)
	return u.CompanyID, nil
}

func vehicleFromFixture(companyID int64, vf VehicleFixture) *store.Vehicle {
	v := &store.Vehicle{
		CompanyID:    companyID,
		LicensePlate: vf.LicensePlate,
		Make:         vf.Make,
		Model:        vf.Model,
		Status:       "active",
	}
	if vf.Name != "" {
		v.Name = &vf.Name
	}
	if vf.Year != 0 {
		v.Year = &vf.Year
	}
	if vf.VIN != "" {
		v.VIN = &vf.VIN
	}
	if vf.FuelType != "" {
		v.FuelType = &vf.FuelType
	}
	if vf.FuelCapacity != 0 {
		v.FuelCapacity = &vf.FuelCapacity
	}
	return v
}
