package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
)

func TestDefaultFixture(t *testing.T) {
	fx, err := loadFixture("")
	require.NoError(t, err)

	assert.Equal(t, "Test Fleet Company", fx.Company.Name)
	assert.Len(t, fx.Vehicles, 3)
	assert.Len(t, fx.Drivers, 2)
	assert.Equal(t, 5, fx.Fillups.PerVehicle)
	assert.Equal(t, 1200.0, fx.Fillups.OdometerStep)
	assert.Equal(t, 20, fx.Fillups.IntervalDays)
}

func TestParseFixtureRejects(t *testing.T) {
	cases := map[string]string{
		"no company":     "vehicles: []",
		"no gallons":     "company: {name: A, admin_email: a@b.c, admin_password: x}\nfillups: {per_vehicle: 2}",
		"zero gallons":   "company: {name: A, admin_email: a@b.c, admin_password: x}\nfillups: {per_vehicle: 1, gallons: [0]}",
		"negative count": "company: {name: A, admin_email: a@b.c, admin_password: x}\nfillups: {per_vehicle: -1}",
		"not yaml":       "company: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFixture([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestPlanFillups(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	plans := planFillups(FillupFixture{
		PerVehicle:    5,
		StartOdometer: 50000,
		OdometerStep:  1200,
		IntervalDays:  20,
		MonthsBack:    3,
		CostPerGallon: 12.5,
		Gallons:       []float64{48, 52},
	}, now)

	require.Len(t, plans, 5)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), plans[0].Date)
	assert.Equal(t, time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC), plans[1].Date)
	for i, p := range plans {
		assert.Equal(t, 50000+float64(i)*1200, p.Odometer)
		assert.True(t, p.Date.Before(now))
	}
	assert.Equal(t, 48.0, plans[2].Gallons, "gallons cycle")
	assert.Equal(t, 650.0, plans[1].Cost)
}

type fakeAccounts struct {
	taken     bool
	companyID int64
	logins    int
}

func (f *fakeAccounts) Register(_ context.Context, req *auth.RegisterRequest) (*auth.User, *auth.TokenPair, error) {
	if f.taken {
		return nil, nil, auth.ErrEmailTaken
	}
	return &auth.User{ID: 1, CompanyID: f.companyID, Email: req.Email}, &auth.TokenPair{}, nil
}

func (f *fakeAccounts) Login(_ context.Context, req *auth.LoginRequest) (*auth.User, *auth.TokenPair, error) {
	f.logins++
	return &auth.User{ID: 1, CompanyID: f.companyID, Email: req.Email}, &auth.TokenPair{}, nil
}

type fakeSeedStore struct {
	nextID     int64
	takenPlate string
	vehicles   []*store.Vehicle
	drivers    []*store.DriverInput
	fillups    []*store.FuelFillup
}

func (f *fakeSeedStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeSeedStore) CreateVehicle(_ context.Context, v *store.Vehicle) error {
	if v.LicensePlate == f.takenPlate {
		return &pq.Error{Code: "23505"}
	}
	v.ID = f.id()
	f.vehicles = append(f.vehicles, v)
	return nil
}

func (f *fakeSeedStore) CreateDriver(_ context.Context, companyID int64, in *store.DriverInput, hash string) (*store.Driver, error) {
	if hash == "" {
		return nil, errors.New("missing password hash")
	}
	f.drivers = append(f.drivers, in)
	return &store.Driver{ID: f.id(), CompanyID: companyID}, nil
}

func (f *fakeSeedStore) CreateFillup(_ context.Context, fu *store.FuelFillup) error {
	fu.ID = f.id()
	f.fillups = append(f.fillups, fu)
	return nil
}

type fakeRecomputer struct{ company int64 }

func (f *fakeRecomputer) Run(_ context.Context, companyID int64) (int, error) {
	f.company = companyID
	return 12, nil
}

type fakeCache struct {
	companies []int64
	all       int
	err       error
}

func (f *fakeCache) Invalidate(_ context.Context, companyID int64) error {
	f.companies = append(f.companies, companyID)
	return f.err
}

func (f *fakeCache) InvalidateAll(context.Context) error {
	f.all++
	return f.err
}

func newSeeder(accounts *fakeAccounts, st *fakeSeedStore, rc *fakeRecomputer, cache *fakeCache, out *bytes.Buffer) *seeder {
	return &seeder{
		accounts: accounts,
		store:    st,
		mpg:      rc,
		cache:    cache,
		logger:   zap.NewNop(),
		out:      out,
		now:      func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) },
	}
}

func TestSeederCreatesFleet(t *testing.T) {
	fx, err := loadFixture("")
	require.NoError(t, err)

	st := &fakeSeedStore{}
	rc := &fakeRecomputer{}
	cache := &fakeCache{}
	var out bytes.Buffer
	require.NoError(t, newSeeder(&fakeAccounts{companyID: 7}, st, rc, cache, &out).run(context.Background(), fx))

	assert.Len(t, st.vehicles, 3)
	assert.Len(t, st.drivers, 2)
	assert.Len(t, st.fillups, 15)
	assert.Equal(t, int64(7), rc.company)
	assert.Equal(t, []int64{7}, cache.companies, "dashboard views of the seeded company are dropped")
	for _, v := range st.vehicles {
		assert.Equal(t, int64(7), v.CompanyID)
	}

	// Vehicles alternate between the two drivers.
	byVehicle := map[int64]int64{}
	for _, f := range st.fillups {
		byVehicle[f.VehicleID] = f.DriverID
	}
	assert.Equal(t, byVehicle[st.vehicles[0].ID], byVehicle[st.vehicles[2].ID])
	assert.NotEqual(t, byVehicle[st.vehicles[0].ID], byVehicle[st.vehicles[1].ID])

	assert.Contains(t, out.String(), "Created test company with ID: 7")
	assert.Contains(t, out.String(), "Fuel Fillups with calculated MPG: 12")
}

func TestSeederReusesCompanyAndSkipsExisting(t *testing.T) {
	fx, err := loadFixture("")
	require.NoError(t, err)

	accounts := &fakeAccounts{taken: true, companyID: 3}
	st := &fakeSeedStore{takenPlate: fx.Vehicles[0].LicensePlate}
	var out bytes.Buffer
	require.NoError(t, newSeeder(accounts, st, &fakeRecomputer{}, &fakeCache{}, &out).run(context.Background(), fx))

	assert.Equal(t, 1, accounts.logins)
	assert.Len(t, st.vehicles, 2)
	assert.Len(t, st.fillups, 10)
	assert.Contains(t, out.String(), "Using existing company: 3")
	assert.Contains(t, out.String(), "already exists, skipping")
}

func TestComputeMPGOutput(t *testing.T) {
	var out bytes.Buffer
	rc := &fakeRecomputer{}
	cache := &fakeCache{}
	require.NoError(t, runComputeMPG(context.Background(), &out, rc, cache, 4))
	assert.Equal(t, int64(4), rc.company)
	assert.Equal(t, "Computing MPG for fuel fillups...\nDone. MPG updated for 12 records.\n", out.String())
	assert.Equal(t, []int64{4}, cache.companies)
	assert.Zero(t, cache.all)
}

func TestComputeMPGClearsDashboardCache(t *testing.T) {
	t.Run("all companies", func(t *testing.T) {
		var out bytes.Buffer
		cache := &fakeCache{}
		require.NoError(t, runComputeMPG(context.Background(), &out, &fakeRecomputer{}, cache, 0))
		assert.Equal(t, 1, cache.all)
		assert.Empty(t, cache.companies)
	})

	t.Run("cache failure only warns", func(t *testing.T) {
		var out bytes.Buffer
		cache := &fakeCache{err: errors.New("connection refused")}
		require.NoError(t, runComputeMPG(context.Background(), &out, &fakeRecomputer{}, cache, 4))
		assert.Contains(t, out.String(), "Warning: dashboard cache not cleared: connection refused")
	})
}

func TestCollectStats(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	q := sqlx.NewDb(raw, "postgres")

	cols := []string{"vehicles", "drivers", "trips", "expenses", "fillups", "fillups_with_mpg", "average_mpg"}
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(cols).AddRow(3, 2, 0, 0, 15, 12, 25.456))

	st, err := collectStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(15), st.Fillups)

	var out bytes.Buffer
	st.print(&out)
	assert.Contains(t, out.String(), "Vehicles: 3\n")
	assert.Contains(t, out.String(), "Fuel Fillups with MPG: 12\n")
	assert.Contains(t, out.String(), "Average MPG: 25.46\n")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsWithoutMPG(t *testing.T) {
	var out bytes.Buffer
	(&fleetStats{}).print(&out)
	assert.Contains(t, out.String(), "Average MPG: N/A")
}
