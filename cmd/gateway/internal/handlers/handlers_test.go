package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
)

var vehicleCols = []string{"id", "company_id", "driver_id", "name", "license_plate", "type", "make",
	"model", "year", "vin", "fuel_type", "fuel_capacity", "status", "notes", "created_at",
	"updated_at", "deleted_at"}

type fakeInvalidator struct {
	mu        sync.Mutex
	companies []int64
}

func (f *fakeInvalidator) Invalidate(_ context.Context, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies = append(f.companies, companyID)
	return nil
}

func newTestDeps(t *testing.T) (Deps, sqlmock.Sqlmock, *fakeInvalidator) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	logger := zaptest.NewLogger(t)
	inv := &fakeInvalidator{}
	return Deps{
		Store:     store.New(sqlx.NewDb(mockDB, "postgres"), logger),
		Dashboard: inv,
		Logger:    logger,
	}, mock, inv
}

var testUser = &auth.UserContext{UserID: 5, CompanyID: 1, Role: auth.RoleAdmin, TokenType: auth.TokenTypeJWT}

// call serves one request through a mux so path values resolve.
func call(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string, u *auth.UserContext) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req = req.WithContext(auth.WithUser(req.Context(), u))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func vehicleRow(id, companyID int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(vehicleCols).AddRow(id, companyID, nil, nil, "ABC-1", "Truck", "Volvo",
		"FH16", 2021, nil, "diesel", 400.0, "active", nil, now, now, nil)
}

func TestVehicleStoreValidation(t *testing.T) {
	d, mock, inv := newTestDeps(t)
	h := NewVehicleHandler(d)

	rec := call(t, "POST /api/vehicles", h.Store, http.MethodPost, "/api/vehicles",
		`{"type":"Spaceship","year":1800,"fuel_capacity":-1}`, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["message"])
	errs := body["errors"].(map[string]interface{})
	for _, field := range []string{"license_plate", "make", "model", "type", "year", "fuel_capacity"} {
		assert.Contains(t, errs, field)
	}
	assert.Empty(t, inv.companies)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVehicleStoreDuplicatePlate(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	h := NewVehicleHandler(d)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM vehicles").
		WithArgs(int64(1), "ABC-1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rec := call(t, "POST /api/vehicles", h.Store, http.MethodPost, "/api/vehicles",
		`{"license_plate":"ABC-1","make":"Volvo","model":"FH16"}`, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]interface{})
	assert.Equal(t, []interface{}{"The license plate has already been taken."}, errs["license_plate"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVehicleDestroy(t *testing.T) {
	t.Run("deletes and invalidates the dashboard", func(t *testing.T) {
		d, mock, inv := newTestDeps(t)
		h := NewVehicleHandler(d)
		mock.ExpectQuery("SELECT (.+) FROM vehicles WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(vehicleRow(7, 1))
		mock.ExpectExec("UPDATE vehicles SET deleted_at = NOW\\(\\)").
			WithArgs(int64(7), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec := call(t, "DELETE /api/vehicles/{id}", h.Destroy, http.MethodDelete, "/api/vehicles/7", "", testUser)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Vehicle deleted successfully.", body["message"])
		assert.Equal(t, []int64{1}, inv.companies)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other company is forbidden", func(t *testing.T) {
		d, mock, inv := newTestDeps(t)
		h := NewVehicleHandler(d)
		mock.ExpectQuery("SELECT (.+) FROM vehicles WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(vehicleRow(7, 2))

		rec := call(t, "DELETE /api/vehicles/{id}", h.Destroy, http.MethodDelete, "/api/vehicles/7", "", testUser)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "This action is unauthorized.", decodeBody(t, rec)["message"])
		assert.Empty(t, inv.companies)
	})

	t.Run("missing row", func(t *testing.T) {
		d, mock, _ := newTestDeps(t)
		h := NewVehicleHandler(d)
		mock.ExpectQuery("SELECT (.+) FROM vehicles WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(vehicleCols))

		rec := call(t, "DELETE /api/vehicles/{id}", h.Destroy, http.MethodDelete, "/api/vehicles/7", "", testUser)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non numeric id", func(t *testing.T) {
		d, _, _ := newTestDeps(t)
		h := NewVehicleHandler(d)
		rec := call(t, "DELETE /api/vehicles/{id}", h.Destroy, http.MethodDelete, "/api/vehicles/abc", "", testUser)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestVehicleListDatabaseError(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	h := NewVehicleHandler(d)
	mock.ExpectQuery("SELECT (.+) FROM vehicles").WillReturnError(errors.New("connection reset"))

	rec := call(t, "GET /api/vehicles", h.List, http.MethodGet, "/api/vehicles", "", testUser)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to list vehicles: Database error occurred", decodeBody(t, rec)["message"])
}

func TestUnauthenticated(t *testing.T) {
	d, _, _ := newTestDeps(t)
	h := NewVehicleHandler(d)
	rec := call(t, "GET /api/vehicles", h.List, http.MethodGet, "/api/vehicles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated.", decodeBody(t, rec)["message"])
}

func TestMalformedBody(t *testing.T) {
	d, _, _ := newTestDeps(t)
	h := NewTripHandler(d)
	rec := call(t, "POST /api/trips", h.Store, http.MethodPost, "/api/trips", `[1,2`, testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, rec)["message"])
}

func TestExpenseStoreUnknownVehicle(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	h := NewExpenseHandler(d)
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM vehicles").
		WithArgs(int64(99), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := call(t, "POST /api/expenses", h.Store, http.MethodPost, "/api/expenses",
		`{"vehicle_id":99,"category":"snacks","amount":-3}`, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]interface{})
	assert.Equal(t, []interface{}{"The selected vehicle id is invalid."}, errs["vehicle_id"])
	assert.Contains(t, errs, "category")
	assert.Contains(t, errs, "amount")
	assert.Contains(t, errs, "expense_date")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationStoreBounds(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	h := NewLocationHandler(d, nil)

	rec := call(t, "POST /api/vehicle-locations", h.Store, http.MethodPost, "/api/vehicle-locations",
		`{"latitude":91,"longitude":-181}`, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]interface{})
	assert.Contains(t, errs, "latitude")
	assert.Contains(t, errs, "longitude")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFormMessages(t *testing.T) {
	d, _, _ := newTestDeps(t)
	cases := []struct {
		path string
		h    http.HandlerFunc
		want string
	}{
		{"/api/vehicles/create", NewVehicleHandler(d).CreateForm, "Provide vehicle details to create."},
		{"/api/issues/create", NewIssueHandler(d).CreateForm, "Provide issue details to create."},
		{"/api/expenses/create", NewExpenseHandler(d).CreateForm, "Provide expense details to create."},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := call(t, "GET "+tc.path, tc.h, http.MethodGet, tc.path, "", testUser)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.want, decodeBody(t, rec)["message"])
		})
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, "10.0.0.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	assert.Equal(t, "2.2.2.2", getClientIP(req))
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(0.001, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per address")

	now = now.Add(10 * time.Minute)
	assert.True(t, l.allow("c"))
	assert.NotContains(t, l.buckets, "a", "idle buckets are swept")
}

func TestFailLogsAtStatus(t *testing.T) {
	d, _, _ := newTestDeps(t)
	d.Logger = zap.NewNop()
	b := newBase(d)

	rec := httptest.NewRecorder()
	b.fail(rec, testUser, "load trip", context.Canceled)
	assert.Equal(t, http.StatusOK, rec.Code, "canceled requests write nothing")
	assert.Zero(t, rec.Body.Len())
}

func TestDriverDestroyAdminOnly(t *testing.T) {
	for _, role := range []string{auth.RoleManager, auth.RoleDriver} {
		t.Run(role, func(t *testing.T) {
			d, mock, inv := newTestDeps(t)
			h := NewDriverHandler(d)
			u := &auth.UserContext{UserID: 8, CompanyID: 1, Role: role, TokenType: auth.TokenTypeJWT}

			rec := call(t, "DELETE /api/drivers/{id}", h.Destroy, http.MethodDelete, "/api/drivers/4", "", u)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "Only admins can delete drivers.", decodeBody(t, rec)["message"])
			assert.Empty(t, inv.companies)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStoreValidationPerResource(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		h      func(Deps) http.HandlerFunc
		body   string
		fields []string
	}{
		{"trips", "/api/trips", func(d Deps) http.HandlerFunc { return NewTripHandler(d).Store },
			`{"start_time":"2025-03-10 08:00","status":"parked"}`,
			[]string{"start_location", "end_location", "start_mileage", "start_time", "trip_date", "vehicle_id", "driver_id", "status"}},
		{"fuel fillups", "/api/fuel-fillups", func(d Deps) http.HandlerFunc { return NewFillupHandler(d).Store },
			`{"gallons":0,"cost":-1}`,
			[]string{"gallons", "cost", "odometer_reading", "fillup_date", "vehicle_id", "driver_id"}},
		{"services", "/api/services", func(d Deps) http.HandlerFunc { return NewServiceHandler(d).Store },
			`{"status":"done"}`,
			[]string{"service_type", "cost", "service_date", "vehicle_id", "status"}},
		{"inspections", "/api/inspections", func(d Deps) http.HandlerFunc { return NewInspectionHandler(d).Store },
			`{"result":"maybe"}`,
			[]string{"notes", "inspection_date", "vehicle_id", "driver_id", "result"}},
		{"issues", "/api/issues", func(d Deps) http.HandlerFunc { return NewIssueHandler(d).Store },
			`{"priority":"urgent","status":"new"}`,
			[]string{"title", "vehicle_id", "priority", "status"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, mock, inv := newTestDeps(t)
			rec := call(t, "POST "+tc.path, tc.h(d), http.MethodPost, tc.path, tc.body, testUser)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			errs := decodeBody(t, rec)["errors"].(map[string]interface{})
			for _, field := range tc.fields {
				assert.Contains(t, errs, field)
			}
			assert.Empty(t, inv.companies)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTripStartTimeFormat(t *testing.T) {
	d, mock, _ := newTestDeps(t)
	h := NewTripHandler(d)
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM vehicles").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM drivers").
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rec := call(t, "POST /api/trips", h.Store, http.MethodPost, "/api/trips",
		`{"vehicle_id":7,"driver_id":3,"start_location":"Depot","end_location":"Port","start_mileage":100,
		"start_time":"2025-03-10T08:00:00Z","trip_date":"2025-03-10"}`, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]interface{})
	assert.Equal(t, []interface{}{`The start time field must match the format Y-m-d\TH:i.`}, errs["start_time"])
	assert.Len(t, errs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDefaultsStatus(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	exists := func(mock sqlmock.Sqlmock, table string, id int64) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM "+table).
			WithArgs(id, int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	t.Run("trip is planned", func(t *testing.T) {
		d, mock, inv := newTestDeps(t)
		exists(mock, "vehicles", 7)
		exists(mock, "drivers", 3)
		cols := []string{"id", "company_id", "vehicle_id", "driver_id", "start_location", "end_location",
			"start_time", "end_time", "start_mileage", "end_mileage", "distance", "trip_date", "status",
			"created_at", "updated_at", "deleted_at"}
		row := func() *sqlmock.Rows {
			return sqlmock.NewRows(cols).AddRow(12, 1, 7, 3, "Depot", "Port", now, nil, 100.0, nil, nil,
				now, "planned", now, now, nil)
		}
		mock.ExpectQuery("INSERT INTO trips").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), "planned").
			WillReturnRows(row())
		mock.ExpectQuery("SELECT (.+) FROM trips WHERE id = \\$1").WithArgs(int64(12)).WillReturnRows(row())
		mock.ExpectQuery("FROM vehicles WHERE id IN").WillReturnRows(sqlmock.NewRows(vehicleCols))
		mock.ExpectQuery("FROM drivers WHERE id IN").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		rec := call(t, "POST /api/trips", NewTripHandler(d).Store, http.MethodPost, "/api/trips",
			`{"vehicle_id":7,"driver_id":3,"start_location":"Depot","end_location":"Port","start_mileage":100,
			"start_time":"2025-03-10T08:00","trip_date":"2025-03-10"}`, testUser)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "planned", decodeBody(t, rec)["data"].(map[string]interface{})["status"])
		assert.Equal(t, []int64{1}, inv.companies)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("service is completed", func(t *testing.T) {
		d, mock, inv := newTestDeps(t)
		exists(mock, "vehicles", 7)
		cols := []string{"id", "company_id", "vehicle_id", "service_type", "service_date", "cost", "description",
			"notes", "status", "created_at", "updated_at", "deleted_at"}
		row := func() *sqlmock.Rows {
			return sqlmock.NewRows(cols).AddRow(5, 1, 7, "Oil change", now, 80.0, "", nil, "completed", now, now, nil)
		}
		mock.ExpectQuery("INSERT INTO services").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), "completed").
			WillReturnRows(row())
		mock.ExpectQuery("SELECT (.+) FROM services WHERE id = \\$1").WithArgs(int64(5)).WillReturnRows(row())
		mock.ExpectQuery("FROM vehicles WHERE id IN").WillReturnRows(sqlmock.NewRows(vehicleCols))

		rec := call(t, "POST /api/services", NewServiceHandler(d).Store, http.MethodPost, "/api/services",
			`{"vehicle_id":7,"service_type":"Oil change","service_date":"2025-03-10","cost":80}`, testUser)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "completed", decodeBody(t, rec)["data"].(map[string]interface{})["status"])
		assert.Equal(t, []int64{1}, inv.companies)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("issue is open", func(t *testing.T) {
		d, mock, inv := newTestDeps(t)
		exists(mock, "vehicles", 7)
		cols := []string{"id", "company_id", "vehicle_id", "driver_id", "title", "description", "priority",
			"status", "reported_date", "created_at", "updated_at", "deleted_at"}
		row := func() *sqlmock.Rows {
			return sqlmock.NewRows(cols).AddRow(9, 1, 7, nil, "Brake noise", nil, "medium", "open", now, now, now, nil)
		}
		mock.ExpectQuery("INSERT INTO issues").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				"medium", "open", sqlmock.AnyArg()).
			WillReturnRows(row())
		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\$1").WithArgs(int64(9)).WillReturnRows(row())
		mock.ExpectQuery("FROM vehicles WHERE id IN").WillReturnRows(sqlmock.NewRows(vehicleCols))

		rec := call(t, "POST /api/issues", NewIssueHandler(d).Store, http.MethodPost, "/api/issues",
			`{"vehicle_id":7,"title":"Brake noise"}`, testUser)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		data := decodeBody(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "open", data["status"])
		assert.Equal(t, "medium", data["priority"])
		assert.Equal(t, []int64{1}, inv.companies)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
