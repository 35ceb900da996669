package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/cmd/gateway/internal/handlers"
	"github.com/fleetworks/fleet-api/cmd/gateway/internal/middleware"
	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/config"
	"github.com/fleetworks/fleet-api/internal/policy"
	"github.com/fleetworks/fleet-api/internal/store"
)

// tokens maps bearer tokens to users.
type tokens map[string]*auth.UserContext

func (t tokens) Authenticate(_ context.Context, token string) (*auth.UserContext, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, int64) error { return nil }

func newTestServer(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	engine, err := policy.NewOPAEngine(policy.FromSettings(config.PolicyConfig{Mode: "enforce"}), logger)
	require.NoError(t, err)

	deps := handlers.Deps{
		Store:     store.New(sqlx.NewDb(raw, "postgres"), logger),
		Dashboard: noopInvalidator{},
		Logger:    logger,
	}
	identity := func(next http.Handler) http.Handler { return next }
	users := tokens{
		"admin":  {UserID: 1, CompanyID: 1, Role: auth.RoleAdmin, TokenType: auth.TokenTypeJWT},
		"driver": {UserID: 2, CompanyID: 1, Role: auth.RoleDriver, TokenType: auth.TokenTypeJWT},
	}
	c := chain{
		tracing:     identity,
		auth:        middleware.NewAuthMiddleware(users, false, logger).Middleware,
		rateLimit:   identity,
		validate:    middleware.NewValidationMiddleware(logger).Middleware,
		idempotency: identity,
		policy:      middleware.NewPolicyMiddleware(engine, logger),
	}
	h := routeHandlers{
		auth:        handlers.NewAuthHandler(nil, 1, 5, logger),
		profile:     handlers.NewProfileHandler(deps, nil),
		dashboard:   handlers.NewDashboardHandler(nil, logger),
		locations:   handlers.NewLocationHandler(deps, nil),
		vehicles:    handlers.NewVehicleHandler(deps),
		drivers:     handlers.NewDriverHandler(deps),
		trips:       handlers.NewTripHandler(deps),
		fillups:     handlers.NewFillupHandler(deps),
		services:    handlers.NewServiceHandler(deps),
		inspections: handlers.NewInspectionHandler(deps),
		issues:      handlers.NewIssueHandler(deps),
		expenses:    handlers.NewExpenseHandler(deps),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, c, h)
	return middleware.CORS([]string{"*"}, mux), mock
}

func serve(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUp(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/up", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}

func TestPreflightAnsweredBeforeAuth(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/vehicles", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResourceRoutesRequireAuth(t *testing.T) {
	h, _ := newTestServer(t)
	for _, target := range []string{"/api/vehicles", "/api/fuel-fillups/3", "/api/dashboard", "/api/vehicle-locations"} {
		rec := serve(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestDriverCannotDeleteDrivers(t *testing.T) {
	h, mock := newTestServer(t)
	rec := serve(h, http.MethodDelete, "/api/drivers/4", "driver")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Only admins can delete drivers.")
	require.NoError(t, mock.ExpectationsWereMet(), "denied requests never reach the store")
}

func TestDriverIsReadOnlyOnVehicles(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/api/vehicles/create", "driver")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Drivers have read-only access to this resource.")
}

func TestAdminListsVehicles(t *testing.T) {
	h, mock := newTestServer(t)
	cols := []string{"id", "company_id", "driver_id", "name", "license_plate", "type", "make",
		"model", "year", "vin", "fuel_type", "fuel_capacity", "status", "notes", "created_at",
		"updated_at", "deleted_at"}
	mock.ExpectQuery("FROM vehicles").WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(cols))

	rec := serve(h, http.MethodGet, "/api/vehicles", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/api/unknown", "admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
