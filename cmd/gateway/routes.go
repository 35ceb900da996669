package main

import (
	"net/http"

	"github.com/fleetworks/fleet-api/cmd/gateway/internal/handlers"
	"github.com/fleetworks/fleet-api/cmd/gateway/internal/middleware"
	"github.com/fleetworks/fleet-api/internal/policy"
)

type mw = func(http.Handler) http.Handler

// chain holds the middleware every API route is built from. Order, outermost
// first: tracing, auth, rate limit, policy, body validation, idempotency.
type chain struct {
	tracing     mw
	auth        mw
	rateLimit   mw
	validate    mw
	idempotency mw
	policy      *middleware.PolicyMiddleware
}

// public routes are traced and body-checked only.
func (c chain) public(h http.HandlerFunc) http.Handler {
	return c.tracing(c.validate(h))
}

// authed routes need a user but no policy decision.
func (c chain) authed(h http.HandlerFunc) http.Handler {
	return c.tracing(c.auth(c.rateLimit(c.validate(c.idempotency(h)))))
}

// guarded routes also ask the policy engine.
func (c chain) guarded(resource, action string, h http.HandlerFunc) http.Handler {
	return c.tracing(c.auth(c.rateLimit(c.policy.Require(resource, action)(c.validate(c.idempotency(h))))))
}

// resourceHandler is the CRUD surface shared by the fleet resources.
type resourceHandler interface {
	List(http.ResponseWriter, *http.Request)
	CreateForm(http.ResponseWriter, *http.Request)
	Store(http.ResponseWriter, *http.Request)
	Show(http.ResponseWriter, *http.Request)
	Edit(http.ResponseWriter, *http.Request)
	Update(http.ResponseWriter, *http.Request)
	Destroy(http.ResponseWriter, *http.Request)
}

func (c chain) resource(mux *http.ServeMux, path, policyResource string, h resourceHandler) {
	base := "/api/" + path
	mux.Handle("GET "+base, c.guarded(policyResource, policy.ActionList, h.List))
	mux.Handle("GET "+base+"/create", c.guarded(policyResource, policy.ActionCreate, h.CreateForm))
	mux.Handle("POST "+base, c.guarded(policyResource, policy.ActionCreate, h.Store))
	mux.Handle("GET "+base+"/{id}", c.guarded(policyResource, policy.ActionView, h.Show))
	mux.Handle("GET "+base+"/{id}/edit", c.guarded(policyResource, policy.ActionUpdate, h.Edit))
	mux.Handle("PUT "+base+"/{id}", c.guarded(policyResource, policy.ActionUpdate, h.Update))
	mux.Handle("PATCH "+base+"/{id}", c.guarded(policyResource, policy.ActionUpdate, h.Update))
	mux.Handle("DELETE "+base+"/{id}", c.guarded(policyResource, policy.ActionDelete, h.Destroy))
}

type routeHandlers struct {
	auth        *handlers.AuthHandler
	profile     *handlers.ProfileHandler
	dashboard   *handlers.DashboardHandler
	locations   *handlers.LocationHandler
	vehicles    *handlers.VehicleHandler
	drivers     *handlers.DriverHandler
	trips       *handlers.TripHandler
	fillups     *handlers.FillupHandler
	services    *handlers.ServiceHandler
	inspections *handlers.InspectionHandler
	issues      *handlers.IssueHandler
	expenses    *handlers.ExpenseHandler
}

func registerRoutes(mux *http.ServeMux, c chain, h routeHandlers) {
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"up"}`))
	})

	// Accounts
	mux.Handle("POST /api/register", c.public(h.auth.Register))
	mux.Handle("POST /api/login", c.public(h.auth.Login))
	mux.Handle("POST /api/logout", c.authed(h.auth.Logout))
	mux.Handle("GET /api/user", c.authed(h.auth.Me))

	mux.Handle("GET /api/profile", c.authed(h.profile.Show))
	mux.Handle("PATCH /api/profile", c.authed(h.profile.Update))
	mux.Handle("DELETE /api/profile", c.authed(h.profile.Destroy))
	mux.Handle("PUT /api/profile/password", c.authed(h.profile.ChangePassword))
	mux.Handle("POST /api/email/verification-notification", c.authed(h.profile.SendVerification))
	mux.Handle("GET /api/email/verify/{id}/{hash}", c.public(h.profile.VerifyEmail))

	mux.Handle("GET /api/company-settings", c.guarded("company_settings", policy.ActionView, h.profile.CompanySettings))
	mux.Handle("PUT /api/company-settings", c.guarded("company_settings", policy.ActionUpdate, h.profile.UpdateCompanySettings))

	mux.Handle("GET /api/team-members", c.guarded("team_members", policy.ActionList, h.profile.Team))
	mux.Handle("POST /api/team-members", c.guarded("team_members", policy.ActionCreate, h.profile.AddTeamMember))
	mux.Handle("DELETE /api/team-members/{userId}", c.guarded("team_members", policy.ActionDelete, h.profile.RemoveTeamMember))

	// Dashboard
	mux.Handle("GET /api/dashboard", c.authed(h.dashboard.Stats))
	mux.Handle("GET /api/dashboard/chart-data", c.authed(h.dashboard.ChartData))

	// Fleet resources
	c.resource(mux, "vehicles", "vehicles", h.vehicles)
	mux.Handle("GET /api/vehicles/{id}/fuel-economy", c.guarded("vehicles", policy.ActionView, h.vehicles.FuelEconomy))
	c.resource(mux, "drivers", "drivers", h.drivers)
	c.resource(mux, "trips", "trips", h.trips)
	c.resource(mux, "fuel-fillups", "fuel_fillups", h.fillups)
	c.resource(mux, "services", "services", h.services)
	c.resource(mux, "inspections", "inspections", h.inspections)
	c.resource(mux, "issues", "issues", h.issues)
	c.resource(mux, "expenses", "expenses", h.expenses)

	// Live locations
	mux.Handle("POST /api/vehicle-locations", c.guarded("locations", policy.ActionCreate, h.locations.Store))
	mux.Handle("GET /api/vehicle-locations", c.guarded("locations", policy.ActionList, h.locations.Latest))
	mux.Handle("GET /api/vehicle-locations/ws", c.guarded("locations", policy.ActionList, h.locations.Stream))
}
