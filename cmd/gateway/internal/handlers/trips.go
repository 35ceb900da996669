package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

const (
	tripTimeLayout  = "2006-01-02T15:04"
	tripTimeDisplay = `Y-m-d\TH:i`
)

// TripHandler serves /api/trips.
type TripHandler struct {
	base
}

func NewTripHandler(d Deps) *TripHandler {
	return &TripHandler{base: newBase(d)}
}

func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	trips, err := h.store.ListTrips(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list trips", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": trips})
}

func (h *TripHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide trip details to create."})
}

func (h *TripHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.Trip, error) {
	t := &store.Trip{
		CompanyID:     companyID,
		StartLocation: deref(v.String("start_location", validation.Required, validation.Max(255))),
		EndLocation:   deref(v.String("end_location", validation.Required, validation.Max(255))),
		StartMileage:  deref(v.Float("start_mileage", validation.Required, validation.Min(0))),
		EndMileage:    v.Float("end_mileage", validation.Min(0)),
		Distance:      v.Float("distance", validation.Min(0)),
		EndTime:       v.DateFormat("end_time", tripTimeLayout, tripTimeDisplay),
		Status:        deref(v.String("status", validation.In("planned", "in_progress", "completed", "cancelled"))),
	}
	if st := v.DateFormat("start_time", tripTimeLayout, tripTimeDisplay, validation.Required); st != nil {
		t.StartTime = *st
	}
	if d := v.Date("trip_date", validation.Required); d != nil {
		t.TripDate = *d
	}
	vehicleID := v.Int("vehicle_id", validation.Required)
	driverID := v.Int("driver_id", validation.Required)
	t.VehicleID, t.DriverID = deref(vehicleID), deref(driverID)

	if err := h.checkExists(ctx, v, "vehicle_id", vehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	if err := h.checkExists(ctx, v, "driver_id", driverID, h.store.DriverExists, companyID); err != nil {
		return nil, err
	}
	return t, nil
}

// Store creates a trip. Distance is derived from the mileages when omitted.
func (h *TripHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	trip, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create trip", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateTrip(ctx, trip); err != nil {
		h.fail(w, u, "create trip", err)
		return
	}
	h.written(ctx, u.CompanyID, "trips", "create")
	h.respond(w, r, u, trip.ID, http.StatusCreated, true)
}

// respond writes the trip with vehicle, driver and driver.user loaded. The
// edit form gets the bare object.
func (h *TripHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	trip, err := h.store.GetTrip(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load trip", err, zap.Int64("trip_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, trip)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": trip})
}

func (h *TripHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *TripHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *TripHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	trip, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update trip", err, zap.Int64("trip_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateTrip(ctx, u.CompanyID, id, trip); err != nil {
		h.fail(w, u, "update trip", err, zap.Int64("trip_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "trips", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *TripHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteTrip(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete trip", err, zap.Int64("trip_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "trips", "delete")
	deleted(w, "Trip")
}
