package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// FillupHandler serves /api/fuel-fillups. Cost per gallon and mpg are
// computed by the store on save.
type FillupHandler struct {
	base
}

func NewFillupHandler(d Deps) *FillupHandler {
	return &FillupHandler{base: newBase(d)}
}

func (h *FillupHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	fillups, err := h.store.ListFillups(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list fuel fill-ups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": fillups})
}

func (h *FillupHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide fuel fill-up details to create."})
}

func (h *FillupHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.FuelFillup, error) {
	f := &store.FuelFillup{
		CompanyID:       companyID,
		Gallons:         deref(v.Float("gallons", validation.Required, validation.Min(0.01))),
		Cost:            deref(v.Float("cost", validation.Required, validation.Min(0))),
		OdometerReading: deref(v.Float("odometer_reading", validation.Required, validation.Min(0))),
	}
	if d := v.Date("fillup_date", validation.Required); d != nil {
		f.FillupDate = *d
	}
	vehicleID := v.Int("vehicle_id", validation.Required)
	driverID := v.Int("driver_id", validation.Required)
	f.VehicleID, f.DriverID = deref(vehicleID), deref(driverID)

	if err := h.checkExists(ctx, v, "vehicle_id", vehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	if err := h.checkExists(ctx, v, "driver_id", driverID, h.store.DriverExists, companyID); err != nil {
		return nil, err
	}
	return f, nil
}

func (h *FillupHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	f, err := h.store.GetFillup(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load fuel fill-up", err, zap.Int64("fillup_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, f)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": f})
}

func (h *FillupHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	f, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create fuel fill-up", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateFillup(ctx, f); err != nil {
		h.fail(w, u, "create fuel fill-up", err)
		return
	}
	h.written(ctx, u.CompanyID, "fuel_fillups", "create")
	h.respond(w, r, u, f.ID, http.StatusCreated, true)
}

func (h *FillupHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *FillupHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *FillupHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	f, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update fuel fill-up", err, zap.Int64("fillup_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateFillup(ctx, u.CompanyID, id, f); err != nil {
		h.fail(w, u, "update fuel fill-up", err, zap.Int64("fillup_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "fuel_fillups", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *FillupHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteFillup(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete fuel fill-up", err, zap.Int64("fillup_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "fuel_fillups", "delete")
	deleted(w, "Fuel fill-up")
}
