package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// InspectionHandler serves /api/inspections.
type InspectionHandler struct {
	base
}

func NewInspectionHandler(d Deps) *InspectionHandler {
	return &InspectionHandler{base: newBase(d)}
}

func (h *InspectionHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	inspections, err := h.store.ListInspections(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list inspections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": inspections})
}

func (h *InspectionHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide inspection details to create."})
}

// bind validates the inspection form. status is free text defaulting to
// "passed"; result is the checked outcome.
func (h *InspectionHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.Inspection, error) {
	in := &store.Inspection{
		CompanyID:   companyID,
		Notes:       deref(v.String("notes", validation.Required, validation.Min(1))),
		Result:      deref(v.String("result", validation.In("pass", "fail", "conditional_pass"))),
		NextDueDate: v.Date("next_due_date"),
		Status:      deref(v.String("status", validation.Max(255))),
	}
	if d := v.Date("inspection_date", validation.Required); d != nil {
		in.InspectionDate = *d
	}
	vehicleID := v.Int("vehicle_id", validation.Required)
	driverID := v.Int("driver_id", validation.Required)
	in.VehicleID, in.DriverID = deref(vehicleID), deref(driverID)

	if err := h.checkExists(ctx, v, "vehicle_id", vehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	if err := h.checkExists(ctx, v, "driver_id", driverID, h.store.DriverExists, companyID); err != nil {
		return nil, err
	}
	return in, nil
}

func (h *InspectionHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	in, err := h.store.GetInspection(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load inspection", err, zap.Int64("inspection_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, in)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": in})
}

func (h *InspectionHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	in, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create inspection", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateInspection(ctx, in); err != nil {
		h.fail(w, u, "create inspection", err)
		return
	}
	h.written(ctx, u.CompanyID, "inspections", "create")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": in})
}

func (h *InspectionHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *InspectionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *InspectionHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	in, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update inspection", err, zap.Int64("inspection_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateInspection(ctx, u.CompanyID, id, in); err != nil {
		h.fail(w, u, "update inspection", err, zap.Int64("inspection_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "inspections", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *InspectionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteInspection(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete inspection", err, zap.Int64("inspection_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "inspections", "delete")
	deleted(w, "Inspection")
}
