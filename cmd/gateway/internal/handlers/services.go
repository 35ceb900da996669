package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// ServiceHandler serves /api/services, the maintenance records of vehicles.
type ServiceHandler struct {
	base
}

func NewServiceHandler(d Deps) *ServiceHandler {
	return &ServiceHandler{base: newBase(d)}
}

func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	services, err := h.store.ListServices(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list services", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": services})
}

func (h *ServiceHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide service details to create."})
}

func (h *ServiceHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.Service, error) {
	sv := &store.Service{
		CompanyID:   companyID,
		ServiceType: deref(v.String("service_type", validation.Required, validation.Max(255))),
		Cost:        deref(v.Float("cost", validation.Required, validation.Min(0))),
		Notes:       v.String("notes"),
		Status:      deref(v.String("status", validation.In("pending", "in_progress", "completed", "cancelled"))),
	}
	if d := v.Date("service_date", validation.Required); d != nil {
		sv.ServiceDate = *d
	}
	vehicleID := v.Int("vehicle_id", validation.Required)
	sv.VehicleID = deref(vehicleID)
	if err := h.checkExists(ctx, v, "vehicle_id", vehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	return sv, nil
}

func (h *ServiceHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	sv, err := h.store.GetService(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load service", err, zap.Int64("service_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, sv)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": sv})
}

func (h *ServiceHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	sv, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create service", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateService(ctx, sv); err != nil {
		h.fail(w, u, "create service", err)
		return
	}
	h.written(ctx, u.CompanyID, "services", "create")
	h.respond(w, r, u, sv.ID, http.StatusCreated, true)
}

func (h *ServiceHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *ServiceHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *ServiceHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	sv, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update service", err, zap.Int64("service_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateService(ctx, u.CompanyID, id, sv); err != nil {
		h.fail(w, u, "update service", err, zap.Int64("service_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "services", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *ServiceHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteService(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete service", err, zap.Int64("service_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "services", "delete")
	deleted(w, "Service")
}
