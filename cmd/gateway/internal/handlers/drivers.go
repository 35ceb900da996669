package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// DriverHandler serves /api/drivers. A driver spans a users row (name, email)
// and a drivers row.
type DriverHandler struct {
	base
}

func NewDriverHandler(d Deps) *DriverHandler {
	return &DriverHandler{base: newBase(d)}
}

func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	drivers, err := h.store.ListDrivers(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list drivers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": drivers})
}

// CreateForm returns the vehicles a new driver can be assigned to.
func (h *DriverHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	vehicles, err := h.store.VehicleOptions(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "load vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": vehicles})
}

// bind validates the driver form. exceptDriverID and exceptUserID exclude the
// driver being edited from the uniqueness checks.
func (h *DriverHandler) bind(ctx context.Context, v *validation.Validator, companyID, exceptDriverID, exceptUserID int64) (*store.DriverInput, error) {
	in := &store.DriverInput{
		Name:          deref(v.String("name", validation.Required, validation.Max(255))),
		Email:         deref(v.String("email", validation.Required, validation.Email)),
		Phone:         deref(v.String("phone", validation.Required, validation.Max(20))),
		LicenseNumber: deref(v.String("license_number", validation.Required)),
		Status:        deref(v.String("status", validation.Required, validation.In("active", "suspended"))),
		VehicleID:     v.Int("vehicle_id"),
		Address:       v.String("address"),
	}
	if t := v.Date("license_expiry", validation.Required); t != nil {
		in.LicenseExpiry = *t
	}

	if in.Email != "" {
		taken, err := h.store.EmailTaken(ctx, in.Email, exceptUserID)
		if err != nil {
			return nil, err
		}
		if taken {
			v.Taken("email")
		}
	}
	if in.LicenseNumber != "" {
		taken, err := h.store.LicenseNumberTaken(ctx, in.LicenseNumber, exceptDriverID)
		if err != nil {
			return nil, err
		}
		if taken {
			v.Taken("license_number")
		}
	}
	if err := h.checkExists(ctx, v, "vehicle_id", in.VehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	return in, nil
}

// Store creates the driver's user account with the default password, the
// driver row and the optional vehicle assignment.
func (h *DriverHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	in, err := h.bind(ctx, v, u.CompanyID, 0, 0)
	if err != nil {
		h.fail(w, u, "create driver", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	hash, err := auth.HashPassword(auth.DefaultDriverPassword)
	if err != nil {
		h.fail(w, u, "create driver", err)
		return
	}
	driver, err := h.store.CreateDriver(ctx, u.CompanyID, in, hash)
	if err != nil {
		h.fail(w, u, "create driver", err)
		return
	}
	h.written(ctx, u.CompanyID, "drivers", "create")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "driver": driver})
}

// Show returns the driver with user, vehicle and the latest trips.
func (h *DriverHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	driver, err := h.store.GetDriver(r.Context(), u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "load driver", err, zap.Int64("driver_id", id))
		return
	}
	writeJSON(w, http.StatusOK, driver)
}

func (h *DriverHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	driver, err := h.store.GetDriver(ctx, u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "load driver", err, zap.Int64("driver_id", id))
		return
	}
	vehicles, err := h.store.VehicleOptions(ctx, u.CompanyID)
	if err != nil {
		h.fail(w, u, "load vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"driver": driver, "vehicles": vehicles})
}

func (h *DriverHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	userID, err := h.store.DriverUserID(ctx, u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "update driver", err, zap.Int64("driver_id", id))
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	in, err := h.bind(ctx, v, u.CompanyID, id, userID)
	if err != nil {
		h.fail(w, u, "update driver", err, zap.Int64("driver_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	driver, err := h.store.UpdateDriver(ctx, u.CompanyID, id, in)
	if err != nil {
		h.fail(w, u, "update driver", err, zap.Int64("driver_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "drivers", "update")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "driver": driver})
}

// Destroy unassigns the driver's vehicle and soft deletes the driver. Only
// admins may delete, whatever mode the policy middleware runs in.
func (h *DriverHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if u.Role != auth.RoleAdmin {
		sendError(w, http.StatusForbidden, "Only admins can delete drivers.")
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteDriver(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete driver", err, zap.Int64("driver_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "drivers", "delete")
	deleted(w, "Driver")
}
