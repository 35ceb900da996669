package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// VehicleHandler serves /api/vehicles.
type VehicleHandler struct {
	base
	now func() time.Time
}

func NewVehicleHandler(d Deps) *VehicleHandler {
	return &VehicleHandler{base: newBase(d), now: time.Now}
}

// List handles GET /api/vehicles
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	vehicles, err := h.store.ListVehicles(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": vehicles})
}

// CreateForm handles GET /api/vehicles/create
func (h *VehicleHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide vehicle details to create."})
}

func (h *VehicleHandler) bind(ctx context.Context, v *validation.Validator, companyID, exceptID int64) (*store.Vehicle, error) {
	out := &store.Vehicle{
		CompanyID:    companyID,
		Name:         v.String("name", validation.Max(255)),
		Type:         v.String("type", validation.In("Car", "Bus", "Truck", "Van")),
		Year:         v.Int("year", validation.Min(1900), validation.Max(float64(h.now().Year()+1))),
		VIN:          v.String("vin", validation.Max(255)),
		FuelType:     v.String("fuel_type", validation.In("diesel", "gasoline", "petrol", "electric", "hybrid")),
		FuelCapacity: v.Float("fuel_capacity", validation.Min(0)),
		Notes:        v.String("notes"),
		DriverID:     v.Int("driver_id"),
	}
	out.LicensePlate = deref(v.String("license_plate", validation.Required, validation.Max(255)))
	out.Make = deref(v.String("make", validation.Required, validation.Max(255)))
	out.Model = deref(v.String("model", validation.Required, validation.Max(255)))
	out.Status = deref(v.String("status", validation.In("active", "maintenance", "inactive")))

	unique := []struct {
		column string
		value  *string
	}{{"license_plate", &out.LicensePlate}, {"vin", out.VIN}}
	for _, f := range unique {
		if f.value == nil || *f.value == "" {
			continue
		}
		taken, err := h.store.VehicleFieldTaken(ctx, companyID, f.column, *f.value, exceptID)
		if err != nil {
			return nil, err
		}
		if taken {
			v.Taken(f.column)
		}
	}
	if err := h.checkExists(ctx, v, "driver_id", out.DriverID, h.store.DriverExists, companyID); err != nil {
		return nil, err
	}
	return out, nil
}

// Store handles POST /api/vehicles
func (h *VehicleHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	vehicle, err := h.bind(ctx, v, u.CompanyID, 0)
	if err != nil {
		h.fail(w, u, "create vehicle", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateVehicle(ctx, vehicle); err != nil {
		h.fail(w, u, "create vehicle", err)
		return
	}
	h.written(ctx, u.CompanyID, "vehicles", "create")

	loaded, err := h.store.GetVehicle(ctx, u.CompanyID, vehicle.ID)
	if err != nil {
		h.fail(w, u, "create vehicle", err, zap.Int64("vehicle_id", vehicle.ID))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": loaded})
}

// Show handles GET /api/vehicles/{id}
func (h *VehicleHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	vehicle, err := h.store.GetVehicle(r.Context(), u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "load vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": vehicle})
}

// Edit handles GET /api/vehicles/{id}/edit
func (h *VehicleHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	vehicle, err := h.store.GetVehicle(r.Context(), u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "load vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// Update handles PUT/PATCH /api/vehicles/{id}
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	vehicle, err := h.bind(ctx, v, u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "update vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateVehicle(ctx, u.CompanyID, id, vehicle); err != nil {
		h.fail(w, u, "update vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "vehicles", "update")

	loaded, err := h.store.GetVehicle(ctx, u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "update vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": loaded})
}

// Destroy handles DELETE /api/vehicles/{id}
func (h *VehicleHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteVehicle(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete vehicle", err, zap.Int64("vehicle_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "vehicles", "delete")
	deleted(w, "Vehicle")
}

// FuelEconomy handles GET /api/vehicles/{id}/fuel-economy
func (h *VehicleHandler) FuelEconomy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fe, err := h.store.VehicleFuelEconomy(r.Context(), u.CompanyID, id)
	if err != nil {
		h.fail(w, u, "load fuel economy", err, zap.Int64("vehicle_id", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": fe})
}
