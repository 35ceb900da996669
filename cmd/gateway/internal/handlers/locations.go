package handlers

import (
	"context"
	"net/http"

	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// LocationService records, lists and streams position reports.
type LocationService interface {
	Record(ctx context.Context, l *store.Location) error
	Latest(ctx context.Context, companyID int64) ([]store.Location, error)
	Stream(w http.ResponseWriter, r *http.Request, companyID int64)
}

// LocationHandler serves /api/vehicle-locations.
type LocationHandler struct {
	base
	svc LocationService
}

func NewLocationHandler(d Deps, svc LocationService) *LocationHandler {
	return &LocationHandler{base: newBase(d), svc: svc}
}

// Store handles POST /api/vehicle-locations. A report without vehicle_id is
// kept against the reporting user.
func (h *LocationHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	userID := u.UserID
	l := &store.Location{
		CompanyID:           u.CompanyID,
		UserID:              &userID,
		VehicleID:           v.Int("vehicle_id"),
		Latitude:            deref(v.Float("latitude", validation.Required, validation.Min(-90), validation.Max(90))),
		Longitude:           deref(v.Float("longitude", validation.Required, validation.Min(-180), validation.Max(180))),
		Accuracy:            v.Float("accuracy", validation.Min(0)),
		Speed:               v.Float("speed", validation.Min(0)),
		LocationDescription: v.String("location_description", validation.Max(255)),
	}
	if err := h.checkExists(ctx, v, "vehicle_id", l.VehicleID, h.store.VehicleExists, u.CompanyID); err != nil {
		h.fail(w, u, "record location", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	if err := h.svc.Record(ctx, l); err != nil {
		h.fail(w, u, "record location", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": l})
}

// Latest handles GET /api/vehicle-locations
func (h *LocationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	locations, err := h.svc.Latest(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list locations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": locations})
}

// Stream handles GET /api/vehicle-locations/ws
func (h *LocationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.svc.Stream(w, r, u.CompanyID)
}
