package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// IssueHandler serves /api/issues, the problems reported against vehicles.
type IssueHandler struct {
	base
}

func NewIssueHandler(d Deps) *IssueHandler {
	return &IssueHandler{base: newBase(d)}
}

func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	issues, err := h.store.ListIssues(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list issues", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": issues})
}

func (h *IssueHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide issue details to create."})
}

func (h *IssueHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.Issue, error) {
	is := &store.Issue{
		CompanyID:   companyID,
		DriverID:    v.Int("driver_id"),
		Title:       deref(v.String("title", validation.Required, validation.Max(255))),
		Description: v.String("description"),
		Priority:    deref(v.String("priority", validation.In("low", "medium", "high", "critical"))),
		Status:      deref(v.String("status", validation.In("open", "in_progress", "resolved", "closed"))),
	}
	if d := v.Date("reported_date"); d != nil {
		is.ReportedDate = *d
	}
	vehicleID := v.Int("vehicle_id", validation.Required)
	is.VehicleID = deref(vehicleID)

	if err := h.checkExists(ctx, v, "vehicle_id", vehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	if err := h.checkExists(ctx, v, "driver_id", is.DriverID, h.store.DriverExists, companyID); err != nil {
		return nil, err
	}
	return is, nil
}

func (h *IssueHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	is, err := h.store.GetIssue(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load issue", err, zap.Int64("issue_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, is)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": is})
}

func (h *IssueHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	is, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create issue", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateIssue(ctx, is); err != nil {
		h.fail(w, u, "create issue", err)
		return
	}
	h.written(ctx, u.CompanyID, "issues", "create")
	h.respond(w, r, u, is.ID, http.StatusCreated, true)
}

func (h *IssueHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *IssueHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *IssueHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	is, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update issue", err, zap.Int64("issue_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateIssue(ctx, u.CompanyID, id, is); err != nil {
		h.fail(w, u, "update issue", err, zap.Int64("issue_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "issues", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *IssueHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteIssue(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete issue", err, zap.Int64("issue_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "issues", "delete")
	deleted(w, "Issue")
}
