package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/db"
	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// Invalidator drops a company's cached dashboard views.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// Deps are shared by the resource handlers.
type Deps struct {
	Store     *store.Store
	Dashboard Invalidator
	Logger    *zap.Logger
	// Debug exposes raw database messages in 500 responses.
	Debug bool
}

type base struct {
	store  *store.Store
	dash   Invalidator
	logger *zap.Logger
	debug  bool
}

func newBase(d Deps) base {
	return base{store: d.Store, dash: d.Dashboard, logger: d.Logger, debug: d.Debug}
}

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Message: message})
}

func sendValidation(w http.ResponseWriter, errs validation.Errors) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Message: "Validation failed", Errors: errs})
}

func deleted(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": what + " deleted successfully.",
	})
}

// currentUser returns the principal set by the auth middleware, answering 401
// when there is none.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "Unauthenticated.")
		return nil, false
	}
	return u, true
}

// pathID parses a positive integer path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		sendError(w, http.StatusNotFound, "Record not found")
		return 0, false
	}
	return id, true
}

// decode reads the JSON body into a validator.
func decode(w http.ResponseWriter, r *http.Request) (*validation.Validator, bool) {
	in, err := validation.Decode(r.Body)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return validation.New(in), true
}

// fail maps a store or database error onto a response. op reads like
// "create trip" and prefixes unclassified failures.
func (b *base) fail(w http.ResponseWriter, u *auth.UserContext, op string, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, "Record not found")
		return
	case errors.Is(err, store.ErrForbidden):
		sendError(w, http.StatusForbidden, "This action is unauthorized.")
		return
	case errors.Is(err, context.Canceled):
		return
	}

	qe := db.Classify(err, b.debug)
	fields = append(fields, zap.Error(err), zap.Int64("user_id", u.UserID), zap.Int64("company_id", u.CompanyID))
	if qe.Status >= http.StatusInternalServerError {
		b.logger.Error("Failed to "+op, fields...)
		sendError(w, qe.Status, "Failed to "+op+": "+qe.Message)
		return
	}
	b.logger.Warn("Rejected "+op, fields...)
	sendError(w, qe.Status, qe.Message)
}

// written records a successful write and drops the company's dashboard cache.
func (b *base) written(ctx context.Context, companyID int64, resource, op string) {
	metrics.RecordWrite(resource, op)
	if b.dash == nil {
		return
	}
	if err := b.dash.Invalidate(ctx, companyID); err != nil {
		b.logger.Warn("Failed to invalidate dashboard cache", zap.Int64("company_id", companyID), zap.Error(err))
	}
}

// checkExists adds the "selected X is invalid" error when id does not name a
// live row of the company.
func (b *base) checkExists(ctx context.Context, v *validation.Validator, field string, id *int64,
	exists func(ctx context.Context, companyID, id int64) (bool, error), companyID int64) error {
	if id == nil {
		return nil
	}
	ok, err := exists(ctx, companyID, *id)
	if err != nil {
		return err
	}
	if !ok {
		v.Invalid(field)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
