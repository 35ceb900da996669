package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// ExpenseHandler serves /api/expenses. An expense may be company wide (no vehicle).
type ExpenseHandler struct {
	base
}

func NewExpenseHandler(d Deps) *ExpenseHandler {
	return &ExpenseHandler{base: newBase(d)}
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	expenses, err := h.store.ListExpenses(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": expenses})
}

func (h *ExpenseHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Provide expense details to create."})
}

func (h *ExpenseHandler) bind(ctx context.Context, v *validation.Validator, companyID int64) (*store.Expense, error) {
	e := &store.Expense{
		CompanyID:   companyID,
		VehicleID:   v.Int("vehicle_id"),
		Category:    deref(v.String("category", validation.Required, validation.In("fuel", "maintenance", "insurance", "toll", "parking", "repair", "other"))),
		Amount:      deref(v.Float("amount", validation.Required, validation.Min(0))),
		Description: v.String("description", validation.Max(255)),
		Notes:       v.String("notes"),
	}
	if d := v.Date("expense_date", validation.Required); d != nil {
		e.ExpenseDate = *d
	}
	if err := h.checkExists(ctx, v, "vehicle_id", e.VehicleID, h.store.VehicleExists, companyID); err != nil {
		return nil, err
	}
	return e, nil
}

func (h *ExpenseHandler) respond(w http.ResponseWriter, r *http.Request, u *auth.UserContext, id int64, code int, wrap bool) {
	e, err := h.store.GetExpense(r.Context(), u.CompanyID, id, true)
	if err != nil {
		h.fail(w, u, "load expense", err, zap.Int64("expense_id", id))
		return
	}
	if !wrap {
		writeJSON(w, code, e)
		return
	}
	writeJSON(w, code, map[string]interface{}{"data": e})
}

func (h *ExpenseHandler) Store(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	e, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "create expense", err)
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if err := h.store.CreateExpense(ctx, e); err != nil {
		h.fail(w, u, "create expense", err)
		return
	}
	h.written(ctx, u.CompanyID, "expenses", "create")
	h.respond(w, r, u, e.ID, http.StatusCreated, true)
}

func (h *ExpenseHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, true)
	}
}

func (h *ExpenseHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if id, ok := pathID(w, r, "id"); ok {
		h.respond(w, r, u, id, http.StatusOK, false)
	}
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	e, err := h.bind(ctx, v, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update expense", err, zap.Int64("expense_id", id))
		return
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}
	if _, err := h.store.UpdateExpense(ctx, u.CompanyID, id, e); err != nil {
		h.fail(w, u, "update expense", err, zap.Int64("expense_id", id))
		return
	}
	h.written(ctx, u.CompanyID, "expenses", "update")
	h.respond(w, r, u, id, http.StatusOK, true)
}

func (h *ExpenseHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteExpense(r.Context(), u.CompanyID, id); err != nil {
		h.fail(w, u, "delete expense", err, zap.Int64("expense_id", id))
		return
	}
	h.written(r.Context(), u.CompanyID, "expenses", "delete")
	deleted(w, "Expense")
}
