package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/validation"
)

// AccountService covers the signed-in user's own account and their team.
type AccountService interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	UpdateProfile(ctx context.Context, userID int64, name, email string) (*auth.User, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	DeleteAccount(ctx context.Context, userID int64, password string) error
	SendVerification(ctx context.Context, userID int64) (string, error)
	VerifyEmail(ctx context.Context, userID int64, hash string) error
	ListTeam(ctx context.Context, companyID int64) ([]auth.User, error)
	AddTeamMember(ctx context.Context, companyID int64, email string) (*auth.User, error)
	RemoveTeamMember(ctx context.Context, actor *auth.UserContext, userID int64) error
}

// ProfileHandler serves profile, company settings, team and email
// verification endpoints.
type ProfileHandler struct {
	base
	accounts AccountService
}

func NewProfileHandler(d Deps, accounts AccountService) *ProfileHandler {
	return &ProfileHandler{base: newBase(d), accounts: accounts}
}

func (h *ProfileHandler) accountError(w http.ResponseWriter, u *auth.UserContext, op string, err error) {
	if errors.Is(err, auth.ErrUserNotFound) {
		sendError(w, http.StatusNotFound, "Record not found")
		return
	}
	h.fail(w, u, op, err)
}

// Show handles GET /api/profile
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.GetUser(r.Context(), u.UserID)
	if err != nil {
		h.accountError(w, u, "load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Update handles PATCH /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	name := deref(v.String("name", validation.Required, validation.Max(255)))
	email := strings.ToLower(deref(v.String("email", validation.Required, validation.Email, validation.Max(255))))
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	if _, err := h.accounts.UpdateProfile(r.Context(), u.UserID, name, email); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			v.Taken("email")
			sendValidation(w, v.Errors())
			return
		}
		h.accountError(w, u, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "profile-updated"})
}

// ChangePassword handles PUT /api/profile/password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	current := deref(v.String("current_password", validation.Required))
	next := deref(v.String("new_password", validation.Required, validation.Min(8), validation.Confirmed))
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), u.UserID, current, next); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			v.Add("current_password", "The provided password does not match your current password.")
			sendValidation(w, v.Errors())
			return
		}
		h.accountError(w, u, "change password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Password changed successfully"})
}

// Destroy handles DELETE /api/profile
func (h *ProfileHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	password := deref(v.String("password", validation.Required))
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), u.UserID, password); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			v.Add("password", "The password is incorrect.")
			sendValidation(w, v.Errors())
			return
		}
		h.accountError(w, u, "delete account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Account deleted"})
}

// companySettings flattens a company into the company_* keys the settings
// page edits. Missing values read as "".
func companySettings(c *store.Company) map[string]string {
	return map[string]string{
		"company_name":                c.Name,
		"company_email":               deref(c.Email),
		"company_phone":               deref(c.Phone),
		"company_address":             deref(c.Address),
		"company_city":                deref(c.City),
		"company_state":               deref(c.State),
		"company_zip":                 deref(c.Zip),
		"company_country":             deref(c.Country),
		"company_registration_number": deref(c.RegistrationNumber),
		"company_tax_id":              deref(c.TaxID),
		"company_website":             deref(c.Website),
	}
}

// CompanySettings handles GET /api/company-settings
func (h *ProfileHandler) CompanySettings(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	c, err := h.store.GetCompany(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "load company settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": companySettings(c)})
}

// UpdateCompanySettings handles PUT /api/company-settings. Every field is
// optional; an omitted field is cleared, except the name which is kept.
func (h *ProfileHandler) UpdateCompanySettings(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	name := v.String("company_name", validation.Max(255))
	next := &store.Company{
		Email:              v.String("company_email", validation.Email, validation.Max(255)),
		Phone:              v.String("company_phone", validation.Max(20)),
		Address:            v.String("company_address", validation.Max(255)),
		City:               v.String("company_city", validation.Max(100)),
		State:              v.String("company_state", validation.Max(100)),
		Zip:                v.String("company_zip", validation.Max(20)),
		Country:            v.String("company_country", validation.Max(100)),
		RegistrationNumber: v.String("company_registration_number", validation.Max(255)),
		TaxID:              v.String("company_tax_id", validation.Max(255)),
		Website:            v.String("company_website", validation.URL, validation.Max(255)),
	}
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	ctx := r.Context()
	current, err := h.store.GetCompany(ctx, u.CompanyID)
	if err != nil {
		h.fail(w, u, "update company settings", err)
		return
	}
	next.Name = current.Name
	if name != nil {
		next.Name = *name
	}
	updated, err := h.store.UpdateCompany(ctx, u.CompanyID, next)
	if err != nil {
		h.fail(w, u, "update company settings", err)
		return
	}
	h.written(ctx, u.CompanyID, "company_settings", "update")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Company settings updated successfully",
		"data":    companySettings(updated),
	})
}

// Team handles GET /api/team-members
func (h *ProfileHandler) Team(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	members, err := h.accounts.ListTeam(r.Context(), u.CompanyID)
	if err != nil {
		h.fail(w, u, "list team members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": members})
}

// AddTeamMember handles POST /api/team-members
func (h *ProfileHandler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, ok := decode(w, r)
	if !ok {
		return
	}
	email := strings.ToLower(deref(v.String("email", validation.Required, validation.Email, validation.Max(255))))
	if v.Fails() {
		sendValidation(w, v.Errors())
		return
	}

	member, err := h.accounts.AddTeamMember(r.Context(), u.CompanyID, email)
	if err != nil {
		if errors.Is(err, auth.ErrMemberExists) {
			sendError(w, http.StatusUnprocessableEntity, "User with this email already exists")
			return
		}
		h.fail(w, u, "add team member", err)
		return
	}
	metrics.RecordWrite("team_members", "create")
	h.logger.Info("Team member invited",
		zap.Int64("company_id", u.CompanyID),
		zap.Int64("invited_by", u.UserID),
		zap.Int64("user_id", member.ID),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Team member added successfully. Please share the login credentials with them.",
		"data": map[string]interface{}{
			"id":                 member.ID,
			"name":               member.Name,
			"email":              member.Email,
			"role":               member.Role,
			"temporary_password": auth.TemporaryPassword,
		},
	})
}

// RemoveTeamMember handles DELETE /api/team-members/{userId}
func (h *ProfileHandler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	err := h.accounts.RemoveTeamMember(r.Context(), u, id)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNotInCompany):
		sendError(w, http.StatusForbidden, "Unauthorized")
		return
	case errors.Is(err, auth.ErrRemoveSelf):
		sendError(w, http.StatusUnprocessableEntity, "You cannot remove yourself")
		return
	default:
		h.accountError(w, u, "remove team member", err)
		return
	}
	metrics.RecordWrite("team_members", "delete")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Team member removed successfully"})
}

// SendVerification handles POST /api/email/verification-notification
func (h *ProfileHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if _, err := h.accounts.SendVerification(r.Context(), u.UserID); err != nil {
		if errors.Is(err, auth.ErrAlreadyVerified) {
			sendError(w, http.StatusBadRequest, "Email already verified")
			return
		}
		h.accountError(w, u, "send verification email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Verification email sent"})
}

type verifiedUser struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
}

// VerifyEmail handles GET /api/email/verify/{id}/{hash}. The signed hash is
// the credential, so the route is public.
func (h *ProfileHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	err := h.accounts.VerifyEmail(ctx, id, r.PathValue("hash"))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAlreadyVerified):
		sendError(w, http.StatusBadRequest, "Email already verified")
		return
	case errors.Is(err, auth.ErrInvalidVerificationLink):
		sendError(w, http.StatusBadRequest, "Invalid verification link")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		sendError(w, http.StatusNotFound, "Record not found")
		return
	default:
		h.logger.Error("Failed to verify email", zap.Int64("user_id", id), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}

	user, err := h.accounts.GetUser(ctx, id)
	if err != nil {
		h.logger.Error("Failed to reload verified user", zap.Int64("user_id", id), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email verified successfully",
		"user": verifiedUser{
			ID:              user.ID,
			Name:            user.Name,
			Email:           user.Email,
			EmailVerifiedAt: user.EmailVerifiedAt,
		},
	})
}
