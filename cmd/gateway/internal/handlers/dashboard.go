package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/dashboard"
)

// DashboardService builds the cached dashboard views.
type DashboardService interface {
	Stats(ctx context.Context, companyID int64) (*dashboard.Stats, error)
	ChartData(ctx context.Context, companyID int64) (*dashboard.ChartData, error)
}

// DashboardHandler serves the KPI and chart endpoints. Both answer with the
// bare payload, no envelope.
type DashboardHandler struct {
	svc    DashboardService
	logger *zap.Logger
}

func NewDashboardHandler(svc DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{svc: svc, logger: logger}
}

// Stats handles GET /api/dashboard
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Stats(r.Context(), u.CompanyID)
	if err != nil {
		h.logger.Error("Failed to build dashboard stats", zap.Int64("company_id", u.CompanyID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ChartData handles GET /api/dashboard/chart-data
func (h *DashboardHandler) ChartData(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ChartData(r.Context(), u.CompanyID)
	if err != nil {
		h.logger.Error("Failed to build chart data", zap.Int64("company_id", u.CompanyID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to load chart data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}
