package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/toeicprep/internal/service"
)

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	admin  service.AdminService
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
// requireAdmin must already require a user.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin Middleware) {
	mux.Handle("GET /api/admin/stats", requireAdmin(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/admin/users/{id}/entitlement", requireAdmin(http.HandlerFunc(h.UserEntitlement)))
	mux.Handle("POST /api/admin/plans/{id}/refresh", requireAdmin(http.HandlerFunc(h.RefreshPlan)))
}

// Stats returns platform counters.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type userEntitlementResponse struct {
	User        userResponse             `json:"user"`
	Entitlement subscriptionInfoResponse `json:"entitlement"`
	Trial       trialStatusResponse      `json:"trial"`
}

// UserEntitlement returns the resolved entitlement of any user.
func (h *AdminHandler) UserEntitlement(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.user_entitlement"

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ue, err := h.admin.UserEntitlement(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userEntitlementResponse{
		User:        toUserResponse(ue.User, h.now()),
		Entitlement: toSubscriptionInfoResponse(ue.Entitlement),
		Trial:       toTrialStatusResponse(ue.Trial),
	})
}

// RefreshPlan reloads a plan row after an operator edited it, so cached
// entitlements pick up the change before the cache TTL runs out.
func (h *AdminHandler) RefreshPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.admin.RefreshPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*planResponse{"plan": toPlanResponse(plan)})
}
