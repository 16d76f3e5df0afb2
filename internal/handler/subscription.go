package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// SubscriptionHandler exposes the caller's entitlement, the plan catalog and
// today's usage.
//
// Routes handled:
//   - GET /api/subscription       -> Info
//   - GET /api/subscription/plans -> Plans
//   - GET /api/subscription/usage -> Usage
type SubscriptionHandler struct {
	subs   service.SubscriptionService
	quotas service.QuotaService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs service.SubscriptionService, quotas service.QuotaService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subs:   subs,
		quotas: quotas,
		logger: logger,
	}
}

// RegisterRoutes registers subscription routes. The plan catalog is public.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.Info)))
	mux.HandleFunc("GET /api/subscription/plans", h.Plans)
	mux.Handle("GET /api/subscription/usage", requireUser(http.HandlerFunc(h.Usage)))
}

// Info returns the caller's resolved entitlement.
func (h *SubscriptionHandler) Info(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	info := h.subs.ResolveForUser(r.Context(), user)
	writeJSON(w, http.StatusOK, toSubscriptionInfoResponse(info))
}

// Plans lists the active plans in display order.
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subs.ListPlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]*planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// Usage returns today's metered usage.
func (h *SubscriptionHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	ctx := r.Context()

	writeJSON(w, http.StatusOK, map[domain.ResourceType]quotaResponse{
		domain.ResourceDailyPractice: toQuotaResponse(h.quotas.CheckUsageQuota(ctx, user.ID, domain.ResourceDailyPractice)),
		domain.ResourceDailyAIChat:   toQuotaResponse(h.quotas.CheckUsageQuota(ctx, user.ID, domain.ResourceDailyAIChat)),
	})
}
