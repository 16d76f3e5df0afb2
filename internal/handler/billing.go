package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/billing"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// Billing intervals accepted at checkout.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// BillingHandler handles Stripe checkout and subscription management.
//
// Routes handled:
//   - POST /api/billing/checkout   -> Checkout
//   - POST /api/billing/portal     -> Portal
//   - POST /api/billing/cancel     -> Cancel
//   - POST /api/billing/reactivate -> Reactivate
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	subs        service.SubscriptionService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, userService service.UserService, subs service.SubscriptionService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		subs:        subs,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.Portal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.Reactivate)))
}

type checkoutRequest struct {
	PlanID   string `json:"planId"`
	Interval string `json:"interval"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// Checkout creates a Stripe Checkout session for a plan and returns its URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.checkout"
	user := auth.GetUser(r.Context())

	if !h.configured(w, r, op) {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Interval == "" {
		req.Interval = IntervalMonth
	}

	plan, err := h.subs.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			err = domain.NewValidationError(op, "planId", "Unknown plan")
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var priceID string
	switch req.Interval {
	case IntervalMonth:
		priceID = plan.StripeMonthlyPriceID
	case IntervalYear:
		priceID = plan.StripeYearlyPriceID
	default:
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "interval", "Interval must be month or year"))
		return
	}
	if priceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "This plan is not available for purchase"))
		return
	}

	customerID, err := h.ensureCustomer(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Failed to initialize billing"))
		return
	}

	checkoutURL, err := h.billing.CreateCheckoutSession(r.Context(), billing.CheckoutParams{
		UserID:     user.ID.String(),
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: h.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.baseURL + "/pricing",
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Failed to create checkout session"))
		return
	}

	h.logger.Info("checkout session created", "user_id", user.ID, "plan_id", plan.ID, "interval", req.Interval)
	writeJSON(w, http.StatusOK, urlResponse{URL: checkoutURL})
}

// ensureCustomer returns the user's Stripe customer, creating it on first
// checkout.
func (h *BillingHandler) ensureCustomer(ctx context.Context, user *domain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := h.billing.CreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	if err := h.userService.UpdateStripeCustomer(ctx, user.ID, customerID); err != nil {
		// The webhook still finds the user through subscription metadata.
		h.logger.Error("failed to save stripe customer ID", "error", err, "user_id", user.ID)
	}
	return customerID, nil
}

// Portal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.portal"
	user := auth.GetUser(r.Context())

	if !h.configured(w, r, op) {
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account exists yet"))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(r.Context(), user.StripeCustomerID, h.baseURL+"/settings/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Failed to open billing portal"))
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: portalURL})
}

// Cancel sets the subscription to cancel at period end.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.setCancelAtPeriodEnd(w, r, "handler.billing.cancel", h.billingCancel)
}

// Reactivate removes the cancel-at-period-end flag.
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setCancelAtPeriodEnd(w, r, "handler.billing.reactivate", h.billingReactivate)
}

func (h *BillingHandler) billingCancel(ctx context.Context, id string) (billing.Snapshot, error) {
	sub, err := h.billing.CancelSubscription(ctx, id)
	if err != nil {
		return billing.Snapshot{}, err
	}
	return billing.SnapshotOf(sub), nil
}

func (h *BillingHandler) billingReactivate(ctx context.Context, id string) (billing.Snapshot, error) {
	sub, err := h.billing.ReactivateSubscription(ctx, id)
	if err != nil {
		return billing.Snapshot{}, err
	}
	return billing.SnapshotOf(sub), nil
}

// setCancelAtPeriodEnd applies update to the caller's Stripe subscription
// and stores the result without waiting for the webhook.
func (h *BillingHandler) setCancelAtPeriodEnd(w http.ResponseWriter, r *http.Request, op string, update func(context.Context, string) (billing.Snapshot, error)) {
	user := auth.GetUser(r.Context())

	if !h.configured(w, r, op) {
		return
	}

	current, err := h.subs.GetSubscription(r.Context(), user.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			err = domain.Invalid(op, "No subscription to change")
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if current.StripeSubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No subscription to change"))
		return
	}

	snap, err := update(r.Context(), current.StripeSubscriptionID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Failed to update subscription. Please try again."))
		return
	}

	updated, err := syncSnapshot(r.Context(), h.subs, user.ID, current.PlanID, snap)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("subscription updated",
		"user_id", user.ID,
		"subscription_id", current.StripeSubscriptionID,
		"cancel_at_period_end", updated.CancelAtPeriodEnd,
	)
	writeJSON(w, http.StatusOK, map[string]*subscriptionResponse{"subscription": toSubscriptionResponse(updated)})
}

func (h *BillingHandler) configured(w http.ResponseWriter, r *http.Request, op string) bool {
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op, "Billing is not configured"))
		return false
	}
	return true
}

// syncSnapshot stores snap as the user's subscription. The plan follows the
// snapshot's price; fallbackPlanID is used when the price has no plan.
func syncSnapshot(ctx context.Context, subs service.SubscriptionService, userID uuid.UUID, fallbackPlanID string, snap billing.Snapshot) (*domain.UserSubscription, error) {
	planID := fallbackPlanID
	if snap.PriceID != "" {
		plan, err := subs.PlanForPrice(ctx, snap.PriceID)
		switch {
		case err == nil:
			planID = plan.ID
		case domain.ErrorCode(err) != domain.ENOTFOUND:
			return nil, err
		}
	}
	if planID == "" {
		return nil, domain.NotFound("handler.billing.sync", "plan", snap.PriceID)
	}

	return subs.SyncSubscription(ctx, domain.SyncSubscriptionParams{
		UserID:               userID,
		PlanID:               planID,
		Status:               snap.Status,
		BillingInterval:      snap.Interval,
		StripeSubscriptionID: snap.SubscriptionID,
		CurrentPeriodStart:   snap.CurrentPeriodStart,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		TrialStart:           snap.TrialStart,
		TrialEnd:             snap.TrialEnd,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		CanceledAt:           snap.CanceledAt,
	})
}
