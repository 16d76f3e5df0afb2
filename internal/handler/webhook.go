package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/toeicprep/internal/billing"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// maxWebhookBody caps Stripe event payloads.
const maxWebhookBody = 65536

// WebhookHandler handles incoming webhook events from Stripe.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
//
// Responses: 400 for a bad signature, 500 when storing the event failed and
// Stripe should retry, 200 otherwise. Events naming an unknown user or price
// are logged and acknowledged since a retry cannot fix them.
type WebhookHandler struct {
	billing     billing.Service
	userService service.UserService
	subs        service.SubscriptionService
	logger      *slog.Logger
	now         func() time.Time
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, userService service.UserService, subs service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:     billingService,
		userService: userService,
		subs:        subs,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if err == nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "processed").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	switch domain.ErrorCode(err) {
	case domain.EINTERNAL, domain.EUNAVAILABLE:
		h.logger.Error("webhook event failed, stripe will retry",
			"type", event.Type, "id", event.ID, "error", err)
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "failed").Inc()
		w.WriteHeader(http.StatusInternalServerError)
	default:
		h.logger.Warn("webhook event skipped",
			"type", event.Type, "id", event.ID, "error", err)
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "skipped").Inc()
		w.WriteHeader(http.StatusOK)
	}
}

// handleCheckoutCompleted links the Stripe customer to the user and stores
// the new subscription so access starts before the subscription event lands.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	const op = "webhook.checkout_completed"

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "failed to parse checkout session")
	}
	if session.Customer == nil || session.Subscription == nil {
		return domain.Invalid(op, "checkout session missing customer or subscription")
	}

	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		user, lookupErr := h.userService.GetByStripeCustomerID(ctx, session.Customer.ID)
		if lookupErr != nil {
			return lookupErr
		}
		userID = user.ID
	}

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.StripeCustomerID == "" {
		if err := h.userService.UpdateStripeCustomer(ctx, user.ID, session.Customer.ID); err != nil {
			return err
		}
	}

	sub, err := h.billing.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return domain.Unavailable(err, op, "failed to fetch subscription")
	}
	return h.sync(ctx, user.ID, billing.SnapshotOf(sub))
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	const op = "webhook.subscription_changed"

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "failed to parse subscription")
	}
	snap := billing.SnapshotOf(&sub)

	userID, err := h.resolveUser(ctx, op, snap)
	if err != nil {
		return err
	}
	return h.sync(ctx, userID, snap)
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	const op = "webhook.subscription_deleted"

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "failed to parse subscription")
	}

	canceledAt := h.now().UTC()
	if sub.CanceledAt != 0 {
		canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
	}
	if err := h.subs.MarkCanceled(ctx, sub.ID, canceledAt); err != nil {
		return err
	}

	h.logger.Info("subscription canceled", "subscription_id", sub.ID)
	return nil
}

// resolveUser finds our user from the subscription metadata, falling back
// to the Stripe customer.
func (h *WebhookHandler) resolveUser(ctx context.Context, op string, snap billing.Snapshot) (uuid.UUID, error) {
	if id, err := uuid.Parse(snap.UserID); err == nil {
		user, err := h.userService.GetByID(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		return user.ID, nil
	}
	if snap.CustomerID == "" {
		return uuid.Nil, domain.Invalid(op, "subscription has no customer")
	}
	user, err := h.userService.GetByStripeCustomerID(ctx, snap.CustomerID)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

func (h *WebhookHandler) sync(ctx context.Context, userID uuid.UUID, snap billing.Snapshot) error {
	sub, err := syncSnapshot(ctx, h.subs, userID, "", snap)
	if err != nil {
		return err
	}
	h.logger.Info("subscription synced",
		"user_id", userID,
		"subscription_id", sub.StripeSubscriptionID,
		"plan_id", sub.PlanID,
		"status", sub.Status,
	)
	return nil
}
