package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

func newWebhookFixture(t *testing.T) (*fixture, *fakeBilling) {
	f := newFixture(t)
	fb := newFakeBilling()
	NewWebhookHandler(fb, f.users, f.subs, discardLogger()).RegisterRoutes(f.mux)
	f.putProPlan()
	return f, fb
}

// subscriptionJSON renders a Stripe subscription object as it appears in an
// event payload.
func subscriptionJSON(id, customer, userID, price string, cancelAtPeriodEnd bool) json.RawMessage {
	start := time.Now().Add(-time.Hour).Unix()
	end := time.Now().Add(30 * 24 * time.Hour).Unix()
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"object": "subscription",
		"status": "active",
		"customer": %q,
		"metadata": {"user_id": %q},
		"cancel_at_period_end": %t,
		"current_period_start": %d,
		"current_period_end": %d,
		"items": {"object": "list", "data": [
			{"id": "si_1", "price": {"id": %q, "recurring": {"interval": "month"}}}
		]}
	}`, id, customer, userID, cancelAtPeriodEnd, start, end, price))
}

func (f *fixture) deliver(fb *fakeBilling, eventType string, raw json.RawMessage) *httptest.ResponseRecorder {
	f.t.Helper()
	fb.event = stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(raw)))
	req.Header.Set("Stripe-Signature", "t=1,v1=test")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	f, fb := newWebhookFixture(t)
	fb.verifyErr = errors.New("signature mismatch")

	rec := f.deliver(fb, "customer.subscription.updated", json.RawMessage(`{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_NotConfigured(t *testing.T) {
	f := newFixture(t)
	NewWebhookHandler(nil, f.users, f.subs, discardLogger()).RegisterRoutes(f.mux)

	rec := f.do(http.MethodPost, "/webhooks/stripe", map[string]string{"type": "ping"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandler_SubscriptionUpdated(t *testing.T) {
	f, fb := newWebhookFixture(t)
	user := f.signIn(nil)

	rec := f.deliver(fb, "customer.subscription.updated",
		subscriptionJSON("sub_1", "cus_1", user.ID.String(), proMonthlyPrice, true))

	require.Equal(t, http.StatusOK, rec.Code)
	sub, err := f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, "month", sub.BillingInterval)
	assert.True(t, sub.CancelAtPeriodEnd)

	info := f.subs.GetUserSubscriptionInfo(context.Background(), user.ID)
	assert.True(t, info.HasPermission)
	assert.True(t, info.Permissions.AIChat)
}

func TestWebhookHandler_FindsUserByCustomer(t *testing.T) {
	f, fb := newWebhookFixture(t)
	user := f.signIn(func(u *repository.User) {
		u.StripeCustomerID = sql.NullString{String: "cus_known", Valid: true}
	})

	rec := f.deliver(fb, "customer.subscription.created",
		subscriptionJSON("sub_2", "cus_known", "", proYearlyPrice, false))

	require.Equal(t, http.StatusOK, rec.Code)
	sub, err := f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_2", sub.StripeSubscriptionID)
}

func TestWebhookHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		eventType  string
		raw        func(userID uuid.UUID) json.RawMessage
		failOn     string
		wantStatus int
		wantStored bool
	}{
		{
			name:      "unknown price is acknowledged",
			eventType: "customer.subscription.updated",
			raw: func(userID uuid.UUID) json.RawMessage {
				return subscriptionJSON("sub_1", "cus_1", userID.String(), "price_retired", false)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:      "unknown user is acknowledged",
			eventType: "customer.subscription.updated",
			raw: func(uuid.UUID) json.RawMessage {
				return subscriptionJSON("sub_1", "cus_1", uuid.NewString(), proMonthlyPrice, false)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:      "storage failure asks for a retry",
			eventType: "customer.subscription.updated",
			raw: func(userID uuid.UUID) json.RawMessage {
				return subscriptionJSON("sub_1", "cus_1", userID.String(), proMonthlyPrice, false)
			},
			failOn:     "UpsertSubscription",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:      "malformed payload is acknowledged",
			eventType: "customer.subscription.updated",
			raw: func(uuid.UUID) json.RawMessage {
				return json.RawMessage(`{"id": 7}`)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:      "unhandled event type",
			eventType: "invoice.paid",
			raw: func(uuid.UUID) json.RawMessage {
				return json.RawMessage(`{"id": "in_1"}`)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fb := newWebhookFixture(t)
			user := f.signIn(nil)
			if tt.failOn != "" {
				f.store.FailOn(tt.failOn, errors.New("connection reset"))
			}

			rec := f.deliver(fb, tt.eventType, tt.raw(user.ID))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.failOn == "" {
				_, err := f.subs.GetSubscription(context.Background(), user.ID)
				assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
			}
		})
	}
}

func TestWebhookHandler_SubscriptionDeleted(t *testing.T) {
	f, fb := newWebhookFixture(t)
	user := f.signIn(nil)
	f.store.PutSubscription(repository.UserSubscription{
		UserID:               user.ID,
		PlanID:               "pro",
		Status:               "active",
		StripeSubscriptionID: sql.NullString{String: "sub_9", Valid: true},
	})

	canceledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := f.deliver(fb, "customer.subscription.deleted",
		json.RawMessage(fmt.Sprintf(`{"id": "sub_9", "status": "canceled", "canceled_at": %d}`, canceledAt.Unix())))

	require.Equal(t, http.StatusOK, rec.Code)
	sub, err := f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.True(t, sub.CanceledAt.Equal(canceledAt))

	info := f.subs.GetUserSubscriptionInfo(context.Background(), user.ID)
	assert.False(t, info.Permissions.AIChat)
}

func TestWebhookHandler_CheckoutCompleted(t *testing.T) {
	f, fb := newWebhookFixture(t)
	user := f.signIn(nil)
	fb.subs["sub_new"] = stripeSub("sub_new", proMonthlyPrice, user.ID.String())

	raw := json.RawMessage(fmt.Sprintf(`{
		"id": "cs_1",
		"object": "checkout.session",
		"client_reference_id": %q,
		"customer": "cus_checkout",
		"subscription": "sub_new"
	}`, user.ID.String()))

	rec := f.deliver(fb, "checkout.session.completed", raw)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cus_checkout", f.store.User(user.ID).StripeCustomerID.String)
	sub, err := f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, "sub_new", sub.StripeSubscriptionID)
}
