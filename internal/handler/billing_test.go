package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/toeicprep/internal/billing"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

// fakeBilling is an in-memory billing.Service.
type fakeBilling struct {
	customers   int
	checkout    []billing.CheckoutParams
	portal      []string
	subs        map[string]*stripe.Subscription
	event       stripe.Event
	verifyErr   error
	checkoutErr error
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{subs: make(map[string]*stripe.Subscription)}
}

func (b *fakeBilling) CreateCustomer(ctx context.Context, user *domain.User) (string, error) {
	b.customers++
	return "cus_new", nil
}

func (b *fakeBilling) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error) {
	if b.checkoutErr != nil {
		return "", b.checkoutErr
	}
	b.checkout = append(b.checkout, p)
	return "https://checkout.stripe.test/session", nil
}

func (b *fakeBilling) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	b.portal = append(b.portal, customerID)
	return "https://billing.stripe.test/portal", nil
}

func (b *fakeBilling) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	sub, ok := b.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

func (b *fakeBilling) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return b.setCancel(id, true)
}

func (b *fakeBilling) ReactivateSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return b.setCancel(id, false)
}

func (b *fakeBilling) setCancel(id string, cancel bool) (*stripe.Subscription, error) {
	sub, ok := b.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.CancelAtPeriodEnd = cancel
	return sub, nil
}

func (b *fakeBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if b.verifyErr != nil {
		return stripe.Event{}, b.verifyErr
	}
	return b.event, nil
}

var _ billing.Service = (*fakeBilling)(nil)

const (
	proMonthlyPrice = "price_pro_month"
	proYearlyPrice  = "price_pro_year"
)

// putProPlan stores a paid plan with both Stripe prices.
func (f *fixture) putProPlan() {
	f.store.PutPlan(repository.SubscriptionPlan{
		ID:                   "pro",
		Name:                 "Pro",
		PriceMonthlyCents:    1500,
		PriceYearlyCents:     15000,
		Features:             pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"aiPractice":true,"aiChat":true,"exportData":true}`), Valid: true},
		DailyPracticeLimit:   sql.NullInt32{Int32: 50, Valid: true},
		DailyAiChatLimit:     sql.NullInt32{Int32: 100, Valid: true},
		StripeMonthlyPriceID: sql.NullString{String: proMonthlyPrice, Valid: true},
		StripeYearlyPriceID:  sql.NullString{String: proYearlyPrice, Valid: true},
		IsActive:             true,
		SortOrder:            2,
	})
}

// stripeSub builds a Stripe subscription on price for userID.
func stripeSub(id, price string, userID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Status:             stripe.SubscriptionStatusActive,
		Customer:           &stripe.Customer{ID: "cus_existing"},
		Metadata:           map[string]string{billing.MetadataUserID: userID},
		CurrentPeriodStart: time.Now().Add(-time.Hour).Unix(),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour).Unix(),
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Price: &stripe.Price{ID: price, Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth}},
		}}},
	}
}

func newBillingFixture(t *testing.T) (*fixture, *fakeBilling) {
	f := newFixture(t)
	fb := newFakeBilling()
	NewBillingHandler(fb, f.users, f.subs, "https://toeicprep.test", discardLogger()).RegisterRoutes(f.mux, f.requireUser)
	f.putProPlan()
	return f, fb
}

func TestBillingHandler_Checkout(t *testing.T) {
	f, fb := newBillingFixture(t)
	user := f.signIn(nil)

	rec := f.do(http.MethodPost, "/api/billing/checkout", map[string]string{"planId": "pro", "interval": "year"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://checkout.stripe.test/session", decode[urlResponse](t, rec).URL)
	require.Len(t, fb.checkout, 1)
	assert.Equal(t, proYearlyPrice, fb.checkout[0].PriceID)
	assert.Equal(t, user.ID.String(), fb.checkout[0].UserID)
	assert.Equal(t, "cus_new", fb.checkout[0].CustomerID)
	assert.Equal(t, "https://toeicprep.test/pricing", fb.checkout[0].CancelURL)
	assert.Equal(t, "cus_new", f.store.User(user.ID).StripeCustomerID.String)
}

func TestBillingHandler_CheckoutReusesCustomer(t *testing.T) {
	f, fb := newBillingFixture(t)
	f.signIn(func(u *repository.User) {
		u.StripeCustomerID = sql.NullString{String: "cus_existing", Valid: true}
	})

	rec := f.do(http.MethodPost, "/api/billing/checkout", map[string]string{"planId": "pro"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, fb.customers)
	assert.Equal(t, "cus_existing", fb.checkout[0].CustomerID)
	assert.Equal(t, proMonthlyPrice, fb.checkout[0].PriceID, "interval defaults to month")
}

func TestBillingHandler_CheckoutErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        map[string]string
		checkoutErr error
		wantStatus  int
	}{
		{"unknown plan", map[string]string{"planId": "platinum"}, nil, http.StatusBadRequest},
		{"free plan has no price", map[string]string{"planId": "free"}, nil, http.StatusBadRequest},
		{"bad interval", map[string]string{"planId": "pro", "interval": "week"}, nil, http.StatusBadRequest},
		{"stripe down", map[string]string{"planId": "pro"}, errors.New("timeout"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fb := newBillingFixture(t)
			fb.checkoutErr = tt.checkoutErr
			f.signIn(nil)

			rec := f.do(http.MethodPost, "/api/billing/checkout", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestBillingHandler_NotConfigured(t *testing.T) {
	f := newFixture(t)
	NewBillingHandler(nil, f.users, f.subs, "", discardLogger()).RegisterRoutes(f.mux, f.requireUser)
	f.signIn(nil)

	for _, path := range []string{"/api/billing/checkout", "/api/billing/portal", "/api/billing/cancel"} {
		rec := f.do(http.MethodPost, path, map[string]string{"planId": "pro"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestBillingHandler_Portal(t *testing.T) {
	f, fb := newBillingFixture(t)
	f.signIn(nil)

	rec := f.do(http.MethodPost, "/api/billing/portal", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no customer yet")

	f.signIn(func(u *repository.User) {
		u.Email = "payer@example.com"
		u.StripeCustomerID = sql.NullString{String: "cus_existing", Valid: true}
	})
	rec = f.do(http.MethodPost, "/api/billing/portal", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cus_existing"}, fb.portal)
}

func TestBillingHandler_CancelAndReactivate(t *testing.T) {
	f, fb := newBillingFixture(t)
	user := f.signIn(nil)

	rec := f.do(http.MethodPost, "/api/billing/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no subscription")

	fb.subs["sub_1"] = stripeSub("sub_1", proMonthlyPrice, user.ID.String())
	f.store.PutSubscription(repository.UserSubscription{
		UserID:               user.ID,
		PlanID:               "pro",
		Status:               "active",
		StripeSubscriptionID: sql.NullString{String: "sub_1", Valid: true},
	})

	rec = f.do(http.MethodPost, "/api/billing/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]subscriptionResponse](t, rec)
	assert.True(t, resp["subscription"].CancelAtPeriodEnd)
	assert.Equal(t, "month", resp["subscription"].BillingInterval)

	sub, err := f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CurrentPeriodEnd)

	rec = f.do(http.MethodPost, "/api/billing/reactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sub, err = f.subs.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, sub.CancelAtPeriodEnd)
}
