package handler

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

func newSubscriptionFixture(t *testing.T) *fixture {
	f := newFixture(t)
	NewSubscriptionHandler(f.subs, f.quotas, discardLogger()).RegisterRoutes(f.mux, f.requireUser)
	return f
}

func TestSubscriptionHandler_PlansArePublic(t *testing.T) {
	f := newSubscriptionFixture(t)
	f.putProPlan()
	f.store.PutPlan(repository.SubscriptionPlan{ID: "legacy", Name: "Legacy", IsActive: false})

	rec := f.do(http.MethodGet, "/api/subscription/plans", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string][]planResponse](t, rec)
	require.Len(t, resp["plans"], 1)
	pro := resp["plans"][0]
	assert.Equal(t, "pro", pro.ID)
	assert.Equal(t, 1500, pro.PriceMonthlyCents)
	assert.True(t, pro.Features.AIChat)
	assert.True(t, pro.Features.Vocabulary)
	require.NotNil(t, pro.DailyPracticeLimit)
	assert.Equal(t, 50, *pro.DailyPracticeLimit)
	assert.Nil(t, pro.MaxVocabularyWords)
	assert.NotContains(t, rec.Body.String(), "price_pro")
}

func TestSubscriptionHandler_Info(t *testing.T) {
	tests := []struct {
		name           string
		user           func(u *repository.User)
		wantSource     domain.EntitlementSource
		wantAIChat     bool
		trialAvailable bool
	}{
		{
			name:           "free user",
			wantSource:     domain.SourceFree,
			trialAvailable: true,
		},
		{
			name: "trialing user",
			user: func(u *repository.User) {
				u.HasUsedTrial = true
				u.TrialStartedAt = sql.NullTime{Time: time.Now().Add(-time.Hour), Valid: true}
				u.TrialExpiresAt = sql.NullTime{Time: time.Now().Add(71 * time.Hour), Valid: true}
			},
			wantSource: domain.SourceTrial,
			wantAIChat: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubscriptionFixture(t)
			f.signIn(tt.user)

			rec := f.do(http.MethodGet, "/api/subscription", nil)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			info := decode[subscriptionInfoResponse](t, rec)
			assert.Equal(t, tt.wantSource, info.Source)
			assert.Equal(t, tt.wantAIChat, info.Permissions.AIChat)
			assert.True(t, info.Permissions.Vocabulary)
			assert.Equal(t, tt.trialAvailable, info.TrialAvailable)
		})
	}
}

func TestSubscriptionHandler_InfoRequiresUser(t *testing.T) {
	f := newSubscriptionFixture(t)

	for _, path := range []string{"/api/subscription", "/api/subscription/usage"} {
		rec := f.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestSubscriptionHandler_Usage(t *testing.T) {
	f := newSubscriptionFixture(t)
	f.signIn(nil)

	rec := f.do(http.MethodGet, "/api/subscription/usage", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	usage := decode[map[string]quotaResponse](t, rec)
	require.Contains(t, usage, "daily_practice")
	require.Contains(t, usage, "daily_ai_chat")
	assert.False(t, usage["daily_ai_chat"].CanUse, "free plan has no chat")
	assert.Zero(t, usage["daily_practice"].Used)
}
