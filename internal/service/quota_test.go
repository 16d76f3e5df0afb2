package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

func TestCheckUsageQuota_TrialChatExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(nil)

	_, err := f.trials.StartTrial(ctx, u.ID, "learner@example.com", "10.0.0.1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyAIChat)
		require.True(t, st.CanUse, "message %d", i+1)
		require.NoError(t, f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyAIChat, 1))
	}

	st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyAIChat)
	assert.False(t, st.CanUse)
	assert.Equal(t, 20, st.Used)
	assert.Equal(t, 20, *st.Limit)
	assert.Equal(t, 0, *st.Remaining)
	require.NotNil(t, st.ResetAt)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC), *st.ResetAt)

	// Practice stays unlimited for the whole trial.
	practice := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice)
	assert.True(t, practice.CanUse)
	assert.Nil(t, practice.Limit)

	// Tomorrow starts a fresh row.
	f.advance(24 * time.Hour)
	st = f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyAIChat)
	assert.True(t, st.CanUse)
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 20, *st.Remaining)
}

func TestCheckUsageQuota_DerivesDailyRowFromPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	practice := 3
	f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &practice, nil, nil))
	u := f.user(nil)
	f.subscribe(u.ID, "basic", "active", testStart.Add(30*24*time.Hour))

	st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice)
	assert.True(t, st.CanUse)
	assert.Equal(t, 3, *st.Remaining)

	rows := f.store.Quotas()
	require.Len(t, rows, 1)
	assert.Equal(t, string(domain.ResourceDailyPractice), rows[0].ResourceType)
	assert.EqualValues(t, 3, rows[0].LimitCount.Int32)

	// The plan has no chat limit, so no row is written for chat.
	chat := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyAIChat)
	assert.True(t, chat.CanUse)
	assert.Nil(t, chat.Limit)
	assert.Len(t, f.store.Quotas(), 1)
}

func TestCheckUsageQuota_FreeTierHasNoChat(t *testing.T) {
	f := newFixture(t)
	u := f.user(nil)

	st := f.quotas.CheckUsageQuota(context.Background(), u.ID, domain.ResourceDailyAIChat)

	assert.False(t, st.CanUse)
	assert.Equal(t, 0, *st.Limit)
}

func TestCheckUsageQuota_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"quota read", "GetQuotaForPeriod"},
		{"quota create", "EnsureQuota"},
		{"entitlement", "GetUserByID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := f.user(nil)
			f.store.FailOn(tt.method, errors.New("db down"))

			st := f.quotas.CheckUsageQuota(context.Background(), u.ID, domain.ResourceDailyAIChat)

			assert.Equal(t, domain.ClosedQuota(), st)
		})
	}
}

func TestCheckUsageQuota_NonDailyResource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(nil)

	st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceTotalVocabulary)
	assert.Equal(t, domain.UnlimitedQuota(0), st)

	limit := 100
	f.store.PutQuota(repository.UsageQuota{
		UserID:       u.ID,
		ResourceType: string(domain.ResourceTotalVocabulary),
		UsedCount:    100,
		LimitCount:   nullInt(&limit),
		PeriodStart:  testStart.Add(-90 * 24 * time.Hour),
	})

	st = f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceTotalVocabulary)
	assert.False(t, st.CanUse)
	assert.Equal(t, 100, st.Used)
	assert.Nil(t, st.ResetAt)
}

func TestIncrementUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(nil)
		err := f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyPractice, 0)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("missing row is ignored", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(nil)
		require.NoError(t, f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyPractice, 1))
		assert.Empty(t, f.store.Quotas())
	})

	t.Run("trial chat goes through the trial counter", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(trialing(testStart, 72*time.Hour))
		require.NoError(t, f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyAIChat, 1))

		rows := f.store.Quotas()
		require.Len(t, rows, 1)
		assert.EqualValues(t, 1, rows[0].UsedCount)
		assert.EqualValues(t, 20, rows[0].LimitCount.Int32)
	})

	t.Run("counts against an existing row", func(t *testing.T) {
		f := newFixture(t)
		practice := 5
		f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &practice, nil, nil))
		u := f.user(nil)
		f.subscribe(u.ID, "basic", "active", time.Time{})

		require.True(t, f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice).CanUse)
		require.NoError(t, f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyPractice, 2))

		st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice)
		assert.Equal(t, 2, st.Used)
		assert.Equal(t, 3, *st.Remaining)
	})

	t.Run("storage error", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(nil)
		f.store.FailOn("GetQuotaForPeriod", errors.New("db down"))
		err := f.quotas.IncrementUsage(ctx, u.ID, domain.ResourceDailyPractice, 1)
		assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	})
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	practice := 2
	f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &practice, nil, nil))
	u := f.user(nil)
	f.subscribe(u.ID, "basic", "active", time.Time{})

	first, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyPractice, 1)
	require.NoError(t, err)
	assert.False(t, first.IsZero())
	assert.True(t, st.CanUse)
	assert.Equal(t, 1, *st.Remaining)

	second, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyPractice, 1)
	require.NoError(t, err)
	assert.False(t, second.IsZero())
	assert.True(t, st.CanUse, "taking the last unit is allowed")
	assert.Equal(t, 0, *st.Remaining)

	denied, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyPractice, 1)
	require.NoError(t, err)
	assert.True(t, denied.IsZero())
	assert.False(t, st.CanUse)
	assert.Equal(t, 2, st.Used)

	require.NoError(t, f.quotas.Release(ctx, second))
	st = f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice)
	assert.True(t, st.CanUse)
	assert.Equal(t, 1, st.Used)

	// Releasing nothing is a no-op.
	require.NoError(t, f.quotas.Release(ctx, denied))
}

func TestReserve_Unlimited(t *testing.T) {
	f := newFixture(t)
	u := f.user(trialing(testStart, 72*time.Hour))

	r, st, err := f.quotas.Reserve(context.Background(), u.ID, domain.ResourceDailyPractice, 1)

	require.NoError(t, err)
	assert.True(t, r.IsZero())
	assert.True(t, st.CanUse)
	assert.Empty(t, f.store.Quotas())
}

func TestReserve_Errors(t *testing.T) {
	ctx := context.Background()
	practice := 2

	tests := []struct {
		name   string
		amount int
		method string
		code   string
	}{
		{name: "invalid amount", amount: 0, code: domain.EINVALID},
		{name: "consume fails", amount: 1, method: "ConsumeQuota", code: domain.EINTERNAL},
		{name: "entitlement unavailable", amount: 1, method: "GetSubscriptionByUserID", code: domain.EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &practice, nil, nil))
			u := f.user(nil)
			f.subscribe(u.ID, "basic", "active", time.Time{})
			if tt.method != "" {
				f.store.FailOn(tt.method, errors.New("db down"))
			}

			r, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyPractice, tt.amount)

			assert.Equal(t, tt.code, domain.ErrorCode(err))
			assert.True(t, r.IsZero())
			assert.False(t, st.CanUse)
		})
	}
}

func TestReserve_LimitFollowsCurrentEntitlement(t *testing.T) {
	ctx := context.Background()

	t.Run("trial ends mid-day", func(t *testing.T) {
		f := newFixture(t)
		chat := 5
		f.store.PutPlan(planRow("pro", premiumFeatures, nil, &chat, nil))
		u := f.user(trialing(testStart, 72*time.Hour))
		f.subscribe(u.ID, "pro", "active", testStart.AddDate(0, 1, 0))

		f.advance(72*time.Hour - time.Minute)
		_, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyAIChat, 1)
		require.NoError(t, err)
		require.True(t, st.CanUse)
		assert.Equal(t, 20, *st.Limit)

		f.advance(2 * time.Minute)
		st = f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyAIChat)
		assert.Equal(t, 5, *st.Limit)
		assert.Equal(t, 1, st.Used)
		assert.Equal(t, 4, *st.Remaining)

		granted := 0
		for i := 0; i < 20; i++ {
			r, _, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyAIChat, 1)
			require.NoError(t, err)
			if !r.IsZero() {
				granted++
			}
		}
		assert.Equal(t, 4, granted, "the plan limit counts usage from the trial part of the day")

		rows := f.store.Quotas()
		require.Len(t, rows, 1)
		assert.EqualValues(t, 5, rows[0].LimitCount.Int32)
		assert.EqualValues(t, 5, rows[0].UsedCount)
	})

	t.Run("plan upgrade mid-day", func(t *testing.T) {
		f := newFixture(t)
		basic, pro := 3, 10
		f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &basic, nil, nil))
		f.store.PutPlan(planRow("pro", premiumFeatures, &pro, nil, nil))
		u := f.user(nil)
		f.subscribe(u.ID, "basic", "active", time.Time{})

		for i := 0; i < 3; i++ {
			_, st, err := f.quotas.Reserve(ctx, u.ID, domain.ResourceDailyPractice, 1)
			require.NoError(t, err)
			require.True(t, st.CanUse)
		}
		require.False(t, f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice).CanUse)

		f.subscribe(u.ID, "pro", "active", time.Time{})

		st := f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice)
		assert.True(t, st.CanUse)
		assert.Equal(t, 10, *st.Limit)
		assert.Equal(t, 3, st.Used)
		assert.Equal(t, 7, *st.Remaining)
	})

	t.Run("rewrite fails closed", func(t *testing.T) {
		f := newFixture(t)
		basic, pro := 3, 10
		f.store.PutPlan(planRow("basic", `{"aiPractice":true}`, &basic, nil, nil))
		f.store.PutPlan(planRow("pro", premiumFeatures, &pro, nil, nil))
		u := f.user(nil)
		f.subscribe(u.ID, "basic", "active", time.Time{})
		require.True(t, f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice).CanUse)

		f.subscribe(u.ID, "pro", "active", time.Time{})
		f.store.FailOn("UpsertQuotaLimit", errors.New("db down"))

		assert.Equal(t, domain.ClosedQuota(), f.quotas.CheckUsageQuota(ctx, u.ID, domain.ResourceDailyPractice))
	})
}
