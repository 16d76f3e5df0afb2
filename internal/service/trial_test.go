package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

func trialReason(t *testing.T, err error) domain.TrialNotAllowedReason {
	t.Helper()
	var te *domain.TrialNotAllowedError
	require.True(t, errors.As(err, &te), "expected TrialNotAllowedError, got %v", err)
	return te.Reason
}

func TestStartTrial_GrantsOnceAndInitializesQuotas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(func(u *repository.User) { u.Email = "a@x.com" })

	rec, err := f.trials.StartTrial(ctx, u.ID, "a@x.com", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, testStart, rec.StartedAt)
	assert.Equal(t, testStart.Add(72*time.Hour), rec.ExpiresAt)

	stored := f.store.User(u.ID)
	assert.True(t, stored.HasUsedTrial)
	assert.Equal(t, "a@x.com", stored.TrialEmail.String)
	assert.Equal(t, "1.2.3.4", stored.TrialIpAddress.String)

	quotas := map[string]repository.UsageQuota{}
	for _, q := range f.store.Quotas() {
		quotas[q.ResourceType] = q
	}
	require.Len(t, quotas, 2)
	chat := quotas[string(domain.ResourceDailyAIChat)]
	assert.True(t, chat.LimitCount.Valid)
	assert.EqualValues(t, 20, chat.LimitCount.Int32)
	assert.False(t, quotas[string(domain.ResourceDailyPractice)].LimitCount.Valid)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), chat.PeriodStart)

	_, err = f.trials.StartTrial(ctx, u.ID, "a@x.com", "1.2.3.4")
	assert.Equal(t, domain.TrialReasonAlreadyUsed, trialReason(t, err))
}

func TestCanStartTrial(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(f *fixture) repository.User
		email  string
		ip     string
		reason domain.TrialNotAllowedReason
	}{
		{
			name: "eligible",
			setup: func(f *fixture) repository.User {
				return f.user(nil)
			},
			email: "a@x.com",
			ip:    "1.2.3.4",
		},
		{
			name: "already used",
			setup: func(f *fixture) repository.User {
				return f.user(func(u *repository.User) { u.HasUsedTrial = true })
			},
			email:  "a@x.com",
			ip:     "1.2.3.4",
			reason: domain.TrialReasonAlreadyUsed,
		},
		{
			name: "email used by another account",
			setup: func(f *fixture) repository.User {
				f.user(func(u *repository.User) {
					u.Email = "other@x.com"
					u.HasUsedTrial = true
					u.TrialEmail = sql.NullString{String: "a@x.com", Valid: true}
				})
				return f.user(nil)
			},
			email:  " A@X.com ",
			ip:     "1.2.3.4",
			reason: domain.TrialReasonEmailReused,
		},
		{
			name: "three recent starts from the address",
			setup: func(f *fixture) repository.User {
				for i := 0; i < 3; i++ {
					f.user(func(u *repository.User) {
						u.Email = fmt.Sprintf("u%d@x.com", i)
						trialing(testStart.Add(-time.Duration(i+1)*24*time.Hour), 72*time.Hour)(u)
						u.TrialIpAddress = sql.NullString{String: "1.2.3.4", Valid: true}
					})
				}
				return f.user(nil)
			},
			email:  "a@x.com",
			ip:     "1.2.3.4",
			reason: domain.TrialReasonIPAbuse,
		},
		{
			name: "old starts from the address fall outside the window",
			setup: func(f *fixture) repository.User {
				for i := 0; i < 3; i++ {
					f.user(func(u *repository.User) {
						u.Email = fmt.Sprintf("u%d@x.com", i)
						trialing(testStart.Add(-8*24*time.Hour), 72*time.Hour)(u)
						u.TrialIpAddress = sql.NullString{String: "1.2.3.4", Valid: true}
					})
				}
				return f.user(nil)
			},
			email: "a@x.com",
			ip:    "1.2.3.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := tt.setup(f)

			err := f.trials.CanStartTrial(ctx, u.ID, tt.email, tt.ip)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.reason, trialReason(t, err))
			assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
		})
	}
}

func TestStartTrial_StorageErrorIsNotARejection(t *testing.T) {
	f := newFixture(t)
	u := f.user(nil)
	f.store.FailOn("StartUserTrial", errors.New("connection reset"))

	_, err := f.trials.StartTrial(context.Background(), u.ID, "a@x.com", "1.2.3.4")
	require.Error(t, err)
	var te *domain.TrialNotAllowedError
	assert.False(t, errors.As(err, &te))
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.False(t, f.store.User(u.ID).HasUsedTrial)
}

func TestIsInTrial_FlipsWithClock(t *testing.T) {
	f := newFixture(t)
	u := repoUserToDomain(f.user(trialing(testStart, 72*time.Hour)))

	assert.True(t, f.trials.IsInTrial(u))

	f.advance(72*time.Hour - time.Second)
	assert.True(t, f.trials.IsInTrial(u))

	f.advance(time.Second)
	assert.False(t, f.trials.IsInTrial(u), "trial ends when expiry is no longer in the future")
	assert.False(t, f.trials.IsInTrial(repoUserToDomain(f.user(nil))))
}

func TestTrialPermissions(t *testing.T) {
	f := newFixture(t)
	p := f.trials.Permissions()

	assert.True(t, p.AIPractice)
	assert.True(t, p.AIChat)
	assert.True(t, p.Vocabulary)
	assert.True(t, p.ExportData)
	assert.True(t, p.ViewMistakes)
	require.NotNil(t, p.DailyAIChatLimit)
	assert.Equal(t, 20, *p.DailyAIChatLimit)
	assert.Nil(t, p.DailyPracticeLimit)
}

func TestCheckAIChatUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(nil)

	usage, err := f.trials.CheckAIChatUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialAIChatUsage{CanUse: true, Remaining: domain.UnlimitedRemaining}, usage)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.trials.IncrementAIChatUsage(ctx, u.ID))
	}
	usage, err = f.trials.CheckAIChatUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialAIChatUsage{CanUse: true, Remaining: 15}, usage)

	for i := 0; i < 16; i++ {
		require.NoError(t, f.trials.IncrementAIChatUsage(ctx, u.ID))
	}
	usage, err = f.trials.CheckAIChatUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialAIChatUsage{CanUse: false, Remaining: 0}, usage)
}

func TestTrialStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	fresh := f.user(nil)
	st, err := f.trials.Status(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialStateNeverTrialed, st.State)
	assert.Nil(t, st.ExpiresAt)

	active := f.user(func(u *repository.User) {
		u.Email = "b@x.com"
		trialing(testStart.Add(-time.Hour), 72*time.Hour)(u)
	})
	st, err = f.trials.Status(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialStateTrialing, st.State)
	assert.Equal(t, int64(71*3600), st.RemainingSeconds)
	assert.True(t, st.AIChat.CanUse)

	f.advance(72 * time.Hour)
	st, err = f.trials.Status(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrialStateExpired, st.State)
	assert.Zero(t, st.RemainingSeconds)

	_, err = f.trials.Status(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
