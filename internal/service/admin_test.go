package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

func newTestAdminService(f *fixture, admins ...string) *adminService {
	svc := NewAdminService(f.store, f.subs, f.trials, admins, time.UTC, discardLogger()).(*adminService)
	svc.now = func() time.Time { return f.now }
	return svc
}

func TestAdminService_IsAdmin(t *testing.T) {
	svc := newTestAdminService(newFixture(t), " Ops@Example.com ", "")

	assert.True(t, svc.IsAdmin("ops@example.com"))
	assert.True(t, svc.IsAdmin("OPS@example.com "))
	assert.False(t, svc.IsAdmin("learner@example.com"))
	assert.False(t, svc.IsAdmin(""))
}

func TestAdminService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.user(trialing(f.now.Add(-time.Hour), 72*time.Hour))
	f.user(trialing(f.now.AddDate(0, 0, -10), 72*time.Hour))
	paid := f.user(func(u *repository.User) { u.Email = "paid@example.com" })
	f.subscribe(paid.ID, "pro", "active", f.now.AddDate(0, 1, 0))
	lapsed := f.user(func(u *repository.User) { u.Email = "lapsed@example.com" })
	f.subscribe(lapsed.ID, "pro", "canceled", time.Time{})

	dayStart, dayEnd := domain.DayBounds(f.now, time.UTC)
	f.store.PutQuota(repository.UsageQuota{
		UserID: active.ID, ResourceType: "daily_ai_chat", UsedCount: 4,
		PeriodStart: dayStart, PeriodEnd: domain.ToNullTime(&dayEnd),
	})
	f.store.PutQuota(repository.UsageQuota{
		UserID: paid.ID, ResourceType: "daily_ai_chat", UsedCount: 3,
		PeriodStart: dayStart, PeriodEnd: domain.ToNullTime(&dayEnd),
	})
	yesterdayEnd := dayEnd.AddDate(0, 0, -1)
	f.store.PutQuota(repository.UsageQuota{
		UserID: paid.ID, ResourceType: "daily_practice", UsedCount: 9,
		PeriodStart: dayStart.AddDate(0, 0, -1), PeriodEnd: domain.ToNullTime(&yesterdayEnd),
	})

	stats, err := newTestAdminService(f).Stats(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Users)
	assert.EqualValues(t, 1, stats.ActiveTrials)
	assert.EqualValues(t, 1, stats.TrialsLast7Days)
	assert.Equal(t, map[string]int64{"active": 1, "canceled": 1}, stats.SubscriptionsByStat)
	assert.Equal(t, map[string]int64{"daily_ai_chat": 7}, stats.UsageToday)
	assert.Equal(t, f.now, stats.GeneratedAt)
}

func TestAdminService_Stats_StorageError(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("CountUsers", errors.New("connection reset"))

	_, err := newTestAdminService(f).Stats(context.Background())
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestAdminService_UserEntitlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestAdminService(f)

	u := f.user(trialing(f.now.Add(-time.Hour), 72*time.Hour))

	got, err := svc.UserEntitlement(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.User.ID)
	assert.Empty(t, got.User.PasswordHash)
	assert.Equal(t, domain.SourceTrial, got.Entitlement.Source)
	assert.True(t, got.Entitlement.HasPermission)
	assert.Equal(t, domain.TrialStateTrialing, got.Trial.State)

	_, err = svc.UserEntitlement(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
