package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Querier is the full statement set. Services depend on it so tests can swap
// in the in-memory store from repotest.
type Querier interface {
	// Users
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error)
	UpdateUserStripeCustomerID(ctx context.Context, arg UpdateUserStripeCustomerIDParams) error
	CountUsedTrialsByEmail(ctx context.Context, arg CountUsedTrialsByEmailParams) (int64, error)
	CountTrialStartsByIP(ctx context.Context, arg CountTrialStartsByIPParams) (int64, error)
	LockTrialKey(ctx context.Context, key string) error
	StartUserTrial(ctx context.Context, arg StartUserTrialParams) (User, error)
	ListUsersWithExpiringTrials(ctx context.Context, arg ListUsersWithExpiringTrialsParams) ([]User, error)
	MarkTrialReminderSent(ctx context.Context, arg MarkTrialReminderSentParams) (bool, error)
	CountUsers(ctx context.Context) (int64, error)
	CountActiveTrials(ctx context.Context, now time.Time) (int64, error)
	CountTrialsStartedSince(ctx context.Context, since time.Time) (int64, error)

	// Plans and subscriptions
	GetPlanByID(ctx context.Context, id string) (SubscriptionPlan, error)
	ListActivePlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetPlanByStripePriceID(ctx context.Context, priceID string) (SubscriptionPlan, error)
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (UserSubscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (UserSubscription, error)
	UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (UserSubscription, error)
	CountSubscriptionsByStatus(ctx context.Context) ([]CountSubscriptionsByStatusRow, error)

	// Usage quotas
	GetQuotaForPeriod(ctx context.Context, arg GetQuotaForPeriodParams) (UsageQuota, error)
	GetLatestQuota(ctx context.Context, arg GetLatestQuotaParams) (UsageQuota, error)
	EnsureQuota(ctx context.Context, arg EnsureQuotaParams) (UsageQuota, error)
	UpsertQuotaLimit(ctx context.Context, arg UpsertQuotaLimitParams) (UsageQuota, error)
	IncrementQuota(ctx context.Context, arg IncrementQuotaParams) (UsageQuota, error)
	ConsumeQuota(ctx context.Context, arg ConsumeQuotaParams) (UsageQuota, error)
	ReleaseQuota(ctx context.Context, arg ReleaseQuotaParams) error
	UpsertIncrementQuota(ctx context.Context, arg UpsertIncrementQuotaParams) (UsageQuota, error)
	DeleteDailyQuotasBefore(ctx context.Context, before time.Time) (int64, error)
	SumUsageByResourceSince(ctx context.Context, since time.Time) ([]SumUsageByResourceSinceRow, error)

	// Vocabulary
	CreateVocabularyItem(ctx context.Context, arg CreateVocabularyItemParams) (VocabularyItem, error)
	GetVocabularyItem(ctx context.Context, arg GetVocabularyItemParams) (VocabularyItem, error)
	ListVocabularyItems(ctx context.Context, arg ListVocabularyItemsParams) ([]VocabularyItem, error)
	ListAllVocabularyItems(ctx context.Context, userID uuid.UUID) ([]VocabularyItem, error)
	ListDueVocabularyItems(ctx context.Context, arg ListDueVocabularyItemsParams) ([]VocabularyItem, error)
	CountVocabularyItems(ctx context.Context, userID uuid.UUID) (int64, error)
	GetVocabularyStats(ctx context.Context, arg GetVocabularyStatsParams) (GetVocabularyStatsRow, error)
	UpdateVocabularyReview(ctx context.Context, arg UpdateVocabularyReviewParams) (VocabularyItem, error)
	UpdateVocabularyItem(ctx context.Context, arg UpdateVocabularyItemParams) (VocabularyItem, error)
	DeleteVocabularyItem(ctx context.Context, arg DeleteVocabularyItemParams) (int64, error)

	// Jobs
	EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error)
	DequeueJob(ctx context.Context) (Job, error)
	UpdateJobStarted(ctx context.Context, id uuid.UUID) error
	UpdateJobCompleted(ctx context.Context, id uuid.UUID) error
	UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error
	RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error)
	CountPendingJobs(ctx context.Context) (int64, error)
}

var _ Querier = (*Queries)(nil)
var _ Store = (*SQLStore)(nil)
