package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

// EntitlementResolver produces the authoritative entitlement of a user.
// It never returns an error: failures resolve to a closed result with
// Source domain.SourceError.
type EntitlementResolver interface {
	GetUserSubscriptionInfo(ctx context.Context, userID uuid.UUID) domain.SubscriptionInfo
}

// PlanCache is an optional read-through cache of plan rows.
type PlanCache interface {
	GetPlan(ctx context.Context, id string) (*domain.Plan, bool)
	SetPlan(ctx context.Context, plan *domain.Plan)
	InvalidatePlan(ctx context.Context, id string)
}

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService resolves entitlements and keeps the subscription row
// in sync with the payment provider.
type SubscriptionService interface {
	EntitlementResolver

	// ResolveForUser resolves the entitlement of an already loaded user.
	ResolveForUser(ctx context.Context, user *domain.User) domain.SubscriptionInfo

	// ListPlans returns the active plans in display order.
	ListPlans(ctx context.Context) ([]domain.Plan, error)

	// GetPlan returns a plan by id, consulting the well-known defaults when
	// the plan table has no row.
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)

	// RefreshPlan drops the cached copy of a plan and reloads it from the
	// plan table. Call it after editing a plan row.
	RefreshPlan(ctx context.Context, id string) (*domain.Plan, error)

	// PlanForPrice maps a provider price id to its plan.
	PlanForPrice(ctx context.Context, priceID string) (*domain.Plan, error)

	// GetSubscription returns the subscription row of a user.
	GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.UserSubscription, error)

	// SyncSubscription writes the provider's view over the user's row.
	SyncSubscription(ctx context.Context, params domain.SyncSubscriptionParams) (*domain.UserSubscription, error)

	// MarkCanceled sets the row owning a provider subscription to canceled.
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt time.Time) error
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store  repository.Store
	trials TrialService
	cache  PlanCache
	logger *slog.Logger
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService. cache may be nil.
func NewSubscriptionService(store repository.Store, trials TrialService, cache PlanCache, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:  store,
		trials: trials,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// GetUserSubscriptionInfo loads the user and resolves their entitlement.
func (s *subscriptionService) GetUserSubscriptionInfo(ctx context.Context, userID uuid.UUID) domain.SubscriptionInfo {
	const op = "subscription.get_info"

	repoUser, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return s.failClosed(op, userID, err)
	}
	return s.ResolveForUser(ctx, repoUserToDomain(repoUser))
}

// ResolveForUser layers the three sources in strict order:
//  1. a running standalone trial short-circuits everything else
//  2. no subscription row resolves to the free tier
//  3. a subscription row resolves through its plan and status
func (s *subscriptionService) ResolveForUser(ctx context.Context, user *domain.User) domain.SubscriptionInfo {
	const op = "subscription.resolve"

	now := s.now()
	trialExpired := user.TrialState(now) == domain.TrialStateExpired

	if s.trials.IsInTrial(user) {
		return s.decide(domain.SubscriptionInfo{
			HasPermission:  true,
			Permissions:    s.trials.Permissions(),
			TrialAvailable: false,
			Source:         domain.SourceTrial,
		})
	}

	repoSub, err := s.store.GetSubscriptionByUserID(ctx, user.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.decide(domain.SubscriptionInfo{
				HasPermission:  false,
				Permissions:    domain.FreePermissions(),
				TrialAvailable: !user.HasUsedTrial,
				Reason:         domain.ReasonNoSubscription,
				Source:         domain.SourceFree,
				TrialExpired:   trialExpired,
			})
		}
		return s.failClosed(op, user.ID, err)
	}
	sub := repoSubscriptionToDomain(repoSub)

	plan, known, err := s.lookupPlan(ctx, sub.PlanID)
	if err != nil {
		return s.failClosed(op, user.ID, err)
	}
	if !known {
		metrics.UnknownPlans.Inc()
		s.logger.Error("subscription references unknown plan",
			"op", op,
			"user_id", user.ID,
			"plan_id", sub.PlanID,
		)
		return s.decide(domain.SubscriptionInfo{
			HasPermission:  false,
			Permissions:    domain.FreePermissions(),
			TrialAvailable: false,
			Subscription:   sub,
			Reason:         domain.ReasonUnknownPlan,
			Source:         domain.SourceUnknownPlan,
			TrialExpired:   trialExpired,
		})
	}

	if !sub.HasEffectiveAccess(now) {
		reason := domain.ReasonSubscriptionInactive
		if sub.IsExpired(now) {
			reason = domain.ReasonSubscriptionExpired
		}
		return s.decide(domain.SubscriptionInfo{
			HasPermission:  false,
			Permissions:    domain.RestrictedPermissions(),
			TrialAvailable: !user.HasUsedTrial,
			Subscription:   sub,
			Plan:           plan,
			Reason:         reason,
			Source:         domain.SourceRestricted,
			TrialExpired:   trialExpired,
		})
	}

	return s.decide(domain.SubscriptionInfo{
		HasPermission:  true,
		Permissions:    plan.Permissions(),
		TrialAvailable: false,
		Subscription:   sub,
		Plan:           plan,
		Source:         domain.SourceSubscription,
	})
}

func (s *subscriptionService) decide(info domain.SubscriptionInfo) domain.SubscriptionInfo {
	metrics.EntitlementDecisions.WithLabelValues(string(info.Source)).Inc()
	return info
}

// failClosed is the result of any lookup error: no permissions at all.
func (s *subscriptionService) failClosed(op string, userID uuid.UUID, err error) domain.SubscriptionInfo {
	s.logger.Error("entitlement lookup failed",
		"op", op,
		"user_id", userID,
		"error", err,
	)
	return s.decide(domain.SubscriptionInfo{
		HasPermission: false,
		Reason:        domain.ReasonInternalError,
		Source:        domain.SourceError,
	})
}

// lookupPlan resolves a plan id through the cache, the plan table and the
// well-known defaults. known is false only for an id none of them has.
func (s *subscriptionService) lookupPlan(ctx context.Context, id string) (*domain.Plan, bool, error) {
	if s.cache != nil {
		if plan, ok := s.cache.GetPlan(ctx, id); ok {
			return plan, true, nil
		}
	}

	row, err := s.store.GetPlanByID(ctx, id)
	if err == nil {
		plan, err := repoPlanToDomain(row)
		if err != nil {
			return nil, false, err
		}
		if s.cache != nil {
			s.cache.SetPlan(ctx, plan)
		}
		return plan, true, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, err
	}

	if plan, ok := domain.WellKnownPlan(id); ok {
		return &plan, true, nil
	}
	return nil, false, nil
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	const op = "subscription.list_plans"

	rows, err := s.store.ListActivePlans(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}

	plans := make([]domain.Plan, 0, len(rows))
	for _, row := range rows {
		plan, err := repoPlanToDomain(row)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to decode plan features")
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}

func (s *subscriptionService) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	const op = "subscription.get_plan"

	plan, known, err := s.lookupPlan(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load plan")
	}
	if !known {
		return nil, domain.NotFound(op, "plan", id)
	}
	return plan, nil
}

func (s *subscriptionService) RefreshPlan(ctx context.Context, id string) (*domain.Plan, error) {
	const op = "subscription.refresh_plan"

	if s.cache != nil {
		s.cache.InvalidatePlan(ctx, id)
	}
	plan, known, err := s.lookupPlan(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load plan")
	}
	if !known {
		return nil, domain.NotFound(op, "plan", id)
	}
	s.logger.Info("plan refreshed", "plan_id", id, "cached", s.cache != nil)
	return plan, nil
}

func (s *subscriptionService) PlanForPrice(ctx context.Context, priceID string) (*domain.Plan, error) {
	const op = "subscription.plan_for_price"

	row, err := s.store.GetPlanByStripePriceID(ctx, priceID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "plan", priceID)
		}
		return nil, domain.Internal(err, op, "failed to load plan")
	}
	plan, err := repoPlanToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode plan features")
	}
	return plan, nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.UserSubscription, error) {
	const op = "subscription.get"

	row, err := s.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "subscription", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return repoSubscriptionToDomain(row), nil
}

func (s *subscriptionService) SyncSubscription(ctx context.Context, params domain.SyncSubscriptionParams) (*domain.UserSubscription, error) {
	const op = "subscription.sync"

	if params.PlanID == "" {
		return nil, domain.Invalid(op, "plan id is required")
	}

	row, err := s.store.UpsertSubscription(ctx, repository.UpsertSubscriptionParams{
		UserID:               params.UserID,
		PlanID:               params.PlanID,
		Status:               string(params.Status),
		BillingInterval:      domain.ToNullString(params.BillingInterval),
		StripeSubscriptionID: domain.ToNullString(params.StripeSubscriptionID),
		CurrentPeriodStart:   domain.ToNullTime(params.CurrentPeriodStart),
		CurrentPeriodEnd:     domain.ToNullTime(params.CurrentPeriodEnd),
		TrialStart:           domain.ToNullTime(params.TrialStart),
		TrialEnd:             domain.ToNullTime(params.TrialEnd),
		CancelAtPeriodEnd:    params.CancelAtPeriodEnd,
		CanceledAt:           domain.ToNullTime(params.CanceledAt),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save subscription")
	}

	s.logger.Info("subscription synced",
		"user_id", params.UserID,
		"plan_id", params.PlanID,
		"status", params.Status,
	)
	return repoSubscriptionToDomain(row), nil
}

func (s *subscriptionService) MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt time.Time) error {
	const op = "subscription.mark_canceled"

	row, err := s.store.GetSubscriptionByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "subscription", stripeSubscriptionID)
		}
		return domain.Internal(err, op, "failed to load subscription")
	}

	sub := repoSubscriptionToDomain(row)
	_, err = s.SyncSubscription(ctx, domain.SyncSubscriptionParams{
		UserID:               sub.UserID,
		PlanID:               sub.PlanID,
		Status:               domain.SubscriptionStatusCanceled,
		BillingInterval:      sub.BillingInterval,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		TrialStart:           sub.TrialStart,
		TrialEnd:             sub.TrialEnd,
		CancelAtPeriodEnd:    false,
		CanceledAt:           &canceledAt,
	})
	return err
}

var _ SubscriptionService = (*subscriptionService)(nil)
