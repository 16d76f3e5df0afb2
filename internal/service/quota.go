// Package service contains the business logic layer.
//
// This file implements the quota service for checking and enforcing
// per-user usage limits derived from the user's trial or plan.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

var errEntitlementUnavailable = errors.New("entitlement unavailable")

// Reservation is usage taken ahead of a gated action. Release it when the
// action fails. The zero value reserves nothing.
type Reservation struct {
	QuotaID      uuid.UUID
	ResourceType domain.ResourceType
	Amount       int
}

// IsZero reports whether nothing was reserved.
func (r Reservation) IsZero() bool {
	return r.QuotaID == uuid.Nil || r.Amount == 0
}

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines operations for checking and recording usage.
type QuotaService interface {
	// CheckUsageQuota answers whether the user can act now. Daily rows are
	// created lazily from the user's entitlement. Any storage error returns
	// domain.ClosedQuota().
	CheckUsageQuota(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) domain.QuotaStatus

	// IncrementUsage records amount units after an action succeeded. A
	// missing row is logged and ignored.
	IncrementUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, amount int) error

	// Reserve atomically takes amount units if they fit within the limit.
	// The returned status has CanUse true when the caller may proceed; when
	// the units do not fit it has CanUse false and the reservation is zero.
	Reserve(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, amount int) (Reservation, domain.QuotaStatus, error)

	// Release returns reserved units.
	Release(ctx context.Context, r Reservation) error
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store    repository.Store
	resolver EntitlementResolver
	trials   TrialService
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewQuotaService creates a new QuotaService. loc defines the calendar day of
// daily counters.
func NewQuotaService(store repository.Store, resolver EntitlementResolver, trials TrialService, loc *time.Location, logger *slog.Logger) QuotaService {
	if loc == nil {
		loc = time.Local
	}
	return &quotaService{
		store:    store,
		resolver: resolver,
		trials:   trials,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckUsageQuota checks the current row of a resource.
func (s *quotaService) CheckUsageQuota(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) domain.QuotaStatus {
	const op = "quota.check"

	row, found, err := s.currentRow(ctx, userID, rt, true)
	if err != nil {
		s.logger.Error("quota check failed",
			"op", op,
			"user_id", userID,
			"resource_type", rt,
			"error", err,
		)
		return domain.ClosedQuota()
	}
	if !found {
		return domain.UnlimitedQuota(0)
	}
	return repoQuotaToDomain(row).StatusOf()
}

// currentRow returns today's row for daily resources and the latest row
// otherwise. When create is set, today's row is brought in line with the
// limit the user's entitlement grants now: a missing row is created and an
// existing row whose limit differs is rewritten, keeping its used count.
// found is false when no limit applies and no row exists.
func (s *quotaService) currentRow(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, create bool) (repository.UsageQuota, bool, error) {
	if !rt.IsDaily() {
		row, err := s.store.GetLatestQuota(ctx, repository.GetLatestQuotaParams{
			UserID:       userID,
			ResourceType: string(rt),
		})
		if err != nil {
			if repository.IsNotFound(err) {
				return repository.UsageQuota{}, false, nil
			}
			return repository.UsageQuota{}, false, err
		}
		return row, true, nil
	}

	start, end := domain.DayBounds(s.now(), s.location)
	row, err := s.store.GetQuotaForPeriod(ctx, repository.GetQuotaForPeriodParams{
		UserID:       userID,
		ResourceType: string(rt),
		PeriodStart:  start,
	})
	found := err == nil
	if err != nil && !repository.IsNotFound(err) {
		return repository.UsageQuota{}, false, err
	}
	if !create {
		return row, found, nil
	}

	info := s.resolver.GetUserSubscriptionInfo(ctx, userID)
	if info.Source == domain.SourceError {
		return repository.UsageQuota{}, false, errEntitlementUnavailable
	}
	limit := domain.ToNullInt32(info.Permissions.DailyLimit(rt))

	if found {
		if row.LimitCount == limit {
			return row, true, nil
		}
		// The trial ended or the plan changed since the row was written.
		s.logger.Info("quota limit changed",
			"user_id", userID,
			"resource_type", rt,
			"source", info.Source,
			"old_limit", row.LimitCount,
			"new_limit", limit,
		)
		row, err = s.store.UpsertQuotaLimit(ctx, repository.UpsertQuotaLimitParams{
			UserID:       userID,
			ResourceType: string(rt),
			LimitCount:   limit,
			PeriodStart:  start,
			PeriodEnd:    domain.ToNullTime(&end),
		})
		if err != nil {
			return repository.UsageQuota{}, false, err
		}
		return row, true, nil
	}

	if !limit.Valid {
		return repository.UsageQuota{}, false, nil
	}

	row, err = s.store.EnsureQuota(ctx, repository.EnsureQuotaParams{
		UserID:       userID,
		ResourceType: string(rt),
		LimitCount:   limit,
		PeriodStart:  start,
		PeriodEnd:    domain.ToNullTime(&end),
	})
	if err != nil {
		return repository.UsageQuota{}, false, err
	}
	return row, true, nil
}

// IncrementUsage records usage after the gated action succeeded.
func (s *quotaService) IncrementUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, amount int) error {
	const op = "quota.increment"

	if amount < 1 {
		return domain.Invalid(op, "amount must be positive")
	}

	// The trial engine owns the chat counter while a trial runs.
	if rt == domain.ResourceDailyAIChat {
		repoUser, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return domain.NotFound(op, "user", userID.String())
			}
			return domain.Internal(err, op, "failed to load user")
		}
		if s.trials.IsInTrial(repoUserToDomain(repoUser)) {
			return s.trials.IncrementAIChatUsage(ctx, userID)
		}
	}

	row, found, err := s.currentRow(ctx, userID, rt, false)
	if err != nil {
		return domain.Internal(err, op, "failed to load quota")
	}
	if !found {
		s.logger.Warn("no quota row to increment",
			"user_id", userID,
			"resource_type", rt,
		)
		return nil
	}

	if _, err := s.store.IncrementQuota(ctx, repository.IncrementQuotaParams{
		ID:     row.ID,
		Amount: int32(amount),
	}); err != nil {
		return domain.Internal(err, op, "failed to record usage")
	}
	return nil
}

// Reserve takes usage with a single conditional update so concurrent
// requests cannot both pass the limit.
func (s *quotaService) Reserve(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, amount int) (Reservation, domain.QuotaStatus, error) {
	const op = "quota.reserve"

	if amount < 1 {
		return Reservation{}, domain.ClosedQuota(), domain.Invalid(op, "amount must be positive")
	}

	row, found, err := s.currentRow(ctx, userID, rt, true)
	if err != nil {
		return Reservation{}, domain.ClosedQuota(), domain.Internal(err, op, "failed to load quota")
	}
	if !found {
		return Reservation{}, domain.UnlimitedQuota(0), nil
	}

	updated, err := s.store.ConsumeQuota(ctx, repository.ConsumeQuotaParams{
		ID:     row.ID,
		Amount: int32(amount),
	})
	if err != nil {
		if !repository.IsNotFound(err) {
			return Reservation{}, domain.ClosedQuota(), domain.Internal(err, op, "failed to reserve quota")
		}
		st := repoQuotaToDomain(row).StatusOf()
		st.CanUse = false
		if latest, ok, rerr := s.currentRow(ctx, userID, rt, false); rerr == nil && ok {
			st = repoQuotaToDomain(latest).StatusOf()
			st.CanUse = false
		}
		metrics.QuotaDenials.WithLabelValues(string(rt)).Inc()
		s.logger.Info("usage quota exceeded",
			"user_id", userID,
			"resource_type", rt,
			"used", st.Used,
			"limit", st.Limit,
		)
		return Reservation{}, st, nil
	}

	st := repoQuotaToDomain(updated).StatusOf()
	st.CanUse = true
	return Reservation{QuotaID: updated.ID, ResourceType: rt, Amount: amount}, st, nil
}

func (s *quotaService) Release(ctx context.Context, r Reservation) error {
	const op = "quota.release"

	if r.IsZero() {
		return nil
	}
	if err := s.store.ReleaseQuota(ctx, repository.ReleaseQuotaParams{
		ID:     r.QuotaID,
		Amount: int32(r.Amount),
	}); err != nil {
		return domain.Internal(err, op, "failed to release quota")
	}
	return nil
}

var _ QuotaService = (*quotaService)(nil)
