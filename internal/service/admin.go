package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

// AdminStats is the operator dashboard snapshot.
type AdminStats struct {
	Users               int64            `json:"users"`
	ActiveTrials        int64            `json:"activeTrials"`
	TrialsLast7Days     int64            `json:"trialsLast7Days"`
	SubscriptionsByStat map[string]int64 `json:"subscriptionsByStatus"`
	UsageToday          map[string]int64 `json:"usageToday"`
	PendingJobs         int64            `json:"pendingJobs"`
	GeneratedAt         time.Time        `json:"generatedAt"`
}

// UserEntitlement pairs a user with their resolved entitlement.
type UserEntitlement struct {
	User        *domain.User
	Entitlement domain.SubscriptionInfo
	Trial       *domain.TrialStatus
}

// =============================================================================
// Interface Definition
// =============================================================================

// AdminService backs the operator endpoints.
type AdminService interface {
	// IsAdmin reports whether email is on the configured admin list.
	IsAdmin(email string) bool

	// Stats collects counts across users, trials, subscriptions and usage.
	Stats(ctx context.Context) (*AdminStats, error)

	// UserEntitlement resolves the entitlement of any user for support.
	UserEntitlement(ctx context.Context, userID uuid.UUID) (*UserEntitlement, error)

	// RefreshPlan reloads an edited plan row into the plan cache.
	RefreshPlan(ctx context.Context, planID string) (*domain.Plan, error)
}

// =============================================================================
// Implementation
// =============================================================================

type adminService struct {
	store    repository.Store
	subs     SubscriptionService
	trials   TrialService
	admins   map[string]struct{}
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdminService creates a new AdminService. adminEmails are matched
// case-insensitively.
func NewAdminService(store repository.Store, subs SubscriptionService, trials TrialService, adminEmails []string, loc *time.Location, logger *slog.Logger) AdminService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	if loc == nil {
		loc = time.Local
	}
	return &adminService{
		store:    store,
		subs:     subs,
		trials:   trials,
		admins:   admins,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *adminService) IsAdmin(email string) bool {
	_, ok := s.admins[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (s *adminService) Stats(ctx context.Context) (*AdminStats, error) {
	const op = "admin.stats"

	now := s.now()
	dayStart, _ := domain.DayBounds(now, s.location)
	stats := &AdminStats{
		SubscriptionsByStat: map[string]int64{},
		UsageToday:          map[string]int64{},
		GeneratedAt:         now,
	}

	var err error
	if stats.Users, err = s.store.CountUsers(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to count users")
	}
	if stats.ActiveTrials, err = s.store.CountActiveTrials(ctx, now); err != nil {
		return nil, domain.Internal(err, op, "failed to count active trials")
	}
	if stats.TrialsLast7Days, err = s.store.CountTrialsStartedSince(ctx, now.AddDate(0, 0, -7)); err != nil {
		return nil, domain.Internal(err, op, "failed to count recent trials")
	}
	if stats.PendingJobs, err = s.store.CountPendingJobs(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to count pending jobs")
	}

	subRows, err := s.store.CountSubscriptionsByStatus(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count subscriptions")
	}
	for _, r := range subRows {
		stats.SubscriptionsByStat[r.Status] = r.Count
	}

	usageRows, err := s.store.SumUsageByResourceSince(ctx, dayStart)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to sum usage")
	}
	for _, r := range usageRows {
		stats.UsageToday[r.ResourceType] = r.Total
	}

	return stats, nil
}

func (s *adminService) UserEntitlement(ctx context.Context, userID uuid.UUID) (*UserEntitlement, error) {
	const op = "admin.user_entitlement"

	row, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	user := repoUserToDomain(row)
	user.PasswordHash = ""

	trial, err := s.trials.Status(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserEntitlement{
		User:        user,
		Entitlement: s.subs.ResolveForUser(ctx, user),
		Trial:       trial,
	}, nil
}

func (s *adminService) RefreshPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	const op = "admin.refresh_plan"

	if strings.TrimSpace(planID) == "" {
		return nil, domain.Invalid(op, "plan id is required")
	}
	return s.subs.RefreshPlan(ctx, planID)
}

var _ AdminService = (*adminService)(nil)
