package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

// TrialConfig holds the trial engine settings.
type TrialConfig struct {
	Duration         time.Duration
	DailyAIChatLimit int
	// IPWindow and IPMaxStarts cap trial starts from one address.
	IPWindow    time.Duration
	IPMaxStarts int
	// Location defines the calendar day for quota rows.
	Location *time.Location
}

// DefaultTrialConfig returns a three day trial with 20 chat messages a day.
func DefaultTrialConfig() TrialConfig {
	return TrialConfig{
		Duration:         72 * time.Hour,
		DailyAIChatLimit: 20,
		IPWindow:         7 * 24 * time.Hour,
		IPMaxStarts:      3,
		Location:         time.Local,
	}
}

// =============================================================================
// Interface Definition
// =============================================================================

// TrialService grants one time-boxed trial per user, independent of billing.
type TrialService interface {
	// CanStartTrial returns a *domain.TrialNotAllowedError when the user may
	// not start a trial.
	CanStartTrial(ctx context.Context, userID uuid.UUID, email, ipAddress string) error

	// StartTrial re-checks eligibility and starts the trial in one
	// transaction. Today's quota rows are initialized with trial limits.
	StartTrial(ctx context.Context, userID uuid.UUID, email, ipAddress string) (*domain.TrialRecord, error)

	// IsInTrial reports whether user's trial is running. No I/O.
	IsInTrial(user *domain.User) bool

	// Permissions returns the constant trial permission set.
	Permissions() domain.PermissionSet

	// CheckAIChatUsage reports today's chat allowance.
	CheckAIChatUsage(ctx context.Context, userID uuid.UUID) (domain.TrialAIChatUsage, error)

	// IncrementAIChatUsage counts one chat message against today's row,
	// creating it with the trial limit if absent.
	IncrementAIChatUsage(ctx context.Context, userID uuid.UUID) error

	// Status returns the trial read model of a user.
	Status(ctx context.Context, userID uuid.UUID) (*domain.TrialStatus, error)
}

// =============================================================================
// Implementation
// =============================================================================

type trialService struct {
	store  repository.Store
	config TrialConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTrialService creates a new TrialService.
func NewTrialService(store repository.Store, config TrialConfig, logger *slog.Logger) TrialService {
	if config.Location == nil {
		config.Location = time.Local
	}
	return &trialService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func (s *trialService) CanStartTrial(ctx context.Context, userID uuid.UUID, email, ipAddress string) error {
	const op = "trial.can_start"

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "user", userID.String())
		}
		return domain.Internal(err, op, "failed to load user")
	}
	return s.checkEligibility(ctx, s.store, op, user, normalizeEmail(email), strings.TrimSpace(ipAddress))
}

// checkEligibility applies the three rejection rules in order.
func (s *trialService) checkEligibility(ctx context.Context, q repository.Querier, op string, user repository.User, email, ip string) error {
	if user.HasUsedTrial || user.TrialExpiresAt.Valid {
		return s.reject(op, user.ID, domain.TrialReasonAlreadyUsed)
	}

	if email != "" {
		n, err := q.CountUsedTrialsByEmail(ctx, repository.CountUsedTrialsByEmailParams{
			TrialEmail:    email,
			ExcludeUserID: user.ID,
		})
		if err != nil {
			return domain.Internal(err, op, "failed to check trial email")
		}
		if n > 0 {
			return s.reject(op, user.ID, domain.TrialReasonEmailReused)
		}
	}

	if ip != "" {
		n, err := q.CountTrialStartsByIP(ctx, repository.CountTrialStartsByIPParams{
			TrialIpAddress: ip,
			Since:          s.now().Add(-s.config.IPWindow),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to check trial address")
		}
		if n >= int64(s.config.IPMaxStarts) {
			return s.reject(op, user.ID, domain.TrialReasonIPAbuse)
		}
	}

	return nil
}

func (s *trialService) reject(op string, userID uuid.UUID, reason domain.TrialNotAllowedReason) error {
	metrics.TrialRejections.WithLabelValues(string(reason)).Inc()
	s.logger.Info("trial not allowed", "user_id", userID, "reason", reason)
	return &domain.TrialNotAllowedError{Op: op, Reason: reason}
}

func (s *trialService) StartTrial(ctx context.Context, userID uuid.UUID, email, ipAddress string) (*domain.TrialRecord, error) {
	const op = "trial.start"

	email = normalizeEmail(email)
	ipAddress = strings.TrimSpace(ipAddress)
	now := s.now()
	expiresAt := now.Add(s.config.Duration)
	dayStart, dayEnd := domain.DayBounds(now, s.config.Location)

	var record *domain.TrialRecord
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		// Concurrent starts sharing an email or address queue here so the
		// counts below see each other's writes.
		if email != "" {
			if err := q.LockTrialKey(ctx, "trial:email:"+email); err != nil {
				return domain.Internal(err, op, "failed to lock trial email")
			}
		}
		if ipAddress != "" {
			if err := q.LockTrialKey(ctx, "trial:ip:"+ipAddress); err != nil {
				return domain.Internal(err, op, "failed to lock trial address")
			}
		}

		user, err := q.GetUserByID(ctx, userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return domain.NotFound(op, "user", userID.String())
			}
			return domain.Internal(err, op, "failed to load user")
		}

		if err := s.checkEligibility(ctx, q, op, user, email, ipAddress); err != nil {
			return err
		}

		started, err := q.StartUserTrial(ctx, repository.StartUserTrialParams{
			ID:             userID,
			TrialStartedAt: now,
			TrialExpiresAt: expiresAt,
			TrialEmail:     email,
			TrialIpAddress: ipAddress,
		})
		if err != nil {
			if repository.IsNotFound(err) {
				return s.reject(op, userID, domain.TrialReasonAlreadyUsed)
			}
			return domain.Internal(err, op, "failed to start trial")
		}

		limits := []struct {
			rt    domain.ResourceType
			limit *int
		}{
			{domain.ResourceDailyAIChat, domain.IntPtr(s.config.DailyAIChatLimit)},
			{domain.ResourceDailyPractice, nil},
		}
		for _, l := range limits {
			_, err := q.UpsertQuotaLimit(ctx, repository.UpsertQuotaLimitParams{
				UserID:       userID,
				ResourceType: string(l.rt),
				LimitCount:   domain.ToNullInt32(l.limit),
				PeriodStart:  dayStart,
				PeriodEnd:    domain.ToNullTime(&dayEnd),
			})
			if err != nil {
				return domain.Internal(err, op, "failed to initialize trial quota")
			}
		}

		record = &domain.TrialRecord{
			UserID:    started.ID,
			StartedAt: now,
			ExpiresAt: expiresAt,
			Email:     email,
			IPAddress: ipAddress,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TrialsStarted.Inc()
	s.logger.Info("trial started", "user_id", userID, "expires_at", expiresAt)

	return record, nil
}

func (s *trialService) IsInTrial(user *domain.User) bool {
	return user != nil && user.IsInTrial(s.now())
}

func (s *trialService) Permissions() domain.PermissionSet {
	return domain.TrialPermissions(s.config.DailyAIChatLimit)
}

func (s *trialService) CheckAIChatUsage(ctx context.Context, userID uuid.UUID) (domain.TrialAIChatUsage, error) {
	const op = "trial.check_ai_chat"

	dayStart, _ := domain.DayBounds(s.now(), s.config.Location)
	row, err := s.store.GetQuotaForPeriod(ctx, repository.GetQuotaForPeriodParams{
		UserID:       userID,
		ResourceType: string(domain.ResourceDailyAIChat),
		PeriodStart:  dayStart,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.TrialAIChatUsage{CanUse: true, Remaining: domain.UnlimitedRemaining}, nil
		}
		return domain.TrialAIChatUsage{}, domain.Internal(err, op, "failed to load chat quota")
	}

	st := repoQuotaToDomain(row).StatusOf()
	if st.Remaining == nil {
		return domain.TrialAIChatUsage{CanUse: true, Remaining: domain.UnlimitedRemaining}, nil
	}
	return domain.TrialAIChatUsage{CanUse: st.CanUse, Remaining: *st.Remaining}, nil
}

func (s *trialService) IncrementAIChatUsage(ctx context.Context, userID uuid.UUID) error {
	const op = "trial.increment_ai_chat"

	dayStart, dayEnd := domain.DayBounds(s.now(), s.config.Location)
	_, err := s.store.UpsertIncrementQuota(ctx, repository.UpsertIncrementQuotaParams{
		UserID:       userID,
		ResourceType: string(domain.ResourceDailyAIChat),
		LimitCount:   domain.ToNullInt32(domain.IntPtr(s.config.DailyAIChatLimit)),
		PeriodStart:  dayStart,
		PeriodEnd:    domain.ToNullTime(&dayEnd),
		Amount:       1,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to record chat usage")
	}
	return nil
}

func (s *trialService) Status(ctx context.Context, userID uuid.UUID) (*domain.TrialStatus, error) {
	const op = "trial.status"

	repoUser, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	user := repoUserToDomain(repoUser)
	now := s.now()

	status := &domain.TrialStatus{
		State:     user.TrialState(now),
		StartedAt: user.TrialStartedAt,
		ExpiresAt: user.TrialExpiresAt,
	}
	if status.State != domain.TrialStateTrialing {
		return status, nil
	}

	status.RemainingSeconds = int64(user.TrialExpiresAt.Sub(now) / time.Second)
	usage, err := s.CheckAIChatUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	status.AIChat = usage
	return status, nil
}

var _ TrialService = (*trialService)(nil)
