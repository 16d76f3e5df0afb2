// Package scheduler runs periodic maintenance: trial reminder emails, quota
// row pruning and stale job recovery.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// Defaults for Config.
const (
	DefaultReminderWindow = 24 * time.Hour
	DefaultQuotaRetention = 30 * 24 * time.Hour
	DefaultDailyAt        = "03:00"
)

// StaleJobRecoverer resets abandoned running jobs.
type StaleJobRecoverer interface {
	RecoverStaleJobs(ctx context.Context) (int64, error)
}

// Config tunes the maintenance tasks.
type Config struct {
	// ReminderWindow selects trials ending within this window.
	ReminderWindow time.Duration
	// QuotaRetention is how long daily quota rows are kept.
	QuotaRetention time.Duration
	// DailyAt is the UTC time of day ("HH:MM") for the daily tasks.
	DailyAt string
}

// Maintenance schedules and runs the periodic tasks.
type Maintenance struct {
	store     repository.Store
	recoverer StaleJobRecoverer
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	scheduler *gocron.Scheduler
}

// New creates the maintenance scheduler. recoverer may be nil when no
// worker runs in this process.
func New(store repository.Store, recoverer StaleJobRecoverer, config Config, logger *slog.Logger) *Maintenance {
	if config.ReminderWindow <= 0 {
		config.ReminderWindow = DefaultReminderWindow
	}
	if config.QuotaRetention <= 0 {
		config.QuotaRetention = DefaultQuotaRetention
	}
	if config.DailyAt == "" {
		config.DailyAt = DefaultDailyAt
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Maintenance{
		store:     store,
		recoverer: recoverer,
		config:    config,
		logger:    logger,
		now:       time.Now,
		scheduler: s,
	}
}

// Start registers the tasks and runs them in the background until ctx is
// done or Stop is called.
func (m *Maintenance) Start(ctx context.Context) error {
	if _, err := m.scheduler.Every(1).Hour().Do(m.run(ctx, "trial_reminders", func(ctx context.Context) error {
		_, err := m.EnqueueTrialReminders(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("schedule trial reminders: %w", err)
	}

	if _, err := m.scheduler.Every(1).Day().At(m.config.DailyAt).Do(m.run(ctx, "daily_maintenance", m.daily)); err != nil {
		return fmt.Errorf("schedule daily maintenance: %w", err)
	}

	m.scheduler.StartAsync()
	m.logger.Info("maintenance scheduler started", "daily_at", m.config.DailyAt)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop terminates all scheduled tasks.
func (m *Maintenance) Stop() {
	if m.scheduler.IsRunning() {
		m.scheduler.Stop()
		m.logger.Info("maintenance scheduler stopped")
	}
}

func (m *Maintenance) run(ctx context.Context, name string, task func(context.Context) error) func() {
	return func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			m.logger.Error("maintenance task failed", "task", name, "error", err)
			return
		}
		m.logger.Debug("maintenance task finished", "task", name, "duration_ms", time.Since(start).Milliseconds())
	}
}

func (m *Maintenance) daily(ctx context.Context) error {
	if _, err := m.PruneQuotas(ctx); err != nil {
		return err
	}
	if m.recoverer != nil {
		if _, err := m.recoverer.RecoverStaleJobs(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueTrialReminders enqueues one expiring-trial email per user whose
// trial ends within the reminder window. The reminder is claimed and the
// job enqueued in one transaction, so each trial is reminded at most once.
func (m *Maintenance) EnqueueTrialReminders(ctx context.Context) (int, error) {
	now := m.now()
	users, err := m.store.ListUsersWithExpiringTrials(ctx, repository.ListUsersWithExpiringTrialsParams{
		Now:    now,
		Before: now.Add(m.config.ReminderWindow),
	})
	if err != nil {
		return 0, fmt.Errorf("list expiring trials: %w", err)
	}

	enqueued := 0
	for _, u := range users {
		err := m.store.ExecTx(ctx, func(q repository.Querier) error {
			claimed, err := q.MarkTrialReminderSent(ctx, repository.MarkTrialReminderSentParams{ID: u.ID, SentAt: now})
			if err != nil || !claimed {
				return err
			}
			if _, err := worker.EnqueueTrialEmail(ctx, q, u.ID, worker.TrialEmailExpiring); err != nil {
				return err
			}
			enqueued++
			return nil
		})
		if err != nil {
			m.logger.Error("failed to enqueue trial reminder", "user_id", u.ID, "error", err)
		}
	}

	if enqueued > 0 {
		m.logger.Info("trial reminders enqueued", "count", enqueued)
	}
	return enqueued, nil
}

// PruneQuotas deletes daily quota rows older than the retention period.
func (m *Maintenance) PruneQuotas(ctx context.Context) (int64, error) {
	before := m.now().Add(-m.config.QuotaRetention)
	n, err := m.store.DeleteDailyQuotasBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("prune quotas: %w", err)
	}
	if n > 0 {
		m.logger.Info("pruned daily quota rows", "count", n, "before", before)
	}
	return n, nil
}
