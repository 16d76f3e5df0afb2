package service

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/repository/repotest"
)

var testStart = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires the core services over one in-memory store and a clock the
// test can move.
type fixture struct {
	t     *testing.T
	store *repotest.Store
	now   time.Time

	trials *trialService
	subs   *subscriptionService
	quotas *quotaService
	vocab  *vocabularyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{t: t, store: repotest.New(), now: testStart}
	clock := func() time.Time { return f.now }
	logger := discardLogger()

	cfg := DefaultTrialConfig()
	cfg.Location = time.UTC

	f.trials = NewTrialService(f.store, cfg, logger).(*trialService)
	f.trials.now = clock

	f.subs = NewSubscriptionService(f.store, f.trials, nil, logger).(*subscriptionService)
	f.subs.now = clock

	f.quotas = NewQuotaService(f.store, f.subs, f.trials, time.UTC, logger).(*quotaService)
	f.quotas.now = clock

	f.vocab = NewVocabularyService(f.store, f.subs, time.UTC, "/pricing", logger).(*vocabularyService)
	f.vocab.now = clock

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// user stores a user, applying mod first.
func (f *fixture) user(mod func(u *repository.User)) repository.User {
	u := repository.User{
		Email:        "learner@example.com",
		PasswordHash: "hash",
	}
	if mod != nil {
		mod(&u)
	}
	return f.store.PutUser(u)
}

// trialing marks u as inside a trial that started at start.
func trialing(start time.Time, d time.Duration) func(u *repository.User) {
	return func(u *repository.User) {
		u.HasUsedTrial = true
		u.TrialStartedAt = sql.NullTime{Time: start, Valid: true}
		u.TrialExpiresAt = sql.NullTime{Time: start.Add(d), Valid: true}
	}
}

func planRow(id string, features string, practice, chat, words *int) repository.SubscriptionPlan {
	return repository.SubscriptionPlan{
		ID:                 id,
		Name:               id,
		Features:           pqtype.NullRawMessage{RawMessage: json.RawMessage(features), Valid: features != ""},
		DailyPracticeLimit: nullInt(practice),
		DailyAiChatLimit:   nullInt(chat),
		MaxVocabularyWords: nullInt(words),
		IsActive:           true,
	}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// subscribe gives userID a subscription row.
func (f *fixture) subscribe(userID uuid.UUID, planID, status string, periodEnd time.Time) {
	f.store.PutSubscription(repository.UserSubscription{
		UserID:           userID,
		PlanID:           planID,
		Status:           status,
		CurrentPeriodEnd: sql.NullTime{Time: periodEnd, Valid: !periodEnd.IsZero()},
	})
}
