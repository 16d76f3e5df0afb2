package middleware

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/repository/repotest"
	"github.com/DukeRupert/toeicprep/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires the real services over an in-memory store.
type testEnv struct {
	store  *repotest.Store
	tokens *auth.TokenIssuer
	users  service.UserService
	admins service.AdminService
	subs   service.SubscriptionService
	quotas service.QuotaService
	authMw *AuthMiddleware
	gate   *FeatureGate
}

func newTestEnv(t *testing.T, adminEmails ...string) *testEnv {
	t.Helper()
	logger := discardLogger()

	store := repotest.New()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	cfg := service.DefaultTrialConfig()
	cfg.Location = time.UTC
	trials := service.NewTrialService(store, cfg, logger)
	subs := service.NewSubscriptionService(store, trials, nil, logger)
	quotas := service.NewQuotaService(store, subs, trials, time.UTC, logger)
	users := service.NewUserService(store, tokens, logger)
	admins := service.NewAdminService(store, subs, trials, adminEmails, time.UTC, logger)

	return &testEnv{
		store:  store,
		tokens: tokens,
		users:  users,
		admins: admins,
		subs:   subs,
		quotas: quotas,
		authMw: NewAuthMiddleware(users, admins, logger),
		gate:   NewFeatureGate(subs, quotas, "/pricing", logger),
	}
}

// user stores a user and returns it with a signed bearer token.
func (e *testEnv) user(t *testing.T, email string, mod func(u *repository.User)) (*domain.User, string) {
	t.Helper()
	row := repository.User{Email: email, PasswordHash: "hash"}
	if mod != nil {
		mod(&row)
	}
	row = e.store.PutUser(row)

	token, _, err := e.tokens.Issue(row.ID, row.Email)
	require.NoError(t, err)
	return &domain.User{ID: row.ID, Email: row.Email, HasUsedTrial: row.HasUsedTrial,
		TrialStartedAt: nullTime(row.TrialStartedAt), TrialExpiresAt: nullTime(row.TrialExpiresAt)}, token
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func inTrial(u *repository.User) {
	start := time.Now().Add(-time.Hour)
	u.HasUsedTrial = true
	u.TrialStartedAt = sql.NullTime{Time: start, Valid: true}
	u.TrialExpiresAt = sql.NullTime{Time: start.Add(72 * time.Hour), Valid: true}
}

func trialOver(u *repository.User) {
	start := time.Now().Add(-96 * time.Hour)
	u.HasUsedTrial = true
	u.TrialStartedAt = sql.NullTime{Time: start, Valid: true}
	u.TrialExpiresAt = sql.NullTime{Time: start.Add(72 * time.Hour), Valid: true}
}

// withUser puts user straight into the request context.
func withUser(r *http.Request, user *domain.User) *http.Request {
	return r.WithContext(auth.SetUser(r.Context(), user))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}
