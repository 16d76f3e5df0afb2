package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/ai/mock"
	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/repository/repotest"
	"github.com/DukeRupert/toeicprep/internal/service"
)

const testAdminEmail = "admin@example.com"

// fixture wires real services over one in-memory store. Routes are mounted
// behind a stand-in for the auth middleware that signs in the current user.
type fixture struct {
	t     *testing.T
	store *repotest.Store
	ai    *mock.Provider

	users    service.UserService
	trials   service.TrialService
	subs     service.SubscriptionService
	quotas   service.QuotaService
	vocab    service.VocabularyService
	practice service.PracticeService
	admin    service.AdminService

	current *domain.User
	gated   []domain.Feature
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := discardLogger()
	f := &fixture{
		t:     t,
		store: repotest.New(),
		ai:    mock.New(logger),
		mux:   http.NewServeMux(),
	}

	trialCfg := service.DefaultTrialConfig()
	trialCfg.Location = time.UTC

	f.users = service.NewUserService(f.store, auth.NewTokenIssuer("test-secret", time.Hour), logger)
	f.trials = service.NewTrialService(f.store, trialCfg, logger)
	f.subs = service.NewSubscriptionService(f.store, f.trials, nil, logger)
	f.quotas = service.NewQuotaService(f.store, f.subs, f.trials, time.UTC, logger)
	f.vocab = service.NewVocabularyService(f.store, f.subs, time.UTC, "/pricing", logger)
	f.practice = service.NewPracticeService(f.ai, logger)
	f.admin = service.NewAdminService(f.store, f.subs, f.trials, []string{testAdminEmail}, time.UTC, logger)

	return f
}

// requireUser signs in f.current, or answers 401 when nobody is signed in.
func (f *fixture) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.current == nil {
			UnauthorizedResponse(w, r, discardLogger())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), f.current)))
	})
}

// gate records the features a route asks for and lets the request through.
func (f *fixture) gate(feature domain.Feature, _ domain.ResourceType) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.gated = append(f.gated, feature)
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// signIn creates a user and makes it the caller of later requests.
func (f *fixture) signIn(mod func(u *repository.User)) *domain.User {
	f.t.Helper()

	row := repository.User{Email: "learner@example.com", PasswordHash: "hash"}
	if mod != nil {
		mod(&row)
	}
	row = f.store.PutUser(row)

	user, err := f.users.GetByID(context.Background(), row.ID)
	require.NoError(f.t, err)
	f.current = user
	return user
}

func (f *fixture) do(method, target string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4321"

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a JSON response body into a value of type T.
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code      string            `json:"code"`
		ErrorCode string            `json:"errorCode"`
		Reason    string            `json:"reason"`
		Message   string            `json:"message"`
		Fields    map[string]string `json:"fields"`
	} `json:"error"`
}
