package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// TrialHandler serves the free trial endpoints.
//
// Routes handled:
//   - GET  /api/trial/eligibility -> Eligibility
//   - POST /api/trial/start       -> Start
//   - GET  /api/trial/status      -> Status
type TrialHandler struct {
	trials service.TrialService
	jobs   worker.Enqueuer
	logger *slog.Logger
}

// NewTrialHandler creates a new TrialHandler. jobs receives the welcome
// email of a started trial.
func NewTrialHandler(trials service.TrialService, jobs worker.Enqueuer, logger *slog.Logger) *TrialHandler {
	return &TrialHandler{
		trials: trials,
		jobs:   jobs,
		logger: logger,
	}
}

// RegisterRoutes registers trial routes. limitStart throttles trial starts
// per client IP.
func (h *TrialHandler) RegisterRoutes(mux *http.ServeMux, requireUser, limitStart Middleware) {
	mux.Handle("GET /api/trial/eligibility", requireUser(http.HandlerFunc(h.Eligibility)))
	mux.Handle("POST /api/trial/start", limitStart(requireUser(http.HandlerFunc(h.Start))))
	mux.Handle("GET /api/trial/status", requireUser(http.HandlerFunc(h.Status)))
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Eligibility reports whether the caller may start a trial from this
// address.
func (h *TrialHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	err := h.trials.CanStartTrial(r.Context(), user.ID, user.Email, ClientIP(r))
	if err == nil {
		writeJSON(w, http.StatusOK, eligibilityResponse{Eligible: true})
		return
	}

	var te *domain.TrialNotAllowedError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusOK, eligibilityResponse{
			Reason:  string(te.Reason),
			Message: te.Message(),
		})
		return
	}
	ErrorResponse(w, r, h.logger, err)
}

type trialStartedResponse struct {
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Start begins the caller's trial and queues the welcome email.
func (h *TrialHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	record, err := h.trials.StartTrial(r.Context(), user.ID, user.Email, ClientIP(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// The trial is committed; a lost email must not fail the request.
	if _, err := worker.EnqueueTrialEmail(r.Context(), h.jobs, user.ID, worker.TrialEmailStarted); err != nil {
		h.logger.Error("failed to queue trial started email", "user_id", user.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, trialStartedResponse{
		StartedAt: record.StartedAt,
		ExpiresAt: record.ExpiresAt,
	})
}

// Status returns the caller's trial state and today's chat allowance.
func (h *TrialHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	st, err := h.trials.Status(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrialStatusResponse(st))
}
