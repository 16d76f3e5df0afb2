// Package handler contains the JSON HTTP handlers of the TOEIC prep API.
//
// This file implements account registration, login and the current-user
// endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// LoginLimiter throttles the public auth endpoints by client IP. Failed
// logins count against the login limit and a successful one clears it.
type LoginLimiter interface {
	LimitLogin(next http.Handler) http.Handler
	LimitRegister(next http.Handler) http.Handler
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// AuthHandler handles authentication-related HTTP requests.
//
// Routes handled:
//   - POST /api/auth/register -> Register
//   - POST /api/auth/login    -> Login
//   - GET  /api/auth/me       -> Me
type AuthHandler struct {
	userService service.UserService
	limiter     LoginLimiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService service.UserService, limiter LoginLimiter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		limiter:     limiter,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes registers auth routes. requireUser must already include
// token loading.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("POST /api/auth/register", h.limiter.LimitRegister(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", h.limiter.LimitLogin(http.HandlerFunc(h.Login)))
	mux.Handle("GET /api/auth/me", requireUser(http.HandlerFunc(h.Me)))
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates an account and signs the caller in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.register"

	var req registerRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.IssueToken(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.authResponse(result))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.login"

	var req loginRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Email and password are required"))
		return
	}

	ip := ClientIP(r)
	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if domain.ErrorCode(err) == domain.EUNAUTHORIZED {
			h.limiter.RecordFailedLogin(ip)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.limiter.ResetLogin(ip)

	writeJSON(w, http.StatusOK, h.authResponse(result))
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(user, h.now())})
}

func (h *AuthHandler) authResponse(result *domain.LoginResult) authResponse {
	return authResponse{
		User:      toUserResponse(result.User, h.now()),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}
