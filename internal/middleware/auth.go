// Package middleware contains HTTP middleware for the TOEIC prep API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/handler"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	userService  service.UserService
	adminService service.AdminService
	logger       *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
// adminService may be nil when no admin routes are mounted.
func NewAuthMiddleware(userService service.UserService, adminService service.AdminService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService:  userService,
		adminService: adminService,
		logger:       logger,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser loads the user named by the bearer token into the request context.
//
// Requests without a token, or with a token that fails verification,
// continue without a user. Use RequireUser to reject them.
//
// Flow:
//
//	Request -> WithUser -> Handler
//	           |
//	           +-> Read Authorization: Bearer <jwt>
//	           +-> Verify token and load user (if present)
//	           +-> Set user in context (if valid)
//	           +-> Call next handler (always)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.Authenticate(r.Context(), token)
		if err != nil {
			m.logger.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser returns 401 unless WithUser placed a user in the context.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
//	mux.Handle("GET /api/auth/me", authMw.WithUser(authMw.RequireUser(meHandler)))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin returns 403 unless the user's email is on the admin list.
//
// IMPORTANT: Use this AFTER RequireUser in the middleware chain.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			m.logger.Error("RequireAdmin called without user in context")
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		if m.adminService == nil || !m.adminService.IsAdmin(user.Email) {
			m.logger.Warn("non-admin access attempt",
				"user_id", user.ID,
				"path", r.URL.Path,
			)
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden("", "Admin access required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/vocabulary", stack(listHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
