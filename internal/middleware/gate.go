package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/handler"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// Entitlements resolves the entitlement of a loaded user.
type Entitlements interface {
	ResolveForUser(ctx context.Context, user *domain.User) domain.SubscriptionInfo
}

// FeatureGate enforces entitlement and usage quota on protected endpoints.
//
// Composition per request:
//
//	resolve entitlement -> flag off?       403 SUBSCRIPTION_REQUIRED | TRIAL_EXPIRED
//	                    -> reserve quota   403 USAGE_LIMIT_EXCEEDED
//	                    -> handler
//	                    -> status >= 400?  release the reservation
//
// Usage is taken before the handler runs with a single conditional update
// and handed back when the handler fails, so only successful actions count.
type FeatureGate struct {
	entitlements Entitlements
	quotas       service.QuotaService
	upgradeURL   string
	logger       *slog.Logger
}

// NewFeatureGate creates a new FeatureGate.
func NewFeatureGate(entitlements Entitlements, quotas service.QuotaService, upgradeURL string, logger *slog.Logger) *FeatureGate {
	return &FeatureGate{
		entitlements: entitlements,
		quotas:       quotas,
		upgradeURL:   upgradeURL,
		logger:       logger,
	}
}

// Require returns middleware allowing the request only when the user's
// entitlement has feature. A non-empty rt also meters one unit of that
// resource.
//
// IMPORTANT: Use this AFTER RequireUser in the middleware chain.
func (g *FeatureGate) Require(feature domain.Feature, rt domain.ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "gate.require"

			user := auth.GetUser(r.Context())
			if user == nil {
				handler.UnauthorizedResponse(w, r, g.logger)
				return
			}

			info := g.entitlements.ResolveForUser(r.Context(), user)
			if info.Source == domain.SourceError {
				handler.ErrorResponse(w, r, g.logger,
					domain.Internal(nil, op, "Unable to verify your subscription right now."))
				return
			}
			if !info.Permissions.Allows(feature) {
				handler.DenialResponse(w, r, g.logger, domain.EntitlementDenied(op, feature, info, g.upgradeURL))
				return
			}

			ctx := auth.SetEntitlement(r.Context(), info)
			if rt == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			res, st, err := g.quotas.Reserve(ctx, user.ID, rt, 1)
			if err != nil {
				handler.ErrorResponse(w, r, g.logger, err)
				return
			}
			if !st.CanUse {
				handler.DenialResponse(w, r, g.logger,
					domain.QuotaExceeded(op, rt, st, info.TrialAvailable, g.upgradeURL))
				return
			}

			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					g.release(ctx, res, user.ID)
					panic(p)
				}
			}()

			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.statusCode >= http.StatusBadRequest {
				g.release(ctx, res, user.ID)
			}
		})
	}
}

func (g *FeatureGate) release(ctx context.Context, res service.Reservation, userID uuid.UUID) {
	if res.IsZero() {
		return
	}
	if err := g.quotas.Release(context.WithoutCancel(ctx), res); err != nil {
		g.logger.Error("failed to release quota reservation",
			"user_id", userID,
			"resource_type", res.ResourceType,
			"error", err,
		)
	}
}

// statusWriter records the status code written by the gated handler.
type statusWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.statusCode = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
