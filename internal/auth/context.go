// Package auth provides identity tokens and authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey        contextKey = "user"
	entitlementContextKey contextKey = "entitlement"
)

// GetUser retrieves the authenticated user from the context.
//
// Returns nil if no user is authenticated.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle unauthenticated request
//	}
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest retrieves the authenticated user from the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context.
//
// This is called by the authentication middleware after a token is verified.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetEntitlement returns the entitlement resolved by the feature gate for
// this request, if any.
func GetEntitlement(ctx context.Context) (domain.SubscriptionInfo, bool) {
	info, ok := ctx.Value(entitlementContextKey).(domain.SubscriptionInfo)
	return info, ok
}

// SetEntitlement stores the resolved entitlement in the context.
func SetEntitlement(ctx context.Context, info domain.SubscriptionInfo) context.Context {
	return context.WithValue(ctx, entitlementContextKey, info)
}
