// Package domain contains core business types and interfaces.
//
// This file defines the User domain type together with the trial fields used
// by the trial engine and the entitlement resolver.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents a registered learner.
//
// It differs from repository.User in that it uses pointers instead of
// sql.Null* types and carries the trial helpers business logic relies on.
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string // Never expose this in API responses
	Name             string
	StripeCustomerID string

	// Trial state. HasUsedTrial never reverts once true and TrialExpiresAt
	// is written exactly once.
	HasUsedTrial        bool
	TrialStartedAt      *time.Time
	TrialExpiresAt      *time.Time
	TrialEmail          string
	TrialIPAddress      string
	TrialReminderSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsInTrial reports whether the standalone trial is running at now.
// The trial ends by clock alone; nothing is written when it expires.
func (u *User) IsInTrial(now time.Time) bool {
	return u.TrialExpiresAt != nil && u.TrialExpiresAt.After(now)
}

// TrialState derives the trial state machine position at now.
func (u *User) TrialState(now time.Time) TrialState {
	switch {
	case u.IsInTrial(now):
		return TrialStateTrialing
	case u.HasUsedTrial || u.TrialExpiresAt != nil:
		return TrialStateExpired
	default:
		return TrialStateNeverTrialed
	}
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, will be hashed by service
	Name     string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// NullInt32Value safely extracts an int pointer from sql.NullInt32.
func NullInt32Value(ni sql.NullInt32) *int {
	if ni.Valid {
		v := int(ni.Int32)
		return &v
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullInt32 converts an int pointer to sql.NullInt32.
func ToNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{Valid: false}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
