package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrialState is the position of a user in the one-way trial lifecycle.
type TrialState string

const (
	TrialStateNeverTrialed TrialState = "never_trialed"
	TrialStateTrialing     TrialState = "trialing"
	TrialStateExpired      TrialState = "expired"
)

// TrialNotAllowedReason names why a trial start was refused.
type TrialNotAllowedReason string

const (
	TrialReasonAlreadyUsed TrialNotAllowedReason = "already_used"
	TrialReasonEmailReused TrialNotAllowedReason = "email_reused"
	TrialReasonIPAbuse     TrialNotAllowedReason = "ip_abuse"
)

// TrialNotAllowedError is returned when a trial cannot be started.
type TrialNotAllowedError struct {
	Op     string
	Reason TrialNotAllowedReason
}

func (e *TrialNotAllowedError) Error() string {
	return fmt.Sprintf("%s: trial not allowed: %s", e.Op, e.Reason)
}

// Message returns the user-facing explanation for the reason.
func (e *TrialNotAllowedError) Message() string {
	switch e.Reason {
	case TrialReasonAlreadyUsed:
		return "You have already used your free trial."
	case TrialReasonEmailReused:
		return "A free trial has already been used with this email address."
	case TrialReasonIPAbuse:
		return "Too many trials have been started from this network. Please try again later."
	default:
		return "A free trial is not available for this account."
	}
}

// TrialRecord is the result of a successful trial start.
type TrialRecord struct {
	UserID    uuid.UUID
	StartedAt time.Time
	ExpiresAt time.Time
	Email     string
	IPAddress string
}

// TrialStatus is the read model behind the trial status endpoint.
type TrialStatus struct {
	State            TrialState
	StartedAt        *time.Time
	ExpiresAt        *time.Time
	RemainingSeconds int64
	AIChat           TrialAIChatUsage
}

// TrialAIChatUsage reports the trial chat allowance for today.
// Remaining is -1 when no limit applies.
type TrialAIChatUsage struct {
	CanUse    bool
	Remaining int
}

// UnlimitedRemaining is the Remaining sentinel for an uncapped allowance.
const UnlimitedRemaining = -1
