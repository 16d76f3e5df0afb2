package domain

import (
	"fmt"
	"time"
)

// Denial error codes surfaced to API clients.
const (
	DenialSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	DenialUsageLimitExceeded   = "USAGE_LIMIT_EXCEEDED"
	DenialTrialExpired         = "TRIAL_EXPIRED"
)

// Denial is a structured fail-closed result from entitlement or quota gating.
// It carries what a client needs to render either an upgrade prompt or a
// wait-until-reset message.
type Denial struct {
	Op             string
	ErrorCode      string
	Message        string
	Feature        Feature
	ResourceType   ResourceType
	Used           *int
	Limit          *int
	Remaining      *int
	ResetAt        *time.Time
	TrialAvailable bool
	UpgradeURL     string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Op, d.ErrorCode)
}

// EntitlementDenied builds the denial for a feature the user lacks.
func EntitlementDenied(op string, feature Feature, info SubscriptionInfo, upgradeURL string) *Denial {
	d := &Denial{
		Op:             op,
		ErrorCode:      DenialSubscriptionRequired,
		Message:        "An active subscription is required to use this feature.",
		Feature:        feature,
		TrialAvailable: info.TrialAvailable,
		UpgradeURL:     upgradeURL,
	}
	if info.TrialExpired && !info.HasPermission {
		d.ErrorCode = DenialTrialExpired
		d.Message = "Your free trial has ended. Subscribe to keep using this feature."
	}
	return d
}

// QuotaExceeded builds the denial for a spent quota.
func QuotaExceeded(op string, rt ResourceType, st QuotaStatus, trialAvailable bool, upgradeURL string) *Denial {
	used := st.Used
	return &Denial{
		Op:             op,
		ErrorCode:      DenialUsageLimitExceeded,
		Message:        "You have reached your usage limit for this period.",
		ResourceType:   rt,
		Used:           &used,
		Limit:          st.Limit,
		Remaining:      st.Remaining,
		ResetAt:        st.ResetAt,
		TrialAvailable: trialAvailable,
		UpgradeURL:     upgradeURL,
	}
}
