// Package domain contains core business types and interfaces.
//
// This file defines subscription plans, the typed feature bundle attached to
// each plan, and the resolved permission set handed to request gating.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a paid subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Feature names a permission flag that can gate an endpoint.
type Feature string

const (
	FeatureAIPractice   Feature = "aiPractice"
	FeatureAIChat       Feature = "aiChat"
	FeatureVocabulary   Feature = "vocabulary"
	FeatureExportData   Feature = "exportData"
	FeatureViewMistakes Feature = "viewMistakes"
)

// Well-known plan identifiers.
const (
	PlanIDFree       = "free"
	PlanIDFreeLegacy = "free_plan"
)

// DefaultFreeMaxVocabularyWords caps the word list of free-tier users.
const DefaultFreeMaxVocabularyWords = 100

// PlanFeatures is the feature-flag bundle stored with a plan.
// Vocabulary and ViewMistakes default to true unless explicitly false.
type PlanFeatures struct {
	AIPractice   bool  `json:"aiPractice"`
	AIChat       bool  `json:"aiChat"`
	Vocabulary   *bool `json:"vocabulary,omitempty"`
	ExportData   bool  `json:"exportData"`
	ViewMistakes *bool `json:"viewMistakes,omitempty"`
}

// VocabularyEnabled applies the default-true rule.
func (f PlanFeatures) VocabularyEnabled() bool {
	return f.Vocabulary == nil || *f.Vocabulary
}

// ViewMistakesEnabled applies the default-true rule.
func (f PlanFeatures) ViewMistakesEnabled() bool {
	return f.ViewMistakes == nil || *f.ViewMistakes
}

// Plan is a priced tier. Nil limits mean unlimited.
type Plan struct {
	ID                   string
	Name                 string
	Description          string
	PriceMonthlyCents    int
	PriceYearlyCents     int
	Features             PlanFeatures
	DailyPracticeLimit   *int
	DailyAIChatLimit     *int
	MaxVocabularyWords   *int
	StripeMonthlyPriceID string
	StripeYearlyPriceID  string
	IsActive             bool
	SortOrder            int
}

// Permissions returns the permission set granted by an active plan.
func (p *Plan) Permissions() PermissionSet {
	return PermissionSet{
		AIPractice:         p.Features.AIPractice,
		AIChat:             p.Features.AIChat,
		Vocabulary:         p.Features.VocabularyEnabled(),
		ExportData:         p.Features.ExportData,
		ViewMistakes:       p.Features.ViewMistakesEnabled(),
		DailyPracticeLimit: p.DailyPracticeLimit,
		DailyAIChatLimit:   p.DailyAIChatLimit,
		MaxVocabularyWords: p.MaxVocabularyWords,
	}
}

// wellKnownPlans is consulted only when the plan table has no row for one of
// these ids.
var wellKnownPlans = map[string]Plan{
	PlanIDFree:       freePlan(PlanIDFree),
	PlanIDFreeLegacy: freePlan(PlanIDFreeLegacy),
}

func freePlan(id string) Plan {
	return Plan{
		ID:                 id,
		Name:               "Free",
		Description:        "Vocabulary review with a limited word list",
		Features:           PlanFeatures{},
		DailyPracticeLimit: IntPtr(0),
		DailyAIChatLimit:   IntPtr(0),
		MaxVocabularyWords: IntPtr(DefaultFreeMaxVocabularyWords),
		IsActive:           true,
	}
}

// WellKnownPlan returns the built-in defaults for a known plan id.
func WellKnownPlan(id string) (Plan, bool) {
	p, ok := wellKnownPlans[id]
	return p, ok
}

// FreePlan returns the built-in free plan.
func FreePlan() Plan {
	return wellKnownPlans[PlanIDFree]
}

// PermissionSet is the effective access of a user at a point in time.
type PermissionSet struct {
	AIPractice   bool `json:"aiPractice"`
	AIChat       bool `json:"aiChat"`
	Vocabulary   bool `json:"vocabulary"`
	ExportData   bool `json:"exportData"`
	ViewMistakes bool `json:"viewMistakes"`

	DailyPracticeLimit *int `json:"dailyPracticeLimit"`
	DailyAIChatLimit   *int `json:"dailyAiChatLimit"`
	MaxVocabularyWords *int `json:"maxVocabularyWords"`
}

// Allows reports whether the flag for feature is set.
func (p PermissionSet) Allows(feature Feature) bool {
	switch feature {
	case FeatureAIPractice:
		return p.AIPractice
	case FeatureAIChat:
		return p.AIChat
	case FeatureVocabulary:
		return p.Vocabulary
	case FeatureExportData:
		return p.ExportData
	case FeatureViewMistakes:
		return p.ViewMistakes
	default:
		return false
	}
}

// DailyLimit returns the limit the permission set grants for a daily resource.
func (p PermissionSet) DailyLimit(rt ResourceType) *int {
	switch rt {
	case ResourceDailyPractice:
		return p.DailyPracticeLimit
	case ResourceDailyAIChat:
		return p.DailyAIChatLimit
	default:
		return nil
	}
}

// FreePermissions is the free-tier permission set.
func FreePermissions() PermissionSet {
	p := FreePlan()
	return p.Permissions()
}

// RestrictedPermissions is the free-tier shape returned for lapsed
// subscriptions. All AI features are off.
func RestrictedPermissions() PermissionSet {
	return FreePermissions()
}

// TrialPermissions is the constant permission set of a standalone trial.
func TrialPermissions(dailyAIChatLimit int) PermissionSet {
	return PermissionSet{
		AIPractice:         true,
		AIChat:             true,
		Vocabulary:         true,
		ExportData:         true,
		ViewMistakes:       true,
		DailyPracticeLimit: nil,
		DailyAIChatLimit:   IntPtr(dailyAIChatLimit),
		MaxVocabularyWords: nil,
	}
}

// UserSubscription is the single paid-subscription record of a user.
type UserSubscription struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	PlanID               string
	Status               SubscriptionStatus
	BillingInterval      string
	StripeSubscriptionID string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	TrialStart           *time.Time
	TrialEnd             *time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsExpired reports whether the current billing period has ended.
func (s *UserSubscription) IsExpired(now time.Time) bool {
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
}

// HasEffectiveAccess is true for an active subscription inside its period, or
// a subscription-native trial whose trial end is still ahead.
func (s *UserSubscription) HasEffectiveAccess(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive:
		return !s.IsExpired(now)
	case SubscriptionStatusTrialing:
		return s.TrialEnd != nil && s.TrialEnd.After(now)
	default:
		return false
	}
}

// Entitlement reasons.
const (
	ReasonSubscriptionExpired  = "SUBSCRIPTION_EXPIRED"
	ReasonSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	ReasonInternalError        = "INTERNAL_ERROR"
	ReasonNoSubscription       = "NO_SUBSCRIPTION"
	ReasonUnknownPlan          = "UNKNOWN_PLAN"
)

// EntitlementSource names the resolver branch that produced a result.
type EntitlementSource string

const (
	SourceTrial        EntitlementSource = "trial"
	SourceFree         EntitlementSource = "free"
	SourceSubscription EntitlementSource = "subscription"
	SourceRestricted   EntitlementSource = "restricted"
	SourceUnknownPlan  EntitlementSource = "unknown_plan"
	SourceError        EntitlementSource = "error"
)

// SubscriptionInfo is the resolved entitlement view of a user.
type SubscriptionInfo struct {
	HasPermission  bool
	Permissions    PermissionSet
	TrialAvailable bool
	Subscription   *UserSubscription
	Plan           *Plan
	Reason         string
	Source         EntitlementSource
	// TrialExpired is set when the user consumed a trial that has ended.
	TrialExpired bool
}

// SyncSubscriptionParams is the provider's view of a subscription, written
// over the user's single subscription row.
type SyncSubscriptionParams struct {
	UserID               uuid.UUID
	PlanID               string
	Status               SubscriptionStatus
	BillingInterval      string
	StripeSubscriptionID string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	TrialStart           *time.Time
	TrialEnd             *time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
}
