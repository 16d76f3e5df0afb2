package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

// =============================================================================
// Users
// =============================================================================

type userResponse struct {
	ID             uuid.UUID         `json:"id"`
	Email          string            `json:"email"`
	Name           string            `json:"name,omitempty"`
	HasUsedTrial   bool              `json:"hasUsedTrial"`
	TrialStartedAt *time.Time        `json:"trialStartedAt,omitempty"`
	TrialExpiresAt *time.Time        `json:"trialExpiresAt,omitempty"`
	TrialState     domain.TrialState `json:"trialState"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func toUserResponse(u *domain.User, now time.Time) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		HasUsedTrial:   u.HasUsedTrial,
		TrialStartedAt: u.TrialStartedAt,
		TrialExpiresAt: u.TrialExpiresAt,
		TrialState:     u.TrialState(now),
		CreatedAt:      u.CreatedAt,
	}
}

type authResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// =============================================================================
// Vocabulary
// =============================================================================

type vocabularyResponse struct {
	ID             uuid.UUID  `json:"id"`
	Word           string     `json:"word"`
	Meaning        string     `json:"meaning"`
	Example        string     `json:"example"`
	PartOfSpeech   string     `json:"partOfSpeech"`
	ReviewCount    int        `json:"reviewCount"`
	CorrectCount   int        `json:"correctCount"`
	IncorrectCount int        `json:"incorrectCount"`
	EaseFactor     float64    `json:"easeFactor"`
	Interval       int        `json:"interval"`
	NextReviewDate time.Time  `json:"nextReviewDate"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	Mastered       bool       `json:"mastered"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toVocabularyResponse(v *domain.VocabularyItem) vocabularyResponse {
	return vocabularyResponse{
		ID:             v.ID,
		Word:           v.Word,
		Meaning:        v.Meaning,
		Example:        v.Example,
		PartOfSpeech:   v.PartOfSpeech,
		ReviewCount:    v.ReviewCount,
		CorrectCount:   v.CorrectCount,
		IncorrectCount: v.IncorrectCount,
		EaseFactor:     v.EaseFactor,
		Interval:       v.Interval,
		NextReviewDate: v.NextReviewDate,
		LastReviewedAt: v.LastReviewedAt,
		Mastered:       v.Mastered,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toVocabularyList(items []domain.VocabularyItem) []vocabularyResponse {
	out := make([]vocabularyResponse, 0, len(items))
	for i := range items {
		out = append(out, toVocabularyResponse(&items[i]))
	}
	return out
}

type vocabularyStatsResponse struct {
	Total         int `json:"total"`
	Mastered      int `json:"mastered"`
	DueNow        int `json:"dueNow"`
	NeedsReview   int `json:"needsReview"`
	ReviewedToday int `json:"reviewedToday"`
}

type importResponse struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// =============================================================================
// Trials
// =============================================================================

type trialStatusResponse struct {
	State            domain.TrialState `json:"state"`
	StartedAt        *time.Time        `json:"startedAt"`
	ExpiresAt        *time.Time        `json:"expiresAt"`
	RemainingSeconds int64             `json:"remainingSeconds"`
	AIChat           struct {
		CanUse    bool `json:"canUse"`
		Remaining int  `json:"remaining"`
	} `json:"aiChat"`
}

func toTrialStatusResponse(st *domain.TrialStatus) trialStatusResponse {
	resp := trialStatusResponse{
		State:            st.State,
		StartedAt:        st.StartedAt,
		ExpiresAt:        st.ExpiresAt,
		RemainingSeconds: st.RemainingSeconds,
	}
	resp.AIChat.CanUse = st.AIChat.CanUse
	resp.AIChat.Remaining = st.AIChat.Remaining
	return resp
}

// =============================================================================
// Subscriptions
// =============================================================================

type planResponse struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	PriceMonthlyCents  int                  `json:"priceMonthlyCents"`
	PriceYearlyCents   int                  `json:"priceYearlyCents"`
	Features           domain.PermissionSet `json:"features"`
	DailyPracticeLimit *int                 `json:"dailyPracticeLimit"`
	DailyAIChatLimit   *int                 `json:"dailyAiChatLimit"`
	MaxVocabularyWords *int                 `json:"maxVocabularyWords"`
	SortOrder          int                  `json:"sortOrder"`
}

func toPlanResponse(p *domain.Plan) *planResponse {
	if p == nil {
		return nil
	}
	return &planResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		PriceMonthlyCents:  p.PriceMonthlyCents,
		PriceYearlyCents:   p.PriceYearlyCents,
		Features:           p.Permissions(),
		DailyPracticeLimit: p.DailyPracticeLimit,
		DailyAIChatLimit:   p.DailyAIChatLimit,
		MaxVocabularyWords: p.MaxVocabularyWords,
		SortOrder:          p.SortOrder,
	}
}

type subscriptionResponse struct {
	PlanID             string                    `json:"planId"`
	Status             domain.SubscriptionStatus `json:"status"`
	BillingInterval    string                    `json:"billingInterval,omitempty"`
	CurrentPeriodStart *time.Time                `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time                `json:"currentPeriodEnd,omitempty"`
	TrialStart         *time.Time                `json:"trialStart,omitempty"`
	TrialEnd           *time.Time                `json:"trialEnd,omitempty"`
	CancelAtPeriodEnd  bool                      `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time                `json:"canceledAt,omitempty"`
}

func toSubscriptionResponse(s *domain.UserSubscription) *subscriptionResponse {
	if s == nil {
		return nil
	}
	return &subscriptionResponse{
		PlanID:             s.PlanID,
		Status:             s.Status,
		BillingInterval:    s.BillingInterval,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialStart:         s.TrialStart,
		TrialEnd:           s.TrialEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
	}
}

type subscriptionInfoResponse struct {
	HasPermission  bool                     `json:"hasPermission"`
	Permissions    domain.PermissionSet     `json:"permissions"`
	TrialAvailable bool                     `json:"trialAvailable"`
	TrialExpired   bool                     `json:"trialExpired"`
	Source         domain.EntitlementSource `json:"source"`
	Reason         string                   `json:"reason,omitempty"`
	Subscription   *subscriptionResponse    `json:"subscription"`
	Plan           *planResponse            `json:"plan"`
}

func toSubscriptionInfoResponse(info domain.SubscriptionInfo) subscriptionInfoResponse {
	return subscriptionInfoResponse{
		HasPermission:  info.HasPermission,
		Permissions:    info.Permissions,
		TrialAvailable: info.TrialAvailable,
		TrialExpired:   info.TrialExpired,
		Source:         info.Source,
		Reason:         info.Reason,
		Subscription:   toSubscriptionResponse(info.Subscription),
		Plan:           toPlanResponse(info.Plan),
	}
}

type quotaResponse struct {
	CanUse    bool       `json:"canUse"`
	Used      int        `json:"used"`
	Limit     *int       `json:"limit"`
	Remaining *int       `json:"remaining"`
	ResetAt   *time.Time `json:"resetAt,omitempty"`
}

func toQuotaResponse(st domain.QuotaStatus) quotaResponse {
	return quotaResponse{
		CanUse:    st.CanUse,
		Used:      st.Used,
		Limit:     st.Limit,
		Remaining: st.Remaining,
		ResetAt:   st.ResetAt,
	}
}
