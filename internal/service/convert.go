package service

import (
	"encoding/json"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
)

// =============================================================================
// Repository -> domain conversion
// =============================================================================

func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:                  u.ID,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		Name:                domain.NullStringValue(u.Name),
		StripeCustomerID:    domain.NullStringValue(u.StripeCustomerID),
		HasUsedTrial:        u.HasUsedTrial,
		TrialStartedAt:      domain.NullTimeValue(u.TrialStartedAt),
		TrialExpiresAt:      domain.NullTimeValue(u.TrialExpiresAt),
		TrialEmail:          domain.NullStringValue(u.TrialEmail),
		TrialIPAddress:      domain.NullStringValue(u.TrialIpAddress),
		TrialReminderSentAt: domain.NullTimeValue(u.TrialReminderSentAt),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// repoPlanToDomain decodes the JSONB features column into the typed bundle.
// A NULL or malformed column yields the zero bundle, which keeps the default
// true flags and turns every paid feature off.
func repoPlanToDomain(p repository.SubscriptionPlan) (*domain.Plan, error) {
	var features domain.PlanFeatures
	if p.Features.Valid && len(p.Features.RawMessage) > 0 {
		if err := json.Unmarshal(p.Features.RawMessage, &features); err != nil {
			return nil, err
		}
	}
	return &domain.Plan{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          domain.NullStringValue(p.Description),
		PriceMonthlyCents:    int(p.PriceMonthlyCents),
		PriceYearlyCents:     int(p.PriceYearlyCents),
		Features:             features,
		DailyPracticeLimit:   domain.NullInt32Value(p.DailyPracticeLimit),
		DailyAIChatLimit:     domain.NullInt32Value(p.DailyAiChatLimit),
		MaxVocabularyWords:   domain.NullInt32Value(p.MaxVocabularyWords),
		StripeMonthlyPriceID: domain.NullStringValue(p.StripeMonthlyPriceID),
		StripeYearlyPriceID:  domain.NullStringValue(p.StripeYearlyPriceID),
		IsActive:             p.IsActive,
		SortOrder:            int(p.SortOrder),
	}, nil
}

func repoSubscriptionToDomain(s repository.UserSubscription) *domain.UserSubscription {
	return &domain.UserSubscription{
		ID:                   s.ID,
		UserID:               s.UserID,
		PlanID:               s.PlanID,
		Status:               domain.SubscriptionStatus(s.Status),
		BillingInterval:      domain.NullStringValue(s.BillingInterval),
		StripeSubscriptionID: domain.NullStringValue(s.StripeSubscriptionID),
		CurrentPeriodStart:   domain.NullTimeValue(s.CurrentPeriodStart),
		CurrentPeriodEnd:     domain.NullTimeValue(s.CurrentPeriodEnd),
		TrialStart:           domain.NullTimeValue(s.TrialStart),
		TrialEnd:             domain.NullTimeValue(s.TrialEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		CanceledAt:           domain.NullTimeValue(s.CanceledAt),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func repoQuotaToDomain(q repository.UsageQuota) *domain.UsageQuota {
	return &domain.UsageQuota{
		ID:           q.ID,
		UserID:       q.UserID,
		ResourceType: domain.ResourceType(q.ResourceType),
		UsedCount:    int(q.UsedCount),
		LimitCount:   domain.NullInt32Value(q.LimitCount),
		PeriodStart:  q.PeriodStart,
		PeriodEnd:    domain.NullTimeValue(q.PeriodEnd),
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

func repoVocabularyToDomain(v repository.VocabularyItem) *domain.VocabularyItem {
	return &domain.VocabularyItem{
		ID:             v.ID,
		UserID:         v.UserID,
		Word:           v.Word,
		Meaning:        domain.NullStringValue(v.Meaning),
		Example:        domain.NullStringValue(v.Example),
		PartOfSpeech:   domain.NullStringValue(v.PartOfSpeech),
		ReviewCount:    int(v.ReviewCount),
		CorrectCount:   int(v.CorrectCount),
		IncorrectCount: int(v.IncorrectCount),
		EaseFactor:     v.EaseFactor,
		Interval:       int(v.IntervalDays),
		NextReviewDate: v.NextReviewDate,
		LastReviewedAt: domain.NullTimeValue(v.LastReviewedAt),
		Mastered:       v.Mastered,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func repoVocabularyListToDomain(items []repository.VocabularyItem) []domain.VocabularyItem {
	out := make([]domain.VocabularyItem, 0, len(items))
	for _, v := range items {
		out = append(out, *repoVocabularyToDomain(v))
	}
	return out
}
