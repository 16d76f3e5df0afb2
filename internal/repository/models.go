package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
	ID                  uuid.UUID      `db:"id"`
	Email               string         `db:"email"`
	PasswordHash        string         `db:"password_hash"`
	Name                sql.NullString `db:"name"`
	StripeCustomerID    sql.NullString `db:"stripe_customer_id"`
	HasUsedTrial        bool           `db:"has_used_trial"`
	TrialStartedAt      sql.NullTime   `db:"trial_started_at"`
	TrialExpiresAt      sql.NullTime   `db:"trial_expires_at"`
	TrialEmail          sql.NullString `db:"trial_email"`
	TrialIpAddress      sql.NullString `db:"trial_ip_address"`
	TrialReminderSentAt sql.NullTime   `db:"trial_reminder_sent_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

type SubscriptionPlan struct {
	ID                   string                `db:"id"`
	Name                 string                `db:"name"`
	Description          sql.NullString        `db:"description"`
	PriceMonthlyCents    int32                 `db:"price_monthly_cents"`
	PriceYearlyCents     int32                 `db:"price_yearly_cents"`
	Features             pqtype.NullRawMessage `db:"features"`
	DailyPracticeLimit   sql.NullInt32         `db:"daily_practice_limit"`
	DailyAiChatLimit     sql.NullInt32         `db:"daily_ai_chat_limit"`
	MaxVocabularyWords   sql.NullInt32         `db:"max_vocabulary_words"`
	StripeMonthlyPriceID sql.NullString        `db:"stripe_monthly_price_id"`
	StripeYearlyPriceID  sql.NullString        `db:"stripe_yearly_price_id"`
	IsActive             bool                  `db:"is_active"`
	SortOrder            int32                 `db:"sort_order"`
	CreatedAt            time.Time             `db:"created_at"`
	UpdatedAt            time.Time             `db:"updated_at"`
}

type UserSubscription struct {
	ID                   uuid.UUID      `db:"id"`
	UserID               uuid.UUID      `db:"user_id"`
	PlanID               string         `db:"plan_id"`
	Status               string         `db:"status"`
	BillingInterval      sql.NullString `db:"billing_interval"`
	StripeSubscriptionID sql.NullString `db:"stripe_subscription_id"`
	CurrentPeriodStart   sql.NullTime   `db:"current_period_start"`
	CurrentPeriodEnd     sql.NullTime   `db:"current_period_end"`
	TrialStart           sql.NullTime   `db:"trial_start"`
	TrialEnd             sql.NullTime   `db:"trial_end"`
	CancelAtPeriodEnd    bool           `db:"cancel_at_period_end"`
	CanceledAt           sql.NullTime   `db:"canceled_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

type UsageQuota struct {
	ID           uuid.UUID     `db:"id"`
	UserID       uuid.UUID     `db:"user_id"`
	ResourceType string        `db:"resource_type"`
	UsedCount    int32         `db:"used_count"`
	LimitCount   sql.NullInt32 `db:"limit_count"`
	PeriodStart  time.Time     `db:"period_start"`
	PeriodEnd    sql.NullTime  `db:"period_end"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

type VocabularyItem struct {
	ID             uuid.UUID      `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	Word           string         `db:"word"`
	Meaning        sql.NullString `db:"meaning"`
	Example        sql.NullString `db:"example"`
	PartOfSpeech   sql.NullString `db:"part_of_speech"`
	ReviewCount    int32          `db:"review_count"`
	CorrectCount   int32          `db:"correct_count"`
	IncorrectCount int32          `db:"incorrect_count"`
	EaseFactor     float64        `db:"ease_factor"`
	IntervalDays   int32          `db:"interval_days"`
	NextReviewDate time.Time      `db:"next_review_date"`
	LastReviewedAt sql.NullTime   `db:"last_reviewed_at"`
	Mastered       bool           `db:"mastered"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

type Job struct {
	ID           uuid.UUID       `db:"id"`
	JobType      string          `db:"job_type"`
	Payload      json.RawMessage `db:"payload"`
	Status       string          `db:"status"`
	Priority     int32           `db:"priority"`
	Attempts     int32           `db:"attempts"`
	MaxAttempts  int32           `db:"max_attempts"`
	ScheduledAt  time.Time       `db:"scheduled_at"`
	StartedAt    sql.NullTime    `db:"started_at"`
	CompletedAt  sql.NullTime    `db:"completed_at"`
	ErrorMessage sql.NullString  `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
}
