package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const planColumns = `id, name, description, price_monthly_cents, price_yearly_cents, features,
	daily_practice_limit, daily_ai_chat_limit, max_vocabulary_words,
	stripe_monthly_price_id, stripe_yearly_price_id, is_active, sort_order,
	created_at, updated_at`

const getPlanByID = `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`

func (q *Queries) GetPlanByID(ctx context.Context, id string) (SubscriptionPlan, error) {
	var p SubscriptionPlan
	err := q.db.GetContext(ctx, &p, getPlanByID, id)
	return p, err
}

const listActivePlans = `SELECT ` + planColumns + ` FROM subscription_plans
WHERE is_active
ORDER BY sort_order, id`

func (q *Queries) ListActivePlans(ctx context.Context) ([]SubscriptionPlan, error) {
	var plans []SubscriptionPlan
	err := q.db.SelectContext(ctx, &plans, listActivePlans)
	return plans, err
}

const getPlanByStripePriceID = `SELECT ` + planColumns + ` FROM subscription_plans
WHERE stripe_monthly_price_id = $1 OR stripe_yearly_price_id = $1`

func (q *Queries) GetPlanByStripePriceID(ctx context.Context, priceID string) (SubscriptionPlan, error) {
	var p SubscriptionPlan
	err := q.db.GetContext(ctx, &p, getPlanByStripePriceID, priceID)
	return p, err
}

const subscriptionColumns = `id, user_id, plan_id, status, billing_interval, stripe_subscription_id,
	current_period_start, current_period_end, trial_start, trial_end,
	cancel_at_period_end, canceled_at, created_at, updated_at`

const getSubscriptionByUserID = `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1`

func (q *Queries) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (UserSubscription, error) {
	var s UserSubscription
	err := q.db.GetContext(ctx, &s, getSubscriptionByUserID, userID)
	return s, err
}

const getSubscriptionByStripeID = `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
WHERE stripe_subscription_id = $1`

func (q *Queries) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (UserSubscription, error) {
	var s UserSubscription
	err := q.db.GetContext(ctx, &s, getSubscriptionByStripeID, stripeSubscriptionID)
	return s, err
}

// upsertSubscription keeps exactly one row per user.
const upsertSubscription = `INSERT INTO user_subscriptions (
    user_id, plan_id, status, billing_interval, stripe_subscription_id,
    current_period_start, current_period_end, trial_start, trial_end,
    cancel_at_period_end, canceled_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id) DO UPDATE SET
    plan_id = EXCLUDED.plan_id,
    status = EXCLUDED.status,
    billing_interval = EXCLUDED.billing_interval,
    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end = EXCLUDED.current_period_end,
    trial_start = EXCLUDED.trial_start,
    trial_end = EXCLUDED.trial_end,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    canceled_at = EXCLUDED.canceled_at,
    updated_at = NOW()
RETURNING ` + subscriptionColumns

type UpsertSubscriptionParams struct {
	UserID               uuid.UUID
	PlanID               string
	Status               string
	BillingInterval      sql.NullString
	StripeSubscriptionID sql.NullString
	CurrentPeriodStart   sql.NullTime
	CurrentPeriodEnd     sql.NullTime
	TrialStart           sql.NullTime
	TrialEnd             sql.NullTime
	CancelAtPeriodEnd    bool
	CanceledAt           sql.NullTime
}

func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (UserSubscription, error) {
	var s UserSubscription
	err := q.db.GetContext(ctx, &s, upsertSubscription,
		arg.UserID, arg.PlanID, arg.Status, arg.BillingInterval, arg.StripeSubscriptionID,
		arg.CurrentPeriodStart, arg.CurrentPeriodEnd, arg.TrialStart, arg.TrialEnd,
		arg.CancelAtPeriodEnd, arg.CanceledAt)
	return s, err
}

const countSubscriptionsByStatus = `SELECT status, COUNT(*) AS count
FROM user_subscriptions
GROUP BY status
ORDER BY status`

type CountSubscriptionsByStatusRow struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

func (q *Queries) CountSubscriptionsByStatus(ctx context.Context) ([]CountSubscriptionsByStatusRow, error) {
	var rows []CountSubscriptionsByStatusRow
	err := q.db.SelectContext(ctx, &rows, countSubscriptionsByStatus)
	return rows, err
}
