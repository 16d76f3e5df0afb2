package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, stripe_customer_id, has_used_trial,
	trial_started_at, trial_expires_at, trial_email, trial_ip_address,
	trial_reminder_sent_at, created_at, updated_at`

const createUser = `INSERT INTO users (email, password_hash, name)
VALUES ($1, $2, $3)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         sql.NullString
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, createUser, arg.Email, arg.PasswordHash, arg.Name)
	return u, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, getUserByID, id)
	return u, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, getUserByEmail, email)
	return u, err
}

const getUserByStripeCustomerID = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, getUserByStripeCustomerID, customerID)
	return u, err
}

const updateUserStripeCustomerID = `UPDATE users
SET stripe_customer_id = $2, updated_at = NOW()
WHERE id = $1`

type UpdateUserStripeCustomerIDParams struct {
	ID               uuid.UUID
	StripeCustomerID string
}

func (q *Queries) UpdateUserStripeCustomerID(ctx context.Context, arg UpdateUserStripeCustomerIDParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomerID, arg.ID, arg.StripeCustomerID)
	return err
}

// Trials

const countUsedTrialsByEmail = `SELECT COUNT(*) FROM users
WHERE trial_email = $1 AND has_used_trial AND id <> $2`

type CountUsedTrialsByEmailParams struct {
	TrialEmail    string
	ExcludeUserID uuid.UUID
}

func (q *Queries) CountUsedTrialsByEmail(ctx context.Context, arg CountUsedTrialsByEmailParams) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countUsedTrialsByEmail, arg.TrialEmail, arg.ExcludeUserID)
	return n, err
}

const countTrialStartsByIP = `SELECT COUNT(*) FROM users
WHERE trial_ip_address = $1 AND trial_started_at >= $2`

type CountTrialStartsByIPParams struct {
	TrialIpAddress string
	Since          time.Time
}

func (q *Queries) CountTrialStartsByIP(ctx context.Context, arg CountTrialStartsByIPParams) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countTrialStartsByIP, arg.TrialIpAddress, arg.Since)
	return n, err
}

// lockTrialKey serializes trial starts that share an email or IP address for
// the rest of the transaction.
const lockTrialKey = `SELECT pg_advisory_xact_lock(hashtext($1))`

func (q *Queries) LockTrialKey(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, lockTrialKey, key)
	return err
}

// startUserTrial only matches users that have never trialed, so a second
// start returns sql.ErrNoRows.
const startUserTrial = `UPDATE users
SET has_used_trial = TRUE,
    trial_started_at = $2,
    trial_expires_at = $3,
    trial_email = $4,
    trial_ip_address = $5,
    updated_at = NOW()
WHERE id = $1 AND NOT has_used_trial AND trial_expires_at IS NULL
RETURNING ` + userColumns

type StartUserTrialParams struct {
	ID             uuid.UUID
	TrialStartedAt time.Time
	TrialExpiresAt time.Time
	TrialEmail     string
	TrialIpAddress string
}

func (q *Queries) StartUserTrial(ctx context.Context, arg StartUserTrialParams) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, startUserTrial,
		arg.ID, arg.TrialStartedAt, arg.TrialExpiresAt, arg.TrialEmail, arg.TrialIpAddress)
	return u, err
}

const listUsersWithExpiringTrials = `SELECT ` + userColumns + ` FROM users
WHERE trial_expires_at > $1 AND trial_expires_at <= $2
  AND trial_reminder_sent_at IS NULL
ORDER BY trial_expires_at`

type ListUsersWithExpiringTrialsParams struct {
	Now    time.Time
	Before time.Time
}

func (q *Queries) ListUsersWithExpiringTrials(ctx context.Context, arg ListUsersWithExpiringTrialsParams) ([]User, error) {
	var users []User
	err := q.db.SelectContext(ctx, &users, listUsersWithExpiringTrials, arg.Now, arg.Before)
	return users, err
}

const markTrialReminderSent = `UPDATE users
SET trial_reminder_sent_at = $2, updated_at = NOW()
WHERE id = $1 AND trial_reminder_sent_at IS NULL`

type MarkTrialReminderSentParams struct {
	ID     uuid.UUID
	SentAt time.Time
}

// MarkTrialReminderSent reports whether this call claimed the reminder.
func (q *Queries) MarkTrialReminderSent(ctx context.Context, arg MarkTrialReminderSentParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, markTrialReminderSent, arg.ID, arg.SentAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Analytics

const countUsers = `SELECT COUNT(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countUsers)
	return n, err
}

const countActiveTrials = `SELECT COUNT(*) FROM users WHERE trial_expires_at > $1`

func (q *Queries) CountActiveTrials(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countActiveTrials, now)
	return n, err
}

const countTrialsStartedSince = `SELECT COUNT(*) FROM users WHERE trial_started_at >= $1`

func (q *Queries) CountTrialsStartedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countTrialsStartedSince, since)
	return n, err
}
