package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts,
	scheduled_at, started_at, completed_at, error_message, created_at`

const enqueueJob = `INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + jobColumns

type EnqueueJobParams struct {
	JobType     string
	Payload     json.RawMessage
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	var j Job
	err := q.db.GetContext(ctx, &j, enqueueJob,
		arg.JobType, []byte(arg.Payload), arg.Priority, arg.MaxAttempts, arg.ScheduledAt)
	return j, err
}

// dequeueJob must run inside a transaction; SKIP LOCKED lets concurrent
// workers pick different rows.
const dequeueJob = `SELECT ` + jobColumns + ` FROM jobs
WHERE status = 'pending' AND scheduled_at <= NOW()
ORDER BY priority DESC, scheduled_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	var j Job
	err := q.db.GetContext(ctx, &j, dequeueJob)
	return j, err
}

const updateJobStarted = `UPDATE jobs
SET status = 'running', started_at = NOW(), attempts = attempts + 1
WHERE id = $1`

func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `UPDATE jobs
SET status = 'completed', completed_at = NOW(), error_message = NULL
WHERE id = $1`

func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

// updateJobFailed reschedules with exponential backoff (30s * 2^attempts)
// until max_attempts is reached or the failure is permanent.
const updateJobFailed = `UPDATE jobs
SET status = CASE WHEN $3 OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    scheduled_at = CASE WHEN $3 OR attempts >= max_attempts THEN scheduled_at
                        ELSE NOW() + (INTERVAL '30 seconds' * POWER(2, attempts)) END,
    completed_at = CASE WHEN $3 OR attempts >= max_attempts THEN NOW() ELSE NULL END,
    error_message = $2
WHERE id = $1`

type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
	Permanent    bool
}

func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, arg.ID, arg.ErrorMessage, arg.Permanent)
	return err
}

const recoverStaleJobs = `UPDATE jobs
SET status = 'pending', started_at = NULL
WHERE status = 'running' AND started_at < NOW() - make_interval(secs => $1)`

func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countPendingJobs = `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`

func (q *Queries) CountPendingJobs(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countPendingJobs)
	return n, err
}
