package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const quotaColumns = `id, user_id, resource_type, used_count, limit_count,
	period_start, period_end, created_at, updated_at`

const getQuotaForPeriod = `SELECT ` + quotaColumns + ` FROM usage_quotas
WHERE user_id = $1 AND resource_type = $2 AND period_start = $3`

type GetQuotaForPeriodParams struct {
	UserID       uuid.UUID
	ResourceType string
	PeriodStart  time.Time
}

func (q *Queries) GetQuotaForPeriod(ctx context.Context, arg GetQuotaForPeriodParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, getQuotaForPeriod, arg.UserID, arg.ResourceType, arg.PeriodStart)
	return u, err
}

const getLatestQuota = `SELECT ` + quotaColumns + ` FROM usage_quotas
WHERE user_id = $1 AND resource_type = $2
ORDER BY created_at DESC
LIMIT 1`

type GetLatestQuotaParams struct {
	UserID       uuid.UUID
	ResourceType string
}

func (q *Queries) GetLatestQuota(ctx context.Context, arg GetLatestQuotaParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, getLatestQuota, arg.UserID, arg.ResourceType)
	return u, err
}

// ensureQuota creates the row for a period or returns the existing one
// untouched. The no-op update makes RETURNING yield the existing row.
const ensureQuota = `INSERT INTO usage_quotas (user_id, resource_type, limit_count, period_start, period_end)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, resource_type, period_start)
DO UPDATE SET updated_at = usage_quotas.updated_at
RETURNING ` + quotaColumns

type EnsureQuotaParams struct {
	UserID       uuid.UUID
	ResourceType string
	LimitCount   sql.NullInt32
	PeriodStart  time.Time
	PeriodEnd    sql.NullTime
}

func (q *Queries) EnsureQuota(ctx context.Context, arg EnsureQuotaParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, ensureQuota,
		arg.UserID, arg.ResourceType, arg.LimitCount, arg.PeriodStart, arg.PeriodEnd)
	return u, err
}

const upsertQuotaLimit = `INSERT INTO usage_quotas (user_id, resource_type, limit_count, period_start, period_end)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, resource_type, period_start)
DO UPDATE SET limit_count = EXCLUDED.limit_count,
              period_end = EXCLUDED.period_end,
              updated_at = NOW()
RETURNING ` + quotaColumns

type UpsertQuotaLimitParams = EnsureQuotaParams

// UpsertQuotaLimit creates the row for a period or replaces its limit while
// keeping the used count.
func (q *Queries) UpsertQuotaLimit(ctx context.Context, arg UpsertQuotaLimitParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, upsertQuotaLimit,
		arg.UserID, arg.ResourceType, arg.LimitCount, arg.PeriodStart, arg.PeriodEnd)
	return u, err
}

const incrementQuota = `UPDATE usage_quotas
SET used_count = used_count + $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + quotaColumns

type IncrementQuotaParams struct {
	ID     uuid.UUID
	Amount int32
}

func (q *Queries) IncrementQuota(ctx context.Context, arg IncrementQuotaParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, incrementQuota, arg.ID, arg.Amount)
	return u, err
}

// consumeQuota increments only while the result stays within the limit.
// sql.ErrNoRows means the quota is spent.
const consumeQuota = `UPDATE usage_quotas
SET used_count = used_count + $2, updated_at = NOW()
WHERE id = $1 AND (limit_count IS NULL OR used_count + $2 <= limit_count)
RETURNING ` + quotaColumns

type ConsumeQuotaParams = IncrementQuotaParams

func (q *Queries) ConsumeQuota(ctx context.Context, arg ConsumeQuotaParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, consumeQuota, arg.ID, arg.Amount)
	return u, err
}

const releaseQuota = `UPDATE usage_quotas
SET used_count = GREATEST(used_count - $2, 0), updated_at = NOW()
WHERE id = $1`

type ReleaseQuotaParams = IncrementQuotaParams

func (q *Queries) ReleaseQuota(ctx context.Context, arg ReleaseQuotaParams) error {
	_, err := q.db.ExecContext(ctx, releaseQuota, arg.ID, arg.Amount)
	return err
}

const upsertIncrementQuota = `INSERT INTO usage_quotas (user_id, resource_type, used_count, limit_count, period_start, period_end)
VALUES ($1, $2, $6, $3, $4, $5)
ON CONFLICT (user_id, resource_type, period_start)
DO UPDATE SET used_count = usage_quotas.used_count + EXCLUDED.used_count,
              updated_at = NOW()
RETURNING ` + quotaColumns

type UpsertIncrementQuotaParams struct {
	UserID       uuid.UUID
	ResourceType string
	LimitCount   sql.NullInt32
	PeriodStart  time.Time
	PeriodEnd    sql.NullTime
	Amount       int32
}

func (q *Queries) UpsertIncrementQuota(ctx context.Context, arg UpsertIncrementQuotaParams) (UsageQuota, error) {
	var u UsageQuota
	err := q.db.GetContext(ctx, &u, upsertIncrementQuota,
		arg.UserID, arg.ResourceType, arg.LimitCount, arg.PeriodStart, arg.PeriodEnd, arg.Amount)
	return u, err
}

const deleteDailyQuotasBefore = `DELETE FROM usage_quotas
WHERE resource_type LIKE 'daily\_%' AND period_start < $1`

func (q *Queries) DeleteDailyQuotasBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteDailyQuotasBefore, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const sumUsageByResourceSince = `SELECT resource_type, COALESCE(SUM(used_count), 0) AS total
FROM usage_quotas
WHERE period_start >= $1
GROUP BY resource_type
ORDER BY resource_type`

type SumUsageByResourceSinceRow struct {
	ResourceType string `db:"resource_type"`
	Total        int64  `db:"total"`
}

func (q *Queries) SumUsageByResourceSince(ctx context.Context, since time.Time) ([]SumUsageByResourceSinceRow, error) {
	var rows []SumUsageByResourceSinceRow
	err := q.db.SelectContext(ctx, &rows, sumUsageByResourceSince, since)
	return rows, err
}
