package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const vocabularyColumns = `id, user_id, word, meaning, example, part_of_speech,
	review_count, correct_count, incorrect_count, ease_factor, interval_days,
	next_review_date, last_reviewed_at, mastered, created_at, updated_at`

const createVocabularyItem = `INSERT INTO vocabulary_items (
    user_id, word, meaning, example, part_of_speech, ease_factor, interval_days, next_review_date
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + vocabularyColumns

type CreateVocabularyItemParams struct {
	UserID         uuid.UUID
	Word           string
	Meaning        sql.NullString
	Example        sql.NullString
	PartOfSpeech   sql.NullString
	EaseFactor     float64
	IntervalDays   int32
	NextReviewDate time.Time
}

func (q *Queries) CreateVocabularyItem(ctx context.Context, arg CreateVocabularyItemParams) (VocabularyItem, error) {
	var v VocabularyItem
	err := q.db.GetContext(ctx, &v, createVocabularyItem,
		arg.UserID, arg.Word, arg.Meaning, arg.Example, arg.PartOfSpeech,
		arg.EaseFactor, arg.IntervalDays, arg.NextReviewDate)
	return v, err
}

const getVocabularyItem = `SELECT ` + vocabularyColumns + ` FROM vocabulary_items
WHERE id = $1 AND user_id = $2`

type GetVocabularyItemParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetVocabularyItem(ctx context.Context, arg GetVocabularyItemParams) (VocabularyItem, error) {
	var v VocabularyItem
	err := q.db.GetContext(ctx, &v, getVocabularyItem, arg.ID, arg.UserID)
	return v, err
}

const listVocabularyItems = `SELECT ` + vocabularyColumns + ` FROM vocabulary_items
WHERE user_id = $1 AND ($2 = '' OR word ILIKE '%' || $2 || '%')
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`

type ListVocabularyItemsParams struct {
	UserID uuid.UUID
	Search string
	Limit  int32
	Offset int32
}

func (q *Queries) ListVocabularyItems(ctx context.Context, arg ListVocabularyItemsParams) ([]VocabularyItem, error) {
	var items []VocabularyItem
	err := q.db.SelectContext(ctx, &items, listVocabularyItems, arg.UserID, arg.Search, arg.Limit, arg.Offset)
	return items, err
}

const listAllVocabularyItems = `SELECT ` + vocabularyColumns + ` FROM vocabulary_items
WHERE user_id = $1
ORDER BY word`

func (q *Queries) ListAllVocabularyItems(ctx context.Context, userID uuid.UUID) ([]VocabularyItem, error) {
	var items []VocabularyItem
	err := q.db.SelectContext(ctx, &items, listAllVocabularyItems, userID)
	return items, err
}

const listDueVocabularyItems = `SELECT ` + vocabularyColumns + ` FROM vocabulary_items
WHERE user_id = $1 AND next_review_date <= $2 AND ($3 OR NOT mastered)
ORDER BY next_review_date ASC, id
LIMIT $4`

type ListDueVocabularyItemsParams struct {
	UserID          uuid.UUID
	Now             time.Time
	IncludeMastered bool
	Limit           int32
}

func (q *Queries) ListDueVocabularyItems(ctx context.Context, arg ListDueVocabularyItemsParams) ([]VocabularyItem, error) {
	var items []VocabularyItem
	err := q.db.SelectContext(ctx, &items, listDueVocabularyItems, arg.UserID, arg.Now, arg.IncludeMastered, arg.Limit)
	return items, err
}

const countVocabularyItems = `SELECT COUNT(*) FROM vocabulary_items WHERE user_id = $1`

func (q *Queries) CountVocabularyItems(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.GetContext(ctx, &n, countVocabularyItems, userID)
	return n, err
}

const getVocabularyStats = `SELECT
    COUNT(*) AS total,
    COUNT(*) FILTER (WHERE mastered) AS mastered,
    COUNT(*) FILTER (WHERE next_review_date <= $2) AS due_now,
    COUNT(*) FILTER (WHERE next_review_date <= $2 AND NOT mastered) AS needs_review,
    COUNT(*) FILTER (WHERE last_reviewed_at >= $3) AS reviewed_today
FROM vocabulary_items
WHERE user_id = $1`

type GetVocabularyStatsParams struct {
	UserID   uuid.UUID
	Now      time.Time
	DayStart time.Time
}

type GetVocabularyStatsRow struct {
	Total         int64 `db:"total"`
	Mastered      int64 `db:"mastered"`
	DueNow        int64 `db:"due_now"`
	NeedsReview   int64 `db:"needs_review"`
	ReviewedToday int64 `db:"reviewed_today"`
}

func (q *Queries) GetVocabularyStats(ctx context.Context, arg GetVocabularyStatsParams) (GetVocabularyStatsRow, error) {
	var row GetVocabularyStatsRow
	err := q.db.GetContext(ctx, &row, getVocabularyStats, arg.UserID, arg.Now, arg.DayStart)
	return row, err
}

// updateVocabularyReview is a compare-and-swap on review_count. A concurrent
// review of the same item makes it return sql.ErrNoRows.
const updateVocabularyReview = `UPDATE vocabulary_items
SET review_count = $4,
    correct_count = $5,
    incorrect_count = $6,
    ease_factor = $7,
    interval_days = $8,
    next_review_date = $9,
    last_reviewed_at = $10,
    mastered = $11,
    updated_at = NOW()
WHERE id = $1 AND user_id = $2 AND review_count = $3
RETURNING ` + vocabularyColumns

type UpdateVocabularyReviewParams struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	ExpectedReviewCount int32
	ReviewCount         int32
	CorrectCount        int32
	IncorrectCount      int32
	EaseFactor          float64
	IntervalDays        int32
	NextReviewDate      time.Time
	LastReviewedAt      sql.NullTime
	Mastered            bool
}

func (q *Queries) UpdateVocabularyReview(ctx context.Context, arg UpdateVocabularyReviewParams) (VocabularyItem, error) {
	var v VocabularyItem
	err := q.db.GetContext(ctx, &v, updateVocabularyReview,
		arg.ID, arg.UserID, arg.ExpectedReviewCount,
		arg.ReviewCount, arg.CorrectCount, arg.IncorrectCount,
		arg.EaseFactor, arg.IntervalDays, arg.NextReviewDate, arg.LastReviewedAt, arg.Mastered)
	return v, err
}

const updateVocabularyItem = `UPDATE vocabulary_items
SET meaning = $3, example = $4, mastered = $5, updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING ` + vocabularyColumns

type UpdateVocabularyItemParams struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Meaning  sql.NullString
	Example  sql.NullString
	Mastered bool
}

func (q *Queries) UpdateVocabularyItem(ctx context.Context, arg UpdateVocabularyItemParams) (VocabularyItem, error) {
	var v VocabularyItem
	err := q.db.GetContext(ctx, &v, updateVocabularyItem, arg.ID, arg.UserID, arg.Meaning, arg.Example, arg.Mastered)
	return v, err
}

const deleteVocabularyItem = `DELETE FROM vocabulary_items WHERE id = $1 AND user_id = $2`

type DeleteVocabularyItemParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeleteVocabularyItem(ctx context.Context, arg DeleteVocabularyItemParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteVocabularyItem, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
