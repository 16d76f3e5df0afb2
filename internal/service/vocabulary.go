package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/review"
)

// Listing limits.
const (
	DefaultVocabularyPageSize = 50
	MaxVocabularyPageSize     = 200
	MaxImportRows             = 5000
)

// =============================================================================
// Interface Definition
// =============================================================================

// VocabularyService manages a user's word list and its review schedule.
type VocabularyService interface {
	// Create adds a word. Returns domain.ECONFLICT for a duplicate word and a
	// *domain.Denial when the plan's word limit is reached.
	Create(ctx context.Context, params domain.CreateVocabularyParams) (*domain.VocabularyItem, error)

	// Get returns one item owned by userID.
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.VocabularyItem, error)

	// List returns the word list, newest first.
	List(ctx context.Context, params domain.ListVocabularyParams) ([]domain.VocabularyItem, error)

	// Due returns items whose next review date has passed, soonest first.
	Due(ctx context.Context, params domain.DueVocabularyParams) ([]domain.VocabularyItem, error)

	// Stats summarizes the word list.
	Stats(ctx context.Context, userID uuid.UUID) (*domain.VocabularyStats, error)

	// Review records a review outcome and reschedules the item. A concurrent
	// review of the same item returns domain.ECONFLICT.
	Review(ctx context.Context, params domain.ReviewParams) (*domain.VocabularyItem, error)

	// Update patches meaning, example or mastered.
	Update(ctx context.Context, params domain.UpdateVocabularyParams) (*domain.VocabularyItem, error)

	// Delete removes an item. Returns domain.ENOTFOUND when it does not exist.
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// Import adds many words, skipping duplicates.
	Import(ctx context.Context, userID uuid.UUID, entries []domain.VocabularyEntry) (*domain.ImportResult, error)

	// ExportAll returns every item of a user ordered by word.
	ExportAll(ctx context.Context, userID uuid.UUID) ([]domain.VocabularyItem, error)
}

// =============================================================================
// Implementation
// =============================================================================

type vocabularyService struct {
	store      repository.Store
	resolver   EntitlementResolver
	location   *time.Location
	upgradeURL string
	logger     *slog.Logger
	now        func() time.Time
}

// NewVocabularyService creates a new VocabularyService.
func NewVocabularyService(store repository.Store, resolver EntitlementResolver, loc *time.Location, upgradeURL string, logger *slog.Logger) VocabularyService {
	if loc == nil {
		loc = time.Local
	}
	return &vocabularyService{
		store:      store,
		resolver:   resolver,
		location:   loc,
		upgradeURL: upgradeURL,
		logger:     logger,
		now:        time.Now,
	}
}

// wordAllowance returns how many words the user may still add, or -1 when no
// limit applies. A *domain.Denial is returned once the limit is reached.
func (s *vocabularyService) wordAllowance(ctx context.Context, op string, userID uuid.UUID) (int, error) {
	info := s.resolver.GetUserSubscriptionInfo(ctx, userID)
	if info.Source == domain.SourceError {
		return 0, domain.Unavailable(nil, op, "Unable to verify your plan right now. Please try again.")
	}
	maxWords := info.Permissions.MaxVocabularyWords
	if maxWords == nil {
		return -1, nil
	}

	count, err := s.store.CountVocabularyItems(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count vocabulary")
	}
	if int(count) >= *maxWords {
		st := domain.QuotaStatus{
			CanUse:    false,
			Used:      int(count),
			Limit:     domain.IntPtr(*maxWords),
			Remaining: domain.IntPtr(0),
		}
		metrics.QuotaDenials.WithLabelValues(string(domain.ResourceTotalVocabulary)).Inc()
		return 0, domain.QuotaExceeded(op, domain.ResourceTotalVocabulary, st, info.TrialAvailable, s.upgradeURL)
	}
	return *maxWords - int(count), nil
}

func (s *vocabularyService) Create(ctx context.Context, params domain.CreateVocabularyParams) (*domain.VocabularyItem, error) {
	const op = "vocabulary.create"

	word := domain.NormalizeWord(params.Word)
	if err := domain.ValidateWord(op, word); err != nil {
		return nil, err
	}

	if _, err := s.wordAllowance(ctx, op, params.UserID); err != nil {
		return nil, err
	}

	row, err := s.insert(ctx, params.UserID, domain.VocabularyEntry{
		Word:         word,
		Meaning:      params.Meaning,
		Example:      params.Example,
		PartOfSpeech: params.PartOfSpeech,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.Conflict(op, fmt.Sprintf("%q is already in your vocabulary", word))
		}
		return nil, domain.Internal(err, op, "failed to create vocabulary item")
	}

	s.logger.Info("vocabulary item created", "user_id", params.UserID, "item_id", row.ID)
	return repoVocabularyToDomain(row), nil
}

// insert writes a normalized entry with the initial schedule: due now, ease
// 2.5, interval one day.
func (s *vocabularyService) insert(ctx context.Context, userID uuid.UUID, e domain.VocabularyEntry) (repository.VocabularyItem, error) {
	return s.store.CreateVocabularyItem(ctx, repository.CreateVocabularyItemParams{
		UserID:         userID,
		Word:           e.Word,
		Meaning:        domain.ToNullString(strings.TrimSpace(e.Meaning)),
		Example:        domain.ToNullString(strings.TrimSpace(e.Example)),
		PartOfSpeech:   domain.ToNullString(strings.TrimSpace(e.PartOfSpeech)),
		EaseFactor:     domain.DefaultEaseFactor,
		IntervalDays:   domain.DefaultInterval,
		NextReviewDate: s.now(),
	})
}

func (s *vocabularyService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.VocabularyItem, error) {
	const op = "vocabulary.get"

	row, err := s.store.GetVocabularyItem(ctx, repository.GetVocabularyItemParams{ID: id, UserID: userID})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "vocabulary item", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load vocabulary item")
	}
	return repoVocabularyToDomain(row), nil
}

func (s *vocabularyService) List(ctx context.Context, params domain.ListVocabularyParams) ([]domain.VocabularyItem, error) {
	const op = "vocabulary.list"

	if params.Offset < 0 {
		params.Offset = 0
	}
	rows, err := s.store.ListVocabularyItems(ctx, repository.ListVocabularyItemsParams{
		UserID: params.UserID,
		Search: domain.NormalizeWord(params.Search),
		Limit:  int32(pageSize(params.Limit)),
		Offset: int32(params.Offset),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list vocabulary")
	}
	return repoVocabularyListToDomain(rows), nil
}

func (s *vocabularyService) Due(ctx context.Context, params domain.DueVocabularyParams) ([]domain.VocabularyItem, error) {
	const op = "vocabulary.due"

	rows, err := s.store.ListDueVocabularyItems(ctx, repository.ListDueVocabularyItemsParams{
		UserID:          params.UserID,
		Now:             s.now(),
		IncludeMastered: params.IncludeMastered,
		Limit:           int32(pageSize(params.Limit)),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list due vocabulary")
	}
	return repoVocabularyListToDomain(rows), nil
}

func (s *vocabularyService) Stats(ctx context.Context, userID uuid.UUID) (*domain.VocabularyStats, error) {
	const op = "vocabulary.stats"

	now := s.now()
	dayStart, _ := domain.DayBounds(now, s.location)
	row, err := s.store.GetVocabularyStats(ctx, repository.GetVocabularyStatsParams{
		UserID:   userID,
		Now:      now,
		DayStart: dayStart,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load vocabulary stats")
	}
	return &domain.VocabularyStats{
		Total:         int(row.Total),
		Mastered:      int(row.Mastered),
		DueNow:        int(row.DueNow),
		NeedsReview:   int(row.NeedsReview),
		ReviewedToday: int(row.ReviewedToday),
	}, nil
}

func (s *vocabularyService) Review(ctx context.Context, params domain.ReviewParams) (*domain.VocabularyItem, error) {
	const op = "vocabulary.review"

	outcome := review.Outcome{Correct: params.Correct, Rating: params.DifficultyRating}
	if err := review.ValidateOutcome(outcome); err != nil {
		return nil, err
	}

	item, err := s.Get(ctx, params.UserID, params.ID)
	if err != nil {
		return nil, err
	}

	next, err := review.Apply(*item, outcome, s.now())
	if err != nil {
		return nil, err
	}

	row, err := s.store.UpdateVocabularyReview(ctx, repository.UpdateVocabularyReviewParams{
		ID:                  next.ID,
		UserID:              next.UserID,
		ExpectedReviewCount: int32(item.ReviewCount),
		ReviewCount:         int32(next.ReviewCount),
		CorrectCount:        int32(next.CorrectCount),
		IncorrectCount:      int32(next.IncorrectCount),
		EaseFactor:          next.EaseFactor,
		IntervalDays:        int32(next.Interval),
		NextReviewDate:      next.NextReviewDate,
		LastReviewedAt:      domain.ToNullTime(next.LastReviewedAt),
		Mastered:            next.Mastered,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.Conflict(op, "This word was reviewed by another request. Reload and try again.")
		}
		return nil, domain.Internal(err, op, "failed to save review")
	}

	outcomeLabel := "incorrect"
	if params.Correct {
		outcomeLabel = "correct"
	}
	metrics.VocabularyReviews.WithLabelValues(outcomeLabel).Inc()

	s.logger.Debug("vocabulary reviewed",
		"user_id", params.UserID,
		"item_id", params.ID,
		"correct", params.Correct,
		"interval", next.Interval,
		"ease_factor", next.EaseFactor,
	)
	return repoVocabularyToDomain(row), nil
}

func (s *vocabularyService) Update(ctx context.Context, params domain.UpdateVocabularyParams) (*domain.VocabularyItem, error) {
	const op = "vocabulary.update"

	item, err := s.Get(ctx, params.UserID, params.ID)
	if err != nil {
		return nil, err
	}

	if params.Meaning != nil {
		item.Meaning = strings.TrimSpace(*params.Meaning)
	}
	if params.Example != nil {
		item.Example = strings.TrimSpace(*params.Example)
	}
	if params.Mastered != nil {
		item.Mastered = *params.Mastered
	}

	row, err := s.store.UpdateVocabularyItem(ctx, repository.UpdateVocabularyItemParams{
		ID:       item.ID,
		UserID:   item.UserID,
		Meaning:  domain.ToNullString(item.Meaning),
		Example:  domain.ToNullString(item.Example),
		Mastered: item.Mastered,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "vocabulary item", params.ID.String())
		}
		return nil, domain.Internal(err, op, "failed to update vocabulary item")
	}
	return repoVocabularyToDomain(row), nil
}

func (s *vocabularyService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const op = "vocabulary.delete"

	n, err := s.store.DeleteVocabularyItem(ctx, repository.DeleteVocabularyItemParams{ID: id, UserID: userID})
	if err != nil {
		return domain.Internal(err, op, "failed to delete vocabulary item")
	}
	if n == 0 {
		return domain.NotFound(op, "vocabulary item", id.String())
	}

	s.logger.Info("vocabulary item deleted", "user_id", userID, "item_id", id)
	return nil
}

// Import adds entries in order until the plan's word limit is reached.
// Duplicates, including repeats within the import, are skipped.
func (s *vocabularyService) Import(ctx context.Context, userID uuid.UUID, entries []domain.VocabularyEntry) (*domain.ImportResult, error) {
	const op = "vocabulary.import"

	if len(entries) > MaxImportRows {
		return nil, domain.Invalid(op, fmt.Sprintf("Imports are limited to %d rows", MaxImportRows))
	}

	allowance, err := s.wordAllowance(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	result := &domain.ImportResult{Errors: []string{}}
	for i, e := range entries {
		rowNum := i + 1

		e.Word = domain.NormalizeWord(e.Word)
		if err := domain.ValidateWord(op, e.Word); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", rowNum, fieldMessage(err, "word")))
			continue
		}

		if allowance == 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("row %d: vocabulary limit reached, %d rows not imported", rowNum, len(entries)-i))
			break
		}

		if _, err := s.insert(ctx, userID, e); err != nil {
			if repository.IsUniqueViolation(err) {
				result.Skipped++
				continue
			}
			return nil, domain.Internal(err, op, "failed to import vocabulary")
		}
		result.Created++
		if allowance > 0 {
			allowance--
		}
	}

	s.logger.Info("vocabulary imported",
		"user_id", userID,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *vocabularyService) ExportAll(ctx context.Context, userID uuid.UUID) ([]domain.VocabularyItem, error) {
	const op = "vocabulary.export"

	rows, err := s.store.ListAllVocabularyItems(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load vocabulary")
	}
	return repoVocabularyListToDomain(rows), nil
}

// fieldMessage returns the message of one field of a validation error.
func fieldMessage(err error, field string) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		if msg, ok := ve.Fields[field]; ok {
			return msg
		}
	}
	return domain.ErrorMessage(err)
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultVocabularyPageSize
	case limit > MaxVocabularyPageSize:
		return MaxVocabularyPageSize
	default:
		return limit
	}
}

var _ VocabularyService = (*vocabularyService)(nil)
