// Package review implements the SM-2 style scheduler for vocabulary review.
//
// Schedule is pure: it takes the current scheduling state of an item and a
// review outcome and returns the next state. Persisting the result, and the
// counter bookkeeping that goes with it, is the caller's job (see Apply).
package review

import (
	"math"
	"time"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

const (
	// MinRating is "very hard".
	MinRating = 1
	// MaxRating is "very easy".
	MaxRating = 5

	// IncorrectPenalty is subtracted from the ease factor on a failed review.
	IncorrectPenalty = 0.2

	firstInterval  = 1
	secondInterval = 6
)

// State is the scheduling state of an item before a review.
type State struct {
	ReviewCount int
	EaseFactor  float64
	Interval    int
}

// Outcome is a submitted review result. Rating is only meaningful when
// Correct is true.
type Outcome struct {
	Correct bool
	Rating  int
}

// Result is the next scheduling state.
type Result struct {
	EaseFactor     float64
	Interval       int
	NextReviewDate time.Time
}

// ValidateOutcome rejects ratings outside 1..5 on a correct review. A failed
// review ignores its rating, but a value other than 0 or 1..5 is still
// malformed input.
func ValidateOutcome(o Outcome) error {
	const op = "review.validate"

	if o.Correct {
		if o.Rating < MinRating || o.Rating > MaxRating {
			return domain.NewValidationError(op, "difficultyRating", "Difficulty rating must be between 1 and 5")
		}
		return nil
	}
	if o.Rating < 0 || o.Rating > MaxRating {
		return domain.NewValidationError(op, "difficultyRating", "Difficulty rating must be between 1 and 5")
	}
	return nil
}

// Schedule computes the next ease factor, interval and due date.
func Schedule(s State, o Outcome, now time.Time) (Result, error) {
	if err := ValidateOutcome(o); err != nil {
		return Result{}, err
	}

	ef := s.EaseFactor
	if ef == 0 {
		ef = domain.DefaultEaseFactor
	}

	var res Result
	if o.Correct {
		q := float64(MaxRating - o.Rating)
		res.EaseFactor = floorEase(ef + (0.1 - q*(0.08+q*0.02)))

		switch s.ReviewCount {
		case 0:
			res.Interval = firstInterval
		case 1:
			res.Interval = secondInterval
		default:
			prev := s.Interval
			if prev < 1 {
				prev = domain.DefaultInterval
			}
			res.Interval = int(math.Round(float64(prev) * res.EaseFactor))
		}
	} else {
		res.EaseFactor = floorEase(ef - IncorrectPenalty)
		res.Interval = firstInterval
	}

	res.NextReviewDate = now.AddDate(0, 0, res.Interval)
	return res, nil
}

func floorEase(ef float64) float64 {
	if ef < domain.MinEaseFactor {
		return domain.MinEaseFactor
	}
	return ef
}

// Apply runs Schedule and folds the result into a copy of item together with
// the counters a review updates.
func Apply(item domain.VocabularyItem, o Outcome, now time.Time) (domain.VocabularyItem, error) {
	res, err := Schedule(State{
		ReviewCount: item.ReviewCount,
		EaseFactor:  item.EaseFactor,
		Interval:    item.Interval,
	}, o, now)
	if err != nil {
		return item, err
	}

	item.EaseFactor = res.EaseFactor
	item.Interval = res.Interval
	item.NextReviewDate = res.NextReviewDate
	item.ReviewCount++
	if o.Correct {
		item.CorrectCount++
		if IsMastered(item) {
			item.Mastered = true
		}
	} else {
		item.IncorrectCount++
		item.Mastered = false
	}
	reviewedAt := now
	item.LastReviewedAt = &reviewedAt
	return item, nil
}

// IsMastered reports whether an item meets the mastery thresholds.
func IsMastered(item domain.VocabularyItem) bool {
	return item.Interval >= domain.MasteryMinInterval &&
		item.CorrectCount >= domain.MasteryMinCorrectCount
}
