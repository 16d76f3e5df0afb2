// Package domain contains core business types and interfaces.
//
// This file defines vocabulary items and the parameter types used by the
// vocabulary service.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scheduling defaults for a new vocabulary item.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	DefaultInterval   = 1
	MaxWordLength     = 100
)

// Mastery thresholds applied after a correct review.
const (
	MasteryMinInterval     = 21
	MasteryMinCorrectCount = 5
)

var lowerCaser = cases.Lower(language.Und)

// NormalizeWord trims and lower-cases a word so (user, word) stays unique
// regardless of how it was typed. Internal whitespace collapses to one space.
func NormalizeWord(word string) string {
	return lowerCaser.String(strings.Join(strings.Fields(word), " "))
}

// ValidateWord checks a normalized word.
func ValidateWord(op, word string) error {
	if word == "" {
		return NewValidationError(op, "word", "Word is required")
	}
	if utf8.RuneCountInString(word) > MaxWordLength {
		return NewValidationError(op, "word", "Word must be 100 characters or fewer")
	}
	return nil
}

// VocabularyItem is one entry in a user's word list.
type VocabularyItem struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Word           string
	Meaning        string
	Example        string
	PartOfSpeech   string
	ReviewCount    int
	CorrectCount   int
	IncorrectCount int
	EaseFactor     float64
	Interval       int
	NextReviewDate time.Time
	LastReviewedAt *time.Time
	Mastered       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsDue reports whether the item is due for review at now.
func (v *VocabularyItem) IsDue(now time.Time) bool {
	return !v.NextReviewDate.After(now)
}

// VocabularyStats summarizes a user's word list.
// NeedsReview excludes mastered items; DueNow does not.
type VocabularyStats struct {
	Total         int
	Mastered      int
	DueNow        int
	NeedsReview   int
	ReviewedToday int
}

// CreateVocabularyParams contains the parameters for adding a word.
type CreateVocabularyParams struct {
	UserID       uuid.UUID
	Word         string
	Meaning      string
	Example      string
	PartOfSpeech string
}

// UpdateVocabularyParams contains an optional-field patch of a word.
type UpdateVocabularyParams struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Meaning  *string
	Example  *string
	Mastered *bool
}

// ListVocabularyParams filters and pages the word list.
type ListVocabularyParams struct {
	UserID uuid.UUID
	Search string
	Limit  int
	Offset int
}

// DueVocabularyParams selects due items. IncludeMastered is the explicit
// policy for whether mastered words can resurface in the due listing.
type DueVocabularyParams struct {
	UserID          uuid.UUID
	Limit           int
	IncludeMastered bool
}

// ReviewParams is a submitted review outcome.
type ReviewParams struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Correct          bool
	DifficultyRating int
}

// ImportResult summarizes a spreadsheet import.
type ImportResult struct {
	Created int
	Skipped int
	Errors  []string
}

// VocabularyEntry is one row of an imported or exported word list.
type VocabularyEntry struct {
	Word         string
	Meaning      string
	Example      string
	PartOfSpeech string
}
