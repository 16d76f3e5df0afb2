package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWord(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Amortize", "amortize"},
		{"  AMORTIZE  ", "amortize"},
		{"Carry   Out", "carry out"},
		{"Ünternehmen", "ünternehmen"},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWord(tt.in))
		})
	}
}

func TestValidateWord(t *testing.T) {
	assert.NoError(t, ValidateWord("op", "invoice"))
	assert.Error(t, ValidateWord("op", ""))
	assert.NoError(t, ValidateWord("op", strings.Repeat("a", MaxWordLength)))
	assert.Error(t, ValidateWord("op", strings.Repeat("a", MaxWordLength+1)))
}

func TestVocabularyItem_IsDue(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, (&VocabularyItem{NextReviewDate: now}).IsDue(now))
	assert.True(t, (&VocabularyItem{NextReviewDate: now.Add(-time.Minute)}).IsDue(now))
	assert.False(t, (&VocabularyItem{NextReviewDate: now.Add(time.Minute)}).IsDue(now))
}
