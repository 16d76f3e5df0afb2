package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/ai"
	"github.com/DukeRupert/toeicprep/internal/ai/mock"
	"github.com/DukeRupert/toeicprep/internal/domain"
)

func newTestPracticeService() (PracticeService, *mock.Provider) {
	gen := mock.New(discardLogger())
	return NewPracticeService(gen, discardLogger()), gen
}

func TestPracticeService_GenerateQuestions(t *testing.T) {
	svc, gen := newTestPracticeService()

	questions, err := svc.GenerateQuestions(context.Background(), uuid.New(), ai.QuestionRequest{
		Part:  5,
		Count: 3,
		Topic: "  travel  ",
	})
	require.NoError(t, err)
	assert.Len(t, questions, 3)
	assert.Equal(t, "B", questions[0].Answer)
	assert.Equal(t, 1, gen.GenerateQuestionsCalls)
}

func TestPracticeService_GenerateQuestions_Validation(t *testing.T) {
	tests := []struct {
		name   string
		req    ai.QuestionRequest
		fields []string
	}{
		{"part too low", ai.QuestionRequest{Part: 0, Count: 1}, []string{"part"}},
		{"part too high", ai.QuestionRequest{Part: 8, Count: 1}, []string{"part"}},
		{"count zero", ai.QuestionRequest{Part: 5, Count: 0}, []string{"count"}},
		{"count too high", ai.QuestionRequest{Part: 5, Count: 21}, []string{"count"}},
		{"unknown difficulty", ai.QuestionRequest{Part: 5, Count: 1, Difficulty: "brutal"}, []string{"difficulty"}},
		{"long topic", ai.QuestionRequest{Part: 5, Count: 1, Topic: strings.Repeat("x", 101)}, []string{"topic"}},
		{"several fields", ai.QuestionRequest{Part: 9, Count: 50}, []string{"part", "count"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gen := newTestPracticeService()

			_, err := svc.GenerateQuestions(context.Background(), uuid.New(), tt.req)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.fields))
			assert.Zero(t, gen.GenerateQuestionsCalls)
		})
	}
}

func TestPracticeService_GeneratorFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"rate limited", ai.WrapError("generate questions", ai.EAIRateLimit), "The tutor is busy right now. Please try again in a minute."},
		{"provider down", fmt.Errorf("boom: %w", ai.EAIUnavailable), "Unable to generate content right now. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gen := newTestPracticeService()
			gen.QuestionsError = tt.err

			_, err := svc.GenerateQuestions(context.Background(), uuid.New(), ai.QuestionRequest{Part: 5, Count: 1})

			assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
			assert.Equal(t, tt.message, domain.ErrorMessage(err))
		})
	}
}

func TestPracticeService_Explain(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the tutor reply", func(t *testing.T) {
		svc, gen := newTestPracticeService()

		reply, err := svc.Explain(ctx, uuid.New(), ai.ChatRequest{
			Question:      "The report must be ___ by Friday.",
			UserAnswer:    "A",
			CorrectAnswer: "B",
		})
		require.NoError(t, err)
		assert.Contains(t, reply, "The correct answer is B")
		assert.Equal(t, 1, gen.ExplainCalls)
	})

	t.Run("requires a question", func(t *testing.T) {
		svc, gen := newTestPracticeService()

		_, err := svc.Explain(ctx, uuid.New(), ai.ChatRequest{Question: "   "})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Zero(t, gen.ExplainCalls)
	})

	t.Run("rejects long messages", func(t *testing.T) {
		svc, _ := newTestPracticeService()

		_, err := svc.Explain(ctx, uuid.New(), ai.ChatRequest{
			Question: "q",
			Message:  strings.Repeat("a", MaxChatMessageLength+1),
		})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("generator error is unavailable", func(t *testing.T) {
		svc, gen := newTestPracticeService()
		gen.ExplainError = ai.EAITimeout

		_, err := svc.Explain(ctx, uuid.New(), ai.ChatRequest{Question: "q"})
		assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	})
}
