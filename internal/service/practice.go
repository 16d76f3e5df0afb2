// Package service contains the business logic layer.
//
// This file implements AI practice question generation and the tutoring chat.
// Entitlement and quota gating happen in middleware before these calls; the
// service validates input, calls the generator and records usage metrics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/ai"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
)

const (
	// MaxTopicLength caps the free-text topic sent to the model.
	MaxTopicLength = 100

	// MaxChatMessageLength caps a single chat message.
	MaxChatMessageLength = 2000
)

// =============================================================================
// Interface Definition
// =============================================================================

// PracticeService generates practice material with the AI generator.
type PracticeService interface {
	// GenerateQuestions validates the request and returns fresh questions.
	// Returns domain.EUNAVAILABLE when the generator fails.
	GenerateQuestions(ctx context.Context, userID uuid.UUID, req ai.QuestionRequest) ([]ai.Question, error)

	// Explain returns a tutoring reply about one question.
	Explain(ctx context.Context, userID uuid.UUID, req ai.ChatRequest) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

type practiceService struct {
	generator ai.Generator
	logger    *slog.Logger
}

// NewPracticeService creates a new PracticeService.
func NewPracticeService(generator ai.Generator, logger *slog.Logger) PracticeService {
	return &practiceService{
		generator: generator,
		logger:    logger,
	}
}

func (s *practiceService) GenerateQuestions(ctx context.Context, userID uuid.UUID, req ai.QuestionRequest) ([]ai.Question, error) {
	const op = "practice.generate"

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Difficulty == "" {
		req.Difficulty = ai.DifficultyMedium
	}
	if err := validateQuestionRequest(op, req); err != nil {
		return nil, err
	}
	req.UserID = userID

	questions, usage, err := s.generator.GenerateQuestions(ctx, req)
	if err != nil {
		metrics.AIGeneration("questions", "error", usage.InputTokens, usage.OutputTokens)
		return nil, s.generatorError(err, op, userID)
	}
	metrics.AIGeneration("questions", "success", usage.InputTokens, usage.OutputTokens)

	s.logger.Info("practice questions generated",
		"user_id", userID,
		"part", req.Part,
		"count", len(questions),
		"model", usage.Model,
		"duration_ms", usage.Duration.Milliseconds(),
	)
	return questions, nil
}

func validateQuestionRequest(op string, req ai.QuestionRequest) error {
	var verr *domain.ValidationError
	if req.Part < ai.MinPart || req.Part > ai.MaxPart {
		verr = domain.NewValidationError(op, "part", "Part must be between 1 and 7")
	}
	if req.Count < ai.MinQuestionCount || req.Count > ai.MaxQuestionCount {
		verr = addField(verr, op, "count", "Count must be between 1 and 20")
	}
	if !req.Difficulty.Valid() {
		verr = addField(verr, op, "difficulty", "Difficulty must be easy, medium or hard")
	}
	if utf8.RuneCountInString(req.Topic) > MaxTopicLength {
		verr = addField(verr, op, "topic", "Topic must be 100 characters or fewer")
	}
	if verr != nil {
		return verr
	}
	return nil
}

func addField(verr *domain.ValidationError, op, field, message string) *domain.ValidationError {
	if verr == nil {
		return domain.NewValidationError(op, field, message)
	}
	verr.Fields[field] = message
	return verr
}

func (s *practiceService) Explain(ctx context.Context, userID uuid.UUID, req ai.ChatRequest) (string, error) {
	const op = "practice.explain"

	req.Question = strings.TrimSpace(req.Question)
	req.Message = strings.TrimSpace(req.Message)
	if req.Question == "" {
		return "", domain.NewValidationError(op, "question", "Question is required")
	}
	if utf8.RuneCountInString(req.Message) > MaxChatMessageLength {
		return "", domain.NewValidationError(op, "message", "Message must be 2000 characters or fewer")
	}
	req.UserID = userID

	reply, usage, err := s.generator.Explain(ctx, req)
	if err != nil {
		metrics.AIGeneration("chat", "error", usage.InputTokens, usage.OutputTokens)
		return "", s.generatorError(err, op, userID)
	}
	metrics.AIGeneration("chat", "success", usage.InputTokens, usage.OutputTokens)

	s.logger.Info("chat reply generated",
		"user_id", userID,
		"model", usage.Model,
		"output_tokens", usage.OutputTokens,
	)
	return reply, nil
}

// generatorError maps generator failures onto domain errors. The caller
// releases any reserved quota when an error comes back.
func (s *practiceService) generatorError(err error, op string, userID uuid.UUID) error {
	if errors.Is(err, context.Canceled) {
		return domain.Wrap(err, domain.EUNAVAILABLE, op, "The request was canceled.")
	}
	s.logger.Error("ai generation failed", "op", op, "user_id", userID, "error", err)
	if errors.Is(err, ai.EAIRateLimit) {
		return domain.Wrap(err, domain.EUNAVAILABLE, op, "The tutor is busy right now. Please try again in a minute.")
	}
	return domain.Unavailable(err, op, "Unable to generate content right now. Please try again.")
}

var _ PracticeService = (*practiceService)(nil)
