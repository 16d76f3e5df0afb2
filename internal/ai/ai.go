package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces TOEIC practice content and tutoring replies.
type Generator interface {
	// GenerateQuestions writes a set of practice questions for one TOEIC part.
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]Question, UsageInfo, error)

	// Explain answers a learner's follow-up about a question.
	Explain(ctx context.Context, req ChatRequest) (string, UsageInfo, error)
}

// TOEIC parts. Parts 1 to 4 are listening, 5 to 7 reading.
const (
	MinPart = 1
	MaxPart = 7

	MinQuestionCount = 1
	MaxQuestionCount = 20
)

// Difficulty of generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid checks if the difficulty is known
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// QuestionRequest contains parameters for question generation
type QuestionRequest struct {
	Part       int        // TOEIC part, 1-7
	Count      int        // Number of questions, 1-20
	Difficulty Difficulty // Target difficulty
	Topic      string     // Optional business topic (e.g. "shipping delays")
	UserID     uuid.UUID  // User ID for tracking
}

// Question is one multiple-choice practice item
type Question struct {
	Part        int      `json:"part"`
	Passage     string   `json:"passage,omitempty"`
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	Answer      string   `json:"answer"` // "A" to "D"
	Explanation string   `json:"explanation"`
}

// ChatRequest contains a learner's question about a practice item
type ChatRequest struct {
	Question      string
	UserAnswer    string
	CorrectAnswer string
	Message       string
	UserID        uuid.UUID
}

// UsageInfo tracks API usage for billing and monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the provider rejected the request
	EAIInvalidRequest = errors.New("ai provider rejected the request")

	// EAIBadOutput indicates the model returned content we could not parse
	EAIBadOutput = errors.New("ai provider returned malformed output")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
