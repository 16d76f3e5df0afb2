package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/toeicprep/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	QuestionsResponse []ai.Question
	QuestionsError    error
	ExplainResponse   string
	ExplainError      error

	// Call tracking for testing
	GenerateQuestionsCalls int
	ExplainCalls           int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

var mockUsage = ai.UsageInfo{
	Model:        "mock-ai-v1",
	InputTokens:  400,
	OutputTokens: 300,
	CostCents:    0,
	Duration:     50 * time.Millisecond,
}

// GenerateQuestions returns deterministic Part 5 style questions
func (p *Provider) GenerateQuestions(ctx context.Context, req ai.QuestionRequest) ([]ai.Question, ai.UsageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateQuestionsCalls++

	if p.QuestionsError != nil {
		return nil, ai.UsageInfo{}, p.QuestionsError
	}
	if p.QuestionsResponse != nil {
		return p.QuestionsResponse, mockUsage, nil
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	questions := make([]ai.Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, ai.Question{
			Part:   req.Part,
			Prompt: fmt.Sprintf("The quarterly report must be ___ to the manager by Friday. (%d)", i+1),
			Choices: []string{
				"(A) submit",
				"(B) submitted",
				"(C) submitting",
				"(D) submission",
			},
			Answer:      "B",
			Explanation: "After 'must be' the passive form needs the past participle 'submitted'.",
		})
	}
	return questions, mockUsage, nil
}

// Explain returns a canned tutoring reply
func (p *Provider) Explain(ctx context.Context, req ai.ChatRequest) (string, ai.UsageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExplainCalls++

	if p.ExplainError != nil {
		return "", ai.UsageInfo{}, p.ExplainError
	}
	if p.ExplainResponse != "" {
		return p.ExplainResponse, mockUsage, nil
	}
	if req.CorrectAnswer != "" {
		return fmt.Sprintf("The correct answer is %s. Look at the words around the blank to decide which form fits.", req.CorrectAnswer), mockUsage, nil
	}
	return "Look at the words around the blank to decide which form fits.", mockUsage, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateQuestionsCalls = 0
	p.ExplainCalls = 0
	p.QuestionsResponse = nil
	p.QuestionsError = nil
	p.ExplainResponse = ""
	p.ExplainError = nil
}

var _ ai.Generator = (*Provider)(nil)
