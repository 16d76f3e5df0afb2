package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/toeicprep/internal/ai"
	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
)

// PracticeHandler serves AI practice questions and the tutoring chat. Both
// routes are metered; the gate hands usage back when a handler fails.
//
// Routes handled:
//   - POST /api/practice/generate -> Generate
//   - POST /api/chat/explain      -> Explain
type PracticeHandler struct {
	practice service.PracticeService
	logger   *slog.Logger
}

// NewPracticeHandler creates a new PracticeHandler.
func NewPracticeHandler(practice service.PracticeService, logger *slog.Logger) *PracticeHandler {
	return &PracticeHandler{
		practice: practice,
		logger:   logger,
	}
}

// RegisterRoutes registers practice routes.
func (h *PracticeHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware, gate Gate) {
	mux.Handle("POST /api/practice/generate",
		requireUser(gate(domain.FeatureAIPractice, domain.ResourceDailyPractice)(http.HandlerFunc(h.Generate))))
	mux.Handle("POST /api/chat/explain",
		requireUser(gate(domain.FeatureAIChat, domain.ResourceDailyAIChat)(http.HandlerFunc(h.Explain))))
}

type generateRequest struct {
	Part       int    `json:"part"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	Topic      string `json:"topic"`
}

// Generate writes a set of practice questions.
func (h *PracticeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.practice.generate"
	user := auth.GetUser(r.Context())

	var req generateRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	questions, err := h.practice.GenerateQuestions(r.Context(), user.ID, ai.QuestionRequest{
		Part:       req.Part,
		Count:      req.Count,
		Difficulty: ai.Difficulty(req.Difficulty),
		Topic:      req.Topic,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]ai.Question{"questions": questions})
}

type explainRequest struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Message       string `json:"message"`
}

// Explain answers a follow-up about one question.
func (h *PracticeHandler) Explain(w http.ResponseWriter, r *http.Request) {
	const op = "handler.practice.explain"
	user := auth.GetUser(r.Context())

	var req explainRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	reply, err := h.practice.Explain(r.Context(), user.ID, ai.ChatRequest{
		Question:      req.Question,
		UserAnswer:    req.UserAnswer,
		CorrectAnswer: req.CorrectAnswer,
		Message:       req.Message,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
