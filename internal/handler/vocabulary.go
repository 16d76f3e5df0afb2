package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/service"
	"github.com/DukeRupert/toeicprep/internal/storage"
	"github.com/DukeRupert/toeicprep/internal/vocabio"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// Gate builds middleware that requires feature and, when rt is set, meters
// one unit of rt.
type Gate func(feature domain.Feature, rt domain.ResourceType) Middleware

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// maxImportSize caps uploaded workbooks.
	maxImportSize = 10 << 20
)

// VocabularyHandler serves the spaced-repetition word list.
//
// Routes handled:
//   - POST   /api/vocabulary             -> Create
//   - GET    /api/vocabulary             -> List
//   - GET    /api/vocabulary/due         -> Due
//   - GET    /api/vocabulary/stats       -> Stats
//   - GET    /api/vocabulary/{id}        -> Get
//   - PATCH  /api/vocabulary/{id}        -> Update
//   - DELETE /api/vocabulary/{id}        -> Delete
//   - POST   /api/vocabulary/{id}/review -> Review
//   - POST   /api/vocabulary/import      -> Import
//   - POST   /api/vocabulary/export      -> Export
type VocabularyHandler struct {
	vocab  service.VocabularyService
	jobs   worker.Enqueuer
	logger *slog.Logger
}

// NewVocabularyHandler creates a new VocabularyHandler. jobs receives
// export requests.
func NewVocabularyHandler(vocab service.VocabularyService, jobs worker.Enqueuer, logger *slog.Logger) *VocabularyHandler {
	return &VocabularyHandler{
		vocab:  vocab,
		jobs:   jobs,
		logger: logger,
	}
}

// RegisterRoutes registers vocabulary routes.
func (h *VocabularyHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware, gate Gate) {
	vocab := func(fn http.HandlerFunc) http.Handler {
		return requireUser(gate(domain.FeatureVocabulary, "")(fn))
	}

	mux.Handle("POST /api/vocabulary", vocab(h.Create))
	mux.Handle("GET /api/vocabulary", vocab(h.List))
	mux.Handle("GET /api/vocabulary/due", vocab(h.Due))
	mux.Handle("GET /api/vocabulary/stats", vocab(h.Stats))
	mux.Handle("GET /api/vocabulary/{id}", vocab(h.Get))
	mux.Handle("PATCH /api/vocabulary/{id}", vocab(h.Update))
	mux.Handle("DELETE /api/vocabulary/{id}", vocab(h.Delete))
	mux.Handle("POST /api/vocabulary/{id}/review", vocab(h.Review))
	mux.Handle("POST /api/vocabulary/import", vocab(h.Import))
	mux.Handle("POST /api/vocabulary/export",
		requireUser(gate(domain.FeatureExportData, "")(http.HandlerFunc(h.Export))))
}

// =============================================================================
// CRUD
// =============================================================================

type createVocabularyRequest struct {
	Word         string `json:"word"`
	Meaning      string `json:"meaning"`
	Example      string `json:"example"`
	PartOfSpeech string `json:"partOfSpeech"`
}

// Create adds a word to the caller's list.
func (h *VocabularyHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.create"
	user := auth.GetUser(r.Context())

	var req createVocabularyRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	item, err := h.vocab.Create(r.Context(), domain.CreateVocabularyParams{
		UserID:       user.ID,
		Word:         req.Word,
		Meaning:      req.Meaning,
		Example:      req.Example,
		PartOfSpeech: req.PartOfSpeech,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVocabularyResponse(item))
}

// Get returns one item.
func (h *VocabularyHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.get"
	user := auth.GetUser(r.Context())

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	item, err := h.vocab.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toVocabularyResponse(item))
}

// List returns the caller's words, newest first.
func (h *VocabularyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	limit := min(queryInt(r, "limit", defaultListLimit), maxListLimit)
	offset := queryInt(r, "offset", 0)

	items, err := h.vocab.List(r.Context(), domain.ListVocabularyParams{
		UserID: user.ID,
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  toVocabularyList(items),
		"limit":  limit,
		"offset": offset,
	})
}

// Due returns items whose next review date has passed.
func (h *VocabularyHandler) Due(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	items, err := h.vocab.Due(r.Context(), domain.DueVocabularyParams{
		UserID:          user.ID,
		Limit:           min(queryInt(r, "limit", defaultListLimit), maxListLimit),
		IncludeMastered: queryBool(r, "includeMastered", true),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toVocabularyList(items)})
}

// Stats returns review counters for the caller's list.
func (h *VocabularyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	st, err := h.vocab.Stats(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, vocabularyStatsResponse{
		Total:         st.Total,
		Mastered:      st.Mastered,
		DueNow:        st.DueNow,
		NeedsReview:   st.NeedsReview,
		ReviewedToday: st.ReviewedToday,
	})
}

type updateVocabularyRequest struct {
	Meaning  *string `json:"meaning"`
	Example  *string `json:"example"`
	Mastered *bool   `json:"mastered"`
}

// Update edits the meaning, example or mastered flag of an item.
func (h *VocabularyHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.update"
	user := auth.GetUser(r.Context())

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	var req updateVocabularyRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	item, err := h.vocab.Update(r.Context(), domain.UpdateVocabularyParams{
		ID:       id,
		UserID:   user.ID,
		Meaning:  req.Meaning,
		Example:  req.Example,
		Mastered: req.Mastered,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toVocabularyResponse(item))
}

// Delete removes an item.
func (h *VocabularyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.delete"
	user := auth.GetUser(r.Context())

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.vocab.Delete(r.Context(), user.ID, id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Review
// =============================================================================

type reviewRequest struct {
	Correct          *bool `json:"correct"`
	DifficultyRating int   `json:"difficultyRating"`
}

// Review records one answer and reschedules the item.
func (h *VocabularyHandler) Review(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.review"
	user := auth.GetUser(r.Context())

	id, err := pathID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Correct == nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "correct", "Correct is required"))
		return
	}

	item, err := h.vocab.Review(r.Context(), domain.ReviewParams{
		ID:               id,
		UserID:           user.ID,
		Correct:          *req.Correct,
		DifficultyRating: req.DifficultyRating,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toVocabularyResponse(item))
}

// =============================================================================
// Import / Export
// =============================================================================

// Import adds the rows of an uploaded xlsx workbook. Row-level problems are
// reported in the result rather than failing the upload.
func (h *VocabularyHandler) Import(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.import"
	user := auth.GetUser(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "Workbook must be 10 MB or smaller"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "An xlsx file is required"))
		return
	}
	defer file.Close()

	if !storage.IsSpreadsheet(header.Header.Get("Content-Type"), header.Filename) {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "File must be an xlsx workbook"))
		return
	}

	entries, rowErrors, err := vocabio.Read(file)
	if err != nil {
		switch {
		case errors.Is(err, vocabio.ErrTooManyRows):
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Workbook has too many rows"))
		case errors.Is(err, vocabio.ErrEmptyWorkbook):
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Workbook is empty"))
		default:
			ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINVALID, op, "Workbook could not be read"))
		}
		return
	}

	result, err := h.vocab.Import(r.Context(), user.ID, entries)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := importResponse{
		Created: result.Created,
		Skipped: result.Skipped,
		Errors:  append(rowErrors, result.Errors...),
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export queues an xlsx export of the caller's list. The download link is
// sent by email.
func (h *VocabularyHandler) Export(w http.ResponseWriter, r *http.Request) {
	const op = "handler.vocabulary.export"
	user := auth.GetUser(r.Context())

	job, err := worker.EnqueueExportVocabulary(r.Context(), h.jobs, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to queue export"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status,
	})
}
