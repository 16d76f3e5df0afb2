package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/storage"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

func newVocabularyFixture(t *testing.T) *fixture {
	f := newFixture(t)
	NewVocabularyHandler(f.vocab, f.store, discardLogger()).RegisterRoutes(f.mux, f.requireUser, f.gate)
	f.signIn(nil)
	return f
}

func (f *fixture) createWord(word string) vocabularyResponse {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/vocabulary", map[string]string{
		"word": word, "meaning": "meaning of " + word,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[vocabularyResponse](f.t, rec)
}

func TestVocabularyHandler_Create(t *testing.T) {
	f := newVocabularyFixture(t)

	rec := f.do(http.MethodPost, "/api/vocabulary", map[string]string{
		"word":         "  Invoice ",
		"meaning":      "a bill for goods",
		"example":      "Please send the invoice.",
		"partOfSpeech": "noun",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[vocabularyResponse](t, rec)
	assert.Equal(t, "invoice", item.Word)
	assert.Equal(t, 0, item.ReviewCount)
	assert.Equal(t, domain.DefaultEaseFactor, item.EaseFactor)
	assert.Equal(t, 1, item.Interval)
	assert.False(t, item.Mastered)
	assert.Equal(t, []domain.Feature{domain.FeatureVocabulary}, f.gated)

	rec = f.do(http.MethodPost, "/api/vocabulary", map[string]string{"word": "INVOICE"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/vocabulary", map[string]string{"word": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error.Fields, "word")
}

func TestVocabularyHandler_RequiresUser(t *testing.T) {
	f := newVocabularyFixture(t)
	f.current = nil

	rec := f.do(http.MethodGet, "/api/vocabulary", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVocabularyHandler_ListAndStats(t *testing.T) {
	f := newVocabularyFixture(t)
	f.createWord("agenda")
	f.createWord("budget")
	f.createWord("contract")

	rec := f.do(http.MethodGet, "/api/vocabulary?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []vocabularyResponse `json:"items"`
		Limit int                  `json:"limit"`
	}](t, rec)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "contract", list.Items[0].Word, "newest first")
	assert.Equal(t, 2, list.Limit)

	rec = f.do(http.MethodGet, "/api/vocabulary?search=budg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"budget"`)
	assert.NotContains(t, rec.Body.String(), `"agenda"`)

	rec = f.do(http.MethodGet, "/api/vocabulary/due", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[map[string][]vocabularyResponse](t, rec)
	assert.Len(t, due["items"], 3)

	rec = f.do(http.MethodGet, "/api/vocabulary/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[vocabularyStatsResponse](t, rec)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 0, stats.Mastered)
	assert.Equal(t, 3, stats.DueNow)
}

func TestVocabularyHandler_Review(t *testing.T) {
	f := newVocabularyFixture(t)
	item := f.createWord("shipment")
	path := "/api/vocabulary/" + item.ID.String() + "/review"

	rec := f.do(http.MethodPost, path, map[string]any{"correct": true, "difficultyRating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decode[vocabularyResponse](t, rec)
	assert.Equal(t, 1, reviewed.ReviewCount)
	assert.Equal(t, 1, reviewed.CorrectCount)
	assert.True(t, reviewed.NextReviewDate.After(item.NextReviewDate))
	require.NotNil(t, reviewed.LastReviewedAt)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"missing correct", path, map[string]any{"difficultyRating": 3}, http.StatusBadRequest},
		{"rating out of range", path, map[string]any{"correct": true, "difficultyRating": 9}, http.StatusBadRequest},
		{"malformed id", "/api/vocabulary/not-a-uuid/review", map[string]any{"correct": true, "difficultyRating": 3}, http.StatusNotFound},
		{"unknown id", "/api/vocabulary/7d1f0b9e-3c55-4a43-9b0e-8f7a6c1d2e3f/review", map[string]any{"correct": false}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestVocabularyHandler_UpdateAndDelete(t *testing.T) {
	f := newVocabularyFixture(t)
	item := f.createWord("warehouse")
	path := "/api/vocabulary/" + item.ID.String()

	rec := f.do(http.MethodPatch, path, map[string]any{"example": "The warehouse is full.", "mastered": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[vocabularyResponse](t, rec)
	assert.Equal(t, "The warehouse is full.", updated.Example)
	assert.Equal(t, item.Meaning, updated.Meaning)
	assert.True(t, updated.Mastered)

	rec = f.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVocabularyHandler_ForeignItemIsNotFound(t *testing.T) {
	f := newVocabularyFixture(t)
	item := f.createWord("deadline")

	f.signIn(func(u *repository.User) { u.Email = "other@example.com" })

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := f.do(method, "/api/vocabulary/"+item.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}
}

// =============================================================================
// Import / Export
// =============================================================================

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	x := excelize.NewFile()
	defer x.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, x.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := x.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func (f *fixture) upload(filename, contentType string, data []byte) *httptest.ResponseRecorder {
	f.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(f.t, err)
	_, err = part.Write(data)
	require.NoError(f.t, err)
	require.NoError(f.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/vocabulary/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestVocabularyHandler_Import(t *testing.T) {
	f := newVocabularyFixture(t)
	f.createWord("receipt")

	data := workbook(t,
		[]any{"word", "meaning", "example"},
		[]any{"Itinerary", "travel plan", "Check the itinerary."},
		[]any{"receipt", "proof of payment", ""},
		[]any{"", "orphan meaning", ""},
		[]any{"quarterly", "every three months", ""},
	)

	rec := f.upload("words.xlsx", storage.ContentTypeXLSX, data)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, []string{"row 4: word is empty"}, resp.Errors)

	rec = f.do(http.MethodGet, "/api/vocabulary/stats", nil)
	assert.Equal(t, 3, decode[vocabularyStatsResponse](t, rec).Total)
}

func TestVocabularyHandler_ImportRejectsBadUploads(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
	}{
		{"not a spreadsheet", "notes.txt", "text/plain", []byte("word,meaning")},
		{"corrupt workbook", "words.xlsx", storage.ContentTypeXLSX, []byte("not a zip")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVocabularyFixture(t)
			rec := f.upload(tt.filename, tt.contentType, tt.data)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestVocabularyHandler_Export(t *testing.T) {
	f := newVocabularyFixture(t)
	user := f.current

	rec := f.do(http.MethodPost, "/api/vocabulary/export", nil)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []domain.Feature{domain.FeatureExportData}, f.gated)

	jobs := f.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, worker.JobTypeExportVocabulary, jobs[0].JobType)

	var payload worker.ExportVocabularyPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, user.ID, payload.UserID)
}
