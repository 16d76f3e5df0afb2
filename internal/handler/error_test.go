package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(err error) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/vocabulary", nil)
	ErrorResponse(rec, req, discardLogger(), err)
	return rec
}

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("vocabulary.create", "word", "Word is required")

	rec := serveError(ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "vocabulary.create")

	var got JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.EINVALID, got.Error.Code)
	assert.Equal(t, "Validation failed", got.Error.Message)
	assert.Equal(t, "Word is required", got.Error.Fields["word"])
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	dbErr := &mockDatabaseError{message: "connection to 192.168.1.100:5432 refused"}
	rec := serveError(domain.Internal(dbErr, "quota.check", "Database query failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "192.168")
	assert.NotContains(t, body, "5432")
	assert.NotContains(t, body, "quota.check")
	assert.Contains(t, body, "internal error")
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	rec := serveError(rawErr)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "FATAL")
	assert.NotContains(t, body, "postgres")
	assert.Contains(t, body, "internal error")
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestDenialResponse(t *testing.T) {
	reset := time.Date(2025, 3, 10, 23, 59, 59, 999000000, time.UTC)

	t.Run("quota exceeded carries usage", func(t *testing.T) {
		st := domain.QuotaStatus{Used: 20, Limit: domain.IntPtr(20), Remaining: domain.IntPtr(0), ResetAt: &reset}
		rec := serveError(domain.QuotaExceeded("gate", domain.ResourceDailyAIChat, st, false, "/pricing"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		var got map[string]DenialBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		body := got["error"]
		assert.Equal(t, domain.DenialUsageLimitExceeded, body.ErrorCode)
		assert.Equal(t, "daily_ai_chat", body.ResourceType)
		require.NotNil(t, body.Used)
		assert.Equal(t, 20, *body.Used)
		require.NotNil(t, body.Remaining)
		assert.Equal(t, 0, *body.Remaining)
		require.NotNil(t, body.ResetAt)
		assert.True(t, reset.Equal(*body.ResetAt))
		assert.Equal(t, "/pricing", body.UpgradeURL)
	})

	t.Run("subscription required offers a trial", func(t *testing.T) {
		info := domain.SubscriptionInfo{TrialAvailable: true}
		rec := serveError(domain.EntitlementDenied("gate", domain.FeatureAIPractice, info, "/pricing"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `"errorCode":"SUBSCRIPTION_REQUIRED"`)
		assert.Contains(t, body, `"trialAvailable":true`)
		assert.Contains(t, body, `"feature":"aiPractice"`)
	})
}

func TestErrorResponse_TrialNotAllowed(t *testing.T) {
	rec := serveError(&domain.TrialNotAllowedError{Op: "trial.start", Reason: domain.TrialReasonIPAbuse})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"code":"TRIAL_NOT_ALLOWED"`)
	assert.Contains(t, body, `"reason":"ip_abuse"`)
	assert.False(t, strings.Contains(body, "trial.start"))
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
