package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

// ErrorCodeTrialNotAllowed is the API error code for a refused trial start.
const ErrorCodeTrialNotAllowed = "TRIAL_NOT_ALLOWED"

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes. Denials, validation
// errors and trial refusals get their structured bodies.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var d *domain.Denial
	if errors.As(err, &d) {
		DenialResponse(w, r, logger, d)
		return
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		ValidationErrorResponse(w, r, logger, ve)
		return
	}
	var te *domain.TrialNotAllowedError
	if errors.As(err, &te) {
		trialNotAllowedResponse(w, r, logger, te)
		return
	}

	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	status := ErrorCodeToHTTPStatus(code)
	logError(logger, r, err, code, op, status)
	writeJSONError(w, status, code, message)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// ValidationErrorResponse writes field-level validation errors.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	var body JSONError
	body.Error.Code = domain.EINVALID
	body.Error.Message = "Validation failed"
	body.Error.Fields = ve.Fields
	writeJSON(w, http.StatusBadRequest, body)
}

// DenialBody is the 403 payload of an entitlement or quota denial.
type DenialBody struct {
	Code           string     `json:"code"`
	ErrorCode      string     `json:"errorCode"`
	Message        string     `json:"message"`
	Feature        string     `json:"feature,omitempty"`
	ResourceType   string     `json:"resourceType,omitempty"`
	Used           *int       `json:"used,omitempty"`
	Limit          *int       `json:"limit,omitempty"`
	Remaining      *int       `json:"remaining,omitempty"`
	ResetAt        *time.Time `json:"resetAt,omitempty"`
	TrialAvailable bool       `json:"trialAvailable"`
	UpgradeURL     string     `json:"upgradeUrl,omitempty"`
}

// DenialResponse writes a 403 carrying the structured deny data a client
// needs to offer an upgrade, a trial or a wait-until-reset message.
func DenialResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, d *domain.Denial) {
	logger.Info("request denied",
		"op", d.Op,
		"error_code", d.ErrorCode,
		"feature", d.Feature,
		"resource_type", d.ResourceType,
		"path", r.URL.Path,
	)

	writeJSON(w, http.StatusForbidden, map[string]DenialBody{
		"error": {
			Code:           domain.EFORBIDDEN,
			ErrorCode:      d.ErrorCode,
			Message:        d.Message,
			Feature:        string(d.Feature),
			ResourceType:   string(d.ResourceType),
			Used:           d.Used,
			Limit:          d.Limit,
			Remaining:      d.Remaining,
			ResetAt:        d.ResetAt,
			TrialAvailable: d.TrialAvailable,
			UpgradeURL:     d.UpgradeURL,
		},
	})
}

func trialNotAllowedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, te *domain.TrialNotAllowedError) {
	logger.Info("trial not allowed", "op", te.Op, "reason", te.Reason, "path", r.URL.Path)

	writeJSON(w, http.StatusForbidden, map[string]any{
		"error": map[string]string{
			"code":    ErrorCodeTrialNotAllowed,
			"reason":  string(te.Reason),
			"message": te.Message(),
		},
	})
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrorResponse(w, r, logger, err)
}

// ForbiddenResponse is a convenience wrapper for 403 errors.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource")
	ErrorResponse(w, r, logger, err)
}

// InternalErrorResponse logs the error and returns a generic 500 response.
// The underlying error details are hidden from the user.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	wrappedErr := domain.Internal(err, "", "An unexpected error occurred")
	ErrorResponse(w, r, logger, wrappedErr)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// 5xx are server-side issues, 4xx are expected client errors.
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	var body JSONError
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// JSONError is a typed response structure for API errors.
type JSONError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
