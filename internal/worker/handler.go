package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// JobHandler is implemented by every job type.
type JobHandler interface {
	// Type returns the job_type value this handler processes.
	Type() string

	// Handle executes the job with its raw JSON payload. Return a
	// PermanentError to fail the job without retries.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError wraps an error to indicate it should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks err as not retryable.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// DecodePayload unmarshals a job payload. A malformed payload will never
// succeed, so the error is permanent.
func DecodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return NewPermanentError(fmt.Errorf("unmarshal payload: %w", err))
	}
	return nil
}
