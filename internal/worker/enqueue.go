package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/google/uuid"
)

// Job type constants. These must match the JobHandler.Type() values.
const (
	JobTypeExportVocabulary = "export_vocabulary"
	JobTypeSendTrialEmail   = "send_trial_email"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// TrialEmailKind selects the trial email template.
type TrialEmailKind string

const (
	TrialEmailStarted  TrialEmailKind = "started"
	TrialEmailExpiring TrialEmailKind = "expiring"
)

// ExportVocabularyPayload is the payload for vocabulary export jobs.
type ExportVocabularyPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// SendTrialEmailPayload is the payload for trial notification jobs.
type SendTrialEmailPayload struct {
	UserID uuid.UUID      `json:"user_id"`
	Kind   TrialEmailKind `json:"kind"`
}

// Enqueuer is the statement a caller needs to add jobs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = p.ScheduledAt.Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a pending job.
func EnqueueJob(ctx context.Context, q Enqueuer, jobType string, payload any, opts ...EnqueueOption) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueExportVocabulary enqueues an xlsx export of a user's word list.
func EnqueueExportVocabulary(ctx context.Context, q Enqueuer, userID uuid.UUID, opts ...EnqueueOption) (repository.Job, error) {
	return EnqueueJob(ctx, q, JobTypeExportVocabulary, ExportVocabularyPayload{UserID: userID}, opts...)
}

// EnqueueTrialEmail enqueues a trial notification. Started emails jump the
// queue; reminders run at normal priority.
func EnqueueTrialEmail(ctx context.Context, q Enqueuer, userID uuid.UUID, kind TrialEmailKind, opts ...EnqueueOption) (repository.Job, error) {
	if kind == TrialEmailStarted {
		opts = append([]EnqueueOption{WithPriority(PriorityHigh)}, opts...)
	}
	return EnqueueJob(ctx, q, JobTypeSendTrialEmail, SendTrialEmailPayload{UserID: userID, Kind: kind}, opts...)
}
