// Package worker runs background jobs from the PostgreSQL jobs table.
//
// Jobs are claimed with FOR UPDATE SKIP LOCKED inside a short transaction,
// executed outside it, then marked completed or failed. Failed jobs are
// retried with exponential backoff until max_attempts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/google/uuid"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of polling goroutines. Default: 2
	Concurrency int

	// PollInterval is how often an idle goroutine checks for work. Default: 5s
	PollInterval time.Duration

	// JobTimeout bounds a single execution. Default: 2m
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs. Default: 30s
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a 'running' job is assumed
	// abandoned by a crashed process. Default: 10m
	StaleJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        2 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	case c.Concurrency > 100:
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	case c.PollInterval < 100*time.Millisecond:
		return fmt.Errorf("poll interval must be at least 100ms, got %v", c.PollInterval)
	case c.JobTimeout < time.Second:
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	case c.ShutdownTimeout < time.Second:
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	case c.StaleJobThreshold < time.Minute:
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}

// errNoJob is returned by processNextJob when the queue is empty.
var errNoJob = errors.New("no job available")

// Worker manages background job processing with concurrent workers.
type Worker struct {
	store    repository.Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(store repository.Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting existing job handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// Start recovers stale jobs and launches the polling goroutines.
func (w *Worker) Start(ctx context.Context) {
	if _, err := w.RecoverStaleJobs(ctx); err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits up to ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// RecoverStaleJobs resets jobs stuck in 'running' past the threshold back to
// pending. The maintenance scheduler also calls it daily.
func (w *Worker) RecoverStaleJobs(ctx context.Context) (int64, error) {
	count, err := w.store.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
	return count, nil
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil && !errors.Is(err, errNoJob) {
				logger.Error("failed to process job", "error", err)
			}
		}
	}
}

// processNextJob claims and executes a single job. It returns errNoJob when
// nothing is ready.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	var job repository.Job
	err := w.store.ExecTx(ctx, func(q repository.Querier) error {
		j, err := q.DequeueJob(ctx)
		if err != nil {
			return err
		}
		if err := q.UpdateJobStarted(ctx, j.ID); err != nil {
			return fmt.Errorf("mark job started: %w", err)
		}
		job = j
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return errNoJob
		}
		return fmt.Errorf("dequeue job: %w", err)
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	logger.Info("processing job")

	start := time.Now()
	metrics.JobStarted(job.JobType)

	if err := w.executeJob(ctx, job); err != nil {
		permanent := IsPermanent(err) || job.Attempts+1 >= job.MaxAttempts
		metrics.JobFailed(job.JobType, permanent)
		logger.Error("job failed", "error", err, "permanent", permanent)
		w.markJobFailed(ctx, job.ID, err)
		return nil
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	if err := w.store.UpdateJobCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// executeJob runs the handler registered for the job type under JobTimeout.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) (err error) {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = NewPermanentError(fmt.Errorf("job panicked: %v", p))
		}
	}()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed records the failure. Permanent errors and exhausted
// attempts end in 'failed'; everything else is rescheduled with backoff.
func (w *Worker) markJobFailed(ctx context.Context, jobID uuid.UUID, jobErr error) {
	params := repository.UpdateJobFailedParams{
		ID:           jobID,
		ErrorMessage: domain.ToNullString(jobErr.Error()),
		Permanent:    IsPermanent(jobErr),
	}
	if err := w.store.UpdateJobFailed(context.WithoutCancel(ctx), params); err != nil {
		w.logger.Error("failed to mark job as failed", "job_id", jobID, "error", err)
	}
}
