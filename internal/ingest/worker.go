// Package ingest pre-extracts page text in the background so analysis and
// chat requests hit the page cache.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

// JobType is the queue type of page extraction jobs.
const JobType = "extract_pages"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Extractor fills the page cache for one document.
type Extractor interface {
	Warm(ctx context.Context, filename string) (int, error)
}

type extractPayload struct {
	Document string `json:"document"`
}

// Enqueue schedules extraction of every page of document and returns the
// job id.
func Enqueue(store JobStore, document string) (string, error) {
	payload, err := json.Marshal(extractPayload{Document: document})
	if err != nil {
		return "", err
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing extraction of %s: %w", document, err)
	}
	return job.ID, nil
}

// Worker processes extract_pages jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	extractor Extractor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extractor Extractor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		extractor: extractor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single extract_pages job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload extractPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Document == "" {
		return fmt.Errorf("payload has no document")
	}

	start := time.Now()
	pages, err := w.extractor.Warm(ctx, payload.Document)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", payload.Document, err)
	}
	w.logger.Info("page text cached", "document", payload.Document, "pages", pages, "elapsed", time.Since(start))
	return nil
}
