package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/cloo-solutions/storyrag/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of attempts for a failing job
	MaxRetries = 3
)

// IndexJobRepository defines the interface for index job persistence
type IndexJobRepository interface {
	// GetPendingJobs retrieves and claims pending index jobs
	GetPendingJobs(ctx context.Context) ([]*domain.IndexJob, error)

	// UpdateJobStatus updates the status of an index job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, outcome domain.IngestStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// Ingester runs one ingestion.
type Ingester interface {
	Ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error)
}

// ModelResetter clears a failed embedding model load.
type ModelResetter interface {
	Reset()
}

// IndexWorker drains the index job queue into the retrieval pipeline.
type IndexWorker struct {
	repo     IndexJobRepository
	ingester Ingester
	model    ModelResetter
	log      *logger.Logger
}

// NewIndexWorker creates a new IndexWorker. model may be nil.
func NewIndexWorker(repo IndexJobRepository, ingester Ingester, model ModelResetter, log *logger.Logger) *IndexWorker {
	return &IndexWorker{
		repo:     repo,
		ingester: ingester,
		model:    model,
		log:      logger.OrNop(log).With("component", "index_worker"),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.log.Info("processing pending index jobs", "count", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.log.Error("error processing job", "job_id", job.ID, "error", err)
		}
	}

	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	log := w.log.With("job_id", job.ID, "document_id", job.DocumentID, "owner_id", job.OwnerID)
	ctx, span := telemetry.StartSpan(ctx, "IndexWorker.processJob", telemetry.SpanAttributes{
		OwnerID:    job.OwnerID,
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		Operation:  "index_job",
	})
	defer span.End()

	log.Info("processing index job", "attempt", job.Retries+1)
	res, err := w.ingester.Ingest(ctx, job.Document())
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the attempt; hand the job back untouched.
			msg := fmt.Sprintf("interrupted: %v", err)
			if uerr := w.repo.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, domain.IndexJobStatusPending, "", msg); uerr != nil {
				return fmt.Errorf("failed to requeue interrupted job: %w", uerr)
			}
			return nil
		}
		if isPermanent(err) {
			return w.failJob(ctx, job, "", err)
		}
		return w.handleJobFailure(ctx, job, "", err)
	}

	switch res.Status {
	case domain.IngestStatusPersisted:
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusCompleted, res.Status, ""); err != nil {
			return fmt.Errorf("failed to update job status to completed: %w", err)
		}
		log.Info("index job completed", "chunks", res.ChunksIndexed)
		return nil

	case domain.IngestStatusPartiallyPersisted:
		msg := fmt.Sprintf("%d of %d chunks skipped", len(res.Skipped), res.ChunksTotal)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusCompleted, res.Status, msg); err != nil {
			return fmt.Errorf("failed to update job status to completed: %w", err)
		}
		log.Warn("index job completed with skipped chunks", "chunks", res.ChunksIndexed, "skipped", len(res.Skipped))
		return nil

	default:
		jobErr := res.Err()
		if jobErr == nil {
			jobErr = fmt.Errorf("ingest ended in status %s", res.Status)
		}
		if res.ChunksTotal == 0 {
			return w.failJob(ctx, job, res.Status, jobErr)
		}
		if errors.Is(jobErr, domain.ErrModelUnavailable) && w.model != nil {
			w.model.Reset()
		}
		return w.handleJobFailure(ctx, job, res.Status, jobErr)
	}
}

// handleJobFailure handles a failed attempt with retry logic
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, outcome domain.IngestStatus, jobErr error) error {
	w.log.Warn("index job attempt failed", "job_id", job.ID, "error", jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		w.log.Error("index job exceeded max retries, marking as failed", "job_id", job.ID, "max_retries", MaxRetries)
		telemetry.CaptureError(ctx, jobErr)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusFailed, outcome, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	w.log.Info("index job will be retried", "job_id", job.ID, "attempt", job.Retries+1, "max_retries", MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusPending, outcome, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}

func (w *IndexWorker) failJob(ctx context.Context, job *domain.IndexJob, outcome domain.IngestStatus, jobErr error) error {
	w.log.Error("index job failed permanently", "job_id", job.ID, "error", jobErr)
	telemetry.CaptureError(ctx, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusFailed, outcome, jobErr.Error()); err != nil {
		return fmt.Errorf("failed to update job status to failed: %w", err)
	}
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrMissingRequiredField) ||
		errors.Is(err, domain.ErrDimensionMismatch)
}
