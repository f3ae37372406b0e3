package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/storyrag/internal/chunking"
	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/cloo-solutions/storyrag/internal/telemetry"
	"github.com/google/uuid"
)

// IndexingService queues documents for background ingestion and retracts
// them, keeping the queue and the stored records consistent.
type IndexingService struct {
	tx  TxRunner
	log *logger.Logger
	now func() time.Time
}

func NewIndexingService(tx TxRunner, log *logger.Logger) *IndexingService {
	return &IndexingService{
		tx:  tx,
		log: logger.OrNop(log).With("component", "indexing"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates doc and queues it for ingestion. Pending jobs for the
// same document are superseded in the same transaction.
func (s *IndexingService) Enqueue(ctx context.Context, doc *domain.Document) (*domain.IndexJob, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if err := chunking.ValidateText(doc.RawText); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "IndexingService.Enqueue", telemetry.SpanAttributes{
		OwnerID:    doc.OwnerID,
		DocumentID: doc.ID,
		Operation:  "enqueue",
	})
	defer span.End()

	job := domain.NewIndexJob(uuid.NewString(), doc, s.now())
	var superseded int64
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		n, err := repos.IndexJobs().SupersedePending(ctx, doc.OwnerID, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to supersede pending jobs: %w", err)
		}
		superseded = n
		if err := repos.IndexJobs().Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create index job: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetData("job_id", job.ID)
	s.log.Info("document queued for indexing", "job_id", job.ID, "document_id", doc.ID, "owner_id", doc.OwnerID, "superseded", superseded)
	return job, nil
}

// Retract cancels pending jobs for a document and deletes its records in one
// transaction.
func (s *IndexingService) Retract(ctx context.Context, ownerID, documentID string) (int64, error) {
	if ownerID == "" || documentID == "" {
		return 0, domain.ErrMissingRequiredField.Wrap(fmt.Errorf("owner ID and document ID are required"))
	}

	ctx, span := telemetry.StartSpan(ctx, "IndexingService.Retract", telemetry.SpanAttributes{
		OwnerID:    ownerID,
		DocumentID: documentID,
		Operation:  "retract",
	})
	defer span.End()

	var removed int64
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.IndexJobs().SupersedePending(ctx, ownerID, documentID); err != nil {
			return fmt.Errorf("failed to cancel pending jobs: %w", err)
		}
		n, err := repos.Records().Delete(ctx, ownerID, documentID)
		if err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		removed = n
		return nil
	})
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	s.log.Info("document retracted", "document_id", documentID, "owner_id", ownerID, "removed", removed)
	return removed, nil
}
