package domain

import (
	"fmt"
	"time"
)

// IndexJobStatus represents the status of a queued ingestion
type IndexJobStatus string

const (
	IndexJobStatusPending    IndexJobStatus = "pending"
	IndexJobStatusProcessing IndexJobStatus = "processing"
	IndexJobStatusCompleted  IndexJobStatus = "completed"
	IndexJobStatusFailed     IndexJobStatus = "failed"
)

// IndexJob is an asynchronous request to ingest one uploaded document.
// It carries the document metadata and raw text handed over by the upload
// pipeline so the worker never reads the object store.
type IndexJob struct {
	ID                string
	DocumentID        string
	OwnerID           string
	Title             string
	DocumentCreatedAt time.Time
	RawText           string
	Status            IndexJobStatus
	// Outcome is the ingest status of the last attempt, empty until one ran.
	Outcome     IngestStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIndexJob creates a pending IndexJob for doc
func NewIndexJob(id string, doc *Document, createdAt time.Time) *IndexJob {
	return &IndexJob{
		ID:                id,
		DocumentID:        doc.ID,
		OwnerID:           doc.OwnerID,
		Title:             doc.Title,
		DocumentCreatedAt: doc.CreatedAt,
		RawText:           doc.RawText,
		Status:            IndexJobStatusPending,
		CreatedAt:         createdAt,
	}
}

// Document rebuilds the document the job was queued for.
func (j *IndexJob) Document() *Document {
	return NewDocument(j.DocumentID, j.OwnerID, j.Title, j.DocumentCreatedAt, j.RawText)
}

// ValidateIndexJob validates an IndexJob instance
func ValidateIndexJob(j *IndexJob) error {
	if j == nil {
		return fmt.Errorf("index job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("index job ID is required")
	}

	if j.DocumentID == "" {
		return fmt.Errorf("index job DocumentID is required")
	}

	if j.OwnerID == "" {
		return fmt.Errorf("index job OwnerID is required")
	}

	if !isValidIndexJobStatus(j.Status) {
		return ErrInvalidIndexJobStatus.Wrap(fmt.Errorf("index job Status is invalid: %s", j.Status))
	}

	if j.Outcome != "" && !j.Outcome.IsValid() {
		return ErrInvalidIngestStatus.Wrap(fmt.Errorf("index job Outcome is invalid: %s", j.Outcome))
	}

	if j.Retries < 0 {
		return fmt.Errorf("index job Retries cannot be negative")
	}

	return nil
}

func isValidIndexJobStatus(s IndexJobStatus) bool {
	switch s {
	case IndexJobStatusPending, IndexJobStatusProcessing,
		IndexJobStatusCompleted, IndexJobStatusFailed:
		return true
	}
	return false
}
