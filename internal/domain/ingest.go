package domain

import (
	"fmt"
	"sync"
)

// IngestStatus is a state of a single ingestion run.
type IngestStatus string

const (
	IngestStatusPending            IngestStatus = "pending"
	IngestStatusChunking           IngestStatus = "chunking"
	IngestStatusEmbedding          IngestStatus = "embedding"
	IngestStatusPersisted          IngestStatus = "persisted"
	IngestStatusPartiallyPersisted IngestStatus = "partially_persisted"
	IngestStatusFailed             IngestStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s IngestStatus) IsTerminal() bool {
	switch s {
	case IngestStatusPersisted, IngestStatusPartiallyPersisted, IngestStatusFailed:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s IngestStatus) IsValid() bool {
	switch s {
	case IngestStatusPending, IngestStatusChunking, IngestStatusEmbedding,
		IngestStatusPersisted, IngestStatusPartiallyPersisted, IngestStatusFailed:
		return true
	}
	return false
}

var ingestTransitions = map[IngestStatus][]IngestStatus{
	IngestStatusPending:   {IngestStatusChunking, IngestStatusFailed},
	IngestStatusChunking:  {IngestStatusEmbedding, IngestStatusFailed},
	IngestStatusEmbedding: {IngestStatusEmbedding, IngestStatusPersisted, IngestStatusPartiallyPersisted, IngestStatusFailed},
}

// IngestTracker enforces the ingestion state machine
// Pending -> Chunking -> Embedding(i)... -> {Persisted | PartiallyPersisted | Failed}.
type IngestTracker struct {
	mu         sync.Mutex
	documentID string
	status     IngestStatus
	chunkIndex int
	history    []IngestStatus
}

// NewIngestTracker creates a tracker in the Pending state
func NewIngestTracker(documentID string) *IngestTracker {
	return &IngestTracker{
		documentID: documentID,
		status:     IngestStatusPending,
		chunkIndex: -1,
		history:    []IngestStatus{IngestStatusPending},
	}
}

// Status returns the current state.
func (t *IngestTracker) Status() IngestStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ChunkIndex returns the index of the chunk most recently entered in the
// Embedding state, or -1.
func (t *IngestTracker) ChunkIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunkIndex
}

// History returns every state visited, in order.
func (t *IngestTracker) History() []IngestStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IngestStatus, len(t.history))
	copy(out, t.history)
	return out
}

// Transition moves to next, rejecting transitions the state machine does not allow.
func (t *IngestTracker) Transition(next IngestStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(next)
}

// Embedding enters Embedding(i).
func (t *IngestTracker) Embedding(i int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(IngestStatusEmbedding); err != nil {
		return err
	}
	t.chunkIndex = i
	return nil
}

func (t *IngestTracker) transitionLocked(next IngestStatus) error {
	for _, allowed := range ingestTransitions[t.status] {
		if allowed == next {
			t.status = next
			t.history = append(t.history, next)
			return nil
		}
	}
	return ErrInvalidStateTransition.Wrap(fmt.Errorf("document %s: %s -> %s", t.documentID, t.status, next))
}

// SkippedChunk records a chunk that did not make it into the store.
type SkippedChunk struct {
	SequenceIndex int
	Err           error
}

// IngestResult is the outcome of one ingestion run.
type IngestResult struct {
	DocumentID    string
	OwnerID       string
	Status        IngestStatus
	ChunksTotal   int
	ChunksIndexed int
	Skipped       []SkippedChunk
	// Reason explains a Failed status; Cause carries the underlying error, if any.
	Reason string
	Cause  error
}

// Err summarises the result as an error; nil unless the run failed.
func (r *IngestResult) Err() error {
	if r == nil || r.Status != IngestStatusFailed {
		return nil
	}
	if r.Cause != nil {
		return fmt.Errorf("ingest %s failed: %s: %w", r.DocumentID, r.Reason, r.Cause)
	}
	return fmt.Errorf("ingest %s failed: %s", r.DocumentID, r.Reason)
}
