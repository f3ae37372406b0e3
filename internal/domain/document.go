package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is a user-owned text produced by the upload pipeline.
// The retrieval core only reads it.
type Document struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
	RawText   string
}

// NewDocument creates a new Document instance
func NewDocument(id, ownerID, title string, createdAt time.Time, rawText string) *Document {
	return &Document{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: createdAt,
		RawText:   rawText,
	}
}

// ValidateDocument checks the identity fields every ingestion needs.
// Text content is validated separately by ValidateText.
func ValidateDocument(d *Document) error {
	if d == nil {
		return ErrInvalidInput.Wrap(fmt.Errorf("document cannot be nil"))
	}
	if strings.TrimSpace(d.ID) == "" {
		return ErrMissingRequiredField.Wrap(fmt.Errorf("document ID is required"))
	}
	if strings.TrimSpace(d.OwnerID) == "" {
		return ErrMissingRequiredField.Wrap(fmt.Errorf("document OwnerID is required"))
	}
	return nil
}

// Chunk is a contiguous window of a document's text.
type Chunk struct {
	ID            string
	DocumentID    string
	OwnerID       string
	SequenceIndex int
	Text          string
}

// Embedding ties one chunk's vector to its document metadata.
type Embedding struct {
	ChunkID           string
	OwnerID           string
	Vector            []float32
	DocumentTitle     string
	DocumentCreatedAt time.Time
}

// Record is the persisted shape written to a vector store.
type Record struct {
	ChunkID       string
	OwnerID       string
	DocumentID    string
	SequenceIndex int
	Text          string
	Vector        []float32
	Title         string
	CreatedAt     time.Time
}

// NewRecord joins a chunk, its embedding and the source document.
func NewRecord(doc *Document, chunk Chunk, vector []float32) Record {
	return Record{
		ChunkID:       chunk.ID,
		OwnerID:       doc.OwnerID,
		DocumentID:    doc.ID,
		SequenceIndex: chunk.SequenceIndex,
		Text:          chunk.Text,
		Vector:        vector,
		Title:         doc.Title,
		CreatedAt:     doc.CreatedAt,
	}
}

// Embedding returns the embedding view of the record.
func (r Record) Embedding() Embedding {
	return Embedding{
		ChunkID:           r.ChunkID,
		OwnerID:           r.OwnerID,
		Vector:            r.Vector,
		DocumentTitle:     r.Title,
		DocumentCreatedAt: r.CreatedAt,
	}
}

// ValidateRecord validates a Record before it is written
func ValidateRecord(r *Record) error {
	if r == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if r.ChunkID == "" {
		return fmt.Errorf("record ChunkID is required")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("record OwnerID is required")
	}
	if r.DocumentID == "" {
		return fmt.Errorf("record DocumentID is required")
	}
	if r.SequenceIndex < 0 {
		return fmt.Errorf("record SequenceIndex cannot be negative")
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("record Vector is required")
	}
	return nil
}

// SearchHit is a record returned from similarity search.
// Score is cosine similarity, higher is closer.
type SearchHit struct {
	Record
	Score float32
}
