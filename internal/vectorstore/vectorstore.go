// Package vectorstore defines the owner-scoped vector store contract shared
// by the memory, Postgres and MongoDB backends.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/storyrag/internal/domain"
)

// Store persists chunk records and answers owner-scoped similarity queries.
type Store interface {
	// Write upserts one record keyed by its ChunkID.
	Write(ctx context.Context, record domain.Record) error
	// Delete removes every record of a document in one step and returns
	// how many were removed.
	Delete(ctx context.Context, ownerID, documentID string) (int64, error)
	// Search returns at most k records of ownerID ordered by descending
	// cosine similarity. An owner with no records yields an empty slice.
	Search(ctx context.Context, ownerID string, query []float32, k, numCandidates int) ([]domain.SearchHit, error)
}

// SearchArgs validates k and raises numCandidates to at least k.
func SearchArgs(k, numCandidates int) (int, error) {
	if k <= 0 {
		return 0, domain.ErrInvalidInput.Wrap(fmt.Errorf("k must be positive, got %d", k))
	}
	if numCandidates < k {
		numCandidates = k
	}
	return numCandidates, nil
}

// CheckRecord validates a record before it is written.
func CheckRecord(r domain.Record) error {
	if err := domain.ValidateRecord(&r); err != nil {
		return domain.ErrInvalidInput.Wrap(err)
	}
	return nil
}
