// Package memory is an in-process vector store with exact search.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/embedding"
	"github.com/cloo-solutions/storyrag/internal/vectorstore"
)

// checkEvery is how many records a scan visits between context checks.
const checkEvery = 256

// partition holds one owner's records. Owners never share a lock.
type partition struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

type Store struct {
	mu     sync.RWMutex
	owners map[string]*partition
}

var _ vectorstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{owners: make(map[string]*partition)}
}

func (s *Store) partition(ownerID string, create bool) *partition {
	s.mu.RLock()
	p := s.owners[ownerID]
	s.mu.RUnlock()
	if p != nil || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p = s.owners[ownerID]; p == nil {
		p = &partition{records: make(map[string]domain.Record)}
		s.owners[ownerID] = p
	}
	return p
}

func (s *Store) Write(ctx context.Context, record domain.Record) error {
	if err := vectorstore.CheckRecord(record); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.FromContextError(err)
	}

	vec := make([]float32, len(record.Vector))
	copy(vec, record.Vector)
	record.Vector = vec

	p := s.partition(record.OwnerID, true)
	p.mu.Lock()
	p.records[record.ChunkID] = record
	p.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, ownerID, documentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.FromContextError(err)
	}
	p := s.partition(ownerID, false)
	if p == nil {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for id, r := range p.records {
		if r.DocumentID == documentID {
			delete(p.records, id)
			n++
		}
	}
	return n, nil
}

// Search scans every record of the owner, so numCandidates only has to be
// validated: recall is already exact.
func (s *Store) Search(ctx context.Context, ownerID string, query []float32, k, numCandidates int) ([]domain.SearchHit, error) {
	if _, err := vectorstore.SearchArgs(k, numCandidates); err != nil {
		return nil, err
	}
	p := s.partition(ownerID, false)
	if p == nil {
		return []domain.SearchHit{}, nil
	}

	p.mu.RLock()
	hits := make([]domain.SearchHit, 0, len(p.records))
	i := 0
	for _, r := range p.records {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				p.mu.RUnlock()
				return nil, domain.FromContextError(err)
			}
		}
		i++
		if len(r.Vector) != len(query) {
			continue
		}
		hits = append(hits, domain.SearchHit{Record: r, Score: embedding.Dot(query, r.Vector)})
	}
	p.mu.RUnlock()

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	for j := range hits {
		v := make([]float32, len(hits[j].Vector))
		copy(v, hits[j].Vector)
		hits[j].Vector = v
	}
	return hits, nil
}

// Len returns the number of records stored for ownerID.
func (s *Store) Len(ownerID string) int {
	p := s.partition(ownerID, false)
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Records returns a snapshot of ownerID's records for documentID ordered by
// sequence index.
func (s *Store) Records(ownerID, documentID string) []domain.Record {
	p := s.partition(ownerID, false)
	if p == nil {
		return nil
	}
	p.mu.RLock()
	var out []domain.Record
	for _, r := range p.records {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].SequenceIndex < out[b].SequenceIndex })
	return out
}
