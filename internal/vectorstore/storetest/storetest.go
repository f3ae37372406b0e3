// Package storetest holds behaviour tests every vectorstore.Store backend
// must pass.
package storetest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/cloo-solutions/storyrag/internal/chunking"
	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store.
type Factory func(t *testing.T) vectorstore.Store

// Dims is the vector length used by every record in the suite.
const Dims = 1536

// Unit returns a unit vector of length Dims with weights on the given axes.
func Unit(axes map[int]float64) []float32 {
	v := make([]float32, Dims)
	var sum float64
	for i, w := range axes {
		v[i] = float32(w)
		sum += w * w
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Rec builds a record for ownerID/documentID at sequence seq.
func Rec(ownerID, documentID string, seq int, vec []float32) domain.Record {
	return domain.Record{
		ChunkID:       fmt.Sprintf("%s-%s-%d", ownerID, documentID, seq),
		OwnerID:       ownerID,
		DocumentID:    documentID,
		SequenceIndex: seq,
		Text:          fmt.Sprintf("chunk %d of %s", seq, documentID),
		Vector:        vec,
		Title:         "Title " + documentID,
		CreatedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ranks owner records by descending similarity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		q := Unit(map[int]float64{0: 1})

		require.NoError(t, s.Write(ctx, Rec("alice", "d1", 0, Unit(map[int]float64{0: 1, 1: 1}))))
		require.NoError(t, s.Write(ctx, Rec("alice", "d1", 1, Unit(map[int]float64{0: 1}))))
		require.NoError(t, s.Write(ctx, Rec("alice", "d2", 0, Unit(map[int]float64{1: 1, 2: 0.2}))))

		hits, err := s.Search(ctx, "alice", q, 5, 150)
		require.NoError(t, err)
		require.Len(t, hits, 3)

		assert.Equal(t, "alice-d1-1", hits[0].ChunkID)
		assert.Equal(t, "alice-d1-0", hits[1].ChunkID)
		assert.Equal(t, "alice-d2-0", hits[2].ChunkID)
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}
		assert.InDelta(t, 1.0, hits[0].Score, 1e-3)
		assert.Equal(t, "Title d1", hits[0].Title)
		assert.Equal(t, "chunk 1 of d1", hits[0].Text)
		assert.Equal(t, "d1", hits[0].DocumentID)
		assert.True(t, hits[0].CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("never returns another owner's records", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		v := Unit(map[int]float64{3: 1})

		require.NoError(t, s.Write(ctx, Rec("alice", "d1", 0, v)))
		require.NoError(t, s.Write(ctx, Rec("bob", "d1", 0, v)))
		require.NoError(t, s.Write(ctx, Rec("bob", "d2", 0, v)))

		hits, err := s.Search(ctx, "alice", v, 10, 150)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		for _, h := range hits {
			assert.Equal(t, "alice", h.OwnerID)
		}

		hits, err = s.Search(ctx, "bob", v, 10, 150)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("owner with no records gets an empty list", func(t *testing.T) {
		s := newStore(t)
		hits, err := s.Search(context.Background(), "nobody", Unit(map[int]float64{0: 1}), 5, 150)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("limits results to k", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 8; i++ {
			require.NoError(t, s.Write(ctx, Rec("alice", "d1", i, Unit(map[int]float64{0: 1, i + 1: 0.5}))))
		}
		hits, err := s.Search(ctx, "alice", Unit(map[int]float64{0: 1}), 5, 150)
		require.NoError(t, err)
		assert.Len(t, hits, 5)
	})

	t.Run("more candidates never lowers recall", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 20; i++ {
			require.NoError(t, s.Write(ctx, Rec("alice", "d1", i, Unit(map[int]float64{0: 1, i + 1: float64(i) / 10}))))
		}
		q := Unit(map[int]float64{0: 1})

		prev := -1
		for _, nc := range []int{5, 10, 50, 150} {
			hits, err := s.Search(ctx, "alice", q, 5, nc)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(hits), prev)
			prev = len(hits)
		}
		assert.Equal(t, 5, prev)
	})

	t.Run("write upserts by chunk id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := Rec("alice", "d1", 0, Unit(map[int]float64{0: 1}))
		require.NoError(t, s.Write(ctx, r))
		r.Text = "rewritten"
		require.NoError(t, s.Write(ctx, r))

		hits, err := s.Search(ctx, "alice", r.Vector, 5, 150)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "rewritten", hits[0].Text)
	})

	t.Run("same document id under two owners keeps both", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		v := Unit(map[int]float64{0: 1})
		created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		for _, doc := range []*domain.Document{
			domain.NewDocument("d1", "alice", "Alice's trip", created, "aaaabbbbcccc"),
			domain.NewDocument("d1", "bob", "Bob's trip", created, "xxxxyyyy"),
		} {
			for _, c := range chunking.BuildChunks(doc, 4) {
				require.NoError(t, s.Write(ctx, domain.NewRecord(doc, c, v)))
			}
		}

		hits, err := s.Search(ctx, "alice", v, 10, 150)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		for _, h := range hits {
			assert.Equal(t, "alice", h.OwnerID)
			assert.Equal(t, "Alice's trip", h.Title)
		}

		n, err := s.Delete(ctx, "bob", "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.Delete(ctx, "alice", "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("write never moves a chunk to another owner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		v := Unit(map[int]float64{0: 1})
		r := Rec("alice", "d1", 0, v)
		require.NoError(t, s.Write(ctx, r))

		stolen := r
		stolen.OwnerID = "bob"
		stolen.Text = "overwritten"
		if err := s.Write(ctx, stolen); err != nil {
			assert.ErrorIs(t, err, domain.ErrChunkOwnerConflict)
		}

		hits, err := s.Search(ctx, "alice", v, 5, 150)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "chunk 0 of d1", hits[0].Text)
	})

	t.Run("delete removes the whole document only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		v := Unit(map[int]float64{0: 1})
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Write(ctx, Rec("alice", "d1", i, v)))
		}
		require.NoError(t, s.Write(ctx, Rec("alice", "d2", 0, v)))
		require.NoError(t, s.Write(ctx, Rec("bob", "d1", 0, v)))

		n, err := s.Delete(ctx, "alice", "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		hits, err := s.Search(ctx, "alice", v, 10, 150)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "d2", hits[0].DocumentID)

		hits, err = s.Search(ctx, "bob", v, 10, 150)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		n, err = s.Delete(ctx, "alice", "missing")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Write(ctx, domain.Record{ChunkID: "x", DocumentID: "d", Vector: []float32{1}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = s.Search(ctx, "alice", Unit(map[int]float64{0: 1}), 0, 150)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("expired deadline", func(t *testing.T) {
		s := newStore(t)
		v := Unit(map[int]float64{0: 1})
		require.NoError(t, s.Write(context.Background(), Rec("alice", "d1", 0, v)))

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		_, err := s.Search(ctx, "alice", v, 5, 150)
		assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)
	})
}
