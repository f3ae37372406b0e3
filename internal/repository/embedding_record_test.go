//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/testutil"
	"github.com/cloo-solutions/storyrag/internal/vectorstore"
	"github.com/cloo-solutions/storyrag/internal/vectorstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRecordRepository_Store(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	storetest.Run(t, func(t *testing.T) vectorstore.Store {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		return NewEmbeddingRecordRepository(pool)
	})
}

func TestEmbeddingRecordRepository_RejectsWrongDimensions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewEmbeddingRecordRepository(pool)

	rec := storetest.Rec("alice", "d1", 0, []float32{1, 0, 0})
	err := repo.Write(ctx, rec)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = repo.Search(ctx, "alice", []float32{1, 0, 0}, 5, 150)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbeddingRecordRepository_ListByDocument(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewEmbeddingRecordRepository(pool)

	for _, seq := range []int{2, 0, 1} {
		require.NoError(t, repo.Write(ctx, storetest.Rec("alice", "d1", seq, storetest.Unit(map[int]float64{seq: 1}))))
	}
	require.NoError(t, repo.Write(ctx, storetest.Rec("alice", "d2", 0, storetest.Unit(map[int]float64{0: 1}))))

	recs, err := repo.ListByDocument(ctx, "alice", "d1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, i, r.SequenceIndex)
		assert.Equal(t, "Title d1", r.Title)
		assert.Len(t, r.Vector, VectorDimensions)
	}
}

func TestEmbeddingRecordRepository_DeleteInTransaction(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewEmbeddingRecordRepository(pool)

	require.NoError(t, repo.Write(ctx, storetest.Rec("alice", "d1", 0, storetest.Unit(map[int]float64{0: 1}))))
	require.NoError(t, repo.Write(ctx, storetest.Rec("alice", "d1", 1, storetest.Unit(map[int]float64{1: 1}))))

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	n, err := NewEmbeddingRecordRepositoryWithTx(tx).Delete(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recs, err := repo.ListByDocument(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Len(t, recs, 2, "uncommitted delete must not be visible")

	require.NoError(t, tx.Rollback(ctx))
	recs, err = repo.ListByDocument(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
