//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/service"
	"github.com/cloo-solutions/storyrag/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(ownerID, documentID string, createdAt time.Time) *domain.IndexJob {
	doc := domain.NewDocument(documentID, ownerID, "Letters from Chittagong", time.Date(2023, 11, 2, 8, 0, 0, 0, time.UTC), "Dear Ma, the ship leaves at dawn.")
	return domain.NewIndexJob(uuid.NewString(), doc, createdAt)
}

func TestIndexJobRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewIndexJobRepository(pool)

	job := newJob("alice", "doc-1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, job.RawText, got.RawText)
	assert.True(t, job.DocumentCreatedAt.Equal(got.DocumentCreatedAt))
	assert.Equal(t, domain.IndexJobStatusPending, got.Status)
	assert.Empty(t, got.Outcome)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.ProcessedAt)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewIndexJobRepository(pool)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	older := newJob("alice", "doc-1", base)
	newer := newJob("alice", "doc-2", base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, older))

	claimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, older.ID, claimed[0].ID)
	assert.Equal(t, domain.IndexJobStatusProcessing, claimed[0].Status)

	claimed, err = repo.GetPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, newer.ID, claimed[0].ID)

	claimed, err = repo.GetPendingJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIndexJobRepository_UpdateStatusAndRetries(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewIndexJobRepository(pool)

	job := newJob("alice", "doc-1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.IncrementRetries(ctx, job.ID))
	require.NoError(t, repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusPending, domain.IngestStatusFailed, "retry 1: model unavailable"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Retries)
	assert.Equal(t, domain.IndexJobStatusPending, got.Status)
	assert.Equal(t, domain.IngestStatusFailed, got.Outcome)
	assert.Equal(t, "retry 1: model unavailable", got.Error)
	assert.Nil(t, got.ProcessedAt)

	require.NoError(t, repo.UpdateJobStatus(ctx, job.ID, domain.IndexJobStatusCompleted, domain.IngestStatusPartiallyPersisted, "1 of 3 chunks skipped"))
	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusCompleted, got.Status)
	assert.Equal(t, domain.IngestStatusPartiallyPersisted, got.Outcome)
	assert.NotNil(t, got.ProcessedAt)

	err = repo.UpdateJobStatus(ctx, uuid.NewString(), domain.IndexJobStatusFailed, "", "")
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_SupersedeAndRequeue(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	repo := NewIndexJobRepository(pool)

	first := newJob("alice", "doc-1", time.Now().UTC().Add(-time.Minute))
	other := newJob("bob", "doc-1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, other))

	n, err := repo.SupersedePending(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusFailed, got.Status)
	assert.Equal(t, "superseded by a newer upload", got.Error)

	got, err = repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusPending, got.Status)

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err = repo.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.RequeueStale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusPending, got.Status)
}

func TestTxRunner_EnqueueAndRetract(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	svc := service.NewIndexingService(NewTxRunner(pool), nil)
	doc := domain.NewDocument("doc-1", "alice", "Monsoon", time.Now().UTC(), "Rain on the tin roof.")

	first, err := svc.Enqueue(ctx, doc)
	require.NoError(t, err)
	second, err := svc.Enqueue(ctx, doc)
	require.NoError(t, err)

	jobs := NewIndexJobRepository(pool)
	got, err := jobs.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusFailed, got.Status)
	got, err = jobs.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusPending, got.Status)

	_, err = svc.Retract(ctx, "alice", "doc-1")
	require.NoError(t, err)
	got, err = jobs.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusFailed, got.Status)
}
