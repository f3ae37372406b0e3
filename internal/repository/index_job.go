package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const indexJobColumns = `id, document_id, owner_id, title, document_created_at, raw_text, status, outcome, retries, error, created_at, processed_at`

type IndexJobRepository struct {
	db dbtx
}

func NewIndexJobRepository(pool *pgxpool.Pool) *IndexJobRepository {
	return &IndexJobRepository{db: pool}
}

func NewIndexJobRepositoryWithTx(tx pgx.Tx) *IndexJobRepository {
	return &IndexJobRepository{db: tx}
}

func scanIndexJob(row pgx.Row) (*domain.IndexJob, error) {
	var job domain.IndexJob
	var outcome, errMsg pgtype.Text
	if err := row.Scan(
		&job.ID, &job.DocumentID, &job.OwnerID, &job.Title, &job.DocumentCreatedAt, &job.RawText,
		&job.Status, &outcome, &job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt,
	); err != nil {
		return nil, err
	}
	if outcome.Valid {
		job.Outcome = domain.IngestStatus(outcome.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func (r *IndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	if err := domain.ValidateIndexJob(job); err != nil {
		return domain.ErrInvalidInput.Wrap(err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_jobs (id, document_id, owner_id, title, document_created_at, raw_text, status, outcome, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.DocumentID, job.OwnerID, job.Title, job.DocumentCreatedAt.UTC(), job.RawText,
		job.Status, nullableString(string(job.Outcome)), job.Retries, nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *IndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	job, err := scanIndexJob(r.db.QueryRow(ctx,
		`SELECT `+indexJobColumns+` FROM index_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending moves up to limit pending jobs to processing and returns them.
// Concurrent workers never claim the same job.
func (r *IndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM index_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE index_jobs
		 SET status = $3,
		     claimed_at = NOW(),
		     processed_at = NULL
		 FROM cte
		 WHERE index_jobs.id = cte.id
		 RETURNING index_jobs.id, index_jobs.document_id, index_jobs.owner_id, index_jobs.title,
		           index_jobs.document_created_at, index_jobs.raw_text, index_jobs.status, index_jobs.outcome,
		           index_jobs.retries, index_jobs.error, index_jobs.created_at, index_jobs.processed_at`,
		domain.IndexJobStatusPending, limit, domain.IndexJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IndexJob
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// UpdateStatus records a job's status, the outcome of its last ingest
// attempt, and an error message. Terminal statuses stamp processed_at.
func (r *IndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, outcome domain.IngestStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.IndexJobStatusCompleted || status == domain.IndexJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET status = $1, outcome = $2, error = $3, processed_at = $4 WHERE id = $5`,
		status, nullableString(string(outcome)), nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func (r *IndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

// SupersedePending fails every still-pending job for a document, so only the
// newest upload of it gets indexed.
func (r *IndexJobRepository) SupersedePending(ctx context.Context, ownerID, documentID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET status = $1, error = $2, processed_at = NOW()
		 WHERE owner_id = $3 AND document_id = $4 AND status = $5`,
		domain.IndexJobStatusFailed, "superseded by a newer upload", ownerID, documentID, domain.IndexJobStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// RequeueStale returns jobs claimed more than olderThan ago and still
// processing to pending. Such jobs were left behind by a worker that died
// mid-run.
func (r *IndexJobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET status = $1
		 WHERE status = $2 AND claimed_at < $3`,
		domain.IndexJobStatusPending, domain.IndexJobStatusProcessing, time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *IndexJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IndexJob, error) {
	return r.ClaimPending(ctx, 100)
}

func (r *IndexJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, outcome domain.IngestStatus, errMsg string) error {
	return r.UpdateStatus(ctx, jobID, status, outcome, errMsg)
}
