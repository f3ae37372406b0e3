package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/vectorstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	// VectorDimensions matches the story_embeddings.embedding column.
	VectorDimensions = 1536
	// maxEfSearch is the largest hnsw.ef_search pgvector accepts.
	maxEfSearch = 1000
)

// EmbeddingRecordRepository stores chunk records in story_embeddings and
// searches them through the HNSW cosine index.
type EmbeddingRecordRepository struct {
	db dbtx
}

var _ vectorstore.Store = (*EmbeddingRecordRepository)(nil)

func NewEmbeddingRecordRepository(pool *pgxpool.Pool) *EmbeddingRecordRepository {
	return &EmbeddingRecordRepository{db: pool}
}

func NewEmbeddingRecordRepositoryWithTx(tx pgx.Tx) *EmbeddingRecordRepository {
	return &EmbeddingRecordRepository{db: tx}
}

func checkDimensions(v []float32) error {
	if len(v) != VectorDimensions {
		return domain.ErrDimensionMismatch.Wrap(fmt.Errorf("got %d, want %d", len(v), VectorDimensions))
	}
	return nil
}

func (r *EmbeddingRecordRepository) Write(ctx context.Context, rec domain.Record) error {
	if err := vectorstore.CheckRecord(rec); err != nil {
		return err
	}
	if err := checkDimensions(rec.Vector); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO story_embeddings
			(chunk_id, owner_id, document_id, sequence_index, text_chunk, embedding, title, document_created_at, created_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (chunk_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			document_id = EXCLUDED.document_id,
			sequence_index = EXCLUDED.sequence_index,
			text_chunk = EXCLUDED.text_chunk,
			embedding = EXCLUDED.embedding,
			title = EXCLUDED.title,
			document_created_at = EXCLUDED.document_created_at
		 WHERE story_embeddings.owner_id = EXCLUDED.owner_id`,
		rec.ChunkID,
		rec.OwnerID,
		rec.DocumentID,
		rec.SequenceIndex,
		rec.Text,
		pgvector.NewVector(rec.Vector),
		rec.Title,
		rec.CreatedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return storeError(ctx, "write", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChunkOwnerConflict.Wrap(fmt.Errorf("chunk %s", rec.ChunkID))
	}
	return nil
}

// Delete removes a document's records in a single statement.
func (r *EmbeddingRecordRepository) Delete(ctx context.Context, ownerID, documentID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM story_embeddings WHERE owner_id = $1 AND document_id = $2`,
		ownerID, documentID,
	)
	if err != nil {
		return 0, storeError(ctx, "delete", err)
	}
	return tag.RowsAffected(), nil
}

// Search runs the owner-filtered query in its own transaction so the HNSW
// settings stay local to it. numCandidates becomes hnsw.ef_search, and
// strict_order iterative scans keep filtered searches from returning fewer
// than k rows when the owner has enough records.
func (r *EmbeddingRecordRepository) Search(ctx context.Context, ownerID string, query []float32, k, numCandidates int) ([]domain.SearchHit, error) {
	numCandidates, err := vectorstore.SearchArgs(k, numCandidates)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(query); err != nil {
		return nil, err
	}
	if numCandidates > maxEfSearch {
		numCandidates = maxEfSearch
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storeError(ctx, "search", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx,
		`SELECT set_config('hnsw.ef_search', $1, true), set_config('hnsw.iterative_scan', 'strict_order', true)`,
		strconv.Itoa(numCandidates),
	); err != nil {
		return nil, storeError(ctx, "search", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT chunk_id, owner_id, document_id, sequence_index, text_chunk, title, document_created_at,
		        1 - (embedding <=> $1) AS score
		 FROM story_embeddings
		 WHERE owner_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(query), ownerID, k,
	)
	if err != nil {
		return nil, storeError(ctx, "search", err)
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		var h domain.SearchHit
		var score float64
		if err := rows.Scan(&h.ChunkID, &h.OwnerID, &h.DocumentID, &h.SequenceIndex, &h.Text, &h.Title, &h.CreatedAt, &score); err != nil {
			return nil, storeError(ctx, "search", err)
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ctx, "search", err)
	}

	return hits, nil
}

// ListByDocument returns a document's records ordered by sequence index,
// vectors included.
func (r *EmbeddingRecordRepository) ListByDocument(ctx context.Context, ownerID, documentID string) ([]domain.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, owner_id, document_id, sequence_index, text_chunk, embedding, title, document_created_at
		 FROM story_embeddings
		 WHERE owner_id = $1 AND document_id = $2
		 ORDER BY sequence_index ASC`,
		ownerID, documentID,
	)
	if err != nil {
		return nil, storeError(ctx, "list", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var vec pgvector.Vector
		if err := rows.Scan(&rec.ChunkID, &rec.OwnerID, &rec.DocumentID, &rec.SequenceIndex, &rec.Text, &vec, &rec.Title, &rec.CreatedAt); err != nil {
			return nil, storeError(ctx, "list", err)
		}
		rec.Vector = vec.Slice()
		records = append(records, rec)
	}
	return records, rows.Err()
}
