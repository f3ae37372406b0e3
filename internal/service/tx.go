package service

import (
	"context"

	"github.com/cloo-solutions/storyrag/internal/domain"
)

// IndexJobRepositoryInterface is the queue side of index job persistence.
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
	SupersedePending(ctx context.Context, ownerID, documentID string) (int64, error)
}

// RecordRepositoryInterface removes stored chunk records.
type RecordRepositoryInterface interface {
	Delete(ctx context.Context, ownerID, documentID string) (int64, error)
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	IndexJobs() IndexJobRepositoryInterface
	Records() RecordRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
