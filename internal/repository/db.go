package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// storeError classifies a database error for callers of the vector store.
func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.FromContextError(ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return domain.ErrDeadlineExceeded.Wrap(err)
	}
	return domain.ErrStoreUnavailable.Wrap(fmt.Errorf("postgres %s: %w", op, err))
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
