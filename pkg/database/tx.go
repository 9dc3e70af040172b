package database

import (
	"context"
	"fmt"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
)

// TxRunner runs a function inside a database transaction. The context passed
// to fn carries an OwnerScope whose querier is the open transaction, so
// repository calls made through it are transactional. Any error from fn
// aborts the whole transaction; nothing it wrote becomes visible.
//
// Services depend on this interface rather than pgx directly so tests can
// substitute an in-memory runner.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgxTxRunner struct{}

// NewTxRunner returns the pgx-backed TxRunner. It requires an OwnerScope in
// the context: transactions always open on the owner's scoped connection.
func NewTxRunner() TxRunner {
	return &pgxTxRunner{}
}

var _ TxRunner = (*pgxTxRunner)(nil)

func (r *pgxTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}
	if scope.Tx != nil {
		// Already transactional; run in the enclosing transaction.
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txCtx := SetOwnerScope(ctx, &OwnerScope{Conn: scope.Conn, Tx: tx, OwnerID: scope.OwnerID})

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w: %w (rollback also failed: %v)", apperrors.ErrTransactionAborted, err, rbErr)
		}
		return fmt.Errorf("%w: %w", apperrors.ErrTransactionAborted, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
