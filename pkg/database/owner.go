package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations repositories use. Both a scoped
// pool connection and an open transaction satisfy it, so repository code is
// identical inside and outside the write phase.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OwnerScope wraps a connection bound to one owner and ensures cleanup.
// The connection has app.current_owner_id set for RLS policy evaluation.
// When Tx is non-nil, all repository operations run inside it.
type OwnerScope struct {
	Conn    *pgxpool.Conn
	Tx      pgx.Tx
	OwnerID uuid.UUID
}

// Q returns the querier repositories should use: the open transaction when
// one is active, the scoped connection otherwise.
func (s *OwnerScope) Q() Querier {
	if s.Tx != nil {
		return s.Tx
	}
	return s.Conn
}

// Close resets owner context and releases the connection to the pool.
// This MUST be called to prevent owner context from leaking to the next caller.
func (s *OwnerScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_owner_id")
	s.Conn.Release()
}

// WithOwner acquires a connection and sets the owner context for RLS.
// The returned OwnerScope MUST be closed with defer scope.Close().
func (db *DB) WithOwner(ctx context.Context, ownerID uuid.UUID) (*OwnerScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_owner_id', $1, false)", ownerID.String())
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &OwnerScope{Conn: conn, OwnerID: ownerID}, nil
}
