// Package pgx implements the store.Storage interface on PostgreSQL
// with pgvector for vector similarity search.
package pgx

import (
	"context"
	"errors"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodestar-hq/lodestar/pkg/store"
)

// idChunkSize bounds the id arrays bound into ANY($1) lookups.
const idChunkSize = 1000

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store is the PostgreSQL-backed Storage implementation. Every mutation
// is a single short transaction; no long-lived locks are held.
type Store struct {
	conn pgxIConn
}

var _ store.Storage = (*Store)(nil)

// New creates a Store on an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{conn: pool}
}

// NewWithConnection creates a Store on any pgx connection, for tests
// and transactional composition.
func NewWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// mapError translates database errors into the store sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			// Unique violation, serialization failure, deadlock: the
			// caller retries once with fresh data.
			return store.ErrConflict
		}
	}
	return err
}
