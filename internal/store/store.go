// Package store wraps db.Querier with transaction support and groups the
// multi-step write operations that must execute atomically.
//
// Single-query reads (ListApplications, GetFunnelStats, etc.) should be
// called directly on db.Querier in handlers; there is no value in proxying
// them through this package.
//
// Dependency rule: store imports db only. It never imports api, worker,
// quiz, sequence, or email.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
)

// Store holds a *sql.DB for starting transactions and a db.Querier for
// executing queries outside of transactions. The operation files
// (applications.go, clicks.go) attach methods to this type.
type Store struct {
	// pool is the raw connection pool, used only to begin transactions.
	pool *sql.DB

	// q is the base Querier; withTx rebinds it to each transaction.
	q db.Querier
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (e.g. via db.PingContext) before calling New.
func New(pool *sql.DB, q db.Querier) *Store {
	return &Store{pool: pool, q: q}
}

// txQuerier is a function that receives a transactional Querier and returns an
// error. Returning a non-nil error causes withTx to roll back automatically.
type txQuerier func(ctx context.Context, q db.Querier) error

// withTx begins a serializable transaction, passes a Querier scoped to that
// transaction to fn, and commits on success or rolls back on any error
// (including panics).
func (s *Store) withTx(ctx context.Context, fn txQuerier) error {
	return s.withTxIsolation(ctx, sql.LevelSerializable, fn)
}

// withTxIsolation is withTx at an explicit isolation level. Operations whose
// writes are all conditional updates run at read committed, where a lost
// race shows up as sql.ErrNoRows instead of a serialization failure.
func (s *Store) withTxIsolation(ctx context.Context, level sql.IsolationLevel, fn txQuerier) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-panic after rollback
		}
	}()

	txQ := s.q.(*db.Queries).WithTx(tx)

	if err := fn(ctx, txQ); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			// Wrap both errors so the caller sees both failure reasons.
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
