// Package store is the persistence layer of the dispatcher. It owns the
// queue state machine's transitions, the append-only audit log, and the
// node readiness rows.
//
// Every mutation that spans multiple reads runs inside one immediate-lock
// transaction (the database client opens all transactions with BEGIN
// IMMEDIATE), so read-decide-write sequences observe a stable snapshot.
// The store is the single authority for queue status and node readiness;
// nothing in the claim or join paths consults in-memory state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pillcell/dispatcher/pkg/database"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoPending indicates no queue is waiting for dispatch.
	ErrNoPending = errors.New("no pending queue")

	// ErrInsufficientStock indicates a queue item asks for more units than
	// the pill row holds.
	ErrInsufficientStock = errors.New("insufficient pill stock")

	// ErrPillInUse indicates the pill is referenced by existing queue
	// items and cannot be deleted.
	ErrPillInUse = errors.New("pill is referenced by existing queues")
)

// Store provides the persistence primitives over the SQLite client.
type Store struct {
	db *database.Client
}

// New creates a Store over an opened database client.
func New(db *database.Client) *Store {
	if db == nil {
		panic("store.New: db must not be nil")
	}
	return &Store{db: db}
}

// inTx runs fn inside one immediate-lock transaction, committing when fn
// returns nil and rolling back otherwise. Partial writes are impossible.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
