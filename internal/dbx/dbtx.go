// Package dbx provides tiny DB abstractions shared by the store layer:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a helper to run functions inside a transaction, and DB, a handle that
// serializes write transactions so the interactive and background actors
// never interleave mutations on the embedded sqlite file.
package dbx

import (
	"context"
	"database/sql"
	"sync"
)

// DBTX is the subset of database/sql used by the store layer.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// DB wraps *sql.DB with a single logical writer lock. Readers go straight
// to the pool; writers are queued behind the mutex so every mutation runs
// in exactly one serialized transaction at a time.
type DB struct {
	sdb *sql.DB
	mu  sync.Mutex
}

// NewDB wraps db. The caller keeps ownership of db and must Close it.
func NewDB(db *sql.DB) *DB {
	return &DB{sdb: db}
}

// Raw exposes the underlying *sql.DB for reads and for collaborators
// (migrations, test setup) that manage their own statements.
func (d *DB) Raw() *sql.DB {
	return d.sdb
}

// Write runs fn inside a serialized write transaction.
func (d *DB) Write(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return WithTx(ctx, d.sdb, nil, fn)
}

// Read runs fn with a plain (non-transactional) handle. Provided for
// symmetry at call sites that mix reads and writes.
func (d *DB) Read(ctx context.Context, fn func(ctx context.Context, q DBTX) error) error {
	return fn(ctx, d.sdb)
}
