package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

type txKey struct{}

// WithTx returns a context carrying tx so repositories join it.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stored by WithTx.
func TxFromContext(ctx context.Context) (bun.Tx, bool) {
	if ctx == nil {
		return bun.Tx{}, false
	}
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	return tx, ok
}

// Conn returns the transaction in ctx, falling back to db.
func Conn(ctx context.Context, db bun.IDB) bun.IDB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// TxManager implements types.TxManager on top of bun.DB.RunInTx.
type TxManager struct {
	db   *bun.DB
	opts *sql.TxOptions
}

// NewTxManager wires a transaction manager for db. opts may be nil.
func NewTxManager(db *bun.DB, opts *sql.TxOptions) (*TxManager, error) {
	if db == nil {
		return nil, errors.New("storage: db required")
	}
	return &TxManager{db: db, opts: opts}, nil
}

// RunInTx executes fn inside a transaction. Nested calls reuse the outer
// transaction so the outermost caller decides commit or rollback.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return m.db.RunInTx(ctx, m.opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(WithTx(ctx, tx))
	})
}
