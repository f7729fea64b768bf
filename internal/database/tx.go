package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type txKey struct{}

// Transactor runs fn inside a transaction carried on the context.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TxManager struct {
	db *bun.DB
}

func NewTxManager(db *bun.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTransaction joins an outer transaction when one is already on ctx.
func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return m.db.RunInTx(ctx, TxOptions(m.db), func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction on ctx, or db itself.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}

// TxOptions asks Postgres for SERIALIZABLE. SQLite transactions are already serial.
func TxOptions(db *bun.DB) *sql.TxOptions {
	if IsPostgres(db) {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func IsPostgres(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// ForUpdate adds a row lock where the dialect supports one.
func ForUpdate(db *bun.DB, q *bun.SelectQuery) *bun.SelectQuery {
	if IsPostgres(db) {
		return q.For("UPDATE")
	}
	return q
}
