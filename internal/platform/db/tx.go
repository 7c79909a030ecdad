package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// DBTX is the query surface shared by a pool and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Conn returns the transaction bound to ctx, or pool when there is none.
func Conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx
	}
	return pool
}

// TxManager opens pgx transactions and binds them to the context so every
// repository called with that context joins the same transaction.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager constructs a TxManager.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Begin implements shared.TxDriver. Read committed is used because every
// write path takes row locks (SELECT ... FOR UPDATE) after its keyed lock,
// and it must see rows committed after the transaction started.
func (m *TxManager) Begin(ctx context.Context) (context.Context, shared.TxHandle, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ctx, nil, fmt.Errorf("platform/db: begin tx: %w", err)
	}
	return context.WithValue(ctx, txKey{}, tx), pgxHandle{tx: tx}, nil
}

type pgxHandle struct {
	tx pgx.Tx
}

func (h pgxHandle) Commit(ctx context.Context) error {
	if err := h.tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

func (h pgxHandle) Rollback(ctx context.Context) error {
	return h.tx.Rollback(ctx)
}

// WithTx executes fn inside a read-committed unit of work.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context) error) error {
	return shared.NewTransactor(NewTxManager(pool)).WithinTx(ctx, fn)
}
