// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Query Surface

// DBTX is the query surface shared by [*pgxpool.Pool] and [pgx.Tx].
//
// Repositories obtain one through [Conn] so the same SQL runs either standalone
// or inside the transaction carried by the context.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Conn returns the transaction bound to ctx, or the pool when there is none.
func Conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// # Transactions

// Transactor runs a function inside a single database transaction.
//
// Services depend on this interface so multi-entity writes (e.g. mark an OTP used
// and flip the session flag) commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxManager implements [Transactor] on top of a pgx pool.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a [TxManager].
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx begins a transaction, stores it in the context passed to fn, and commits
// when fn returns nil. Any error (or panic) rolls back.
//
// Nested calls join the outer transaction instead of opening a new one.
func (manager *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	err := pgx.BeginFunc(ctx, manager.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		return fmt.Errorf("postgres_tx: %w", err)
	}
	return nil
}
