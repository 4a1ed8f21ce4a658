// Package pgxutil bridges the database/sql pool to native pgx connections.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNoBackend is returned by an Executor built with neither a pool nor a tx.
var ErrNoBackend = errors.New("executor has neither a database nor a transaction")

// Querier is the query surface shared by *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgx.Conn)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// Conn checks a connection out of db and hands fn the underlying *pgx.Conn.
// The connection goes back to the pool when fn returns.
func Conn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) (err error) {
	if db == nil {
		return ErrNoBackend
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("checkout conn: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			err = errors.Join(err, fmt.Errorf("release conn: %w", cerr))
		}
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("driver conn is %T, want *stdlib.Conn", dc)
		}
		return fn(std.Conn())
	})
}

// Tx runs fn inside a pgx transaction and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unwrapped.
func Tx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return Conn(ctx, db, func(conn *pgx.Conn) (err error) {
		tx, err := conn.BeginTx(ctx, opts)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
			}
		}()
		if err = fn(tx); err != nil {
			return err
		}
		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// Executor runs statements either on a pooled connection or inside an open
// transaction. Repositories hold one so the same code serves both cases.
type Executor struct {
	db *sql.DB
	tx pgx.Tx
}

// NewExecutor returns an Executor that checks out a pooled connection per call.
func NewExecutor(db *sql.DB) Executor {
	return Executor{db: db}
}

// NewTxExecutor returns an Executor bound to tx.
func NewTxExecutor(tx pgx.Tx) Executor {
	return Executor{tx: tx}
}

// InTx reports whether the executor is bound to a transaction.
func (e Executor) InTx() bool { return e.tx != nil }

// DB returns the pool the executor was built from, or nil for a tx executor.
func (e Executor) DB() *sql.DB { return e.db }

// Run executes fn with a Querier.
func (e Executor) Run(ctx context.Context, fn func(Querier) error) error {
	if e.tx != nil {
		return fn(e.tx)
	}
	return Conn(ctx, e.db, func(conn *pgx.Conn) error {
		return fn(conn)
	})
}
