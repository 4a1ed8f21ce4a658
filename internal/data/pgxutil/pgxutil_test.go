package pgxutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_ZeroValue(t *testing.T) {
	var e Executor
	assert.False(t, e.InTx())
	assert.Nil(t, e.DB())

	called := false
	err := e.Run(context.Background(), func(Querier) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoBackend)
	assert.False(t, called)
}

func TestConn_NilDB(t *testing.T) {
	err := Conn(context.Background(), nil, func(*pgx.Conn) error {
		t.Fatal("fn must not run without a pool")
		return nil
	})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestTx_NilDB(t *testing.T) {
	err := Tx(context.Background(), nil, pgx.TxOptions{}, func(pgx.Tx) error {
		t.Fatal("fn must not run without a pool")
		return nil
	})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestNewTxExecutor_InTx(t *testing.T) {
	var tx pgx.Tx = fakeTx{}
	e := NewTxExecutor(tx)
	assert.True(t, e.InTx())
	assert.Nil(t, e.DB())

	var got Querier
	require.NoError(t, e.Run(context.Background(), func(q Querier) error {
		got = q
		return nil
	}))
	assert.Equal(t, tx, got)
}

// fakeTx satisfies pgx.Tx for identity checks only; every method panics.
type fakeTx struct{ pgx.Tx }
