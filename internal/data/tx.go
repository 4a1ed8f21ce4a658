package data

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
)

// TxManager implements core.UnitOfWork on a pgx transaction. Repositories
// handed to the callback share the transaction, so either every write they
// make commits or none does.
type TxManager struct {
	DB           *sql.DB
	timeProvider TimeProvider
	opts         pgx.TxOptions
}

// NewTxManager creates a TxManager with real time provider and read-committed isolation.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{
		DB:           db,
		timeProvider: RealTimeProvider{},
		opts:         pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
	}
}

// NewTxManagerWithTimeProvider creates a TxManager with a custom time provider (useful for tests).
func NewTxManagerWithTimeProvider(db *sql.DB, tp TimeProvider) *TxManager {
	m := NewTxManager(db)
	m.timeProvider = tp
	return m
}

// WithinTx runs fn inside one transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(repos core.TxRepositories) error) error {
	return pgxutil.Tx(ctx, m.DB, m.opts, func(tx pgx.Tx) error {
		return fn(m.bind(pgxutil.NewTxExecutor(tx)))
	})
}

func (m *TxManager) bind(exec pgxutil.Executor) core.TxRepositories {
	return core.TxRepositories{
		Users:         newUserRepo(exec, m.timeProvider),
		Jobs:          newJobRepo(exec, m.timeProvider),
		Applications:  newApplicationRepo(exec, m.timeProvider),
		Notifications: newNotificationRepo(exec, m.timeProvider),
		Messages:      newMessageRepo(exec, m.timeProvider),
	}
}

var (
	_ core.UnitOfWork             = (*TxManager)(nil)
	_ core.NotificationRepository = (*NotificationRepo)(nil)
	_ core.UserRepository         = (*UserRepo)(nil)
	_ core.JobRepository          = (*JobRepo)(nil)
	_ core.ApplicationRepository  = (*ApplicationRepo)(nil)
	_ core.MessageRepository      = (*MessageRepo)(nil)
	_ core.ReconcilerRepository   = (*ReconcilerRepo)(nil)
	_ core.CacheRepository        = (*RedisCacheRepo)(nil)
)
