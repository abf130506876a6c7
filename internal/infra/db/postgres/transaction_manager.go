package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	defaultTxAttempts = 3
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs units of work in pgx transactions. The handle reaches
// repositories through their qx argument as pgx.Tx.
type TxManager struct {
	pool     *pgxpool.Pool
	attempts int
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, attempts: defaultTxAttempts}
}

// WithTx commits when fn succeeds and rolls back otherwise. A transaction
// aborted by a serialization failure or a deadlock is replayed from the
// start, so fn must not have effects outside the transaction.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.once(ctx, txOpt, fn)
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		metrics.IncDBTx("retry")
	}
	if retryable(err) {
		return mapError(err)
	}
	return err
}

func (m *TxManager) once(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return mapError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
			metrics.IncDBTx("rollback")
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if retryable(err) {
			return err
		}
		return mapError(fmt.Errorf("commit: %w", err))
	}
	committed = true
	metrics.IncDBTx("commit")
	return nil
}

// retryable looks at the raw driver error; fn may return it unmapped.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}
