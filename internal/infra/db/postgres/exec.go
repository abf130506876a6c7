package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
)

const (
	uniqueViolation = "23505"

	constraintBookingSlot    = "bookings_slot_uq"
	defaultStatementDeadline = 5 * time.Second
)

var errInvalidExecContext = errors.New("unsupported execution context")

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// getExecutor picks the tx when qx carries one, otherwise the pool.
func getExecutor(pool *pgxpool.Pool, qx repository.Tx) (executor, error) {
	switch v := qx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, errInvalidExecContext
	}
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, qx repository.Tx, q string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, qx)
	if err != nil {
		return nil, err
	}
	return ex.Exec(ctx, q, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, qx repository.Tx, q string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, qx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, q, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, qx repository.Tx, q string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, qx)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, q, args...)
}

// mapError translates driver errors into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrSerialization) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == constraintBookingSlot {
			return fmt.Errorf("%w: %s", domain.ErrSlotTaken, pgErr.Detail)
		}
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %w", domain.ErrStore, err)
}

// store carries the pool and the per-statement deadline shared by repositories.
type store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func newStore(pool *pgxpool.Pool, timeout time.Duration) store {
	if timeout <= 0 {
		timeout = defaultStatementDeadline
	}
	return store{pool: pool, timeout: timeout}
}

// bounded applies the statement deadline unless qx is a transaction, whose
// lifetime is governed by the caller's context.
func (s store) bounded(ctx context.Context, qx repository.Tx) (context.Context, context.CancelFunc) {
	if _, inTx := qx.(pgx.Tx); inTx {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
