//go:build !integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"slot constraint", &pgconn.PgError{Code: "23505", ConstraintName: "bookings_slot_uq"}, domain.ErrSlotTaken},
		{"token constraint", &pgconn.PgError{Code: "23505", ConstraintName: "bookings_invoice_token_key"}, domain.ErrAlreadyExists},
		{"other pg error", &pgconn.PgError{Code: "40001"}, domain.ErrStore},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), domain.ErrStore},
		{"serialization passthrough", fmt.Errorf("%w: bad", domain.ErrSerialization), domain.ErrSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.in)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
		})
	}

	assert.NoError(t, mapError(nil))
	assert.True(t, errors.Is(mapError(context.DeadlineExceeded), context.DeadlineExceeded))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, retryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, retryable(domain.ErrStore))
	assert.False(t, retryable(nil))
}

func TestGetExecutor(t *testing.T) {
	_, err := getExecutor(nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = getExecutor(nil, "not a tx")
	assert.ErrorIs(t, err, errInvalidExecContext)
}

func TestApplyBookingFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := psq.Select("id").From("bookings").Where(sq.Eq{"user_id": int64(7)})

	t.Run("should order by start and cap the page", func(t *testing.T) {
		q, args, err := applyBookingFilter(base, repository.BookingFilter{Limit: 5}, now).ToSql()

		assert.NoError(t, err)
		assert.Equal(t, "SELECT id FROM bookings WHERE user_id = $1 ORDER BY COALESCE(scheduled_start, created_at) ASC LIMIT 5", q)
		assert.Equal(t, []interface{}{int64(7)}, args)
	})

	t.Run("should OR status predicates together", func(t *testing.T) {
		f := repository.BookingFilter{
			PersonaID: "anna",
			Statuses:  []model.BookingStatus{model.BookingPending, model.BookingPaid},
		}
		q, args, err := applyBookingFilter(base, f, now).ToSql()

		assert.NoError(t, err)
		assert.Contains(t, q, "persona_id = $2")
		assert.Contains(t, q, "expires_at > $")
		assert.Contains(t, q, " OR ")
		assert.Contains(t, args, now)
	})

	t.Run("should ignore unknown statuses", func(t *testing.T) {
		f := repository.BookingFilter{Statuses: []model.BookingStatus{"bogus"}, NewestFirst: true}
		q, _, err := applyBookingFilter(base, f, now).ToSql()

		assert.NoError(t, err)
		assert.NotContains(t, q, "is_paid")
		assert.Contains(t, q, "ORDER BY created_at DESC")
	})
}
