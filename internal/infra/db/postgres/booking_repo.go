package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
)

var _ repository.BookingRepository = (*bookingRepo)(nil)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var bookingColumns = []string{
	"id", "user_id", "persona_id", "duration_minutes", "total_price", "invoice_token",
	"is_paid", "is_completed", "is_cancelled", "payment_message_ref", "scheduled_start",
	"created_at", "expires_at", "paid_at",
}

const bookingSelect = `SELECT id, user_id, persona_id, duration_minutes, total_price, invoice_token,
 is_paid, is_completed, is_cancelled, payment_message_ref, scheduled_start, created_at, expires_at, paid_at
 FROM bookings`

type bookingRepo struct{ store }

func NewBookingRepo(pool *pgxpool.Pool, timeout time.Duration) *bookingRepo {
	return &bookingRepo{store: newStore(pool, timeout)}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	b := &model.Booking{}
	var ref *int32
	if err := row.Scan(&b.ID, &b.UserID, &b.PersonaID, &b.DurationMinutes, &b.TotalPrice, &b.InvoiceToken,
		&b.IsPaid, &b.IsCompleted, &b.IsCancelled, &ref, &b.ScheduledStart, &b.CreatedAt, &b.ExpiresAt, &b.PaidAt); err != nil {
		return nil, mapError(err)
	}
	if ref != nil {
		v := int(*ref)
		b.PaymentMessageRef = &v
	}
	return b, nil
}

func (r *bookingRepo) Create(ctx context.Context, qx any, b *model.Booking) error {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	var ref interface{}
	if b.PaymentMessageRef != nil {
		ref = int32(*b.PaymentMessageRef)
	}
	const q = `
INSERT INTO bookings (
  id, user_id, persona_id, duration_minutes, total_price, invoice_token,
  is_paid, is_completed, is_cancelled, payment_message_ref, scheduled_start, created_at, expires_at, paid_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	_, err := execSQL(ctx, r.pool, qx, q, b.ID, b.UserID, b.PersonaID, b.DurationMinutes, b.TotalPrice, b.InvoiceToken,
		b.IsPaid, b.IsCompleted, b.IsCancelled, ref, b.ScheduledStart, b.CreatedAt, b.ExpiresAt, b.PaidAt)
	return mapError(err)
}

func (r *bookingRepo) PurgeExpiredSlot(ctx context.Context, qx any, personaID string, start, now time.Time) (int64, error) {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	const q = `DELETE FROM bookings WHERE persona_id=$1 AND scheduled_start=$2 AND NOT is_paid AND expires_at <= $3;`
	cmd, err := execSQL(ctx, r.pool, qx, q, personaID, start, now)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *bookingRepo) GetByID(ctx context.Context, qx any, id string) (*model.Booking, error) {
	return r.getOne(ctx, qx, bookingSelect+` WHERE id=$1`, id)
}

func (r *bookingRepo) GetByInvoiceToken(ctx context.Context, qx any, token string) (*model.Booking, error) {
	return r.getOne(ctx, qx, bookingSelect+` WHERE invoice_token=$1`, token)
}

func (r *bookingRepo) FindLatestPaid(ctx context.Context, qx any, userID int64, personaID string) (*model.Booking, error) {
	const where = ` WHERE user_id=$1 AND persona_id=$2 AND is_paid AND NOT is_completed AND NOT is_cancelled
 ORDER BY paid_at DESC NULLS LAST, created_at DESC LIMIT 1`
	return r.getOne(ctx, qx, bookingSelect+where, userID, personaID)
}

func (r *bookingRepo) getOne(ctx context.Context, qx any, q string, args ...interface{}) (*model.Booking, error) {
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	row, err := pickRow(ctx, r.pool, qx, q+";", args...)
	if err != nil {
		return nil, err
	}
	return scanBooking(row)
}

func (r *bookingRepo) ListByUser(ctx context.Context, qx any, userID int64, f repository.BookingFilter, now time.Time) ([]*model.Booking, error) {
	qb := applyBookingFilter(psq.Select(bookingColumns...).From("bookings").Where(sq.Eq{"user_id": userID}), f, now)
	q, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build booking query: %v", domain.ErrInvalidArgument, err)
	}

	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()
	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func applyBookingFilter(qb sq.SelectBuilder, f repository.BookingFilter, now time.Time) sq.SelectBuilder {
	if f.PersonaID != "" {
		qb = qb.Where(sq.Eq{"persona_id": f.PersonaID})
	}
	if f.StartsAfter != nil {
		qb = qb.Where(sq.Gt{"scheduled_start": *f.StartsAfter})
	}
	if len(f.Statuses) > 0 {
		or := sq.Or{}
		for _, s := range f.Statuses {
			if pred := statusPredicate(s, now); pred != nil {
				or = append(or, pred)
			}
		}
		if len(or) > 0 {
			qb = qb.Where(or)
		}
	}
	if f.NewestFirst {
		qb = qb.OrderBy("created_at DESC")
	} else {
		qb = qb.OrderBy("COALESCE(scheduled_start, created_at) ASC")
	}
	if f.Limit > 0 {
		qb = qb.Limit(f.Limit)
	}
	return qb
}

// statusPredicate mirrors model.Booking.Status in SQL.
func statusPredicate(s model.BookingStatus, now time.Time) sq.Sqlizer {
	switch s {
	case model.BookingPending:
		return sq.And{sq.Eq{"is_paid": false, "is_cancelled": false}, sq.Gt{"expires_at": now}}
	case model.BookingExpired:
		return sq.And{sq.Eq{"is_paid": false, "is_cancelled": false}, sq.LtOrEq{"expires_at": now}}
	case model.BookingPaid:
		return sq.Eq{"is_paid": true, "is_completed": false, "is_cancelled": false}
	case model.BookingCompleted:
		return sq.Eq{"is_completed": true, "is_cancelled": false}
	case model.BookingCancelled:
		return sq.Eq{"is_cancelled": true}
	default:
		return nil
	}
}

// MarkPaidIfPending flips the paid flag only once; false means it was already paid.
func (r *bookingRepo) MarkPaidIfPending(ctx context.Context, qx any, id string, paidAt time.Time) (bool, error) {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	const q = `
UPDATE bookings
   SET is_paid = TRUE,
       expires_at = NULL,
       paid_at = $2
 WHERE id = $1
   AND NOT is_paid
   AND NOT is_cancelled;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id, paidAt)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *bookingRepo) MarkCompleted(ctx context.Context, qx any, id string) error {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	const q = `UPDATE bookings SET is_completed = TRUE WHERE id=$1 AND is_paid;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *bookingRepo) MarkCancelled(ctx context.Context, qx any, id string, now time.Time) (bool, error) {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	const q = `
UPDATE bookings SET is_cancelled = TRUE
 WHERE id=$1 AND is_paid AND NOT is_completed AND NOT is_cancelled AND scheduled_start > $2;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id, now)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *bookingRepo) SetPaymentMessageRef(ctx context.Context, qx any, id string, ref int) error {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	cmd, err := execSQL(ctx, r.pool, qx, `UPDATE bookings SET payment_message_ref=$2 WHERE id=$1;`, id, int32(ref))
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *bookingRepo) DeletePending(ctx context.Context, qx any, id string, now time.Time) (bool, error) {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	const q = `DELETE FROM bookings WHERE id=$1 AND NOT is_paid AND NOT is_cancelled AND expires_at > $2;`
	cmd, err := execSQL(ctx, r.pool, qx, q, id, now)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

// DeleteExpiredUnpaid is safe to run concurrently; it only touches rows that
// are already invalid.
func (r *bookingRepo) DeleteExpiredUnpaid(ctx context.Context, qx any, now time.Time) (int64, error) {
	ctx, cancel := r.bounded(ctx, qx)
	defer cancel()

	cmd, err := execSQL(ctx, r.pool, qx, `DELETE FROM bookings WHERE NOT is_paid AND expires_at <= $1;`, now)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}
