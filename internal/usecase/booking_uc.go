// File: internal/usecase/booking_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

// Compile-time check
var _ BookingUseCase = (*bookingUC)(nil)

type MarkPaidResult int

const (
	MarkPaidTransitioned MarkPaidResult = iota + 1
	MarkPaidAlreadyPaid
)

func (r MarkPaidResult) String() string {
	switch r {
	case MarkPaidTransitioned:
		return "transitioned"
	case MarkPaidAlreadyPaid:
		return "already_paid"
	default:
		return "unknown"
	}
}

// CreateBookingInput carries the caller-computed booking terms. An empty
// InvoiceToken is replaced by a fresh uuid.
type CreateBookingInput struct {
	UserID          int64
	PersonaID       string
	DurationMinutes int
	TotalPrice      float64
	InvoiceToken    string
	ScheduledStart  *time.Time
}

type BookingUseCase interface {
	Create(ctx context.Context, in CreateBookingInput) (*model.Booking, error)
	Get(ctx context.Context, id string) (*model.Booking, error)
	GetByInvoiceToken(ctx context.Context, token string) (*model.Booking, error)
	FindLatestPaid(ctx context.Context, userID int64, personaID string) (*model.Booking, error)
	// ListUpcoming returns the user's pending and paid bookings, soonest first.
	ListUpcoming(ctx context.Context, userID int64) ([]*model.Booking, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (MarkPaidResult, error)
	MarkCompleted(ctx context.Context, id string) error
	ExpireStale(ctx context.Context) (int64, error)
	Cancel(ctx context.Context, userID int64, id string) (*model.Booking, error)
	AttachPaymentMessage(ctx context.Context, id string, messageID int) error
}

type bookingUC struct {
	repo repository.BookingRepository
	tm   repository.TransactionManager
	hold time.Duration
	log  *zerolog.Logger
	now  func() time.Time
}

func NewBookingUseCase(repo repository.BookingRepository, tm repository.TransactionManager, hold time.Duration, logger *zerolog.Logger) *bookingUC {
	if hold <= 0 {
		hold = 5 * time.Minute
	}
	return &bookingUC{
		repo: repo,
		tm:   tm,
		hold: hold,
		log:  logging.Component(logger, "booking"),
		now:  time.Now,
	}
}

func (u *bookingUC) Create(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	defer logging.TraceDuration(u.log, "BookingUC.Create")()

	token := in.InvoiceToken
	if token == "" {
		token = uuid.NewString()
	}
	now := u.now().UTC()
	b, err := model.NewBooking(ulid.Make().String(), in.UserID, in.PersonaID, in.DurationMinutes,
		in.TotalPrice, token, in.ScheduledStart, now, u.hold)
	if err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}

	if b.ScheduledStart == nil {
		err = u.repo.Create(ctx, repository.NoTX, b)
	} else {
		// A stale unpaid hold on the same slot must not block a new booking.
		err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if n, err := u.repo.PurgeExpiredSlot(ctx, tx, b.PersonaID, *b.ScheduledStart, now); err != nil {
				return err
			} else if n > 0 {
				u.log.Debug().Int64("purged", n).Str("persona", b.PersonaID).Time("start", *b.ScheduledStart).Msg("released expired hold")
			}
			return u.repo.Create(ctx, tx, b)
		})
	}
	if err != nil {
		metrics.IncBooking(domain.Kind(err))
		if !errors.Is(err, domain.ErrSlotTaken) {
			logging.ErrEvent(u.log.Error(), err).Int64("user_id", in.UserID).Msg("create booking")
		}
		return nil, err
	}

	metrics.IncBooking("created")
	u.log.Info().Str("booking_id", b.ID).Int64("user_id", b.UserID).Str("persona", b.PersonaID).
		Int("minutes", b.DurationMinutes).Bool("scheduled", b.ScheduledStart != nil).Msg("booking created")
	return b, nil
}

func (u *bookingUC) Get(ctx context.Context, id string) (*model.Booking, error) {
	return u.repo.GetByID(ctx, repository.NoTX, id)
}

func (u *bookingUC) GetByInvoiceToken(ctx context.Context, token string) (*model.Booking, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return u.repo.GetByInvoiceToken(ctx, repository.NoTX, token)
}

func (u *bookingUC) FindLatestPaid(ctx context.Context, userID int64, personaID string) (*model.Booking, error) {
	return u.repo.FindLatestPaid(ctx, repository.NoTX, userID, personaID)
}

func (u *bookingUC) ListUpcoming(ctx context.Context, userID int64) ([]*model.Booking, error) {
	f := repository.BookingFilter{
		Statuses: []model.BookingStatus{model.BookingPending, model.BookingPaid},
		Limit:    20,
	}
	return u.repo.ListByUser(ctx, repository.NoTX, userID, f, u.now().UTC())
}

func (u *bookingUC) MarkPaid(ctx context.Context, id string, paidAt time.Time) (MarkPaidResult, error) {
	ok, err := u.repo.MarkPaidIfPending(ctx, repository.NoTX, id, paidAt.UTC())
	if err != nil {
		return 0, err
	}
	if !ok {
		// either already paid or gone
		if _, err := u.repo.GetByID(ctx, repository.NoTX, id); err != nil {
			return 0, err
		}
		return MarkPaidAlreadyPaid, nil
	}
	return MarkPaidTransitioned, nil
}

func (u *bookingUC) MarkCompleted(ctx context.Context, id string) error {
	err := u.repo.MarkCompleted(ctx, repository.NoTX, id)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, getErr := u.repo.GetByID(ctx, repository.NoTX, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: booking %s is not paid", domain.ErrInvalidArgument, id)
}

func (u *bookingUC) ExpireStale(ctx context.Context) (int64, error) {
	n, err := u.repo.DeleteExpiredUnpaid(ctx, repository.NoTX, u.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddBookingsExpired(n)
	}
	return n, nil
}

// Cancel deletes a pending hold or marks a paid future booking cancelled.
// Bookings owned by someone else are reported as missing.
func (u *bookingUC) Cancel(ctx context.Context, userID int64, id string) (*model.Booking, error) {
	b, err := u.repo.GetByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.ErrNotFound
	}

	now := u.now().UTC()
	var done bool
	switch b.Status(now) {
	case model.BookingPending:
		done, err = u.repo.DeletePending(ctx, repository.NoTX, id, now)
	case model.BookingPaid:
		if !b.HasFutureSchedule(now) {
			return nil, domain.ErrCannotCancel
		}
		done, err = u.repo.MarkCancelled(ctx, repository.NoTX, id, now)
		b.IsCancelled = done
	default:
		return nil, domain.ErrCannotCancel
	}
	if err != nil {
		return nil, err
	}
	if !done {
		// lost a race against payment or the hold expired meanwhile
		return nil, domain.ErrCannotCancel
	}

	metrics.IncBooking("cancelled")
	u.log.Info().Str("booking_id", id).Int64("user_id", userID).Bool("was_paid", b.IsPaid).Msg("booking cancelled")
	return b, nil
}

func (u *bookingUC) AttachPaymentMessage(ctx context.Context, id string, messageID int) error {
	return u.repo.SetPaymentMessageRef(ctx, repository.NoTX, id, messageID)
}
