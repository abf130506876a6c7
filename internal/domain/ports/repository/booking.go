package repository

import (
	"context"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
)

// BookingFilter narrows ListByUser. Zero values disable a filter.
type BookingFilter struct {
	PersonaID   string
	Statuses    []model.BookingStatus
	StartsAfter *time.Time
	Limit       uint64
	NewestFirst bool
}

type BookingRepository interface {
	// Create inserts b. A live booking on the same persona and scheduled start
	// yields domain.ErrSlotTaken; a duplicate invoice token domain.ErrAlreadyExists.
	Create(ctx context.Context, qx any, b *model.Booking) error
	// PurgeExpiredSlot deletes expired unpaid holds on one persona slot.
	PurgeExpiredSlot(ctx context.Context, qx any, personaID string, start, now time.Time) (int64, error)

	GetByID(ctx context.Context, qx any, id string) (*model.Booking, error)
	GetByInvoiceToken(ctx context.Context, qx any, token string) (*model.Booking, error)
	// FindLatestPaid returns the most recent paid, not completed booking.
	FindLatestPaid(ctx context.Context, qx any, userID int64, personaID string) (*model.Booking, error)
	ListByUser(ctx context.Context, qx any, userID int64, f BookingFilter, now time.Time) ([]*model.Booking, error)

	// MarkPaidIfPending reports false when the booking was already paid.
	MarkPaidIfPending(ctx context.Context, qx any, id string, paidAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, qx any, id string) error
	// MarkCancelled only touches paid bookings whose start is still ahead of now.
	MarkCancelled(ctx context.Context, qx any, id string, now time.Time) (bool, error)
	SetPaymentMessageRef(ctx context.Context, qx any, id string, ref int) error

	// DeletePending removes an unpaid, unexpired booking; false when none matched.
	DeletePending(ctx context.Context, qx any, id string, now time.Time) (bool, error)
	DeleteExpiredUnpaid(ctx context.Context, qx any, now time.Time) (int64, error)
}
