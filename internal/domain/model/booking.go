package model

import (
	"fmt"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"   // invoice sent, hold not yet expired
	BookingPaid      BookingStatus = "paid"      // payment reconciled, session funded
	BookingCompleted BookingStatus = "completed" // funded session has ended
	BookingExpired   BookingStatus = "expired"   // unpaid past its hold; awaiting purge
	BookingCancelled BookingStatus = "cancelled" // user cancelled a paid future booking
)

// Booking is one reservation attempt. Persisted in its own table and
// correlated with the payment provider through InvoiceToken.
type Booking struct {
	ID                string
	UserID            int64
	PersonaID         string
	DurationMinutes   int
	TotalPrice        float64
	InvoiceToken      string
	IsPaid            bool
	IsCompleted       bool
	IsCancelled       bool
	PaymentMessageRef *int
	ScheduledStart    *time.Time
	CreatedAt         time.Time
	ExpiresAt         *time.Time // nil once paid
	PaidAt            *time.Time
}

// NewBooking validates the caller supplied fields and builds a pending booking.
func NewBooking(id string, userID int64, personaID string, minutes int, price float64,
	invoiceToken string, scheduledStart *time.Time, now time.Time, hold time.Duration,
) (*Booking, error) {
	switch {
	case id == "":
		return nil, fmt.Errorf("%w: empty booking id", domain.ErrInvalidArgument)
	case userID == 0:
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	case personaID == "":
		return nil, fmt.Errorf("%w: empty persona", domain.ErrInvalidArgument)
	case minutes <= 0:
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidArgument)
	case price < 0:
		return nil, fmt.Errorf("%w: negative price", domain.ErrInvalidArgument)
	case invoiceToken == "":
		return nil, fmt.Errorf("%w: empty invoice token", domain.ErrInvalidArgument)
	case scheduledStart != nil && !scheduledStart.After(now):
		return nil, fmt.Errorf("%w: scheduled start must be in the future", domain.ErrInvalidArgument)
	}
	exp := now.Add(hold)
	b := &Booking{
		ID:              id,
		UserID:          userID,
		PersonaID:       personaID,
		DurationMinutes: minutes,
		TotalPrice:      price,
		InvoiceToken:    invoiceToken,
		CreatedAt:       now,
		ExpiresAt:       &exp,
	}
	if scheduledStart != nil {
		s := scheduledStart.UTC().Truncate(time.Second)
		b.ScheduledStart = &s
	}
	return b, nil
}

func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// Status derives the lifecycle state at now.
func (b *Booking) Status(now time.Time) BookingStatus {
	switch {
	case b.IsCancelled:
		return BookingCancelled
	case b.IsCompleted:
		return BookingCompleted
	case b.IsPaid:
		return BookingPaid
	case b.ExpiresAt != nil && !now.Before(*b.ExpiresAt):
		return BookingExpired
	default:
		return BookingPending
	}
}

// HasFutureSchedule reports whether the session should start later than now.
func (b *Booking) HasFutureSchedule(now time.Time) bool {
	return b.ScheduledStart != nil && b.ScheduledStart.After(now)
}

// Window returns the paid interval for a session funded at paidAt.
func (b *Booking) Window(paidAt time.Time) (start, until time.Time) {
	start = paidAt
	if b.HasFutureSchedule(paidAt) {
		start = *b.ScheduledStart
	}
	return start, start.Add(b.Duration())
}

// Cancellable reports whether the user may still cancel at now.
func (b *Booking) Cancellable(now time.Time) bool {
	switch b.Status(now) {
	case BookingPending:
		return true
	case BookingPaid:
		return b.HasFutureSchedule(now)
	default:
		return false
	}
}

// MarkPaid applies the paid transition in memory.
func (b *Booking) MarkPaid(at time.Time) {
	b.IsPaid = true
	b.ExpiresAt = nil
	b.PaidAt = &at
}
