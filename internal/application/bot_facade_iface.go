package application

import (
	"context"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs. The usecase
// package types satisfy them; tests pass light-weight mocks.

type StateReader interface {
	Get(ctx context.Context, userID int64) *model.UserState
}

type CatalogService interface {
	Resolve(ctx context.Context, personaID string) model.PersonaResolution
	List(ctx context.Context) []model.Persona
	TimeSlots(ctx context.Context) []model.TimeSlot
	TimeSlot(ctx context.Context, id int) (model.TimeSlot, error)
	Quote(p model.Persona, slot model.TimeSlot) float64
	UpcomingStarts(now time.Time) []time.Time
}

type BookingService interface {
	Create(ctx context.Context, in usecase.CreateBookingInput) (*model.Booking, error)
	ListUpcoming(ctx context.Context, userID int64) ([]*model.Booking, error)
	Cancel(ctx context.Context, userID int64, id string) (*model.Booking, error)
	AttachPaymentMessage(ctx context.Context, id string, messageID int) error
}

type SessionService interface {
	Sweep(ctx context.Context) (usecase.SweepReport, error)
	EndSession(ctx context.Context, userID int64) (*model.UserSession, error)
	CancelBooking(ctx context.Context, userID int64, bookingID string) (*model.Booking, error)
}

type ChatService interface {
	HandleMessage(ctx context.Context, userID int64, text string) (usecase.ChatReply, error)
	SelectPersona(ctx context.Context, userID int64, personaID string) (model.PersonaResolution, error)
	SetTemperature(ctx context.Context, userID int64, t float64) error
	ClearHistory(ctx context.Context, userID int64) error
}

type PaymentService interface {
	HandleSuccessfulPayment(ctx context.Context, n usecase.PaymentNotification) (usecase.PaymentResult, error)
	PreCheckout(ctx context.Context, invoiceToken string) usecase.PreCheckoutDecision
}
