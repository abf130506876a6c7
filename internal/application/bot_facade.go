package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

// Deps are the use cases the facade composes. All are required.
type Deps struct {
	States   StateReader
	Catalog  CatalogService
	Bookings BookingService
	Sessions SessionService
	Chat     ChatService
	Payments PaymentService
	Notifier adapter.Notifier
}

// Options control invoice rendering.
type Options struct {
	Currency   string
	MinorUnits int64
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// BotFacade maps inbound transport events to use cases. It returns views,
// the transport renders them.
type BotFacade struct {
	Deps
	opts Options
	log  *zerolog.Logger
}

func NewBotFacade(d Deps, opts Options, logger *zerolog.Logger) *BotFacade {
	if opts.MinorUnits <= 0 {
		opts.MinorUnits = 100
	}
	if opts.Currency == "" {
		opts.Currency = "RUB"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BotFacade{Deps: d, opts: opts, log: logging.Component(logger, "facade")}
}

// Welcome is the /start view.
type Welcome struct {
	Persona  model.Persona
	Personas []model.Persona
	Live     bool
}

func (f *BotFacade) HandleStart(ctx context.Context, userID int64) Welcome {
	st := f.States.Get(ctx, userID)
	_, live := st.ActiveSession(f.opts.Now())
	return Welcome{
		Persona:  f.Catalog.Resolve(ctx, st.PersonaID).Persona,
		Personas: f.Catalog.List(ctx),
		Live:     live,
	}
}

func (f *BotFacade) Personas(ctx context.Context) []model.Persona {
	return f.Catalog.List(ctx)
}

// SelectPersona returns the persona now in effect, which stays the booked one
// while a session is live.
func (f *BotFacade) SelectPersona(ctx context.Context, userID int64, personaID string) (model.Persona, error) {
	r, err := f.Chat.SelectPersona(ctx, userID, personaID)
	if err != nil {
		return model.Persona{}, err
	}
	return r.Persona, nil
}

type SlotOffer struct {
	Slot  model.TimeSlot
	Price float64
}

// BookingMenu lists what a persona can be booked for.
type BookingMenu struct {
	Persona model.Persona
	Slots   []SlotOffer
	Starts  []time.Time
}

// BookingOptions builds the slot menu. An empty personaID means the user's
// current persona.
func (f *BotFacade) BookingOptions(ctx context.Context, userID int64, personaID string) (BookingMenu, error) {
	if personaID == "" {
		personaID = f.States.Get(ctx, userID).PersonaID
	}
	r := f.Catalog.Resolve(ctx, personaID)
	if r.IsFallback() {
		return BookingMenu{}, fmt.Errorf("%w: persona %q", domain.ErrNotFound, personaID)
	}
	m := BookingMenu{Persona: r.Persona, Starts: f.Catalog.UpcomingStarts(f.opts.Now())}
	for _, s := range f.Catalog.TimeSlots(ctx) {
		m.Slots = append(m.Slots, SlotOffer{Slot: s, Price: f.Catalog.Quote(r.Persona, s)})
	}
	return m, nil
}

// BookRequest is a user's choice from the booking menu. A nil Start books an
// immediate session.
type BookRequest struct {
	UserID    int64
	PersonaID string
	SlotID    int
	Start     *time.Time
}

// Book reserves the slot and sends the invoice. A hold whose invoice could
// not be delivered is released again.
func (f *BotFacade) Book(ctx context.Context, req BookRequest) (*model.Booking, error) {
	defer logging.TraceDuration(f.log, "BotFacade.Book")()

	r := f.Catalog.Resolve(ctx, req.PersonaID)
	if r.IsFallback() {
		return nil, fmt.Errorf("%w: persona %q", domain.ErrNotFound, req.PersonaID)
	}
	slot, err := f.Catalog.TimeSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}

	b, err := f.Bookings.Create(ctx, usecase.CreateBookingInput{
		UserID:          req.UserID,
		PersonaID:       r.Persona.ID,
		DurationMinutes: slot.DurationMinutes,
		TotalPrice:      f.Catalog.Quote(r.Persona, slot),
		ScheduledStart:  req.Start,
	})
	if err != nil {
		return nil, err
	}

	msgID, err := f.Notifier.SendInvoice(ctx, req.UserID, f.invoice(r.Persona, b))
	if err != nil {
		if _, cerr := f.Bookings.Cancel(ctx, req.UserID, b.ID); cerr != nil {
			f.log.Warn().Err(cerr).Str("booking_id", b.ID).Msg("release undelivered hold")
		}
		return nil, fmt.Errorf("send invoice: %w", err)
	}
	if err := f.Bookings.AttachPaymentMessage(ctx, b.ID, msgID); err != nil {
		f.log.Warn().Err(err).Str("booking_id", b.ID).Msg("attach invoice message")
	}
	return b, nil
}

func (f *BotFacade) invoice(p model.Persona, b *model.Booking) adapter.Invoice {
	desc := fmt.Sprintf("%d-minute session, starts right after payment", b.DurationMinutes)
	if b.ScheduledStart != nil {
		desc = fmt.Sprintf("%d-minute session on %s UTC", b.DurationMinutes, b.ScheduledStart.UTC().Format("Jan 2 15:04"))
	}
	return adapter.Invoice{
		Title:       "Consultation with " + p.Name,
		Description: desc,
		Token:       b.InvoiceToken,
		Amount:      adapter.ToMinorUnits(b.TotalPrice, f.opts.MinorUnits),
		Currency:    f.opts.Currency,
		Label:       fmt.Sprintf("%s, %d min", p.Name, b.DurationMinutes),
	}
}

// Status is the /sessions view.
type Status struct {
	Persona     model.Persona
	Session     *model.UserSession
	Live        bool
	Remaining   time.Duration
	Temperature float64
	Upcoming    []*model.Booking
	// Names maps persona ids to display names.
	Names map[string]string
}

// Status does not fail on a store outage; the booking list is left empty.
func (f *BotFacade) Status(ctx context.Context, userID int64) Status {
	now := f.opts.Now()
	st := f.States.Get(ctx, userID)
	out := Status{
		Persona:     f.Catalog.Resolve(ctx, st.PersonaID).Persona,
		Session:     st.CurrentSession,
		Temperature: st.Temperature(),
	}
	if s, ok := st.ActiveSession(now); ok {
		out.Live = true
		out.Remaining = s.Remaining(now)
	}
	upcoming, err := f.Bookings.ListUpcoming(ctx, userID)
	if err != nil {
		f.log.Warn().Err(err).Int64("user_id", userID).Msg("list upcoming bookings")
	}
	out.Upcoming = upcoming
	out.Names = make(map[string]string)
	for _, p := range f.Catalog.List(ctx) {
		out.Names[p.ID] = p.Name
	}
	return out
}

func (f *BotFacade) Cancel(ctx context.Context, userID int64, bookingID string) (*model.Booking, error) {
	return f.Sessions.CancelBooking(ctx, userID, bookingID)
}

func (f *BotFacade) EndSession(ctx context.Context, userID int64) (*model.UserSession, error) {
	return f.Sessions.EndSession(ctx, userID)
}

// RunSweep triggers an out-of-band sweeper pass.
func (f *BotFacade) RunSweep(ctx context.Context) (usecase.SweepReport, error) {
	return f.Sessions.Sweep(ctx)
}

func (f *BotFacade) ClearHistory(ctx context.Context, userID int64) error {
	return f.Chat.ClearHistory(ctx, userID)
}

func (f *BotFacade) SetTemperature(ctx context.Context, userID int64, t float64) error {
	return f.Chat.SetTemperature(ctx, userID, t)
}

func (f *BotFacade) HandleText(ctx context.Context, userID int64, text string) (usecase.ChatReply, error) {
	return f.Chat.HandleMessage(ctx, userID, strings.TrimSpace(text))
}

func (f *BotFacade) PreCheckout(ctx context.Context, invoiceToken string) usecase.PreCheckoutDecision {
	return f.Payments.PreCheckout(ctx, invoiceToken)
}

func (f *BotFacade) SuccessfulPayment(ctx context.Context, n usecase.PaymentNotification) (usecase.PaymentResult, error) {
	return f.Payments.HandleSuccessfulPayment(ctx, n)
}

// ErrorKey maps a failure to the translation key of its user-facing text.
func ErrorKey(err error) string {
	switch {
	case errors.Is(err, domain.ErrSlotTaken):
		return "err_slot_taken"
	case errors.Is(err, domain.ErrNoActiveSession):
		return "err_no_session"
	case errors.Is(err, domain.ErrCannotCancel):
		return "err_cannot_cancel"
	case errors.Is(err, domain.ErrAlreadyPaid):
		return "err_already_paid"
	case errors.Is(err, domain.ErrNotFound):
		return "err_not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "err_invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "err_timeout"
	default:
		return "err_generic"
	}
}
