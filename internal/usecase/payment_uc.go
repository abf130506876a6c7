// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/cache"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentStatus string

const (
	PaymentPaid             PaymentStatus = "paid"
	PaymentAlreadyProcessed PaymentStatus = "already_processed"
	// PaymentPaidStateFailed means the booking is paid but the session could
	// not be stored. A redelivery of the same notification repairs it.
	PaymentPaidStateFailed PaymentStatus = "paid_state_failed"
)

// PaymentNotification is a provider confirmation. Amount is in minor units.
type PaymentNotification struct {
	InvoiceToken     string
	UserID           int64
	Amount           int64
	Currency         string
	ProviderChargeID string
}

type PaymentResult struct {
	Status  PaymentStatus
	Booking *model.Booking
	Session *model.UserSession
	// Repaired is set when a redelivery re-created a missing session.
	Repaired bool
}

type PreCheckoutDecision struct {
	OK     bool
	Reason string
}

const (
	ReasonAlreadyPaid = "already paid"
	ReasonNotFound    = "reservation not found"
	ReasonExpired     = "reservation expired"
	ReasonCancelled   = "reservation cancelled"
	ReasonInternal    = "internal error"
)

// confirmWindow is how long a sent payment confirmation suppresses another
// one for the same booking.
const confirmWindow = 10 * time.Minute

type PaymentUseCase interface {
	// HandleSuccessfulPayment reconciles a confirmation. Safe to call repeatedly
	// for the same token.
	HandleSuccessfulPayment(ctx context.Context, n PaymentNotification) (PaymentResult, error)
	PreCheckout(ctx context.Context, invoiceToken string) PreCheckoutDecision
}

// PaymentOptions describe how booking prices map to provider amounts.
type PaymentOptions struct {
	Currency   string
	MinorUnits int64
}

type paymentUC struct {
	bookings BookingUseCase
	states   StateUseCase
	catalog  CatalogUseCase
	notifier adapter.Notifier
	text     adapter.Phrasebook
	opts     PaymentOptions
	log      *zerolog.Logger
	now      func() time.Time

	confirmMu sync.Mutex
	confirmed *cache.TTLCache[string, struct{}]
}

func NewPaymentUseCase(bookings BookingUseCase, states StateUseCase, catalog CatalogUseCase, notifier adapter.Notifier, text adapter.Phrasebook, opts PaymentOptions, logger *zerolog.Logger) *paymentUC {
	if opts.MinorUnits <= 0 {
		opts.MinorUnits = 100
	}
	u := &paymentUC{
		bookings: bookings,
		states:   states,
		catalog:  catalog,
		notifier: notifier,
		text:     text,
		opts:     opts,
		log:      logging.Component(logger, "payment"),
		now:      time.Now,
	}
	u.confirmed = cache.NewTTLCache[string, struct{}](confirmWindow,
		cache.WithClock[string, struct{}](func() time.Time { return u.now() }))
	return u
}

func (u *paymentUC) HandleSuccessfulPayment(ctx context.Context, n PaymentNotification) (PaymentResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.HandleSuccessfulPayment")()
	log := u.log.With().Str("invoice_token", n.InvoiceToken).Int64("user_id", n.UserID).Logger()

	b, err := u.bookings.GetByInvoiceToken(ctx, n.InvoiceToken)
	if err != nil {
		metrics.IncPayment(domain.Kind(err))
		logging.ErrEvent(log.Error(), err).Str("charge_id", n.ProviderChargeID).Msg("payment for unknown reservation")
		return PaymentResult{}, err
	}
	if n.UserID != 0 && n.UserID != b.UserID {
		log.Warn().Int64("booking_user_id", b.UserID).Msg("payer differs from booking owner")
	}
	u.checkAmount(&log, b, n)

	now := u.now().UTC()
	if b.IsPaid {
		return u.alreadyPaid(ctx, &log, b, now), nil
	}

	res, err := u.bookings.MarkPaid(ctx, b.ID, now)
	if err != nil {
		metrics.IncPayment(domain.Kind(err))
		logging.ErrEvent(log.Error(), err).Str("booking_id", b.ID).Msg("mark paid")
		return PaymentResult{}, err
	}
	if res == MarkPaidAlreadyPaid {
		// a concurrent delivery won; reload to see its paid_at
		if fresh, err := u.bookings.Get(ctx, b.ID); err == nil {
			b = fresh
		} else {
			b.MarkPaid(now)
		}
		return u.alreadyPaid(ctx, &log, b, now), nil
	}

	b.MarkPaid(now)
	metrics.IncPayment(string(PaymentPaid))
	metrics.AddPaymentRevenue(u.opts.Currency, n.Amount)

	sess := model.NewSessionFromBooking(b, now)
	// strict read: a defaulted state must not overwrite the stored row
	st, err := u.states.Fetch(ctx, b.UserID)
	if err == nil {
		st.ReplaceSession(sess)
		err = u.states.Save(ctx, st)
	}
	if err != nil {
		metrics.IncPayment(string(PaymentPaidStateFailed))
		logging.ErrEvent(log.Error(), err).Str("booking_id", b.ID).Msg("booking paid but session not stored")
		u.notify(ctx, b.UserID, u.text.T("notify_paid_state_failed"))
		return PaymentResult{Status: PaymentPaidStateFailed, Booking: b}, nil
	}

	log.Info().Str("booking_id", b.ID).Time("session_start", sess.SessionStart).Time("paid_until", sess.PaidUntil).
		Bool("active", sess.IsActive).Msg("payment reconciled")

	if b.PaymentMessageRef != nil {
		if err := u.notifier.DeleteMessage(ctx, b.UserID, *b.PaymentMessageRef); err != nil {
			log.Debug().Err(err).Msg("could not delete invoice message")
		}
	}
	u.confirm(ctx, b, sess)
	return PaymentResult{Status: PaymentPaid, Booking: b, Session: sess}, nil
}

// alreadyPaid re-derives the session of a paid booking if an earlier delivery
// failed to store it. A newer live session is never replaced.
func (u *paymentUC) alreadyPaid(ctx context.Context, log *zerolog.Logger, b *model.Booking, now time.Time) PaymentResult {
	metrics.IncPayment(string(PaymentAlreadyProcessed))
	out := PaymentResult{Status: PaymentAlreadyProcessed, Booking: b}
	if b.IsCompleted || b.IsCancelled {
		return out
	}

	st, err := u.states.Fetch(ctx, b.UserID)
	if err != nil {
		logging.ErrEvent(log.Warn(), err).Str("booking_id", b.ID).Msg("cannot verify session of paid booking")
		return out
	}
	if cur := st.CurrentSession; cur != nil {
		if cur.BookingID == b.ID {
			out.Session = cur
			return out
		}
		if !cur.Ended() && now.Before(cur.PaidUntil) {
			return out
		}
	}

	paidAt := now
	if b.PaidAt != nil {
		paidAt = *b.PaidAt
	}
	sess := model.NewSessionFromBooking(b, paidAt)
	if !now.Before(sess.PaidUntil) {
		return out
	}
	if sess.DueToStart(now) {
		sess.Activate()
	}
	st.ReplaceSession(sess)
	if err := u.states.Save(ctx, st); err != nil {
		logging.ErrEvent(log.Error(), err).Str("booking_id", b.ID).Msg("session repair failed")
		out.Status = PaymentPaidStateFailed
		return out
	}
	log.Info().Str("booking_id", b.ID).Msg("session re-derived from paid booking")
	u.confirm(ctx, b, sess)
	out.Session = sess
	out.Repaired = true
	return out
}

func (u *paymentUC) checkAmount(log *zerolog.Logger, b *model.Booking, n PaymentNotification) {
	want := adapter.ToMinorUnits(b.TotalPrice, u.opts.MinorUnits)
	currencyOK := n.Currency == "" || u.opts.Currency == "" || strings.EqualFold(n.Currency, u.opts.Currency)
	if n.Amount == want && currencyOK {
		return
	}
	metrics.IncPayment("amount_mismatch")
	log.Warn().Str("booking_id", b.ID).Int64("expected", want).Int64("got", n.Amount).
		Str("currency", n.Currency).Msg("payment amount mismatch")
}

func (u *paymentUC) PreCheckout(ctx context.Context, invoiceToken string) PreCheckoutDecision {
	d := u.preCheckout(ctx, invoiceToken)
	metrics.IncPreCheckout(d.OK)
	if !d.OK {
		u.log.Info().Str("invoice_token", invoiceToken).Str("reason", d.Reason).Msg("pre-checkout rejected")
	}
	return d
}

func (u *paymentUC) preCheckout(ctx context.Context, token string) PreCheckoutDecision {
	b, err := u.bookings.GetByInvoiceToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return PreCheckoutDecision{Reason: ReasonNotFound}
	}
	if err != nil {
		logging.ErrEvent(u.log.Error(), err).Msg("pre-checkout lookup")
		return PreCheckoutDecision{Reason: ReasonInternal}
	}
	switch b.Status(u.now().UTC()) {
	case model.BookingPending:
		return PreCheckoutDecision{OK: true}
	case model.BookingExpired:
		return PreCheckoutDecision{Reason: ReasonExpired}
	case model.BookingCancelled:
		return PreCheckoutDecision{Reason: ReasonCancelled}
	default:
		return PreCheckoutDecision{Reason: ReasonAlreadyPaid}
	}
}

func (u *paymentUC) confirmation(ctx context.Context, b *model.Booking, s *model.UserSession) string {
	name := u.catalog.Resolve(ctx, b.PersonaID).Persona.Name
	if s.IsActive {
		return u.text.T("notify_paid_active", b.DurationMinutes, name, s.PaidUntil.UTC().Format("15:04"))
	}
	return u.text.T("notify_paid_scheduled", b.DurationMinutes, name, s.SessionStart.UTC().Format("Jan 2 15:04"))
}

// confirm sends the payment confirmation once per booking. Two deliveries of
// one payment racing through the paid and repair paths confirm only once.
func (u *paymentUC) confirm(ctx context.Context, b *model.Booking, s *model.UserSession) {
	if !u.claimConfirmation(b.ID) {
		u.log.Debug().Str("booking_id", b.ID).Msg("payment already confirmed to user")
		return
	}
	u.notify(ctx, b.UserID, u.confirmation(ctx, b, s))
}

func (u *paymentUC) claimConfirmation(bookingID string) bool {
	u.confirmMu.Lock()
	defer u.confirmMu.Unlock()
	if _, ok := u.confirmed.Get(bookingID); ok {
		return false
	}
	if u.confirmed.Len() > 1024 {
		u.confirmed.EvictExpired()
	}
	u.confirmed.Set(bookingID, struct{}{})
	return true
}

func (u *paymentUC) notify(ctx context.Context, userID int64, text string) {
	if _, err := u.notifier.SendText(ctx, userID, text); err != nil {
		u.log.Warn().Err(err).Int64("user_id", userID).Msg("notification not delivered")
	}
}
