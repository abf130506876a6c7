// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	Expired   int64
	Scanned   int
	Activated int
	Ended     int
	Completed int
	Failed    int
}

type SessionUseCase interface {
	// Sweep purges expired holds, starts due scheduled sessions and ends
	// elapsed ones. Failures on one user do not stop the pass.
	Sweep(ctx context.Context) (SweepReport, error)
	// EndSession closes the caller's live session early.
	EndSession(ctx context.Context, userID int64) (*model.UserSession, error)
	// CancelBooking cancels the booking and drops a session it funded.
	CancelBooking(ctx context.Context, userID int64, bookingID string) (*model.Booking, error)
}

type sessionUC struct {
	states   StateUseCase
	bookings BookingUseCase
	catalog  CatalogUseCase
	notifier adapter.Notifier
	text     adapter.Phrasebook
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSessionUseCase(states StateUseCase, bookings BookingUseCase, catalog CatalogUseCase, notifier adapter.Notifier, text adapter.Phrasebook, logger *zerolog.Logger) *sessionUC {
	return &sessionUC{
		states:   states,
		bookings: bookings,
		catalog:  catalog,
		notifier: notifier,
		text:     text,
		log:      logging.Component(logger, "session"),
		now:      time.Now,
	}
}

func (u *sessionUC) Sweep(ctx context.Context) (SweepReport, error) {
	defer logging.TraceDuration(u.log, "SessionUC.Sweep")()
	var (
		rep     SweepReport
		userErr []error
	)

	expired, expErr := u.bookings.ExpireStale(ctx)
	if expErr != nil {
		logging.ErrEvent(u.log.Error(), expErr).Msg("expire stale bookings")
	} else if expired > 0 {
		rep.Expired = expired
		u.log.Info().Int64("count", expired).Msg("expired unpaid bookings removed")
	}

	states, err := u.states.ListAll(ctx)
	if err != nil {
		return rep, errors.Join(expErr, fmt.Errorf("list sessions: %w", err))
	}

	for _, st := range states {
		if ctx.Err() != nil {
			return rep, errors.Join(expErr, ctx.Err())
		}
		rep.Scanned++
		sess := st.CurrentSession
		if sess == nil {
			continue
		}
		now := u.now().UTC()
		switch {
		case sess.DueToStart(now):
			sess.Activate()
			if err := u.states.Save(ctx, st); err != nil {
				rep.Failed++
				userErr = append(userErr, fmt.Errorf("activate session of user %d: %w", st.UserID, err))
				continue
			}
			rep.Activated++
			metrics.IncSessionTransition("activated")
			u.log.Info().Int64("user_id", st.UserID).Str("booking_id", sess.BookingID).Msg("scheduled session started")
			u.notify(ctx, st.UserID, u.startedText(ctx, sess, now))

		case sess.DueToEnd(now):
			sess.End(now)
			if err := u.states.Save(ctx, st); err != nil {
				rep.Failed++
				userErr = append(userErr, fmt.Errorf("end session of user %d: %w", st.UserID, err))
				continue
			}
			rep.Ended++
			metrics.IncSessionTransition("ended")
			if completeFunding(ctx, u.bookings, u.log, st.UserID, sess) {
				rep.Completed++
			}
			u.notify(ctx, st.UserID, u.text.T("notify_session_ended"))
		}
	}
	return rep, errors.Join(append([]error{expErr}, userErr...)...)
}

// completeFunding marks the booking behind sess completed. Sessions without a
// recorded booking fall back to the latest paid booking for the persona.
func completeFunding(ctx context.Context, bookings BookingUseCase, log *zerolog.Logger, userID int64, sess *model.UserSession) bool {
	bookingID := sess.BookingID
	if bookingID == "" {
		b, err := bookings.FindLatestPaid(ctx, userID, sess.PersonaID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn().Int64("user_id", userID).Str("persona", sess.PersonaID).Msg("ended session has no paid booking")
			} else {
				logging.ErrEvent(log.Error(), err).Int64("user_id", userID).Msg("find funding booking")
			}
			return false
		}
		bookingID = b.ID
	}
	if err := bookings.MarkCompleted(ctx, bookingID); err != nil {
		logging.ErrEvent(log.Error(), err).Str("booking_id", bookingID).Msg("complete booking")
		return false
	}
	return true
}

func (u *sessionUC) EndSession(ctx context.Context, userID int64) (*model.UserSession, error) {
	now := u.now().UTC()
	st, err := u.states.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess, ok := st.ActiveSession(now)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	sess.End(now)
	if err := u.states.Save(ctx, st); err != nil {
		return nil, err
	}
	metrics.IncSessionTransition("ended_by_user")
	completeFunding(ctx, u.bookings, u.log, userID, sess)
	return sess, nil
}

func (u *sessionUC) CancelBooking(ctx context.Context, userID int64, bookingID string) (*model.Booking, error) {
	b, err := u.bookings.Cancel(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsPaid {
		return b, nil
	}
	st, err := u.states.Fetch(ctx, userID)
	if err != nil {
		logging.ErrEvent(u.log.Warn(), err).Str("booking_id", bookingID).Msg("cancelled booking; session not checked")
		return b, nil
	}
	if st.CurrentSession != nil && st.CurrentSession.BookingID == bookingID {
		st.ReplaceSession(nil)
		if err := u.states.Save(ctx, st); err != nil {
			logging.ErrEvent(u.log.Error(), err).Str("booking_id", bookingID).Msg("drop cancelled session")
		} else {
			metrics.IncSessionTransition("cancelled")
		}
	}
	return b, nil
}

func (u *sessionUC) startedText(ctx context.Context, s *model.UserSession, now time.Time) string {
	p := u.catalog.Resolve(ctx, s.PersonaID).Persona
	text := u.text.T("notify_session_started", p.Name, int(s.Remaining(now).Round(time.Minute)/time.Minute))
	if p.Greeting != "" {
		text += "\n\n" + p.Greeting
	}
	return text
}

func (u *sessionUC) notify(ctx context.Context, userID int64, text string) {
	if _, err := u.notifier.SendText(ctx, userID, text); err != nil {
		u.log.Warn().Err(err).Int64("user_id", userID).Msg("notification not delivered")
	}
}
