//go:build !integration

package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
)

// paidSession books and pays through the use cases.
func (e *testEnv) paidSession(t *testing.T, in CreateBookingInput) *model.Booking {
	t.Helper()
	b := e.mustBook(t, in)
	res, err := e.paymentUC.HandleSuccessfulPayment(context.Background(), paymentFor(b))
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, res.Status)
	return b
}

func TestSessionUseCase_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("should remove an unpaid booking once its hold has passed", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.clock.Advance(5*time.Minute + time.Second)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, int64(1), rep.Expired)
		_, err = e.bookingUC.GetByInvoiceToken(ctx, b.InvoiceToken)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should activate a scheduled session only after its start", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		start := testStart.Add(10 * time.Minute)
		e.paidSession(t, scheduled(42, "t1", start))
		require.False(t, e.stateUC.Get(ctx, 42).CurrentSession.IsActive)

		// --- Act ---
		e.clock.Advance(9 * time.Minute)
		early, err := e.sessionUC.Sweep(ctx)
		require.NoError(t, err)
		stillInactive := !e.stateUC.Get(ctx, 42).CurrentSession.IsActive

		e.clock.Advance(time.Minute)
		onTime, err := e.sessionUC.Sweep(ctx)
		require.NoError(t, err)

		// --- Assert ---
		assert.Zero(t, early.Activated)
		assert.True(t, stillInactive)
		assert.Equal(t, 1, onTime.Activated)
		assert.True(t, e.stateUC.Get(ctx, 42).CurrentSession.IsActive)
		assert.True(t, e.states.stored(42).CurrentSession.IsActive)
		texts := e.notifier.texts()
		assert.Contains(t, texts[len(texts)-1], "has started")
	})

	t.Run("should end an elapsed session and complete its booking", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.paidSession(t, immediate(42, "t1"))
		e.clock.Advance(30*time.Minute + time.Second)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Ended)
		assert.Equal(t, 1, rep.Completed)
		sess := e.stateUC.Get(ctx, 42).CurrentSession
		assert.False(t, sess.IsActive)
		assert.True(t, sess.Ended())
		got, _ := e.bookingUC.Get(ctx, b.ID)
		assert.Equal(t, model.BookingCompleted, got.Status(e.clock.Now()))
	})

	t.Run("should leave an ended session alone on later ticks", func(t *testing.T) {
		e := newTestEnv(testStart)
		e.paidSession(t, immediate(42, "t1"))
		e.clock.Advance(31 * time.Minute)
		_, _ = e.sessionUC.Sweep(ctx)
		e.clock.Advance(time.Minute)

		rep, err := e.sessionUC.Sweep(ctx)

		require.NoError(t, err)
		assert.Zero(t, rep.Ended)
		assert.Zero(t, rep.Activated)
	})

	t.Run("should end a scheduled session whose whole window was missed", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.paidSession(t, scheduled(42, "t1", testStart.Add(10*time.Minute)))
		e.clock.Advance(time.Hour)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		require.NoError(t, err)
		assert.Zero(t, rep.Activated)
		assert.Equal(t, 1, rep.Ended)
		assert.False(t, e.stateUC.Get(ctx, 42).CurrentSession.IsActive)
		got, _ := e.bookingUC.Get(ctx, b.ID)
		assert.True(t, got.IsCompleted)
	})

	t.Run("should fall back to the latest paid booking for legacy sessions", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.paidSession(t, immediate(42, "t1"))
		st := e.states.stored(42)
		st.CurrentSession.BookingID = ""
		e.states.put(st)
		e.clock.Advance(time.Hour)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Completed)
		got, _ := e.bookingUC.Get(ctx, b.ID)
		assert.True(t, got.IsCompleted)
	})

	t.Run("should keep sweeping sessions when expiring bookings fails", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		e.paidSession(t, immediate(42, "t1"))
		e.bookings.DeleteExpiredFunc = func(ctx context.Context, qx any, now time.Time) (int64, error) {
			return 0, domain.ErrStore
		}
		e.clock.Advance(time.Hour)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.Equal(t, 1, rep.Ended)
	})

	t.Run("should count a failed write and continue with other users", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		e.paidSession(t, immediate(1, "t1"))
		e.paidSession(t, immediate(2, "t2"))
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error {
			if s.UserID == 1 {
				return domain.ErrStore
			}
			return nil
		}
		e.clock.Advance(time.Hour)

		// --- Act ---
		rep, err := e.sessionUC.Sweep(ctx)

		// --- Assert ---
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.Contains(t, err.Error(), "user 1")
		assert.NotContains(t, err.Error(), "user 2")
		assert.Equal(t, 2, rep.Scanned)
		assert.Equal(t, 1, rep.Failed)
		assert.Equal(t, 1, rep.Ended)
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		e := newTestEnv(testStart)
		e.paidSession(t, immediate(1, "t1"))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := e.sessionUC.Sweep(cctx)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSessionUseCase_EndSession(t *testing.T) {
	ctx := context.Background()

	t.Run("should end a live session and complete its booking", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.paidSession(t, immediate(42, "t1"))
		e.clock.Advance(10 * time.Minute)

		sess, err := e.sessionUC.EndSession(ctx, 42)

		require.NoError(t, err)
		assert.True(t, sess.Ended())
		got, _ := e.bookingUC.Get(ctx, b.ID)
		assert.True(t, got.IsCompleted)
		_, live := e.stateUC.Get(ctx, 42).ActiveSession(e.clock.Now())
		assert.False(t, live)
	})

	t.Run("should report no active session", func(t *testing.T) {
		e := newTestEnv(testStart)
		_, err := e.sessionUC.EndSession(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})
}

func TestSessionUseCase_CancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("should drop the session funded by a cancelled booking", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.paidSession(t, scheduled(42, "t1", testStart.Add(2*time.Hour)))

		// --- Act ---
		got, err := e.sessionUC.CancelBooking(ctx, 42, b.ID)

		// --- Assert ---
		require.NoError(t, err)
		assert.True(t, got.IsCancelled)
		assert.Nil(t, e.stateUC.Get(ctx, 42).CurrentSession)
	})

	t.Run("should leave the session untouched when cancelling a pending hold", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		e.paidSession(t, immediate(42, "t1"))
		pending := e.mustBook(t, scheduled(42, "t2", testStart.Add(2*time.Hour)))

		// --- Act ---
		_, err := e.sessionUC.CancelBooking(ctx, 42, pending.ID)

		// --- Assert ---
		require.NoError(t, err)
		assert.NotNil(t, e.stateUC.Get(ctx, 42).CurrentSession)
	})

	t.Run("should reject cancelling a running session's booking", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.paidSession(t, immediate(42, "t1"))
		_, err := e.sessionUC.CancelBooking(ctx, 42, b.ID)
		assert.ErrorIs(t, err, domain.ErrCannotCancel)
	})
}
