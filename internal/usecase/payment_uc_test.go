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

func paymentFor(b *model.Booking) PaymentNotification {
	return PaymentNotification{InvoiceToken: b.InvoiceToken, UserID: b.UserID, Amount: 300, Currency: "RUB", ProviderChargeID: "ch-1"}
}

func TestPaymentUseCase_HandleSuccessfulPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("should activate an immediate session and report already paid on redelivery", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.clock.Advance(time.Minute)
		paidAt := e.clock.Now()

		// --- Act ---
		first, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
		require.NoError(t, err)
		afterFirst := e.stateUC.Get(ctx, 42).CurrentSession

		e.clock.Advance(time.Minute)
		second, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
		require.NoError(t, err)
		afterSecond := e.stateUC.Get(ctx, 42).CurrentSession

		// --- Assert ---
		assert.Equal(t, PaymentPaid, first.Status)
		require.NotNil(t, afterFirst)
		assert.True(t, afterFirst.IsActive)
		assert.Equal(t, paidAt.Add(30*time.Minute), afterFirst.PaidUntil)
		assert.Equal(t, b.ID, afterFirst.BookingID)

		assert.Equal(t, PaymentAlreadyProcessed, second.Status)
		assert.False(t, second.Repaired)
		assert.Equal(t, afterFirst, afterSecond, "session must be unchanged by a redelivery")
		assert.Len(t, e.notifier.texts(), 1, "only the first delivery confirms")
	})

	t.Run("should keep a future scheduled session inactive until its start", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		start := testStart.Add(10 * time.Minute)
		b := e.mustBook(t, scheduled(42, "t1", start))

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		sess := e.stateUC.Get(ctx, 42).CurrentSession
		require.NotNil(t, sess)
		assert.Equal(t, PaymentPaid, res.Status)
		assert.False(t, sess.IsActive)
		assert.Equal(t, start, sess.SessionStart)
		assert.Equal(t, start.Add(30*time.Minute), sess.PaidUntil)
	})

	t.Run("should replace a previous session", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		old := e.mustBook(t, immediate(42, "t1"))
		_, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(old))
		require.NoError(t, err)
		next := e.mustBook(t, immediate(42, "t2"))

		// --- Act ---
		_, err = e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(next))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, next.ID, e.stateUC.Get(ctx, 42).CurrentSession.BookingID)
	})

	t.Run("should delete the invoice message after payment", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		require.NoError(t, e.bookingUC.AttachPaymentMessage(ctx, b.ID, 77))

		_, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		require.NoError(t, err)
		assert.Equal(t, []int{77}, e.notifier.Deleted)
	})

	t.Run("should return not found for an unknown token", func(t *testing.T) {
		e := newTestEnv(testStart)
		_, err := e.paymentUC.HandleSuccessfulPayment(ctx, PaymentNotification{InvoiceToken: "ghost", UserID: 42})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should treat a lost race as already processed", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		// the other delivery flips the flag and stores the session first
		e.bookings.MarkPaidIfPendingFunc = func(ctx context.Context, qx any, id string, paidAt time.Time) (bool, error) {
			e.bookings.MarkPaidIfPendingFunc = nil
			_, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
			return false, err
		}

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, PaymentAlreadyProcessed, res.Status)
		assert.False(t, res.Repaired)
		assert.Equal(t, b.ID, e.stateUC.Get(ctx, 42).CurrentSession.BookingID)
	})

	t.Run("should report a failed session write without rolling back payment", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error { return domain.ErrStore }

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, PaymentPaidStateFailed, res.Status)
		got, _ := e.bookingUC.Get(ctx, b.ID)
		assert.True(t, got.IsPaid)
		assert.Nil(t, e.states.stored(42))
		assert.Len(t, e.notifier.texts(), 1, "the user is warned")
	})

	t.Run("should keep stored history and preferences when the state read fails", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		st := model.NewUserState(42, "maxim")
		st.ConversationHistory = []model.ChatMessage{{Role: model.RoleUser, Content: "earlier", At: testStart}}
		st.SetTemperature(0.9)
		e.states.put(st)
		e.states.GetFunc = func(ctx context.Context, userID int64) (*model.UserState, error) { return nil, domain.ErrStore }

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, PaymentPaidStateFailed, res.Status)
		kept := e.states.stored(42)
		require.Len(t, kept.ConversationHistory, 1)
		assert.Equal(t, "earlier", kept.ConversationHistory[0].Content)
		assert.Equal(t, 0.9, kept.Temperature())
		assert.Equal(t, "maxim", kept.PersonaID)
		assert.Nil(t, kept.CurrentSession)

		// the store is back: a redelivery repairs the session on top of the kept state
		e.states.GetFunc = nil
		again, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
		require.NoError(t, err)
		assert.True(t, again.Repaired)
		kept = e.states.stored(42)
		assert.Len(t, kept.ConversationHistory, 1)
		assert.Equal(t, b.ID, kept.CurrentSession.BookingID)
	})

	t.Run("should confirm once when a redelivery repairs the session before the first write lands", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		var second PaymentResult
		nested := false
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error {
			if !nested {
				nested = true
				second, _ = e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
			}
			return nil
		}

		// --- Act ---
		first, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, first.Status)
		assert.True(t, second.Repaired)
		assert.Equal(t, b.ID, e.states.stored(42).CurrentSession.BookingID)
		assert.Len(t, e.notifier.texts(), 1, "the user is confirmed once")
	})

	t.Run("should re-derive the session on redelivery after a failed write", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error { return domain.ErrStore }
		_, _ = e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
		e.states.UpsertFunc = nil
		e.clock.Advance(2 * time.Minute)

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, PaymentAlreadyProcessed, res.Status)
		assert.True(t, res.Repaired)
		sess := e.states.stored(42).CurrentSession
		require.NotNil(t, sess)
		assert.True(t, sess.IsActive)
		assert.Equal(t, testStart.Add(30*time.Minute), sess.PaidUntil, "window counts from the original payment")
	})

	t.Run("should not repair once the paid window has elapsed", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error { return domain.ErrStore }
		_, _ = e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))
		e.states.UpsertFunc = nil
		e.clock.Advance(31 * time.Minute)

		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		require.NoError(t, err)
		assert.False(t, res.Repaired)
		assert.Nil(t, e.states.stored(42))
	})

	t.Run("should never replace a newer live session during repair", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		first := e.mustBook(t, immediate(42, "t1"))
		e.states.UpsertFunc = func(ctx context.Context, s *model.UserState) error { return domain.ErrStore }
		_, _ = e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(first))
		e.states.UpsertFunc = nil
		second := e.mustBook(t, immediate(42, "t2"))
		_, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(second))
		require.NoError(t, err)

		// --- Act ---
		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(first))

		// --- Assert ---
		require.NoError(t, err)
		assert.False(t, res.Repaired)
		assert.Equal(t, second.ID, e.states.stored(42).CurrentSession.BookingID)
	})

	t.Run("should accept a mismatched amount", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		n := paymentFor(b)
		n.Amount = 1

		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, n)

		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, res.Status)
	})

	t.Run("should pay a late confirmation whose hold expired but was not purged", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		e.clock.Advance(7 * time.Minute)

		res, err := e.paymentUC.HandleSuccessfulPayment(ctx, paymentFor(b))

		require.NoError(t, err)
		assert.Equal(t, PaymentPaid, res.Status)
	})
}

func TestPaymentUseCase_PreCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("should approve a pending booking", func(t *testing.T) {
		e := newTestEnv(testStart)
		b := e.mustBook(t, immediate(42, "t1"))
		assert.Equal(t, PreCheckoutDecision{OK: true}, e.paymentUC.PreCheckout(ctx, b.InvoiceToken))
	})

	t.Run("should reject unknown, paid and expired bookings", func(t *testing.T) {
		// --- Arrange ---
		e := newTestEnv(testStart)
		paid := e.mustBook(t, immediate(42, "t1"))
		_, _ = e.bookingUC.MarkPaid(ctx, paid.ID, testStart)
		expiring := e.mustBook(t, immediate(42, "t2"))

		// --- Act ---
		unknown := e.paymentUC.PreCheckout(ctx, "ghost")
		already := e.paymentUC.PreCheckout(ctx, paid.InvoiceToken)
		e.clock.Advance(5 * time.Minute)
		expired := e.paymentUC.PreCheckout(ctx, expiring.InvoiceToken)

		// --- Assert ---
		assert.Equal(t, PreCheckoutDecision{Reason: ReasonNotFound}, unknown)
		assert.Equal(t, PreCheckoutDecision{Reason: ReasonAlreadyPaid}, already)
		assert.Equal(t, PreCheckoutDecision{Reason: ReasonExpired}, expired)
	})
}
