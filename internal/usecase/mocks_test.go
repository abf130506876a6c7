//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/cache"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/i18n"
)

// -----------------------------
// Utilities
// -----------------------------

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// testClock is a settable time source shared by use cases and caches.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(clock *testClock, ttl time.Duration) *cache.TTLCache[int64, *model.UserState] {
	return cache.NewTTLCache[int64, *model.UserState](ttl, cache.WithClock[int64, *model.UserState](clock.Now))
}

// =============================
// Repositories
// =============================

// ---- MockUserStateRepo ----

type MockUserStateRepo struct {
	mu   sync.Mutex
	rows map[int64]*model.UserState
	Gets int

	GetFunc    func(ctx context.Context, userID int64) (*model.UserState, error)
	UpsertFunc func(ctx context.Context, s *model.UserState) error
	ListFunc   func(ctx context.Context) (repository.StateScan, error)
}

var _ repository.UserStateRepository = (*MockUserStateRepo)(nil)

func NewMockUserStateRepo() *MockUserStateRepo {
	return &MockUserStateRepo{rows: map[int64]*model.UserState{}}
}

func (m *MockUserStateRepo) Get(ctx context.Context, userID int64) (*model.UserState, error) {
	m.mu.Lock()
	m.Gets++
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MockUserStateRepo) Upsert(ctx context.Context, s *model.UserState) error {
	if m.UpsertFunc != nil {
		if err := m.UpsertFunc(ctx, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.UserID] = s.Clone()
	return nil
}

func (m *MockUserStateRepo) ListWithSession(ctx context.Context) (repository.StateScan, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out repository.StateScan
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if m.rows[id].CurrentSession != nil {
			out.States = append(out.States, m.rows[id].Clone())
		}
	}
	return out, nil
}

// put seeds the store directly, bypassing the use case.
func (m *MockUserStateRepo) put(s *model.UserState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.UserID] = s.Clone()
}

func (m *MockUserStateRepo) stored(userID int64) *model.UserState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[userID].Clone()
}

// ---- MockBookingRepo ----

// MockBookingRepo keeps bookings in memory with the same conditional update
// and slot uniqueness rules as the Postgres repository.
type MockBookingRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Booking

	CreateFunc            func(ctx context.Context, qx any, b *model.Booking) error
	MarkPaidIfPendingFunc func(ctx context.Context, qx any, id string, paidAt time.Time) (bool, error)
	DeleteExpiredFunc     func(ctx context.Context, qx any, now time.Time) (int64, error)
}

var _ repository.BookingRepository = (*MockBookingRepo)(nil)

func NewMockBookingRepo() *MockBookingRepo {
	return &MockBookingRepo{rows: map[string]*model.Booking{}}
}

func cloneBooking(b *model.Booking) *model.Booking {
	cp := *b
	return &cp
}

func (m *MockBookingRepo) Create(ctx context.Context, qx any, b *model.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, qx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.InvoiceToken == b.InvoiceToken {
			return domain.ErrAlreadyExists
		}
		if b.ScheduledStart != nil && o.ScheduledStart != nil && !o.IsCancelled &&
			o.PersonaID == b.PersonaID && o.ScheduledStart.Equal(*b.ScheduledStart) {
			return domain.ErrSlotTaken
		}
	}
	m.rows[b.ID] = cloneBooking(b)
	return nil
}

func (m *MockBookingRepo) PurgeExpiredSlot(ctx context.Context, qx any, personaID string, start, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.rows {
		if o.PersonaID == personaID && o.ScheduledStart != nil && o.ScheduledStart.Equal(start) &&
			o.Status(now) == model.BookingExpired {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *MockBookingRepo) GetByID(ctx context.Context, qx any, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (m *MockBookingRepo) GetByInvoiceToken(ctx context.Context, qx any, token string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.rows {
		if b.InvoiceToken == token {
			return cloneBooking(b), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockBookingRepo) FindLatestPaid(ctx context.Context, qx any, userID int64, personaID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Booking
	for _, b := range m.rows {
		if b.UserID != userID || b.PersonaID != personaID || !b.IsPaid || b.IsCompleted || b.IsCancelled {
			continue
		}
		if best == nil || b.PaidAt.After(*best.PaidAt) {
			best = b
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return cloneBooking(best), nil
}

func (m *MockBookingRepo) ListByUser(ctx context.Context, qx any, userID int64, f repository.BookingFilter, now time.Time) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.rows {
		if b.UserID != userID {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, s := range f.Statuses {
				match = match || b.Status(now) == s
			}
			if !match {
				continue
			}
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockBookingRepo) MarkPaidIfPending(ctx context.Context, qx any, id string, paidAt time.Time) (bool, error) {
	if m.MarkPaidIfPendingFunc != nil {
		return m.MarkPaidIfPendingFunc(ctx, qx, id, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsPaid || b.IsCancelled {
		return false, nil
	}
	b.MarkPaid(paidAt)
	return true, nil
}

func (m *MockBookingRepo) MarkCompleted(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || !b.IsPaid {
		return domain.ErrNotFound
	}
	b.IsCompleted = true
	return nil
}

func (m *MockBookingRepo) MarkCancelled(ctx context.Context, qx any, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || !b.IsPaid || b.IsCompleted || b.IsCancelled || !b.HasFutureSchedule(now) {
		return false, nil
	}
	b.IsCancelled = true
	return true, nil
}

func (m *MockBookingRepo) SetPaymentMessageRef(ctx context.Context, qx any, id string, ref int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentMessageRef = &ref
	return nil
}

func (m *MockBookingRepo) DeletePending(ctx context.Context, qx any, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.Status(now) != model.BookingPending {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *MockBookingRepo) DeleteExpiredUnpaid(ctx context.Context, qx any, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, qx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.rows {
		if !b.IsPaid && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *MockBookingRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---- MockCatalogRepo ----

type MockCatalogRepo struct {
	Prices     map[string]float64
	Slots      []model.TimeSlot
	Err        error
	PriceCalls int
}

var _ repository.CatalogRepository = (*MockCatalogRepo)(nil)

func (m *MockCatalogRepo) ListPrices(ctx context.Context) (map[string]float64, error) {
	m.PriceCalls++
	return m.Prices, m.Err
}

func (m *MockCatalogRepo) ListActiveTimeSlots(ctx context.Context) ([]model.TimeSlot, error) {
	return m.Slots, m.Err
}

func (m *MockCatalogRepo) GetTimeSlot(ctx context.Context, id int) (*model.TimeSlot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.Slots {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- MockNotifier ----

type sentMessage struct {
	UserID int64
	Text   string
}

type MockNotifier struct {
	mu       sync.Mutex
	Sent     []sentMessage
	Deleted  []int
	Invoices []adapter.Invoice

	SendTextFunc func(ctx context.Context, userID int64, text string) (int, error)
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) SendText(ctx context.Context, userID int64, text string) (int, error) {
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, userID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{UserID: userID, Text: text})
	return len(m.Sent), nil
}

func (m *MockNotifier) SendOptions(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	return m.SendText(ctx, userID, text)
}

func (m *MockNotifier) EditText(ctx context.Context, userID int64, messageID int, text string, rows [][]adapter.InlineButton) error {
	return nil
}

func (m *MockNotifier) DeleteMessage(ctx context.Context, userID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

func (m *MockNotifier) SendInvoice(ctx context.Context, userID int64, inv adapter.Invoice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices = append(m.Invoices, inv)
	return 100 + len(m.Invoices), nil
}

func (m *MockNotifier) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, s := range m.Sent {
		out[i] = s.Text
	}
	return out
}

// ---- MockLLM ----

type MockLLM struct {
	mu       sync.Mutex
	Calls    [][]adapter.Message
	Temps    []float64
	ChatFunc func(ctx context.Context, model string, msgs []adapter.Message, temperature float64) (string, adapter.Usage, error)
}

var _ adapter.LLMClient = (*MockLLM)(nil)

func (m *MockLLM) Chat(ctx context.Context, model string, msgs []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, msgs)
	m.Temps = append(m.Temps, temperature)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, msgs, temperature)
	}
	return "reply", adapter.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, nil
}

// wordCounter counts whitespace separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	n, in := 0, false
	for _, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if !space && !in {
			n++
		}
		in = !space
	}
	return n
}

// =============================
// Fixtures
// =============================

var testPersonas = []model.Persona{
	{ID: "anna", Name: "Anna", Model: "gpt-4o-mini", Prompt: "You are Anna.", Greeting: "Hi, I'm Anna.", PricePerMinute: 0.1},
	{ID: "maxim", Name: "Maxim", Model: "gemini-2.0-flash", Prompt: "You are Maxim.", PricePerMinute: 0.09},
}

var testLimits = StateLimits{HistoryMaxBytes: 5120, PrefsMaxBytes: 1024, SessionMaxBytes: 32768}

// testEnv wires every use case against in-memory adapters and one clock.
type testEnv struct {
	clock    *testClock
	states   *MockUserStateRepo
	bookings *MockBookingRepo
	notifier *MockNotifier
	llm      *MockLLM

	stateUC   *stateUC
	bookingUC *bookingUC
	catalogUC *catalogUC
	paymentUC *paymentUC
	sessionUC *sessionUC
	chatUC    *chatUC
}

// newTestText loads the embedded English phrasebook.
func newTestText() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return tr
}

func newTestEnv(start time.Time) *testEnv {
	log := newTestLogger()
	text := newTestText()
	e := &testEnv{
		clock:    newTestClock(start),
		states:   NewMockUserStateRepo(),
		bookings: NewMockBookingRepo(),
		notifier: &MockNotifier{},
		llm:      &MockLLM{},
	}
	e.stateUC = NewStateUseCase(e.states, newTestCache(e.clock, 300*time.Second), "anna", testLimits, log)
	e.stateUC.now = e.clock.Now
	e.bookingUC = NewBookingUseCase(e.bookings, &MockTxManager{}, 5*time.Minute, log)
	e.bookingUC.now = e.clock.Now
	e.catalogUC = NewCatalogUseCase(model.NewCatalog(testPersonas, "anna"), nil, time.Minute, 6, log)
	e.paymentUC = NewPaymentUseCase(e.bookingUC, e.stateUC, e.catalogUC, e.notifier, text, PaymentOptions{Currency: "RUB", MinorUnits: 100}, log)
	e.paymentUC.now = e.clock.Now
	e.sessionUC = NewSessionUseCase(e.stateUC, e.bookingUC, e.catalogUC, e.notifier, text, log)
	e.sessionUC.now = e.clock.Now
	e.chatUC = NewChatUseCase(e.stateUC, e.bookingUC, e.catalogUC, e.llm, wordCounter{}, 3000, log)
	e.chatUC.now = e.clock.Now
	return e
}

// mustBook creates a booking through the use case and fails the test on error.
func (e *testEnv) mustBook(t *testing.T, in CreateBookingInput) *model.Booking {
	t.Helper()
	b, err := e.bookingUC.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}
