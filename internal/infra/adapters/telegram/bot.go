package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/application"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/i18n"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
	red "github.com/ObraztsovOleg/consultant-bot/internal/infra/redis"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/worker"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

// botAPI is the part of tgbotapi.BotAPI the update loop uses.
type botAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RateLimiter admits inbound updates per key. Errors fail open.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// retryReporter is implemented by limiters that know when a key frees up.
type retryReporter interface {
	RetryAfter(ctx context.Context, key string) (time.Duration, error)
}

type BotOptions struct {
	// Limiter may be nil to disable inbound rate limiting.
	Limiter     RateLimiter
	Workers     int
	AdminIDs    []int64
	PollTimeout int
	HoldMinutes int
	Currency    string
}

// Bot is the inbound side: a long-polling loop whose updates run on a worker
// pool keyed by user, so one user's updates are handled in arrival order.
type Bot struct {
	api     botAPI
	out     adapter.Notifier
	facade  *application.BotFacade
	tr      *i18n.Translator
	limiter RateLimiter
	pool    *worker.Pool
	admins  map[int64]struct{}
	opts    BotOptions
	log     zerolog.Logger
}

func NewBot(api botAPI, out adapter.Notifier, facade *application.BotFacade, tr *i18n.Translator, opts BotOptions, logger *zerolog.Logger) (*Bot, error) {
	if api == nil || out == nil {
		return nil, errors.New("telegram client is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if tr == nil {
		return nil, errors.New("translator is nil")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30
	}
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:     api,
		out:     out,
		facade:  facade,
		tr:      tr,
		limiter: opts.Limiter,
		pool:    worker.NewPool(opts.Workers, logger),
		admins:  admins,
		opts:    opts,
		log:     logger.With().Str("component", "telegram_bot").Logger(),
	}, nil
}

// StartPolling blocks until ctx is cancelled or the update stream closes.
func (b *Bot) StartPolling(ctx context.Context) error {
	b.registerCommands()
	b.pool.Start(ctx)
	defer b.pool.Stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info().Int("poll_timeout", u.Timeout).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return errors.New("telegram update stream closed")
			}
			metrics.IncUpdate(updateKind(up))
			userID := updateUserID(up)
			err := b.pool.Submit(ctx, userID, func(ctx context.Context) error {
				return b.handleUpdate(logging.WithUserID(ctx, userID), up)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("update dropped")
			}
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, up tgbotapi.Update) error {
	// Payment events are never rate limited.
	switch {
	case up.PreCheckoutQuery != nil:
		return b.answerPreCheckout(ctx, up.PreCheckoutQuery)
	case up.Message != nil && up.Message.SuccessfulPayment != nil:
		return b.handlePayment(ctx, up.Message)
	}

	userID := updateUserID(up)
	if userID == 0 {
		return nil
	}
	if !b.allow(ctx, userID) {
		metrics.IncRateLimited()
		if up.CallbackQuery != nil {
			b.request(tgbotapi.NewCallback(up.CallbackQuery.ID, ""))
		}
		_, err := b.out.SendText(ctx, userID, b.limitedText(ctx, userID))
		return err
	}

	switch {
	case up.CallbackQuery != nil:
		return b.handleQuery(ctx, up.CallbackQuery)
	case up.Message != nil && up.Message.IsCommand():
		return b.handleCommand(ctx, up.Message)
	case up.Message != nil && up.Message.Text != "":
		return b.handleText(ctx, up.Message)
	}
	return nil
}

func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.limiter == nil {
		return true
	}
	ok, err := b.limiter.Allow(ctx, red.UserUpdateKey(userID))
	if err != nil {
		b.log.Debug().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

// limitedText names the wait in whole seconds when the limiter can tell it.
func (b *Bot) limitedText(ctx context.Context, userID int64) string {
	rr, ok := b.limiter.(retryReporter)
	if !ok {
		return b.tr.T("rate_limited")
	}
	wait, err := rr.RetryAfter(ctx, red.UserUpdateKey(userID))
	if err != nil || wait <= 0 {
		return b.tr.T("rate_limited")
	}
	return b.tr.T("rate_limited_wait", int((wait+time.Second-1)/time.Second))
}

func (b *Bot) handleText(ctx context.Context, m *tgbotapi.Message) error {
	userID := m.From.ID
	b.request(tgbotapi.NewChatAction(m.Chat.ID, tgbotapi.ChatTyping))

	reply, err := b.facade.HandleText(ctx, userID, m.Text)
	if err != nil {
		return b.sendError(ctx, userID, err)
	}
	if _, err := b.out.SendText(ctx, userID, reply.Text); err != nil {
		return err
	}
	if reply.Expired {
		_, err = b.out.SendOptions(ctx, userID, b.tr.T("session_expired"), b.bookRow())
	}
	return err
}

func (b *Bot) answerPreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	d := b.facade.PreCheckout(ctx, q.InvoicePayload)
	cfg := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: d.OK}
	if !d.OK {
		cfg.ErrorMessage = b.tr.T(preCheckoutKey(d.Reason))
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

func (b *Bot) handlePayment(ctx context.Context, m *tgbotapi.Message) error {
	sp := m.SuccessfulPayment
	res, err := b.facade.SuccessfulPayment(ctx, usecase.PaymentNotification{
		InvoiceToken:     sp.InvoicePayload,
		UserID:           m.From.ID,
		Amount:           int64(sp.TotalAmount),
		Currency:         sp.Currency,
		ProviderChargeID: sp.TelegramPaymentChargeID,
	})
	if err != nil {
		// money was taken without a booking to attach it to
		b.log.Error().Err(err).Int64("user_id", m.From.ID).Str("charge_id", sp.TelegramPaymentChargeID).
			Str("provider_charge_id", sp.ProviderPaymentChargeID).Msg("unreconciled payment")
		_, serr := b.out.SendText(ctx, m.From.ID, b.tr.T("err_generic"))
		return serr
	}
	b.log.Info().Str("status", string(res.Status)).Bool("repaired", res.Repaired).Int64("user_id", m.From.ID).Msg("payment handled")
	return nil
}

// sendError maps err to a short text. Unexpected errors are logged, never shown.
func (b *Bot) sendError(ctx context.Context, userID int64, err error) error {
	key := application.ErrorKey(err)
	if key == "err_generic" || key == "err_timeout" {
		logging.ErrEvent(b.log.Error(), err).Int64("user_id", userID).Msg("request failed")
	}
	var rows [][]adapter.InlineButton
	if errors.Is(err, domain.ErrNoActiveSession) {
		rows = b.bookRow()
	}
	_, serr := b.out.SendOptions(ctx, userID, b.tr.T(key), rows)
	return serr
}

// request fires a call whose result does not matter to the user.
func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.log.Debug().Err(err).Msg("telegram request")
	}
}

func (b *Bot) registerCommands() {
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: "Main menu"},
		{Command: "personas", Description: "Choose a consultant"},
		{Command: "book", Description: "Book a session"},
		{Command: "sessions", Description: "Your session and bookings"},
		{Command: "end", Description: "End the running session"},
		{Command: "clear", Description: "Clear conversation history"},
		{Command: "temp", Description: "Response temperature"},
		{Command: "help", Description: "Help"},
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		b.log.Warn().Err(err).Msg("failed to set menu commands")
	}
}

func updateUserID(up tgbotapi.Update) int64 {
	switch {
	case up.Message != nil && up.Message.From != nil:
		return up.Message.From.ID
	case up.CallbackQuery != nil && up.CallbackQuery.From != nil:
		return up.CallbackQuery.From.ID
	case up.PreCheckoutQuery != nil && up.PreCheckoutQuery.From != nil:
		return up.PreCheckoutQuery.From.ID
	}
	return 0
}

func updateKind(up tgbotapi.Update) string {
	switch {
	case up.PreCheckoutQuery != nil:
		return "pre_checkout"
	case up.CallbackQuery != nil:
		return "callback"
	case up.Message == nil:
		return "other"
	case up.Message.SuccessfulPayment != nil:
		return "payment"
	case up.Message.IsCommand():
		return "command"
	default:
		return "message"
	}
}

func preCheckoutKey(reason string) string {
	switch reason {
	case usecase.ReasonAlreadyPaid:
		return "pc_already_paid"
	case usecase.ReasonNotFound:
		return "pc_not_found"
	case usecase.ReasonExpired:
		return "pc_expired"
	case usecase.ReasonCancelled:
		return "pc_cancelled"
	default:
		return "pc_internal"
	}
}
