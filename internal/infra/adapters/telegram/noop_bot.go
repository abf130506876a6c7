package telegram

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.Notifier for local runs without a bot
// token. It logs messages instead of sending them.
type NoopBotAdapter struct {
	log    zerolog.Logger
	nextID atomic.Int64
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: logger.With().Str("component", "noop-telegram").Logger()}
}

func (b *NoopBotAdapter) id() int { return int(b.nextID.Add(1)) }

func (b *NoopBotAdapter) SendText(ctx context.Context, userID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.log.Info().Int64("user_id", userID).Str("text", text).Msg("send text")
	return b.id(), nil
}

func (b *NoopBotAdapter) SendOptions(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.log.Info().Int64("user_id", userID).Str("text", text).Interface("buttons", rows).Msg("send options")
	return b.id(), nil
}

func (b *NoopBotAdapter) EditText(ctx context.Context, userID int64, messageID int, text string, rows [][]adapter.InlineButton) error {
	b.log.Info().Int64("user_id", userID).Int("message_id", messageID).Str("text", text).Msg("edit text")
	return ctx.Err()
}

func (b *NoopBotAdapter) DeleteMessage(ctx context.Context, userID int64, messageID int) error {
	b.log.Info().Int64("user_id", userID).Int("message_id", messageID).Msg("delete message")
	return ctx.Err()
}

func (b *NoopBotAdapter) SendInvoice(ctx context.Context, userID int64, inv adapter.Invoice) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.log.Info().Int64("user_id", userID).Str("token", inv.Token).Int64("amount", inv.Amount).
		Str("currency", inv.Currency).Msg("send invoice")
	return b.id(), nil
}
