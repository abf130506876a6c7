package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/config"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

var _ adapter.Notifier = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter is the outbound side of the bot. Users are addressed
// by their private chat, whose id equals the user id.
type RealTelegramBotAdapter struct {
	bot           *tgbotapi.BotAPI
	providerToken string
	log           zerolog.Logger
}

func NewRealTelegramBotAdapter(cfg config.BotConfig, providerToken string, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	bot.Debug = cfg.Debug

	compLog := logger.With().Str("component", "telegram").Logger()
	compLog.Info().Str("bot", bot.Self.UserName).Msg("authorized")
	return &RealTelegramBotAdapter{bot: bot, providerToken: providerToken, log: compLog}, nil
}

// API exposes the client for the update loop.
func (r *RealTelegramBotAdapter) API() *tgbotapi.BotAPI { return r.bot }

func (r *RealTelegramBotAdapter) SendText(ctx context.Context, userID int64, text string) (int, error) {
	return r.send(ctx, "text", tgbotapi.NewMessage(userID, text))
}

func (r *RealTelegramBotAdapter) SendOptions(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	msg := tgbotapi.NewMessage(userID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = keyboard(rows)
	}
	return r.send(ctx, "options", msg)
}

func (r *RealTelegramBotAdapter) EditText(ctx context.Context, userID int64, messageID int, text string, rows [][]adapter.InlineButton) error {
	var edit tgbotapi.EditMessageTextConfig
	if len(rows) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(userID, messageID, text, keyboard(rows))
	} else {
		edit = tgbotapi.NewEditMessageText(userID, messageID, text)
	}
	_, err := r.send(ctx, "edit", edit)
	return err
}

func (r *RealTelegramBotAdapter) DeleteMessage(ctx context.Context, userID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Request(tgbotapi.NewDeleteMessage(userID, messageID))
	metrics.IncNotification("delete", err)
	return err
}

func (r *RealTelegramBotAdapter) SendInvoice(ctx context.Context, userID int64, inv adapter.Invoice) (int, error) {
	cfg := tgbotapi.NewInvoice(userID, inv.Title, inv.Description, inv.Token, r.providerToken, "", inv.Currency,
		[]tgbotapi.LabeledPrice{{Label: inv.Label, Amount: int(inv.Amount)}})
	// the API rejects a null tip list
	cfg.SuggestedTipAmounts = []int{}
	return r.send(ctx, "invoice", cfg)
}

func (r *RealTelegramBotAdapter) send(ctx context.Context, kind string, c tgbotapi.Chattable) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := r.bot.Send(c)
	metrics.IncNotification(kind, err)
	if err != nil {
		return 0, fmt.Errorf("telegram send %s: %w", kind, err)
	}
	return msg.MessageID, nil
}
