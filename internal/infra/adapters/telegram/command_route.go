package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (b *Bot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    b.handleStartCommand,
		"help":     b.handleHelpCommand,
		"personas": b.handlePersonasCommand,
		"book":     b.handleBookCommand,
		"sessions": b.handleSessionsCommand,
		"end":      b.handleEndCommand,
		"clear":    b.handleClearCommand,
		"temp":     b.handleTempCommand,

		"sweep": b.adminOnly(b.handleSweepCommand),
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) error {
	if fn, ok := b.commandRoutes()[m.Command()]; ok {
		return fn(ctx, m)
	}
	return b.handleHelpCommand(ctx, m)
}

func (b *Bot) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, m *tgbotapi.Message) error {
		if _, isAdmin := b.admins[m.From.ID]; !isAdmin {
			_, err := b.out.SendText(ctx, m.From.ID, b.tr.T("err_unauthorized"))
			return err
		}
		return next(ctx, m)
	}
}

func (b *Bot) handleStartCommand(ctx context.Context, m *tgbotapi.Message) error {
	w := b.facade.HandleStart(ctx, m.From.ID)
	text := b.tr.T("welcome", w.Persona.Name)
	if w.Live {
		text = b.tr.T("welcome_live", w.Persona.Name)
	}
	_, err := b.out.SendOptions(ctx, m.From.ID, text, b.mainMenu(w.Live))
	return err
}

func (b *Bot) handleHelpCommand(ctx context.Context, m *tgbotapi.Message) error {
	_, err := b.out.SendText(ctx, m.From.ID, b.tr.T("help"))
	return err
}

func (b *Bot) handlePersonasCommand(ctx context.Context, m *tgbotapi.Message) error {
	text, rows := b.personaList(b.facade.Personas(ctx))
	_, err := b.out.SendOptions(ctx, m.From.ID, text, rows)
	return err
}

// handleBookCommand accepts an optional persona id: /book anna
func (b *Bot) handleBookCommand(ctx context.Context, m *tgbotapi.Message) error {
	menu, err := b.facade.BookingOptions(ctx, m.From.ID, strings.TrimSpace(m.CommandArguments()))
	if err != nil {
		return b.sendError(ctx, m.From.ID, err)
	}
	text, rows := b.slotMenu(menu)
	_, err = b.out.SendOptions(ctx, m.From.ID, text, rows)
	return err
}

func (b *Bot) handleSessionsCommand(ctx context.Context, m *tgbotapi.Message) error {
	text, rows := b.statusView(b.facade.Status(ctx, m.From.ID))
	_, err := b.out.SendOptions(ctx, m.From.ID, text, rows)
	return err
}

func (b *Bot) handleEndCommand(ctx context.Context, m *tgbotapi.Message) error {
	return b.endSession(ctx, m.From.ID)
}

func (b *Bot) handleClearCommand(ctx context.Context, m *tgbotapi.Message) error {
	return b.clearHistory(ctx, m.From.ID)
}

// handleTempCommand sets the temperature from its argument (/temp 0.7) or
// shows the choices.
func (b *Bot) handleTempCommand(ctx context.Context, m *tgbotapi.Message) error {
	arg := strings.TrimSpace(m.CommandArguments())
	if arg == "" {
		text, rows := b.temperatureMenu(b.facade.Status(ctx, m.From.ID).Temperature)
		_, err := b.out.SendOptions(ctx, m.From.ID, text, rows)
		return err
	}
	t, err := strconv.ParseFloat(strings.ReplaceAll(arg, ",", "."), 64)
	if err != nil {
		_, err = b.out.SendText(ctx, m.From.ID, b.tr.T("err_invalid"))
		return err
	}
	return b.setTemperature(ctx, m.From.ID, t)
}

func (b *Bot) handleSweepCommand(ctx context.Context, m *tgbotapi.Message) error {
	rep, err := b.facade.RunSweep(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("manual sweep finished with errors")
	}
	_, serr := b.out.SendText(ctx, m.From.ID,
		b.tr.T("sweep_done", rep.Expired, rep.Scanned, rep.Activated, rep.Ended, rep.Failed))
	return serr
}
