package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObraztsovOleg/consultant-bot/internal/application"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

var errSlotGone = fmt.Errorf("%w: time slot", domain.ErrNotFound)

type cbHandler func(ctx context.Context, userID int64, messageID int, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Exact-match callbacks
func (b *Bot) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		cbMenu:     b.menuCBRoute,
		cbPersonas: b.personasCBRoute,
		cbBook:     b.bookCBRoute,
		cbSessions: b.sessionsCBRoute,
		cbEnd:      func(ctx context.Context, id int64, _ int, _ string) error { return b.endSession(ctx, id) },
		cbClear:    func(ctx context.Context, id int64, _ int, _ string) error { return b.clearHistory(ctx, id) },
		cbTemp:     b.tempMenuCBRoute,
	}
}

// Prefix-match callbacks
func (b *Bot) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "persona:", Fn: b.personaPrefixCBRoute},
		{Prefix: "book:", Fn: b.bookPrefixCBRoute},
		{Prefix: "slot:", Fn: b.slotPrefixCBRoute},
		{Prefix: "start:", Fn: b.startPrefixCBRoute},
		{Prefix: "cancel:", Fn: b.cancelPrefixCBRoute},
		{Prefix: "temp:", Fn: b.tempPrefixCBRoute},
	}
}

func (b *Bot) handleQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return errors.New("invalid callback query")
	}
	// stop the client spinner when we return
	defer b.request(tgbotapi.NewCallback(q.ID, ""))

	var messageID int
	if q.Message != nil {
		messageID = q.Message.MessageID
	}
	fn, ok := b.matchCallback(strings.TrimSpace(q.Data))
	if !ok {
		return errors.New("unknown callback data")
	}
	return fn(ctx, q.From.ID, messageID, strings.TrimSpace(q.Data))
}

func (b *Bot) matchCallback(data string) (cbHandler, bool) {
	if fn, ok := b.cbRoutes()[data]; ok {
		return fn, true
	}
	for _, pr := range b.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn, true
		}
	}
	return nil, false
}

// show replaces the menu message in place when there is one.
func (b *Bot) show(ctx context.Context, userID int64, messageID int, text string, rows [][]adapter.InlineButton) error {
	if messageID != 0 {
		if err := b.out.EditText(ctx, userID, messageID, text, rows); err == nil {
			return nil
		}
	}
	_, err := b.out.SendOptions(ctx, userID, text, rows)
	return err
}

func (b *Bot) menuCBRoute(ctx context.Context, id int64, msg int, _ string) error {
	w := b.facade.HandleStart(ctx, id)
	return b.show(ctx, id, msg, b.tr.T("menu_prompt"), b.mainMenu(w.Live))
}

func (b *Bot) personasCBRoute(ctx context.Context, id int64, msg int, _ string) error {
	text, rows := b.personaList(b.facade.Personas(ctx))
	return b.show(ctx, id, msg, text, rows)
}

func (b *Bot) bookCBRoute(ctx context.Context, id int64, msg int, _ string) error {
	return b.bookMenu(ctx, id, msg, "")
}

func (b *Bot) bookPrefixCBRoute(ctx context.Context, id int64, msg int, data string) error {
	return b.bookMenu(ctx, id, msg, strings.TrimPrefix(data, "book:"))
}

func (b *Bot) bookMenu(ctx context.Context, id int64, msg int, personaID string) error {
	menu, err := b.facade.BookingOptions(ctx, id, personaID)
	if err != nil {
		return b.sendError(ctx, id, err)
	}
	text, rows := b.slotMenu(menu)
	return b.show(ctx, id, msg, text, rows)
}

func (b *Bot) sessionsCBRoute(ctx context.Context, id int64, msg int, _ string) error {
	text, rows := b.statusView(b.facade.Status(ctx, id))
	return b.show(ctx, id, msg, text, rows)
}

func (b *Bot) tempMenuCBRoute(ctx context.Context, id int64, msg int, _ string) error {
	text, rows := b.temperatureMenu(b.facade.Status(ctx, id).Temperature)
	return b.show(ctx, id, msg, text, rows)
}

func (b *Bot) personaPrefixCBRoute(ctx context.Context, id int64, _ int, data string) error {
	want := strings.TrimPrefix(data, "persona:")
	p, err := b.facade.SelectPersona(ctx, id, want)
	if err != nil {
		return b.sendError(ctx, id, err)
	}
	text := b.tr.T("persona_selected", p.Name, p.Greeting)
	if p.ID != want {
		text = b.tr.T("persona_kept", p.Name)
	}
	_, err = b.out.SendOptions(ctx, id, text, [][]adapter.InlineButton{
		{{Text: b.tr.T("btn_book"), Data: "book:" + p.ID}},
		b.menuRow(),
	})
	return err
}

func (b *Bot) slotPrefixCBRoute(ctx context.Context, id int64, msg int, data string) error {
	personaID, slotID, err := parseSlotData(data)
	if err != nil {
		return err
	}
	menu, err := b.facade.BookingOptions(ctx, id, personaID)
	if err != nil {
		return b.sendError(ctx, id, err)
	}
	for _, s := range menu.Slots {
		if s.Slot.ID == slotID {
			text, rows := b.startMenu(personaID, s.Slot, menu.Starts)
			return b.show(ctx, id, msg, text, rows)
		}
	}
	return b.sendError(ctx, id, errSlotGone)
}

func (b *Bot) startPrefixCBRoute(ctx context.Context, id int64, msg int, data string) error {
	personaID, slotID, start, err := parseStartData(data)
	if err != nil {
		return err
	}
	if _, err := b.facade.Book(ctx, application.BookRequest{UserID: id, PersonaID: personaID, SlotID: slotID, Start: start}); err != nil {
		return b.sendError(ctx, id, err)
	}
	if msg != 0 {
		// the slot menu is spent once an invoice exists
		_ = b.out.DeleteMessage(ctx, id, msg)
	}
	if b.opts.HoldMinutes > 0 {
		_, err = b.out.SendText(ctx, id, b.tr.T("invoice_sent", b.opts.HoldMinutes))
	}
	return err
}

func (b *Bot) cancelPrefixCBRoute(ctx context.Context, id int64, msg int, data string) error {
	if _, err := b.facade.Cancel(ctx, id, strings.TrimPrefix(data, "cancel:")); err != nil {
		return b.sendError(ctx, id, err)
	}
	_, err := b.out.SendText(ctx, id, b.tr.T("cancelled"))
	return err
}

func (b *Bot) tempPrefixCBRoute(ctx context.Context, id int64, _ int, data string) error {
	t, err := strconv.ParseFloat(strings.TrimPrefix(data, "temp:"), 64)
	if err != nil {
		return err
	}
	return b.setTemperature(ctx, id, t)
}

// ---- actions shared by commands and callbacks ----

func (b *Bot) endSession(ctx context.Context, id int64) error {
	s, err := b.facade.EndSession(ctx, id)
	if err != nil {
		return b.sendError(ctx, id, err)
	}
	_, err = b.out.SendOptions(ctx, id, b.tr.T("session_ended", s.MessagesExchanged), b.bookRow())
	return err
}

func (b *Bot) clearHistory(ctx context.Context, id int64) error {
	if err := b.facade.ClearHistory(ctx, id); err != nil {
		return b.sendError(ctx, id, err)
	}
	_, err := b.out.SendText(ctx, id, b.tr.T("history_cleared"))
	return err
}

func (b *Bot) setTemperature(ctx context.Context, id int64, t float64) error {
	if err := b.facade.SetTemperature(ctx, id, t); err != nil {
		return b.sendError(ctx, id, err)
	}
	_, err := b.out.SendText(ctx, id, b.tr.T("temp_set", t))
	return err
}
