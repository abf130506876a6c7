package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObraztsovOleg/consultant-bot/internal/application"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

const (
	cbMenu     = "cmd:menu"
	cbPersonas = "cmd:personas"
	cbBook     = "cmd:book"
	cbSessions = "cmd:sessions"
	cbEnd      = "cmd:end"
	cbClear    = "cmd:clear"
	cbTemp     = "cmd:temp"

	startNow = "now"
)

var temperatures = []float64{0, 0.3, 0.7, 1}

func keyboard(rows [][]adapter.InlineButton) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		out = append(out, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func slotData(personaID string, slotID int) string {
	return fmt.Sprintf("slot:%s:%d", personaID, slotID)
}

func startData(personaID string, slotID int, start *time.Time) string {
	when := startNow
	if start != nil {
		when = strconv.FormatInt(start.Unix(), 10)
	}
	return fmt.Sprintf("start:%s:%d:%s", personaID, slotID, when)
}

func parseSlotData(data string) (personaID string, slotID int, err error) {
	parts := strings.Split(strings.TrimPrefix(data, "slot:"), ":")
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("malformed slot data %q", data)
	}
	slotID, err = strconv.Atoi(parts[1])
	return parts[0], slotID, err
}

// parseStartData reverses startData. A nil start means right after payment.
func parseStartData(data string) (personaID string, slotID int, start *time.Time, err error) {
	parts := strings.Split(strings.TrimPrefix(data, "start:"), ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, nil, fmt.Errorf("malformed start data %q", data)
	}
	if slotID, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, nil, err
	}
	if parts[2] == startNow {
		return parts[0], slotID, nil, nil
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, nil, err
	}
	t := time.Unix(sec, 0).UTC()
	return parts[0], slotID, &t, nil
}

func (b *Bot) bookRow() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{{Text: b.tr.T("btn_book"), Data: cbBook}}}
}

func (b *Bot) menuRow() []adapter.InlineButton {
	return []adapter.InlineButton{{Text: b.tr.T("btn_menu"), Data: cbMenu}}
}

func (b *Bot) mainMenu(live bool) [][]adapter.InlineButton {
	rows := [][]adapter.InlineButton{
		{{Text: b.tr.T("btn_personas"), Data: cbPersonas}, {Text: b.tr.T("btn_book"), Data: cbBook}},
		{{Text: b.tr.T("btn_sessions"), Data: cbSessions}, {Text: b.tr.T("btn_clear"), Data: cbClear}},
	}
	if live {
		rows = append(rows, []adapter.InlineButton{{Text: b.tr.T("btn_end"), Data: cbEnd}})
	}
	return rows
}

func (b *Bot) personaList(personas []model.Persona) (string, [][]adapter.InlineButton) {
	var sb strings.Builder
	sb.WriteString(b.tr.T("personas_header"))
	rows := make([][]adapter.InlineButton, 0, len(personas)+1)
	for _, p := range personas {
		sb.WriteString("\n" + b.tr.T("persona_line", p.Name, p.Specialty, p.PricePerMinute, b.opts.Currency))
		rows = append(rows, []adapter.InlineButton{{Text: p.Name, Data: "persona:" + p.ID}})
	}
	return sb.String(), append(rows, b.menuRow())
}

func (b *Bot) slotMenu(m application.BookingMenu) (string, [][]adapter.InlineButton) {
	rows := make([][]adapter.InlineButton, 0, len(m.Slots)+1)
	for _, s := range m.Slots {
		label := b.tr.T("slot_button", s.Slot.DurationMinutes, s.Price, b.opts.Currency)
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: slotData(m.Persona.ID, s.Slot.ID)}})
	}
	return b.tr.T("slots_header", m.Persona.Name), append(rows, b.menuRow())
}

// startMenu offers an immediate start plus the upcoming whole hours, two per row.
func (b *Bot) startMenu(personaID string, slot model.TimeSlot, starts []time.Time) (string, [][]adapter.InlineButton) {
	rows := [][]adapter.InlineButton{{{Text: b.tr.T("btn_now"), Data: startData(personaID, slot.ID, nil)}}}
	var row []adapter.InlineButton
	for i := range starts {
		st := starts[i]
		row = append(row, adapter.InlineButton{Text: st.UTC().Format("Mon 15:04"), Data: startData(personaID, slot.ID, &st)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return b.tr.T("starts_header", slot.DurationMinutes), append(rows, b.menuRow())
}

func (b *Bot) statusView(s application.Status) (string, [][]adapter.InlineButton) {
	var sb strings.Builder
	sb.WriteString(b.tr.T("status_header", s.Persona.Name, s.Temperature) + "\n")
	switch {
	case s.Live:
		sb.WriteString(b.tr.T("status_live", int(s.Remaining.Round(time.Minute)/time.Minute)))
	case s.Session != nil && !s.Session.IsActive && !s.Session.Ended():
		sb.WriteString(b.tr.T("status_scheduled", s.Session.SessionStart.UTC().Format("Jan 2 15:04")))
	default:
		sb.WriteString(b.tr.T("status_none"))
	}

	sb.WriteString("\n\n")
	var rows [][]adapter.InlineButton
	if len(s.Upcoming) == 0 {
		sb.WriteString(b.tr.T("upcoming_none"))
	} else {
		sb.WriteString(b.tr.T("upcoming_header"))
	}
	for _, bk := range s.Upcoming {
		when := b.tr.T("upcoming_now")
		if bk.ScheduledStart != nil {
			when = bk.ScheduledStart.UTC().Format("Jan 2 15:04") + " UTC"
		}
		state := b.tr.T("state_pending")
		if bk.IsPaid {
			state = b.tr.T("state_paid")
		}
		name, ok := s.Names[bk.PersonaID]
		if !ok {
			name = bk.PersonaID
		}
		sb.WriteString("\n" + b.tr.T("upcoming_line", when, bk.DurationMinutes, name, state))
		if !bk.IsPaid || bk.ScheduledStart != nil {
			rows = append(rows, []adapter.InlineButton{{Text: b.tr.T("btn_cancel", when), Data: "cancel:" + bk.ID}})
		}
	}
	if s.Live {
		rows = append(rows, []adapter.InlineButton{{Text: b.tr.T("btn_end"), Data: cbEnd}})
	}
	return sb.String(), append(rows, b.menuRow())
}

func (b *Bot) temperatureMenu(current float64) (string, [][]adapter.InlineButton) {
	row := make([]adapter.InlineButton, 0, len(temperatures))
	for _, t := range temperatures {
		label := strconv.FormatFloat(t, 'f', 1, 64)
		if t == current {
			label = "• " + label
		}
		row = append(row, adapter.InlineButton{Text: label, Data: "temp:" + strconv.FormatFloat(t, 'f', -1, 64)})
	}
	return b.tr.T("temp_prompt", current), [][]adapter.InlineButton{row, b.menuRow()}
}
