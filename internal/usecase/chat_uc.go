// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// maxSaveAttempts bounds the trim-and-retry loop on oversized state.
const maxSaveAttempts = 16

type ChatReply struct {
	Text      string
	Remaining time.Duration
	// Expired is set when the paid window ran out during this turn.
	Expired bool
}

type ChatUseCase interface {
	HandleMessage(ctx context.Context, userID int64, text string) (ChatReply, error)
	SelectPersona(ctx context.Context, userID int64, personaID string) (model.PersonaResolution, error)
	SetTemperature(ctx context.Context, userID int64, t float64) error
	ClearHistory(ctx context.Context, userID int64) error
}

type chatUC struct {
	states    StateUseCase
	bookings  BookingUseCase
	catalog   CatalogUseCase
	llm       adapter.LLMClient
	tokens    adapter.TokenCounter
	maxTokens int
	log       *zerolog.Logger
	now       func() time.Time
}

func NewChatUseCase(states StateUseCase, bookings BookingUseCase, catalog CatalogUseCase, llm adapter.LLMClient, tokens adapter.TokenCounter, maxContextTokens int, logger *zerolog.Logger) *chatUC {
	return &chatUC{
		states:    states,
		bookings:  bookings,
		catalog:   catalog,
		llm:       llm,
		tokens:    tokens,
		maxTokens: maxContextTokens,
		log:       logging.Component(logger, "chat"),
		now:       time.Now,
	}
}

func (c *chatUC) HandleMessage(ctx context.Context, userID int64, text string) (ChatReply, error) {
	defer logging.TraceDuration(c.log, "ChatUC.HandleMessage")()

	text = strings.TrimSpace(text)
	if text == "" {
		return ChatReply{}, domain.ErrInvalidArgument
	}
	st := c.states.Get(ctx, userID)
	sess, ok := st.ActiveSession(c.now())
	if !ok {
		return ChatReply{}, domain.ErrNoActiveSession
	}

	persona := c.catalog.Resolve(ctx, sess.PersonaID).Persona
	msgs := c.buildContext(persona.Prompt, sess.History, text)
	reply, usage, err := c.llm.Chat(ctx, persona.Model, msgs, st.Temperature())
	if err != nil {
		logging.ErrEvent(c.log.Error(), err).Int64("user_id", userID).Str("model", persona.Model).Msg("llm call failed")
		return ChatReply{}, fmt.Errorf("chat reply: %w", err)
	}
	c.log.Debug().Int64("user_id", userID).Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).Msg("llm reply")

	at := c.now().UTC()
	sess.AppendExchange(text, reply, at)
	st.ConversationHistory = append(st.ConversationHistory,
		model.ChatMessage{Role: model.RoleUser, Content: text, At: at},
		model.ChatMessage{Role: model.RoleAssistant, Content: reply, At: at},
	)
	out := ChatReply{Text: reply, Remaining: sess.Remaining(at)}
	if !at.Before(sess.PaidUntil) {
		sess.End(at)
		out.Expired = true
	}

	if err := c.saveTrimming(ctx, st); err != nil {
		return ChatReply{}, err
	}
	if out.Expired {
		metrics.IncSessionTransition("ended")
		completeFunding(ctx, c.bookings, c.log, userID, sess)
	}
	return out, nil
}

// buildContext prepends the persona prompt and keeps the newest history that
// fits the token budget.
func (c *chatUC) buildContext(prompt string, history []model.ChatMessage, text string) []adapter.Message {
	budget := c.maxTokens
	if budget > 0 {
		budget -= c.tokens.Count(prompt) + c.tokens.Count(text)
	}

	keep := len(history)
	if c.maxTokens > 0 {
		used := 0
		keep = 0
		for i := len(history) - 1; i >= 0; i-- {
			used += c.tokens.Count(history[i].Content)
			if used > budget {
				break
			}
			keep++
		}
		if keep < len(history) {
			metrics.IncContextTrimmed()
		}
	}

	msgs := make([]adapter.Message, 0, keep+2)
	if prompt != "" {
		msgs = append(msgs, adapter.Message{Role: model.RoleSystem, Content: prompt})
	}
	for _, m := range history[len(history)-keep:] {
		msgs = append(msgs, adapter.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, adapter.Message{Role: model.RoleUser, Content: text})
}

// saveTrimming drops the oldest messages of whichever field is over its cap.
func (c *chatUC) saveTrimming(ctx context.Context, st *model.UserState) error {
	var err error
	for i := 0; i < maxSaveAttempts; i++ {
		err = c.states.Save(ctx, st)
		var tooLarge *domain.FieldTooLargeError
		if !errors.As(err, &tooLarge) {
			return err
		}
		switch tooLarge.Field {
		case FieldHistory:
			st.ConversationHistory, _ = model.TrimToBytes(st.ConversationHistory, tooLarge.Limit)
		case FieldSession:
			if st.CurrentSession == nil || len(st.CurrentSession.History) == 0 {
				return err
			}
			drop := len(st.CurrentSession.History) / 4
			if drop < 2 {
				drop = 2
			}
			st.CurrentSession.History = model.TrimOldest(st.CurrentSession.History, drop)
		default:
			return err
		}
		c.log.Debug().Int64("user_id", st.UserID).Str("field", tooLarge.Field).Int("size", tooLarge.Size).Msg("trimmed oversized history")
	}
	return err
}

func (c *chatUC) SelectPersona(ctx context.Context, userID int64, personaID string) (model.PersonaResolution, error) {
	r := c.catalog.Resolve(ctx, personaID)
	if r.IsFallback() {
		return r, fmt.Errorf("%w: persona %q", domain.ErrNotFound, personaID)
	}
	st, err := c.states.Fetch(ctx, userID)
	if err != nil {
		return r, err
	}
	if s, live := st.ActiveSession(c.now()); live && s.PersonaID != personaID {
		// the booked consultant stays in charge until the session ends
		return c.catalog.Resolve(ctx, s.PersonaID), nil
	}
	st.PersonaID = r.Persona.ID
	return r, c.states.Save(ctx, st)
}

func (c *chatUC) SetTemperature(ctx context.Context, userID int64, t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("%w: temperature must be within 0..1", domain.ErrInvalidArgument)
	}
	st, err := c.states.Fetch(ctx, userID)
	if err != nil {
		return err
	}
	st.SetTemperature(t)
	return c.states.Save(ctx, st)
}

func (c *chatUC) ClearHistory(ctx context.Context, userID int64) error {
	st, err := c.states.Fetch(ctx, userID)
	if err != nil {
		return err
	}
	st.ClearHistory()
	return c.states.Save(ctx, st)
}
