package ai

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

var _ adapter.LLMClient = (*NoopAIAdapter)(nil)

const noopLatency = 100 * time.Millisecond

// NoopAIAdapter answers without calling a provider, for local runs without
// API keys. It echoes the last user turn so a chat can be followed by hand.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger}
}

func (a *NoopAIAdapter) Chat(ctx context.Context, modelName string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	t := time.NewTimer(noopLatency)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			last = messages[i].Content
			break
		}
	}
	a.log.Debug().Str("model", modelName).Int("messages", len(messages)).Msg("noop llm call")

	reply := fmt.Sprintf("[%s] You said: %q", modelOrDefault(modelName, "noop"), last)
	in := 0
	for _, m := range messages {
		in += utf8.RuneCountInString(m.Content) / 4
	}
	out := utf8.RuneCountInString(reply) / 4
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}
