package ai

import (
	"context"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

// Compile-time check
var (
	_ adapter.LLMClient = (*limitedAI)(nil)
	_ adapter.LLMClient = (*timeoutAI)(nil)
)

type limitedAI struct {
	inner adapter.LLMClient
	sem   chan struct{}
}

// NewLimitedAI caps in-flight calls to maxConcurrent; waiting callers give up
// when their context ends.
func NewLimitedAI(inner adapter.LLMClient, maxConcurrent int) adapter.LLMClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, model, messages, temperature)
}

type timeoutAI struct {
	inner adapter.LLMClient
	d     time.Duration
}

// NewTimeoutAI bounds every call by d.
func NewTimeoutAI(inner adapter.LLMClient, d time.Duration) adapter.LLMClient {
	if d <= 0 {
		return inner
	}
	return &timeoutAI{inner: inner, d: d}
}

func (t *timeoutAI) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Chat(ctx, model, messages, temperature)
}
