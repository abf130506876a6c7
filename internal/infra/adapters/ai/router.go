package ai

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

var _ adapter.LLMClient = (*Router)(nil)

// ErrNoProvider is returned when no provider is configured for a model.
var ErrNoProvider = errors.New("no llm provider configured")

const (
	providerOpenAI = "openai"
	providerGemini = "gemini"
)

type RouterOptions struct {
	// Failover sends a failed call once more to another provider, which
	// answers with its own default model.
	Failover bool
}

// Router sends each persona model to the provider serving it: an explicit
// model map first, then the model name prefix, then the default provider.
type Router struct {
	fallback  string
	providers map[string]adapter.LLMClient
	models    map[string]string
	opts      RouterOptions
}

func NewRouter(defaultProvider string, providers map[string]adapter.LLMClient, models map[string]string, opts RouterOptions) *Router {
	norm := make(map[string]string, len(models))
	for m, p := range models {
		norm[m] = strings.ToLower(p)
	}
	return &Router{
		fallback:  strings.ToLower(defaultProvider),
		providers: providers,
		models:    norm,
		opts:      opts,
	}
}

// ProviderFor names the provider a model routes to, configured or not.
func (r *Router) ProviderFor(model string) string {
	if p, ok := r.models[model]; ok {
		return p
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return providerGemini
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return providerOpenAI
	}
	return r.fallback
}

func (r *Router) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	name, c := r.route(model)
	if c == nil {
		return "", adapter.Usage{}, ErrNoProvider
	}
	reply, u, err := r.call(ctx, name, c, model, messages, temperature)
	if err == nil || !r.opts.Failover || ctx.Err() != nil {
		return reply, u, err
	}
	for _, alt := range r.alternatives(name) {
		// the model name belongs to the first provider, so let alt pick its own
		if reply, u, altErr := r.call(ctx, alt, r.providers[alt], "", messages, temperature); altErr == nil {
			return reply, u, nil
		}
	}
	return "", u, err
}

func (r *Router) route(model string) (string, adapter.LLMClient) {
	for _, name := range []string{r.ProviderFor(model), r.fallback} {
		if c := r.providers[name]; c != nil {
			return name, c
		}
	}
	return "", nil
}

func (r *Router) alternatives(except string) []string {
	var out []string
	for name, c := range r.providers {
		if name != except && c != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Router) call(ctx context.Context, provider string, c adapter.LLMClient, model string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	start := time.Now()
	reply, u, err := c.Chat(ctx, model, messages, temperature)
	metrics.ObserveLLMCall(provider, model, u.PromptTokens, u.CompletionTokens, int(time.Since(start).Milliseconds()), err == nil)
	return reply, u, err
}
