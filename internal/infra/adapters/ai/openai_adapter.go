package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.LLMClient = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Chat Completions API or any compatible gateway.
type OpenAIAdapter struct {
	client       openai.Client
	defaultModel string
	maxOut       int
}

// NewOpenAIAdapter builds a client; an empty baseURL targets api.openai.com.
func NewOpenAIAdapter(apiKey, baseURL, defaultModel string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
		maxOut:       maxOut,
	}, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, modelName string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelOrDefault(modelName, o.defaultModel)),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(temperature),
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("openai chat: %w", err)
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("openai: no choice content")
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
