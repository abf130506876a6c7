package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

var _ adapter.LLMClient = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, modelName string, messages []adapter.Message, temperature float64) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	system, contents := toGenAIContents(messages)
	if len(contents) == 0 || contents[len(contents)-1].Role != string(genai.RoleUser) {
		return "", adapter.Usage{}, errors.New("gemini: last message must be from user")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelOrDefault(modelName, g.defaultModel), contents, cfg)
	if err != nil {
		return "", adapter.Usage{}, err
	}

	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if f := resp.PromptFeedback; f != nil && f.BlockReason != "" {
		return "", u, fmt.Errorf("gemini: prompt blocked: %s", f.BlockReason)
	}
	text := resp.Text()
	if text == "" {
		return "", u, errors.New("gemini: empty response")
	}
	return text, u, nil
}

// toGenAIContents lifts system messages into the system instruction, since
// Gemini history has no system role, and folds consecutive turns of one role
// into a single content so user and model keep alternating.
func toGenAIContents(msgs []adapter.Message) (string, []*genai.Content) {
	var system []string
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := string(genai.RoleUser)
		if m.Role == model.RoleAssistant || m.Role == "model" {
			role = string(genai.RoleModel)
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, &genai.Part{Text: m.Content})
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return strings.Join(system, "\n\n"), out
}

func modelOrDefault(name, def string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return def
}
