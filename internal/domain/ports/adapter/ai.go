package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient is the port for persona replies.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []Message, temperature float64) (string, Usage, error)
}

// TokenCounter estimates prompt tokens for context budgeting.
type TokenCounter interface {
	Count(text string) int
}
