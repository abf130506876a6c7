package model

import (
	"encoding/json"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged turn of a conversation.
type ChatMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// TrimOldest drops the n oldest messages. It never returns nil for a non-nil input.
func TrimOldest(history []ChatMessage, n int) []ChatMessage {
	if n <= 0 {
		return history
	}
	if n >= len(history) {
		return history[:0]
	}
	out := make([]ChatMessage, len(history)-n)
	copy(out, history[n:])
	return out
}

// TrimToBytes drops oldest messages until the JSON encoding fits in limit.
// The second return value reports whether anything was dropped.
func TrimToBytes(history []ChatMessage, limit int) ([]ChatMessage, bool) {
	trimmed := false
	for len(history) > 0 {
		b, err := json.Marshal(history)
		if err == nil && len(b) <= limit {
			break
		}
		// drop in user/assistant pairs where possible
		step := 2
		if len(history) < step {
			step = len(history)
		}
		history = TrimOldest(history, step)
		trimmed = true
	}
	return history, trimmed
}

func cloneMessages(in []ChatMessage) []ChatMessage {
	if in == nil {
		return nil
	}
	out := make([]ChatMessage, len(in))
	copy(out, in)
	return out
}
