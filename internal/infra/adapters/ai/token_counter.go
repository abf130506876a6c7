package ai

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/adapter"
)

var (
	_ adapter.TokenCounter = (*TiktokenCounter)(nil)
	_ adapter.TokenCounter = ApproxCounter{}
)

// TiktokenCounter counts with an OpenAI BPE encoding. Gemini models are
// budgeted with the same encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads encoding (cl100k_base when empty). Loading may need
// network access; on failure the approximate counter is returned with the error.
func NewTokenCounter(encoding string) (adapter.TokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return ApproxCounter{}, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter assumes about four bytes per token, rounding up.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	if r := utf8.RuneCountInString(text); r < n {
		// multi-byte scripts: roughly one token per two runes
		return (r + 1) / 2
	}
	return (n + 3) / 4
}
