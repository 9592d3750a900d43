package providers

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// Per-message formatting overhead in the chat wire format.
	tokensPerMessage = 4
	encoderCacheSize = 8
)

// TokenCounter estimates message token counts with tiktoken encoders.
// Encoders are expensive to build, so they are cached per encoding name.
type TokenCounter struct {
	model string
	cache *lru.Cache[string, *tiktoken.Tiktoken]
}

func NewTokenCounter(model string) *TokenCounter {
	cache, _ := lru.New[string, *tiktoken.Tiktoken](encoderCacheSize)
	return &TokenCounter{model: model, cache: cache}
}

// CountMessages estimates the total token count of a transcript.
// Falls back to a bytes/4 heuristic when no encoder exists for the model.
func (c *TokenCounter) CountMessages(messages []Message) int {
	enc := c.encoder()
	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
			for _, tc := range m.ToolCalls {
				total += len(enc.Encode(tc.Name, nil, nil))
				total += len(enc.Encode(tc.Arguments, nil, nil))
			}
			continue
		}
		total += len(m.Content) / 4
		for _, tc := range m.ToolCalls {
			total += (len(tc.Name) + len(tc.Arguments)) / 4
		}
	}
	return total
}

func (c *TokenCounter) encoder() *tiktoken.Tiktoken {
	if enc, ok := c.cache.Get(c.model); ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Debug("tokens: no encoder available, using byte heuristic", "model", c.model)
			return nil
		}
	}
	c.cache.Add(c.model, enc)
	return enc
}
