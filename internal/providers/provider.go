package providers

import "context"

// Provider is the single interface the engine calls for model completions.
// All vendors are interchangeable behind it; the core never branches on
// provider identity.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// CountTokens returns a token estimate for the given messages.
	CountTokens(messages []Message) int
}

// Options configures a provider instance built by New.
type Options struct {
	Name              string  // instance name from config (e.g. "primary")
	Kind              string  // provider kind: "openai", "dashscope", ...
	APIKey            string
	APIBase           string
	Model             string
	MaxRetries        int     // transient-failure retries inside Chat
	RequestsPerSecond float64 // client-side pacing, 0 = unlimited
}

// New builds a provider keyed by the configured kind.
func New(opts Options) (Provider, error) {
	switch opts.Kind {
	case "openai", "":
		return NewOpenAIProvider(opts), nil
	case "dashscope":
		return NewDashScopeProvider(opts), nil
	default:
		return nil, ErrUnsupportedModel
	}
}
