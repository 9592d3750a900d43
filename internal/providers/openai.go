package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o"

	chatTimeout = 120 * time.Second
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
// Vendor-specific quirks live in thin wrappers (see DashScopeProvider).
type OpenAIProvider struct {
	name       string
	apiKey     string
	apiBase    string
	model      string
	maxRetries int

	httpClient *http.Client
	limiter    *rate.Limiter // nil = no pacing
	counter    *TokenCounter
}

func NewOpenAIProvider(opts Options) *OpenAIProvider {
	if opts.APIBase == "" {
		opts.APIBase = openaiDefaultBase
	}
	if opts.Model == "" {
		opts.Model = openaiDefaultModel
	}
	if opts.Name == "" {
		opts.Name = "openai"
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &OpenAIProvider{
		name:       opts.Name,
		apiKey:     opts.APIKey,
		apiBase:    opts.APIBase,
		model:      opts.Model,
		maxRetries: opts.MaxRetries,
		httpClient: &http.Client{Timeout: chatTimeout},
		limiter:    limiter,
		counter:    NewTokenCounter(opts.Model),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// CountTokens estimates the token count of the given messages.
func (p *OpenAIProvider) CountTokens(messages []Message) int {
	return p.counter.CountMessages(messages)
}

// --- wire types (OpenAI chat completions schema) ---

type oaRequest struct {
	Model             string           `json:"model"`
	Messages          []oaMessage      `json:"messages"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	Temperature       *float64         `json:"temperature,omitempty"`
	MaxTokens         int              `json:"max_tokens,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends a completion request, retrying transient transport failures.
// Rate-limit responses (429) are returned immediately so the caller's
// failure analysis can decide the wait.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	body := oaRequest{
		Model:     model,
		Messages:  toWireMessages(req.Messages),
		Tools:     SanitizeToolSchemas(p.name, req.Tools),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if len(req.Tools) > 1 || req.ParallelToolCalls {
		pc := req.ParallelToolCalls
		body.ParallelToolCalls = &pc
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			slog.Debug("provider: retrying chat", "provider", p.name, "attempt", attempt)
		}

		resp, err := p.doChat(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Only transport failures and 5xx are worth an in-client retry.
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *OpenAIProvider) doChat(ctx context.Context, body oaRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, truncateBody(raw))
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrNetwork, httpResp.StatusCode, truncateBody(raw))
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, httpResp.StatusCode, truncateBody(raw))
	}

	var out oaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	choice := out.Choices[0]
	resp := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        out.Model,
		Usage: Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func toWireMessages(messages []Message) []oaMessage {
	out := make([]oaMessage, len(messages))
	for i, m := range messages {
		wire := oaMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			otc := oaToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			wire.ToolCalls = append(wire.ToolCalls, otc)
		}
		out[i] = wire
	}
	return out
}

func isTransient(err error) bool {
	// 429 is deliberately excluded: the failure analyzer owns that wait.
	return err != nil && errors.Is(err, ErrNetwork)
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "...[truncated]"
}
