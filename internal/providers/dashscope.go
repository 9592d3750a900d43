package providers

import (
	"context"
	"log/slog"
)

const (
	dashscopeDefaultBase  = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
	dashscopeDefaultModel = "qwen3-max"
)

// DashScopeProvider wraps OpenAIProvider to handle DashScope-specific behaviors.
// Critical: DashScope rejects the parallel_tool_calls field. When a request
// asks for parallel dispatch, the flag is stripped before sending; the loop
// still dispatches the returned calls concurrently on its side.
type DashScopeProvider struct {
	*OpenAIProvider
}

func NewDashScopeProvider(opts Options) *DashScopeProvider {
	if opts.APIBase == "" {
		opts.APIBase = dashscopeDefaultBase
	}
	if opts.Model == "" {
		opts.Model = dashscopeDefaultModel
	}
	if opts.Name == "" {
		opts.Name = "dashscope"
	}
	return &DashScopeProvider{
		OpenAIProvider: NewOpenAIProvider(opts),
	}
}

func (p *DashScopeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.ParallelToolCalls {
		slog.Debug("dashscope: stripping parallel_tool_calls from request")
		req.ParallelToolCalls = false
	}
	return p.OpenAIProvider.Chat(ctx, req)
}
