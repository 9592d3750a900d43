package reflection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
)

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &providers.ChatResponse{Content: "done"}, nil
}

func (p *scriptedProvider) CountTokens(messages []providers.Message) int { return 0 }

func newContext() *ErrorContext {
	return NewErrorContext("test task", time.Now())
}

func TestAnalyze_NetworkErrorUsesBackoffStrategy(t *testing.T) {
	a := NewAnalyzer(nil, 3)
	ec := newContext()

	refl, err := a.Analyze(context.Background(), fmt.Errorf("%w: connection refused", providers.ErrNetwork), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refl.ShouldRetry {
		t.Error("network errors should be retryable")
	}
	if refl.RetryDelay != 2*time.Second {
		t.Errorf("first attempt should wait 2s, got %s", refl.RetryDelay)
	}
	if refl.Source != "strategy:network-backoff" {
		t.Errorf("expected fast-path resolution, got %s", refl.Source)
	}
}

func TestAnalyze_BackoffGrowsAndCaps(t *testing.T) {
	a := NewAnalyzer(nil, 100)
	ec := newContext()

	var last time.Duration
	for i := 0; i < 8; i++ {
		refl, err := a.Analyze(context.Background(), providers.ErrNetwork, ec)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if refl.RetryDelay < last {
			t.Errorf("attempt %d: delay shrank from %s to %s", i, last, refl.RetryDelay)
		}
		last = refl.RetryDelay
	}
	if last != 30*time.Second {
		t.Errorf("backoff should cap at 30s, got %s", last)
	}
}

func TestAnalyze_RateLimitWaitsFixedPeriod(t *testing.T) {
	a := NewAnalyzer(nil, 3)
	refl, err := a.Analyze(context.Background(), providers.ErrRateLimited, newContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refl.ShouldRetry || refl.RetryDelay != 60*time.Second {
		t.Errorf("rate limit should retry after 60s, got retry=%v delay=%s", refl.ShouldRetry, refl.RetryDelay)
	}
}

func TestAnalyze_ParsingBudgetReduced(t *testing.T) {
	a := NewAnalyzer(nil, 10)
	ec := newContext()
	parseErr := fmt.Errorf("%w: bad json", providers.ErrInvalidResponse)

	// First two parsing failures retry, the third refuses.
	for i := 0; i < 2; i++ {
		refl, err := a.Analyze(context.Background(), parseErr, ec)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !refl.ShouldRetry {
			t.Fatalf("attempt %d should still retry", i)
		}
	}
	refl, err := a.Analyze(context.Background(), parseErr, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refl.ShouldRetry {
		t.Error("third parsing failure should exhaust the reduced budget")
	}
}

func TestAnalyze_DepthExhausted(t *testing.T) {
	a := NewAnalyzer(nil, 2)
	ec := newContext()

	for i := 0; i < 2; i++ {
		if _, err := a.Analyze(context.Background(), providers.ErrNetwork, ec); err != nil {
			t.Fatalf("reflection %d: %v", i, err)
		}
	}
	_, err := a.Analyze(context.Background(), providers.ErrNetwork, ec)
	if !errors.Is(err, ErrDepthExhausted) {
		t.Fatalf("expected ErrDepthExhausted, got %v", err)
	}
}

func TestSetMaxDepthExtendsBudget(t *testing.T) {
	a := NewAnalyzer(nil, 1)
	ec := newContext()

	if _, err := a.Analyze(context.Background(), providers.ErrNetwork, ec); err != nil {
		t.Fatalf("first reflection: %v", err)
	}
	if _, err := a.Analyze(context.Background(), providers.ErrNetwork, ec); !errors.Is(err, ErrDepthExhausted) {
		t.Fatalf("expected ErrDepthExhausted, got %v", err)
	}

	a.SetMaxDepth(3)
	if _, err := a.Analyze(context.Background(), providers.ErrNetwork, ec); err != nil {
		t.Fatalf("raised budget should allow another reflection: %v", err)
	}

	// Zero and negative values leave the budget alone.
	a.SetMaxDepth(0)
	if _, err := a.Analyze(context.Background(), providers.ErrNetwork, ec); err != nil {
		t.Fatalf("budget unexpectedly shrank: %v", err)
	}
}

func TestAnalyze_EscalationParsesConstrainedJSON(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{
		Content: `Here is my analysis:
{"root_cause": "workspace path missing", "should_retry": true,
 "retry_delay_seconds": 2, "recovery_actions": ["reset_state", "custom:mkdir -p /tmp/ws"],
 "alternatives": ["create the directory first"], "confidence": 0.8}`,
	}}}
	a := NewAnalyzer(p, 3)

	refl, err := a.Analyze(context.Background(), errors.New("workspace vanished"), newContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refl.Source != "llm" {
		t.Fatalf("expected llm resolution, got %s", refl.Source)
	}
	if !refl.ShouldRetry || refl.RetryDelay != 2*time.Second {
		t.Errorf("wrong decision: retry=%v delay=%s", refl.ShouldRetry, refl.RetryDelay)
	}
	if len(refl.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(refl.Actions))
	}
	if refl.Actions[0].Kind != ActionResetState {
		t.Errorf("expected reset_state first, got %s", refl.Actions[0].Kind)
	}
	if refl.Actions[1].Kind != ActionCustom || refl.Actions[1].Command != "mkdir -p /tmp/ws" {
		t.Errorf("custom action mangled: %+v", refl.Actions[1])
	}
	if p.calls != 1 {
		t.Errorf("escalation must issue exactly one LLM call, made %d", p.calls)
	}
}

func TestAnalyze_MalformedEscalationFallsBack(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{Content: "I cannot help with that"}}}
	a := NewAnalyzer(p, 3)

	// Unknown category: fallback must refuse the retry.
	refl, err := a.Analyze(context.Background(), errors.New("mystery failure"), newContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refl.Source != "fallback" {
		t.Fatalf("expected fallback, got %s", refl.Source)
	}
	if refl.ShouldRetry {
		t.Error("unknown category is not retryable by default")
	}

	// Retryable category: fallback retries with 1s delay.
	refl, err = a.Analyze(context.Background(), providers.ErrRateLimited, newContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refl.Source == "fallback" && (!refl.ShouldRetry || refl.RetryDelay != time.Second) {
		t.Errorf("retryable fallback should wait 1s, got retry=%v delay=%s", refl.ShouldRetry, refl.RetryDelay)
	}
}

func TestErrorContext_RecurringFlag(t *testing.T) {
	ec := newContext()
	ec.Observe(providers.ErrNetwork)
	if ec.Recurring() {
		t.Error("one error cannot recur")
	}
	ec.Observe(providers.ErrRateLimited)
	if ec.Recurring() {
		t.Error("different categories are not recurring")
	}
	ec.Observe(providers.ErrRateLimited)
	if !ec.Recurring() {
		t.Error("two rate limits in a row should flag recurring")
	}
	if len(ec.History) != 3 {
		t.Errorf("history must accumulate, got %d records", len(ec.History))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{fmt.Errorf("wrap: %w", providers.ErrRateLimited), CategoryRateLimit},
		{fmt.Errorf("wrap: %w", providers.ErrNetwork), CategoryLLMCommunication},
		{fmt.Errorf("wrap: %w", providers.ErrInvalidResponse), CategoryParsing},
		{errors.New("anything else"), CategoryUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
