package reflection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
)

// DefaultMaxDepth bounds how many reflections one execution may run.
const DefaultMaxDepth = 3

// ErrDepthExhausted is returned once the reflection budget of an execution
// is spent; the failure is then terminal regardless of retryability.
var ErrDepthExhausted = errors.New("reflection depth exhausted")

// Analyzer resolves failures in two tiers: an ordered chain of local
// strategies, then a single LLM-assisted reflection call when no strategy
// matches. One analyzer belongs to one execution; its depth counter is the
// per-execution reflection budget.
type Analyzer struct {
	provider   providers.Provider // nil = escalation disabled
	strategies []Strategy
	maxDepth   atomic.Int32
	depth      int
}

func NewAnalyzer(provider providers.Provider, maxDepth int) *Analyzer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	a := &Analyzer{
		provider:   provider,
		strategies: DefaultStrategies(),
	}
	a.maxDepth.Store(int32(maxDepth))
	return a
}

// SetStrategies replaces the fast-path chain (mostly for tests).
func (a *Analyzer) SetStrategies(s []Strategy) { a.strategies = s }

// SetMaxDepth adjusts the reflection budget. Reflections already run still
// count against it. Safe to call while an execution is in flight.
func (a *Analyzer) SetMaxDepth(d int) {
	if d > 0 {
		a.maxDepth.Store(int32(d))
	}
}

// Depth returns how many reflections have run so far.
func (a *Analyzer) Depth() int { return a.depth }

// Analyze records the failure and produces a reflection decision.
// Returns ErrDepthExhausted when the per-execution budget is spent.
func (a *Analyzer) Analyze(ctx context.Context, failure error, ec *ErrorContext) (*Reflection, error) {
	if a.depth >= int(a.maxDepth.Load()) {
		return nil, fmt.Errorf("%w: %d reflections already run", ErrDepthExhausted, a.depth)
	}
	a.depth++

	rec := ec.Observe(failure)
	slog.Warn("reflection: analyzing failure",
		"category", rec.Category,
		"step", rec.Step,
		"depth", a.depth,
		"recurring", ec.Recurring(),
	)

	// Fast path: first matching local strategy decides, no LLM call.
	for _, s := range a.strategies {
		if s.CanHandle(rec, ec) {
			refl := s.Resolve(rec, ec)
			slog.Info("reflection: resolved by strategy",
				"strategy", s.Name(),
				"retry", refl.ShouldRetry,
				"delay", refl.RetryDelay,
			)
			return refl, nil
		}
	}

	return a.escalate(ctx, rec, ec)
}

// llmReflection is the constrained JSON shape the escalation prompt demands.
type llmReflection struct {
	RootCause         string   `json:"root_cause"`
	ShouldRetry       bool     `json:"should_retry"`
	RetryDelaySeconds float64  `json:"retry_delay_seconds"`
	RecoveryActions   []string `json:"recovery_actions"`
	Alternatives      []string `json:"alternatives"`
	Confidence        float64  `json:"confidence"`
}

// escalate issues exactly one LLM call for failures no strategy handles.
// A malformed reply falls back to "retry only if already retryable, 1s".
func (a *Analyzer) escalate(ctx context.Context, rec Record, ec *ErrorContext) (*Reflection, error) {
	if a.provider == nil {
		return a.fallback(rec), nil
	}

	resp, err := a.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: escalationSystemPrompt},
			{Role: providers.RoleUser, Content: buildEscalationPrompt(rec, ec)},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		slog.Warn("reflection: escalation call failed, using fallback", "error", err)
		return a.fallback(rec), nil
	}

	parsed, err := parseReflectionReply(resp.Content)
	if err != nil {
		slog.Warn("reflection: unparsable escalation reply, using fallback", "error", err)
		return a.fallback(rec), nil
	}

	refl := &Reflection{
		Category:    rec.Category,
		RootCause:   parsed.RootCause,
		Suggestion:  strings.Join(parsed.Alternatives, "; "),
		ShouldRetry: parsed.ShouldRetry,
		RetryDelay:  time.Duration(parsed.RetryDelaySeconds * float64(time.Second)),
		Actions:     parseActions(parsed.RecoveryActions),
		Confidence:  parsed.Confidence,
		Source:      "llm",
	}
	slog.Info("reflection: resolved by escalation",
		"retry", refl.ShouldRetry,
		"delay", refl.RetryDelay,
		"confidence", refl.Confidence,
	)
	return refl, nil
}

func (a *Analyzer) fallback(rec Record) *Reflection {
	return &Reflection{
		Category:    rec.Category,
		RootCause:   rec.Message,
		Suggestion:  "no structured diagnosis available",
		ShouldRetry: rec.Category.RetryableByDefault(),
		RetryDelay:  time.Second,
		Confidence:  0.3,
		Source:      "fallback",
	}
}

const escalationSystemPrompt = `You are a failure analyst for an autonomous agent.
Reply with a single JSON object and nothing else:
{"root_cause": string, "should_retry": bool, "retry_delay_seconds": number,
 "recovery_actions": [string], "alternatives": [string], "confidence": number}
Allowed recovery_actions values: reset_state, clear_cache, change_approach, validate_input,
or "custom:<command>" for anything else. Confidence is 0..1.`

func buildEscalationPrompt(rec Record, ec *ErrorContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", ec.Task)
	fmt.Fprintf(&b, "Step: %d (elapsed %s)\n", rec.Step, ec.Elapsed().Round(time.Second))
	if ec.LastTool != "" {
		fmt.Fprintf(&b, "Last tool used: %s\n", ec.LastTool)
	}
	fmt.Fprintf(&b, "Error category: %s\n", rec.Category)
	fmt.Fprintf(&b, "Error: %s\n", rec.Message)
	if ec.Recurring() {
		b.WriteString("Note: this failure category occurred twice in a row (recurring).\n")
	}
	if n := len(ec.History); n > 1 {
		fmt.Fprintf(&b, "Prior errors this execution (%d):\n", n-1)
		for _, h := range ec.History[:n-1] {
			fmt.Fprintf(&b, "- step %d [%s] %s\n", h.Step, h.Category, h.Message)
		}
	}
	return b.String()
}

// parseReflectionReply extracts and decodes the JSON object from the model
// reply, tolerating surrounding prose or code fences.
func parseReflectionReply(content string) (*llmReflection, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var parsed llmReflection
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decode reflection reply: %w", err)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("confidence out of range: %v", parsed.Confidence)
	}
	return &parsed, nil
}

func parseActions(raw []string) []RecoveryAction {
	var actions []RecoveryAction
	for _, s := range raw {
		switch s {
		case string(ActionResetState), string(ActionClearCache),
			string(ActionChangeApproach), string(ActionValidateInput):
			actions = append(actions, RecoveryAction{Kind: ActionKind(s)})
		default:
			if cmd, ok := strings.CutPrefix(s, "custom:"); ok {
				actions = append(actions, RecoveryAction{Kind: ActionCustom, Command: strings.TrimSpace(cmd)})
			}
			// Unknown action names are dropped rather than guessed at.
		}
	}
	return actions
}
