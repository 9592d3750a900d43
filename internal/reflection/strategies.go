package reflection

import (
	"fmt"
	"time"
)

// ActionKind is the closed set of recovery actions a reflection may request.
type ActionKind string

const (
	ActionResetState     ActionKind = "reset_state"
	ActionClearCache     ActionKind = "clear_cache"
	ActionChangeApproach ActionKind = "change_approach"
	ActionValidateInput  ActionKind = "validate_input"
	ActionCustom         ActionKind = "custom"
)

// RecoveryAction is one remediation to apply before a retry.
// Command is only set for ActionCustom and is treated as opaque.
type RecoveryAction struct {
	Kind    ActionKind `json:"kind"`
	Command string     `json:"command,omitempty"`
}

// Reflection is the decision produced for one failure.
type Reflection struct {
	Category    Category         `json:"category"`
	RootCause   string           `json:"root_cause"`
	Suggestion  string           `json:"suggestion"`
	ShouldRetry bool             `json:"should_retry"`
	RetryDelay  time.Duration    `json:"retry_delay"`
	Actions     []RecoveryAction `json:"actions,omitempty"`
	Confidence  float64          `json:"confidence"`
	Source      string           `json:"source"` // "strategy:<name>", "llm", "fallback"
}

// Strategy is a local, LLM-free resolution rule. Strategies are consulted in
// order; the first one that can handle the failure decides.
type Strategy interface {
	Name() string
	CanHandle(rec Record, ec *ErrorContext) bool
	Resolve(rec Record, ec *ErrorContext) *Reflection
}

// DefaultStrategies returns the built-in fast-path chain.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&networkBackoffStrategy{base: 2 * time.Second, max: 30 * time.Second},
		&rateLimitStrategy{wait: 60 * time.Second},
		&parsingStrategy{maxAttempts: 2},
	}
}

// networkBackoffStrategy retries transient network failures with exponential
// backoff capped at max.
type networkBackoffStrategy struct {
	base time.Duration
	max  time.Duration
}

func (s *networkBackoffStrategy) Name() string { return "network-backoff" }

func (s *networkBackoffStrategy) CanHandle(rec Record, ec *ErrorContext) bool {
	return rec.Category == CategoryLLMCommunication
}

func (s *networkBackoffStrategy) Resolve(rec Record, ec *ErrorContext) *Reflection {
	attempt := ec.CountCategory(CategoryLLMCommunication)
	if attempt < 1 {
		attempt = 1
	}
	delay := s.base << uint(attempt-1)
	if delay > s.max {
		delay = s.max
	}
	return &Reflection{
		Category:    rec.Category,
		RootCause:   "transient network failure reaching the model provider",
		Suggestion:  fmt.Sprintf("waiting %s before retrying the request", delay),
		ShouldRetry: true,
		RetryDelay:  delay,
		Confidence:  0.9,
		Source:      "strategy:" + s.Name(),
	}
}

// rateLimitStrategy waits a fixed period on provider rate limits.
type rateLimitStrategy struct {
	wait time.Duration
}

func (s *rateLimitStrategy) Name() string { return "rate-limit-wait" }

func (s *rateLimitStrategy) CanHandle(rec Record, ec *ErrorContext) bool {
	return rec.Category == CategoryRateLimit
}

func (s *rateLimitStrategy) Resolve(rec Record, ec *ErrorContext) *Reflection {
	return &Reflection{
		Category:    rec.Category,
		RootCause:   "provider rate limit hit",
		Suggestion:  fmt.Sprintf("waiting %s for the rate limit window to pass", s.wait),
		ShouldRetry: true,
		RetryDelay:  s.wait,
		Confidence:  0.95,
		Source:      "strategy:" + s.Name(),
	}
}

// parsingStrategy retries malformed model output with a reduced budget and
// asks for input validation before the next attempt.
type parsingStrategy struct {
	maxAttempts int
}

func (s *parsingStrategy) Name() string { return "parse-validate" }

func (s *parsingStrategy) CanHandle(rec Record, ec *ErrorContext) bool {
	return rec.Category == CategoryParsing
}

func (s *parsingStrategy) Resolve(rec Record, ec *ErrorContext) *Reflection {
	attempts := ec.CountCategory(CategoryParsing)
	if attempts > s.maxAttempts {
		return &Reflection{
			Category:    rec.Category,
			RootCause:   "model output repeatedly failed to parse",
			Suggestion:  "parsing retry budget exhausted",
			ShouldRetry: false,
			Confidence:  0.8,
			Source:      "strategy:" + s.Name(),
		}
	}
	return &Reflection{
		Category:    rec.Category,
		RootCause:   "model produced malformed structured output",
		Suggestion:  "validating inputs and retrying once",
		ShouldRetry: true,
		RetryDelay:  time.Second,
		Actions:     []RecoveryAction{{Kind: ActionValidateInput}},
		Confidence:  0.7,
		Source:      "strategy:" + s.Name(),
	}
}
