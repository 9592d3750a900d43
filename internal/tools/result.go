package tools

import "time"

// Result is the unified return type from tool execution.
// Exactly one Result exists per Invocation, matched by InvocationID.
type Result struct {
	InvocationID string        `json:"invocation_id"`
	Content      string        `json:"content"`  // content sent back to the LLM
	IsError      bool          `json:"is_error"` // marks failure
	Duration     time.Duration `json:"duration"`
	Err          error         `json:"-"` // internal error (not serialized)
}

func NewResult(content string) *Result {
	return &Result{Content: content}
}

func ErrorResult(message string) *Result {
	return &Result{Content: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
