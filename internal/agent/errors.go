package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMaxSteps is returned when the loop reaches its step budget without
	// completing the task.
	ErrMaxSteps = errors.New("max iterations reached")
	// ErrCriticalReflection is returned when the reflection budget is spent
	// and the failure cannot be recovered.
	ErrCriticalReflection = errors.New("critical reflection failure")
	// ErrAlreadyRunning is returned when Run is called on a busy loop.
	ErrAlreadyRunning = errors.New("loop is already running")
)

// RunError is the typed failure surfaced to callers. It carries enough
// diagnostics to present without inspecting loop internals.
type RunError struct {
	Code      string        // protocol error code
	Step      int           // last recorded step number
	Elapsed   time.Duration // time since the run started
	RootCause string        // reflection's stated root cause, when it ran
	Err       error
}

func (e *RunError) Error() string {
	if e.RootCause != "" {
		return fmt.Sprintf("%s at step %d after %s: %v (root cause: %s)",
			e.Code, e.Step, e.Elapsed.Round(time.Millisecond), e.Err, e.RootCause)
	}
	return fmt.Sprintf("%s at step %d after %s: %v",
		e.Code, e.Step, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func newRunError(code string, exec *Execution, rootCause string, err error) *RunError {
	return &RunError{
		Code:      code,
		Step:      exec.CurrentStep,
		Elapsed:   time.Since(exec.StartedAt),
		RootCause: rootCause,
		Err:       err,
	}
}
