package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

// Maximum tool argument size accepted by the validate_input action.
const maxValidatedArgLen = 64 * 1024

// Coordinator applies a reflection decision: recovery actions in order, the
// retry delay, then hands a resume message back to the loop. When the
// decision refuses a retry, the original error is re-raised unchanged.
type Coordinator struct {
	// Optional hooks wired by the loop; nil hooks are logged only.
	OnResetState func()
	OnClearCache func()
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Apply executes the reflection. Returns the conversational message to append
// before resuming, or the original error when retry is refused or the step
// budget is exhausted.
func (c *Coordinator) Apply(ctx context.Context, refl *Reflection, original error, ec *ErrorContext, stepsRemaining int) (string, error) {
	if !refl.ShouldRetry {
		return "", original
	}
	if stepsRemaining <= 0 {
		slog.Warn("recovery: step budget exhausted, not retrying")
		return "", original
	}

	var applied []string
	for _, action := range refl.Actions {
		applied = append(applied, c.applyAction(action, ec))
	}

	if refl.RetryDelay > 0 {
		slog.Info("recovery: waiting before retry", "delay", refl.RetryDelay)
		timer := time.NewTimer(refl.RetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}

	return buildResumeMessage(refl, applied), nil
}

// applyAction performs one recovery action and returns a short description
// for the resume message.
func (c *Coordinator) applyAction(action RecoveryAction, ec *ErrorContext) string {
	switch action.Kind {
	case ActionResetState:
		if c.OnResetState != nil {
			c.OnResetState()
		}
		slog.Info("recovery: reset state")
		return "reset internal state"

	case ActionClearCache:
		if c.OnClearCache != nil {
			c.OnClearCache()
		}
		slog.Info("recovery: cleared caches")
		return "cleared caches"

	case ActionChangeApproach:
		slog.Info("recovery: requesting a different approach")
		return "a different approach is needed"

	case ActionValidateInput:
		return "validated tool input: " + validateInput(ec.LastToolArgs)

	case ActionCustom:
		// The command comes from a model reply; it is parsed and recorded
		// but never executed.
		args, err := shellwords.Parse(action.Command)
		if err != nil {
			slog.Warn("recovery: unparsable custom command", "command", action.Command, "error", err)
			return "ignored unparsable custom command"
		}
		slog.Info("recovery: recorded custom command", "argv", args)
		return fmt.Sprintf("noted custom recovery command (%d args)", len(args))

	default:
		return "skipped unknown action"
	}
}

// validateInput scans the last tool arguments for obvious defects.
func validateInput(args string) string {
	switch {
	case args == "":
		return "no arguments recorded"
	case strings.ContainsRune(args, 0):
		return "arguments contain null bytes"
	case len(args) > maxValidatedArgLen:
		return fmt.Sprintf("arguments oversized (%d bytes)", len(args))
	default:
		return "arguments look well-formed"
	}
}

func buildResumeMessage(refl *Reflection, applied []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %s error occurred: %s.", refl.Category, refl.RootCause)
	if len(applied) > 0 {
		fmt.Fprintf(&b, " Recovery applied: %s.", strings.Join(applied, "; "))
	}
	if refl.Suggestion != "" {
		fmt.Fprintf(&b, " Suggestion: %s.", refl.Suggestion)
	}
	b.WriteString(" Continue the task from where it left off.")
	return b.String()
}
