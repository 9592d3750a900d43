package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher executes the tool invocations of a single step, sequentially or
// concurrently. Per-call failure always becomes an error Result; no call can
// abort the step.
type Dispatcher struct {
	registry    *Registry
	rateLimiter *RateLimiter // nil = no rate limiting
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// SetRateLimiter enables per-run tool rate limiting.
func (d *Dispatcher) SetRateLimiter(rl *RateLimiter) {
	d.rateLimiter = rl
}

// Dispatch runs all invocations and returns exactly one Result per
// Invocation, in request order. In concurrent mode each call runs in its own
// goroutine; results land in a pre-sized slice indexed by request position,
// so completion order never changes observable ordering.
func (d *Dispatcher) Dispatch(ctx context.Context, invs []Invocation, concurrent bool) []*Result {
	results := make([]*Result, len(invs))

	if concurrent && len(invs) > 1 {
		var wg sync.WaitGroup
		for i, inv := range invs {
			wg.Add(1)
			go func(i int, inv Invocation) {
				defer wg.Done()
				results[i] = d.execute(ctx, inv)
			}(i, inv)
		}
		wg.Wait()
		return results
	}

	// Sequential: each call observes side effects of the ones before it.
	for i, inv := range invs {
		results[i] = d.execute(ctx, inv)
	}
	return results
}

// execute runs one invocation, isolating failures (including panics)
// into an error Result.
func (d *Dispatcher) execute(ctx context.Context, inv Invocation) (res *Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool: panic during execution", "tool", inv.Name, "panic", r)
			res = ErrorResult(fmt.Sprintf("tool %s panicked: %v", inv.Name, r))
		}
		res.InvocationID = inv.ID
		res.Duration = time.Since(start)
	}()

	tool, ok := d.registry.Get(inv.Name)
	if !ok {
		return ErrorResult("tool not found: " + inv.Name).WithError(ErrNotFound)
	}

	if d.rateLimiter != nil {
		if err := d.rateLimiter.Allow(inv.Name); err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
	}

	res = tool.Execute(ctx, inv.Args)
	if res == nil {
		res = ErrorResult(fmt.Sprintf("tool %s returned no result", inv.Name))
	}
	res.Content = TruncateOutput(ScrubCredentials(res.Content))

	slog.Debug("tool: executed",
		"tool", inv.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", res.IsError,
		"head", firstLine(res.Content),
	)
	return res
}

// AnyFailed reports whether any result in the slice is an error.
func AnyFailed(results []*Result) bool {
	for _, r := range results {
		if r.IsError {
			return true
		}
	}
	return false
}
