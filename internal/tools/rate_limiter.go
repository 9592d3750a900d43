package tools

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter implements a sliding window rate limiter for tool executions.
// Tracks executions per tool name within a configurable window; one limiter
// belongs to one run.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// NewRateLimiter creates a limiter allowing max executions per tool per
// window. Pass max <= 0 to disable rate limiting (returns nil).
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow checks whether another execution of the named tool is permitted.
// Returns nil if allowed, or an error describing the limit.
func (rl *RateLimiter) Allow(name string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	entries := rl.windows[name]
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	entries = entries[start:]

	if len(entries) >= rl.max {
		return fmt.Errorf("tool rate limit exceeded: %d executions per %s for %s", rl.max, rl.window, name)
	}

	rl.windows[name] = append(entries, now)
	return nil
}
