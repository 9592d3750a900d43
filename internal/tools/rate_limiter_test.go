package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if err := rl.Allow("shell"); err != nil {
			t.Fatalf("execution %d unexpectedly limited: %v", i, err)
		}
	}
	if err := rl.Allow("shell"); err == nil {
		t.Error("expected rate limit error on 4th execution")
	}
}

func TestRateLimiter_PerToolWindows(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if err := rl.Allow("shell"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := rl.Allow("edit"); err != nil {
		t.Errorf("different tool should have its own window: %v", err)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	if rl := NewRateLimiter(0, time.Minute); rl != nil {
		t.Error("max <= 0 should disable the limiter")
	}
}

func TestDispatch_RateLimitedCallYieldsErrorResult(t *testing.T) {
	reg, _ := NewRegistry(&mockTool{name: "ping"})
	d := NewDispatcher(reg)
	d.SetRateLimiter(NewRateLimiter(1, time.Minute))

	invs := []Invocation{
		{ID: "c1", Name: "ping"},
		{ID: "c2", Name: "ping"},
	}
	results := d.Dispatch(context.Background(), invs, false)

	if results[0].IsError {
		t.Error("first call should pass")
	}
	if !results[1].IsError {
		t.Fatal("second call should be rate limited")
	}
	if !strings.Contains(results[1].Content, "rate limit") {
		t.Errorf("expected rate limit message, got %q", results[1].Content)
	}
}
