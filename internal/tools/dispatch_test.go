package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDispatch_Sequential_ObservesPriorSideEffects(t *testing.T) {
	var order []string
	tool := &mockTool{
		name: "record",
		execFn: func(ctx context.Context, args string) *Result {
			order = append(order, args)
			return NewResult("ok")
		},
	}
	reg, _ := NewRegistry(tool)
	d := NewDispatcher(reg)

	invs := []Invocation{
		{ID: "c1", Name: "record", Args: "first"},
		{ID: "c2", Name: "record", Args: "second"},
		{ID: "c3", Name: "record", Args: "third"},
	}
	results := d.Dispatch(context.Background(), invs, false)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("sequential dispatch out of order: %v", order)
	}
}

func TestDispatch_Concurrent_ResultsMatchRequestOrder(t *testing.T) {
	// Later invocations finish first; results must still line up by index.
	slow := &mockTool{
		name: "sleepy",
		execFn: func(ctx context.Context, args string) *Result {
			if args == "0" {
				time.Sleep(30 * time.Millisecond)
			}
			return NewResult("done-" + args)
		},
	}
	reg, _ := NewRegistry(slow)
	d := NewDispatcher(reg)

	invs := make([]Invocation, 4)
	for i := range invs {
		invs[i] = Invocation{ID: fmt.Sprintf("call-%d", i), Name: "sleepy", Args: fmt.Sprintf("%d", i)}
	}
	results := d.Dispatch(context.Background(), invs, true)

	for i, r := range results {
		if r.InvocationID != invs[i].ID {
			t.Errorf("result %d has invocation id %s, want %s", i, r.InvocationID, invs[i].ID)
		}
		if r.Content != "done-"+invs[i].Args {
			t.Errorf("result %d content %q out of position", i, r.Content)
		}
	}
}

func TestDispatch_ConcurrentToolsRunInParallel(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	tool := &mockTool{
		name: "parallel",
		execFn: func(ctx context.Context, args string) *Result {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return NewResult("ok")
		},
	}
	reg, _ := NewRegistry(tool)
	d := NewDispatcher(reg)

	invs := []Invocation{
		{ID: "a", Name: "parallel"},
		{ID: "b", Name: "parallel"},
		{ID: "c", Name: "parallel"},
	}
	d.Dispatch(context.Background(), invs, true)

	if peak < 2 {
		t.Errorf("expected overlapping execution, peak concurrency was %d", peak)
	}
}

func TestDispatch_UnknownToolYieldsErrorResult(t *testing.T) {
	reg, _ := NewRegistry()
	d := NewDispatcher(reg)

	results := d.Dispatch(context.Background(), []Invocation{
		{ID: "x1", Name: "frobnicate", Args: "{}"},
	}, false)

	r := results[0]
	if !r.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if r.InvocationID != "x1" {
		t.Errorf("expected invocation id x1, got %s", r.InvocationID)
	}
	if !errors.Is(r.Err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", r.Err)
	}
	if !strings.Contains(r.Content, "tool not found") {
		t.Errorf("expected 'tool not found' in content, got %q", r.Content)
	}
}

func TestDispatch_PanicBecomesErrorResult(t *testing.T) {
	tool := &mockTool{
		name: "boom",
		execFn: func(ctx context.Context, args string) *Result {
			panic("exploded")
		},
	}
	reg, _ := NewRegistry(tool)
	d := NewDispatcher(reg)

	results := d.Dispatch(context.Background(), []Invocation{{ID: "b1", Name: "boom"}}, false)
	if !results[0].IsError {
		t.Fatal("expected error result from panicking tool")
	}
	if results[0].InvocationID != "b1" {
		t.Errorf("panic result lost its invocation id: %s", results[0].InvocationID)
	}
}

func TestDispatch_NilResultBecomesErrorResult(t *testing.T) {
	tool := &mockTool{
		name: "void",
		execFn: func(ctx context.Context, args string) *Result {
			return nil
		},
	}
	reg, _ := NewRegistry(tool)
	d := NewDispatcher(reg)

	results := d.Dispatch(context.Background(), []Invocation{{ID: "v1", Name: "void"}}, false)
	if !results[0].IsError {
		t.Error("expected error result for nil tool result")
	}
}

func TestAnyFailed(t *testing.T) {
	if AnyFailed([]*Result{NewResult("a"), NewResult("b")}) {
		t.Error("no failures expected")
	}
	if !AnyFailed([]*Result{NewResult("a"), ErrorResult("bad")}) {
		t.Error("expected failure detected")
	}
}
