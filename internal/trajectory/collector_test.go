package trajectory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentcore/internal/agent"
	"github.com/nextlevelbuilder/agentcore/internal/providers"
	"github.com/nextlevelbuilder/agentcore/internal/tools"
)

// memStore is an in-memory Store for collector tests.
type memStore struct {
	mu    sync.Mutex
	runs  map[string]RunRecord
	steps []StepRecord
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]RunRecord{}}
}

func (m *memStore) SaveRun(ctx context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *memStore) BatchSaveSteps(ctx context.Context, steps []StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
	return nil
}

func (m *memStore) Close() error { return nil }

func sampleStep(n int) agent.Step {
	now := time.Now().UTC()
	return agent.Step{
		Number:     n,
		State:      agent.StateThinking,
		Response:   "thinking about it",
		Usage:      providers.Usage{InputTokens: 7, OutputTokens: 3},
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
}

func TestCollectorFlushesOnStop(t *testing.T) {
	store := newMemStore()
	c := NewCollector(store)
	c.Start()

	c.RecordStep("run-1", sampleStep(1))
	c.RecordStep("run-1", sampleStep(2))
	c.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.steps) != 2 {
		t.Fatalf("got %d steps after Stop, want 2", len(store.steps))
	}
	if store.steps[0].Number != 1 || store.steps[1].Number != 2 {
		t.Errorf("step order lost: %+v", store.steps)
	}
	if store.steps[0].DurationMS <= 0 {
		t.Error("duration should be derived from start/finish times")
	}
}

func TestRecordSummaryWritesSynchronously(t *testing.T) {
	store := newMemStore()
	c := NewCollector(store)

	exec := &agent.Execution{
		Task:        agent.NewTask("summarize"),
		CurrentStep: 3,
		Status:      agent.StatusCompleted,
		Usage:       providers.Usage{InputTokens: 30, OutputTokens: 12},
		StartedAt:   time.Now().Add(-time.Minute),
		Result:      "all good",
	}
	c.RecordSummary("run-2", exec)

	store.mu.Lock()
	defer store.mu.Unlock()
	run, ok := store.runs["run-2"]
	if !ok {
		t.Fatal("run summary not saved")
	}
	if run.Status != string(agent.StatusCompleted) || run.Steps != 3 {
		t.Errorf("run = %+v, want completed with 3 steps", run)
	}
	if run.InputTokens != 30 || run.OutputTokens != 12 {
		t.Errorf("usage = %d/%d, want 30/12", run.InputTokens, run.OutputTokens)
	}
}

func TestRecordStepNeverBlocksWhenBufferFull(t *testing.T) {
	store := newMemStore()
	c := NewCollector(store)
	// No Start: nothing drains the buffer.

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			c.RecordStep("run-3", sampleStep(i + 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordStep blocked on a full buffer")
	}
}

func TestStepRecordCarriesToolCallJSON(t *testing.T) {
	step := sampleStep(1)
	step.State = agent.StateCallingTool
	step.Invocations = []tools.Invocation{{ID: "c1", Name: "ping", Args: "{}"}}

	rec := fromStep("run-4", step)
	if rec.ToolCalls == "" {
		t.Fatal("tool calls not serialized")
	}
	if rec.State != string(agent.StateCallingTool) {
		t.Errorf("state = %q", rec.State)
	}
}
