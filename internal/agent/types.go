package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
	"github.com/nextlevelbuilder/agentcore/internal/tools"
)

// Task is the immutable natural-language instruction for one run.
// Name is a normalized slug derived from the instruction, used in log
// fields and trajectory records.
type Task struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Instruction string    `json:"instruction"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewTask(instruction string) Task {
	return Task{
		ID:          uuid.NewString(),
		Name:        NormalizeTaskName(instruction),
		Instruction: instruction,
		CreatedAt:   time.Now().UTC(),
	}
}

// RunConfig is the resolved configuration one loop runs under.
type RunConfig struct {
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	MaxTokens          int     `json:"max_tokens"`
	Temperature        float64 `json:"temperature"`
	ParallelToolCalls  bool    `json:"parallel_tool_calls"`
	MaxSteps           int     `json:"max_steps"`
	MaxReflectionDepth int     `json:"max_reflection_depth"`
	SystemPrompt       string  `json:"system_prompt,omitempty"`

	// Optional per-run tool rate limit (0 = unlimited).
	ToolRateLimit  int           `json:"tool_rate_limit,omitempty"`
	ToolRateWindow time.Duration `json:"tool_rate_window,omitempty"`
}

const (
	DefaultMaxSteps = 25
)

func (c *RunConfig) applyDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxReflectionDepth <= 0 {
		c.MaxReflectionDepth = 3
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
}

const defaultSystemPrompt = `You are an autonomous agent. Work on the user's task step by step,
calling tools when needed. When the task is finished, reply without tool calls and state that it is complete.`

// StepState is the controller state recorded on each step.
type StepState string

const (
	StateIdle        StepState = "idle"
	StateThinking    StepState = "thinking"
	StateCallingTool StepState = "calling_tool"
	StateReflecting  StepState = "reflecting"
	StateCompleted   StepState = "completed"
	StateError       StepState = "error"
)

// Step records one loop iteration: at most one LLM exchange and the tool
// calls it triggered. Numbers are unique and strictly increasing from 1.
type Step struct {
	Number      int                `json:"number"`
	State       StepState          `json:"state"`
	Thought     string             `json:"thought,omitempty"`
	Invocations []tools.Invocation `json:"invocations,omitempty"`
	Results     []*tools.Result    `json:"results,omitempty"`
	Response    string             `json:"response,omitempty"`
	Reflection  string             `json:"reflection,omitempty"`
	Error       string             `json:"error,omitempty"`
	Usage       providers.Usage    `json:"usage"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Status is the terminal disposition of an execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Execution aggregates all steps of one task. It is owned exclusively by the
// loop that created it and mutated only there.
type Execution struct {
	Task        Task            `json:"task"`
	Steps       []Step          `json:"steps"`
	CurrentStep int             `json:"current_step"`
	MaxSteps    int             `json:"max_steps"`
	Status      Status          `json:"status"`
	Usage       providers.Usage `json:"usage"`
	StartedAt   time.Time       `json:"started_at"`
	Result      string          `json:"result,omitempty"`
}

func newExecution(task Task, cfg RunConfig) *Execution {
	return &Execution{
		Task:      task,
		MaxSteps:  cfg.MaxSteps,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// beginStep allocates the next step record.
func (e *Execution) beginStep() *Step {
	e.CurrentStep++
	e.Steps = append(e.Steps, Step{
		Number:    e.CurrentStep,
		State:     StateThinking,
		StartedAt: time.Now().UTC(),
	})
	return &e.Steps[len(e.Steps)-1]
}

// stepsRemaining returns how many steps the budget still allows.
func (e *Execution) stepsRemaining() int {
	return e.MaxSteps - e.CurrentStep
}

// RunResult is the caller-facing outcome of a run.
type RunResult struct {
	RunID   string          `json:"run_id"`
	Output  string          `json:"output"`
	Status  Status          `json:"status"`
	Steps   int             `json:"steps"`
	Usage   providers.Usage `json:"usage"`
	Elapsed time.Duration   `json:"elapsed"`
}
