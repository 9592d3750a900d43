package trajectory

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/agentcore/internal/agent"
)

// StepRecord is one persisted loop step, flattened for storage and export.
type StepRecord struct {
	RunID        string    `json:"run_id"`
	Number       int       `json:"number"`
	State        string    `json:"state"`
	Thought      string    `json:"thought,omitempty"`
	Response     string    `json:"response,omitempty"`
	Reflection   string    `json:"reflection,omitempty"`
	Error        string    `json:"error,omitempty"`
	ToolCalls    string    `json:"tool_calls,omitempty"`   // JSON array of invocations
	ToolResults  string    `json:"tool_results,omitempty"` // JSON array of results
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMS   int       `json:"duration_ms"`
}

// RunRecord is the persisted summary of one execution.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	TaskID       string    `json:"task_id"`
	TaskName     string    `json:"task_name"`
	Instruction  string    `json:"instruction"`
	Status       string    `json:"status"`
	Steps        int       `json:"steps"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Result       string    `json:"result,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

func fromStep(runID string, step agent.Step) StepRecord {
	rec := StepRecord{
		RunID:        runID,
		Number:       step.Number,
		State:        string(step.State),
		Thought:      step.Thought,
		Response:     step.Response,
		Reflection:   step.Reflection,
		Error:        step.Error,
		InputTokens:  step.Usage.InputTokens,
		OutputTokens: step.Usage.OutputTokens,
		StartedAt:    step.StartedAt,
		FinishedAt:   step.FinishedAt,
	}
	if !step.FinishedAt.IsZero() {
		rec.DurationMS = int(step.FinishedAt.Sub(step.StartedAt).Milliseconds())
	}
	if len(step.Invocations) > 0 {
		if b, err := json.Marshal(step.Invocations); err == nil {
			rec.ToolCalls = string(b)
		}
	}
	if len(step.Results) > 0 {
		if b, err := json.Marshal(step.Results); err == nil {
			rec.ToolResults = string(b)
		}
	}
	return rec
}

func fromExecution(runID string, exec *agent.Execution) RunRecord {
	return RunRecord{
		RunID:        runID,
		TaskID:       exec.Task.ID,
		TaskName:     exec.Task.Name,
		Instruction:  exec.Task.Instruction,
		Status:       string(exec.Status),
		Steps:        exec.CurrentStep,
		InputTokens:  exec.Usage.InputTokens,
		OutputTokens: exec.Usage.OutputTokens,
		Result:       exec.Result,
		StartedAt:    exec.StartedAt,
		FinishedAt:   time.Now().UTC(),
	}
}
