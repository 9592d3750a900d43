package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentcore/internal/bus"
	"github.com/nextlevelbuilder/agentcore/internal/providers"
	"github.com/nextlevelbuilder/agentcore/internal/reflection"
	"github.com/nextlevelbuilder/agentcore/internal/tools"
	"github.com/nextlevelbuilder/agentcore/pkg/protocol"
)

// TrajectorySink receives the append-only record of a run. The persisted
// schema is owned by the sink, not the loop.
type TrajectorySink interface {
	RecordStep(runID string, step Step)
	RecordSummary(runID string, exec *Execution)
}

// Loop drives one task to completion: it consults the provider, dispatches
// requested tool calls, and recovers from failures through bounded
// reflection. One Loop instance runs one task; loops share nothing.
type Loop struct {
	id       string
	task     Task
	cfg      RunConfig
	provider providers.Provider
	registry *tools.Registry

	dispatcher  *tools.Dispatcher
	analyzer    *reflection.Analyzer
	coordinator *reflection.Coordinator

	statusBus  *bus.StatusBus // optional
	trajectory TrajectorySink // optional

	// transcript is the one piece of state threaded through the whole run.
	// Append-only: no step ever rewrites a prior message.
	transcript []providers.Message

	// maxSteps is the live step budget; config reloads may adjust it while
	// the run is in flight.
	maxSteps atomic.Int32

	running atomic.Bool
}

// NewLoop builds a loop for one task. The registry must already be
// constructed (duplicate tool names fail there).
func NewLoop(task Task, cfg RunConfig, provider providers.Provider, registry *tools.Registry) *Loop {
	cfg.applyDefaults()

	dispatcher := tools.NewDispatcher(registry)
	if cfg.ToolRateLimit > 0 {
		dispatcher.SetRateLimiter(tools.NewRateLimiter(cfg.ToolRateLimit, cfg.ToolRateWindow))
	}

	l := &Loop{
		id:          uuid.NewString(),
		task:        task,
		cfg:         cfg,
		provider:    provider,
		registry:    registry,
		dispatcher:  dispatcher,
		analyzer:    reflection.NewAnalyzer(provider, cfg.MaxReflectionDepth),
		coordinator: reflection.NewCoordinator(),
	}
	l.maxSteps.Store(int32(cfg.MaxSteps))
	return l
}

func (l *Loop) ID() string      { return l.id }
func (l *Loop) Model() string   { return l.cfg.Model }
func (l *Loop) IsRunning() bool { return l.running.Load() }

// SetStatusBus attaches an optional status sink for progress events.
func (l *Loop) SetStatusBus(b *bus.StatusBus) { l.statusBus = b }

// SetTrajectory attaches an optional trajectory sink.
func (l *Loop) SetTrajectory(t TrajectorySink) { l.trajectory = t }

// SetAnalyzer replaces the failure analyzer (tests use this to script
// reflection behavior).
func (l *Loop) SetAnalyzer(a *reflection.Analyzer) { l.analyzer = a }

// UpdateLimits adjusts the step budget and reflection depth, typically from
// a config reload while a run is in flight. Safe to call from another
// goroutine; a new budget takes effect at the next iteration, and steps
// already taken count against it.
func (l *Loop) UpdateLimits(maxSteps, maxReflectionDepth int) {
	if maxSteps > 0 {
		l.maxSteps.Store(int32(maxSteps))
	}
	if maxReflectionDepth > 0 {
		l.analyzer.SetMaxDepth(maxReflectionDepth)
	}
	slog.Info("loop: limits updated",
		"run_id", l.id,
		"max_steps", maxSteps,
		"max_reflection_depth", maxReflectionDepth,
	)
}

// Run executes the task until completion, terminal failure, or the step
// budget. Reaching the budget is a distinct failure (ErrMaxSteps), never a
// silent truncation.
func (l *Loop) Run(ctx context.Context) (*RunResult, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer l.running.Store(false)

	exec := newExecution(l.task, l.cfg)
	errCtx := reflection.NewErrorContext(l.task.Instruction, exec.StartedAt)

	l.transcript = []providers.Message{
		{Role: providers.RoleSystem, Content: l.cfg.SystemPrompt},
		{Role: providers.RoleUser, Content: l.task.Instruction},
	}

	slog.Info("loop: run started",
		"run_id", l.id,
		"task_id", l.task.ID,
		"task", l.task.Name,
		"max_steps", exec.MaxSteps,
		"tools", l.registry.Count(),
	)
	l.publish(protocol.EventRun, protocol.RunEventStarted, map[string]interface{}{
		"task": l.task.Instruction,
	})

	for {
		exec.MaxSteps = int(l.maxSteps.Load())
		if exec.CurrentStep >= exec.MaxSteps {
			break
		}
		if err := ctx.Err(); err != nil {
			return l.fail(exec, newRunError(protocol.ErrInternal, exec, "", err))
		}

		step := exec.beginStep()
		errCtx.CurrentStep = step.Number

		finished, err := l.step(ctx, exec, errCtx, step)
		if err != nil {
			// Cancellation must not leave a partially-recorded step
			// visible as complete; drop the record and surface the error.
			if ctx.Err() != nil {
				exec.Steps = exec.Steps[:len(exec.Steps)-1]
				return l.fail(exec, newRunError(protocol.ErrInternal, exec, "", ctx.Err()))
			}

			resumed, rerr := l.recover(ctx, err, exec, errCtx, step)
			l.finishStep(step)
			if rerr != nil {
				return l.fail(exec, rerr)
			}
			if resumed {
				continue
			}
		}

		l.finishStep(step)

		if finished {
			exec.Status = StatusCompleted
			return l.succeed(exec)
		}
	}

	return l.fail(exec, newRunError(protocol.ErrMaxIterations, exec, "",
		fmt.Errorf("%w: %d steps", ErrMaxSteps, exec.MaxSteps)))
}

// step runs one thinking iteration and any tool calls it triggers.
// Returns finished=true when the model signaled completion. Panics anywhere
// in the step surface as errors so the recovery path sees them.
func (l *Loop) step(ctx context.Context, exec *Execution, errCtx *reflection.ErrorContext, step *Step) (finished bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %d panicked: %v", step.Number, r)
		}
	}()

	l.publish(protocol.EventStep, protocol.StepEventThinking, map[string]interface{}{
		"step": step.Number,
	})
	slog.Debug("loop: thinking",
		"run_id", l.id,
		"step", step.Number,
		"context_tokens", l.provider.CountTokens(l.transcript),
	)

	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Model:             l.cfg.Model,
		Messages:          l.transcript,
		Tools:             l.registry.ProviderDefs(),
		Temperature:       l.cfg.Temperature,
		MaxTokens:         l.cfg.MaxTokens,
		ParallelToolCalls: l.cfg.ParallelToolCalls,
	})
	if err != nil {
		step.State = StateError
		step.Error = err.Error()
		return false, err
	}

	step.Usage = resp.Usage
	step.Response = resp.Content
	exec.Usage.Add(resp.Usage)

	if resp.HasToolCalls() {
		step.Thought = resp.Content
		return false, l.callTools(ctx, errCtx, step, resp)
	}

	// No tool calls: either the completion lexicon matches, or the loop
	// appends a continuation prompt and thinks again.
	if isCompletion(resp.Content) {
		step.State = StateCompleted
		exec.Result = resp.Content
		l.append(providers.Message{Role: providers.RoleAssistant, Content: resp.Content})
		return true, nil
	}

	l.append(providers.Message{Role: providers.RoleAssistant, Content: resp.Content})
	l.append(providers.Message{Role: providers.RoleUser, Content: continuationPrompt})
	return false, nil
}

// callTools dispatches the step's tool invocations and folds the results
// back into the transcript. Tool failures never escape as errors; they are
// summarized for the model to observe and correct.
func (l *Loop) callTools(ctx context.Context, errCtx *reflection.ErrorContext, step *Step, resp *providers.ChatResponse) error {
	step.State = StateCallingTool

	invs := make([]tools.Invocation, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		invs[i] = tools.Invocation{ID: id, Name: tc.Name, Args: tc.Arguments}
		l.publish(protocol.EventTool, protocol.ToolEventCall, map[string]interface{}{
			"step": step.Number,
			"tool": tc.Name,
			"id":   id,
		})
	}
	step.Invocations = invs
	l.publish(protocol.EventStep, protocol.StepEventToolCalls, map[string]interface{}{
		"step":  step.Number,
		"calls": len(invs),
	})

	// The assistant message carrying the calls joins the transcript before
	// any result does.
	l.append(providers.Message{
		Role:      providers.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	concurrent := l.cfg.ParallelToolCalls && len(invs) > 1
	results := l.dispatcher.Dispatch(ctx, invs, concurrent)
	if err := ctx.Err(); err != nil {
		return err
	}
	step.Results = results

	last := invs[len(invs)-1]
	errCtx.LastTool = last.Name
	errCtx.LastToolArgs = last.Args

	failed := 0
	for i, r := range results {
		if r.IsError {
			failed++
		}
		l.append(providers.Message{
			Role:       providers.RoleTool,
			Content:    r.Content,
			ToolCallID: r.InvocationID,
			Name:       invs[i].Name,
		})
		l.publish(protocol.EventTool, protocol.ToolEventResult, map[string]interface{}{
			"step":     step.Number,
			"tool":     invs[i].Name,
			"id":       r.InvocationID,
			"is_error": r.IsError,
		})
	}

	if failed > 0 {
		// Summarize failures back into the conversation. This is distinct
		// from controller-level reflection: the loop keeps going and the
		// model decides how to react.
		step.State = StateReflecting
		step.Reflection = fmt.Sprintf("%d of %d tool calls failed", failed, len(results))
		l.append(providers.Message{
			Role:    providers.RoleUser,
			Content: fmt.Sprintf("%d of %d tool calls failed; review the tool errors above and adjust.", failed, len(results)),
		})
		l.publish(protocol.EventStep, protocol.StepEventReflecting, map[string]interface{}{
			"step":   step.Number,
			"failed": failed,
		})
		slog.Warn("loop: tool failures in step", "run_id", l.id, "step", step.Number, "failed", failed)
	}
	return nil
}

// recover routes a controller-level failure through the analyzer and
// coordinator. Returns resumed=true when the loop may continue from
// thinking with an explanatory message appended.
func (l *Loop) recover(ctx context.Context, cause error, exec *Execution, errCtx *reflection.ErrorContext, step *Step) (bool, *RunError) {
	step.State = StateError
	step.Error = cause.Error()

	refl, err := l.analyzer.Analyze(ctx, cause, errCtx)
	if err != nil {
		// Reflection budget spent: unconditionally terminal.
		return false, newRunError(protocol.ErrCriticalReflection, exec, "",
			fmt.Errorf("%w: %v (last error: %v)", ErrCriticalReflection, err, cause))
	}

	step.Reflection = refl.RootCause
	msg, err := l.coordinator.Apply(ctx, refl, cause, errCtx, exec.stepsRemaining())
	if err != nil {
		return false, newRunError(codeFor(refl.Category), exec, refl.RootCause, err)
	}

	step.State = StateReflecting
	l.append(providers.Message{Role: providers.RoleUser, Content: msg})
	l.publish(protocol.EventRun, protocol.RunEventReflected, map[string]interface{}{
		"step":       step.Number,
		"category":   string(refl.Category),
		"root_cause": refl.RootCause,
	})
	slog.Info("loop: recovered, resuming",
		"run_id", l.id,
		"step", step.Number,
		"category", refl.Category,
	)
	return true, nil
}

func codeFor(cat reflection.Category) string {
	switch cat {
	case reflection.CategoryRateLimit:
		return protocol.ErrLLMRateLimited
	case reflection.CategoryLLMCommunication:
		return protocol.ErrLLMNetwork
	case reflection.CategoryParsing:
		return protocol.ErrParsing
	case reflection.CategoryToolExecution:
		return protocol.ErrToolExecFailed
	default:
		return protocol.ErrInternal
	}
}

// append adds a message to the transcript. The transcript only ever grows.
func (l *Loop) append(msg providers.Message) {
	l.transcript = append(l.transcript, msg)
}

func (l *Loop) finishStep(step *Step) {
	step.FinishedAt = time.Now().UTC()
	if l.trajectory != nil {
		l.trajectory.RecordStep(l.id, *step)
	}
	l.publish(protocol.EventStep, protocol.StepEventFinished, map[string]interface{}{
		"step":  step.Number,
		"state": string(step.State),
	})
}

func (l *Loop) succeed(exec *Execution) (*RunResult, error) {
	res := &RunResult{
		RunID:   l.id,
		Output:  exec.Result,
		Status:  StatusCompleted,
		Steps:   exec.CurrentStep,
		Usage:   exec.Usage,
		Elapsed: time.Since(exec.StartedAt),
	}
	if l.trajectory != nil {
		l.trajectory.RecordSummary(l.id, exec)
	}
	l.publish(protocol.EventRun, protocol.RunEventCompleted, map[string]interface{}{
		"steps":  exec.CurrentStep,
		"tokens": exec.Usage.Total(),
	})
	slog.Info("loop: run completed",
		"run_id", l.id,
		"steps", exec.CurrentStep,
		"tokens", exec.Usage.Total(),
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, nil
}

func (l *Loop) fail(exec *Execution, rerr *RunError) (*RunResult, error) {
	exec.Status = StatusFailed
	if l.trajectory != nil {
		l.trajectory.RecordSummary(l.id, exec)
	}
	l.publish(protocol.EventRun, protocol.RunEventFailed, map[string]interface{}{
		"step":  exec.CurrentStep,
		"error": rerr.Error(),
	})
	slog.Error("loop: run failed",
		"run_id", l.id,
		"step", exec.CurrentStep,
		"code", rerr.Code,
		"error", rerr.Err,
	)
	return nil, rerr
}

func (l *Loop) publish(name, subtype string, payload map[string]interface{}) {
	if l.statusBus == nil {
		return
	}
	l.statusBus.Publish(bus.Event{
		Name:    name,
		Type:    subtype,
		RunID:   l.id,
		Payload: payload,
	})
}
