package protocol

// Event names broadcast on the status bus.
const (
	EventRun  = "run"
	EventStep = "step"
	EventTool = "tool"
)

// Run event subtypes (in payload.type)
const (
	RunEventStarted   = "run.started"
	RunEventCompleted = "run.completed"
	RunEventFailed    = "run.failed"
	RunEventReflected = "run.reflected"
)

// Step event subtypes (in payload.type)
const (
	StepEventThinking   = "step.thinking"
	StepEventToolCalls  = "step.tool_calls"
	StepEventReflecting = "step.reflecting"
	StepEventFinished   = "step.finished"
)

// Tool event subtypes (in payload.type)
const (
	ToolEventCall   = "tool.call"
	ToolEventResult = "tool.result"
)
