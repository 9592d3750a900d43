package providers

// Message roles in the conversation transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation transcript.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages, correlates to the call
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
// Arguments is the raw JSON string as returned by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolFunctionSchema describes a callable function for the provider API.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolDefinition is the wire format for advertising a tool to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function ToolFunctionSchema `json:"function"`
}

// ChatRequest is the provider-agnostic chat completion request.
type ChatRequest struct {
	Model             string
	Messages          []Message
	Tools             []ToolDefinition
	Temperature       float64
	MaxTokens         int
	ParallelToolCalls bool // ignored by providers that cannot honor it
}

// Usage is token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input + output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ChatResponse is the provider-agnostic chat completion response.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop", "tool_calls", "length", ...
	Usage        Usage
	Model        string
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ChatResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }
