package tools

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
)

// Tool is the interface all capabilities must implement.
// Implementations must be safe for concurrent Execute calls, or serialize
// internally: the dispatcher may invoke them from multiple goroutines.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	// Execute runs the tool with the raw JSON argument string from the model.
	Execute(ctx context.Context, args string) *Result
}

// ErrNotFound is carried by results for invocations of unregistered names.
var ErrNotFound = errors.New("tool not found")

// ErrDuplicateName is returned when a registry is built with two tools
// sharing a name.
var ErrDuplicateName = errors.New("duplicate tool name")

// Invocation is one tool call requested by the model.
type Invocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"` // raw JSON
}

// ToProviderDef converts a Tool to a providers.ToolDefinition for LLM APIs.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
