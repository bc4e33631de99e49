// Package tool implements the tool calling subsystem that lets agents invoke
// structured capabilities (knowledge retrieval, database lookups, navigation
// hints, user data) with schema validated arguments and consistent error
// handling. Tools are stateless; any per-call state lives in the invocation,
// not the tool.
package tool

import (
	"fmt"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/internal/util"
	"github.com/educaia/agenthub/model"
)

// Tool defines the interface for extending agents with callable capabilities.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case) and descriptions
//   - Define a proper JSON schema for parameters
//   - Stay inside the scope carried by the ToolContext
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool within an agent's
	// bound set.
	Name() string

	// Description returns a human-readable description provided to the LLM
	// to help it decide when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Sensitive reports whether the tool requires explicit human approval
	// before execution. The engine enforces the gate, not the tool.
	Sensitive() bool

	// Call executes the tool with parsed arguments and the request-scoped
	// ToolContext. Failures are reported as *ToolError; the engine treats
	// them as recoverable.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError codes used across implementations.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution. It never
// aborts a stream; the engine reflects it in-band as a tool_result error
// marker so the model can react in its next turn.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Definitions converts tools to the model-facing schema declarations,
// preserving the given order.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
