package tool

import (
	"github.com/educaia/agenthub/core"
)

// AgentOverview is the catalog projection of a registered agent exposed to
// the list_agents / get_agent_details tools. Instructions are deliberately
// excluded; system prompts are not user-visible data.
type AgentOverview struct {
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	Model    string   `json:"model,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Tools    []string `json:"tools,omitempty"`
}

// AgentCatalog is the read-only registry view the agent tools operate on.
// The agent package's Registry implements it.
type AgentCatalog interface {
	ListAgents() []AgentOverview
	AgentOverview(name string) (AgentOverview, bool)
}

// NewListAgentsTool builds the list_agents tool over the given catalog.
func NewListAgentsTool(catalog AgentCatalog) *FunctionTool {
	return NewFunctionTool(
		"list_agents",
		"List the available assistant agents with their categories and tags.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			agents := catalog.ListAgents()
			return map[string]any{"agents": agents, "count": len(agents)}, nil
		},
	)
}

// NewGetAgentDetailsTool builds the get_agent_details tool over the given catalog.
func NewGetAgentDetailsTool(catalog AgentCatalog) *FunctionTool {
	return NewFunctionTool(
		"get_agent_details",
		"Get the configuration details of one assistant agent by name.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Registered agent name",
				},
			},
			"required": []string{"name"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			overview, ok := catalog.AgentOverview(name)
			if !ok {
				return nil, NewToolError("get_agent_details", "agent "+name+" is not registered", CodeExecution)
			}
			return overview, nil
		},
	)
}
