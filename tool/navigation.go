package tool

import (
	"strings"

	"github.com/educaia/agenthub/core"
)

// Route describes one navigable screen of the application so answers can
// point users at the right place.
type Route struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DefaultRoutes covers the application's main screens. Deployments can pass
// their own table to NewNavigationTool.
var DefaultRoutes = map[string]Route{
	"dashboard":      {Path: "/dashboard", Title: "Dashboard", Description: "Overview of the school"},
	"agents":         {Path: "/agents", Title: "Agents", Description: "Create and configure assistant agents"},
	"subjects":       {Path: "/subjects", Title: "Subjects", Description: "Manage subjects and time slots"},
	"attendance":     {Path: "/attendance", Title: "Attendance", Description: "Record and review attendance"},
	"billing":        {Path: "/billing", Title: "Billing", Description: "Billing configuration and invoices"},
	"reports":        {Path: "/reports", Title: "Reports", Description: "Generated reports"},
	"pre-enrollment": {Path: "/pre-enrollment", Title: "Pre-enrollment", Description: "Pre-enrollment workflow"},
	"settings":       {Path: "/settings", Title: "Settings", Description: "School and account settings"},
}

// NewNavigationTool builds the navigate tool over a route table. Matching is
// case-insensitive on route key and title.
func NewNavigationTool(routes map[string]Route) *FunctionTool {
	if routes == nil {
		routes = DefaultRoutes
	}
	return NewFunctionTool(
		"navigate",
		"Find the application screen for a task and return its path so the user can be directed there.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"destination": map[string]any{
					"type":        "string",
					"description": "Screen name or task, e.g. 'attendance' or 'create agent'",
				},
			},
			"required": []string{"destination"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			destination, _ := args["destination"].(string)
			needle := strings.ToLower(strings.TrimSpace(destination))

			if route, ok := routes[needle]; ok {
				return route, nil
			}
			for key, route := range routes {
				if strings.Contains(needle, key) || strings.Contains(strings.ToLower(route.Title), needle) {
					return route, nil
				}
			}

			available := make([]string, 0, len(routes))
			for key := range routes {
				available = append(available, key)
			}
			return map[string]any{
				"found":     false,
				"available": available,
			}, nil
		},
	)
}
