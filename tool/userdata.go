package tool

import (
	"context"
	"fmt"

	"github.com/educaia/agenthub/core"
)

// UserDirectory resolves profile data for the authenticated user. Identity
// management lives outside this subsystem; the directory is consumed as an
// interface.
type UserDirectory interface {
	GetUser(ctx context.Context, tenantID, userID string) (map[string]any, error)
}

// NewUserDataTool builds the get_user_data tool. It only ever looks up the
// requesting user; the model cannot ask for other users' data.
func NewUserDataTool(directory UserDirectory) *FunctionTool {
	return NewFunctionTool(
		"get_user_data",
		"Get profile data of the user asking the question (name, role, enrolled subjects).",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			user, err := directory.GetUser(toolCtx.Context(), toolCtx.TenantID(), toolCtx.UserID())
			if err != nil {
				return nil, fmt.Errorf("user lookup failed: %w", err)
			}
			return user, nil
		},
	)
}
