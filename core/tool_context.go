package core

import (
	"context"

	"github.com/educaia/agenthub/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked by the engine. It carries the request scope and the
// function call correlation id; tools must not access state outside the scope
// handed to them.
type ToolContext struct {
	ctx            context.Context
	scope          Scope
	conversationID string
	toolCallID     string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a request scope and a
// unique toolCallID.
func NewToolContext(ctx context.Context, scope Scope, conversationID, toolCallID string, logger logging.Logger) *ToolContext {
	return &ToolContext{
		ctx:            ctx,
		scope:          scope,
		conversationID: conversationID,
		toolCallID:     toolCallID,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation. It is
// cancelled when the stream aborts or the engine's tool timeout elapses.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Scope returns the tenant/user identity of the invoking request.
func (tc *ToolContext) Scope() Scope { return tc.scope }

// TenantID returns the tenant identifier of the invoking request.
func (tc *ToolContext) TenantID() string { return tc.scope.TenantID }

// UserID returns the authenticated user identifier of the invoking request.
func (tc *ToolContext) UserID() string { return tc.scope.UserID }

// SchoolID returns the school identifier of the invoking request, if any.
func (tc *ToolContext) SchoolID() string { return tc.scope.SchoolID }

// ConversationID returns the id of the conversation being streamed.
func (tc *ToolContext) ConversationID() string { return tc.conversationID }

// ToolCallID returns the id correlating the model's request with this execution.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }
