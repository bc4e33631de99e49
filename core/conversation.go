package core

import (
	"context"
	"time"
)

// Conversation is the durable, append-only ordered record of a chat between
// one user and one agent within one tenant. Deletion is a tombstone; the
// record survives for audit purposes but becomes invisible to its scope.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary is the list-view projection of a conversation.
// Title is derived from the first user message.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationStore persists conversations and their ordered messages. Every
// operation is scoped by (tenantID, userID); access outside that scope fails
// with *NotFoundError so existence never leaks across tenants.
type ConversationStore interface {
	// Create allocates a new empty conversation owned by the scope.
	Create(ctx context.Context, scope Scope) (*Conversation, error)

	// Append adds a message to the end of the conversation.
	Append(ctx context.Context, scope Scope, conversationID string, msg Message) error

	// History returns all messages in creation order with parts intact.
	History(ctx context.Context, scope Scope, conversationID string) ([]Message, error)

	// List returns summaries of the scope's conversations, most recently
	// updated first, excluding tombstoned ones. limit <= 0 means no limit.
	List(ctx context.Context, scope Scope, limit int) ([]ConversationSummary, error)

	// Delete tombstones the conversation. The record is retained internally.
	Delete(ctx context.Context, scope Scope, conversationID string) error
}
