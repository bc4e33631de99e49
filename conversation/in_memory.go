// Package conversation provides ConversationStore implementations: a
// volatile in-memory store for tests and demos, and a SQLite store for
// durable deployments. Both enforce (tenant, user) scoping and tombstone
// deletes.
package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/educaia/agenthub/core"
)

// NewConversationID generates a lexicographically sortable conversation id.
func NewConversationID() string { return ulid.Make().String() }

// maxTitleLen bounds conversation titles in list views.
const maxTitleLen = 80

// truncateTitle shortens a title to maxTitleLen bytes without splitting a
// multi-byte rune.
func truncateTitle(title string) string {
	if len(title) <= maxTitleLen {
		return title
	}
	cut := maxTitleLen
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}

type storedConversation struct {
	conv    core.Conversation
	deleted bool
}

// InMemoryStore is a process-local ConversationStore safe for concurrent
// access. Returned conversations and messages are copies to prevent external
// mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*storedConversation
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*storedConversation)}
}

// Create implements core.ConversationStore.
func (s *InMemoryStore) Create(_ context.Context, scope core.Scope) (*core.Conversation, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	conv := core.Conversation{
		ID:        NewConversationID(),
		TenantID:  scope.TenantID,
		UserID:    scope.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.conversations[conv.ID] = &storedConversation{conv: conv}
	s.mu.Unlock()

	out := conv
	return &out, nil
}

// Append implements core.ConversationStore.
func (s *InMemoryStore) Append(_ context.Context, scope core.Scope, conversationID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.lookupLocked(scope, conversationID)
	if err != nil {
		return err
	}
	stored.conv.Messages = append(stored.conv.Messages, msg)
	stored.conv.UpdatedAt = time.Now().UTC()
	return nil
}

// History implements core.ConversationStore, returning messages in creation
// order with all parts intact.
func (s *InMemoryStore) History(_ context.Context, scope core.Scope, conversationID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, err := s.lookupLocked(scope, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Message, len(stored.conv.Messages))
	copy(out, stored.conv.Messages)
	return out, nil
}

// List implements core.ConversationStore, most recently updated first.
func (s *InMemoryStore) List(_ context.Context, scope core.Scope, limit int) ([]core.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ConversationSummary
	for _, stored := range s.conversations {
		if stored.deleted || stored.conv.TenantID != scope.TenantID || stored.conv.UserID != scope.UserID {
			continue
		}
		out = append(out, summarize(stored.conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements core.ConversationStore. The record is tombstoned, not
// removed, preserving the audit trail.
func (s *InMemoryStore) Delete(_ context.Context, scope core.Scope, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.lookupLocked(scope, conversationID)
	if err != nil {
		return err
	}
	stored.deleted = true
	stored.conv.UpdatedAt = time.Now().UTC()
	return nil
}

// lookupLocked resolves a live conversation within scope. Cross-scope and
// tombstoned lookups both yield NotFoundError so existence never leaks.
func (s *InMemoryStore) lookupLocked(scope core.Scope, conversationID string) (*storedConversation, error) {
	stored, ok := s.conversations[conversationID]
	if !ok || stored.deleted || stored.conv.TenantID != scope.TenantID || stored.conv.UserID != scope.UserID {
		return nil, &core.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	return stored, nil
}

// summarize projects a conversation into its list view. The title is the
// first user message, truncated.
func summarize(conv core.Conversation) core.ConversationSummary {
	title := ""
	for _, msg := range conv.Messages {
		if msg.Role == core.RoleUser {
			title = truncateTitle(msg.Text())
			break
		}
	}
	return core.ConversationSummary{
		ID:        conv.ID,
		Title:     title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}
