package conversation

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educaia/agenthub/core"
)

// storeUnderTest runs the shared suite against every implementation.
func storeUnderTest(t *testing.T, name string, build func(t *testing.T) core.ConversationStore) {
	t.Helper()
	t.Run(name+"/AppendHistoryRoundTrip", func(t *testing.T) { testAppendHistory(t, build(t)) })
	t.Run(name+"/ScopeIsolation", func(t *testing.T) { testScopeIsolation(t, build(t)) })
	t.Run(name+"/TombstoneDelete", func(t *testing.T) { testTombstoneDelete(t, build(t)) })
	t.Run(name+"/ListOrderAndLimit", func(t *testing.T) { testListOrder(t, build(t)) })
	t.Run(name+"/TitleFromFirstUserMessage", func(t *testing.T) { testTitleRole(t, build(t)) })
	t.Run(name+"/TitleRuneTruncation", func(t *testing.T) { testTitleTruncation(t, build(t)) })
}

func TestInMemoryStore(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T) core.ConversationStore {
		return NewInMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeUnderTest(t, "sqlite", func(t *testing.T) core.ConversationStore {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

var testScope = core.Scope{TenantID: "t1", UserID: "u1"}

func testAppendHistory(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	user := core.NewUserMessage("Como criar um agente?")
	assistant := core.NewMessage(core.RoleAssistant,
		core.TextPart{Text: "Acesse a tela de agentes."},
		core.ToolCallPart{ToolCall: core.ToolCall{ID: "c1", Name: "knowledge_search"}},
	)
	toolMsg := core.NewToolResultMessage(core.ToolResult{ID: "c1", Name: "knowledge_search", Result: "ok"})

	require.NoError(t, store.Append(ctx, testScope, conv.ID, user))
	require.NoError(t, store.Append(ctx, testScope, conv.ID, assistant))
	require.NoError(t, store.Append(ctx, testScope, conv.ID, toolMsg))

	history, err := store.History(ctx, testScope, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "Como criar um agente?", history[0].Text())

	calls := history[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)

	results := history[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Result)
}

func testScopeIsolation(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)

	other := core.Scope{TenantID: "t2", UserID: "u1"}
	var notFound *core.NotFoundError

	_, err = store.History(ctx, other, conv.ID)
	assert.ErrorAs(t, err, &notFound)

	err = store.Append(ctx, other, conv.ID, core.NewUserMessage("hi"))
	assert.ErrorAs(t, err, &notFound)

	err = store.Delete(ctx, other, conv.ID)
	assert.ErrorAs(t, err, &notFound)

	otherUser := core.Scope{TenantID: "t1", UserID: "u2"}
	_, err = store.History(ctx, otherUser, conv.ID)
	assert.ErrorAs(t, err, &notFound)

	summaries, err := store.List(ctx, other, 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func testTombstoneDelete(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, testScope, conv.ID, core.NewUserMessage("hello")))

	require.NoError(t, store.Delete(ctx, testScope, conv.ID))

	var notFound *core.NotFoundError
	_, err = store.History(ctx, testScope, conv.ID)
	assert.ErrorAs(t, err, &notFound)

	err = store.Delete(ctx, testScope, conv.ID)
	assert.ErrorAs(t, err, &notFound)

	summaries, err := store.List(ctx, testScope, 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func testListOrder(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	first, err := store.Create(ctx, testScope)
	require.NoError(t, err)
	second, err := store.Create(ctx, testScope)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, testScope, first.ID, core.NewUserMessage("primeira conversa sobre presença")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Append(ctx, testScope, second.ID, core.NewUserMessage("segunda conversa")))
	time.Sleep(2 * time.Millisecond)
	// Touch the first conversation again so it becomes the most recent.
	require.NoError(t, store.Append(ctx, testScope, first.ID, core.NewUserMessage("mais uma pergunta")))

	summaries, err := store.List(ctx, testScope, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, first.ID, summaries[0].ID)
	assert.Equal(t, "primeira conversa sobre presença", summaries[0].Title)

	limited, err := store.List(ctx, testScope, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ID)
}

func testTitleRole(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)

	greeting := core.NewMessage(core.RoleAssistant, core.TextPart{Text: "Olá! Como posso ajudar?"})
	require.NoError(t, store.Append(ctx, testScope, conv.ID, greeting))
	require.NoError(t, store.Append(ctx, testScope, conv.ID, core.NewUserMessage("Como lançar presença?")))

	summaries, err := store.List(ctx, testScope, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Como lançar presença?", summaries[0].Title)
}

func testTitleTruncation(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)

	// 79 ASCII bytes followed by two-byte runes so the 80-byte cut would
	// land mid-rune.
	long := strings.Repeat("a", 79) + "çãé"
	require.NoError(t, store.Append(ctx, testScope, conv.ID, core.NewUserMessage(long)))

	summaries, err := store.List(ctx, testScope, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	title := summaries[0].Title
	assert.LessOrEqual(t, len(title), 80)
	assert.True(t, utf8.ValidString(title))
	assert.True(t, strings.HasPrefix(long, title))
}

func TestInMemoryDeleteRetainsTombstone(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, testScope, conv.ID, core.NewUserMessage("hello")))
	require.NoError(t, store.Delete(ctx, testScope, conv.ID))

	store.mu.RLock()
	stored, ok := store.conversations[conv.ID]
	store.mu.RUnlock()
	require.True(t, ok, "deleted conversation must stay in the map")
	assert.True(t, stored.deleted)
	assert.Len(t, stored.conv.Messages, 1)
}

func TestSQLiteDeleteRetainsTombstone(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	conv, err := store.Create(ctx, testScope)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, testScope, conv.ID, core.NewUserMessage("hello")))
	require.NoError(t, store.Delete(ctx, testScope, conv.ID))

	var deletedAt sql.NullString
	require.NoError(t, store.db.QueryRow(
		"SELECT deleted_at FROM conversations WHERE id = ?", conv.ID).Scan(&deletedAt))
	assert.True(t, deletedAt.Valid, "tombstone must be set, not the row removed")

	var messages int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conv.ID).Scan(&messages))
	assert.Equal(t, 1, messages)
}
