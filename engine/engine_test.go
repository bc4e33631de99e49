package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educaia/agenthub/agent"
	"github.com/educaia/agenthub/conversation"
	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/model"
	"github.com/educaia/agenthub/tool"
)

// scriptedTurn describes one Generate pass of the scripted model.
type scriptedTurn struct {
	reasoning []string
	deltas    []string
	parts     []core.Part
	usage     *core.Usage
	err       error
}

// scriptedModel replays a fixed sequence of turns, one per Generate call.
type scriptedModel struct {
	mu    sync.Mutex
	turns []scriptedTurn
	calls int
}

func (m *scriptedModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	m.mu.Lock()
	m.calls++
	var turn scriptedTurn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	}
	m.mu.Unlock()

	respCh := make(chan model.Response, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		if turn.err != nil {
			errCh <- turn.err
			return
		}
		for _, d := range turn.reasoning {
			respCh <- model.Response{
				Partial:   true,
				Reasoning: true,
				Message:   core.NewMessage(core.RoleAssistant, core.TextPart{Text: d}),
			}
		}
		for _, d := range turn.deltas {
			respCh <- model.Response{
				Partial: true,
				Message: core.NewMessage(core.RoleAssistant, core.TextPart{Text: d}),
			}
		}
		finish := "stop"
		final := core.NewMessage(core.RoleAssistant, turn.parts...)
		if len(final.ToolCalls()) > 0 {
			finish = "tool_calls"
		}
		respCh <- model.Response{Message: final, FinishReason: finish, Usage: turn.usage}
	}()
	return respCh, errCh
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "mock", SupportsTools: true}
}

func (m *scriptedModel) generateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type rig struct {
	engine *Engine
	store  *conversation.InMemoryStore
	model  *scriptedModel
}

func newRig(t *testing.T, turns []scriptedTurn, tools []tool.Tool, limits Limits) *rig {
	t.Helper()

	models := model.NewRegistry()
	scripted := &scriptedModel{turns: turns}
	models.Register(scripted)

	agents := agent.NewRegistry()
	factory := agent.NewFactory(agents, tools)
	toolNames := make([]string, 0, len(tools))
	for _, tl := range tools {
		toolNames = append(toolNames, tl.Name())
	}
	_, err := factory.Create(agent.Config{
		Name:         "tester",
		Instructions: "Answer questions.",
		Tools:        toolNames,
	})
	require.NoError(t, err)

	store := conversation.NewInMemoryStore()
	eng, err := New(Options{
		Models:        models,
		Agents:        agents,
		Conversations: store,
		Limits:        limits,
		DefaultAgent:  "tester",
	})
	require.NoError(t, err)

	return &rig{engine: eng, store: store, model: scripted}
}

var rigScope = core.Scope{TenantID: "t1", UserID: "u1"}

func drain(sink *core.ChannelSink) []core.StreamEvent {
	var events []core.StreamEvent
	for ev := range sink.Events() {
		events = append(events, ev)
	}
	return events
}

// requireSingleTerminal asserts that exactly one done/error event exists and
// that it is the last event.
func requireSingleTerminal(t *testing.T, events []core.StreamEvent, want core.EventType) {
	t.Helper()
	require.NotEmpty(t, events)
	terminals := 0
	for _, ev := range events {
		if ev.Type == core.EventDone || ev.Type == core.EventError {
			terminals++
		}
	}
	require.Equal(t, 1, terminals, "stream must carry exactly one terminal event")
	assert.Equal(t, want, events[len(events)-1].Type)
}

func eventTypes(events []core.StreamEvent) []core.EventType {
	out := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStreamEmitsTokensInOrderThenDone(t *testing.T) {
	r := newRig(t, []scriptedTurn{{
		deltas: []string{"Acesse ", "a tela ", "de agentes."},
		parts:  []core.Part{core.TextPart{Text: "Acesse a tela de agentes."}},
		usage:  &core.Usage{PromptTokens: 10, CompletionTokens: 6, TotalTokens: 16},
	}}, nil, Limits{})

	sink := core.NewChannelSink(256)
	err := r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "Como criar um agente?"}, sink)
	require.NoError(t, err)

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.Equal(t, []core.EventType{core.EventToken, core.EventToken, core.EventToken, core.EventUsage, core.EventDone}, eventTypes(events))

	var tokens string
	for _, ev := range events[:3] {
		var data core.TokenData
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		tokens += data.Text
	}
	assert.Equal(t, "Acesse a tela de agentes.", tokens)

	var done core.DoneData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &done))
	assert.NotEmpty(t, done.ConversationID)
	assert.Equal(t, "Acesse a tela de agentes.", done.Answer)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 16, done.Usage.TotalTokens)

	history, err := r.store.History(context.Background(), rigScope, done.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
}

func TestStreamPersistsSeedTurnsOnNewConversation(t *testing.T) {
	r := newRig(t, []scriptedTurn{{
		parts: []core.Part{core.TextPart{Text: "Prazer, Ana."}},
	}}, nil, Limits{})

	sink := core.NewChannelSink(256)
	err := r.engine.Stream(context.Background(), ChatRequest{
		Scope: rigScope,
		Seed: []core.Message{
			core.NewUserMessage("Meu nome é Ana."),
			core.NewMessage(core.RoleAssistant, core.TextPart{Text: "Olá Ana!"}),
		},
		Message: "Qual é o meu nome?",
	}, sink)
	require.NoError(t, err)

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)

	var done core.DoneData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &done))

	history, err := r.store.History(context.Background(), rigScope, done.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "Meu nome é Ana.", history[0].Text())
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.Equal(t, "Olá Ana!", history[1].Text())
	assert.Equal(t, "Qual é o meu nome?", history[2].Text())
	assert.Equal(t, "Prazer, Ana.", history[3].Text())
}

func TestStreamReasoningDeltasGatedByRequest(t *testing.T) {
	turns := func() []scriptedTurn {
		return []scriptedTurn{{
			reasoning: []string{"avaliando a pergunta"},
			deltas:    []string{"Acesse a tela de agentes."},
			parts:     []core.Part{core.TextPart{Text: "Acesse a tela de agentes."}},
		}}
	}

	r := newRig(t, turns(), nil, Limits{})
	sink := core.NewChannelSink(256)
	err := r.engine.Stream(context.Background(), ChatRequest{
		Scope:         rigScope,
		Message:       "Como criar um agente?",
		SendReasoning: true,
	}, sink)
	require.NoError(t, err)

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.Equal(t, []core.EventType{core.EventReasoning, core.EventToken, core.EventDone}, eventTypes(events))

	var data core.ReasoningData
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, "avaliando a pergunta", data.Text)

	// Without the flag the same script yields no reasoning event.
	r = newRig(t, turns(), nil, Limits{})
	sink = core.NewChannelSink(256)
	err = r.engine.Stream(context.Background(), ChatRequest{
		Scope:   rigScope,
		Message: "Como criar um agente?",
	}, sink)
	require.NoError(t, err)

	events = drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.Equal(t, []core.EventType{core.EventToken, core.EventDone}, eventTypes(events))
}

func searchCall(id string) core.Part {
	return core.ToolCallPart{ToolCall: core.ToolCall{
		ID:        id,
		Name:      "knowledge_search",
		Arguments: json.RawMessage(`{"query":"agentes"}`),
	}}
}

type fakeSearcher struct{ results []core.SearchResult }

func (s fakeSearcher) Search(context.Context, string, string, int) ([]core.SearchResult, error) {
	return s.results, nil
}

func TestStreamToolRound(t *testing.T) {
	searchTool := tool.NewKnowledgeSearchTool(fakeSearcher{results: []core.SearchResult{{ID: "d1", Content: "Abra a tela de agentes.", Score: 1}}})
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{searchCall("c1")}},
		{deltas: []string{"Abra a tela de agentes."}, parts: []core.Part{core.TextPart{Text: "Abra a tela de agentes."}}},
	}, []tool.Tool{searchTool}, Limits{})

	sink := core.NewChannelSink(256)
	err := r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "Como criar um agente?"}, sink)
	require.NoError(t, err)

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.Equal(t, []core.EventType{core.EventToolCall, core.EventToolResult, core.EventToken, core.EventDone}, eventTypes(events))

	var call core.ToolCall
	require.NoError(t, json.Unmarshal(events[0].Data, &call))
	var result core.ToolResult
	require.NoError(t, json.Unmarshal(events[1].Data, &result))
	assert.Equal(t, call.ID, result.ID)
	assert.Empty(t, result.Error)
	assert.False(t, result.Rejected)

	var done core.DoneData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &done))

	// One new user message and one new assistant message, the latter carrying
	// the tool round parts alongside the answer text.
	history, err := r.store.History(context.Background(), rigScope, done.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	record := history[1]
	assert.Equal(t, core.RoleAssistant, record.Role)
	require.Len(t, record.ToolCalls(), 1)
	require.Len(t, record.ToolResults(), 1)
	assert.Equal(t, "Abra a tela de agentes.", record.Text())
}

func TestStreamToolFailureIsNotFatal(t *testing.T) {
	failing := tool.NewFunctionTool("knowledge_search", "Search",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, fmt.Errorf("index unavailable")
		})
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{searchCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "Não consegui pesquisar agora."}}},
	}, []tool.Tool{failing}, Limits{})

	sink := core.NewChannelSink(256)
	require.NoError(t, r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "oi"}, sink))

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)

	var result core.ToolResult
	require.NoError(t, json.Unmarshal(events[1].Data, &result))
	assert.Contains(t, result.Error, "index unavailable")
	assert.False(t, result.Rejected)
}

// sensitiveTool records whether it ever executed.
type sensitiveTool struct {
	mu       sync.Mutex
	executed bool
}

func (s *sensitiveTool) Name() string               { return "database_query" }
func (s *sensitiveTool) Description() string        { return "Query" }
func (s *sensitiveTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *sensitiveTool) Sensitive() bool            { return true }

func (s *sensitiveTool) wasExecuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

func (s *sensitiveTool) Call(_ *core.ToolContext, _ map[string]any) (any, error) {
	s.mu.Lock()
	s.executed = true
	s.mu.Unlock()
	return map[string]any{"rows": 1}, nil
}

func dbCall(id string) core.Part {
	return core.ToolCallPart{ToolCall: core.ToolCall{ID: id, Name: "database_query", Arguments: json.RawMessage(`{}`)}}
}

func runApprovalStream(t *testing.T, r *rig, approve bool) []core.StreamEvent {
	t.Helper()
	sink := core.NewChannelSink(256)

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "liste alunos"}, sink)
	}()

	// The approval becomes resolvable once the engine suspends on it.
	require.Eventually(t, func() bool {
		return r.engine.ResolveApproval("c1", approve) == nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, <-streamDone)
	return drain(sink)
}

func TestStreamSensitiveToolApproved(t *testing.T) {
	st := &sensitiveTool{}
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{dbCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "Aqui estão os alunos."}}},
	}, []tool.Tool{st}, Limits{})

	events := runApprovalStream(t, r, true)
	requireSingleTerminal(t, events, core.EventDone)
	assert.True(t, st.wasExecuted())

	var result core.ToolResult
	require.NoError(t, json.Unmarshal(events[1].Data, &result))
	assert.False(t, result.Rejected)
	assert.Empty(t, result.Error)
}

func TestStreamSensitiveToolRejected(t *testing.T) {
	st := &sensitiveTool{}
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{dbCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "Tudo bem, não vou consultar."}}},
	}, []tool.Tool{st}, Limits{})

	events := runApprovalStream(t, r, false)
	requireSingleTerminal(t, events, core.EventDone)
	assert.False(t, st.wasExecuted(), "rejected call must not execute")

	var result core.ToolResult
	require.NoError(t, json.Unmarshal(events[1].Data, &result))
	assert.True(t, result.Rejected)
}

func TestStreamApprovalExpiryIsRejection(t *testing.T) {
	st := &sensitiveTool{}
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{dbCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "Sem aprovação, não consultei."}}},
	}, []tool.Tool{st}, Limits{ApprovalTTL: 30 * time.Millisecond})

	sink := core.NewChannelSink(256)
	require.NoError(t, r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "liste alunos"}, sink))

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.False(t, st.wasExecuted())

	var result core.ToolResult
	require.NoError(t, json.Unmarshal(events[1].Data, &result))
	assert.True(t, result.Rejected)
}

func TestStreamMaxToolRoundsExceeded(t *testing.T) {
	echo := tool.NewFunctionTool("knowledge_search", "Search",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) { return "ok", nil })
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{searchCall("c1")}},
		{parts: []core.Part{searchCall("c2")}},
		{parts: []core.Part{core.TextPart{Text: "never reached"}}},
	}, []tool.Tool{echo}, Limits{MaxToolRounds: 1})

	sink := core.NewChannelSink(256)
	require.NoError(t, r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "oi"}, sink))

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventError)

	var errData core.ErrorData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &errData))
	assert.Contains(t, errData.Message, "tool call limit")
}

func TestStreamProviderTransientRetry(t *testing.T) {
	r := newRig(t, []scriptedTurn{
		{err: &core.ProviderError{Provider: "mock", Transient: true, Err: fmt.Errorf("rate limited")}},
		{parts: []core.Part{core.TextPart{Text: "ok"}}},
	}, nil, Limits{RetryBackoff: time.Millisecond})

	sink := core.NewChannelSink(256)
	require.NoError(t, r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "oi"}, sink))

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventDone)
	assert.Equal(t, 2, r.model.generateCalls())
}

func TestStreamProviderPermanentErrorIsTerminal(t *testing.T) {
	r := newRig(t, []scriptedTurn{
		{err: &core.ProviderError{Provider: "mock", Err: fmt.Errorf("invalid api key")}},
		{parts: []core.Part{core.TextPart{Text: "never reached"}}},
	}, nil, Limits{RetryBackoff: time.Millisecond})

	sink := core.NewChannelSink(256)
	require.NoError(t, r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Message: "oi"}, sink))

	events := drain(sink)
	requireSingleTerminal(t, events, core.EventError)
	assert.Equal(t, 1, r.model.generateCalls())

	var errData core.ErrorData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &errData))
	assert.NotContains(t, errData.Message, "api key", "provider detail must not leak")
}

func TestStreamConversationBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := tool.NewFunctionTool("knowledge_search", "Search",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			close(started)
			select {
			case <-release:
			case <-toolCtx.Context().Done():
			}
			return "ok", nil
		})
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{searchCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "done"}}},
	}, []tool.Tool{blocking}, Limits{})

	conv, err := r.store.Create(context.Background(), rigScope)
	require.NoError(t, err)

	first := core.NewChannelSink(256)
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, ConversationID: conv.ID, Message: "oi"}, first)
	}()

	// The first stream holds the conversation once its tool starts.
	<-started
	second := core.NewChannelSink(1)
	err = r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, ConversationID: conv.ID, Message: "oi"}, second)
	assert.ErrorIs(t, err, core.ErrConversationBusy)

	close(release)
	require.NoError(t, <-firstDone)
	events := drain(first)
	requireSingleTerminal(t, events, core.EventDone)
}

func TestStreamCancellationStopsWithoutTerminalEvent(t *testing.T) {
	started := make(chan struct{})
	blocking := tool.NewFunctionTool("knowledge_search", "Search",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			close(started)
			<-toolCtx.Context().Done()
			return nil, toolCtx.Context().Err()
		})
	r := newRig(t, []scriptedTurn{
		{parts: []core.Part{searchCall("c1")}},
		{parts: []core.Part{core.TextPart{Text: "never reached"}}},
	}, []tool.Tool{blocking}, Limits{})

	ctx, cancel := context.WithCancel(context.Background())
	sink := core.NewChannelSink(256)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- r.engine.Stream(ctx, ChatRequest{Scope: rigScope, Message: "oi"}, sink)
	}()

	<-started
	cancel()
	require.NoError(t, <-streamDone)

	for _, ev := range drain(sink) {
		assert.NotEqual(t, core.EventDone, ev.Type)
		assert.NotEqual(t, core.EventError, ev.Type)
	}
}

func TestStreamPreflightErrors(t *testing.T) {
	r := newRig(t, nil, nil, Limits{})
	sink := core.NewChannelSink(1)

	err := r.engine.Stream(context.Background(), ChatRequest{Scope: core.Scope{}, Message: "oi"}, sink)
	var authErr *core.AuthContextError
	assert.ErrorAs(t, err, &authErr)

	err = r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, Agent: "ghost", Message: "oi"}, sink)
	var agentErr *core.AgentNotFoundError
	assert.ErrorAs(t, err, &agentErr)

	err = r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope, ConversationID: "missing", Message: "oi"}, sink)
	var notFound *core.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	err = r.engine.Stream(context.Background(), ChatRequest{Scope: rigScope}, sink)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestResolveApprovalUnknownID(t *testing.T) {
	r := newRig(t, nil, nil, Limits{})
	assert.ErrorIs(t, r.engine.ResolveApproval("ghost", true), ErrApprovalNotFound)
}
