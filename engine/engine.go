// Package engine implements the streaming orchestrator: it drives one
// model/tool loop per chat request, persists the conversation as it goes and
// emits the ordered event stream through a transport-agnostic sink.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/educaia/agenthub/agent"
	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/logging"
	"github.com/educaia/agenthub/model"
)

// Limits bounds a single stream. Zero values are replaced by the defaults.
type Limits struct {
	// MaxToolRounds caps the number of model turns that may request tools
	// within one stream. Exceeding it fails the stream.
	MaxToolRounds int

	// ApprovalTTL bounds the approval-pending suspension on sensitive tool
	// calls. Expiry is treated as a rejection.
	ApprovalTTL time.Duration

	// ToolTimeout is the per-call execution deadline. A timed out call
	// surfaces as a recoverable tool error.
	ToolTimeout time.Duration

	// ProviderRetries is the retry budget for transient provider errors.
	ProviderRetries int

	// RetryBackoff is the base delay between provider retries; the delay
	// doubles per attempt.
	RetryBackoff time.Duration
}

// DefaultLimits returns the limits applied when a field is left zero.
func DefaultLimits() Limits {
	return Limits{
		MaxToolRounds:   8,
		ApprovalTTL:     5 * time.Minute,
		ToolTimeout:     15 * time.Second,
		ProviderRetries: 2,
		RetryBackoff:    500 * time.Millisecond,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxToolRounds <= 0 {
		l.MaxToolRounds = d.MaxToolRounds
	}
	if l.ApprovalTTL <= 0 {
		l.ApprovalTTL = d.ApprovalTTL
	}
	if l.ToolTimeout <= 0 {
		l.ToolTimeout = d.ToolTimeout
	}
	if l.ProviderRetries < 0 {
		l.ProviderRetries = d.ProviderRetries
	}
	if l.RetryBackoff <= 0 {
		l.RetryBackoff = d.RetryBackoff
	}
	return l
}

// ChatRequest is the validated input of one stream invocation.
type ChatRequest struct {
	Scope          core.Scope
	Agent          string // Registry name; empty uses the engine default
	ConversationID string // Empty creates a new conversation
	Message        string // Latest user message text

	// Seed holds prior turns supplied by the client. They are persisted
	// ahead of Message when the request creates a new conversation. For an
	// existing conversation the stored history is authoritative and Seed
	// is ignored.
	Seed []core.Message

	// Optional per-request overrides.
	Provider      string
	Model         string
	ResponseMode  string // "fast" or "thorough", maps to reasoning effort
	SendReasoning bool   // Forward provider reasoning deltas as reasoning events
	Temperature   float64
	MaxTokens     int64
}

// Response modes accepted by ChatRequest.
const (
	ResponseModeFast     = "fast"
	ResponseModeThorough = "thorough"
)

// Options configures an Engine.
type Options struct {
	Models        *model.Registry
	Agents        *agent.Registry
	Conversations core.ConversationStore
	Logger        logging.Logger
	Limits        Limits
	DefaultAgent  string // Used when ChatRequest.Agent is empty
}

// Engine coordinates model generation, tool execution and persistence for
// concurrent streams. Streams on distinct conversations run independently; a
// second stream on the same conversation is rejected with ErrConversationBusy.
type Engine struct {
	models        *model.Registry
	agents        *agent.Registry
	conversations core.ConversationStore
	logger        logging.Logger
	limits        Limits
	defaultAgent  string

	approvals *approvalBroker

	mu     sync.Mutex
	active map[string]struct{} // conversation ids with a stream in flight
}

// New constructs an Engine. Models, Agents and Conversations are required.
func New(opts Options) (*Engine, error) {
	if opts.Models == nil {
		return nil, &core.ConfigurationError{Component: "engine", Message: "model registry is required"}
	}
	if opts.Agents == nil {
		return nil, &core.ConfigurationError{Component: "engine", Message: "agent registry is required"}
	}
	if opts.Conversations == nil {
		return nil, &core.ConfigurationError{Component: "engine", Message: "conversation store is required"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Engine{
		models:        opts.Models,
		agents:        opts.Agents,
		conversations: opts.Conversations,
		logger:        logger,
		limits:        opts.Limits.withDefaults(),
		defaultAgent:  opts.DefaultAgent,
		approvals:     newApprovalBroker(),
		active:        make(map[string]struct{}),
	}, nil
}

// ResolveApproval delivers an external decision for a pending sensitive tool
// call. Returns ErrApprovalNotFound when no such approval is pending.
func (e *Engine) ResolveApproval(toolCallID string, approved bool) error {
	return e.approvals.Resolve(toolCallID, approved)
}

// Stream runs one chat invocation, emitting the ordered event sequence into
// sink and closing it after the terminal event. Errors before any event has
// been emitted are returned instead, leaving the sink untouched, so transports
// can map them to a status code.
func (e *Engine) Stream(ctx context.Context, req ChatRequest, sink core.Sink) error {
	if err := req.Scope.Validate(); err != nil {
		return err
	}
	if req.Message == "" {
		return &core.ConfigurationError{Component: "engine", Message: "request message is empty"}
	}

	agentName := req.Agent
	if agentName == "" {
		agentName = e.defaultAgent
	}
	desc, err := e.agents.Get(agentName)
	if err != nil {
		return err
	}

	provider, modelName := desc.Provider(), desc.Model()
	if req.Provider != "" {
		provider, modelName = req.Provider, req.Model
	} else if req.Model != "" {
		modelName = req.Model
	}
	llm, err := e.models.Resolve(provider, modelName)
	if err != nil {
		return &core.ConfigurationError{Component: "engine", Message: err.Error()}
	}

	// Load or create the conversation before claiming the stream slot so
	// cross-scope access fails with NotFound instead of appearing busy.
	var history []core.Message
	created := false
	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := e.conversations.Create(ctx, req.Scope)
		if err != nil {
			return err
		}
		conversationID = conv.ID
		created = true
	} else {
		history, err = e.conversations.History(ctx, req.Scope, conversationID)
		if err != nil {
			return err
		}
	}

	if !e.claim(conversationID) {
		return core.ErrConversationBusy
	}
	defer e.release(conversationID)

	if created {
		for _, msg := range req.Seed {
			if err := e.conversations.Append(ctx, req.Scope, conversationID, msg); err != nil {
				return err
			}
			history = append(history, msg)
		}
	}

	userMsg := core.NewUserMessage(req.Message)
	if err := e.conversations.Append(ctx, req.Scope, conversationID, userMsg); err != nil {
		return err
	}
	history = append(history, userMsg)

	s := &stream{
		engine:         e,
		scope:          req.Scope,
		agent:          desc,
		llm:            llm,
		conversationID: conversationID,
		messages:       history,
		settings:       resolveSettings(desc.Settings(), req),
		modelName:      modelName,
		sendReasoning:  req.SendReasoning,
		sink:           sink,
	}
	s.run(ctx)
	return nil
}

func (e *Engine) claim(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[conversationID]; busy {
		return false
	}
	e.active[conversationID] = struct{}{}
	return true
}

func (e *Engine) release(conversationID string) {
	e.mu.Lock()
	delete(e.active, conversationID)
	e.mu.Unlock()
}

// resolveSettings layers per-request overrides on the agent's settings.
func resolveSettings(base model.Settings, req ChatRequest) model.Settings {
	if req.Temperature != 0 {
		base.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		base.MaxTokens = req.MaxTokens
	}
	switch req.ResponseMode {
	case ResponseModeFast:
		base.ReasoningEffort = model.ReasoningLow
	case ResponseModeThorough:
		base.ReasoningEffort = model.ReasoningHigh
	}
	return base
}
