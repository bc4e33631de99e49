// Package agenthub provides a high-level façade over the streaming engine
// and its service abstractions (agents, models, conversations, feedback &
// logging) for embedding the chat subsystem in a larger backend. Most
// applications interact with this package by:
//  1. Creating an AgentHub via New() (optionally overriding the default
//     in-memory stores)
//  2. Registering one or more agents and models
//  3. Streaming chat requests through Stream
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments supply the SQLite stores, real provider
// adapters and a structured logger.
package agenthub

import (
	"context"

	"github.com/educaia/agenthub/agent"
	"github.com/educaia/agenthub/conversation"
	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/engine"
	"github.com/educaia/agenthub/feedback"
	"github.com/educaia/agenthub/logging"
	"github.com/educaia/agenthub/model"
	"github.com/educaia/agenthub/tool"
)

// Options configures the AgentHub instance. Zero-value fields fall back to
// in-memory defaults.
type Options struct {
	// Conversations persists chat history. Defaults to the in-memory store.
	Conversations core.ConversationStore

	// Feedback persists like/dislike records. Defaults to the in-memory store.
	Feedback core.FeedbackStore

	// Tools is the catalog agents may bind by name.
	Tools []tool.Tool

	// Limits bounds individual streams (tool rounds, approval TTL, timeouts).
	Limits engine.Limits

	// DefaultAgent handles requests that name no agent.
	DefaultAgent string

	// Logger receives structured engine and transport logs. Defaults to a
	// no-op logger.
	Logger logging.Logger
}

// AgentHub bundles the registries, stores and engine of one chat subsystem
// instance. Construct it once at startup and share it; all methods are safe
// for concurrent use.
type AgentHub struct {
	models        *model.Registry
	agents        *agent.Registry
	factory       *agent.Factory
	conversations core.ConversationStore
	feedback      core.FeedbackStore
	engine        *engine.Engine
}

// New constructs an AgentHub with the given options.
func New(optFns ...func(o *Options)) (*AgentHub, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Conversations == nil {
		opts.Conversations = conversation.NewInMemoryStore()
	}
	if opts.Feedback == nil {
		opts.Feedback = feedback.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	models := model.NewRegistry()
	agents := agent.NewRegistry()

	eng, err := engine.New(engine.Options{
		Models:        models,
		Agents:        agents,
		Conversations: opts.Conversations,
		Logger:        opts.Logger,
		Limits:        opts.Limits,
		DefaultAgent:  opts.DefaultAgent,
	})
	if err != nil {
		return nil, err
	}

	return &AgentHub{
		models:        models,
		agents:        agents,
		factory:       agent.NewFactory(agents, opts.Tools),
		conversations: opts.Conversations,
		feedback:      opts.Feedback,
		engine:        eng,
	}, nil
}

// RegisterModel makes a model resolvable by provider (and provider/name).
// The first registered model becomes the fallback.
func (h *AgentHub) RegisterModel(m model.Model) { h.models.Register(m) }

// RegisterAgent validates the config, binds its tools and registers the
// resulting descriptor. Re-registration under the same name overwrites.
func (h *AgentHub) RegisterAgent(cfg agent.Config) (*agent.Descriptor, error) {
	return h.factory.Create(cfg)
}

// Stream runs one chat invocation, emitting events into sink. See
// engine.Engine.Stream for the error contract.
func (h *AgentHub) Stream(ctx context.Context, req engine.ChatRequest, sink core.Sink) error {
	return h.engine.Stream(ctx, req, sink)
}

// ResolveApproval delivers an external decision for a pending sensitive tool
// call.
func (h *AgentHub) ResolveApproval(toolCallID string, approved bool) error {
	return h.engine.ResolveApproval(toolCallID, approved)
}

// SaveFeedback records one like/dislike submission.
func (h *AgentHub) SaveFeedback(ctx context.Context, record core.FeedbackRecord) error {
	return h.feedback.Save(ctx, record)
}

// Conversations exposes the conversation store for transports that serve
// history endpoints.
func (h *AgentHub) Conversations() core.ConversationStore { return h.conversations }

// Engine exposes the underlying engine for transports.
func (h *AgentHub) Engine() *engine.Engine { return h.engine }
