// Package model defines the provider abstraction: a uniform contract over
// heterogeneous LLM backends producing a lazy, ordered, finite stream of
// partial text deltas and tool-call requests. The sequence is consumed once;
// regeneration requires a fresh Generate call. Supplying tool-role messages
// in a subsequent request resumes generation after a tool round.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/educaia/agenthub/core"
)

// Reasoning effort levels accepted by Settings. Providers that have no
// reasoning control ignore the field.
const (
	ReasoningLow  = "low"
	ReasoningHigh = "high"
)

// Settings carries per-request generation parameters. Zero values fall back
// to the adapter's configured defaults.
type Settings struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxTokens       int64   `json:"max_tokens,omitempty"`
	ReasoningEffort string  `json:"reasoning_effort,omitempty"`
}

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (minimal subset).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	Instructions string           `json:"instructions"`     // System prompt
	Messages     []core.Message   `json:"messages"`         // Ordered history incl. tool results
	Tools        []ToolDefinition `json:"tools,omitempty"`  // Exposed tool schemas
	Model        string           `json:"model,omitempty"`  // Model id override; empty uses adapter default
	Settings     Settings         `json:"settings"`         // Generation parameters
	Stream       bool             `json:"stream,omitempty"` // Deliver partial deltas
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial chunks carry one text delta each, in provider emission order.
// The final chunk carries the assembled message (text plus any tool-call
// parts), the finish reason and usage when the provider reports it.
type Response struct {
	Partial      bool         `json:"partial"`
	Reasoning    bool         `json:"reasoning,omitempty"` // Partial carries a reasoning delta, not answer text
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", ...
	Usage        *core.Usage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	// Generate starts one generation pass. The response channel is closed
	// when the sequence finishes; the error channel carries at most one
	// terminal error. Both close on context cancellation.
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Registry resolves provider/model identifiers to configured Model instances.
// It is constructed once at startup and injected; there is no ambient global.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Model // provider and provider/name keys
	fallback Model
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register makes a model resolvable by its provider name and by
// provider/name. The first registered model becomes the fallback.
func (r *Registry) Register(m Model) {
	info := m.Info()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[info.Provider] = m
	r.models[info.Provider+"/"+info.Name] = m
	if r.fallback == nil {
		r.fallback = m
	}
}

// Resolve returns the model for the given provider and optional model name.
// Empty provider resolves to the fallback.
func (r *Registry) Resolve(provider, name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if provider == "" {
		if r.fallback == nil {
			return nil, fmt.Errorf("no models registered")
		}
		return r.fallback, nil
	}
	if name != "" {
		if m, ok := r.models[provider+"/"+name]; ok {
			return m, nil
		}
	}
	if m, ok := r.models[provider]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no model registered for provider %q", provider)
}
