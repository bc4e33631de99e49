// Package agent defines the immutable agent descriptor, the factory that
// validates and constructs descriptors, and the registry used to resolve them
// by name. The registry is explicit and injected; there is no process-global
// lookup, so tests can instantiate isolated registries per case.
package agent

import (
	"github.com/educaia/agenthub/model"
	"github.com/educaia/agenthub/tool"
)

// Strategy selects the execution strategy of an agent. Only the simple
// single-pass strategy exists today; the enum leaves room for more.
type Strategy string

// StrategySimple drives one model loop with optional tool rounds.
const StrategySimple Strategy = "simple"

// Config is the declarative input to the Factory. Tool names are resolved
// against the factory's catalog at construction time.
type Config struct {
	Name         string         `json:"name"`
	Instructions string         `json:"instructions"`
	Provider     string         `json:"provider,omitempty"` // Empty uses the model registry fallback
	Model        string         `json:"model,omitempty"`    // Model identifier for the provider
	Tools        []string       `json:"tools,omitempty"`
	Strategy     Strategy       `json:"strategy,omitempty"` // Defaults to simple
	Category     string         `json:"category,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Settings     model.Settings `json:"settings,omitempty"`
}

// Descriptor is a named, immutable bundle of instructions, bound tools and
// model settings. Descriptors are constructed exclusively by the Factory and
// owned by the Registry after registration.
type Descriptor struct {
	name         string
	instructions string
	provider     string
	model        string
	tools        []tool.Tool
	strategy     Strategy
	category     string
	tags         []string
	settings     model.Settings
}

// Name returns the unique registry key of the agent.
func (d *Descriptor) Name() string { return d.name }

// Instructions returns the system prompt text.
func (d *Descriptor) Instructions() string { return d.instructions }

// Provider returns the model provider identifier, empty for the default.
func (d *Descriptor) Provider() string { return d.provider }

// Model returns the model identifier, empty for the provider default.
func (d *Descriptor) Model() string { return d.model }

// Tools returns a copy of the bound tool set preserving order.
func (d *Descriptor) Tools() []tool.Tool {
	out := make([]tool.Tool, len(d.tools))
	copy(out, d.tools)
	return out
}

// Tool returns the bound tool with the given name.
func (d *Descriptor) Tool(name string) (tool.Tool, bool) {
	for _, t := range d.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Strategy returns the execution strategy.
func (d *Descriptor) Strategy() Strategy { return d.strategy }

// Category returns the descriptive category.
func (d *Descriptor) Category() string { return d.category }

// Tags returns a copy of the descriptive tags.
func (d *Descriptor) Tags() []string {
	out := make([]string, len(d.tags))
	copy(out, d.tags)
	return out
}

// Settings returns the model generation settings.
func (d *Descriptor) Settings() model.Settings { return d.settings }
