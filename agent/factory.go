package agent

import (
	"fmt"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/tool"
)

// Factory validates agent configurations, binds tool names to implementations
// from its catalog, and registers the frozen descriptor. It is the only
// writer of the Registry.
type Factory struct {
	registry *Registry
	catalog  map[string]tool.Tool
}

// NewFactory creates a factory over the given registry and available tools.
func NewFactory(registry *Registry, available []tool.Tool) *Factory {
	catalog := make(map[string]tool.Tool, len(available))
	for _, t := range available {
		catalog[t.Name()] = t
	}
	return &Factory{registry: registry, catalog: catalog}
}

// Create validates the config, binds tools and registers the descriptor.
// Registration is idempotent: repeated calls with identical config overwrite
// the prior entry with no other side effects. A tool name that cannot be
// resolved fails with *core.ConfigurationError.
func (f *Factory) Create(cfg Config) (*Descriptor, error) {
	if cfg.Name == "" {
		return nil, &core.ConfigurationError{Component: "agent", Message: "name is required"}
	}
	if cfg.Instructions == "" {
		return nil, &core.ConfigurationError{Component: "agent", Message: "instructions are required"}
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategySimple
	}
	if strategy != StrategySimple {
		return nil, &core.ConfigurationError{
			Component: "agent",
			Message:   fmt.Sprintf("unknown strategy %q", strategy),
		}
	}

	tools := make([]tool.Tool, 0, len(cfg.Tools))
	seen := make(map[string]bool, len(cfg.Tools))
	for _, name := range cfg.Tools {
		if seen[name] {
			return nil, &core.ConfigurationError{
				Component: "agent",
				Message:   fmt.Sprintf("tool %q bound twice", name),
			}
		}
		seen[name] = true
		t, ok := f.catalog[name]
		if !ok {
			return nil, &core.ConfigurationError{
				Component: "agent",
				Message:   fmt.Sprintf("tool %q cannot be resolved", name),
			}
		}
		tools = append(tools, t)
	}

	d := &Descriptor{
		name:         cfg.Name,
		instructions: cfg.Instructions,
		provider:     cfg.Provider,
		model:        cfg.Model,
		tools:        tools,
		strategy:     strategy,
		category:     cfg.Category,
		tags:         append([]string(nil), cfg.Tags...),
		settings:     cfg.Settings,
	}
	f.registry.register(d)
	return d, nil
}
