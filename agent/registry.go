package agent

import (
	"sort"
	"sync"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/tool"
)

// Registry maps agent names to descriptors. It is populated at startup (or
// first use) and read-mostly afterward. Entries live for the process
// lifetime; re-registration overwrites.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Descriptor
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Descriptor)}
}

// Get returns the descriptor registered under name, failing with
// *core.AgentNotFoundError on a miss.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[name]
	if !ok {
		return nil, &core.AgentNotFoundError{Name: name}
	}
	return d, nil
}

// register inserts or overwrites a descriptor. Only the Factory calls it.
func (r *Registry) register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[d.name] = d
}

// ListAgents implements tool.AgentCatalog, returning overviews sorted by name.
func (r *Registry) ListAgents() []tool.AgentOverview {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.AgentOverview, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, overview(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AgentOverview implements tool.AgentCatalog.
func (r *Registry) AgentOverview(name string) (tool.AgentOverview, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[name]
	if !ok {
		return tool.AgentOverview{}, false
	}
	return overview(d), true
}

func overview(d *Descriptor) tool.AgentOverview {
	toolNames := make([]string, 0, len(d.tools))
	for _, t := range d.tools {
		toolNames = append(toolNames, t.Name())
	}
	return tool.AgentOverview{
		Name:     d.name,
		Category: d.category,
		Strategy: string(d.strategy),
		Model:    d.model,
		Tags:     d.Tags(),
		Tools:    toolNames,
	}
}
