package research

import (
	"sync"

	"newsdesk/internal/domain/brief"
	"newsdesk/pkg/errors"
)

type registration struct {
	agent  Agent
	topics map[string]struct{} // empty means generalist
}

// Registry stores agents in registration order with the topics they cover
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	index   map[string]int
}

// NewRegistry constructs an empty agent registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds an agent. Agents without topics serve every brief.
func (r *Registry) Register(ag Agent, topics ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ag.ID()
	if id == "" {
		return errors.NewValidationError("agent_id", "required", id)
	}
	if _, exists := r.index[id]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "agent %s already registered", id)
	}

	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	r.index[id] = len(r.entries)
	r.entries = append(r.entries, registration{agent: ag, topics: set})
	return nil
}

// Get retrieves an agent by id
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.entries[i].agent, true
}

// List returns every agent in registration order
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.agent
	}
	return out
}

// ForBrief returns generalists plus agents covering a brief topic, in
// registration order. When no specialist matches every agent is used.
func (r *Registry) ForBrief(b brief.Brief) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Agent
	specialists := 0
	for _, e := range r.entries {
		if len(e.topics) == 0 {
			out = append(out, e.agent)
			continue
		}
		for topic := range b.TopicWeights {
			if _, ok := e.topics[topic]; ok {
				out = append(out, e.agent)
				specialists++
				break
			}
		}
	}

	if specialists == 0 {
		out = out[:0]
		for _, e := range r.entries {
			out = append(out, e.agent)
		}
	}
	return out
}

// Len returns the number of registered agents
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
