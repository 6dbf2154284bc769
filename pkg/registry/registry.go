package registry

import (
	"sync"

	"github.com/cohesivestack/valgo"
	"golang.org/x/oauth2/clientcredentials"
)

/*
Agent is one entry in the in-memory agent directory (C1): everything the
gateway needs to dial out to it and to pick the right protocol adapter.
Bearer and OAuth2 are mutually exclusive; a registration with neither is
valid for agents that don't require auth.
*/
type Agent struct {
	ID              string                        `json:"id"`
	URL             string                        `json:"url"`
	Bearer          string                        `json:"bearer,omitempty"`
	OAuth2          *clientcredentials.Config     `json:"-"`
	Protocol        string                        `json:"protocol"`
	ProtocolVersion string                        `json:"protocolVersion"`
	Metadata        map[string]any                `json:"metadata,omitempty"`
}

func (a *Agent) Validate() bool {
	return valgo.Is(
		valgo.String(a.ID).Not().Blank(),
		valgo.String(a.URL).Not().Blank(),
	).Valid()
}

// Registry is the in-memory agent directory. Agent ids are assumed stable
// across the process lifetime; there is no persistence layer per the
// gateway's stated non-goals.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func New() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

func (r *Registry) Upsert(agent *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent)
	}
	return out
}
