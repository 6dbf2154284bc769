package worker

import (
	"sync"

	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/transport"
)

// Pool lazily creates and caches one Worker per agent_id, mirroring the
// per-id supervision tree §4.2 describes without requiring a real OTP
// supervisor: a mutex-guarded map is the idiomatic Go stand-in, the same
// shape pkg/registry uses for agent identity.
type Pool struct {
	mu      sync.Mutex
	workers map[string]*Worker
	cfg     Config
	trans   *transport.Client
	alerter BreakerAlerter
}

func NewPool(cfg Config, trans *transport.Client, alerter BreakerAlerter) *Pool {
	return &Pool{
		workers: make(map[string]*Worker),
		cfg:     cfg,
		trans:   trans,
		alerter: alerter,
	}
}

// Get returns the worker for agentID, creating it bound to adapter on first
// use. The adapter passed on a later call for the same agent is ignored —
// an agent's protocol doesn't change mid-process.
func (p *Pool) Get(agentID string, adapter protocol.Adapter) *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[agentID]; ok {
		return w
	}

	w := New(agentID, p.cfg, p.trans, adapter, p.alerter)
	p.workers[agentID] = w
	return w
}

// Health snapshots every worker currently in the pool.
func (p *Pool) Health() []Health {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	out := make([]Health, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Health())
	}
	return out
}

// Remove stops and drops a worker, used when its agent is deleted from the
// registry.
func (p *Pool) Remove(agentID string) {
	p.mu.Lock()
	w, ok := p.workers[agentID]
	delete(p.workers, agentID)
	p.mu.Unlock()

	if ok {
		w.Close()
	}
}
