package mcpsession

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Pool lazily connects and caches one Session per MCP agent_id, mirroring
// pkg/worker.Pool's shape for A2A workers: the gateway needs the same
// get-or-create lifecycle for both protocols, just against a different
// underlying transport.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPool() *Pool {
	return &Pool{sessions: make(map[string]*Session)}
}

// Get returns the session for agentID, connecting it on first use. A
// session that failed to connect is not cached, so the next call retries.
func (p *Pool) Get(ctx context.Context, cfg Config) (*Session, error) {
	p.mu.Lock()
	if s, ok := p.sessions[cfg.AgentID]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s := New(cfg)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sessions[cfg.AgentID] = s
	p.mu.Unlock()
	return s, nil
}

// Remove closes and drops a session, used when its agent is deleted from
// the registry.
func (p *Pool) Remove(agentID string) {
	p.mu.Lock()
	s, ok := p.sessions[agentID]
	delete(p.sessions, agentID)
	p.mu.Unlock()

	if ok {
		if err := s.Close(context.Background()); err != nil {
			log.Debug("mcp pool: close on remove failed", "agent_id", agentID, "error", err)
		}
	}
}
