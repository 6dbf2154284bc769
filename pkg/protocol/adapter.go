package protocol

import (
	"encoding/json"

	"github.com/theapemachine/superx/pkg/a2a"
)

/*
Adapter is the polymorphic capability set a protocol+version pair must
implement: translating canonical methods to and from wire names, encoding
and decoding JSON-RPC envelopes, and decoding one stream frame. The
card-related methods are optional in spirit (MCP has no agent-card
concept) but implemented as no-ops rather than left nil so callers never
need a type switch.
*/
type Adapter interface {
	ProtocolName() string
	ProtocolVersion() string

	NormalizeMethod(wire string) (Method, bool)
	WireMethod(m Method) (string, bool)

	Encode(env Envelope) (json.RawMessage, error)
	Decode(body json.RawMessage) (Envelope, error)
	DecodeStreamEvent(line []byte) StreamEvent

	WellKnownPath() string
	ResolveCardURL(agentURL string, metadata map[string]any) string
	NormalizeAgentCard(card *a2a.AgentCard) *a2a.AgentCard
	ValidCard(card *a2a.AgentCard) bool
}

// Registry maps (protocol, version) to an Adapter. Unknown versions fall
// back to the latest registered adapter for the protocol; unknown
// protocols default to A2A.
type Registry struct {
	byProtocolVersion map[string]Adapter
	latestByProtocol  map[string]Adapter
	defaultProtocol   string
}

func NewRegistry() *Registry {
	return &Registry{
		byProtocolVersion: make(map[string]Adapter),
		latestByProtocol:  make(map[string]Adapter),
		defaultProtocol:   "a2a",
	}
}

func key(protocol, version string) string { return protocol + "@" + version }

// Register adds an adapter and marks it as the latest for its protocol.
// Call order matters only in that the last Register for a given protocol
// wins as the fallback.
func (r *Registry) Register(a Adapter) {
	r.byProtocolVersion[key(a.ProtocolName(), a.ProtocolVersion())] = a
	r.latestByProtocol[a.ProtocolName()] = a
}

func (r *Registry) Resolve(protocol, version string) Adapter {
	if protocol == "" {
		protocol = r.defaultProtocol
	}

	if a, ok := r.byProtocolVersion[key(protocol, version)]; ok {
		return a
	}

	if a, ok := r.latestByProtocol[protocol]; ok {
		return a
	}

	return r.latestByProtocol[r.defaultProtocol]
}
