package protocol

import (
	"encoding/json"
	"strings"

	"github.com/theapemachine/superx/pkg/a2a"
)

var mcpWireToMethod = map[string]Method{
	"initialize":                       Initialize,
	"notifications/initialized":        Initialized,
	"ping":                             Ping,
	"shutdown":                         Shutdown,
	"tools/list":                       ListTools,
	"tools/call":                       CallTool,
	"notifications/tools/list_changed": ToolsChanged,
	"resources/list":                   ListResources,
	"resources/templates/list":         ListResourceTmpls,
	"resources/read":                   ReadResource,
	"resources/subscribe":              SubscribeResource,
	"resources/unsubscribe":            UnsubscribeResource,
	"notifications/resources/list_changed":  ResourcesChanged,
	"notifications/resources/updated":       ResourceUpdated,
	"prompts/list":                     ListPrompts,
	"prompts/get":                      GetPrompt,
	"notifications/prompts/list_changed":    PromptsChanged,
	"sampling/createMessage":           CreateMessage,
	"elicitation/create":               CreateElicitation,
	"roots/list":                       ListRoots,
	"notifications/roots/list_changed": RootsChanged,
	"logging/setLevel":                 SetLogLevel,
	"notifications/message":            LogMessage,
	"notifications/progress":           Progress,
	"notifications/cancelled":          Cancelled,
}

var mcpMethodToWire = func() map[Method]string {
	out := make(map[Method]string, len(mcpWireToMethod))
	for wire, m := range mcpWireToMethod {
		out[m] = wire
	}
	return out
}()

// mcpServerRequests are the methods an MCP server may send *to* the
// client; they are dispatched to a client-side handler that replies with a
// JSON-RPC response carrying the same id, rather than being forwarded
// upstream like a normal call.
var mcpServerRequests = map[Method]bool{
	CreateMessage:     true,
	CreateElicitation: true,
	ListRoots:         true,
}

func MCPServerRequest(m Method) bool { return mcpServerRequests[m] }

// MCPAdapter implements Adapter for the MCP tool protocol.
type MCPAdapter struct {
	Version string
}

func NewMCPAdapter(version string) *MCPAdapter {
	if version == "" {
		version = "2025-03-27"
	}
	return &MCPAdapter{Version: version}
}

func (m *MCPAdapter) ProtocolName() string    { return "mcp" }
func (m *MCPAdapter) ProtocolVersion() string { return m.Version }

func (m *MCPAdapter) NormalizeMethod(wire string) (Method, bool) {
	mm, ok := mcpWireToMethod[wire]
	return mm, ok
}

func (m *MCPAdapter) WireMethod(method Method) (string, bool) {
	w, ok := mcpMethodToWire[method]
	return w, ok
}

type mcpEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether a canonical method has no MCP response
// and so must be sent without an id field.
func isNotification(wire string) bool {
	return strings.HasPrefix(wire, "notifications/")
}

func (m *MCPAdapter) Encode(env Envelope) (json.RawMessage, error) {
	wire, ok := m.WireMethod(env.Method)
	if !ok {
		wire = string(env.Method)
	}

	req := mcpEnvelope{
		JSONRPC: "2.0",
		Method:  wire,
		Params:  env.Payload,
	}
	if !isNotification(wire) {
		req.ID = env.RPCID
	}

	return json.Marshal(req)
}

func (m *MCPAdapter) Decode(body json.RawMessage) (Envelope, error) {
	var req mcpEnvelope
	if err := json.Unmarshal(body, &req); err != nil {
		return Envelope{}, err
	}

	method, _ := m.NormalizeMethod(req.Method)

	return Envelope{
		Protocol:        m.ProtocolName(),
		ProtocolVersion: m.ProtocolVersion(),
		Method:          method,
		Payload:         req.Params,
		RPCID:           req.ID,
	}, nil
}

// DecodeStreamEvent is unused on the MCP path in practice (MCP pushes
// server-to-client requests over the same connection rather than SSE), but
// implemented for interface completeness using the same result/error
// envelope shape as A2A.
func (m *MCPAdapter) DecodeStreamEvent(line []byte) StreamEvent {
	var frame struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}

	if err := json.Unmarshal(line, &frame); err != nil {
		return StreamEvent{OK: false, ErrKind: "decode", Err: err}
	}
	if frame.Error != nil {
		return StreamEvent{OK: false, ErrKind: "remote", Result: frame.Error}
	}
	return StreamEvent{OK: true, Result: frame.Result}
}

func (m *MCPAdapter) WellKnownPath() string { return "" }

func (m *MCPAdapter) ResolveCardURL(agentURL string, metadata map[string]any) string {
	return ""
}

// NormalizeAgentCard is a no-op for MCP: a card is synthesized from
// tools/list by the MCP session (C9), not normalized from a fetched
// document.
func (m *MCPAdapter) NormalizeAgentCard(card *a2a.AgentCard) *a2a.AgentCard { return card }

func (m *MCPAdapter) ValidCard(card *a2a.AgentCard) bool { return card != nil }
