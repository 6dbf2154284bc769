package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/theapemachine/superx/pkg/a2a"
)

var a2aWireToMethod = map[string]Method{
	"SendMessage":                     SendMessage,
	"message/send":                    SendMessage,
	"StreamMessage":                   StreamMessage,
	"message/stream":                  StreamMessage,
	"GetTask":                         GetTask,
	"tasks/get":                       GetTask,
	"ListTasks":                       ListTasks,
	"tasks/list":                      ListTasks,
	"CancelTask":                      CancelTask,
	"tasks/cancel":                    CancelTask,
	"SubscribeTask":                   SubscribeTask,
	"tasks/subscribe":                 SubscribeTask,
	"tasks/resubscribe":               SubscribeTask,
	"SetPushConfig":                   SetPushConfig,
	"tasks/pushNotificationConfig/set":    SetPushConfig,
	"GetPushConfig":                   GetPushConfig,
	"tasks/pushNotificationConfig/get":    GetPushConfig,
	"ListPushConfigs":                 ListPushConfigs,
	"tasks/pushNotificationConfig/list":   ListPushConfigs,
	"DeletePushConfig":                DeletePushConfig,
	"tasks/pushNotificationConfig/delete": DeletePushConfig,
	"GetAgentCard":                    GetAgentCard,
	"agent/getCard":                   GetAgentCard,
}

var a2aMethodToWire = map[Method]string{
	SendMessage:      "message/send",
	StreamMessage:    "message/stream",
	GetTask:          "tasks/get",
	ListTasks:        "tasks/list",
	CancelTask:       "tasks/cancel",
	SubscribeTask:    "tasks/resubscribe",
	SetPushConfig:    "tasks/pushNotificationConfig/set",
	GetPushConfig:    "tasks/pushNotificationConfig/get",
	ListPushConfigs:  "tasks/pushNotificationConfig/list",
	DeletePushConfig: "tasks/pushNotificationConfig/delete",
	GetAgentCard:     "agent/getCard",
}

// A2AAdapter implements Adapter for the A2A task protocol.
type A2AAdapter struct {
	Version string
}

func NewA2AAdapter(version string) *A2AAdapter {
	if version == "" {
		version = "0.3.0"
	}
	return &A2AAdapter{Version: version}
}

func (a *A2AAdapter) ProtocolName() string    { return "a2a" }
func (a *A2AAdapter) ProtocolVersion() string { return a.Version }

func (a *A2AAdapter) NormalizeMethod(wire string) (Method, bool) {
	m, ok := a2aWireToMethod[wire]
	return m, ok
}

func (a *A2AAdapter) WireMethod(m Method) (string, bool) {
	w, ok := a2aMethodToWire[m]
	return w, ok
}

type a2aEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  a2aParams       `json:"params"`
}

type a2aParams struct {
	Message   json.RawMessage `json:"message,omitempty"`
	ID        string          `json:"id,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	ContextID string          `json:"contextId,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Encode renders an Envelope as an A2A-flavored JSON-RPC request. TaskID is
// written to both params.id and params.taskId because A2A servers disagree
// historically about which field carries the task identity.
func (a *A2AAdapter) Encode(env Envelope) (json.RawMessage, error) {
	wire, ok := a.WireMethod(env.Method)
	if !ok {
		wire = string(env.Method)
	}

	req := a2aEnvelope{
		JSONRPC: "2.0",
		ID:      env.RPCID,
		Method:  wire,
		Params: a2aParams{
			Message:   env.Message,
			ID:        env.TaskID,
			TaskID:    env.TaskID,
			ContextID: env.ContextID,
			Metadata:  env.Metadata,
		},
	}

	return json.Marshal(req)
}

func (a *A2AAdapter) Decode(body json.RawMessage) (Envelope, error) {
	var req a2aEnvelope
	if err := json.Unmarshal(body, &req); err != nil {
		return Envelope{}, err
	}

	method, _ := a.NormalizeMethod(req.Method)
	taskID := req.Params.TaskID
	if taskID == "" {
		taskID = req.Params.ID
	}

	return Envelope{
		Protocol:        a.ProtocolName(),
		ProtocolVersion: a.ProtocolVersion(),
		Method:          method,
		TaskID:          taskID,
		ContextID:       req.Params.ContextID,
		Message:         req.Params.Message,
		Metadata:        req.Params.Metadata,
		RPCID:           req.ID,
	}, nil
}

// DecodeStreamEvent strips a leading "data: " prefix and parses the
// remaining JSON as a JSON-RPC response fragment.
func (a *A2AAdapter) DecodeStreamEvent(line []byte) StreamEvent {
	line = bytes.TrimPrefix(line, []byte("data: "))
	line = bytes.TrimPrefix(line, []byte("data:"))
	line = bytes.TrimSpace(line)

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

	if frame.Result != nil {
		return StreamEvent{OK: true, Result: frame.Result}
	}

	return StreamEvent{OK: false, ErrKind: "decode"}
}

func (a *A2AAdapter) WellKnownPath() string { return "/.well-known/agent-card.json" }

func (a *A2AAdapter) ResolveCardURL(agentURL string, metadata map[string]any) string {
	if metadata != nil {
		if card, ok := metadata["agentCard"].(map[string]any); ok {
			if url, ok := card["url"].(string); ok && url != "" {
				return url
			}
		}
	}
	return agentURL + a.WellKnownPath()
}

func (a *A2AAdapter) ValidCard(card *a2a.AgentCard) bool {
	return card != nil && card.Name != ""
}

// NormalizeAgentCard fills the defaults A2A servers are permitted to omit.
func (a *A2AAdapter) NormalizeAgentCard(card *a2a.AgentCard) *a2a.AgentCard {
	if card == nil {
		return nil
	}

	if card.Version == "" {
		card.Version = "1.0.0"
	}
	if card.ProtocolVersion == "" {
		card.ProtocolVersion = "0.3.0"
	}
	if len(card.DefaultInputModes) == 0 {
		card.DefaultInputModes = []string{"text/plain"}
	}
	if len(card.DefaultOutputModes) == 0 {
		card.DefaultOutputModes = []string{"text/plain"}
	}

	for i := range card.Skills {
		if card.Skills[i].Tags == nil {
			card.Skills[i].Tags = []string{}
		}
		if card.Skills[i].Examples == nil {
			card.Skills[i].Examples = []string{}
		}
	}

	return card
}
