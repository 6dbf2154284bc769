package service

import "encoding/json"

// agentParams decodes the agents.upsert payload's nested agent object.
type agentParams struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Bearer          string         `json:"bearer,omitempty"`
	Protocol        string         `json:"protocol,omitempty"`
	ProtocolVersion string         `json:"protocolVersion,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type upsertAgentParams struct {
	Agent agentParams `json:"agent"`
}

type idParams struct {
	ID string `json:"id,omitempty"`
}

type taskIDParams struct {
	TaskID string `json:"taskId"`
}

type sendMessageParams struct {
	AgentID   string          `json:"agentId"`
	Message   json.RawMessage `json:"message"`
	TaskID    string          `json:"taskId,omitempty"`
	ContextID string          `json:"contextId,omitempty"`
	Metadata  struct {
		Webhook string `json:"webhook,omitempty"`
	} `json:"metadata,omitempty"`
}

type pushConfigParams struct {
	TaskID      string `json:"taskId"`
	ConfigID    string `json:"configId,omitempty"`
	URL         string `json:"url"`
	Token       string `json:"token,omitempty"`
	HMACSecret  string `json:"hmacSecret,omitempty"`
	JWTSecret   string `json:"jwtSecret,omitempty"`
	JWTIssuer   string `json:"jwtIssuer,omitempty"`
	JWTAudience string `json:"jwtAudience,omitempty"`
	JWTKid      string `json:"jwtKid,omitempty"`
}

type pushConfigIDParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"configId"`
}
