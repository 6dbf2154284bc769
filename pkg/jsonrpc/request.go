package jsonrpc

import "encoding/json"

// Request is a JSON-RPC request or notification as decoded off the wire.
// Params is kept raw so callers can unmarshal into the shape their handler
// expects after the method has been resolved.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func NewRequest(id json.RawMessage, method string, params any) (*Request, error) {
	req := &Request{JSONRPC: Version, ID: id, Method: method}

	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = b
	}

	return req, nil
}
