package jsonrpc

import (
	"encoding/json"

	"github.com/theapemachine/superx/pkg/errors"
)

// Response is a JSON-RPC response as it goes out over the wire. Exactly one
// of Result/Error is populated.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

func NewResultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func NewErrorResponse(id json.RawMessage, err *errors.RpcError) *Response {
	if err == nil {
		err = errors.ErrInternal
	}
	return &Response{JSONRPC: Version, ID: id, Error: err}
}
