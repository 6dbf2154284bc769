package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/theapemachine/superx/pkg/errors"
)

// DecodeBody parses an inbound JSON-RPC body, which may be a single
// request or a batch. It never partially fails a batch: either every
// element parses or the whole body is a parse_error.
func DecodeBody(body []byte) (reqs []Request, batch bool, rpcErr *errors.RpcError) {
	body = bytes.TrimSpace(body)

	if len(body) == 0 {
		return nil, false, errors.ErrInvalidRequest
	}

	if body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, true, errors.ErrParseError
		}
		return reqs, true, nil
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, errors.ErrParseError
	}

	return []Request{req}, false, nil
}

// Validate checks the JSON-RPC envelope itself (version, method presence),
// independent of whether the method is recognised.
func Validate(req *Request) *errors.RpcError {
	if req.JSONRPC != Version {
		return errors.ErrInvalidRequest
	}
	if req.Method == "" {
		return errors.ErrInvalidRequest
	}
	return nil
}
