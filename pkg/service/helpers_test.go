package service

import (
	"encoding/json"
	"testing"

	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/jsonrpc"
)

func mustRequest(t *testing.T, id, method string, params map[string]any) *jsonrpc.Request {
	t.Helper()
	b, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	idBytes, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal id: %v", err)
	}
	return &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: idBytes, Method: method, Params: b}
}

func newTestTask(id string) *a2a.Task {
	return a2a.NewTask(id)
}
