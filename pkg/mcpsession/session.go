/*
Package mcpsession implements C9, one session per MCP-protocol agent. It
owns the transport (HTTP or stdio), the connecting->initializing->ready->
closing->closed lifecycle, and the capability caches (tools/resources/
prompts) a ready session serves. Grounded on the teacher's only real
mark3labs/mcp-go call site (pkg/tools/mcp.go's NewOpenAIExecutor), which
establishes the Initialize/CallTool calling convention this package
generalizes into a long-lived, cached session.
*/
package mcpsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/errors"
)

// State is C9's lifecycle, matching §4.6 exactly.
type State string

const (
	StateConnecting   State = "connecting"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

// TransportKind selects the underlying mcp-go client constructor.
type TransportKind string

const (
	TransportHTTP  TransportKind = "http"
	TransportStdio TransportKind = "stdio"
)

// Config describes how to dial one MCP agent.
type Config struct {
	AgentID         string
	Kind            TransportKind
	URL             string   // TransportHTTP
	Command         string   // TransportStdio
	Args            []string // TransportStdio
	Env             []string // TransportStdio
	ProtocolVersion string
}

// Session is C9. A mutex guards the lifecycle state and the capability
// caches; CallTool, ReadResource and GetPrompt go to the mcp-go client on
// the caller's goroutine and are not serialized by the session.
type Session struct {
	cfg    Config
	client *client.Client

	mu           sync.Mutex
	state        State
	serverInfo   mcp.Implementation
	capabilities mcp.ServerCapabilities
	tools        []mcp.Tool
	resources    []mcp.Resource
	prompts      []mcp.Prompt
}

func New(cfg Config) *Session {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = "2025-03-27"
	}
	return &Session{cfg: cfg, state: StateConnecting}
}

// Connect opens the transport, runs the initialize handshake, and eagerly
// populates the tool/resource/prompt caches the server advertises via
// capabilities. If opening the transport or the initialize handshake fails,
// the session moves to closed and the error is returned; Connect is not
// retried internally. A failed tools/resources/prompts listing is not an
// error: that cache stays empty and the session still becomes ready.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	var (
		c   *client.Client
		err error
	)
	switch s.cfg.Kind {
	case TransportStdio:
		c, err = client.NewStdioMCPClient(s.cfg.Command, s.cfg.Env, s.cfg.Args...)
	default:
		c, err = client.NewStreamableHttpClient(s.cfg.URL)
	}
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("open transport: %w", err)
	}
	s.client = c

	s.setState(StateInitializing)

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = s.cfg.ProtocolVersion

	result, err := c.Initialize(ctx, initReq)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("initialize: %w", err)
	}

	s.mu.Lock()
	s.serverInfo = result.ServerInfo
	s.capabilities = result.Capabilities
	s.mu.Unlock()

	if err := c.Ping(ctx); err != nil {
		log.Debug("mcp session: ping after initialize failed", "agent_id", s.cfg.AgentID, "error", err)
	}

	if s.capabilities.Tools != nil {
		if tools, err := c.ListTools(ctx, mcp.ListToolsRequest{}); err == nil {
			s.mu.Lock()
			s.tools = tools.Tools
			s.mu.Unlock()
		}
	}
	if s.capabilities.Resources != nil {
		if resources, err := c.ListResources(ctx, mcp.ListResourcesRequest{}); err == nil {
			s.mu.Lock()
			s.resources = resources.Resources
			s.mu.Unlock()
		}
	}
	if s.capabilities.Prompts != nil {
		if prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{}); err == nil {
			s.mu.Lock()
			s.prompts = prompts.Prompts
			s.mu.Unlock()
		}
	}

	s.setState(StateReady)
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) requireReady() *errors.RpcError {
	if s.State() != StateReady {
		return errors.ErrAgentNotFound.WithMessagef("mcp session %s is not ready", s.cfg.AgentID)
	}
	return nil
}

// ListTools serves from the cache that Connect populated; it never contacts
// the server.
func (s *Session) ListTools() ([]mcp.Tool, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools, nil
}

func (s *Session) ListResources() ([]mcp.Resource, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources, nil
}

func (s *Session) ListPrompts() ([]mcp.Prompt, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts, nil
}

// CallTool invokes one tool by name, forwarding to the live transport.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, errors.ErrRemoteError.WithMessagef("call_tool %s: %v", name, err)
	}
	return result, nil
}

func (s *Session) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := s.client.ReadResource(ctx, req)
	if err != nil {
		return nil, errors.ErrResourceNotFound.WithMessagef("read_resource %s: %v", uri, err)
	}
	return result, nil
}

func (s *Session) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*mcp.GetPromptResult, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	result, err := s.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, errors.ErrResourceNotFound.WithMessagef("get_prompt %s: %v", name, err)
	}
	return result, nil
}

// InvalidateCaches drops the cached tool/resource/prompt lists. List* calls
// do not re-fetch: they return empty lists until the next Connect fills the
// caches again. Nothing in the gateway calls it on a server notification.
func (s *Session) InvalidateCaches() {
	s.mu.Lock()
	s.tools = nil
	s.resources = nil
	s.prompts = nil
	s.mu.Unlock()
}

// AgentCard synthesizes an a2a.AgentCard for an MCP agent, only valid in
// the ready state.
func (s *Session) AgentCard() (*a2a.AgentCard, *errors.RpcError) {
	if rpcErr := s.requireReady(); rpcErr != nil {
		return nil, rpcErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.serverInfo.Name
	if name == "" {
		name = s.cfg.AgentID
	}

	skills := make([]a2a.AgentSkill, 0, len(s.tools))
	for _, tool := range s.tools {
		skills = append(skills, a2a.AgentSkill{
			ID:          tool.Name,
			Name:        tool.Name,
			Description: &tool.Description,
		})
	}

	return &a2a.AgentCard{
		Name:            name,
		Version:         s.serverInfo.Version,
		Protocol:        "mcp",
		ProtocolVersion: s.cfg.ProtocolVersion,
		Skills:          skills,
	}, nil
}

// Close tears down the transport, giving the client's Close at most 100ms
// (or until ctx is done) to finish. Requests still pending are not waited
// for.
// Stdio's process-kill fallback is handled by mcp-go's client internally on
// Close; this wrapper just sequences the state transitions §4.6 specifies.
func (s *Session) Close(ctx context.Context) error {
	s.setState(StateClosing)
	defer s.setState(StateClosed)

	if s.client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.client.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(100 * time.Millisecond):
		return fmt.Errorf("mcp session %s: close did not complete within grace period", s.cfg.AgentID)
	case <-ctx.Done():
		return ctx.Err()
	}
}
