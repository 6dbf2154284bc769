package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/errors"
	"github.com/theapemachine/superx/pkg/mcpsession"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/sse"
)

// handleAgentProxy is POST /agents/:id (C10 §4.7): it decodes the body
// with that agent's own protocol adapter, then either answers locally
// against the task store/registry (task and push-config reads, card
// resolution) or forwards the call opaquely through C8.
func (g *Gateway) handleAgentProxy(ctx fiber.Ctx) error {
	agent, found := g.registry.Get(ctx.Params("id"))
	if !found {
		return writeRPCError(ctx, nil, errors.ErrAgentNotFound)
	}
	adapter := g.adapters.Resolve(agent.Protocol, agent.ProtocolVersion)

	env, err := adapter.Decode(ctx.Body())
	if err != nil {
		return writeRPCError(ctx, nil, errors.ErrParseError)
	}
	env.AgentID = agent.ID

	switch env.Method {
	case protocol.GetTask:
		t := g.store.Get(env.TaskID)
		if t == nil {
			return writeRPCError(ctx, env.RPCID, errors.ErrTaskNotFound)
		}
		return writeRPCResult(ctx, env.RPCID, t)

	case protocol.SubscribeTask:
		if g.store.Get(env.TaskID) == nil {
			return writeRPCError(ctx, env.RPCID, errors.ErrTaskNotFound)
		}
		subCtx, cancel := context.WithCancel(context.Background())
		return g.streamTask(ctx, env.RPCID, env.TaskID, subCtx, cancel, nil)

	case protocol.GetAgentCard:
		card, rpcErr := g.resolveAgentCard(ctx.Context(), agent, adapter)
		if rpcErr != nil {
			return writeRPCError(ctx, env.RPCID, rpcErr)
		}
		return writeRPCResult(ctx, env.RPCID, card)

	case protocol.SetPushConfig:
		cfg, rpcErr := g.localSetPushConfig(env)
		if rpcErr != nil {
			return writeRPCError(ctx, env.RPCID, rpcErr)
		}
		return writeRPCResult(ctx, env.RPCID, cfg)

	case protocol.GetPushConfig:
		var p pushConfigIDParams
		_ = decodeMetadata(env.Metadata, &p)
		if p.TaskID == "" {
			p.TaskID = env.TaskID
		}
		cfg := g.store.GetPushConfig(p.TaskID, p.ConfigID)
		if cfg == nil {
			return writeRPCError(ctx, env.RPCID, errors.ErrResourceNotFound)
		}
		return writeRPCResult(ctx, env.RPCID, cfg)

	case protocol.ListPushConfigs:
		return writeRPCResult(ctx, env.RPCID, g.store.ListPushConfigs(env.TaskID))

	case protocol.DeletePushConfig:
		var p pushConfigIDParams
		_ = decodeMetadata(env.Metadata, &p)
		if p.TaskID == "" {
			p.TaskID = env.TaskID
		}
		g.store.DeletePushConfig(p.TaskID, p.ConfigID)
		return writeRPCResult(ctx, env.RPCID, fiber.Map{"deleted": p.ConfigID})

	case protocol.StreamMessage:
		return g.forwardStream(ctx, agent, adapter, env)

	default:
		return g.forwardCall(ctx, agent, adapter, env)
	}
}

// localSetPushConfig merges whatever push-config attributes the caller
// sent through the envelope's webhook shorthand or its metadata bag — A2A
// wire bodies have no first-class push-config fields, so this is the best
// a generic adapter body can carry them.
func (g *Gateway) localSetPushConfig(env protocol.Envelope) (*a2a.PushConfig, *errors.RpcError) {
	var p pushConfigParams
	_ = decodeMetadata(env.Metadata, &p)
	if p.TaskID == "" {
		p.TaskID = env.TaskID
	}
	if p.URL == "" {
		p.URL = env.Webhook
	}

	cfg := &a2a.PushConfig{
		ConfigID:    p.ConfigID,
		TaskID:      p.TaskID,
		URL:         p.URL,
		Token:       p.Token,
		HMACSecret:  p.HMACSecret,
		JWTSecret:   p.JWTSecret,
		JWTIssuer:   p.JWTIssuer,
		JWTAudience: p.JWTAudience,
		JWTKid:      p.JWTKid,
	}
	if rpcErr := g.store.SetPushConfig(cfg); rpcErr != nil {
		return nil, rpcErr
	}
	return cfg, nil
}

// forwardCall is the opaque, synchronous half of C10's forward path.
func (g *Gateway) forwardCall(ctx fiber.Ctx, agent *registry.Agent, adapter protocol.Adapter, env protocol.Envelope) error {
	w := g.pool.Get(agent.ID, adapter)
	result, rpcErr := w.Call(ctx.Context(), agent, env)
	if rpcErr != nil {
		return writeRPCError(ctx, env.RPCID, rpcErr)
	}
	return writeRPCResult(ctx, env.RPCID, result)
}

// forwardStream is the opaque, streaming half: it opens the upstream SSE
// call and relays it to the client, seeding a task row first if the caller
// didn't already name one (MCP's equivalent of stream_message has no task
// identity of its own).
func (g *Gateway) forwardStream(ctx fiber.Ctx, agent *registry.Agent, adapter protocol.Adapter, env protocol.Envelope) error {
	taskID := env.TaskID
	if taskID == "" {
		t := a2a.NewTask("")
		taskID = t.ID
		env.TaskID = taskID
		if rpcErr := g.store.Put(ctx.Context(), t); rpcErr != nil {
			return writeRPCError(ctx, env.RPCID, rpcErr)
		}
	}

	w := g.pool.Get(agent.ID, adapter)
	replyTo := make(chan sse.Reply, 4)
	streamCtx, cancel := context.WithCancel(context.Background())

	if rpcErr := w.Stream(streamCtx, agent, env, g.consumer, replyTo); rpcErr != nil {
		cancel()
		return writeRPCError(ctx, env.RPCID, rpcErr)
	}

	return g.streamTask(ctx, env.RPCID, taskID, streamCtx, cancel, replyTo)
}

// handleAgentCard is GET /agents/:id/.well-known/agent-card.json: cache,
// fetch, or synthesize depending on protocol, always rewriting the card's
// url to point back at this gateway's own proxy route per §6.
func (g *Gateway) handleAgentCard(ctx fiber.Ctx) error {
	agent, found := g.registry.Get(ctx.Params("id"))
	if !found {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{"code": -32001, "message": "agent not found"},
		})
	}
	adapter := g.adapters.Resolve(agent.Protocol, agent.ProtocolVersion)

	card, rpcErr := g.resolveAgentCard(ctx.Context(), agent, adapter)
	if rpcErr != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": rpcErr})
	}
	return ctx.JSON(card)
}

// resolveAgentCard serves from the TTL cache, else fetches (A2A) or
// synthesizes (MCP, via a live mcpsession.Session) a fresh card.
func (g *Gateway) resolveAgentCard(ctx context.Context, agent *registry.Agent, adapter protocol.Adapter) (*a2a.AgentCard, *errors.RpcError) {
	g.cardMu.Lock()
	if cached, ok := g.cards[agent.ID]; ok && time.Since(cached.fetchedAt) < g.cfg.CardCacheTTL {
		g.cardMu.Unlock()
		return cached.card, nil
	}
	g.cardMu.Unlock()

	var card *a2a.AgentCard

	if agent.Protocol == "mcp" {
		sess, err := g.mcpPool.Get(ctx, g.mcpConfigFor(agent))
		if err != nil {
			return nil, errors.ErrAgentNotFound.WithMessagef("mcp session: %v", err)
		}
		c, rpcErr := sess.AgentCard()
		if rpcErr != nil {
			return nil, rpcErr
		}
		card = c
	} else {
		headers := map[string]string{}
		if agent.Bearer != "" {
			headers["Authorization"] = "Bearer " + agent.Bearer
		}

		url := adapter.ResolveCardURL(agent.URL, agent.Metadata)
		result, err := g.transport.GetCard(ctx, url, headers, g.cfg.CallTimeout)
		if err != nil {
			return nil, errors.ErrRemoteError.WithMessagef("fetch agent card: %v", err)
		}
		if result.Status >= 400 {
			return nil, errors.ErrRemoteError.WithMessagef("agent card status %d", result.Status)
		}

		var fetched a2a.AgentCard
		if err := json.Unmarshal(result.Body, &fetched); err != nil {
			return nil, errors.ErrInternal.WithMessagef("decode agent card: %v", err)
		}
		card = adapter.NormalizeAgentCard(&fetched)
		card.Protocol = adapter.ProtocolName()
		card.ProtocolVersion = adapter.ProtocolVersion()
	}

	card.URL = g.cfg.PublicBaseURL + "/agents/" + agent.ID

	g.cardMu.Lock()
	g.cards[agent.ID] = cachedCard{card: card, fetchedAt: time.Now()}
	g.cardMu.Unlock()

	return card, nil
}

// mcpConfigFor derives an mcpsession.Config from an agent's registry entry.
// HTTP transport is the default; stdio is opted into via metadata, the only
// place a registered agent can carry that extra shape.
func (g *Gateway) mcpConfigFor(agent *registry.Agent) mcpsession.Config {
	cfg := mcpsession.Config{
		AgentID:         agent.ID,
		Kind:            mcpsession.TransportHTTP,
		URL:             agent.URL,
		ProtocolVersion: agent.ProtocolVersion,
	}
	if agent.Metadata == nil {
		return cfg
	}
	if kind, _ := agent.Metadata["transport"].(string); kind == "stdio" {
		cfg.Kind = mcpsession.TransportStdio
		cfg.Command, _ = agent.Metadata["command"].(string)
		cfg.Args = toStringSlice(agent.Metadata["args"])
		cfg.Env = toStringSlice(agent.Metadata["env"])
	}
	return cfg
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeMetadata round-trips a metadata bag through JSON into a typed
// struct, the generic way to pull protocol-specific fields (push-config
// attributes, MCP transport hints) out of the catch-all map.
func decodeMetadata(meta map[string]any, out any) error {
	if meta == nil {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
