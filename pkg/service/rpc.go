package service

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/errors"
	"github.com/theapemachine/superx/pkg/jsonrpc"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/sse"
)

// gatewayMethod normalizes both the dot form (agents.list) and the slash
// form (tasks/pushNotificationConfig/set) §6's table allows onto one
// canonical key.
type gatewayMethod string

const (
	methodAgentsList   gatewayMethod = "agents.list"
	methodAgentsGet    gatewayMethod = "agents.get"
	methodAgentsUpsert gatewayMethod = "agents.upsert"
	methodAgentsDelete gatewayMethod = "agents.delete"
	methodAgentsHealth gatewayMethod = "agents.health"

	methodMessageSend   gatewayMethod = "message.send"
	methodMessageStream gatewayMethod = "message.stream"

	methodTasksGet       gatewayMethod = "tasks.get"
	methodTasksSubscribe gatewayMethod = "tasks.subscribe"

	methodPushSet    gatewayMethod = "tasks.pushNotificationConfig.set"
	methodPushGet    gatewayMethod = "tasks.pushNotificationConfig.get"
	methodPushList   gatewayMethod = "tasks.pushNotificationConfig.list"
	methodPushDelete gatewayMethod = "tasks.pushNotificationConfig.delete"
)

var gatewayMethodAliases = map[string]gatewayMethod{
	"agents.list":   methodAgentsList,
	"agents/list":   methodAgentsList,
	"agents.get":    methodAgentsGet,
	"agents/get":    methodAgentsGet,
	"agents.upsert": methodAgentsUpsert,
	"agents/upsert": methodAgentsUpsert,
	"agents.delete": methodAgentsDelete,
	"agents/delete": methodAgentsDelete,
	"agents.health": methodAgentsHealth,
	"agents/health": methodAgentsHealth,

	"message.send":   methodMessageSend,
	"message/send":   methodMessageSend,
	"message.stream": methodMessageStream,
	"message/stream": methodMessageStream,

	"tasks.get":       methodTasksGet,
	"tasks/get":       methodTasksGet,
	"tasks.subscribe": methodTasksSubscribe,
	"tasks/subscribe": methodTasksSubscribe,

	"tasks.pushNotificationConfig.set":    methodPushSet,
	"tasks/pushNotificationConfig/set":    methodPushSet,
	"tasks.pushNotificationConfig.get":    methodPushGet,
	"tasks/pushNotificationConfig/get":    methodPushGet,
	"tasks.pushNotificationConfig.list":   methodPushList,
	"tasks/pushNotificationConfig/list":   methodPushList,
	"tasks.pushNotificationConfig.delete": methodPushDelete,
	"tasks/pushNotificationConfig/delete": methodPushDelete,
}

// handleRPC is the /rpc entry point (C10). A batch body is dispatched
// request by request and the results collected into a JSON array, except
// that a batch containing a streaming method is rejected outright — SSE
// doesn't compose with a shared response body.
func (g *Gateway) handleRPC(ctx fiber.Ctx) error {
	reqs, batch, rpcErr := jsonrpc.DecodeBody(ctx.Body())
	if rpcErr != nil {
		return writeRPCError(ctx, nil, rpcErr)
	}

	if batch {
		for _, req := range reqs {
			if m, ok := gatewayMethodAliases[req.Method]; ok && (m == methodMessageStream || m == methodTasksSubscribe) {
				return writeRPCError(ctx, req.ID, errors.ErrInvalidRequest.WithMessagef("streaming methods are not batchable"))
			}
		}

		responses := make([]*jsonrpc.Response, 0, len(reqs))
		for _, req := range reqs {
			responses = append(responses, g.dispatch(ctx.Context(), &req))
		}
		return ctx.Status(fiber.StatusOK).JSON(responses)
	}

	req := reqs[0]
	if vErr := jsonrpc.Validate(&req); vErr != nil {
		return writeRPCError(ctx, req.ID, vErr)
	}

	method, ok := gatewayMethodAliases[req.Method]
	if !ok {
		return writeRPCError(ctx, req.ID, errors.ErrMethodNotFound)
	}

	switch method {
	case methodMessageStream:
		return g.handleMessageStream(ctx, req.ID, req.Params)
	case methodTasksSubscribe:
		return g.handleTasksSubscribe(ctx, req.ID, req.Params)
	default:
		resp := g.dispatch(ctx.Context(), &req)
		status := fiber.StatusOK
		if resp.Error != nil {
			status = fiber.StatusBadRequest
		}
		return ctx.Status(status).JSON(resp)
	}
}

// dispatch handles every non-streaming gateway method. Streaming methods
// are routed around this function entirely since they own the response
// body rather than returning a single Response value.
func (g *Gateway) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if vErr := jsonrpc.Validate(req); vErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, vErr)
	}

	method, ok := gatewayMethodAliases[req.Method]
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, errors.ErrMethodNotFound)
	}

	var (
		result any
		rpcErr *errors.RpcError
	)

	switch method {
	case methodAgentsList:
		result = g.registry.List()
	case methodAgentsGet:
		var p idParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		agent, found := g.registry.Get(p.ID)
		if !found {
			rpcErr = errors.ErrAgentNotFound
			break
		}
		result = agent
	case methodAgentsUpsert:
		var p upsertAgentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		agent := &registry.Agent{
			ID:              p.Agent.ID,
			URL:             p.Agent.URL,
			Bearer:          p.Agent.Bearer,
			Protocol:        p.Agent.Protocol,
			ProtocolVersion: p.Agent.ProtocolVersion,
			Metadata:        p.Agent.Metadata,
		}
		if !agent.Validate() {
			rpcErr = errors.ErrInvalidParams.WithMessagef("agent requires id and url")
			break
		}
		g.registry.Upsert(agent)
		result = agent
	case methodAgentsDelete:
		var p idParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		g.registry.Delete(p.ID)
		g.pool.Remove(p.ID)
		result = fiber.Map{"deleted": p.ID}
	case methodAgentsHealth:
		var p idParams
		_ = json.Unmarshal(req.Params, &p)
		if p.ID == "" {
			result = g.pool.Health()
			break
		}
		agent, found := g.registry.Get(p.ID)
		if !found {
			rpcErr = errors.ErrAgentNotFound
			break
		}
		result = g.pool.Get(agent.ID, g.adapters.Resolve(agent.Protocol, agent.ProtocolVersion)).Health()

	case methodMessageSend:
		result, rpcErr = g.sendMessage(ctx, req.Params, false, req.ID, nil)

	case methodTasksGet:
		var p taskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		t := g.store.Get(p.TaskID)
		if t == nil {
			rpcErr = errors.ErrTaskNotFound
			break
		}
		result = t

	case methodPushSet:
		var p pushConfigParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
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
		if rpcErr = g.store.SetPushConfig(cfg); rpcErr == nil {
			result = cfg
		}
	case methodPushGet:
		var p pushConfigIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		cfg := g.store.GetPushConfig(p.TaskID, p.ConfigID)
		if cfg == nil {
			rpcErr = errors.ErrResourceNotFound
			break
		}
		result = cfg
	case methodPushList:
		var p taskIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		result = g.store.ListPushConfigs(p.TaskID)
	case methodPushDelete:
		var p pushConfigIDParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			rpcErr = errors.ErrInvalidParams
			break
		}
		g.store.DeletePushConfig(p.TaskID, p.ConfigID)
		result = fiber.Map{"deleted": p.ConfigID}

	default:
		rpcErr = errors.ErrMethodNotFound
	}

	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return jsonrpc.NewResultResponse(req.ID, result)
}

// sendMessage is shared by message.send and message.stream: both resolve
// the agent, seed or reuse the task, register an optional webhook, and
// build the envelope handed to the worker. stream callers get the
// in-flight worker back via workerOut so they can keep the reply_to
// channel wired to the SSE writer; synchronous callers pass nil.
func (g *Gateway) sendMessage(ctx context.Context, raw json.RawMessage, streaming bool, rpcID json.RawMessage, workerOut *sendOutcome) (any, *errors.RpcError) {
	var p sendMessageParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.ErrInvalidParams
	}
	if p.AgentID == "" || len(p.Message) == 0 {
		return nil, errors.ErrInvalidParams.WithMessagef("agentId and message are required")
	}

	agent, found := g.registry.Get(p.AgentID)
	if !found {
		return nil, errors.ErrAgentNotFound
	}
	adapter := g.adapters.Resolve(agent.Protocol, agent.ProtocolVersion)

	t := a2a.NewTask(p.TaskID)
	if p.ContextID != "" {
		t.ContextID = p.ContextID
	}
	if existing := g.store.Get(t.ID); existing != nil {
		t = existing
	} else if rpcErr := g.store.Put(ctx, t); rpcErr != nil {
		return nil, rpcErr
	}

	if p.Metadata.Webhook != "" {
		g.store.SetPushConfig(a2a.NewPushConfig(t.ID, p.Metadata.Webhook))
	}

	method := protocol.SendMessage
	if streaming {
		method = protocol.StreamMessage
	}

	env := protocol.Envelope{
		Protocol:        adapter.ProtocolName(),
		ProtocolVersion: adapter.ProtocolVersion(),
		Method:          method,
		TaskID:          t.ID,
		ContextID:       t.ContextID,
		Message:         p.Message,
		RPCID:           rpcID,
		AgentID:         agent.ID,
	}

	w := g.pool.Get(agent.ID, adapter)

	if !streaming {
		body, rpcErr := w.Call(ctx, agent, env)
		if rpcErr != nil {
			return nil, rpcErr
		}

		var upstream a2a.Task
		if len(body) > 0 && json.Unmarshal(body, &upstream) == nil && upstream.ID != "" {
			upstream.ID = t.ID
			if putErr := g.store.Put(ctx, &upstream); putErr != nil && putErr != errors.ErrTerminal {
				return nil, putErr
			}
			return g.store.Get(t.ID), nil
		}

		return g.store.Get(t.ID), nil
	}

	workerOut.taskID = t.ID
	workerOut.agent = agent
	workerOut.env = env
	workerOut.worker = w
	return nil, nil
}

// sendOutcome carries the pieces handleMessageStream needs out of
// sendMessage without sendMessage itself knowing about SSE.
type sendOutcome struct {
	taskID string
	agent  *registry.Agent
	env    protocol.Envelope
	worker interface {
		Stream(ctx context.Context, agent *registry.Agent, env protocol.Envelope, consumer *sse.Consumer, replyTo chan<- sse.Reply) *errors.RpcError
	}
}

// handleMessageStream is message.stream: it opens the upstream SSE call
// and, once admitted, relays every task update (plus a final
// stream_error, if the upstream connection itself fails) back to the
// client as its own SSE response.
func (g *Gateway) handleMessageStream(ctx fiber.Ctx, rpcID json.RawMessage, raw json.RawMessage) error {
	var out sendOutcome
	if _, rpcErr := g.sendMessage(ctx.Context(), raw, true, rpcID, &out); rpcErr != nil {
		return writeRPCError(ctx, rpcID, rpcErr)
	}

	replyTo := make(chan sse.Reply, 4)
	streamCtx, cancel := context.WithCancel(context.Background())

	if rpcErr := out.worker.Stream(streamCtx, out.agent, out.env, g.consumer, replyTo); rpcErr != nil {
		cancel()
		return writeRPCError(ctx, rpcID, rpcErr)
	}

	return g.streamTask(ctx, rpcID, out.taskID, streamCtx, cancel, replyTo)
}

// handleTasksSubscribe is tasks.subscribe: it streams store-side task
// events without opening any new upstream connection.
func (g *Gateway) handleTasksSubscribe(ctx fiber.Ctx, rpcID json.RawMessage, raw json.RawMessage) error {
	var p taskIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return writeRPCError(ctx, rpcID, errors.ErrInvalidParams)
	}
	if g.store.Get(p.TaskID) == nil {
		return writeRPCError(ctx, rpcID, errors.ErrTaskNotFound)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	return g.streamTask(ctx, rpcID, p.TaskID, subCtx, cancel, nil)
}
