package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/theapemachine/superx/pkg/errors"
	"github.com/theapemachine/superx/pkg/jsonrpc"
	"github.com/theapemachine/superx/pkg/sse"
	"github.com/theapemachine/superx/pkg/task"
)

// keepAliveInterval matches §5's 15s SSE keep-alive cadence.
const keepAliveInterval = 15 * time.Second

// streamTask writes the SSE response body for both tasks.subscribe and
// message.stream: bus events until the task reaches a terminal state,
// periodic keep-alive comments, and a final error frame if replyErrs
// (nil for a plain subscribe) ever delivers a stream_error.
func (g *Gateway) streamTask(ctx fiber.Ctx, rpcID json.RawMessage, taskID string, subCtx context.Context, cancel context.CancelFunc, replyErrs <-chan sse.Reply) error {
	ch, snapshot := g.store.Subscribe(subCtx, taskID)

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeFrame := func(result any) bool {
			resp := jsonrpc.NewResultResponse(rpcID, result)
			b, err := json.Marshal(resp)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			return w.Flush() == nil
		}

		if snapshot != nil {
			if !writeFrame(snapshot) {
				return
			}
			if snapshot.Status.State.Terminal() {
				return
			}
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Kind == task.EventHalt {
					return
				}
				if !writeFrame(ev.Task) {
					return
				}
				if ev.Task != nil && ev.Task.Status.State.Terminal() {
					return
				}

			case r, ok := <-replyErrs:
				if !ok {
					continue
				}
				if r.Kind != sse.ReplyError {
					continue
				}
				rpcErr := errors.ErrRemoteError.WithMessagef("upstream stream error: %s", r.Reason)
				if r.Status != 0 {
					rpcErr = rpcErr.WithMessagef("upstream status %d", r.Status)
				}
				b, _ := json.Marshal(jsonrpc.NewErrorResponse(rpcID, rpcErr))
				fmt.Fprintf(w, "data: %s\n\n", b)
				w.Flush()
				return

			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				if w.Flush() != nil {
					return
				}
			}
		}
	})

	return nil
}

// writeRPCError sends a single, non-streaming JSON-RPC error response at
// HTTP 400, per §6.
func writeRPCError(ctx fiber.Ctx, rpcID json.RawMessage, rpcErr *errors.RpcError) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(jsonrpc.NewErrorResponse(rpcID, rpcErr))
}

// writeRPCResult sends a single, non-streaming JSON-RPC success response
// at HTTP 200.
func writeRPCResult(ctx fiber.Ctx, rpcID json.RawMessage, result any) error {
	return ctx.Status(fiber.StatusOK).JSON(jsonrpc.NewResultResponse(rpcID, result))
}
