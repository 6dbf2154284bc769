/*
Package sse implements C7, the SSE consumer. It drives the raw
*http.Response opened by pkg/transport, splits it into newline-delimited
frames, decodes each with the owning protocol's adapter, and dispatches the
result into the task store. It is grounded on the teacher's SSE client
(pkg/sse/client.go upstream) but inverted: that client owns the connection
end to end, while this one consumes a response object C8 already opened so
the worker keeps control of admission and cancellation.
*/
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/metrics"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/task"
)

// ReplyKind discriminates the two messages a Consumer ever sends to
// reply_to: the one-shot init reply and a terminal error.
type ReplyKind string

const (
	ReplyInit  ReplyKind = "stream_init"
	ReplyError ReplyKind = "stream_error"
)

// Reply is what a Consumer sends to the reply_to channel supplied by its
// caller (C10's in-flight request, or C8 on its behalf).
type Reply struct {
	Kind   ReplyKind
	RPCID  json.RawMessage
	Body   json.RawMessage
	Status int
	Reason string
}

// Request is everything a Consumer needs to drive one upstream stream.
type Request struct {
	Response *http.Response
	Adapter  protocol.Adapter
	ReplyTo  chan<- Reply
	RPCID    json.RawMessage
}

// Consumer is C7. One instance can be reused across many streams; it holds
// no per-stream state.
type Consumer struct {
	store   *task.Store
	metrics *metrics.StreamingMetrics
}

func NewConsumer(store *task.Store) *Consumer {
	return &Consumer{store: store, metrics: metrics.NewStreamingMetrics()}
}

// frame is the union of shapes a decoded stream event's result may take.
// Exactly one field is expected to be populated; the rest are nil.
type frame struct {
	ID             string              `json:"id,omitempty"`
	StatusUpdate   *a2a.StatusUpdate   `json:"statusUpdate,omitempty"`
	ArtifactUpdate *a2a.ArtifactUpdate `json:"artifactUpdate,omitempty"`
	Task           *a2a.Task           `json:"task,omitempty"`
	Message        *a2a.Message        `json:"message,omitempty"`
}

// Run drives req.Response to completion (upstream EOF, ctx cancellation, or
// a :shutdown from the caller closing ctx). The HTTP status gate has
// already been checked by the caller before Run is invoked — Run only
// consumes a body known to be 2xx. It reports whether the stream ended
// cleanly (upstream EOF with no remote error frame) so the caller can feed
// the outcome into its own breaker/admission bookkeeping: a ctx
// cancellation, a transport read error, or a decoded remote error frame
// all count as a failure; a plain EOF does not.
func (c *Consumer) Run(ctx context.Context, req Request) bool {
	defer req.Response.Body.Close()

	connStart := time.Now()
	c.metrics.RecordConnection(true, time.Since(connStart))

	reader := bufio.NewReaderSize(req.Response.Body, 16*1024)
	var buf bytes.Buffer
	sentInit := false

	readLoop := func() ([]byte, bool, error) {
		for {
			chunk := make([]byte, 4096)
			n, err := reader.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
			}

			if frame, ok := splitFrame(&buf); ok {
				return frame, true, nil
			}

			if err != nil {
				if err == io.EOF {
					return nil, false, nil
				}
				return nil, false, err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.sendError(req, 0, ctx.Err().Error())
			return false
		default:
		}

		rawFrame, ok, err := readLoop()
		if !ok {
			if err != nil {
				c.sendError(req, 0, err.Error())
				return false
			}
			return true
		}
		if len(rawFrame) == 0 {
			continue
		}

		eventStart := time.Now()
		decoded := req.Adapter.DecodeStreamEvent(rawFrame)
		if !decoded.OK {
			if decoded.ErrKind == "remote" {
				c.sendError(req, 0, string(decoded.Result))
				return false
			}
			log.Debug("sse: skipping malformed frame", "err", decoded.Err)
			c.metrics.RecordEvent(true, 0, time.Since(eventStart))
			continue
		}

		if !sentInit {
			req.ReplyTo <- Reply{Kind: ReplyInit, RPCID: req.RPCID, Body: decoded.Result}
			sentInit = true
		}

		c.dispatch(ctx, decoded.Result)
		c.metrics.RecordEvent(false, 0, time.Since(eventStart))
	}
}

// splitFrame extracts the first \n\n-terminated frame from buf, trimming
// surrounding whitespace, and leaves any trailing partial fragment in buf
// for the next read. A "data: " prefix is left in place for the adapter's
// DecodeStreamEvent to strip.
func splitFrame(buf *bytes.Buffer) ([]byte, bool) {
	data := buf.Bytes()
	idx := bytes.Index(data, []byte("\n\n"))
	if idx == -1 {
		return nil, false
	}

	raw := make([]byte, idx)
	copy(raw, data[:idx])
	buf.Next(idx + 2)

	return bytes.TrimSpace(raw), true
}

func (c *Consumer) sendError(req Request, status int, reason string) {
	req.ReplyTo <- Reply{Kind: ReplyError, RPCID: req.RPCID, Status: status, Reason: reason}
}

// dispatch interprets one decoded event body and applies it to the task
// store. Any shape that doesn't match statusUpdate/artifactUpdate/task/
// message is ignored, never fatal.
func (c *Consumer) dispatch(ctx context.Context, body json.RawMessage) {
	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		log.Debug("sse: unrecognized event shape", "err", err)
		return
	}

	switch {
	case f.StatusUpdate != nil:
		if _, rpcErr := c.store.ApplyStatusUpdate(ctx, *f.StatusUpdate); rpcErr != nil {
			log.Debug("sse: status update rejected", "reason", rpcErr.Message)
		}
	case f.ArtifactUpdate != nil:
		if _, rpcErr := c.store.ApplyArtifactUpdate(ctx, *f.ArtifactUpdate); rpcErr != nil {
			log.Debug("sse: artifact update rejected", "reason", rpcErr.Message)
		}
	case f.Task != nil:
		if rpcErr := c.store.Put(ctx, f.Task); rpcErr != nil {
			log.Debug("sse: task put rejected", "reason", rpcErr.Message)
		}
	case f.Message != nil:
		id := f.ID
		synthetic := a2a.NewTask(id)
		synthetic.Status.State = a2a.TaskStateCompleted
		synthetic.History = append(synthetic.History, *f.Message)
		if rpcErr := c.store.Put(ctx, synthetic); rpcErr != nil {
			log.Debug("sse: synthetic task put rejected", "reason", rpcErr.Message)
		}
	default:
		log.Debug("sse: ignoring unrecognized event body")
	}
}
