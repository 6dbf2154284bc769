/*
Package worker implements C8, the per-agent supervised worker: in-flight
admission limiting and a sliding-window circuit breaker guard every
outbound call, synchronous or streaming, to one agent. Supervision here
means the same thing it does in the teacher's actor-style packages
(pkg/registry, pkg/task): one owning goroutine serializes every state
transition so admission decisions are linearizable without a mutex-guarded
read-modify-write race.
*/
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/theapemachine/superx/pkg/errors"
	"github.com/theapemachine/superx/pkg/metrics"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/sse"
	"github.com/theapemachine/superx/pkg/transport"
)

// BreakerState mirrors the three-state machine §4.2 specifies.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Config is the tunable admission policy for one worker, defaulted per
// §4.2's enumerated configuration.
type Config struct {
	MaxInFlight      int
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	CallTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxInFlight:      10,
		FailureThreshold: 5,
		FailureWindow:    30 * time.Second,
		Cooldown:         30 * time.Second,
		CallTimeout:      15 * time.Second,
	}
}

// BreakerAlerter is notified on a closed->open transition. Grounded on the
// teacher's Slack service (pkg/service/slack.go in the source repo):
// production operators page on this specific event.
type BreakerAlerter interface {
	AlertBreakerOpen(agentID string)
}

// Health is a point-in-time snapshot returned by Health.
type Health struct {
	AgentID      string
	InFlight     int
	MaxInFlight  int
	BreakerState BreakerState
	FailureCount int
}

// Worker is C8, one instance per agent_id. Callers never touch its fields
// directly; every interaction goes through Call/Stream/InFlight/Health, all
// of which hop onto the owning goroutine.
type Worker struct {
	agentID string
	cfg     Config
	trans   *transport.Client
	adapter protocol.Adapter
	alerter BreakerAlerter

	inFlight           int
	breakerState       BreakerState
	failureCount       int
	failureWindowStart time.Time
	cooldownUntil      time.Time
	halfOpenInFlight   bool

	commit chan func()
}

// New builds a Worker and starts its owning goroutine. Callers normally go
// through a Pool rather than constructing one directly.
func New(agentID string, cfg Config, trans *transport.Client, adapter protocol.Adapter, alerter BreakerAlerter) *Worker {
	w := &Worker{
		agentID:      agentID,
		cfg:          cfg,
		trans:        trans,
		adapter:      adapter,
		alerter:      alerter,
		breakerState: BreakerClosed,
		commit:       make(chan func()),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for fn := range w.commit {
		fn()
	}
}

func (w *Worker) do(fn func()) {
	done := make(chan struct{})
	w.commit <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close stops the worker's owning goroutine.
func (w *Worker) Close() { close(w.commit) }

// admit evaluates the five admission rules atomically and, if the call is
// admitted, increments in_flight before returning.
func (w *Worker) admit() *errors.RpcError {
	var rpcErr *errors.RpcError
	w.do(func() {
		now := time.Now()

		if w.breakerState == BreakerOpen && now.Before(w.cooldownUntil) {
			metrics.RecordBreaker(w.agentID, "breaker_reject")
			rpcErr = errors.ErrCircuitOpen
			return
		}

		if w.breakerState == BreakerOpen && !now.Before(w.cooldownUntil) {
			w.breakerState = BreakerHalfOpen
			w.halfOpenInFlight = false
			metrics.RecordBreaker(w.agentID, "breaker_half_open")
		}

		if w.breakerState == BreakerHalfOpen {
			if w.halfOpenInFlight {
				metrics.RecordBreaker(w.agentID, "breaker_reject")
				rpcErr = errors.ErrCircuitOpen
				return
			}
			w.halfOpenInFlight = true
		}

		if w.inFlight >= w.cfg.MaxInFlight {
			metrics.RecordBreaker(w.agentID, "backpressure_reject")
			rpcErr = errors.ErrAgentOverloaded
			return
		}

		w.inFlight++
		metrics.SetInFlight(w.agentID, w.inFlight)
		metrics.RecordCall(w.agentID, "call_start")
	})
	return rpcErr
}

// outcome applies §4.2's completion handling: decrement in_flight, update
// breaker/failure-window state, emit telemetry. isFailure covers timeout,
// transport error, HTTP 5xx, or a remote JSON-RPC error; a 4xx is reported
// via isFailure=false per the spec's default (not counted toward breaker).
func (w *Worker) outcome(isFailure bool) {
	w.do(func() {
		w.inFlight--
		if w.inFlight < 0 {
			w.inFlight = 0
		}
		metrics.SetInFlight(w.agentID, w.inFlight)
		w.halfOpenInFlight = false

		if !isFailure {
			if w.breakerState == BreakerHalfOpen {
				w.breakerState = BreakerClosed
				w.failureCount = 0
				metrics.RecordBreaker(w.agentID, "breaker_closed")
			}
			metrics.RecordCall(w.agentID, "call_stop")
			return
		}

		now := time.Now()
		if w.failureWindowStart.IsZero() || now.Sub(w.failureWindowStart) > w.cfg.FailureWindow {
			w.failureWindowStart = now
			w.failureCount = 1
		} else {
			w.failureCount++
		}

		if w.failureCount >= w.cfg.FailureThreshold && w.breakerState != BreakerOpen {
			w.breakerState = BreakerOpen
			w.cooldownUntil = now.Add(w.cfg.Cooldown)
			metrics.RecordBreaker(w.agentID, "breaker_open")
			if w.alerter != nil {
				go w.alerter.AlertBreakerOpen(w.agentID)
			}
		}

		metrics.RecordCall(w.agentID, "call_error")
	})
}

// Call performs a synchronous JSON-RPC round trip to the agent. env must
// already carry its RPCID; agent supplies url/bearer.
func (w *Worker) Call(ctx context.Context, agent *registry.Agent, env protocol.Envelope) (json.RawMessage, *errors.RpcError) {
	if rpcErr := w.admit(); rpcErr != nil {
		return nil, rpcErr
	}

	body, err := w.adapter.Encode(env)
	if err != nil {
		w.outcome(true)
		return nil, errors.ErrInternal.WithMessagef("encode: %v", err)
	}

	headers := map[string]string{}
	if agent.Bearer != "" {
		headers["Authorization"] = "Bearer " + agent.Bearer
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	result, err := w.trans.PostJSON(callCtx, agent.URL, headers, body, w.cfg.CallTimeout)
	if err != nil {
		if callCtx.Err() != nil {
			w.outcome(true)
			return nil, errors.ErrTimeout
		}
		w.outcome(true)
		return nil, errors.ErrRemoteError.WithMessagef("%v", err)
	}

	if result.Status >= 500 {
		w.outcome(true)
		return nil, errors.ErrRemoteError.WithMessagef("upstream status %d", result.Status)
	}
	if result.Status >= 400 {
		w.outcome(false)
		return nil, errors.ErrRemoteError.WithMessagef("upstream status %d", result.Status)
	}

	var frame struct {
		Result json.RawMessage `json:"result"`
		Error  *errors.RpcError `json:"error"`
	}
	if err := json.Unmarshal(result.Body, &frame); err != nil {
		w.outcome(true)
		return nil, errors.ErrInternal.WithMessagef("decode: %v", err)
	}

	if frame.Error != nil {
		w.outcome(true)
		return nil, frame.Error
	}

	w.outcome(false)
	return frame.Result, nil
}

// Stream opens an SSE round trip and hands the response to consumer,
// returning immediately once the upstream status line clears the
// 2xx gate — the consumer continues dispatching in the background.
func (w *Worker) Stream(ctx context.Context, agent *registry.Agent, env protocol.Envelope, consumer *sse.Consumer, replyTo chan<- sse.Reply) *errors.RpcError {
	if rpcErr := w.admit(); rpcErr != nil {
		return rpcErr
	}

	body, err := w.adapter.Encode(env)
	if err != nil {
		w.outcome(true)
		return errors.ErrInternal.WithMessagef("encode: %v", err)
	}

	headers := map[string]string{}
	if agent.Bearer != "" {
		headers["Authorization"] = "Bearer " + agent.Bearer
	}

	resp, err := w.trans.OpenStream(ctx, agent.URL, headers, body)
	if err != nil {
		w.outcome(true)
		replyTo <- sse.Reply{Kind: sse.ReplyError, RPCID: env.RPCID, Reason: err.Error()}
		return errors.ErrRemoteError.WithMessagef("%v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		w.outcome(resp.StatusCode < 400 || resp.StatusCode >= 500)
		replyTo <- sse.Reply{Kind: sse.ReplyError, RPCID: env.RPCID, Status: resp.StatusCode}
		return errors.ErrRemoteError.WithMessagef("upstream status %d", resp.StatusCode)
	}

	go func() {
		ok := consumer.Run(ctx, sse.Request{
			Response: resp,
			Adapter:  w.adapter,
			ReplyTo:  replyTo,
			RPCID:    env.RPCID,
		})
		w.outcome(!ok)
	}()

	return nil
}

// InFlight reports the current admitted-call count.
func (w *Worker) InFlight() int {
	var n int
	w.do(func() { n = w.inFlight })
	return n
}

// Health returns a snapshot for the /health and /cluster surfaces.
func (w *Worker) Health() Health {
	var h Health
	w.do(func() {
		h = Health{
			AgentID:      w.agentID,
			InFlight:     w.inFlight,
			MaxInFlight:  w.cfg.MaxInFlight,
			BreakerState: w.breakerState,
			FailureCount: w.failureCount,
		}
	})
	return h
}
