package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry counters mirror the named events spec §4.2/§4.5 require every
// admission decision and push attempt to emit: call_start/call_stop/
// call_error, the breaker_* transitions, backpressure_reject, and
// push_start/push_success/push_failure.
var (
	calls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superx",
		Subsystem: "worker",
		Name:      "calls_total",
		Help:      "Outbound agent calls by lifecycle event.",
	}, []string{"agent_id", "event"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superx",
		Subsystem: "worker",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions and rejections.",
	}, []string{"agent_id", "event"})

	inFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "superx",
		Subsystem: "worker",
		Name:      "in_flight",
		Help:      "Current in-flight outbound calls per agent.",
	}, []string{"agent_id"})

	pushAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superx",
		Subsystem: "push",
		Name:      "attempts_total",
		Help:      "Outbound webhook delivery attempts by outcome.",
	}, []string{"event"})
)

// RecordCall records one of call_start/call_stop/call_error for an agent.
func RecordCall(agentID, event string) { calls.WithLabelValues(agentID, event).Inc() }

// RecordBreaker records a breaker transition or admission rejection.
func RecordBreaker(agentID, event string) { breakerTransitions.WithLabelValues(agentID, event).Inc() }

// SetInFlight publishes the current in-flight count for an agent.
func SetInFlight(agentID string, n int) { inFlight.WithLabelValues(agentID).Set(float64(n)) }

// RecordPush records push_start/push_success/push_failure.
func RecordPush(event string) { pushAttempts.WithLabelValues(event).Inc() }

// Handler exposes the registered metrics at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
