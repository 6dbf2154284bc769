package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/transport"
)

type fakeAlerter struct {
	count int32
}

func (f *fakeAlerter) AlertBreakerOpen(agentID string) {
	atomic.AddInt32(&f.count, 1)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.FailureWindow = time.Minute
	cfg.Cooldown = 30 * time.Millisecond
	cfg.MaxInFlight = 2
	cfg.CallTimeout = time.Second
	return cfg
}

func TestAdmissionRejectsOverMaxInFlight(t *testing.T) {
	Convey("Given a worker with max_in_flight 2", t, func() {
		w := New("a1", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		Convey("A third concurrent admission is rejected", func() {
			So(w.admit(), ShouldBeNil)
			So(w.admit(), ShouldBeNil)
			So(w.admit(), ShouldNotBeNil)
			So(w.InFlight(), ShouldEqual, 2)
		})
	})
}

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	Convey("Given a worker with failure_threshold 2", t, func() {
		alerter := &fakeAlerter{}
		w := New("a2", testConfig(), transport.New(), protocol.NewA2AAdapter(""), alerter)
		defer w.Close()

		Convey("Two consecutive failures open the breaker and fire an alert", func() {
			So(w.admit(), ShouldBeNil)
			w.outcome(true)
			So(w.admit(), ShouldBeNil)
			w.outcome(true)

			deadline := time.Now().Add(time.Second)
			for time.Now().Before(deadline) && w.Health().BreakerState != BreakerOpen {
				time.Sleep(time.Millisecond)
			}
			So(w.Health().BreakerState, ShouldEqual, BreakerOpen)

			deadline = time.Now().Add(time.Second)
			for time.Now().Before(deadline) && atomic.LoadInt32(&alerter.count) == 0 {
				time.Sleep(time.Millisecond)
			}
			So(atomic.LoadInt32(&alerter.count), ShouldEqual, 1)
		})
	})
}

func TestBreakerRejectsWhileCooldownActive(t *testing.T) {
	Convey("Given an open breaker still in cooldown", t, func() {
		w := New("a3", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		So(w.admit(), ShouldBeNil)
		w.outcome(true)
		So(w.admit(), ShouldBeNil)
		w.outcome(true)

		Convey("A call during cooldown is rejected circuit_open", func() {
			rpcErr := w.admit()
			So(rpcErr, ShouldNotBeNil)
			So(rpcErr.Message, ShouldEqual, "Circuit open")
		})
	})
}

func TestBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	Convey("Given a breaker past its cooldown", t, func() {
		w := New("a4", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		So(w.admit(), ShouldBeNil)
		w.outcome(true)
		So(w.admit(), ShouldBeNil)
		w.outcome(true)

		time.Sleep(50 * time.Millisecond)

		Convey("The first admission transitions to half_open and succeeds", func() {
			So(w.admit(), ShouldBeNil)
			So(w.Health().BreakerState, ShouldEqual, BreakerHalfOpen)

			Convey("A second concurrent probe is rejected", func() {
				So(w.admit(), ShouldNotBeNil)
			})

			Convey("A successful outcome closes the breaker", func() {
				w.outcome(false)
				So(w.Health().BreakerState, ShouldEqual, BreakerClosed)
				So(w.Health().FailureCount, ShouldEqual, 0)
			})
		})
	})
}

func Test4xxDoesNotCountTowardBreaker(t *testing.T) {
	Convey("Given repeated 4xx outcomes", t, func() {
		w := New("a5", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		Convey("The breaker never opens", func() {
			for i := 0; i < 10; i++ {
				So(w.admit(), ShouldBeNil)
				w.outcome(false)
			}
			So(w.Health().BreakerState, ShouldEqual, BreakerClosed)
		})
	})
}

func TestCallSuccessPath(t *testing.T) {
	Convey("Given an upstream that returns a result", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
		}))
		defer server.Close()

		w := New("a6", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		agent := &registry.Agent{ID: "a6", URL: server.URL}
		env := protocol.Envelope{Method: protocol.SendMessage}

		Convey("Call returns the decoded result and leaves the breaker closed", func() {
			result, rpcErr := w.Call(context.Background(), agent, env)
			So(rpcErr, ShouldBeNil)
			So(string(result), ShouldContainSubstring, "true")
			So(w.Health().BreakerState, ShouldEqual, BreakerClosed)
		})
	})
}

func TestCall5xxCountsAsFailure(t *testing.T) {
	Convey("Given an upstream that always 500s", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		w := New("a7", testConfig(), transport.New(), protocol.NewA2AAdapter(""), nil)
		defer w.Close()

		agent := &registry.Agent{ID: "a7", URL: server.URL}
		env := protocol.Envelope{Method: protocol.SendMessage}

		Convey("Two calls open the breaker", func() {
			_, err1 := w.Call(context.Background(), agent, env)
			So(err1, ShouldNotBeNil)
			_, err2 := w.Call(context.Background(), agent, env)
			So(err2, ShouldNotBeNil)
			So(w.Health().BreakerState, ShouldEqual, BreakerOpen)
		})
	})
}

func TestPoolReusesWorkerPerAgent(t *testing.T) {
	Convey("Given a pool", t, func() {
		pool := NewPool(DefaultConfig(), transport.New(), nil)

		Convey("Get returns the same worker instance for the same agent id", func() {
			w1 := pool.Get("x1", protocol.NewA2AAdapter(""))
			w2 := pool.Get("x1", protocol.NewA2AAdapter(""))
			So(w1, ShouldEqual, w2)
		})
	})
}
