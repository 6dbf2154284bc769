package push

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/superx/pkg/a2a"
)

func TestDeliverSkipsWithNoURL(t *testing.T) {
	Convey("Given a config with no url", t, func() {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer server.Close()

		svc := NewService()

		Convey("Deliver makes no network call", func() {
			svc.Deliver(context.Background(), map[string]any{"ok": true}, &a2a.PushConfig{TaskID: "t1"})
			So(atomic.LoadInt32(&hits), ShouldEqual, 0)
		})
	})
}

func TestDeliverHMACSignature(t *testing.T) {
	Convey("Given a push config with an hmac secret", t, func() {
		var (
			gotSig, gotTS string
			gotBody       []byte
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSig = r.Header.Get("x-a2a-signature")
			gotTS = r.Header.Get("x-a2a-timestamp")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t2", URL: server.URL, HMACSecret: "k"}

		Convey("Deliver sends a verifiable HMAC-SHA256 signature over timestamp.body", func() {
			svc.Deliver(context.Background(), map[string]any{"status": "working"}, cfg)

			So(gotTS, ShouldNotBeEmpty)
			So(gotSig, ShouldNotBeEmpty)

			mac := hmac.New(sha256.New, []byte("k"))
			mac.Write([]byte(gotTS + "." + string(gotBody)))
			want := hex.EncodeToString(mac.Sum(nil))
			So(gotSig, ShouldEqual, want)
		})
	})
}

func TestDeliverJWTAuth(t *testing.T) {
	Convey("Given a push config with a jwt secret", t, func() {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t3", URL: server.URL, JWTSecret: "secret", JWTKid: "kid-1"}

		Convey("Deliver attaches a bearer-prefixed HS256 token", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(gotAuth, ShouldStartWith, "Bearer ")
		})
	})
}

func TestDeliverEnvelopeShape(t *testing.T) {
	Convey("Given any push", t, func() {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &received)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t4", URL: server.URL}

		Convey("The body is wrapped in a streamResponse envelope", func() {
			svc.Deliver(context.Background(), map[string]any{"hello": "world"}, cfg)
			So(received, ShouldContainKey, "streamResponse")
		})
	})
}

func TestDeliverRetriesOn5xxThenSucceeds(t *testing.T) {
	Convey("Given a server that fails twice then succeeds", t, func() {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		svc.baseDelay = time.Millisecond
		cfg := &a2a.PushConfig{TaskID: "t5", URL: server.URL}

		Convey("Deliver retries up to maxAttempts and eventually succeeds", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(atomic.LoadInt32(&attempts), ShouldEqual, 3)
		})
	})
}

func TestDeliverStopsOn4xx(t *testing.T) {
	Convey("Given a server that always returns 400", t, func() {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		svc := NewService()
		svc.baseDelay = time.Millisecond
		cfg := &a2a.PushConfig{TaskID: "t6", URL: server.URL}

		Convey("Deliver makes exactly one attempt, no retry on a client error", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(atomic.LoadInt32(&attempts), ShouldEqual, 1)
		})
	})
}

func TestBackoffDoubles(t *testing.T) {
	Convey("Given a base delay", t, func() {
		base := 200 * time.Millisecond

		Convey("Each later attempt doubles the prior delay", func() {
			So(backoff(2, base), ShouldEqual, base)
			So(backoff(3, base), ShouldEqual, 2*base)
			So(backoff(4, base), ShouldEqual, 4*base)
		})
	})
}

func TestDeliverExhaustsRetries(t *testing.T) {
	Convey("Given a server that always errors", t, func() {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := NewService()
		svc.baseDelay = time.Millisecond
		cfg := &a2a.PushConfig{TaskID: "t7", URL: server.URL}

		Convey("Deliver gives up after maxAttempts", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(atomic.LoadInt32(&attempts), ShouldEqual, int32(svc.maxAttempts))
		})
	})
}

func TestDeliverTokenHeader(t *testing.T) {
	Convey("Given a push config with a bearer token", t, func() {
		var gotToken string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get("x-a2a-token")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t8", URL: server.URL, Token: "tok-123"}

		Convey("Deliver sets x-a2a-token verbatim", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(gotToken, ShouldEqual, "tok-123")
		})
	})
}

func TestDeliverAllThreeAuthModesAreAdditive(t *testing.T) {
	Convey("Given a config with token, hmac, and jwt all set", t, func() {
		headers := map[string]string{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers["token"] = r.Header.Get("x-a2a-token")
			headers["sig"] = r.Header.Get("x-a2a-signature")
			headers["auth"] = r.Header.Get("authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{
			TaskID:     "t9",
			URL:        server.URL,
			Token:      "tok",
			HMACSecret: "sec",
			JWTSecret:  "jsec",
		}

		Convey("All three headers are present on the same request", func() {
			svc.Deliver(context.Background(), map[string]any{}, cfg)
			So(headers["token"], ShouldEqual, "tok")
			So(headers["sig"], ShouldNotBeEmpty)
			So(headers["auth"], ShouldStartWith, "Bearer ")
		})
	})
}

func TestDeliverRespectsContextCancellation(t *testing.T) {
	Convey("Given a context canceled before the backoff sleep", t, func() {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := NewService()
		svc.baseDelay = 50 * time.Millisecond
		cfg := &a2a.PushConfig{TaskID: "t10", URL: server.URL}

		ctx, cancel := context.WithCancel(context.Background())

		Convey("Deliver stops retrying once ctx is done", func() {
			go func() {
				time.Sleep(5 * time.Millisecond)
				cancel()
			}()
			svc.Deliver(ctx, map[string]any{}, cfg)
			So(atomic.LoadInt32(&attempts), ShouldBeLessThan, int32(svc.maxAttempts)+1)
		})
	})
}

func TestJWTTokenClaimsBindBody(t *testing.T) {
	Convey("Given two different bodies", t, func() {
		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t11", JWTSecret: "s"}

		Convey("Their signed tokens differ", func() {
			tok1, err1 := svc.jwtToken(cfg, []byte("a"))
			tok2, err2 := svc.jwtToken(cfg, []byte("b"))
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(tok1, ShouldNotEqual, tok2)
		})
	})
}

func TestAttemptStatusPassthrough(t *testing.T) {
	Convey("Given a server returning a fixed status", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		defer server.Close()

		svc := NewService()
		cfg := &a2a.PushConfig{TaskID: "t12", URL: server.URL}

		Convey("attempt reports the exact status code", func() {
			status, err := svc.attempt(context.Background(), cfg, []byte("{}"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusTeapot)
			So(strconv.Itoa(status), ShouldEqual, "418")
		})
	})
}
