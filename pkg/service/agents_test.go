package service

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/superx/pkg/mcpsession"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
)

func TestResolveAgentCardFetchesAndRewritesURL(t *testing.T) {
	Convey("Given an A2A agent serving its own agent card", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(`{"name":"demo agent","url":"http://upstream.internal"}`))
		}))
		defer server.Close()

		g := testGateway()
		agent := &registry.Agent{ID: "a1", URL: server.URL}
		g.registry.Upsert(agent)
		adapter := g.adapters.Resolve(agent.Protocol, agent.ProtocolVersion)

		Convey("resolveAgentCard rewrites the card's url to this gateway's proxy route", func() {
			card, rpcErr := g.resolveAgentCard(t.Context(), agent, adapter)
			So(rpcErr, ShouldBeNil)
			So(card.Name, ShouldEqual, "demo agent")
			So(card.URL, ShouldEqual, g.cfg.PublicBaseURL+"/agents/a1")
		})

		Convey("a second call within the TTL serves from cache without a new fetch", func() {
			_, rpcErr := g.resolveAgentCard(t.Context(), agent, adapter)
			So(rpcErr, ShouldBeNil)

			server.Close() // prove the second call can't possibly re-fetch

			card, rpcErr := g.resolveAgentCard(t.Context(), agent, adapter)
			So(rpcErr, ShouldBeNil)
			So(card.Name, ShouldEqual, "demo agent")
		})
	})
}

func TestAgentProxyLocalGetTask(t *testing.T) {
	Convey("Given a gateway with a stored task", t, func() {
		g := testGateway()
		g.registry.Upsert(&registry.Agent{ID: "a1", URL: "http://unused.test"})
		So(g.store.Put(t.Context(), newTestTask("t9")), ShouldBeNil)

		Convey("a decoded get_task envelope resolves locally against the store", func() {
			adapter := g.adapters.Resolve("a2a", "")
			env, err := adapter.Decode([]byte(`{"jsonrpc":"2.0","id":"1","method":"tasks/get","params":{"id":"t9"}}`))
			So(err, ShouldBeNil)
			So(env.Method, ShouldEqual, protocol.GetTask)

			t9 := g.store.Get(env.TaskID)
			So(t9, ShouldNotBeNil)
			So(t9.ID, ShouldEqual, "t9")
		})
	})
}

func TestMcpConfigForDefaultsToHTTPTransport(t *testing.T) {
	Convey("Given an MCP agent with no transport metadata", t, func() {
		g := testGateway()
		agent := &registry.Agent{ID: "mcp1", URL: "http://mcp.test", Protocol: "mcp"}

		Convey("mcpConfigFor defaults to HTTP", func() {
			cfg := g.mcpConfigFor(agent)
			So(cfg.Kind, ShouldEqual, mcpsession.TransportHTTP)
			So(cfg.URL, ShouldEqual, "http://mcp.test")
		})
	})
}

func TestMcpConfigForStdioFromMetadata(t *testing.T) {
	Convey("Given an MCP agent configured for stdio", t, func() {
		g := testGateway()
		agent := &registry.Agent{
			ID:       "mcp2",
			Protocol: "mcp",
			Metadata: map[string]any{
				"transport": "stdio",
				"command":   "mcp-server",
				"args":      []any{"--flag"},
			},
		}

		Convey("mcpConfigFor picks up the stdio command and args", func() {
			cfg := g.mcpConfigFor(agent)
			So(cfg.Command, ShouldEqual, "mcp-server")
			So(cfg.Args, ShouldResemble, []string{"--flag"})
		})
	})
}
