package service

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/superx/pkg/cluster"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/task"
	"github.com/theapemachine/superx/pkg/transport"
	"github.com/theapemachine/superx/pkg/worker"
)

func testGateway() *Gateway {
	reg := registry.New()
	adapters := protocol.DefaultRegistry()
	trans := transport.New()
	pool := worker.NewPool(worker.DefaultConfig(), trans, nil)
	store := task.New(task.NewBus(), nil)
	cfg := DefaultConfig()
	return New(cfg, reg, adapters, pool, store, trans, cluster.New("agents", ""))
}

func TestAgentsUpsertGetListDelete(t *testing.T) {
	Convey("Given a gateway", t, func() {
		g := testGateway()

		Convey("agents.upsert registers an agent, agents.get/list see it, agents.delete removes it", func() {
			req := mustRequest(t, "1", "agents.upsert", map[string]any{
				"agent": map[string]any{"id": "a1", "url": "http://example.test"},
			})
			resp := g.dispatch(nil, req)
			So(resp.Error, ShouldBeNil)

			agent, ok := g.registry.Get("a1")
			So(ok, ShouldBeTrue)
			So(agent.URL, ShouldEqual, "http://example.test")

			listResp := g.dispatch(nil, mustRequest(t, "2", "agents.list", map[string]any{}))
			So(listResp.Error, ShouldBeNil)

			delResp := g.dispatch(nil, mustRequest(t, "3", "agents.delete", map[string]any{"id": "a1"}))
			So(delResp.Error, ShouldBeNil)

			_, ok = g.registry.Get("a1")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestAgentsGetUnknownIsAgentNotFound(t *testing.T) {
	Convey("Given a gateway with no agents", t, func() {
		g := testGateway()

		Convey("agents.get for an unknown id fails agent_not_found", func() {
			resp := g.dispatch(nil, mustRequest(t, "1", "agents.get", map[string]any{"id": "missing"}))
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, -32001)
		})
	})
}

func TestMessageSendHappyPath(t *testing.T) {
	Convey("Given an upstream that completes a task", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"id":"t1","status":{"state":"completed"},"artifacts":[]}}`))
		}))
		defer server.Close()

		g := testGateway()
		g.registry.Upsert(&registry.Agent{ID: "a1", URL: server.URL})

		Convey("message.send returns the completed task and it's retrievable via tasks.get", func() {
			sendReq := mustRequest(t, "1", "message.send", map[string]any{
				"agentId": "a1",
				"taskId":  "t1",
				"message": map[string]any{"role": "user", "parts": []map[string]any{{"text": "hi"}}},
			})
			resp := g.dispatch(t.Context(), sendReq)
			So(resp.Error, ShouldBeNil)

			getResp := g.dispatch(t.Context(), mustRequest(t, "2", "tasks.get", map[string]any{"taskId": "t1"}))
			So(getResp.Error, ShouldBeNil)
		})
	})
}

func TestMessageSendUnknownAgent(t *testing.T) {
	Convey("Given a gateway with no matching agent", t, func() {
		g := testGateway()

		Convey("message.send fails agent_not_found", func() {
			resp := g.dispatch(t.Context(), mustRequest(t, "1", "message.send", map[string]any{
				"agentId": "ghost",
				"message": map[string]any{"role": "user", "parts": []map[string]any{{"text": "hi"}}},
			}))
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, -32001)
		})
	})
}

func TestPushConfigSetGetListDelete(t *testing.T) {
	Convey("Given a gateway with an existing task", t, func() {
		g := testGateway()
		So(g.store.Put(t.Context(), newTestTask("t2")), ShouldBeNil)

		Convey("set/get/list/delete round-trip through /rpc", func() {
			setResp := g.dispatch(t.Context(), mustRequest(t, "1", "tasks.pushNotificationConfig.set", map[string]any{
				"taskId": "t2",
				"url":    "http://hook.test",
			}))
			So(setResp.Error, ShouldBeNil)

			listResp := g.dispatch(t.Context(), mustRequest(t, "2", "tasks.pushNotificationConfig.list", map[string]any{"taskId": "t2"}))
			So(listResp.Error, ShouldBeNil)
			configs := g.store.ListPushConfigs("t2")
			So(len(configs), ShouldEqual, 1)

			delResp := g.dispatch(t.Context(), mustRequest(t, "3", "tasks.pushNotificationConfig.delete", map[string]any{
				"taskId":   "t2",
				"configId": configs[0].ConfigID,
			}))
			So(delResp.Error, ShouldBeNil)
			So(len(g.store.ListPushConfigs("t2")), ShouldEqual, 0)
		})
	})
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	Convey("Given a gateway", t, func() {
		g := testGateway()

		Convey("an unrecognized method fails method_not_found", func() {
			resp := g.dispatch(t.Context(), mustRequest(t, "1", "does.not.exist", map[string]any{}))
			So(resp.Error, ShouldNotBeNil)
			So(resp.Error.Code, ShouldEqual, -32601)
		})
	})
}
