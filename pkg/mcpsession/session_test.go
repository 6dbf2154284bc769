package mcpsession

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewDefaultsProtocolVersion(t *testing.T) {
	Convey("Given a config with no protocol version", t, func() {
		s := New(Config{AgentID: "m1", Kind: TransportHTTP, URL: "http://example.invalid"})

		Convey("It defaults to the 2025-03-27 wire version", func() {
			So(s.cfg.ProtocolVersion, ShouldEqual, "2025-03-27")
		})

		Convey("It starts in the connecting state", func() {
			So(s.State(), ShouldEqual, StateConnecting)
		})
	})
}

func TestListToolsRejectsBeforeReady(t *testing.T) {
	Convey("Given a session that has never connected", t, func() {
		s := New(Config{AgentID: "m2", Kind: TransportHTTP, URL: "http://example.invalid"})

		Convey("ListTools is rejected", func() {
			_, rpcErr := s.ListTools()
			So(rpcErr, ShouldNotBeNil)
		})

		Convey("CallTool is rejected", func() {
			_, rpcErr := s.CallTool(nil, "some_tool", nil)
			So(rpcErr, ShouldNotBeNil)
		})

		Convey("AgentCard is rejected", func() {
			_, rpcErr := s.AgentCard()
			So(rpcErr, ShouldNotBeNil)
		})
	})
}

func TestInvalidateCachesClearsAllThree(t *testing.T) {
	Convey("Given a session with populated caches", t, func() {
		s := New(Config{AgentID: "m3", Kind: TransportHTTP, URL: "http://example.invalid"})
		s.state = StateReady
		s.tools = []mcp.Tool{{}}

		Convey("InvalidateCaches empties tools, resources and prompts", func() {
			s.InvalidateCaches()
			So(s.tools, ShouldBeNil)
			So(s.resources, ShouldBeNil)
			So(s.prompts, ShouldBeNil)
		})
	})
}

func TestCloseWithoutConnectIsANoop(t *testing.T) {
	Convey("Given a session that never opened a transport", t, func() {
		s := New(Config{AgentID: "m4", Kind: TransportHTTP, URL: "http://example.invalid"})

		Convey("Close succeeds and leaves the session closed", func() {
			err := s.Close(nil)
			So(err, ShouldBeNil)
			So(s.State(), ShouldEqual, StateClosed)
		})
	})
}
