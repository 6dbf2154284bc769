package protocol

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistryFallback(t *testing.T) {
	Convey("Given a registry with one a2a adapter", t, func() {
		r := NewRegistry()
		r.Register(NewA2AAdapter("0.3.0"))

		Convey("An unknown version falls back to latest for the protocol", func() {
			a := r.Resolve("a2a", "9.9.9")
			So(a, ShouldNotBeNil)
			So(a.ProtocolVersion(), ShouldEqual, "0.3.0")
		})

		Convey("An unknown protocol defaults to a2a", func() {
			a := r.Resolve("telepathy", "1")
			So(a, ShouldNotBeNil)
			So(a.ProtocolName(), ShouldEqual, "a2a")
		})
	})
}

func TestA2AWireMethodMapping(t *testing.T) {
	Convey("Given the A2A adapter", t, func() {
		a := NewA2AAdapter("")

		Convey("PascalCase and slash forms both normalize", func() {
			m1, ok1 := a.NormalizeMethod("SendMessage")
			m2, ok2 := a.NormalizeMethod("message/send")
			So(ok1, ShouldBeTrue)
			So(ok2, ShouldBeTrue)
			So(m1, ShouldEqual, m2)
		})

		Convey("Encode writes task id to both id and taskId params", func() {
			raw, err := a.Encode(Envelope{Method: GetTask, TaskID: "t1", RPCID: []byte(`"1"`)})
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"id":"t1"`)
			So(string(raw), ShouldContainSubstring, `"taskId":"t1"`)
		})
	})
}

func TestDecodeStreamEvent(t *testing.T) {
	Convey("Given the A2A adapter", t, func() {
		a := NewA2AAdapter("")

		Convey("A result frame decodes ok", func() {
			ev := a.DecodeStreamEvent([]byte(`data: {"result":{"id":"t1"}}`))
			So(ev.OK, ShouldBeTrue)
		})

		Convey("An error frame decodes not-ok with remote kind", func() {
			ev := a.DecodeStreamEvent([]byte(`data: {"error":{"code":-32099}}`))
			So(ev.OK, ShouldBeFalse)
			So(ev.ErrKind, ShouldEqual, "remote")
		})

		Convey("Garbage decodes not-ok with decode kind", func() {
			ev := a.DecodeStreamEvent([]byte(`not json`))
			So(ev.OK, ShouldBeFalse)
			So(ev.ErrKind, ShouldEqual, "decode")
		})
	})
}

func TestMCPNotificationHasNoID(t *testing.T) {
	Convey("Given the MCP adapter encoding a notification", t, func() {
		m := NewMCPAdapter("")
		raw, err := m.Encode(Envelope{Method: Initialized, RPCID: []byte(`1`)})
		So(err, ShouldBeNil)
		So(string(raw), ShouldNotContainSubstring, `"id"`)
		So(string(raw), ShouldContainSubstring, `notifications/initialized`)
	})
}
