package cluster

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInfoWithoutClientsetIsSingleNode(t *testing.T) {
	Convey("Given a view built outside a cluster", t, func() {
		v := New("agents", "app=superx")

		Convey("Info reports itself as the only peer", func() {
			info := v.Info(context.Background())
			So(info.Role, ShouldEqual, Role)
			So(info.Peers, ShouldResemble, []string{info.NodeID})
		})
	})
}

func TestNodeIDIsStableAcrossCalls(t *testing.T) {
	Convey("Given a view", t, func() {
		v := New("agents", "")

		Convey("Two Info calls report the same node id", func() {
			a := v.Info(context.Background())
			b := v.Info(context.Background())
			So(a.NodeID, ShouldEqual, b.NodeID)
		})
	})
}
