package registry

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestUpsertAndGet(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		r := New()

		Convey("Upserting an agent makes it retrievable by id", func() {
			r.Upsert(&Agent{ID: "a1", URL: "http://srv", Protocol: "a2a"})

			got, ok := r.Get("a1")
			So(ok, ShouldBeTrue)
			So(got.URL, ShouldEqual, "http://srv")
		})

		Convey("Getting an unknown id reports not found", func() {
			_, ok := r.Get("missing")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestUpsertOverwrites(t *testing.T) {
	Convey("Given an agent already registered", t, func() {
		r := New()
		r.Upsert(&Agent{ID: "a1", URL: "http://one"})

		Convey("Re-upserting the same id replaces its attributes", func() {
			r.Upsert(&Agent{ID: "a1", URL: "http://two"})

			got, ok := r.Get("a1")
			So(ok, ShouldBeTrue)
			So(got.URL, ShouldEqual, "http://two")
		})
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	Convey("Given a registered agent", t, func() {
		r := New()
		r.Upsert(&Agent{ID: "a1", URL: "http://srv"})

		Convey("Deleting it twice does not error and it stays gone", func() {
			r.Delete("a1")
			r.Delete("a1")

			_, ok := r.Get("a1")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestList(t *testing.T) {
	Convey("Given two registered agents", t, func() {
		r := New()
		r.Upsert(&Agent{ID: "a1", URL: "http://one"})
		r.Upsert(&Agent{ID: "a2", URL: "http://two"})

		Convey("List returns both", func() {
			So(len(r.List()), ShouldEqual, 2)
		})
	})
}

func TestAgentValidate(t *testing.T) {
	Convey("Given an agent missing a url", t, func() {
		a := &Agent{ID: "a1"}

		Convey("Validate fails", func() {
			So(a.Validate(), ShouldBeFalse)
		})
	})

	Convey("Given a fully specified agent", t, func() {
		a := &Agent{ID: "a1", URL: "http://srv"}

		Convey("Validate passes", func() {
			So(a.Validate(), ShouldBeTrue)
		})
	})
}
