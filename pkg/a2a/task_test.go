package a2a

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewTask(t *testing.T) {
	Convey("Given a blank id", t, func() {
		task := NewTask("")

		Convey("Then an id is generated and the task starts submitted", func() {
			So(task.ID, ShouldNotBeEmpty)
			So(task.Status.State, ShouldEqual, TaskStateSubmitted)
		})
	})
}

func TestTaskStateTerminal(t *testing.T) {
	Convey("Given each task state", t, func() {
		terminal := map[TaskState]bool{
			TaskStateSubmitted:     false,
			TaskStateWorking:       false,
			TaskStateInputRequired: false,
			TaskStateCompleted:     true,
			TaskStateFailed:        true,
			TaskStateCanceled:      true,
			TaskStateRejected:      true,
		}

		for state, want := range terminal {
			Convey(string(state), func() {
				So(state.Terminal(), ShouldEqual, want)
			})
		}
	})
}

func TestMergeArtifactByIdentity(t *testing.T) {
	Convey("Given a task with one artifact", t, func() {
		task := NewTask("t1")
		name := "result"
		task.MergeArtifact(Artifact{ArtifactID: "a1", Name: &name, Parts: []Part{NewTextPart("v1")}})

		Convey("Merging an artifact with the same identity replaces it", func() {
			task.MergeArtifact(Artifact{ArtifactID: "a1", Name: &name, Parts: []Part{NewTextPart("v2")}})

			So(len(task.Artifacts), ShouldEqual, 1)
			So(task.Artifacts[0].Parts[0].Text, ShouldEqual, "v2")
		})

		Convey("Merging an artifact with a different identity appends", func() {
			task.MergeArtifact(Artifact{ArtifactID: "a2", Parts: []Part{NewTextPart("v3")}})

			So(len(task.Artifacts), ShouldEqual, 2)
		})

		Convey("An artifact with no determinable identity always appends", func() {
			task.MergeArtifact(Artifact{Parts: []Part{NewTextPart("v4")}})
			task.MergeArtifact(Artifact{Parts: []Part{NewTextPart("v5")}})

			So(len(task.Artifacts), ShouldEqual, 3)
		})
	})
}

func TestArtifactUpdateFlatten(t *testing.T) {
	Convey("Given an ArtifactUpdate with both singular and plural forms set", t, func() {
		u := ArtifactUpdate{
			Artifact:  &Artifact{ArtifactID: "a1"},
			Artifacts: []Artifact{{ArtifactID: "a2"}},
		}

		Convey("FlatArtifacts concatenates with Artifact first", func() {
			flat := u.FlatArtifacts()
			So(len(flat), ShouldEqual, 2)
			So(flat[0].ArtifactID, ShouldEqual, "a1")
			So(flat[1].ArtifactID, ShouldEqual, "a2")
		})
	})
}
