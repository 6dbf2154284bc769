package a2a

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
)

/*
Task is the authoritative payload tracked by the task store (C4). Its
ContextID groups related tasks the way the upstream agent's session does;
the gateway never interprets it beyond pass-through.
*/
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (task *Task) Validate() bool {
	return valgo.Is(
		valgo.String(task.ID).Not().Blank(),
		valgo.String(string(task.Status.State)).Not().Blank(),
	).Valid()
}

// NewTask builds a submitted task, generating an id when the caller (or
// upstream) didn't supply one.
func NewTask(id string) *Task {
	if id == "" {
		id = uuid.NewString()
	}

	return &Task{
		ID: id,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now(),
		},
		History:   make([]Message, 0),
		Artifacts: make([]Artifact, 0),
	}
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}
	return &task.History[len(task.History)-1]
}

// MergeArtifact applies invariant I-T2: an artifact whose identity key
// matches an existing one replaces it in place, otherwise it is appended.
// An artifact with no determinable identity is always appended.
func (task *Task) MergeArtifact(incoming Artifact) {
	key, ok := incoming.Identity()
	if !ok {
		task.Artifacts = append(task.Artifacts, incoming)
		return
	}

	for i := range task.Artifacts {
		existingKey, existingOK := task.Artifacts[i].Identity()
		if existingOK && existingKey == key {
			task.Artifacts[i] = incoming
			return
		}
	}

	task.Artifacts = append(task.Artifacts, incoming)
}

/*
StatusUpdate is the wire shape of a streamed status transition, matching
the {taskId, status, ...} payload apply_status_update expects.
*/
type StatusUpdate struct {
	TaskID   string         `json:"taskId"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

/*
ArtifactUpdate is the wire shape of a streamed artifact delivery. One of
Artifact/Artifacts is populated; apply_artifact_update folds whichever form
arrives into a flat []Artifact.
*/
type ArtifactUpdate struct {
	TaskID    string         `json:"taskId"`
	Artifact  *Artifact      `json:"artifact,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FlatArtifacts flattens whichever of Artifact/Artifacts was populated.
func (u ArtifactUpdate) FlatArtifacts() []Artifact {
	if u.Artifact != nil {
		return append([]Artifact{*u.Artifact}, u.Artifacts...)
	}
	return u.Artifacts
}

func (task *Task) String() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	if task.ContextID != "" {
		sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(task.ContextID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}
	sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")

	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
		}
	}

	if len(task.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", task.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
