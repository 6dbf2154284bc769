/*
Package task implements C4 (the task store) and C5 (the subscription bus):
the authoritative map of task id to payload, terminal-state immutability,
artifact-merge-by-identity, and local fan-out to subscribers.
*/
package task

import (
	"context"
	"sync"
	"time"

	"github.com/theapemachine/superx/pkg/a2a"
)

// EventKind discriminates the shape of Event.Data.
type EventKind string

const (
	EventTaskUpdate     EventKind = "task_update"
	EventStatusUpdate   EventKind = "status_update"
	EventArtifactUpdate EventKind = "artifact_update"
	EventHalt           EventKind = "halt"
)

// Event is what C5 broadcasts to a task's subscribers. Task is always the
// full, merged task for TaskUpdate/StatusUpdate/ArtifactUpdate kinds; for
// Halt it is nil and Reason explains why the stream ended.
type Event struct {
	Kind   EventKind
	Task   *a2a.Task
	Reason string
}

// Bus is the per-task subscriber registry (C5). Subscribe monitors the
// caller's context the way the source's "monitor-on-subscribe" does: when
// ctx is done the pair is swept, mirroring a process-down handler.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers ctx's caller as a listener for taskID and returns the
// channel it will receive events on. The channel is never closed by
// Subscribe; it stops receiving once ctx is done and is swept from the
// registry shortly after.
func (b *Bus) Subscribe(ctx context.Context, taskID string) <-chan Event {
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[chan Event]struct{})
	}
	b.subs[taskID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[taskID], ch)
		if len(b.subs[taskID]) == 0 {
			delete(b.subs, taskID)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Broadcast delivers ev to every subscriber currently registered for
// taskID, in FIFO order relative to this call. A subscriber that can't
// keep up is given a grace period before its event is dropped, so one
// stuck reader can't stall delivery to every other task indefinitely.
func (b *Bus) Broadcast(taskID string, ev Event) {
	b.mu.Lock()
	subs := b.subs[taskID]
	chans := make([]chan Event, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		case <-time.After(2 * time.Second):
		}
	}
}

// SubscriberCount reports how many live subscribers taskID currently has.
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}
