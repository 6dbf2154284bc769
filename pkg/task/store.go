package task

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/errors"
)

// Notifier is the push-dispatch side of a Put: C6's Service satisfies this
// so the store never imports the notifier's HTTP/retry internals.
type Notifier interface {
	Deliver(ctx context.Context, payload any, cfg *a2a.PushConfig)
}

// ListOptions bounds a List call. A zero Limit means unbounded.
type ListOptions struct {
	Limit int
}

// Store is C4, the authoritative task map. It owns terminal-state
// immutability (I-T1) and artifact-merge-by-identity (I-T2), and it is the
// only writer of task state; C5 and C6 are told about writes, never asked
// to produce them.
type Store struct {
	tasks       map[string]*a2a.Task
	pushConfigs map[string]map[string]*a2a.PushConfig // taskID -> configID -> config
	bus         *Bus
	notifier    Notifier
	webhooks    chan webhookJob

	commit chan func()
}

type webhookJob struct {
	payload any
	cfg     *a2a.PushConfig
}

// New builds a Store bound to bus for local fan-out and notifier for
// outbound webhook dispatch. notifier may be nil in tests that don't care
// about push delivery.
func New(bus *Bus, notifier Notifier) *Store {
	s := &Store{
		tasks:       make(map[string]*a2a.Task),
		pushConfigs: make(map[string]map[string]*a2a.PushConfig),
		bus:         bus,
		notifier:    notifier,
		commit:      make(chan func()),
	}
	go s.loop()
	return s
}

// loop serializes every mutation through a single goroutine, the same
// one-actor-per-owned-state shape §5 asks for: admission decisions and
// terminal-state checks are linearizable because only this goroutine ever
// touches s.tasks or s.pushConfigs.
func (s *Store) loop() {
	for fn := range s.commit {
		fn()
	}
}

// do runs fn on the store's owning goroutine and blocks until it returns.
func (s *Store) do(fn func()) {
	done := make(chan struct{})
	s.commit <- func() {
		fn()
		close(done)
	}
	<-done
}

// Put upserts task. It fails invalid_task if the id is blank, and terminal
// if the prior stored value (if any) was already in a terminal state
// (I-T1). On success it broadcasts task_update and dispatches every stored
// push config plus webhook for the task.
func (s *Store) Put(ctx context.Context, t *a2a.Task) *errors.RpcError {
	if t == nil || t.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("invalid_task")
	}

	var rpcErr *errors.RpcError
	s.do(func() {
		if prior, ok := s.tasks[t.ID]; ok && prior.Status.State.Terminal() {
			rpcErr = errors.ErrTerminal
			return
		}
		s.tasks[t.ID] = t
		s.dispatchLocked(ctx, t)
	})
	return rpcErr
}

// dispatchLocked must be called from the store's owning goroutine. It
// broadcasts the fresh value and enqueues a push delivery per registered
// config; it never blocks on delivery itself.
func (s *Store) dispatchLocked(ctx context.Context, t *a2a.Task) {
	s.bus.Broadcast(t.ID, Event{Kind: EventTaskUpdate, Task: t})

	if s.notifier == nil {
		return
	}
	for _, cfg := range s.pushConfigs[t.ID] {
		go s.notifier.Deliver(ctx, map[string]any{"task": t}, cfg)
	}
}

// Get returns the current task, or nil if it doesn't exist.
func (s *Store) Get(id string) *a2a.Task {
	var out *a2a.Task
	s.do(func() {
		if t, ok := s.tasks[id]; ok {
			out = t
		}
	})
	return out
}

// Delete removes a task and its push configs; idempotent. It broadcasts a
// halt so live subscribers stop waiting on a task that no longer exists.
func (s *Store) Delete(id string) {
	s.do(func() {
		if _, ok := s.tasks[id]; !ok {
			return
		}
		delete(s.tasks, id)
		delete(s.pushConfigs, id)
		s.bus.Broadcast(id, Event{Kind: EventHalt, Reason: "deleted"})
	})
}

// List is a best-effort enumeration, newest-insertion-order is not
// guaranteed since the backing map has none; callers needing order should
// sort client-side.
func (s *Store) List(opts ListOptions) []*a2a.Task {
	var out []*a2a.Task
	s.do(func() {
		out = make([]*a2a.Task, 0, len(s.tasks))
		for _, t := range s.tasks {
			out = append(out, t)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	})
	return out
}

// ApplyStatusUpdate loads the task, overwrites its status field in place,
// and commits. Open Question 3 in the source spec is resolved here
// explicitly: the terminal check happens at commit time against whatever
// is currently stored, not against a value read earlier by the caller, so
// a task that turned terminal between load and merge is still protected.
func (s *Store) ApplyStatusUpdate(ctx context.Context, u a2a.StatusUpdate) (*a2a.Task, *errors.RpcError) {
	if u.TaskID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("invalid")
	}

	var (
		result *a2a.Task
		rpcErr *errors.RpcError
	)
	s.do(func() {
		current, ok := s.tasks[u.TaskID]
		if !ok {
			rpcErr = errors.ErrTaskNotFound
			return
		}
		if current.Status.State.Terminal() {
			rpcErr = errors.ErrTerminal
			return
		}

		merged := *current
		merged.Status = u.Status
		if merged.Status.Timestamp.IsZero() {
			merged.Status.Timestamp = time.Now()
		}
		if u.Metadata != nil {
			merged.Metadata = u.Metadata
		}

		s.tasks[u.TaskID] = &merged
		s.bus.Broadcast(u.TaskID, Event{Kind: EventStatusUpdate, Task: &merged})
		s.dispatchLocked(ctx, &merged)
		result = &merged
	})
	return result, rpcErr
}

// ApplyArtifactUpdate loads the task, merges each incoming artifact by
// identity (I-T2), and commits under the same terminal guard as
// ApplyStatusUpdate.
func (s *Store) ApplyArtifactUpdate(ctx context.Context, u a2a.ArtifactUpdate) (*a2a.Task, *errors.RpcError) {
	if u.TaskID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("invalid")
	}

	var (
		result *a2a.Task
		rpcErr *errors.RpcError
	)
	s.do(func() {
		current, ok := s.tasks[u.TaskID]
		if !ok {
			rpcErr = errors.ErrTaskNotFound
			return
		}
		if current.Status.State.Terminal() {
			rpcErr = errors.ErrTerminal
			return
		}

		merged := *current
		merged.Artifacts = append([]a2a.Artifact(nil), current.Artifacts...)
		for _, artifact := range u.FlatArtifacts() {
			merged.MergeArtifact(artifact)
		}

		s.tasks[u.TaskID] = &merged
		s.bus.Broadcast(u.TaskID, Event{Kind: EventArtifactUpdate, Task: &merged})
		s.dispatchLocked(ctx, &merged)
		result = &merged
	})
	return result, rpcErr
}

// Subscribe registers ctx's caller with the bus and returns the current
// snapshot of the task (nil if it doesn't exist yet — a subscriber may
// arrive before the first write).
func (s *Store) Subscribe(ctx context.Context, taskID string) (<-chan Event, *a2a.Task) {
	ch := s.bus.Subscribe(ctx, taskID)
	return ch, s.Get(taskID)
}

// SetPushConfig registers or replaces a push config for a task.
func (s *Store) SetPushConfig(cfg *a2a.PushConfig) *errors.RpcError {
	if cfg.URL == "" {
		return errors.ErrInvalidParams.WithMessagef("url is required")
	}
	if cfg.ConfigID == "" {
		cfg.ConfigID = uuid.NewString()
	}

	s.do(func() {
		if s.pushConfigs[cfg.TaskID] == nil {
			s.pushConfigs[cfg.TaskID] = make(map[string]*a2a.PushConfig)
		}
		s.pushConfigs[cfg.TaskID][cfg.ConfigID] = cfg
	})
	return nil
}

// GetPushConfig fetches one config by id.
func (s *Store) GetPushConfig(taskID, configID string) *a2a.PushConfig {
	var out *a2a.PushConfig
	s.do(func() {
		if cfg, ok := s.pushConfigs[taskID][configID]; ok {
			out = cfg
		}
	})
	return out
}

// ListPushConfigs returns every config registered for a task.
func (s *Store) ListPushConfigs(taskID string) []*a2a.PushConfig {
	var out []*a2a.PushConfig
	s.do(func() {
		out = make([]*a2a.PushConfig, 0, len(s.pushConfigs[taskID]))
		for _, cfg := range s.pushConfigs[taskID] {
			out = append(out, cfg)
		}
	})
	return out
}

// DeletePushConfig removes one config; idempotent.
func (s *Store) DeletePushConfig(taskID, configID string) {
	s.do(func() {
		delete(s.pushConfigs[taskID], configID)
	})
}

// Close stops the store's owning goroutine. Safe to call once at shutdown.
func (s *Store) Close() {
	close(s.commit)
	log.Debug("task store closed")
}
