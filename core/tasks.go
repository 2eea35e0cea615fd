package core

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Skryldev/imagefetch/dispatch"
	apperrors "github.com/Skryldev/imagefetch/errors"
)

const registryShards = 64

// TaskRegistry coalesces requests for the same cache key into one Task.
// The key space is split across shards, each with its own lock, so unrelated
// keys never contend.
type TaskRegistry struct {
	shards [registryShards]registryShard
	router *dispatch.Router
	logger Logger
	parent context.Context
}

type registryShard struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewTaskRegistry returns an empty registry.  Task contexts derive from parent
// so cancelling it cancels every task.
func NewTaskRegistry(parent context.Context, router *dispatch.Router, logger Logger) *TaskRegistry {
	if router == nil {
		router = dispatch.NewRouter(nil)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	r := &TaskRegistry{router: router, logger: logger, parent: parent}
	for i := range r.shards {
		r.shards[i].tasks = make(map[string]*Task)
	}
	return r
}

func (r *TaskRegistry) shard(key string) *registryShard {
	return &r.shards[xxhash.Sum64String(key)%registryShards]
}

// Attach adds obs to the live task for res's key, or creates and registers a
// new task.  start is called (outside any lock) only for a new task.  An
// observer joining a task that already reported progress first receives the
// current value.
func (r *TaskRegistry) Attach(res Resource, key CacheKey, obs Observer, start func(*Task)) *TaskHandle {
	h := newHandle(key)
	entry := &observerEntry{
		id:      h.id,
		obs:     obs,
		mailbox: r.router.Mailbox(obs.Context),
		handle:  h,
	}
	h.entry = entry
	h.reg = r

	s := r.shard(key.Primary())
	s.mu.Lock()
	t, ok := s.tasks[key.Primary()]
	created := false
	if !ok {
		t = newTask(r.parent, key, res)
		s.tasks[key.Primary()] = t
		created = true
	}
	t.mu.Lock()
	t.addObserverLocked(entry)
	if !created {
		t.replayLocked(entry)
	}
	t.mu.Unlock()
	s.mu.Unlock()

	h.task = t
	entry.mailbox.Flush()
	if created {
		r.logger.Debug("registry.task.created", "task_id", t.id, "cache_key", key.Primary())
		start(t)
	} else {
		r.logger.Debug("registry.task.joined", "task_id", t.id, "cache_key", key.Primary(), "observer", h.id)
	}
	return h
}

// detach removes one observer.  The last observer of a running task takes the
// task down with it.
func (r *TaskRegistry) detach(h *TaskHandle) {
	t := h.task
	e := h.entry
	if !e.detached.CompareAndSwap(false, true) {
		return
	}
	e.mailbox.Close()

	s := r.shard(t.key.Primary())
	s.mu.Lock()
	t.mu.Lock()
	for i, o := range t.observers {
		if o == e {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			break
		}
	}
	cancelTask := len(t.observers) == 0 && !t.state.Terminal()
	if cancelTask {
		t.state = StateCancelled
		r.removeLocked(s, t)
	}
	t.mu.Unlock()
	s.mu.Unlock()

	h.abandon()
	if cancelTask {
		t.cancel()
		r.logger.Debug("registry.task.cancelled", "task_id", t.id, "cache_key", t.key.Primary())
	}
}

// finish moves t to its terminal state, drops it from the registry and
// delivers res to every observer attached at that moment.  It reports false
// if the task had already ended (for instance, cancelled by its last
// observer), in which case nothing is delivered.
func (r *TaskRegistry) finish(t *Task, state TaskState, res Result) bool {
	s := r.shard(t.key.Primary())
	s.mu.Lock()
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		s.mu.Unlock()
		return false
	}
	t.state = state
	r.removeLocked(s, t)
	observers := make([]*observerEntry, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()
	s.mu.Unlock()

	t.deliver(observers, res)
	t.cancel()
	return true
}

// removeLocked drops t from its shard.  Callers hold s.mu and t.mu.
func (r *TaskRegistry) removeLocked(s *registryShard, t *Task) {
	if t.removed {
		return
	}
	t.removed = true
	cur, ok := s.tasks[t.key.Primary()]
	if !ok {
		return
	}
	if cur != t {
		// A live task that was never removed must own its slot.
		r.logger.Error("registry.invariant",
			"error", apperrors.New(apperrors.CategoryRegistry, "registry.remove", apperrors.ErrRegistryInvariant).Error(),
			"cache_key", t.key.Primary(),
			"task_id", t.id,
			"other_task_id", cur.id,
		)
		return
	}
	delete(s.tasks, t.key.Primary())
}

// Lookup returns the live task for key, if any.
func (r *TaskRegistry) Lookup(key string) (*Task, bool) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	return t, ok
}

// Len returns the number of live tasks.
func (r *TaskRegistry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.tasks)
		s.mu.Unlock()
	}
	return n
}

// Snapshot returns all live tasks.
func (r *TaskRegistry) Snapshot() []*Task {
	var out []*Task
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, t := range s.tasks {
			out = append(out, t)
		}
		s.mu.Unlock()
	}
	return out
}
