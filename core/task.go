package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/imagefetch/dispatch"
)

// Task is the single in-flight unit of work for one cache key.  Observers are
// kept in attach order; each has its own mailbox so delivery to one observer
// never waits on another.
type Task struct {
	id       string
	key      CacheKey
	resource Resource
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards state, observers and the registry bookkeeping below.
	mu        sync.Mutex
	state     TaskState
	observers []*observerEntry
	removed   bool // set under the shard lock when the registry drops the task

	// emitMu serialises progress/completion fan-out so every mailbox sees
	// events in the order they were produced.
	emitMu   sync.Mutex
	progress progressState
	live     atomic.Pointer[Progress]

	// published is set once the first progress event went out.
	published atomic.Bool
}

type observerEntry struct {
	id       string
	obs      Observer
	mailbox  *dispatch.Mailbox
	handle   *TaskHandle
	detached atomic.Bool

	// last and seen are only touched by callbacks on mailbox, which never
	// overlap.
	last Progress
	seen bool
}

func newTask(parent context.Context, key CacheKey, res Resource) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		id:       uuid.NewString(),
		key:      key,
		resource: res,
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateCreated,
		progress: newProgressState(),
	}
	p := t.progress.snapshot()
	t.live.Store(&p)
	return t
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// Key returns the task's cache key.
func (t *Task) Key() CacheKey { return t.key }

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ObserverCount returns the number of attached observers.
func (t *Task) ObserverCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

// setState advances the state unless the task is already terminal.
func (t *Task) setState(s TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = s
	return true
}

// addObserverLocked appends an observer.  Callers hold t.mu.
func (t *Task) addObserverLocked(e *observerEntry) {
	t.observers = append(t.observers, e)
}

// snapshotObservers returns the currently attached observers.
func (t *Task) snapshotObservers() []*observerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*observerEntry, len(t.observers))
	copy(out, t.observers)
	return out
}

// reportProgress is handed to the ByteSource.
func (t *Task) reportProgress(completed, total int64) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	p, ok := t.progress.advance(completed, total)
	if !ok {
		return
	}
	t.publishLocked(p)
}

// completeProgress publishes the final (n, n) event.
func (t *Task) completeProgress(n int64) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	p, ok := t.progress.complete(n)
	if !ok {
		return
	}
	t.publishLocked(p)
}

func (t *Task) publishLocked(p Progress) {
	t.live.Store(&p)
	t.published.Store(true)
	for _, e := range t.snapshotObservers() {
		if e.obs.OnProgress == nil || e.detached.Load() {
			continue
		}
		e.mailbox.Enqueue(e.progressFunc(p))
	}
}

// replayLocked holds the current progress for an observer joining a running
// task, so it is seen before any later event or the completion.  Callers hold
// t.mu; the entry's mailbox must be flushed after the locks are released.
func (t *Task) replayLocked(e *observerEntry) {
	if e.obs.OnProgress == nil || !t.published.Load() {
		return
	}
	e.mailbox.Hold(e.progressFunc(*t.live.Load()))
}

// reported returns the progress the source has reported so far.
func (t *Task) reported() Progress {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	return t.progress.snapshot()
}

// progressFunc wraps OnProgress so the observer never sees an event twice or
// out of order.
func (e *observerEntry) progressFunc(p Progress) func() {
	cb := e.obs.OnProgress
	return func() {
		if e.detached.Load() {
			return
		}
		if e.seen && p.Completed <= e.last.Completed && p.Total == e.last.Total {
			return
		}
		e.last, e.seen = p, true
		cb(p)
	}
}

// deliver fans the terminal result out to observers.  Every observer gets it
// exactly once; the caller guarantees deliver runs once per task.
func (t *Task) deliver(observers []*observerEntry, res Result) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.progress.terminal = true
	for _, e := range observers {
		e.complete(res)
	}
}

func (e *observerEntry) complete(res Result) {
	cb := e.obs.OnComplete
	h := e.handle
	if !e.mailbox.Enqueue(func() {
		if e.detached.Load() {
			h.abandon()
			return
		}
		if cb != nil {
			cb(res)
		}
		h.resolve(res)
	}) {
		h.abandon()
	}
}

// TaskHandle is one observer's view of a task.  Cancel detaches only this
// observer.
type TaskHandle struct {
	id   string
	key  CacheKey
	task *Task // nil for memory-cache hits
	reg  *TaskRegistry

	entry *observerEntry

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	result Result
	ok     bool
}

func newHandle(key CacheKey) *TaskHandle {
	return &TaskHandle{id: uuid.NewString(), key: key, done: make(chan struct{})}
}

// ID returns the observer's unique id.
func (h *TaskHandle) ID() string { return h.id }

// Key returns the cache key of the requested resource.
func (h *TaskHandle) Key() CacheKey { return h.key }

// TaskID returns the id of the task this handle observes, or "" when the
// request was served without a task.
func (h *TaskHandle) TaskID() string {
	if h.task == nil {
		return ""
	}
	return h.task.id
}

// Progress returns the live progress of the underlying task.
func (h *TaskHandle) Progress() Progress {
	if h.task == nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.ok && h.result.Image != nil {
			n := h.result.Image.OriginalSize
			return Progress{Completed: n, Total: n}
		}
		return Progress{Total: -1}
	}
	return *h.task.live.Load()
}

// Done is closed after the completion callback for this observer has run, or
// when the observer is cancelled.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Result returns the delivered result.  ok is false until completion was
// delivered, and stays false for a cancelled handle.
func (h *TaskHandle) Result() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.ok
}

// Wait blocks until Done or ctx expires.
func (h *TaskHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		res, _ := h.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel detaches this observer.  If it was the last observer of a running
// task, the task's work is cancelled.  For a memory-cache hit, Cancel drops a
// completion that was not delivered yet.  Cancelling after completion is a
// no-op.
func (h *TaskHandle) Cancel() {
	if h.entry == nil {
		return
	}
	if h.task == nil {
		if h.entry.detached.CompareAndSwap(false, true) {
			h.entry.mailbox.Close()
			h.abandon()
		}
		return
	}
	h.reg.detach(h)
}

func (h *TaskHandle) resolve(res Result) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = res
		h.ok = true
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *TaskHandle) abandon() {
	h.once.Do(func() { close(h.done) })
}
