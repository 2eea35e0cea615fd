// Package dispatch delivers observer callbacks on caller-chosen execution
// contexts while preserving per-observer order.
package dispatch

import (
	"sync"
	"sync/atomic"
)

// Context is an execution context that callbacks can be posted to.
// Implementations must eventually run every posted func exactly once.
type Context interface {
	Post(fn func())
}

// ContextFunc adapts a plain function to Context.
type ContextFunc func(fn func())

func (f ContextFunc) Post(fn func()) { f(fn) }

// ── Immediate ────────────────────────────────────────────────────────────────

type immediate struct{}

func (immediate) Post(fn func()) { fn() }

// Immediate runs callbacks synchronously on the posting goroutine.  Intended
// for tests and for callers that do their own hand-off.
var Immediate Context = immediate{}

// ── Background ───────────────────────────────────────────────────────────────

type background struct{}

func (background) Post(fn func()) { go fn() }

// Background runs each callback on a fresh goroutine.  Ordering for a single
// observer is restored by its Mailbox.
var Background Context = background{}

// ── Queue ────────────────────────────────────────────────────────────────────

// Queue is a named serial executor: posted funcs run one at a time, in FIFO
// order, on a single goroutine owned by the queue.
type Queue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool

	executing atomic.Bool
	done      chan struct{}
}

// NewQueue starts a serial queue.  Call Close when it is no longer needed.
func NewQueue(name string) *Queue {
	q := &Queue{name: name, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Name returns the queue's label.
func (q *Queue) Name() string { return q.name }

// Post appends fn to the queue.  Funcs posted after Close are dropped.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	if !q.closed {
		q.pending = append(q.pending, fn)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// Executing reports whether a func posted to q is currently running.  Called
// from inside a callback it tells whether that callback runs on q.
func (q *Queue) Executing() bool { return q.executing.Load() }

// Close stops accepting work, runs what is already queued and waits for the
// queue goroutine to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.executing.Store(true)
		fn()
		q.executing.Store(false)
	}
}
