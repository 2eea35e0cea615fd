package dispatch

import "sync"

// Mailbox serialises the callbacks of one observer.  Enqueued funcs run one at
// a time, in enqueue order, on the mailbox's Context.  At most one drain is
// posted to the context at any time, so even a concurrent context such as
// Background cannot reorder them.
type Mailbox struct {
	ctx Context

	mu       sync.Mutex
	pending  []func()
	draining bool
	closed   bool
}

// NewMailbox returns a mailbox delivering on ctx.
func NewMailbox(ctx Context) *Mailbox {
	return &Mailbox{ctx: ctx}
}

// Context returns the context the mailbox delivers on.
func (m *Mailbox) Context() Context { return m.ctx }

// Enqueue schedules fn.  It reports false when the mailbox is closed.
func (m *Mailbox) Enqueue(fn func()) bool {
	if !m.Hold(fn) {
		return false
	}
	m.Flush()
	return true
}

// Hold appends fn without scheduling it.  Held funcs run, ahead of anything
// enqueued later, on the next Enqueue or Flush.  Hold is safe to call while
// holding locks that a callback might take.
func (m *Mailbox) Hold(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.pending = append(m.pending, fn)
	return true
}

// Flush schedules a drain when funcs are pending and none is running.
func (m *Mailbox) Flush() {
	m.mu.Lock()
	if m.draining || m.closed || len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	m.draining = true
	m.mu.Unlock()

	m.ctx.Post(m.drain)
}

// Close drops pending callbacks and rejects new ones.  A callback that is
// already running finishes normally.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.pending = nil
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox) drain() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 || m.closed {
			m.pending = nil
			m.draining = false
			m.mu.Unlock()
			return
		}
		fn := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.mu.Unlock()

		fn()
	}
}
