package dispatch

// Router resolves observer contexts and hands out per-observer mailboxes.
type Router struct {
	def Context
}

// NewRouter returns a Router whose default context is def.  A nil def selects
// Background.
func NewRouter(def Context) *Router {
	if def == nil {
		def = Background
	}
	return &Router{def: def}
}

// Default returns the context used for observers that do not name one.
func (r *Router) Default() Context { return r.def }

// Resolve returns ctx, or the default context when ctx is nil.
func (r *Router) Resolve(ctx Context) Context {
	if ctx == nil {
		return r.def
	}
	return ctx
}

// Mailbox creates a mailbox for an observer that requested ctx.
func (r *Router) Mailbox(ctx Context) *Mailbox {
	return NewMailbox(r.Resolve(ctx))
}
