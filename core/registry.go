package core

import "sync"

// ── Codec registry ────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu     sync.RWMutex
	codecs map[Format]Codec
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{codecs: make(map[Format]Codec)}
}

func (r *DefaultRegistry) RegisterCodec(f Format, c Codec) {
	r.mu.Lock()
	r.codecs[f] = c
	r.mu.Unlock()
}

func (r *DefaultRegistry) CodecFor(f Format) (Codec, bool) {
	r.mu.RLock()
	c, ok := r.codecs[f]
	r.mu.RUnlock()
	return c, ok
}

// Formats returns the formats with a registered codec.
func (r *DefaultRegistry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	return out
}
