package hooks

import (
	"context"
	"sync"

	"github.com/Skryldev/imagefetch/core"
)

// ── Diagnostics ───────────────────────────────────────────────────────────────

// LoggingDiagnostics logs non-fatal failures and keeps the most recent ones
// for inspection.
type LoggingDiagnostics struct {
	logger core.Logger
	keep   int

	mu     sync.Mutex
	recent []CacheWriteFailure
	total  int64
}

// CacheWriteFailure is one recorded disk cache write failure.
type CacheWriteFailure struct {
	Key string
	Err error
}

// NewLoggingDiagnostics keeps up to keep recent failures (default 32).
func NewLoggingDiagnostics(l core.Logger, keep int) *LoggingDiagnostics {
	if keep <= 0 {
		keep = 32
	}
	return &LoggingDiagnostics{logger: l, keep: keep}
}

func (d *LoggingDiagnostics) CacheWriteFailed(_ context.Context, key string, err error) {
	if d.logger != nil {
		d.logger.Warn("diagnostics.cache_write_failed", "cache_key", key, "error", err.Error())
	}
	d.mu.Lock()
	d.total++
	d.recent = append(d.recent, CacheWriteFailure{Key: key, Err: err})
	if len(d.recent) > d.keep {
		d.recent = d.recent[len(d.recent)-d.keep:]
	}
	d.mu.Unlock()
}

// Failures returns the recorded failures, oldest first, and the total count.
func (d *LoggingDiagnostics) Failures() ([]CacheWriteFailure, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CacheWriteFailure, len(d.recent))
	copy(out, d.recent)
	return out, d.total
}

var _ core.Diagnostics = (*LoggingDiagnostics)(nil)
