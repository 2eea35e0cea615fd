package diskcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 20 * time.Millisecond

// locker hands out cross-process file locks, one lock file per entry.
type locker struct {
	locksDir string
}

func newLocker(locksDir string) *locker {
	return &locker{locksDir: locksDir}
}

// acquire takes the exclusive lock for name.  The returned function releases
// it.  Waiting is bounded by ctx.
func (l *locker) acquire(ctx context.Context, name string) (unlock func() error, err error) {
	if err := os.MkdirAll(l.locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks directory: %w", err)
	}

	fl := flock.New(filepath.Join(l.locksDir, name+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire lock: %v", ctx.Err())
	}
	return fl.Unlock, nil
}
