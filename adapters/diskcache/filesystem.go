// Package diskcache provides core.DiskCache implementations.
package diskcache

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
)

// Filesystem stores entries as files under a root directory.  Cache keys are
// hashed into file names, so any key is safe.  Writes go to a temp file that
// is renamed into place while holding a per-entry flock, so concurrent
// processes sharing the directory never observe partial entries.
type Filesystem struct {
	rootDir     string
	permissions os.FileMode
	locker      *locker
}

// NewFilesystem creates a Filesystem cache rooted at dir.
func NewFilesystem(dir string, perm os.FileMode) (*Filesystem, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem cache: mkdir %s: %w", dir, err)
	}
	return &Filesystem{
		rootDir:     dir,
		permissions: perm,
		locker:      newLocker(filepath.Join(dir, ".locks")),
	}, nil
}

// entryName maps a cache key to a file name.
func entryName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (f *Filesystem) path(name string) string {
	// Two-level fan-out keeps directories small.
	return filepath.Join(f.rootDir, name[:2], name)
}

func (f *Filesystem) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, apperrors.Wrap(apperrors.CategoryStorage, "filesystem.read", err)
	}
	data, err := os.ReadFile(f.path(entryName(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(apperrors.CategoryStorage, "filesystem.read", err)
	}
	return data, true, nil
}

func (f *Filesystem) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write", err)
	}

	name := entryName(key)
	unlock, err := f.locker.acquire(ctx, name)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write.lock", err)
	}
	defer unlock()

	final := f.path(name)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write.mkdir", err)
	}

	tmp, err := f.tempPath()
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write.temp", err)
	}
	if err := os.WriteFile(tmp, data, f.permissions); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write.copy", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.write.rename", err)
	}
	return nil
}

func (f *Filesystem) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.remove", err)
	}
	name := entryName(key)
	unlock, err := f.locker.acquire(ctx, name)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.remove.lock", err)
	}
	defer unlock()

	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.remove", err)
	}
	return nil
}

// Purge deletes every entry.  Fan-out directories are removed concurrently.
func (f *Filesystem) Purge(ctx context.Context) error {
	entries, err := os.ReadDir(f.rootDir)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.purge", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 {
			continue
		}
		dir := filepath.Join(f.rootDir, e.Name())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return os.RemoveAll(dir)
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "filesystem.purge", err)
	}
	return nil
}

// tempPath returns a unique file name under the cache's .tmp directory.
func (f *Filesystem) tempPath() (string, error) {
	tmpBase := filepath.Join(f.rootDir, ".tmp")
	if err := os.MkdirAll(tmpBase, 0o755); err != nil {
		return "", err
	}
	var randBytes [8]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return "", err
	}
	return filepath.Join(tmpBase, hex.EncodeToString(randBytes[:])), nil
}

var _ core.DiskCache = (*Filesystem)(nil)
