package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Skryldev/imagefetch/dispatch"
)

// CachePolicy selects which byte representation of a resource is persisted in
// the disk cache.
type CachePolicy string

const (
	// PolicyStoreOriginal writes fetched bytes under the base key only.
	PolicyStoreOriginal CachePolicy = "store-original"
	// PolicyStoreEncoded writes the re-encoded, processed image under the
	// encoded key only.
	PolicyStoreEncoded CachePolicy = "store-encoded"
	// PolicyAutomatic behaves as store-original for resources without
	// processors and as store-encoded otherwise.
	PolicyAutomatic CachePolicy = "automatic"
)

// Valid reports whether p is one of the recognised policies.
func (p CachePolicy) Valid() bool {
	switch p {
	case PolicyStoreOriginal, PolicyStoreEncoded, PolicyAutomatic:
		return true
	}
	return false
}

// DiskBackend selects the disk cache adapter.
type DiskBackend string

const (
	DiskNone        DiskBackend = "none"
	DiskFilesystem  DiskBackend = "filesystem"
	DiskObjectStore DiskBackend = "objectstore"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued tasks before new tasks fail; default: 256
	JobTimeout  time.Duration

	// Retry of transient processor failures.  Fetch retries belong to the
	// byte source.
	MaxRetries int
	RetryDelay time.Duration

	// Encoding of processed images written to the disk cache.
	DefaultQuality int    // 1-100; default 85
	CacheFormat    string // "" = keep the decoded format

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// Caching.
	CachePolicy        CachePolicy
	MemoryCacheEnabled bool
	MemoryCacheEntries int
	Disk               DiskBackend
	Filesystem         FilesystemConfig
	ObjectStore        ObjectStoreConfig

	// DeliveryContext receives callbacks of observers that do not name their
	// own context.  nil selects dispatch.Background.
	DeliveryContext dispatch.Context

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// FilesystemConfig configures the filesystem disk cache.
type FilesystemConfig struct {
	RootDir     string
	Permissions uint32 // default 0644
}

// ObjectStoreConfig configures the object-store disk cache.
type ObjectStoreConfig struct {
	Bucket string
	Prefix string
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:        0, // resolved at runtime to NumCPU
		QueueSize:          256,
		JobTimeout:         30 * time.Second,
		MaxRetries:         2,
		RetryDelay:         100 * time.Millisecond,
		DefaultQuality:     85,
		ChunkSize:          32 * 1024,
		CachePolicy:        PolicyAutomatic,
		MemoryCacheEnabled: true,
		MemoryCacheEntries: 512,
		Disk:               DiskNone,
		LogLevel:           "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if !c.CachePolicy.Valid() {
		return fmt.Errorf("config: unknown CachePolicy %q", c.CachePolicy)
	}
	if c.MemoryCacheEnabled && c.MemoryCacheEntries <= 0 {
		return errors.New("config: MemoryCacheEntries must be positive when the memory cache is enabled")
	}
	switch c.Disk {
	case "", DiskNone:
	case DiskFilesystem:
		if c.Filesystem.RootDir == "" {
			return errors.New("config: Filesystem.RootDir is required for the filesystem disk cache")
		}
	case DiskObjectStore:
		if c.ObjectStore.Bucket == "" {
			return errors.New("config: ObjectStore.Bucket is required for the object-store disk cache")
		}
	default:
		return fmt.Errorf("config: unknown Disk backend %q", c.Disk)
	}
	switch c.CacheFormat {
	case "", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("config: unsupported CacheFormat %q", c.CacheFormat)
	}
	return nil
}
