package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/imagefetch/adapters/codec"
	"github.com/Skryldev/imagefetch/adapters/diskcache"
	"github.com/Skryldev/imagefetch/adapters/memcache"
	"github.com/Skryldev/imagefetch/adapters/source"
	"github.com/Skryldev/imagefetch/config"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/dispatch"
	"github.com/Skryldev/imagefetch/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
)

// Re-export cache policies.
const (
	StoreOriginal = core.PolicyStoreOriginal
	StoreEncoded  = core.PolicyStoreEncoded
	Automatic     = core.PolicyAutomatic
)

type (
	Resource   = core.Resource
	Observer   = core.Observer
	Result     = core.Result
	Progress   = core.Progress
	TaskHandle = core.TaskHandle
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Pipeline is the primary entry point.
type Pipeline struct {
	inner *core.Pipeline
	reg   *core.DefaultRegistry
	chain *pipeline.Chain

	// Collaborators set by options before the core pipeline is built.
	cfg          config.Config
	source       core.ByteSource
	disk         core.DiskCache
	memory       core.MemoryCache
	objectClient diskcache.ObjectClient
	logger       core.Logger
	metrics      core.MetricsCollector
	diag         core.Diagnostics
	contextLog   contextLogger
	codecs       []func(core.Registry)
}

// New creates a fully wired Pipeline with the Go-native JPEG, PNG and WebP
// codecs registered.  Collaborators not supplied as options are built from
// cfg: an HTTP byte source, the configured disk cache and an LRU memory
// cache.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:   cfg,
		reg:   core.NewRegistry(),
		chain: pipeline.NewChain().WithRetry(cfg.MaxRetries, cfg.RetryDelay),
	}
	codec.Register(p.reg, cfg.DefaultQuality)

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	for _, register := range p.codecs {
		register(p.reg)
	}

	if p.source == nil {
		p.source = source.NewHTTP(
			source.WithChunkSize(p.cfg.ChunkSize),
			source.WithMaxBytes(p.cfg.MaxImageBytes),
		)
	}
	if p.disk == nil {
		disk, err := p.buildDiskCache()
		if err != nil {
			return nil, err
		}
		p.disk = disk
	}
	if p.memory == nil && p.cfg.MemoryCacheEnabled {
		lru, err := memcache.NewLRU(p.cfg.MemoryCacheEntries)
		if err != nil {
			return nil, err
		}
		p.memory = lru
	}

	inner := core.New(p.cfg, p.reg, p.source, p.chain)
	inner.SetLogger(p.logger)
	inner.SetMetrics(p.metrics)
	inner.SetDiagnostics(p.diag)
	inner.SetContextLogger(p.contextLog.slog)
	if p.disk != nil {
		inner.SetDiskCache(p.disk)
	}
	if p.memory != nil {
		inner.SetMemoryCache(p.memory)
	}
	p.inner = inner
	return p, nil
}

func (p *Pipeline) buildDiskCache() (core.DiskCache, error) {
	switch p.cfg.Disk {
	case config.DiskFilesystem:
		return diskcache.NewFilesystem(p.cfg.Filesystem.RootDir, os.FileMode(p.cfg.Filesystem.Permissions))
	case config.DiskObjectStore:
		if p.objectClient == nil {
			return nil, errors.New("imagefetch: object-store disk cache needs WithObjectClient")
		}
		return diskcache.NewObjectStore(p.objectClient, p.cfg.ObjectStore.Bucket, p.cfg.ObjectStore.Prefix)
	}
	return nil, nil
}

// Start starts the background worker pool.
func (p *Pipeline) Start() { p.inner.Start() }

// Stop cancels running tasks and shuts down the worker pool.
func (p *Pipeline) Stop() { p.inner.Stop() }

// Run requests res.  Progress and completion reach obs on its context.
func (p *Pipeline) Run(res Resource, obs Observer) *TaskHandle {
	return p.inner.Run(res, obs)
}

// Fetch is Run for a caller that only wants the result.  It blocks until the
// task completes or ctx is done; in the latter case the request is cancelled.
func (p *Pipeline) Fetch(ctx context.Context, res Resource) (*core.ImageData, error) {
	h := p.inner.Run(res, Observer{Context: dispatch.Immediate})
	r, err := h.Wait(ctx)
	if err != nil {
		h.Cancel()
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Image, nil
}

// Prefetch warms the caches for every resource concurrently and waits for all
// of them.  It returns the first failure.
func (p *Pipeline) Prefetch(ctx context.Context, resources ...Resource) error {
	var g errgroup.Group
	for _, res := range resources {
		g.Go(func() error {
			if _, err := p.Fetch(ctx, res); err != nil {
				return fmt.Errorf("prefetch %s: %w", res.URL, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Invalidate removes every cached representation of res.
func (p *Pipeline) Invalidate(ctx context.Context, res Resource) error {
	return p.inner.Invalidate(ctx, res)
}

type purger interface {
	Purge(ctx context.Context) error
}

// Purge empties the memory cache and, when the disk cache supports it, the
// disk cache.
func (p *Pipeline) Purge(ctx context.Context) error {
	if lru, ok := p.memory.(*memcache.LRU); ok {
		lru.Purge()
	}
	if d, ok := p.disk.(purger); ok {
		return d.Purge(ctx)
	}
	return nil
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Processed int64
	Errors    int64
	Fetches   int64
	CacheHits int64
	InFlight  int
}

// Stats returns lightweight processing statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed: p.inner.ProcessedCount(),
		Errors:    p.inner.ErrorCount(),
		Fetches:   p.inner.FetchCount(),
		CacheHits: p.inner.CacheHitCount(),
		InFlight:  p.inner.Tasks().Len(),
	}
}

// ── Resource constructors ─────────────────────────────────────────────────────

// FromURL creates a Resource with processors applied in the given order.
func FromURL(url string, processors ...core.Processor) Resource {
	return Resource{URL: url, Processors: processors}
}

// WithPolicy returns a copy of res using the given cache policy.
func WithPolicy(res Resource, policy core.CachePolicy) Resource {
	res.Policy = policy
	return res
}

// ── Processor constructors ────────────────────────────────────────────────────

// Resize returns a resize processor.  Pass 0 for one axis to preserve aspect ratio.
func Resize(width, height int) core.Processor { return &pipeline.Resize{Width: width, Height: height} }

// Crop returns a crop processor.
func Crop(x, y, width, height int) core.Processor {
	return &pipeline.Crop{X: x, Y: y, Width: width, Height: height}
}

// Thumbnail returns a square thumbnail processor.
func Thumbnail(size int) core.Processor { return &pipeline.Thumbnail{Size: size} }

// StripEXIF returns a processor that removes EXIF metadata.
func StripEXIF() core.Processor { return &pipeline.StripMetadata{} }

// Grayscale returns a processor that converts the image to grayscale.
func Grayscale() core.Processor { return &pipeline.Grayscale{} }

// Watermark returns a processor compositing overlay at (x, y).  name must
// identify the overlay.
func Watermark(name string, overlay image.Image, x, y int) core.Processor {
	return &pipeline.Watermark{Name: name, Watermark: overlay, OffsetX: x, OffsetY: y}
}
