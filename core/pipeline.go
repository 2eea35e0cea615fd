package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/Skryldev/imagefetch/config"
	"github.com/Skryldev/imagefetch/dispatch"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/utils"
)

// Pipeline is the central orchestrator.  It coalesces requests into tasks,
// runs them on a bounded worker pool and applies the disk cache policy.  It
// is safe for concurrent use.
type Pipeline struct {
	cfg      config.Config
	registry Registry
	source   ByteSource
	chain    ChainRunner

	disk    DiskCache
	memory  MemoryCache
	diag    Diagnostics
	logger  Logger
	metrics MetricsCollector
	slog    *slog.Logger

	router *dispatch.Router
	tasks  *TaskRegistry

	baseCtx context.Context
	stopAll context.CancelFunc

	// Worker pool.
	jobQueue chan *Task
	wg       sync.WaitGroup
	once     sync.Once
	stopMu   sync.RWMutex
	stopped  bool
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount atomic.Int64
	errorCount     atomic.Int64
	fetchCount     atomic.Int64
	cacheHitCount  atomic.Int64
}

// New creates a Pipeline.  Call Start() before expecting tasks to run; call
// Stop() when done.  chain runs processor lists; it must not be nil when
// resources carry processors.
func New(cfg config.Config, reg Registry, src ByteSource, chain ChainRunner) *Pipeline {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	if cfg.CachePolicy == "" {
		cfg.CachePolicy = config.PolicyAutomatic
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	router := dispatch.NewRouter(cfg.DeliveryContext)
	return &Pipeline{
		cfg:      cfg,
		registry: reg,
		source:   src,
		chain:    chain,
		logger:   nopLogger{},
		router:   router,
		tasks:    NewTaskRegistry(baseCtx, router, nil),
		baseCtx:  baseCtx,
		stopAll:  stopAll,
		jobQueue: make(chan *Task, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Pipeline) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	p.logger = l
	p.tasks.logger = l
}

// SetContextLogger sets the *slog.Logger carried in task contexts.  Adapters
// log through it with slog-context; nil falls back to slog.Default().
func (p *Pipeline) SetContextLogger(l *slog.Logger) { p.slog = l }

// SetMetrics attaches a metrics collector.
func (p *Pipeline) SetMetrics(m MetricsCollector) { p.metrics = m }

// SetDiskCache attaches the persistent byte cache.  nil disables disk caching.
func (p *Pipeline) SetDiskCache(d DiskCache) { p.disk = d }

// SetMemoryCache attaches the in-process image cache.  It is consulted only
// while Config.MemoryCacheEnabled is set.
func (p *Pipeline) SetMemoryCache(m MemoryCache) { p.memory = m }

// SetDiagnostics attaches a sink for non-fatal failures.
func (p *Pipeline) SetDiagnostics(d Diagnostics) { p.diag = d }

// Registry returns the codec registry.
func (p *Pipeline) Registry() Registry { return p.registry }

// Tasks returns the task registry.
func (p *Pipeline) Tasks() *TaskRegistry { return p.tasks }

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() config.Config { return p.cfg }

// Start launches the worker pool.  It is idempotent.
func (p *Pipeline) Start() {
	p.once.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop cancels running tasks, waits for the workers and fails every task that
// was still queued.  It is safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return
	}
	p.stopped = true
	close(p.shutdown)
	p.stopMu.Unlock()

	p.stopAll()
	p.wg.Wait()

	for {
		select {
		case t := <-p.jobQueue:
			p.fail(t, "run", apperrors.New(apperrors.CategoryPipeline, "run", apperrors.ErrStopped))
		default:
			return
		}
	}
}

// Run requests res for obs and returns immediately.  Requests whose cache key
// matches a live task join that task instead of starting new work.
func (p *Pipeline) Run(res Resource, obs Observer) *TaskHandle {
	res = cloneResource(res)
	key := DeriveKey(res)

	if p.memoryEnabled() {
		if img, ok := p.memory.Get(key.Primary()); ok {
			p.cacheHitCount.Add(1)
			p.logger.Debug("pipeline.memory.hit", "cache_key", key.Primary())
			return p.deliverCached(key, img, obs)
		}
	}
	return p.tasks.Attach(res, key, obs, p.enqueue)
}

// Invalidate removes every cached representation of res.
func (p *Pipeline) Invalidate(ctx context.Context, res Resource) error {
	key := DeriveKey(res)
	if p.memory != nil {
		p.memory.Remove(key.Primary())
	}
	if p.disk == nil {
		return nil
	}
	var errs []error
	for _, k := range uniqueKeys(key) {
		if err := p.disk.Remove(ctx, k); err != nil {
			errs = append(errs, apperrors.Wrap(apperrors.CategoryStorage, "invalidate", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) memoryEnabled() bool {
	return p.memory != nil && p.cfg.MemoryCacheEnabled
}

func (p *Pipeline) deliverCached(key CacheKey, img *ImageData, obs Observer) *TaskHandle {
	h := newHandle(key)
	e := &observerEntry{
		id:      h.id,
		obs:     obs,
		mailbox: p.router.Mailbox(obs.Context),
		handle:  h,
	}
	h.entry = e
	if obs.OnProgress != nil {
		n := img.OriginalSize
		e.mailbox.Enqueue(e.progressFunc(Progress{Completed: n, Total: n}))
	}
	e.complete(Result{Image: img, Key: key, Source: SourceMemory})
	return h
}

// enqueue hands a new task to the worker pool.  It never blocks: a full queue
// fails the task.
func (p *Pipeline) enqueue(t *Task) {
	var reason error
	p.stopMu.RLock()
	if p.stopped {
		reason = apperrors.ErrStopped
	} else {
		select {
		case p.jobQueue <- t:
		default:
			reason = apperrors.ErrWorkerPoolFull
		}
	}
	p.stopMu.RUnlock()

	if reason != nil {
		p.fail(t, "submit", apperrors.New(apperrors.CategoryPipeline, "submit", reason))
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case t, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.execute(t)
		}
	}
}

// execute runs every stage of t in order: cache lookup or fetch, decode,
// process, encode-for-cache, memory cache, delivery.
func (p *Pipeline) execute(t *Task) {
	ctx := t.ctx
	if p.slog != nil {
		ctx = slogcontext.NewCtx(ctx, p.slog)
	}
	ctx = slogcontext.With(ctx, "task_id", t.id, "cache_key", t.key.Primary())
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		p.fail(t, "execute", apperrors.Wrap(apperrors.CategoryPipeline, "execute", err))
		return
	}

	res := t.resource
	plan := planWrites(p.policyFor(res), len(res.Processors) > 0)
	p.logger.Debug("pipeline.task.start",
		"task_id", t.id,
		"cache_key", t.key.Primary(),
		"write_original", plan.original,
		"write_encoded", plan.encoded,
	)

	img, source, processed, stage, err := p.load(ctx, t, plan)
	if err != nil {
		p.fail(t, stage, err)
		return
	}

	if !processed && len(res.Processors) > 0 {
		if !t.setState(StateProcessing) {
			return
		}
		if p.chain == nil {
			p.fail(t, "process", apperrors.New(apperrors.CategoryProcess, "process", errors.New("no processor chain configured")))
			return
		}
		out, timings, err := p.chain.Run(ctx, img, res.Processors)
		p.recordTimings(timings)
		if err != nil {
			p.fail(t, "process", apperrors.Categorize(apperrors.CategoryProcess, "process", err))
			return
		}
		img = out
	}

	if plan.encoded && source == SourceNetwork {
		if err := ctx.Err(); err != nil {
			p.fail(t, "encode", apperrors.Wrap(apperrors.CategoryPipeline, "encode", err))
			return
		}
		if !t.setState(StateEncoding) {
			return
		}
		p.storeEncoded(ctx, t.key.Encoded, img)
	}

	if p.memoryEnabled() {
		p.memory.Set(t.key.Primary(), img)
	}

	p.processedCount.Add(1)
	if p.tasks.finish(t, StateCompleted, Result{
		Image:   img,
		Key:     t.key,
		Source:  source,
		Elapsed: time.Since(t.started),
	}) {
		p.logger.Debug("pipeline.task.done", "task_id", t.id, "cache_key", t.key.Primary(), "source", source)
	}
}

// load produces the decoded image, from the disk cache when possible.
// processed reports that the image already went through the processor chain.
func (p *Pipeline) load(ctx context.Context, t *Task, plan writePlan) (img *ImageData, source ResultSource, processed bool, stage string, err error) {
	res := t.resource

	if data, hitKey, ok := p.lookupDisk(ctx, t.key, plan); ok {
		p.cacheHitCount.Add(1)
		if !t.setState(StateDecoding) {
			return nil, "", false, "decode", apperrors.New(apperrors.CategoryPipeline, "decode", context.Canceled)
		}
		t.completeProgress(int64(len(data)))
		img, err := p.decode(ctx, data, res.ContentType)
		if err != nil {
			// A corrupt entry would fail every later request too.
			if rmErr := p.disk.Remove(ctx, hitKey); rmErr != nil {
				p.logger.Warn("pipeline.disk.remove_corrupt", "cache_key", hitKey, "error", rmErr.Error())
			}
			return nil, "", false, "decode", err
		}
		return img, SourceDisk, t.key.Processed() && hitKey == t.key.Encoded, "", nil
	}

	if !t.setState(StateFetching) {
		return nil, "", false, "fetch", apperrors.New(apperrors.CategoryPipeline, "fetch", context.Canceled)
	}
	if p.source == nil {
		return nil, "", false, "fetch", apperrors.New(apperrors.CategoryFetch, "fetch", errors.New("no byte source configured"))
	}
	p.fetchCount.Add(1)
	start := time.Now()
	data, err := p.source.Fetch(ctx, res, t.reportProgress)
	p.recordTime("fetch", time.Since(start))
	if err != nil {
		return nil, "", false, "fetch", apperrors.Categorize(apperrors.CategoryFetch, "fetch", err)
	}
	if len(data) == 0 {
		return nil, "", false, "fetch", apperrors.New(apperrors.CategoryFetch, "fetch", apperrors.ErrEmptyInput)
	}
	if p.cfg.MaxImageBytes > 0 && int64(len(data)) > p.cfg.MaxImageBytes {
		return nil, "", false, "fetch", apperrors.New(apperrors.CategoryFetch, "fetch",
			fmt.Errorf("%w: %d > %d bytes", apperrors.ErrTooLarge, len(data), p.cfg.MaxImageBytes))
	}
	if seen := t.reported(); int64(len(data)) < max(seen.Completed, seen.Total) {
		return nil, "", false, "fetch", apperrors.New(apperrors.CategoryFetch, "fetch",
			fmt.Errorf("%w: got %d bytes, source reported %d", apperrors.ErrTruncated, len(data), max(seen.Completed, seen.Total)))
	}
	if p.metrics != nil {
		p.metrics.RecordThroughput(int64(len(data)))
	}
	t.completeProgress(int64(len(data)))

	if plan.original {
		if ctx.Err() != nil {
			return nil, "", false, "fetch", apperrors.Wrap(apperrors.CategoryPipeline, "fetch", ctx.Err())
		}
		p.writeDisk(ctx, t.key.Base, data)
	}

	if !t.setState(StateDecoding) {
		return nil, "", false, "decode", apperrors.New(apperrors.CategoryPipeline, "decode", context.Canceled)
	}
	img, err = p.decode(ctx, data, res.ContentType)
	if err != nil {
		return nil, "", false, "decode", err
	}
	return img, SourceNetwork, false, "", nil
}

func (p *Pipeline) lookupDisk(ctx context.Context, key CacheKey, plan writePlan) ([]byte, string, bool) {
	if p.disk == nil {
		return nil, "", false
	}
	for _, k := range lookupKeys(key, plan) {
		data, ok, err := p.disk.Read(ctx, k)
		if err != nil {
			p.logger.Warn("pipeline.disk.read", "cache_key", k, "error", err.Error())
			continue
		}
		if ok && len(data) > 0 {
			p.logger.Debug("pipeline.disk.hit", "cache_key", k)
			return data, k, true
		}
	}
	return nil, "", false
}

func (p *Pipeline) decode(ctx context.Context, data []byte, contentType string) (*ImageData, error) {
	start := time.Now()
	defer func() { p.recordTime("decode", time.Since(start)) }()

	format := Format(utils.DetectFormat(data))
	if format == FormatUnknown && contentType != "" {
		format = Format(utils.FormatFromMIME(contentType))
	}
	codec, ok := p.registry.CodecFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := codec.Decode(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Categorize(apperrors.CategoryDecode, "decode", err)
	}
	img.Data = data
	img.OriginalSize = int64(len(data))
	img.Meta.SizeBytes = int64(len(data))
	if img.Format == "" || img.Format == FormatUnknown {
		img.Format = format
	}
	return img, nil
}

// storeEncoded encodes img for the disk cache.  Failures are reported, never
// returned: the decoded image is still a valid result.
func (p *Pipeline) storeEncoded(ctx context.Context, key string, img *ImageData) {
	if p.disk == nil {
		return
	}
	format := img.Format
	if p.cfg.CacheFormat != "" {
		format = Format(p.cfg.CacheFormat)
	}
	if format == "" || format == FormatUnknown {
		format = FormatPNG
	}
	codec, ok := p.registry.CodecFor(format)
	if !ok {
		p.reportWriteError(ctx, key, apperrors.New(apperrors.CategoryEncode, "encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format)))
		return
	}
	out := *img
	out.Format = format
	start := time.Now()
	data, err := codec.Encode(ctx, &out, EncodeOptions{Quality: p.cfg.DefaultQuality})
	p.recordTime("encode", time.Since(start))
	if err != nil {
		p.reportWriteError(ctx, key, apperrors.Categorize(apperrors.CategoryEncode, "encode", err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.writeDisk(ctx, key, data)
}

func (p *Pipeline) writeDisk(ctx context.Context, key string, data []byte) {
	if p.disk == nil {
		return
	}
	start := time.Now()
	err := p.disk.Write(ctx, key, data)
	p.recordTime("disk.write", time.Since(start))
	if err != nil {
		p.reportWriteError(ctx, key, apperrors.New(apperrors.CategoryCacheWrite, "disk.write", err))
		return
	}
	p.logger.Debug("pipeline.disk.write", "cache_key", key, "bytes", len(data))
}

func (p *Pipeline) reportWriteError(ctx context.Context, key string, err error) {
	p.logger.Warn("pipeline.disk.write_failed", "cache_key", key, "error", err.Error())
	if p.metrics != nil {
		p.metrics.RecordError("disk.write", string(apperrors.CategoryOf(err)))
	}
	if p.diag != nil {
		p.diag.CacheWriteFailed(ctx, key, err)
	}
}

// fail ends t with err.  A task that was already cancelled by its last
// observer ends silently.
func (p *Pipeline) fail(t *Task, stage string, err error) {
	if !p.tasks.finish(t, StateFailed, Result{Key: t.key, Err: err, Elapsed: time.Since(t.started)}) {
		p.logger.Debug("pipeline.task.abandoned", "task_id", t.id, "cache_key", t.key.Primary(), "stage", stage)
		return
	}
	p.errorCount.Add(1)
	if p.metrics != nil {
		p.metrics.RecordError(stage, string(apperrors.CategoryOf(err)))
	}
	p.logger.Warn("pipeline.task.failed",
		"task_id", t.id,
		"cache_key", t.key.Primary(),
		"stage", stage,
		"error", err.Error(),
	)
}

func (p *Pipeline) policyFor(res Resource) CachePolicy {
	if res.Policy != PolicyDefault {
		return res.Policy
	}
	return p.cfg.CachePolicy
}

func (p *Pipeline) recordTime(stage string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordProcessingTime(stage, d)
	}
}

// recordTimings records the chain as a whole.  Per-processor timings are the
// business of hooks.
func (p *Pipeline) recordTimings(timings map[string]time.Duration) {
	var total time.Duration
	for _, d := range timings {
		total += d
	}
	p.recordTime("process", total)
}

func cloneResource(res Resource) Resource {
	if len(res.Processors) > 0 {
		procs := make([]Processor, len(res.Processors))
		copy(procs, res.Processors)
		res.Processors = procs
	}
	return res
}

func uniqueKeys(k CacheKey) []string {
	if k.Processed() {
		return []string{k.Encoded, k.Base}
	}
	return []string{k.Base}
}

// ProcessedCount returns the number of tasks that completed successfully.
func (p *Pipeline) ProcessedCount() int64 { return p.processedCount.Load() }

// ErrorCount returns the number of tasks that failed.
func (p *Pipeline) ErrorCount() int64 { return p.errorCount.Load() }

// FetchCount returns the number of ByteSource fetches started.
func (p *Pipeline) FetchCount() int64 { return p.fetchCount.Load() }

// CacheHitCount returns the number of memory and disk cache hits.
func (p *Pipeline) CacheHitCount() int64 { return p.cacheHitCount.Load() }
