package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch/adapters/codec"
	"github.com/Skryldev/imagefetch/config"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/dispatch"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/pipeline"
)

const waitTimeout = 5 * time.Second

func newPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 50, G: 50, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

// fakeSource serves fixed bytes and reports progress in two halves.  With a
// gate, Fetch blocks until the gate is closed or ctx is done.  A non-zero
// total is reported instead of the real length.
type fakeSource struct {
	data  map[string][]byte
	err   error
	gate  chan struct{}
	total int64

	started  chan string
	returned chan error
	fetches  atomic.Int64
}

func newFakeSource(data map[string][]byte) *fakeSource {
	return &fakeSource{
		data:     data,
		started:  make(chan string, 64),
		returned: make(chan error, 64),
	}
}

func (s *fakeSource) Fetch(ctx context.Context, res core.Resource, onProgress func(completed, total int64)) ([]byte, error) {
	s.fetches.Add(1)
	s.started <- res.URL
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			s.returned <- ctx.Err()
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		s.returned <- s.err
		return nil, s.err
	}
	data, ok := s.data[res.URL]
	if !ok {
		s.returned <- apperrors.ErrNotFound
		return nil, apperrors.ErrNotFound
	}
	n := int64(len(data))
	total := n
	if s.total > 0 {
		total = s.total
	}
	onProgress(n/2, total)
	onProgress(n, total)
	s.returned <- nil
	return data, nil
}

// memDisk is an in-memory DiskCache that records writes.
type memDisk struct {
	mu       sync.Mutex
	entries  map[string][]byte
	writes   []string
	writeErr error
}

func newMemDisk() *memDisk { return &memDisk{entries: make(map[string][]byte)} }

func (d *memDisk) Read(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.entries[key]
	return data, ok, nil
}

func (d *memDisk) Write(_ context.Context, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.writes = append(d.writes, key)
	d.entries[key] = data
	return nil
}

func (d *memDisk) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}

func (d *memDisk) Writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.writes...)
}

// countingCodec counts encodes.
type countingCodec struct {
	core.Codec
	encodes atomic.Int64
}

func (c *countingCodec) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	c.encodes.Add(1)
	return c.Codec.Encode(ctx, img, opts)
}

// recordingDiag collects cache write failures.
type recordingDiag struct {
	mu   sync.Mutex
	keys []string
}

func (d *recordingDiag) CacheWriteFailed(_ context.Context, key string, _ error) {
	d.mu.Lock()
	d.keys = append(d.keys, key)
	d.mu.Unlock()
}

func (d *recordingDiag) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

type testEnv struct {
	p     *core.Pipeline
	src   *fakeSource
	disk  *memDisk
	codec *countingCodec
}

func newTestEnv(t *testing.T, src *fakeSource, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	cfg.MemoryCacheEnabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, config.Validate(cfg))

	reg := core.NewRegistry()
	codec.Register(reg, cfg.DefaultQuality)
	pngCodec := &countingCodec{Codec: codec.NewPNG()}
	reg.RegisterCodec(core.FormatPNG, pngCodec)

	disk := newMemDisk()
	p := core.New(cfg, reg, src, pipeline.NewChain())
	p.SetDiskCache(disk)
	p.Start()
	t.Cleanup(p.Stop)
	return &testEnv{p: p, src: src, disk: disk, codec: pngCodec}
}

// identity is a no-op processor with the given id.
func identity(id string) core.Processor {
	return &pipeline.Func{Name: id, Fn: func(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
		return img, nil
	}}
}

func wait(t *testing.T, h *core.TaskHandle) core.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	return res
}

func waitStarted(t *testing.T, src *fakeSource) string {
	t.Helper()
	select {
	case url := <-src.started:
		return url
	case <-time.After(waitTimeout):
		t.Fatal("fetch did not start")
		return ""
	}
}

var errBoom = errors.New("boom")

type failingProcessor struct{}

func (failingProcessor) ID() string { return "fail" }
func (failingProcessor) Process(context.Context, *core.ImageData) (*core.ImageData, error) {
	return nil, errBoom
}

// gatedProcessor blocks in Process until gate is closed.  entered receives
// once per call.
type gatedProcessor struct {
	gate    chan struct{}
	entered chan struct{}
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{gate: make(chan struct{}), entered: make(chan struct{}, 8)}
}

func (g *gatedProcessor) ID() string { return "gated" }

func (g *gatedProcessor) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	g.entered <- struct{}{}
	select {
	case <-g.gate:
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// eventLog records observer callbacks in delivery order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) observer(ctx dispatch.Context) core.Observer {
	return core.Observer{
		Context: ctx,
		OnProgress: func(p core.Progress) {
			l.add(fmt.Sprintf("progress %d/%d", p.Completed, p.Total))
		},
		OnComplete: func(r core.Result) {
			l.add("complete " + string(r.Source))
		},
	}
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// mapMemory is a trivial MemoryCache.
type mapMemory struct {
	mu sync.Mutex
	m  map[string]*core.ImageData
}

func newMapMemory() *mapMemory { return &mapMemory{m: make(map[string]*core.ImageData)} }

func (c *mapMemory) Get(key string) (*core.ImageData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.m[key]
	return img, ok
}

func (c *mapMemory) Set(key string, img *core.ImageData) {
	c.mu.Lock()
	c.m[key] = img
	c.mu.Unlock()
}

func (c *mapMemory) Remove(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}
