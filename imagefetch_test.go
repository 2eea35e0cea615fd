package imagefetch_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch"
	"github.com/Skryldev/imagefetch/config"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/dispatch"
	"github.com/Skryldev/imagefetch/hooks"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func newBluePNG(t *testing.T, w, h int) []byte {
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

// imageServer serves the same PNG on every path and counts requests.
func imageServer(t *testing.T, raw []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
		w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newPipeline(t *testing.T, cacheDir string, opts ...imagefetch.Option) *imagefetch.Pipeline {
	t.Helper()
	cfg := imagefetch.DefaultConfig()
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	if cacheDir != "" {
		cfg.Disk = config.DiskFilesystem
		cfg.Filesystem.RootDir = cacheDir
	}
	p, err := imagefetch.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func fetch(t *testing.T, p *imagefetch.Pipeline, res imagefetch.Resource) imagefetch.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := p.Run(res, imagefetch.Observer{}).Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return r
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestRun_ResizeOverHTTP(t *testing.T) {
	srv, hits := imageServer(t, newBluePNG(t, 40, 20))
	metrics := hooks.NewInMemoryMetrics()
	p := newPipeline(t, t.TempDir(),
		imagefetch.WithMetrics(metrics),
		imagefetch.WithHook(hooks.NewMetricsHook(metrics)),
	)

	res := imagefetch.FromURL(srv.URL+"/a.png", imagefetch.Resize(20, 0))
	r := fetch(t, p, res)
	require.NoError(t, r.Err)
	assert.Equal(t, 20, r.Image.Meta.Width)
	assert.Equal(t, 10, r.Image.Meta.Height)
	assert.Equal(t, core.SourceNetwork, r.Source)

	again := fetch(t, p, res)
	require.NoError(t, again.Err)
	assert.Equal(t, core.SourceMemory, again.Source)
	assert.Equal(t, int64(1), hits.Load())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, int64(1), metrics.Snapshot().StepCalls["resize(20x0)"])
}

func TestDiskCacheSurvivesRestart(t *testing.T) {
	srv, hits := imageServer(t, newBluePNG(t, 16, 16))
	dir := t.TempDir()
	res := imagefetch.FromURL(srv.URL+"/b.png", imagefetch.Grayscale())

	first := newPipeline(t, dir)
	require.NoError(t, first.Prefetch(context.Background(), res))
	first.Stop()

	second := newPipeline(t, dir)
	r := fetch(t, second, res)
	require.NoError(t, r.Err)
	assert.Equal(t, core.SourceDisk, r.Source)
	assert.Equal(t, int64(1), hits.Load())

	require.NoError(t, second.Invalidate(context.Background(), res))
	require.NoError(t, second.Purge(context.Background()))
	r = fetch(t, second, res)
	require.NoError(t, r.Err)
	assert.Equal(t, core.SourceNetwork, r.Source)
	assert.Equal(t, int64(2), hits.Load())
}

func TestFetch_CoalescesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	raw := newBluePNG(t, 8, 8)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	p := newPipeline(t, "")
	res := imagefetch.FromURL(srv.URL + "/c.png")

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := p.Fetch(context.Background(), res)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestWithDeliveryContext(t *testing.T) {
	srv, _ := imageServer(t, newBluePNG(t, 8, 8))
	q := dispatch.NewQueue("delivery")
	t.Cleanup(q.Close)
	p := newPipeline(t, "", imagefetch.WithDeliveryContext(q))

	var onQueue atomic.Bool
	h := p.Run(imagefetch.FromURL(srv.URL+"/d.png"), imagefetch.Observer{
		OnComplete: func(imagefetch.Result) { onQueue.Store(q.Executing()) },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, onQueue.Load())
}

func TestNew_Errors(t *testing.T) {
	cfg := imagefetch.DefaultConfig()
	cfg.DefaultQuality = 0
	_, err := imagefetch.New(cfg)
	assert.Error(t, err)

	cfg = imagefetch.DefaultConfig()
	cfg.Disk = config.DiskObjectStore
	cfg.ObjectStore.Bucket = "images"
	_, err = imagefetch.New(cfg)
	assert.Error(t, err, "object store needs a client")
}

func TestPolicyOverride(t *testing.T) {
	res := imagefetch.WithPolicy(imagefetch.FromURL("u", imagefetch.StripEXIF()), imagefetch.StoreOriginal)
	assert.Equal(t, imagefetch.StoreOriginal, res.Policy)
	assert.Equal(t, "ustrip_exif", core.DeriveKey(res).Encoded)
}
