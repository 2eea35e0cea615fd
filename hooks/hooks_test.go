package hooks_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/hooks"
)

func TestMetricsHook_RecordsErrorCategory(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	h := hooks.NewMetricsHook(m)

	h.AfterStep(context.Background(), "resize(10x0)", &core.ImageData{}, 2*time.Millisecond, nil)
	h.AfterStep(context.Background(), "grayscale", nil, time.Millisecond,
		apperrors.New(apperrors.CategoryProcess, "grayscale", errors.New("bad")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.StepCalls["resize(10x0)"])
	assert.Equal(t, int64(1), snap.StepErrors["grayscale"])
	assert.Equal(t, int64(1), snap.ErrorCategories["process"])
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	logger := hooks.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	h := hooks.NewLoggingHook(logger)

	img := &core.ImageData{Meta: core.Metadata{Width: 4, Height: 2}}
	h.BeforeStep(context.Background(), "thumbnail(2)", img)
	h.AfterStep(context.Background(), "thumbnail(2)", img, time.Millisecond, nil)
	h.AfterStep(context.Background(), "thumbnail(2)", nil, time.Millisecond, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "processor.start")
	assert.Contains(t, out, "processor.done")
	assert.Contains(t, out, "processor.error")
	assert.Contains(t, out, "thumbnail(2)")
}

func TestLogrLogger(t *testing.T) {
	var lines []string
	sink := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	l := hooks.NewLogrLogger(sink)
	l.Debug("dbg", "k", 1)
	l.Info("info")
	l.Warn("careful")
	l.Error("failed", "error", "x")

	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"msg"="dbg"`)
	assert.Contains(t, lines[2], `"level"="warn"`)
	assert.Contains(t, lines[3], `"msg"="failed"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, hooks.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, hooks.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, hooks.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, hooks.ParseLevel("verbose"))
}

func TestLoggingDiagnostics(t *testing.T) {
	d := hooks.NewLoggingDiagnostics(nil, 2)
	for _, k := range []string{"a", "b", "c"} {
		d.CacheWriteFailed(context.Background(), k, errors.New("disk full"))
	}
	recent, total := d.Failures()
	assert.Equal(t, int64(3), total)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Key)
	assert.Equal(t, "c", recent[1].Key)
}
