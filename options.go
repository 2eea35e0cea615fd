package imagefetch

import (
	"log/slog"

	"github.com/go-logr/logr"

	"github.com/Skryldev/imagefetch/adapters/diskcache"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/dispatch"
	"github.com/Skryldev/imagefetch/hooks"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

type contextLogger struct {
	slog *slog.Logger
}

// WithByteSource sets the source resources are fetched from.
// If not set, an HTTP source is used.
func WithByteSource(s core.ByteSource) Option {
	return func(p *Pipeline) error {
		p.source = s
		return nil
	}
}

// WithDiskCache sets a custom disk cache, overriding Config.Disk.
func WithDiskCache(d core.DiskCache) Option {
	return func(p *Pipeline) error {
		p.disk = d
		return nil
	}
}

// WithObjectClient sets the client used when Config.Disk is objectstore.
func WithObjectClient(c diskcache.ObjectClient) Option {
	return func(p *Pipeline) error {
		p.objectClient = c
		return nil
	}
}

// WithMemoryCache sets a custom memory cache.  It is used only while
// Config.MemoryCacheEnabled is set.
func WithMemoryCache(m core.MemoryCache) Option {
	return func(p *Pipeline) error {
		p.memory = m
		return nil
	}
}

// WithLogger sets the structured logger.  If not set, logging is disabled.
func WithLogger(l core.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// WithSlog logs through l, both from the pipeline and from adapters that log
// from the task context.
func WithSlog(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = hooks.NewSlogLogger(l)
		p.contextLog.slog = l
		return nil
	}
}

// WithLogr logs through a logr.Logger.
func WithLogr(l logr.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = hooks.NewLogrLogger(l)
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m core.MetricsCollector) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithHook registers a hook called around each processor.
func WithHook(h core.Hook) Option {
	return func(p *Pipeline) error {
		p.chain.AddHook(h)
		return nil
	}
}

// WithDiagnostics sets the sink for non-fatal failures.
func WithDiagnostics(d core.Diagnostics) Option {
	return func(p *Pipeline) error {
		p.diag = d
		return nil
	}
}

// WithDeliveryContext sets the context callbacks run on for observers that
// do not name one.
func WithDeliveryContext(c dispatch.Context) Option {
	return func(p *Pipeline) error {
		p.cfg.DeliveryContext = c
		return nil
	}
}

// WithCodecs registers additional codecs after the built-in ones, for
// instance vips.Register.
func WithCodecs(register func(core.Registry)) Option {
	return func(p *Pipeline) error {
		p.codecs = append(p.codecs, register)
		return nil
	}
}
