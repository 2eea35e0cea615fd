package core

import (
	"context"
	"io"
	"time"
)

// ByteSource fetches the raw bytes of a resource.  Fetch blocks until the
// transfer ends; onProgress is called synchronously, before Fetch returns,
// with the bytes received so far and the total (-1 when unknown).  A cancelled
// ctx must abort the transfer.
type ByteSource interface {
	Fetch(ctx context.Context, res Resource, onProgress func(completed, total int64)) ([]byte, error)
}

// DiskCache is a key/value byte store.  Read reports ok=false on a miss.
// Implementations must be safe for concurrent use; no transactional
// guarantees are assumed.
// Implementations live in adapters/diskcache/.
type DiskCache interface {
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)
	Write(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// MemoryCache holds decoded images for same-process reuse.
// Implementations live in adapters/memcache/.
type MemoryCache interface {
	Get(key string) (*ImageData, bool)
	Set(key string, img *ImageData)
	Remove(key string)
}

// Codec converts bytes to a decoded ImageData and back.
// Implementations live in adapters/codec/ and adapters/vips/.
type Codec interface {
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	// Handles reports whether this codec handles the given format.
	Handles(format Format) bool
}

// Processor is a pure image transform.  ID must be stable: it is part of the
// cache key of every resource the processor is applied to.
type Processor interface {
	ID() string
	Process(ctx context.Context, img *ImageData) (*ImageData, error)
}

// ChainRunner runs processors in order.  It is implemented by
// pipeline.Chain; core only depends on this interface so that the pipeline
// package can import core.
type ChainRunner interface {
	Run(ctx context.Context, img *ImageData, processors []Processor) (*ImageData, map[string]time.Duration, error)
}

// Hook is an optional observer invoked around each processor.
type Hook interface {
	BeforeStep(ctx context.Context, processorID string, img *ImageData)
	AfterStep(ctx context.Context, processorID string, img *ImageData, d time.Duration, err error)
}

// Diagnostics receives non-fatal failures, such as disk cache writes that
// did not succeed.
type Diagnostics interface {
	CacheWriteFailed(ctx context.Context, key string, err error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Codec implementations.
type Registry interface {
	CodecFor(format Format) (Codec, bool)
	RegisterCodec(format Format, c Codec)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
