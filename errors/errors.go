package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryFetch      Category = "fetch"
	CategoryDecode     Category = "decode"
	CategoryProcess    Category = "process"
	CategoryEncode     Category = "encode"
	CategoryCacheWrite Category = "cache_write"
	CategoryRegistry   Category = "registry"
	CategoryPipeline   Category = "pipeline"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "config"
	CategoryTransient  Category = "transient"
	CategoryInput      Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
// Terminal task failures always reach observers as a *ProcessingError.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.  An error that already carries a
// category keeps it; only the operation is recorded on the outer layer.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// Categorize is like Wrap but returns a *ProcessingError whose category is the
// given one, even if err already belongs to a different category.  The pipeline
// uses it to stamp stage failures (fetch/decode/process) onto adapter errors.
func Categorize(category Category, op string, err error) *ProcessingError {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) && pe.Category == category {
		return pe
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the outermost category of err, or "" when err is not a
// ProcessingError.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrTooLarge           = errors.New("resource exceeds size limit")
	ErrTruncated          = errors.New("resource shorter than reported")
	ErrNotFound           = errors.New("not found")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrStopped            = errors.New("pipeline stopped")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRegistryInvariant  = errors.New("more than one task registered for a cache key")
)
