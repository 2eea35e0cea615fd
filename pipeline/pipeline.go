// Package pipeline runs processor chains with hooks and retries, and provides
// the built-in processors.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
)

// Chain executes processors in declared order with hook and retry support.
// It implements core.ChainRunner.
type Chain struct {
	hooks      []core.Hook
	maxRetries int
	retryDelay time.Duration
}

// NewChain returns a Chain without hooks or retries.
func NewChain() *Chain { return &Chain{} }

// AddHook registers an observer.
func (c *Chain) AddHook(h core.Hook) *Chain {
	c.hooks = append(c.hooks, h)
	return c
}

// WithRetry sets the maximum retry count and delay for transient failures.
func (c *Chain) WithRetry(maxRetries int, delay time.Duration) *Chain {
	c.maxRetries = maxRetries
	c.retryDelay = delay
	return c
}

// Run applies processors to img.  Each processor receives the previous one's
// output.  It returns the final ImageData and per-processor timings keyed by
// processor id.
func (c *Chain) Run(ctx context.Context, img *core.ImageData, processors []core.Processor) (*core.ImageData, map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(processors))
	current := img

	for _, proc := range processors {
		if err := ctx.Err(); err != nil {
			return nil, timings, apperrors.Wrap(apperrors.CategoryPipeline, proc.ID(), err)
		}

		result, elapsed, err := c.runStep(ctx, proc, current)
		timings[proc.ID()] += elapsed
		if err != nil {
			return nil, timings, err
		}
		if result == nil {
			return nil, timings, apperrors.New(apperrors.CategoryProcess, proc.ID(), apperrors.ErrEmptyInput)
		}
		current = result
	}
	return current, timings, nil
}

// runStep executes a single processor, calling hooks and retrying transient errors.
func (c *Chain) runStep(ctx context.Context, proc core.Processor, img *core.ImageData) (*core.ImageData, time.Duration, error) {
	c.callHooksBefore(ctx, proc.ID(), img)

	var (
		result  *core.ImageData
		elapsed time.Duration
		err     error
	)

	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		start := time.Now()
		result, err = proc.Process(ctx, img)
		elapsed = time.Since(start)

		if err == nil {
			break
		}
		if !apperrors.IsRetryable(err) || i == attempts-1 {
			break
		}
		// Wait before retrying.
		select {
		case <-ctx.Done():
			err = apperrors.Wrap(apperrors.CategoryPipeline, proc.ID(), ctx.Err())
			goto done
		case <-time.After(c.retryDelay):
		}
	}

done:
	c.callHooksAfter(ctx, proc.ID(), result, elapsed, err)
	return result, elapsed, err
}

func (c *Chain) callHooksBefore(ctx context.Context, id string, img *core.ImageData) {
	for _, h := range c.hooks {
		h.BeforeStep(ctx, id, img)
	}
}

func (c *Chain) callHooksAfter(ctx context.Context, id string, img *core.ImageData, d time.Duration, err error) {
	for _, h := range c.hooks {
		h.AfterStep(ctx, id, img, d, err)
	}
}

// Clone returns a copy of the chain so a configured template can be extended
// without affecting the original.
func (c *Chain) Clone() *Chain {
	cp := &Chain{
		hooks:      make([]core.Hook, len(c.hooks)),
		maxRetries: c.maxRetries,
		retryDelay: c.retryDelay,
	}
	copy(cp.hooks, c.hooks)
	return cp
}

var _ core.ChainRunner = (*Chain)(nil)
