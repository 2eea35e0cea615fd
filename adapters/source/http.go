// Package source provides core.ByteSource implementations.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/utils"
)

// HTTP fetches resources over HTTP(S).  Progress is reported after every
// chunk read from the response body; the total comes from Content-Length.
type HTTP struct {
	client    *http.Client
	chunkSize int
	maxBytes  int64
	userAgent string
}

// HTTPOption configures an HTTP source.
type HTTPOption func(*HTTP)

// WithClient sets the http.Client.  http.DefaultClient is used otherwise.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithChunkSize sets the read size between progress reports.
func WithChunkSize(n int) HTTPOption {
	return func(h *HTTP) { h.chunkSize = n }
}

// WithMaxBytes rejects bodies larger than n bytes.  0 disables the limit.
func WithMaxBytes(n int64) HTTPOption {
	return func(h *HTTP) { h.maxBytes = n }
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) { h.userAgent = ua }
}

// NewHTTP returns an HTTP source.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{client: http.DefaultClient, chunkSize: 32 * 1024}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	return h
}

func (h *HTTP) Fetch(ctx context.Context, res core.Resource, onProgress func(completed, total int64)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "http.request", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	slogcontext.Log(ctx, slog.LevelDebug, "fetching resource", slog.String("url", res.URL))
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.New(apperrors.CategoryFetch, "http.do", ctx.Err())
		}
		return nil, apperrors.Transient("http.do", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.CategoryFetch, "http.status",
			fmt.Errorf("%w: %s", apperrors.ErrNotFound, res.URL))
	case resp.StatusCode >= 500:
		return nil, apperrors.Transient("http.status", fmt.Errorf("server returned status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.New(apperrors.CategoryFetch, "http.status",
			fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}
	if h.maxBytes > 0 && total > h.maxBytes {
		return nil, apperrors.New(apperrors.CategoryFetch, "http.body",
			fmt.Errorf("%w: %d > %d bytes", apperrors.ErrTooLarge, total, h.maxBytes))
	}

	body := &utils.LimitedReader{R: resp.Body, Max: h.maxBytes}
	buf, err := utils.DrainReaderProgress(ctx, body, h.chunkSize, total, onProgress)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, apperrors.New(apperrors.CategoryFetch, "http.body",
				fmt.Errorf("%w: more than %d bytes", apperrors.ErrTooLarge, h.maxBytes))
		}
		return nil, apperrors.New(apperrors.CategoryFetch, "http.body", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	slogcontext.Log(ctx, slog.LevelDebug, "fetched resource",
		slog.String("url", res.URL), slog.Int("bytes", len(data)))
	return data, nil
}

var _ core.ByteSource = (*HTTP)(nil)
