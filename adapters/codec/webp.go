package codec

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
)

// WebP decodes WebP images with golang.org/x/image/webp.
// NOTE: x/image has no WebP encoder.  Encode writes lossless PNG bytes, which
// sniff as PNG when read back from the disk cache.  Register the vips backend
// for real WebP output.
type WebP struct {
	fallback *PNG
}

func NewWebP() *WebP { return &WebP{fallback: NewPNG()} }

func (w *WebP) Handles(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	return newImageData(img, core.FormatWebP), nil
}

func (w *WebP) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	return w.fallback.Encode(ctx, img, core.EncodeOptions{Lossless: true, StripEXIF: opts.StripEXIF})
}
