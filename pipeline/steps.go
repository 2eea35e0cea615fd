package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/utils"
)

// Processor ids are part of cache keys: changing the format of an ID()
// invalidates every entry written with the old one.

// ── Resize ────────────────────────────────────────────────────────────────────

// Resize scales the image to the given dimensions, preserving aspect ratio
// when one axis is 0.
type Resize struct {
	Width, Height int
	// Resampler controls quality vs speed.  Defaults to draw.BiLinear.
	Resampler xdraw.Interpolator
}

func (s *Resize) ID() string { return fmt.Sprintf("resize(%dx%d)", s.Width, s.Height) }

func (s *Resize) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.ID(), err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}

	srcB := src.Bounds()
	dstW, dstH := utils.ScaleDimensions(srcB.Dx(), srcB.Dy(), s.Width, s.Height)

	if dstW == srcB.Dx() && dstH == srcB.Dy() {
		return img, nil // nothing to do
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrInvalidDimensions)
	}

	sampler := s.Resampler
	if sampler == nil {
		sampler = xdraw.BiLinear
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	sampler.Scale(dst, dst.Bounds(), src, srcB, xdraw.Over, nil)

	out := *img
	out.Image = dst
	out.Meta.Width = dstW
	out.Meta.Height = dstH
	return &out, nil
}

// ── Crop ──────────────────────────────────────────────────────────────────────

// Crop cuts a rectangle out of the image.
type Crop struct {
	X, Y, Width, Height int
}

func (s *Crop) ID() string {
	return fmt.Sprintf("crop(%d,%d,%dx%d)", s.X, s.Y, s.Width, s.Height)
}

func (s *Crop) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.ID(), err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}

	b := src.Bounds()
	rect := image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height).Add(b.Min)
	if s.Width <= 0 || s.Height <= 0 || !rect.In(b) {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(),
			fmt.Errorf("%w: crop rect %v exceeds image bounds %v", apperrors.ErrInvalidDimensions, rect, b))
	}

	dst := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)

	out := *img
	out.Image = dst
	out.Meta.Width = s.Width
	out.Meta.Height = s.Height
	return &out, nil
}

// ── Thumbnail ────────────────────────────────────────────────────────────────

// Thumbnail combines Resize with a centred square crop.
type Thumbnail struct {
	Size int // square size in pixels
}

func (s *Thumbnail) ID() string { return fmt.Sprintf("thumbnail(%d)", s.Size) }

func (s *Thumbnail) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}
	if s.Size <= 0 {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrInvalidDimensions)
	}

	// Step 1: resize so smallest dimension == s.Size.
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var rw, rh int
	if w < h {
		rw, rh = s.Size, 0
	} else {
		rw, rh = 0, s.Size
	}

	resized, err := (&Resize{Width: rw, Height: rh}).Process(ctx, img)
	if err != nil {
		return nil, err
	}

	// Step 2: centre-crop to square.
	rb := resized.Image.(image.Image).Bounds()
	ox := (rb.Dx() - s.Size) / 2
	oy := (rb.Dy() - s.Size) / 2
	return (&Crop{X: ox, Y: oy, Width: s.Size, Height: s.Size}).Process(ctx, resized)
}

// ── StripMetadata ─────────────────────────────────────────────────────────────

// StripMetadata drops EXIF metadata from the ImageData.
type StripMetadata struct{}

func (s *StripMetadata) ID() string { return "strip_exif" }

func (s *StripMetadata) Process(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Meta.EXIF = nil
	out.Meta.HasEXIF = false
	out.Meta.Orientation = 0
	return &out, nil
}

// ── Grayscale ─────────────────────────────────────────────────────────────────

// Grayscale converts the image to grayscale.
type Grayscale struct{}

func (s *Grayscale) ID() string { return "grayscale" }

func (s *Grayscale) Process(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}

	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}

	out := *img
	out.Image = dst
	out.Meta.ColorSpace = core.ColorSpaceGray
	out.Meta.HasAlpha = false
	return &out, nil
}

// ── Watermark ─────────────────────────────────────────────────────────────────

// Watermark composites a named overlay onto the image.  Name identifies the
// overlay in cache keys, so two different overlays must not share a name.
type Watermark struct {
	Name      string
	Watermark image.Image
	OffsetX   int
	OffsetY   int
}

func (s *Watermark) ID() string {
	return fmt.Sprintf("watermark(%s@%d,%d)", s.Name, s.OffsetX, s.OffsetY)
}

func (s *Watermark) Process(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, ok := img.Image.(image.Image)
	if !ok || src == nil || s.Watermark == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}

	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	offset := dst.Bounds().Min.Add(image.Point{X: s.OffsetX, Y: s.OffsetY})
	draw.Draw(dst, s.Watermark.Bounds().Sub(s.Watermark.Bounds().Min).Add(offset), s.Watermark, s.Watermark.Bounds().Min, draw.Over)

	out := *img
	out.Image = dst
	out.Meta.ColorSpace = core.ColorSpaceRGBA
	return &out, nil
}

// ── Func ──────────────────────────────────────────────────────────────────────

// Func adapts a function to core.Processor.
type Func struct {
	Name string
	Fn   func(ctx context.Context, img *core.ImageData) (*core.ImageData, error)
}

func (f *Func) ID() string { return f.Name }

func (f *Func) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	return f.Fn(ctx, img)
}

var (
	_ core.Processor = (*Resize)(nil)
	_ core.Processor = (*Crop)(nil)
	_ core.Processor = (*Thumbnail)(nil)
	_ core.Processor = (*StripMetadata)(nil)
	_ core.Processor = (*Grayscale)(nil)
	_ core.Processor = (*Watermark)(nil)
	_ core.Processor = (*Func)(nil)
)
