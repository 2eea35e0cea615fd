package vips

import (
	"context"
	"fmt"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/utils"
)

// Resize resizes using vips_resize() with the Lanczos3 kernel.
type Resize struct {
	Width, Height int
}

func (s *Resize) ID() string { return fmt.Sprintf("vips.resize(%dx%d)", s.Width, s.Height) }

func (s *Resize) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	ref, err := workingCopy(ctx, s.ID(), img)
	if err != nil {
		return nil, err
	}
	dstW, dstH := utils.ScaleDimensions(img.Meta.Width, img.Meta.Height, s.Width, s.Height)
	if dstW <= 0 || dstH <= 0 {
		ref.Close()
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrInvalidDimensions)
	}
	if dstW == img.Meta.Width && dstH == img.Meta.Height {
		ref.Close()
		return img, nil
	}
	hscale := float64(dstW) / float64(img.Meta.Width)
	vscale := float64(dstH) / float64(img.Meta.Height)
	if err := ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryProcess, s.ID(), err)
	}
	return withRef(img, ref), nil
}

// Thumbnail generates a centred square thumbnail using vips_thumbnail().
// It works from the encoded bytes, so JPEG sources shrink on load.
type Thumbnail struct {
	Size int
}

func (s *Thumbnail) ID() string { return fmt.Sprintf("vips.thumbnail(%d)", s.Size) }

func (s *Thumbnail) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.ID(), err)
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrEmptyInput)
	}
	if s.Size <= 0 {
		return nil, apperrors.New(apperrors.CategoryProcess, s.ID(), apperrors.ErrInvalidDimensions)
	}
	ref, err := govips.NewThumbnailFromBuffer(img.Data, s.Size, s.Size, govips.InterestingCentre)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcess, s.ID(), err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })
	return withRef(img, ref), nil
}

// StripMetadata removes EXIF, XMP and IPTC metadata.
type StripMetadata struct{}

func (s *StripMetadata) ID() string { return "vips.strip_exif" }

func (s *StripMetadata) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	ref, err := workingCopy(ctx, s.ID(), img)
	if err != nil {
		return nil, err
	}
	if err := ref.RemoveMetadata(); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryProcess, s.ID(), err)
	}
	out := withRef(img, ref)
	out.Meta.EXIF = nil
	out.Meta.HasEXIF = false
	out.Meta.Orientation = 0
	return out, nil
}

// AutoRotate applies the EXIF orientation tag, then drops it.
type AutoRotate struct{}

func (s *AutoRotate) ID() string { return "vips.auto_rotate" }

func (s *AutoRotate) Process(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	ref, err := workingCopy(ctx, s.ID(), img)
	if err != nil {
		return nil, err
	}
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryProcess, s.ID(), err)
	}
	out := withRef(img, ref)
	out.Meta.Orientation = 0
	return out, nil
}

func workingCopy(ctx context.Context, op string, img *core.ImageData) (*govips.ImageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	vi, ok := img.Image.(*Image)
	if !ok || vi == nil {
		return nil, apperrors.New(apperrors.CategoryProcess, op,
			fmt.Errorf("expected *vips.Image; decode with the vips backend"))
	}
	ref, err := vi.ref.Copy()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryProcess, op, err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })
	return ref, nil
}

func withRef(img *core.ImageData, ref *govips.ImageRef) *core.ImageData {
	out := *img
	out.Image = &Image{ref: ref}
	out.Meta.Width = ref.Width()
	out.Meta.Height = ref.Height()
	return &out
}

var (
	_ core.Processor = (*Resize)(nil)
	_ core.Processor = (*Thumbnail)(nil)
	_ core.Processor = (*StripMetadata)(nil)
	_ core.Processor = (*AutoRotate)(nil)
)
