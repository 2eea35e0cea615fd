package codec

import (
	"image"

	"github.com/Skryldev/imagefetch/core"
)

// Register installs the Go-native codecs for JPEG, PNG and WebP.
func Register(reg core.Registry, defaultQuality int) {
	reg.RegisterCodec(core.FormatJPEG, NewJPEG(defaultQuality))
	reg.RegisterCodec(core.FormatPNG, NewPNG())
	reg.RegisterCodec(core.FormatWebP, NewWebP())
}

func newImageData(img image.Image, format core.Format) *core.ImageData {
	bounds := img.Bounds()
	return &core.ImageData{
		Image:  img,
		Format: format,
		Meta: core.Metadata{
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Format:     format,
			ColorSpace: ColorSpaceOf(img),
			HasAlpha:   HasAlpha(img),
		},
	}
}

// ColorSpaceOf returns the colour space of an image.Image.
func ColorSpaceOf(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

// HasAlpha reports whether img carries an alpha channel.
func HasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

var (
	_ core.Codec = (*JPEG)(nil)
	_ core.Codec = (*PNG)(nil)
	_ core.Codec = (*WebP)(nil)
)
