package codec_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch/adapters/codec"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/utils"
)

func sample(w, h int) *core.ImageData {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	return &core.ImageData{Image: img, Meta: core.Metadata{Width: w, Height: h}}
}

func TestCodecs_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		codec  core.Codec
		format core.Format
		sniff  string
	}{
		{"jpeg", codec.NewJPEG(85), core.FormatJPEG, "jpeg"},
		{"png", codec.NewPNG(), core.FormatPNG, "png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.codec.Handles(tt.format))

			in := sample(16, 8)
			in.Format = tt.format
			raw, err := tt.codec.Encode(ctx, in, core.EncodeOptions{Quality: 90})
			require.NoError(t, err)
			assert.Equal(t, tt.sniff, utils.DetectFormat(raw))

			out, err := tt.codec.Decode(ctx, bytes.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, 16, out.Meta.Width)
			assert.Equal(t, 8, out.Meta.Height)
			assert.Equal(t, tt.format, out.Format)
		})
	}
}

func TestWebP_EncodeFallsBackToPNG(t *testing.T) {
	w := codec.NewWebP()
	assert.True(t, w.Handles(core.FormatWebP))

	raw, err := w.Encode(context.Background(), sample(4, 4), core.EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "png", utils.DetectFormat(raw))
}

func TestDecode_Garbage(t *testing.T) {
	_, err := codec.NewPNG().Decode(context.Background(), bytes.NewReader([]byte("garbage")))
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	reg := core.NewRegistry()
	codec.Register(reg, 80)
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		c, ok := reg.CodecFor(f)
		require.True(t, ok, f)
		assert.True(t, c.Handles(f))
	}
	_, ok := reg.CodecFor(core.FormatUnknown)
	assert.False(t, ok)
	assert.Len(t, reg.Formats(), 3)
}
