package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/Skryldev/imagefetch/adapters/codec"
	"github.com/Skryldev/imagefetch/adapters/vips"
	"github.com/Skryldev/imagefetch/core"
	"github.com/Skryldev/imagefetch/pipeline"
)

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	return buf.Bytes()
}

func newBackend(b *testing.B) *vips.Backend {
	b.Helper()
	return vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
}

func decode(b *testing.B, c core.Codec, raw []byte) *core.ImageData {
	b.Helper()
	img, err := c.Decode(context.Background(), bytes.NewReader(raw))
	if err != nil {
		b.Fatal(err)
	}
	img.Data = raw
	return img
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	c := codec.NewJPEG(85)

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decode(b, c, raw)
	}
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	backend := newBackend(b)

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decode(b, backend, raw)
	}
}

// ─── Resize ───────────────────────────────────────────────────────────────────

func BenchmarkResize_Stdlib_1920to960(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	c := codec.NewJPEG(85)
	img := decode(b, c, raw)
	chain := pipeline.NewChain()
	procs := []core.Processor{&pipeline.Resize{Width: 960}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := chain.Run(context.Background(), img, procs)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := c.Encode(context.Background(), out, core.EncodeOptions{Quality: 85}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResize_Vips_1920to960(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	backend := newBackend(b)
	img := decode(b, backend, raw)
	chain := pipeline.NewChain()
	procs := []core.Processor{&vips.Resize{Width: 960}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := chain.Run(context.Background(), img, procs)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := backend.Encode(context.Background(), out, core.EncodeOptions{Quality: 85}); err != nil {
			b.Fatal(err)
		}
	}
}

// ─── Thumbnail ────────────────────────────────────────────────────────────────

func BenchmarkThumbnail_Stdlib_4K(b *testing.B) {
	raw := makeJPEG(b, 3840, 2160)
	c := codec.NewJPEG(75)
	chain := pipeline.NewChain()
	procs := []core.Processor{&pipeline.Thumbnail{Size: 256}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		img := decode(b, c, raw)
		if _, _, err := chain.Run(context.Background(), img, procs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkThumbnail_Vips_4K(b *testing.B) {
	raw := makeJPEG(b, 3840, 2160)
	backend := newBackend(b)
	chain := pipeline.NewChain()
	procs := []core.Processor{&vips.Thumbnail{Size: 256}}
	// vips_thumbnail works from the encoded bytes; no full decode is needed.
	img := &core.ImageData{Data: raw, Format: core.FormatJPEG}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := chain.Run(context.Background(), img, procs)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := backend.Encode(context.Background(), out, core.EncodeOptions{Quality: 75}); err != nil {
			b.Fatal(err)
		}
	}
}

// ─── WebP encode ──────────────────────────────────────────────────────────────

func BenchmarkEncodeWebP_Vips(b *testing.B) {
	raw := makeJPEG(b, 800, 600)
	backend := newBackend(b)
	img := decode(b, backend, raw)
	img.Format = core.FormatWebP

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.Encode(context.Background(), img, core.EncodeOptions{Quality: 80}); err != nil {
			b.Fatal(err)
		}
	}
}
