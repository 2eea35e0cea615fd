package utils

import (
	"bytes"
	"math"
	"mime"
	"net/http"
	"strings"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatWebP    = "webp"
	formatUnknown = "unknown"
)

// signature is a magic byte run at a fixed offset.
type signature struct {
	offset int
	magic  []byte
}

var signatures = []struct {
	format string
	parts  []signature
}{
	{formatJPEG, []signature{{0, []byte{0xFF, 0xD8, 0xFF}}}},
	{formatPNG, []signature{{0, []byte{0x89, 'P', 'N', 'G'}}}},
	{formatWebP, []signature{{0, []byte("RIFF")}, {8, []byte("WEBP")}}},
}

// DetectFormat sniffs the leading bytes of data and returns the image format
// name ("jpeg", "png", "webp" or "unknown").  Bytes win over any declared
// content type.
func DetectFormat(data []byte) string {
	for _, s := range signatures {
		if matchAll(data, s.parts) {
			return s.format
		}
	}
	if len(data) == 0 {
		return formatUnknown
	}
	return FormatFromMIME(http.DetectContentType(data))
}

func matchAll(data []byte, parts []signature) bool {
	for _, p := range parts {
		end := p.offset + len(p.magic)
		if len(data) < end || !bytes.Equal(data[p.offset:end], p.magic) {
			return false
		}
	}
	return true
}

// FormatFromMIME maps a Content-Type value (parameters allowed) to a format
// name.  Unrecognised types map to "unknown".
func FormatFromMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return formatJPEG
	case "image/png", "image/x-png":
		return formatPNG
	case "image/webp":
		return formatWebP
	}
	return formatUnknown
}

// ScaleDimensions fits (srcW, srcH) to the target box.  A zero axis is
// derived from the other so the aspect ratio holds; derived axes never drop
// below one pixel.
func ScaleDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	switch {
	case targetW == 0 && targetH == 0, srcW <= 0, srcH <= 0:
		return srcW, srcH
	case targetW == 0:
		return derive(srcW, targetH, srcH), targetH
	case targetH == 0:
		return targetW, derive(srcH, targetW, srcW)
	}
	return targetW, targetH
}

func derive(side, num, den int) int {
	v := int(math.Round(float64(side) * float64(num) / float64(den)))
	if v < 1 {
		return 1
	}
	return v
}

// CloneBytes returns a copy of b that outlives a pooled source buffer.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
