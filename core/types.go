package core

import (
	"time"

	"github.com/Skryldev/imagefetch/config"
	"github.com/Skryldev/imagefetch/dispatch"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	HasAlpha    bool
	SizeBytes   int64
	EXIF        map[string]string // nil when stripped or absent
	HasEXIF     bool
	Orientation int // EXIF orientation tag (1-8)
}

// ImageData is the in-memory representation passed through the pipeline.
// Data holds the bytes the image was decoded from; Image holds the decoded
// pixel buffer.
type ImageData struct {
	Data   []byte
	Format Format

	// Decoded pixel buffer.  image.Image for the Go codecs, *vips.Image for
	// the libvips backend.
	Image interface{}

	Meta Metadata

	// Size of the bytes the image was decoded from.
	OriginalSize int64
}

// CachePolicy is re-exported from config so resources can select a policy
// without importing config.
type CachePolicy = config.CachePolicy

const (
	// PolicyDefault defers to the pipeline's configured policy.
	PolicyDefault       CachePolicy = ""
	PolicyStoreOriginal             = config.PolicyStoreOriginal
	PolicyStoreEncoded              = config.PolicyStoreEncoded
	PolicyAutomatic                 = config.PolicyAutomatic
)

// Resource is a fetch target plus the processors applied to it.  It must not
// be mutated once handed to the pipeline.
type Resource struct {
	URL         string
	Processors  []Processor
	Policy      CachePolicy
	ContentType string // optional decode hint
}

// ResultSource tells where a delivered image came from.
type ResultSource string

const (
	SourceNetwork ResultSource = "network"
	SourceDisk    ResultSource = "disk"
	SourceMemory  ResultSource = "memory"
)

// Result is the completion value delivered to every observer of a task.
// Exactly one of Image and Err is set.
type Result struct {
	Image  *ImageData
	Key    CacheKey
	Source ResultSource
	Err    error

	Elapsed time.Duration
}

// Progress is a byte-level progress snapshot.  Total is -1 while unknown.
type Progress struct {
	Completed int64
	Total     int64
}

// Known reports whether the total size is known.
func (p Progress) Known() bool { return p.Total >= 0 }

// Fraction returns completed/total in [0, 1], or 0 while the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		if p.Total == 0 && p.Completed == 0 {
			return 1
		}
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Observer is one caller's interest in a task.  Callbacks run on Context, or
// on the pipeline's default delivery context when Context is nil.  Either
// callback may be nil.
type Observer struct {
	OnProgress func(Progress)
	OnComplete func(Result)
	Context    dispatch.Context
}

// TaskState is a task's lifecycle stage.
type TaskState int

const (
	StateCreated TaskState = iota
	StateFetching
	StateDecoding
	StateProcessing
	StateEncoding
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{"created", "fetching", "decoding", "processing", "encoding", "completed", "failed", "cancelled"}

func (s TaskState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends the task.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality    int  // 1-100; 0 = use encoder default
	Lossless   bool // WebP / PNG lossless mode
	StripEXIF  bool
	Interlaced bool // progressive JPEG / interlaced PNG
}
