// Package pipeline turns image references into web-ready variant pairs:
// a modern WebP next to a JPEG or PNG fallback, both squeezed under a
// byte budget. Results are content-addressed per logical image and
// shared across every call site that asks for the same one.
package pipeline

import (
	"runtime"
	"time"
)

// Defaults for zero-valued Options fields. The config layer registers
// the same values, so a bare Options{} and an empty config file agree.
const (
	DefaultMaxWidth    = 1280
	DefaultMinWidth    = 320
	DefaultMaxBytes    = 600 * 1024
	DefaultResizeStep  = 0.85
	DefaultJPEGQuality = 82
	DefaultWebPQuality = 82

	DefaultRemoteMaxBytes = 8 << 20
	DefaultRemoteTimeout  = 10 * time.Second
)

// Bounds for the derived encode window. Encoding is CPU-bound and
// briefly holds whole decoded frames, so the window stays small even on
// big machines.
const (
	minSlots = 2
	maxSlots = 6
)

// Options configure a Processor. Zero-valued sizing fields fall back to
// the documented defaults; the two directories are required.
type Options struct {
	// SourceDir is the trusted root for local references.
	SourceDir string

	// OutputDir receives the encoded variant pairs.
	OutputDir string

	// PublicBase, when set, prefixes public URLs in results. Empty means
	// results carry only output-relative paths.
	PublicBase string

	MaxWidth    int
	MinWidth    int
	MaxBytes    int64
	ResizeStep  float64
	JPEGQuality int
	WebPQuality int

	RemoteMaxBytes int64
	RemoteTimeout  time.Duration

	// Workers bounds simultaneous conversions. Zero derives the window
	// from the CPU count, clamped to [2,6].
	Workers int
}

func (o Options) withDefaults() Options {
	if o.MaxWidth == 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MinWidth == 0 {
		o.MinWidth = DefaultMinWidth
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.ResizeStep == 0 {
		o.ResizeStep = DefaultResizeStep
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.WebPQuality == 0 {
		o.WebPQuality = DefaultWebPQuality
	}
	if o.RemoteMaxBytes == 0 {
		o.RemoteMaxBytes = DefaultRemoteMaxBytes
	}
	if o.RemoteTimeout == 0 {
		o.RemoteTimeout = DefaultRemoteTimeout
	}
	return o
}

// encodeSlots derives the size of the concurrency window. An explicit
// worker count is taken as is; only the CPU-derived default is clamped.
func encodeSlots(configured int) int {
	if configured > 0 {
		return configured
	}
	return min(max(runtime.NumCPU(), minSlots), maxSlots)
}

// EncodedVariant is one written rendition of a processed image.
type EncodedVariant struct {
	Data       []byte
	MIMEType   string
	RelPath    string
	PublicPath string
}

// Result is the outcome of processing one logical image. Every call
// site that references the same image receives the same *Result, so
// treat it as read-only.
type Result struct {
	// Key is the output-relative base path without extension, unique per
	// logical image within a build.
	Key string

	Origin string
	Format string
	Width  int
	Height int

	// AvgColor is the mean source color as #rrggbb, usable as a
	// placeholder background while the real image loads.
	AvgColor string

	Passes     int
	OverBudget bool

	Modern   EncodedVariant
	Fallback EncodedVariant
}
