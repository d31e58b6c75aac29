// Package converge searches for the largest rendition of an image whose
// encoded variant pair fits a byte budget. Width comes down first in
// multiplicative steps, then quality for origins that have the lever,
// and when both floors are hit the oversized pair ships anyway with a
// warning. The search is deterministic: same input, same options, same
// output bytes.
package converge

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/AnyUserName/siteimg/internal/encoder"
	"github.com/AnyUserName/siteimg/internal/probe"
	"github.com/AnyUserName/siteimg/internal/source"
)

// Options are the knobs the search honors.
type Options struct {
	MaxWidth    int
	MinWidth    int
	MaxBytes    int64
	ResizeStep  float64
	JPEGQuality int
	WebPQuality int
}

// Buffer is one encoded variant produced by the search.
type Buffer struct {
	Data []byte
	MIME string
}

// Output is the converged pair plus the state that produced it.
type Output struct {
	Modern   Buffer
	Fallback Buffer

	// Width and Height are the pixel dimensions of the encoded pair.
	Width  int
	Height int

	State  State
	Passes int

	// OverBudget marks a best-effort result: every lever was exhausted
	// and the pair still exceeds MaxBytes.
	OverBudget bool
}

// Run encodes img through the search until the larger variant of the
// pair fits o.MaxBytes or no lever is left to pull. When dims.Known is
// false the image is treated as already at its width ceiling and
// encoded in a single pass.
//
// Encoding runs to convergence once started; cancellation is the
// caller's concern before entry, not during.
func Run(img image.Image, kind source.Kind, dims probe.Info, pair encoder.Pair, o Options, logger *slog.Logger) (*Output, error) {
	if logger == nil {
		logger = slog.Default()
	}

	state := State{
		Width:       initialWidth(img, dims, o),
		JPEGQuality: o.JPEGQuality,
		WebPQuality: o.WebPQuality,
	}

	out := &Output{}
	resized := img
	resizedWidth := img.Bounds().Dx()

	for {
		if state.Width != resizedWidth {
			resized = shrink(img, state.Width)
			resizedWidth = state.Width
		}
		out.Passes++

		var modern, fallback []byte
		g := new(errgroup.Group)
		g.Go(func() error {
			b, err := pair.Modern.Encode(resized, state.WebPQuality)
			if err != nil {
				return fmt.Errorf("%s: %w", pair.Modern.Format(), err)
			}
			modern = b
			return nil
		})
		g.Go(func() error {
			b, err := pair.Fallback.Encode(resized, state.JPEGQuality)
			if err != nil {
				return fmt.Errorf("%s: %w", pair.Fallback.Format(), err)
			}
			fallback = b
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("encode pass %d: %w", out.Passes, err)
		}

		bounds := resized.Bounds()
		out.Modern = Buffer{Data: modern, MIME: pair.Modern.MIME()}
		out.Fallback = Buffer{Data: fallback, MIME: pair.Fallback.MIME()}
		out.Width = bounds.Dx()
		out.Height = bounds.Dy()
		out.State = state

		// The budget applies to each variant, so the larger one decides.
		if int64(max(len(modern), len(fallback))) <= o.MaxBytes {
			return out, nil
		}
		if !dims.Known {
			out.OverBudget = true
			logger.Warn("dimensions unknown, keeping single-pass encode",
				"modern_bytes", len(modern),
				"fallback_bytes", len(fallback),
				"max_bytes", o.MaxBytes)
			return out, nil
		}

		next, moved := state.next(kind, o)
		if !moved {
			out.OverBudget = true
			logger.Warn("byte budget unreachable, keeping best effort",
				"width", out.Width,
				"modern_bytes", len(modern),
				"fallback_bytes", len(fallback),
				"max_bytes", o.MaxBytes,
				"passes", out.Passes)
			return out, nil
		}
		state = next
	}
}

// initialWidth caps the starting width at the native width: the search
// never upscales. Native means the decoded bounds, not the probed
// header; EXIF orientation can leave the header dimensions transposed.
func initialWidth(img image.Image, dims probe.Info, o Options) int {
	native := img.Bounds().Dx()
	if !dims.Known {
		return native
	}
	return min(o.MaxWidth, native)
}

// shrink resizes to the target width preserving aspect ratio. Lanczos
// costs more than bilinear but keeps text and edges crisp, which is
// what screenshots and diagrams need.
func shrink(img image.Image, width int) image.Image {
	if width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}
