package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	"github.com/AnyUserName/siteimg/internal/converge"
	"github.com/AnyUserName/siteimg/internal/encoder"
	"github.com/AnyUserName/siteimg/internal/plan"
	"github.com/AnyUserName/siteimg/internal/probe"
	"github.com/AnyUserName/siteimg/internal/source"
)

// Processor resolves, converges and writes image variant pairs. It is
// safe for concurrent use; a bounded window of conversions runs at a
// time and everything else queues in arrival order.
type Processor struct {
	opts     Options
	resolver *source.Resolver
	registry *encoder.Registry
	cache    *flightCache
	sem      *semaphore.Weighted
	slots    int
	logger   *slog.Logger
}

// Option adjusts a Processor at construction.
type Option func(*Processor)

// WithLogger routes processor logging somewhere other than the default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithRegistry substitutes the encoder registry. Tests use it to run
// without cwebp on the host.
func WithRegistry(r *encoder.Registry) Option {
	return func(p *Processor) { p.registry = r }
}

// New builds a Processor and verifies every encoder it will need is
// actually runnable, so a missing cwebp fails the build up front rather
// than halfway through.
func New(opts Options, options ...Option) (*Processor, error) {
	opts = opts.withDefaults()
	if opts.SourceDir == "" || opts.OutputDir == "" {
		return nil, fmt.Errorf("source and output directories are required")
	}

	resolver, err := source.NewResolver(opts.SourceDir, opts.RemoteMaxBytes, opts.RemoteTimeout)
	if err != nil {
		return nil, err
	}

	slots := encodeSlots(opts.Workers)
	p := &Processor{
		opts:     opts,
		resolver: resolver,
		registry: encoder.NewRegistry(),
		cache:    newFlightCache(),
		sem:      semaphore.NewWeighted(int64(slots)),
		slots:    slots,
		logger:   slog.Default(),
	}
	for _, o := range options {
		o(p)
	}
	if err := p.registry.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// Slots returns the size of the conversion window.
func (p *Processor) Slots() int { return p.slots }

// Processed returns how many distinct images have settled so far.
func (p *Processor) Processed() int { return p.cache.len() }

// Process turns ref into a written variant pair and returns the shared
// result. relHint, when non-empty, pins the output location; it must be
// slash-separated and extension-free. Repeated and concurrent calls for
// the same logical image do the work once.
//
// Failures are terminal for the reference: nothing is retried within a
// build and every caller sees the same error.
func (p *Processor) Process(ctx context.Context, ref, relHint string) (*Result, error) {
	id, err := p.resolver.Identify(ref, relHint)
	if err != nil {
		return nil, err
	}
	return p.cache.do(id.CacheKey(), func() (*Result, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire conversion slot: %w", err)
		}
		defer p.sem.Release(1)
		return p.run(ctx, id)
	})
}

func (p *Processor) run(ctx context.Context, id source.Identity) (*Result, error) {
	res, err := p.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	pair, ok := p.registry.For(res.Kind)
	if !ok {
		return nil, fmt.Errorf("%s: %w", res.Kind, source.ErrUnsupportedFormat)
	}

	dims := probe.Dimensions(res.Data)
	if !dims.Known {
		p.logger.Warn("dimensions unreadable, encoding single pass", "ref", id.RawRef)
	}

	img, err := imaging.Decode(bytes.NewReader(res.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id.RawRef, err)
	}

	out, err := converge.Run(img, res.Kind, dims, pair, converge.Options{
		MaxWidth:    p.opts.MaxWidth,
		MinWidth:    p.opts.MinWidth,
		MaxBytes:    p.opts.MaxBytes,
		ResizeStep:  p.opts.ResizeStep,
		JPEGQuality: p.opts.JPEGQuality,
		WebPQuality: p.opts.WebPQuality,
	}, p.logger.With("rel", res.Identity.RelPath))
	if err != nil {
		return nil, fmt.Errorf("converge %s: %w", res.Identity.RelPath, err)
	}

	layout := plan.Outputs(res.Identity.RelPath, res.Kind, p.opts.PublicBase)
	if strings.HasPrefix(layout.ModernRel, "../") {
		return nil, fmt.Errorf("%s: %w", res.Identity.RelPath, source.ErrPathEscape)
	}
	if err := p.writePair(layout, out); err != nil {
		return nil, err
	}

	result := &Result{
		Key:        res.Identity.RelPath,
		Origin:     res.Identity.Origin.String(),
		Format:     res.Kind.String(),
		Width:      out.Width,
		Height:     out.Height,
		AvgColor:   avgColorHex(img),
		Passes:     out.Passes,
		OverBudget: out.OverBudget,
		Modern: EncodedVariant{
			Data:       out.Modern.Data,
			MIMEType:   out.Modern.MIME,
			RelPath:    layout.ModernRel,
			PublicPath: layout.ModernPublic,
		},
		Fallback: EncodedVariant{
			Data:       out.Fallback.Data,
			MIMEType:   out.Fallback.MIME,
			RelPath:    layout.FallbackRel,
			PublicPath: layout.FallbackPublic,
		},
	}

	p.logger.Info("image processed",
		"rel", result.Key,
		"origin", result.Origin,
		"format", result.Format,
		"size", fmt.Sprintf("%dx%d", result.Width, result.Height),
		"passes", result.Passes,
		"modern_bytes", len(result.Modern.Data),
		"fallback_bytes", len(result.Fallback.Data))
	return result, nil
}

// writePair persists both variants or neither. Variants are siblings in
// the same directory, differing only by extension.
func (p *Processor) writePair(layout plan.Plan, out *converge.Output) error {
	modernPath := filepath.Join(p.opts.OutputDir, filepath.FromSlash(layout.ModernRel))
	if err := os.MkdirAll(filepath.Dir(modernPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(modernPath, out.Modern.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", layout.ModernRel, err)
	}

	fallbackPath := filepath.Join(p.opts.OutputDir, filepath.FromSlash(layout.FallbackRel))
	if err := os.WriteFile(fallbackPath, out.Fallback.Data, 0o644); err != nil {
		os.Remove(modernPath)
		return fmt.Errorf("write %s: %w", layout.FallbackRel, err)
	}
	return nil
}

// avgColorHex averages the source color for use as a placeholder
// background while the real image loads.
func avgColorHex(img image.Image) string {
	bounds := img.Bounds()
	count := uint64(bounds.Dx()) * uint64(bounds.Dy())
	if count == 0 {
		return "#000000"
	}
	var rSum, gSum, bSum uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
		}
	}
	return fmt.Sprintf("#%02x%02x%02x",
		uint8(rSum/count), uint8(gSum/count), uint8(bSum/count))
}
