package encoder

import (
	"fmt"
	"strings"

	"github.com/AnyUserName/siteimg/internal/source"
)

// Pair is the two encoders that together produce one delivered image:
// the modern variant browsers prefer and the fallback they all decode.
type Pair struct {
	Modern   Encoder
	Fallback Encoder
}

// Registry maps each origin kind to its variant encoder pair.
type Registry struct {
	pairs map[source.Kind]Pair
}

// NewRegistry builds the production encoder set: lossy WebP over a JPEG
// fallback for photographic sources, lossless WebP over an optimized
// PNG for graphics.
func NewRegistry() *Registry {
	return &Registry{pairs: map[source.Kind]Pair{
		source.KindJPEG: {Modern: &WebPEncoder{}, Fallback: &JPEGEncoder{}},
		source.KindPNG:  {Modern: &WebPEncoder{Lossless: true}, Fallback: &PNGEncoder{}},
	}}
}

// Register replaces the pair for one origin kind. Tests use it to
// substitute hermetic encoders.
func (r *Registry) Register(kind source.Kind, p Pair) {
	r.pairs[kind] = p
}

// For returns the encoder pair for an origin kind.
func (r *Registry) For(kind source.Kind) (Pair, bool) {
	p, ok := r.pairs[kind]
	return p, ok
}

// Check verifies every registered encoder can run. Delivered images are
// always a pair, so a missing modern encoder is a hard error rather
// than something to silently degrade around.
func (r *Registry) Check() error {
	for kind, p := range r.pairs {
		for _, enc := range []Encoder{p.Modern, p.Fallback} {
			if enc == nil || !enc.Available() {
				return fmt.Errorf("no usable %s encoder for %s sources", describe(enc), kind)
			}
		}
	}
	return nil
}

// String returns a summary of the registered pairs for startup logs.
func (r *Registry) String() string {
	var parts []string
	for _, kind := range []source.Kind{source.KindJPEG, source.KindPNG} {
		if p, ok := r.pairs[kind]; ok {
			parts = append(parts, fmt.Sprintf("%s->%s+%s", kind, describe(p.Modern), describe(p.Fallback)))
		}
	}
	if len(parts) == 0 {
		return "no encoders registered"
	}
	return strings.Join(parts, " ")
}

func describe(e Encoder) string {
	if e == nil {
		return "missing"
	}
	return e.Format()
}
