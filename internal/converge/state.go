package converge

import (
	"github.com/AnyUserName/siteimg/internal/source"
)

// Quality moves in fixed steps once width is exhausted, and never below
// the floor. Past that point artifacts get bad enough that an oversized
// image is the better trade.
const (
	qualityStep  = 5
	qualityFloor = 60
)

// State is one point in the convergence search. next derives successors;
// a State itself is never mutated.
type State struct {
	Width       int
	JPEGQuality int
	WebPQuality int
}

// next returns the successor state and whether any lever still moved.
// Width shrinks first. Only once width sits at the floor do JPEG-origin
// images start trading quality down; PNG-origin output is lossless on
// both sides and has no quality lever at all.
func (s State) next(kind source.Kind, o Options) (State, bool) {
	if s.Width > o.MinWidth {
		w := int(float64(s.Width) * o.ResizeStep)
		if w >= s.Width || w < o.MinWidth {
			w = o.MinWidth
		}
		return State{Width: w, JPEGQuality: s.JPEGQuality, WebPQuality: s.WebPQuality}, true
	}
	if kind == source.KindJPEG && (s.JPEGQuality > qualityFloor || s.WebPQuality > qualityFloor) {
		return State{
			Width:       s.Width,
			JPEGQuality: stepDown(s.JPEGQuality),
			WebPQuality: stepDown(s.WebPQuality),
		}, true
	}
	return s, false
}

// stepDown lowers a quality value by one step, clamped at the floor. A
// value already at or under the floor is left alone, never raised.
func stepDown(q int) int {
	if q <= qualityFloor {
		return q
	}
	return max(q-qualityStep, qualityFloor)
}
