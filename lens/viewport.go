package lens

import (
	"math"

	"github.com/paulmach/orb"
)

// Viewport defaults
const (
	DefaultPadRatio   = 0.1
	DefaultHalfWidth  = 2000.0
	DefaultHalfHeight = 20.0
	ZoomFactor        = 1.1
)

// FitBounds computes padded axis bounds around the given plotted points. A zero
// span on an axis is replaced by max(|max|*0.02, 1.0) before padding. NaN and
// infinite coordinates are ignored. ok is false when no usable point remains, in
// which case the caller falls back to DefaultWindow.
func FitBounds(points []orb.Point, padRatio float64) (orb.Bound, bool) {
	var b orb.Bound
	first := true
	for _, p := range points {
		if !finite(p.X()) || !finite(p.Y()) {
			continue
		}
		if first {
			b = orb.Bound{Min: p, Max: p}
			first = false
			continue
		}
		b = b.Extend(p)
	}
	if first {
		return orb.Bound{}, false
	}

	xspan := b.Max.X() - b.Min.X()
	yspan := b.Max.Y() - b.Min.Y()
	if xspan == 0 {
		xspan = math.Max(math.Abs(b.Max.X())*0.02, 1.0)
	}
	if yspan == 0 {
		yspan = math.Max(math.Abs(b.Max.Y())*0.02, 1.0)
	}
	xpad := xspan * padRatio
	ypad := yspan * padRatio

	return orb.Bound{
		Min: orb.Point{b.Min.X() - xpad, b.Min.Y() - ypad},
		Max: orb.Point{b.Max.X() + xpad, b.Max.Y() + ypad},
	}, true
}

// DefaultWindow is the fixed window shown around center when there is nothing to fit
func DefaultWindow(center orb.Point, halfWidth, halfHeight float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{center.X() - halfWidth, center.Y() - halfHeight},
		Max: orb.Point{center.X() + halfWidth, center.Y() + halfHeight},
	}
}

// Viewport holds the current axis bounds and the settings used to refit them
type Viewport struct {
	Bounds     orb.Bound
	PadRatio   float64
	HalfWidth  float64
	HalfHeight float64
}

// NewViewport creates a viewport with the default padding and window
func NewViewport() *Viewport {
	return &Viewport{
		PadRatio:   DefaultPadRatio,
		HalfWidth:  DefaultHalfWidth,
		HalfHeight: DefaultHalfHeight,
	}
}

// Fit sets the bounds to fit the view's visible points, its center and any extra
// reference points. It falls back to the default window around the center.
func (v *Viewport) Fit(view *View, extra ...orb.Point) orb.Bound {
	pts := make([]orb.Point, 0, len(view.Points)+1+len(extra))
	for _, p := range view.Points {
		pts = append(pts, p.Plot)
	}
	pts = append(pts, view.Center)
	pts = append(pts, extra...)

	if b, ok := FitBounds(pts, v.PadRatio); ok {
		v.Bounds = b
	} else {
		v.Reset(view.Center)
	}
	return v.Bounds
}

// Reset shows the default window around center
func (v *Viewport) Reset(center orb.Point) {
	v.Bounds = DefaultWindow(center, v.HalfWidth, v.HalfHeight)
}

// Empty reports whether the viewport has never been sized
func (v *Viewport) Empty() bool {
	return v.Bounds.Min == v.Bounds.Max
}

// Zoom scales the bounds about anchor; steps > 0 zoom in, steps < 0 zoom out.
// The anchor keeps its relative position inside the view.
func (v *Viewport) Zoom(anchor orb.Point, steps int) {
	if steps == 0 || v.Empty() {
		return
	}
	factor := math.Pow(ZoomFactor, float64(-steps))

	b := v.Bounds
	width := b.Max.X() - b.Min.X()
	height := b.Max.Y() - b.Min.Y()
	if !b.Contains(anchor) {
		anchor = b.Center()
	}
	relX := (b.Max.X() - anchor.X()) / width
	relY := (b.Max.Y() - anchor.Y()) / height

	newW := width * factor
	newH := height * factor
	v.Bounds = orb.Bound{
		Min: orb.Point{anchor.X() - newW*(1-relX), anchor.Y() - newH*(1-relY)},
		Max: orb.Point{anchor.X() + newW*relX, anchor.Y() + newH*relY},
	}
}

// Pan shifts the bounds by (dx, dy) in data units
func (v *Viewport) Pan(dx, dy float64) {
	v.Bounds = orb.Bound{
		Min: orb.Point{v.Bounds.Min.X() + dx, v.Bounds.Min.Y() + dy},
		Max: orb.Point{v.Bounds.Max.X() + dx, v.Bounds.Max.Y() + dy},
	}
}

// Clamp restricts p to the current bounds
func (v *Viewport) Clamp(p orb.Point) orb.Point {
	return clampPoint(p, v.Bounds)
}

// Diagonal is the length of the view diagonal in data units
func (v *Viewport) Diagonal() float64 {
	return diagonal(v.Bounds)
}

func clampPoint(p orb.Point, b orb.Bound) orb.Point {
	return orb.Point{
		math.Max(b.Min.X(), math.Min(p.X(), b.Max.X())),
		math.Max(b.Min.Y(), math.Min(p.Y(), b.Max.Y())),
	}
}

func diagonal(b orb.Bound) float64 {
	return math.Hypot(b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y())
}
