package lens

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Line is a fitted trend line y = M*x + B in displayed axis orientation
type Line struct {
	M        float64 `yaml:"m" json:"m"`
	B        float64 `yaml:"b" json:"b"`
	RSquared float64 `yaml:"rSquared,omitempty" json:"rSquared,omitempty"`
}

// At evaluates the line at x
func (l Line) At(x float64) float64 {
	return l.M*x + l.B
}

// Above reports whether p lies on or above the line
func (l Line) Above(p orb.Point) bool {
	return p.Y() >= l.At(p.X())
}

// Below reports whether p lies on or below the line
func (l Line) Below(p orb.Point) bool {
	return p.Y() <= l.At(p.X())
}

func (l Line) String() string {
	return fmt.Sprintf("y = %.4g*x + %.4g", l.M, l.B)
}

// extendFactor is how many visible spans the drawn line reaches past each edge
const extendFactor = 1000.0

// Extend returns the segment of the line drawn for the given view. It spans far
// beyond the view so that zooming or panning never exposes a clipped end.
func (l Line) Extend(view orb.Bound) orb.LineString {
	span := view.Max.X() - view.Min.X()
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		span = 1
	}
	x0 := view.Min.X() - extendFactor*span
	x1 := view.Max.X() + extendFactor*span
	return orb.LineString{{x0, l.At(x0)}, {x1, l.At(x1)}}
}

// Fit performs an ordinary least-squares fit of Y on X over the given points,
// which must already be in displayed orientation. Pairs with a NaN or infinite
// coordinate are dropped. Fewer than two usable points, or no spread in X, yields nil.
func Fit(points []orb.Point) *Line {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if !finite(p.X()) || !finite(p.Y()) {
			continue
		}
		xs = append(xs, p.X())
		ys = append(ys, p.Y())
	}

	n := len(xs)
	if n < 2 {
		return nil
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	// Centered sums keep precision when MRR values are large
	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	if sxx == 0 {
		return nil
	}

	m := sxy / sxx
	b := meanY - m*meanX
	return &Line{M: m, B: b, RSquared: rSquared(xs, ys, m, b, meanY)}
}

// rSquared returns the coefficient of determination of the fit
func rSquared(xs, ys []float64, m, b, meanY float64) float64 {
	var ssRes, ssTot float64
	for i := range xs {
		r := ys[i] - (m*xs[i] + b)
		ssRes += r * r
		d := ys[i] - meanY
		ssTot += d * d
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
