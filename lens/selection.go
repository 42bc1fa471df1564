package lens

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Selection tuning
const (
	// ClickRatio is the fraction of the view diagonal below which a press/release
	// pair counts as a click rather than a box
	ClickRatio = 0.01
	// DefaultHitRadius is the hit-test radius as a fraction of the view size
	DefaultHitRadius = 0.015
)

// SelectState is the state of the box-selection machine
type SelectState int

const (
	SelectIdle SelectState = iota
	SelectDragging
)

func (s SelectState) String() string {
	if s == SelectDragging {
		return "dragging-box"
	}
	return "idle"
}

// Selector owns the selected keys and the transient box-drag state
type Selector struct {
	Selected  KeySet
	HitRadius float64

	state  SelectState
	anchor orb.Point
	rect   orb.Bound
}

// NewSelector creates an idle selector with an empty selection
func NewSelector() *Selector {
	return &Selector{Selected: make(KeySet), HitRadius: DefaultHitRadius}
}

// State returns the current machine state
func (s *Selector) State() SelectState { return s.state }

// Rect returns the in-progress rectangle while dragging
func (s *Selector) Rect() (orb.Bound, bool) {
	if s.state != SelectDragging {
		return orb.Bound{}, false
	}
	return s.rect, true
}

// Clear empties the selection and abandons any drag
func (s *Selector) Clear() {
	s.Selected = make(KeySet)
	s.state = SelectIdle
	s.rect = orb.Bound{}
}

// Press starts a box drag when the modifier is held, no pan is running and the
// press lands inside the view. It reports whether a drag started.
func (s *Selector) Press(p orb.Point, modifier, panning bool, view orb.Bound) bool {
	if !modifier || panning || s.state != SelectIdle || !view.Contains(p) {
		return false
	}
	s.state = SelectDragging
	s.anchor = p
	s.rect = orb.Bound{Min: p, Max: p}
	return true
}

// Motion updates the rectangle. Both corners are clamped to the view so a
// pointer that leaves the plot, or a zoom or pan during the drag, keeps the box
// inside the visible bounds.
func (s *Selector) Motion(p orb.Point, view orb.Bound) bool {
	if s.state != SelectDragging {
		return false
	}
	s.rect = clampedBox(s.anchor, p, view)
	return true
}

// ReleaseResult describes what a release committed
type ReleaseResult struct {
	Click   bool
	Hit     *Point
	Added   int
	Changed bool
}

// Release ends a drag. A release within ClickRatio of the view diagonal from the
// anchor toggles the point under the cursor; anything larger adds every visible
// point inside the box.
func (s *Selector) Release(p orb.Point, view orb.Bound, v *View) ReleaseResult {
	if s.state != SelectDragging {
		return ReleaseResult{}
	}
	s.state = SelectIdle

	end := clampPoint(p, view)
	box := clampedBox(s.anchor, p, view)
	s.rect = orb.Bound{}

	var res ReleaseResult
	if dist := planar.Distance(clampPoint(s.anchor, view), end); dist == 0 || dist < diagonal(view)*ClickRatio {
		res.Click = true
		if hit, ok := HitTest(v.Points, end, view, s.HitRadius); ok {
			res.Hit = &hit
			s.Selected.Toggle(hit.Key)
			res.Changed = true
		}
		return res
	}

	for _, pt := range v.Points {
		if box.Contains(pt.Plot) && !s.Selected.Has(pt.Key) {
			s.Selected.Add(pt.Key)
			res.Added++
		}
	}
	res.Changed = res.Added > 0
	return res
}

// clampedBox spans a and b after clamping both to view
func clampedBox(a, b orb.Point, view orb.Bound) orb.Bound {
	a = clampPoint(a, view)
	return orb.Bound{Min: a, Max: a}.Extend(clampPoint(b, view))
}

// Invert replaces the selection with every visible key not currently selected
func (s *Selector) Invert(v *View) {
	next := make(KeySet)
	for _, p := range v.Points {
		if !s.Selected.Has(p.Key) {
			next.Add(p.Key)
		}
	}
	s.Selected = next
}

// HitTest returns the point nearest to at, provided it lies within radius. Distances
// are measured in view-normalized units so both axes weigh equally whatever their
// scales.
func HitTest(points []Point, at orb.Point, view orb.Bound, radius float64) (Point, bool) {
	w := view.Max.X() - view.Min.X()
	h := view.Max.Y() - view.Min.Y()
	if w <= 0 || h <= 0 {
		return Point{}, false
	}
	norm := func(p orb.Point) orb.Point {
		return orb.Point{(p.X() - view.Min.X()) / w, (p.Y() - view.Min.Y()) / h}
	}

	target := norm(at)
	best := -1
	bestDist := math.Inf(1)
	for i, p := range points {
		d := planar.Distance(norm(p.Plot), target)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > radius {
		return Point{}, false
	}
	return points[best], true
}
