package lens

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ViewportConfig holds the viewport and hit-test tuning of a session.
// Zero fields fall back to the package defaults.
type ViewportConfig struct {
	PadRatio   float64 `yaml:"padRatio" json:"padRatio"`
	HalfWidth  float64 `yaml:"halfWidth" json:"halfWidth"`
	HalfHeight float64 `yaml:"halfHeight" json:"halfHeight"`
	HitRadius  float64 `yaml:"hitRadius" json:"hitRadius"`
}

// Session is the interactive state of one analysis: the table, the live filter
// configuration, the hidden sets, the selection, the undo stack and the viewport.
// Every mutation goes through a method that reruns the pipeline before returning.
// A Session is not safe for concurrent use; see StateTracker.
type Session struct {
	table  *Table
	config FilterConfig

	manual  KeySet
	license KeySet

	scope Scope
	focus string

	selector *Selector
	undo     UndoStack
	viewport *Viewport
	view     *View

	// plain (no modifier) press, used for aggregate drill-down
	pressAt *orb.Point
}

// NewSession starts a session over t with cfg as the initial configuration.
// t may be nil until a dataset is loaded.
func NewSession(t *Table, cfg FilterConfig, vc ViewportConfig) *Session {
	s := &Session{
		table:    t,
		config:   cfg,
		manual:   make(KeySet),
		selector: NewSelector(),
		viewport: NewViewport(),
	}
	if vc.PadRatio > 0 {
		s.viewport.PadRatio = vc.PadRatio
	}
	if vc.HalfWidth > 0 {
		s.viewport.HalfWidth = vc.HalfWidth
	}
	if vc.HalfHeight > 0 {
		s.viewport.HalfHeight = vc.HalfHeight
	}
	if vc.HitRadius > 0 {
		s.selector.HitRadius = vc.HitRadius
	}
	s.license = LicenseRemoved(t, cfg)
	s.Refresh()
	s.FitToData()
	return s
}

// Refresh reruns the pipeline against the current state
func (s *Session) Refresh() *View {
	s.view = ComputeVisible(Input{
		Table:          s.table,
		Config:         s.config,
		ManualRemoved:  s.manual,
		LicenseRemoved: s.license,
		Scope:          s.scope,
		Focus:          s.focus,
	})
	return s.view
}

// FitToData resizes the viewport around the visible points and the center
func (s *Session) FitToData() orb.Bound {
	return s.viewport.Fit(s.view, s.view.BeforePoints()...)
}

// View returns the result of the last pipeline pass
func (s *Session) View() *View { return s.view }

// Table returns the loaded dataset, nil when none is loaded
func (s *Session) Table() *Table { return s.table }

// Config returns a copy of the live configuration
func (s *Session) Config() FilterConfig { return s.config }

// Scope returns the current sector scope
func (s *Session) Scope() Scope { return s.scope }

// Focus returns the hold-to-focus prefix
func (s *Session) Focus() string { return s.focus }

// Bounds returns the current axis bounds
func (s *Session) Bounds() orb.Bound { return s.viewport.Bounds }

// Selection returns the selected keys in a stable order
func (s *Session) Selection() []PointKey { return s.selector.Selected.Sorted() }

// Selected reports whether k is selected
func (s *Session) Selected(k PointKey) bool { return s.selector.Selected.Has(k) }

// SelectionRect returns the in-progress box while dragging
func (s *Session) SelectionRect() (orb.Bound, bool) { return s.selector.Rect() }

// SelectState returns the box-selection machine state
func (s *Session) SelectState() SelectState { return s.selector.State() }

// ManualRemoved returns a copy of the manually removed keys
func (s *Session) ManualRemoved() KeySet { return s.manual.Clone() }

// LicenseRemovedKeys returns a copy of the license exclusion set
func (s *Session) LicenseRemovedKeys() KeySet { return s.license.Clone() }

// UndoKinds lists the undo stack entry kinds, oldest first
func (s *Session) UndoKinds() []string { return s.undo.Kinds() }

// UndoDepth returns the number of undo entries
func (s *Session) UndoDepth() int { return s.undo.Len() }

// SetTable swaps in a reloaded dataset. Manual removals and the undo stack are
// kept; the license set is recomputed and the selection cleared.
func (s *Session) SetTable(t *Table) {
	s.table = t
	s.license = LicenseRemoved(t, s.config)
	s.selector.Clear()
	s.Refresh()
	s.FitToData()
}

// SetScope changes the sector scope and clears the selection
func (s *Session) SetScope(sc Scope) {
	s.scope = sc
	s.selector.Clear()
	s.Refresh()
	s.FitToData()
}

// SetFocus sets the hold-to-focus prefix; an empty prefix shows everyone again
func (s *Session) SetFocus(prefix string) {
	s.focus = prefix
	s.Refresh()
}

// ApplySettings validates and installs a complete configuration, as the settings
// dialog does on save. The previous configuration is pushed as a LIMIT entry. The
// fixed line and fixed center are taken from the live view, not from next.
func (s *Session) ApplySettings(next FilterConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}
	prev := s.config

	if next.Limit == LimitNone {
		next.MRRMin, next.MRRMax = nil, nil
		next.GrowthMin, next.GrowthMax = nil, nil
	}

	switch {
	case !next.FixRegression:
		next.FixedLine = nil
	case s.view != nil && s.view.Line != nil:
		l := *s.view.Line
		next.FixedLine = &l
	default:
		next.FixedLine = prev.FixedLine
	}
	if !next.ShowRegression {
		next.RegressionFilter = RegressionNone
	}

	if next.FixedAxis {
		c := s.view.CenterData
		next.FixedCenter = &c
	} else {
		next.FixedCenter = nil
	}

	s.undo.Push(LimitEntry{Snapshot: prev})
	s.config = next
	s.license = LicenseRemoved(s.table, s.config)
	s.Refresh()
	s.FitToData()
	return nil
}

// SetChurnMode changes the churn handling
func (s *Session) SetChurnMode(m ChurnMode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid churn mode %q", m)
	}
	s.config.Churn = m
	s.Refresh()
	s.FitToData()
	return nil
}

// SetCohort switches the cohort window. Keys of existing removals and selections
// belong to the previous cohort's identity space and are not translated.
func (s *Session) SetCohort(m CohortMode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid cohort mode %q", m)
	}
	s.config.Cohort = m
	s.license = LicenseRemoved(s.table, s.config)
	s.Refresh()
	s.FitToData()
	return nil
}

// SetRegressionFilter keeps one side of the trend line
func (s *Session) SetRegressionFilter(f RegressionFilter) error {
	if !f.Valid() {
		return fmt.Errorf("invalid regression filter %q", f)
	}
	s.config.RegressionFilter = f
	s.Refresh()
	return nil
}

// SetLicense applies the license controls. threshold is the text of the entry box,
// parsed locale-aware; text that does not parse counts as 0. Switching to Exc.
// also stops plotting churned customers.
func (s *Session) SetLicense(mode LicenseMode, threshold string, reverse bool) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid license mode %q", mode)
	}
	s.config.License = mode
	s.config.LicenseThreshold = ParseNumber(threshold)
	s.config.ReverseLicense = reverse
	if mode == LicenseExc {
		s.config.Churn = ChurnExclude
	}
	s.license = LicenseRemoved(s.table, s.config)
	s.Refresh()
	s.FitToData()
	return nil
}

// SetSwapAxes swaps the displayed axes. Keys are unaffected.
func (s *Session) SetSwapAxes(on bool) {
	s.config.SwapAxes = on
	s.Refresh()
	s.FitToData()
}

// PointerResult is the outcome of a pointer release
type PointerResult struct {
	ReleaseResult
	// DrillDown names the sector a plain click on a sector mean opened
	DrillDown string `json:"drillDown,omitempty"`
}

// Press handles a pointer press in data coordinates. With the modifier held it
// starts a box selection; without it the press is remembered so a matching
// release can drill into a sector.
func (s *Session) Press(p orb.Point, modifier, panning bool) bool {
	s.pressAt = nil
	if s.selector.Press(p, modifier, panning, s.viewport.Bounds) {
		return true
	}
	if !modifier && !panning {
		s.pressAt = &p
	}
	return false
}

// Motion updates the selection box
func (s *Session) Motion(p orb.Point) bool {
	return s.selector.Motion(p, s.viewport.Bounds)
}

// Release ends a pointer gesture
func (s *Session) Release(p orb.Point) PointerResult {
	if s.selector.State() == SelectDragging {
		return PointerResult{ReleaseResult: s.selector.Release(p, s.viewport.Bounds, s.view)}
	}

	var res PointerResult
	press := s.pressAt
	s.pressAt = nil
	if press == nil || s.scope.Kind != ScopeAggregate {
		return res
	}
	if dist := planar.Distance(*press, p); dist != 0 && dist >= s.viewport.Diagonal()*ClickRatio {
		return res
	}
	hit, ok := HitTest(s.view.Points, p, s.viewport.Bounds, s.selector.HitRadius)
	if !ok || !hit.Key.IsAggregate() {
		return res
	}
	res.Click = true
	res.Hit = &hit
	res.DrillDown = hit.Sector
	s.SetScope(Scope{Kind: ScopeSector, Sector: hit.Sector})
	res.Changed = true
	return res
}

// RightClick removes the point under p at once. On a sector mean every remaining
// row of that sector is removed as one SECTOR entry; on a customer a POINT entry
// is pushed. The entry is nil when nothing changed.
func (s *Session) RightClick(p orb.Point) UndoEntry {
	hit, ok := HitTest(s.view.Points, p, s.viewport.Bounds, s.selector.HitRadius)
	if !ok {
		return nil
	}

	var entry UndoEntry
	if hit.Key.IsAggregate() {
		keys := s.sectorKeys(hit.Sector)
		if len(keys) == 0 {
			return nil
		}
		for _, k := range keys {
			s.manual.Add(k)
		}
		entry = SectorEntry{Keys: keys}
	} else {
		if s.manual.Has(hit.Key) {
			return nil
		}
		s.manual.Add(hit.Key)
		entry = PointEntry{Key: hit.Key}
	}
	s.undo.Push(entry)
	s.Refresh()
	return entry
}

// DeleteSelected moves the selection into the manual removals. In aggregate
// scope each selected sector expands to its individual rows and one SECTOR entry
// is pushed; otherwise one BATCH entry. The selection is cleared either way.
func (s *Session) DeleteSelected() UndoEntry {
	selected := s.selector.Selected.Sorted()
	s.selector.Clear()
	if len(selected) == 0 {
		return nil
	}

	var keys []PointKey
	if s.scope.Kind == ScopeAggregate {
		seen := make(KeySet)
		for _, k := range selected {
			if !k.IsAggregate() {
				continue
			}
			for _, rk := range s.sectorKeys(k.Sector) {
				if !seen.Has(rk) {
					seen.Add(rk)
					keys = append(keys, rk)
				}
			}
		}
	} else {
		for _, k := range selected {
			if !k.IsAggregate() && !s.manual.Has(k) {
				keys = append(keys, k)
			}
		}
	}

	var entry UndoEntry
	if len(keys) > 0 {
		for _, k := range keys {
			s.manual.Add(k)
		}
		if s.scope.Kind == ScopeAggregate {
			entry = SectorEntry{Keys: keys}
		} else {
			entry = BatchEntry{Keys: keys}
		}
		s.undo.Push(entry)
	}
	s.Refresh()
	return entry
}

// InvertSelection selects every visible point that is not selected and
// deselects the rest
func (s *Session) InvertSelection() {
	s.selector.Invert(s.view)
}

// ClearSelection empties the selection
func (s *Session) ClearSelection() {
	s.selector.Clear()
}

// Undo reverts the newest entry, clears the selection and refits. It returns
// the reverted entry, or nil when the stack is empty.
func (s *Session) Undo() UndoEntry {
	e, ok := s.undo.Pop()
	if !ok {
		return nil
	}
	switch entry := e.(type) {
	case PointEntry:
		revertRemoval(s.manual, entry.Key)
	case BatchEntry:
		revertRemoval(s.manual, entry.Keys...)
	case SectorEntry:
		revertRemoval(s.manual, entry.Keys...)
	case LimitEntry:
		s.config = entry.Snapshot
		s.license = LicenseRemoved(s.table, s.config)
	}
	s.selector.Clear()
	s.Refresh()
	s.FitToData()
	return e
}

// Zoom scales the view about anchor; positive steps zoom in
func (s *Session) Zoom(anchor orb.Point, steps int) orb.Bound {
	s.viewport.Zoom(anchor, steps)
	return s.viewport.Bounds
}

// Pan shifts the view by (dx, dy) in displayed data units
func (s *Session) Pan(dx, dy float64) orb.Bound {
	s.viewport.Pan(dx, dy)
	return s.viewport.Bounds
}

// sectorKeys returns the keys of every row of a sector not yet removed by hand
func (s *Session) sectorKeys(sector string) []PointKey {
	if s.table == nil {
		return nil
	}
	var out []PointKey
	for _, rec := range s.table.Records {
		if rec.Sector() != sector {
			continue
		}
		k := Resolve(s.table, rec, s.config.Cohort)
		if !s.manual.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
