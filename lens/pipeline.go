package lens

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// Point is one plotted point of a View
type Point struct {
	Key      PointKey
	Row      int // record index, -1 for sector averages
	Sector   string
	Customer string
	MRR      float64   // effective MRR (x before any swap)
	Growth   float64   // effective growth in percent
	Plot     orb.Point // displayed coordinates
	Churned  bool
	Risk     RiskCategory
	Members  int // sector averages only

	// Before is the displayed position prior to the Exc. License MRR swap
	Before *orb.Point
}

// SectorStats summarizes the visible customers of one sector
type SectorStats struct {
	Sector     string  `json:"sector"`
	Count      int     `json:"count"`
	MRR        float64 `json:"mrr"`
	ChurnCount int     `json:"churnCount"`
	ChurnPct   float64 `json:"churnPct"`
}

// Input is everything a pipeline pass reads. Nothing in it is modified.
type Input struct {
	Table          *Table
	Config         FilterConfig
	ManualRemoved  KeySet
	LicenseRemoved KeySet
	Scope          Scope
	Focus          string // hold-to-focus customer prefix; empty disables
}

// View is the result of one pipeline pass
type View struct {
	Scope     Scope
	Aggregate bool
	RiskView  bool
	SwapAxes  bool

	Points []Point
	Line   *Line

	// Hidden is manual ∪ license ∪ limit ∪ focus for this pass
	Hidden KeySet
	// RegressionRemoved holds the keys dropped by the trend-line filter this pass
	RegressionRemoved KeySet

	Center     orb.Point // displayed coordinates
	CenterData XY

	// SectorMean is the displayed mean of the scoped sector before the trend
	// filter; nil outside sector scope
	SectorMean *orb.Point
	HasRisk    bool

	// Sectors and TotalCustomers describe the rows before the trend filter
	Sectors        []SectorStats
	TotalCustomers int
}

// Keys returns the keys of all visible points
func (v *View) Keys() KeySet {
	out := make(KeySet, len(v.Points))
	for _, p := range v.Points {
		out.Add(p.Key)
	}
	return out
}

// BeforePoints returns the pre-swap positions of points moved by the Exc.
// License MRR remap, used as extra reference points when fitting the viewport
func (v *View) BeforePoints() []orb.Point {
	var out []orb.Point
	for _, p := range v.Points {
		if p.Before != nil {
			out = append(out, *p.Before)
		}
	}
	return out
}

// Find returns the visible point with the given key
func (v *View) Find(k PointKey) (Point, bool) {
	for _, p := range v.Points {
		if p.Key == k {
			return p, true
		}
	}
	return Point{}, false
}

// toPlot maps (MRR, growth) to displayed coordinates
func toPlot(mrr, growth float64, swap bool) orb.Point {
	if swap {
		return orb.Point{growth, mrr}
	}
	return orb.Point{mrr, growth}
}

// fromPlot maps displayed coordinates back to (MRR, growth)
func fromPlot(p orb.Point, swap bool) XY {
	if swap {
		return XY{MRR: p.Y(), Growth: p.X()}
	}
	return XY{MRR: p.X(), Growth: p.Y()}
}

// LimitRemoved returns the keys of rows outside the configured MRR/growth bounds.
// It is empty unless limit mode is enabled. Bounds compare against the key's own
// cohort-specific coordinates.
func LimitRemoved(t *Table, cfg FilterConfig) KeySet {
	out := make(KeySet)
	if cfg.Limit != LimitEnabled || t == nil {
		return out
	}
	for _, rec := range t.Records {
		k := Resolve(t, rec, cfg.Cohort)
		if outside(k.X, cfg.MRRMin, cfg.MRRMax) || outside(k.Y, cfg.GrowthMin, cfg.GrowthMax) {
			out.Add(k)
		}
	}
	return out
}

func outside(v float64, lo, hi *float64) bool {
	return (lo != nil && v < *lo) || (hi != nil && v > *hi)
}

// focusHidden returns the keys hidden by the hold-to-focus prefix
func focusHidden(t *Table, cfg FilterConfig, scope Scope, prefix string) KeySet {
	out := make(KeySet)
	term := strings.ToLower(strings.TrimSpace(prefix))
	if term == "" || t == nil {
		return out
	}
	for _, rec := range t.Records {
		label := rec.Customer()
		if scope.Kind == ScopeAggregate {
			label = rec.Sector() + " Avg"
		}
		if !strings.HasPrefix(strings.ToLower(label), term) {
			out.Add(Resolve(t, rec, cfg.Cohort))
		}
	}
	return out
}

// RiskViewActive reports whether the risk filter applies: a concrete sector is in
// scope, risk view is enabled and the table has a risk column
func RiskViewActive(t *Table, cfg FilterConfig, scope Scope) bool {
	return cfg.RiskView && scope.Kind == ScopeSector && t.HasColumn(ColRisk)
}

// ComputeVisible runs the filter pipeline. Stages run in a fixed order; the trend
// line is fitted before the trend filter so it never feeds on its own output.
// Missing columns disable the dependent stage; the pass always yields a View.
func ComputeVisible(in Input) *View {
	t := in.Table
	cfg := in.Config
	view := &View{
		Scope:             in.Scope,
		Aggregate:         in.Scope.Kind == ScopeAggregate,
		RiskView:          RiskViewActive(t, cfg, in.Scope),
		SwapAxes:          cfg.SwapAxes,
		HasRisk:           t.HasColumn(ColRisk),
		RegressionRemoved: make(KeySet),
	}

	// 1. Exclusion
	view.Hidden = Union(in.ManualRemoved, in.LicenseRemoved, LimitRemoved(t, cfg), focusHidden(t, cfg, in.Scope, in.Focus))

	var base []Point
	if t != nil {
		mrrCol, growthCol := cohortColumns(t, cfg.Cohort)
		hasChurn := t.HasColumn(ColChurn)
		hasChurnedMRR := t.HasColumn(ColChurnedMRR)
		excCol := excLicenseColumn(cfg.Cohort)
		useExc := cfg.License == LicenseExc && cfg.UseExcLicenseValues && t.HasColumn(excCol)

		for _, rec := range t.Records {
			key := Resolve(t, rec, cfg.Cohort)
			if view.Hidden.Has(key) {
				continue
			}

			// 2. Churn
			churned := hasChurn && rec.Churned()
			if hasChurn {
				if cfg.Churn == ChurnOnly && !churned {
					continue
				}
				if cfg.Churn == ChurnExclude && churned {
					continue
				}
			}

			// 3. Cohort gating
			if !passesCohortGate(t, rec, cfg.Cohort) {
				continue
			}

			// 4. Remap
			mrr, growth, ok := effectiveValues(t, rec, mrrCol, growthCol)
			if !ok {
				continue
			}
			if churned && hasChurnedMRR {
				if v, ok := rec.Float(ColChurnedMRR); ok {
					mrr = v
				}
			}
			var before *orb.Point
			if useExc {
				if v, ok := rec.Float(excCol); ok {
					b := toPlot(mrr, growth, cfg.SwapAxes)
					before = &b
					mrr = v
				}
			}

			base = append(base, Point{
				Key:      key,
				Row:      rec.Index,
				Sector:   rec.Sector(),
				Customer: rec.Customer(),
				MRR:      mrr,
				Growth:   growth,
				Plot:     toPlot(mrr, growth, cfg.SwapAxes),
				Churned:  churned,
				Risk:     rec.Risk(),
				Before:   before,
			})
		}
	}

	view.CenterData = effectiveCenter(t, cfg, base)
	view.Center = toPlot(view.CenterData.MRR, view.CenterData.Growth, cfg.SwapAxes)

	// 5. Regression computation
	view.Line = regressionLine(cfg, in.Scope, view.RiskView, base)

	// 6. Regression filter
	filtered := base
	if cfg.RegressionFilter != RegressionNone && view.Line != nil {
		filtered = make([]Point, 0, len(base))
		for _, p := range base {
			keep := view.Line.Above(p.Plot)
			if cfg.RegressionFilter == RegressionBelow {
				keep = view.Line.Below(p.Plot)
			}
			if keep {
				filtered = append(filtered, p)
			} else {
				view.RegressionRemoved.Add(p.Key)
			}
		}
	}

	view.Sectors = sectorStats(base)
	view.TotalCustomers = countCustomers(base, cfg, in.Scope, view.RiskView)
	if in.Scope.Kind == ScopeSector {
		view.SectorMean = sectorMean(base, in.Scope.Sector, cfg.SwapAxes)
	}

	// 7. Scope
	switch in.Scope.Kind {
	case ScopeAggregate:
		view.Points = aggregate(filtered, cfg.SwapAxes)
		return view
	case ScopeSector:
		scoped := make([]Point, 0, len(filtered))
		for _, p := range filtered {
			if p.Sector == in.Scope.Sector {
				scoped = append(scoped, p)
			}
		}
		filtered = scoped
	}

	// 8. Risk
	if view.RiskView {
		kept := make([]Point, 0, len(filtered))
		for _, p := range filtered {
			if cfg.Risk.Allows(p.Risk) {
				kept = append(kept, p)
			}
		}
		filtered = kept
	}

	view.Points = filtered
	return view
}

// sectorMean is the displayed mean of one sector's points, nil when it has none
func sectorMean(base []Point, sector string, swap bool) *orb.Point {
	var sum XY
	n := 0
	for _, p := range base {
		if p.Sector == sector {
			sum.MRR += p.MRR
			sum.Growth += p.Growth
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := toPlot(sum.MRR/float64(n), sum.Growth/float64(n), swap)
	return &m
}

// countCustomers counts the customers behind the view before the trend filter:
// the whole base outside sector scope, else the sector's rows the risk filter keeps
func countCustomers(base []Point, cfg FilterConfig, scope Scope, riskView bool) int {
	if scope.Kind != ScopeSector {
		return len(base)
	}
	n := 0
	for _, p := range base {
		if p.Sector == scope.Sector && (!riskView || cfg.Risk.Allows(p.Risk)) {
			n++
		}
	}
	return n
}

// passesCohortGate applies the completion-flag requirement of a cohort mode.
// A missing flag column disables the gate.
func passesCohortGate(t *Table, rec Record, mode CohortMode) bool {
	switch mode {
	case Cohort01:
		if t.HasColumn(ColFirstYearComplete) {
			return rec.flagYes(ColFirstYearComplete)
		}
	case Cohort02, Cohort12:
		if t.HasColumn(ColSecondYearComplete) {
			return rec.flagYes(ColSecondYearComplete)
		}
	}
	return true
}

// effectiveValues reads the cohort MRR and growth of a row. A cohort column the
// table lacks falls back to the lifetime source; an unparseable cell drops the row.
func effectiveValues(t *Table, rec Record, mrrCol, growthCol string) (mrr, growth float64, ok bool) {
	if !t.HasColumn(mrrCol) || !t.HasColumn(growthCol) {
		mrrCol, growthCol = cohortColumns(t, CohortCurrent)
	}
	mrr, okM := rec.Float(mrrCol)
	g, okG := rec.Float(growthCol)
	if !okM || !okG {
		return 0, 0, false
	}
	return mrr, g * 100, true
}

// effectiveCenter picks the fixed center when fixed-axis mode holds one, else the
// mean of the pre-trend-filter points, else the mean of the whole table
func effectiveCenter(t *Table, cfg FilterConfig, base []Point) XY {
	if cfg.FixedAxis && cfg.FixedCenter != nil {
		return *cfg.FixedCenter
	}
	if len(base) > 0 {
		var c XY
		for _, p := range base {
			c.MRR += p.MRR
			c.Growth += p.Growth
		}
		n := float64(len(base))
		return XY{MRR: c.MRR / n, Growth: c.Growth / n}
	}
	if t == nil {
		return XY{}
	}
	mrrCol, growthCol := cohortColumns(t, CohortCurrent)
	var sumM, sumG float64
	var nM, nG int
	for _, rec := range t.Records {
		if v, ok := rec.Float(mrrCol); ok {
			sumM += v
			nM++
		}
		if v, ok := rec.Float(growthCol); ok {
			sumG += v * 100
			nG++
		}
	}
	var c XY
	if nM > 0 {
		c.MRR = sumM / float64(nM)
	}
	if nG > 0 {
		c.Growth = sumG / float64(nG)
	}
	return c
}

// regressionLine returns the frozen line in fixed mode, otherwise a fresh fit over
// the scoped pre-filter points when the line is shown outside aggregate scope
func regressionLine(cfg FilterConfig, scope Scope, riskView bool, base []Point) *Line {
	if cfg.FixRegression && cfg.FixedLine != nil {
		l := *cfg.FixedLine
		return &l
	}
	if !cfg.ShowRegression || scope.Kind == ScopeAggregate {
		return nil
	}
	pts := make([]orb.Point, 0, len(base))
	for _, p := range base {
		if scope.Kind == ScopeSector && p.Sector != scope.Sector {
			continue
		}
		if riskView && !cfg.Risk.Allows(p.Risk) {
			continue
		}
		pts = append(pts, p.Plot)
	}
	return Fit(pts)
}

// aggregate groups points by sector into one mean point per sector
func aggregate(points []Point, swap bool) []Point {
	stats := sectorStats(points)
	sums := make(map[string]*XY, len(stats))
	for _, p := range points {
		s, ok := sums[p.Sector]
		if !ok {
			s = &XY{}
			sums[p.Sector] = s
		}
		s.MRR += p.MRR
		s.Growth += p.Growth
	}

	out := make([]Point, 0, len(stats))
	for _, st := range stats {
		s := sums[st.Sector]
		n := float64(st.Count)
		mrr, growth := s.MRR/n, s.Growth/n
		out = append(out, Point{
			Key:     AggregateKey(st.Sector),
			Row:     -1,
			Sector:  st.Sector,
			MRR:     mrr,
			Growth:  growth,
			Plot:    toPlot(mrr, growth, swap),
			Members: st.Count,
		})
	}
	return out
}

// sectorStats counts customers, MRR and churn per sector, sorted by sector name
func sectorStats(points []Point) []SectorStats {
	bySector := make(map[string]*SectorStats)
	for _, p := range points {
		st, ok := bySector[p.Sector]
		if !ok {
			st = &SectorStats{Sector: p.Sector}
			bySector[p.Sector] = st
		}
		st.Count++
		st.MRR += p.MRR
		if p.Churned {
			st.ChurnCount++
		}
	}

	out := make([]SectorStats, 0, len(bySector))
	for _, st := range bySector {
		if st.Count > 0 {
			st.ChurnPct = 100 * float64(st.ChurnCount) / float64(st.Count)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sector < out[j].Sector })
	return out
}
