package lens

import (
	"image/color"
	"math"

	"github.com/paulmach/orb"
)

// sectorPalette holds the twenty categorical sector colors
var sectorPalette = []color.NRGBA{
	{31, 119, 180, 255}, {174, 199, 232, 255},
	{255, 127, 14, 255}, {255, 187, 120, 255},
	{44, 160, 44, 255}, {152, 223, 138, 255},
	{214, 39, 40, 255}, {255, 152, 150, 255},
	{148, 103, 189, 255}, {197, 176, 213, 255},
	{140, 86, 75, 255}, {196, 156, 148, 255},
	{227, 119, 194, 255}, {247, 182, 210, 255},
	{127, 127, 127, 255}, {199, 199, 199, 255},
	{188, 189, 34, 255}, {219, 219, 141, 255},
	{23, 190, 207, 255}, {158, 218, 229, 255},
}

// Marker colors
var (
	ChurnColor      = color.NRGBA{200, 0, 0, 255}
	AggregateColor  = color.NRGBA{204, 26, 26, 255}
	SectorMeanColor = color.NRGBA{0, 0, 128, 255}
	SelectionColor  = color.NRGBA{0, 255, 0, 255}
	TrendColor      = color.NRGBA{0, 0, 0, 200}
	unknownRisk     = color.NRGBA{204, 204, 204, 255}
)

// riskColors maps each risk category to its marker color
var riskColors = map[RiskCategory]color.NRGBA{
	RiskNone:   {158, 166, 176, 255},
	RiskLow:    {50, 205, 50, 255},
	RiskMedium: {255, 215, 0, 255},
	RiskHigh:   {220, 20, 60, 255},
	RiskBooked: {128, 0, 128, 255},
}

// RiskColor returns the marker color of a risk category
func RiskColor(c RiskCategory) color.NRGBA {
	if col, ok := riskColors[c]; ok {
		return col
	}
	return unknownRisk
}

// SectorColors assigns palette colors to sectors in table order
func SectorColors(t *Table) map[string]color.NRGBA {
	out := make(map[string]color.NRGBA)
	for i, s := range t.Sectors() {
		out[s] = sectorPalette[i%len(sectorPalette)]
	}
	return out
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 255),
		G: uint8(uint32(c.G) * a / 255),
		B: uint8(uint32(c.B) * a / 255),
		A: c.A,
	}
}

// RiskQuadrant is one shaded quarter of the plot around the center
type RiskQuadrant struct {
	Name   string // Q1 (+,+), Q2 (-,+), Q3 (-,-), Q4 (+,-)
	Bounds orb.Bound
	Color  color.NRGBA
}

// RiskQuadrantAlpha is the opacity of the quadrant shading
const RiskQuadrantAlpha = 0.18

// RiskQuadrants splits the view into four quadrants around the center and gives
// each the average risk color of the points inside it. When weighted, a point
// counts by (rx*ry)^power, where rx and ry are its normalized distances from the
// center toward the quadrant edges. Quadrants without weight are omitted. Only
// sector scope over a table with a risk column is shaded.
func RiskQuadrants(v *View, cfg FilterConfig, view orb.Bound) []RiskQuadrant {
	if !cfg.RiskColormap || v.Scope.Kind != ScopeSector || !v.HasRisk || len(v.Points) == 0 {
		return nil
	}
	cx, cy := v.Center.X(), v.Center.Y()
	x0, y0 := view.Min.X(), view.Min.Y()
	x1, y1 := view.Max.X(), view.Max.Y()

	norm := func(d, span float64) float64 {
		return math.Max(0, math.Min(1, d/math.Max(span, 1e-9)))
	}

	type acc struct{ r, g, b, w float64 }
	var sums [4]acc
	for _, p := range v.Points {
		px, py := p.Plot.X(), p.Plot.Y()
		var q int
		var rx, ry float64
		switch {
		case px >= cx && py >= cy:
			q, rx, ry = 0, norm(px-cx, x1-cx), norm(py-cy, y1-cy)
		case px < cx && py >= cy:
			q, rx, ry = 1, norm(cx-px, cx-x0), norm(py-cy, y1-cy)
		case px < cx && py < cy:
			q, rx, ry = 2, norm(cx-px, cx-x0), norm(cy-py, cy-y0)
		default:
			q, rx, ry = 3, norm(px-cx, x1-cx), norm(cy-py, cy-y0)
		}
		w := 1.0
		if cfg.RiskColormapWeighted {
			w = math.Pow(rx*ry, cfg.RiskColormapWeightPower)
		}
		c := RiskColor(p.Risk)
		sums[q].r += float64(c.R) * w
		sums[q].g += float64(c.G) * w
		sums[q].b += float64(c.B) * w
		sums[q].w += w
	}

	bounds := [4]orb.Bound{
		{Min: orb.Point{cx, cy}, Max: orb.Point{x1, y1}},
		{Min: orb.Point{x0, cy}, Max: orb.Point{cx, y1}},
		{Min: orb.Point{x0, y0}, Max: orb.Point{cx, cy}},
		{Min: orb.Point{cx, y0}, Max: orb.Point{x1, cy}},
	}
	var out []RiskQuadrant
	for i, s := range sums {
		if s.w <= 0 {
			continue
		}
		out = append(out, RiskQuadrant{
			Name:   [4]string{"Q1", "Q2", "Q3", "Q4"}[i],
			Bounds: bounds[i],
			Color: color.NRGBA{
				R: uint8(math.Round(s.r / s.w)),
				G: uint8(math.Round(s.g / s.w)),
				B: uint8(math.Round(s.b / s.w)),
				A: uint8(math.Round(RiskQuadrantAlpha * 255)),
			},
		})
	}
	return out
}
