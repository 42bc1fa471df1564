package lens

import (
	"fmt"
	"image/color"
	"io"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ExportFormats lists the formats ExportPlot accepts
var ExportFormats = []string{"png", "svg", "pdf", "eps"}

// ExportOptions sizes a print export
type ExportOptions struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// DefaultExportOptions is an A5 landscape page
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Width: 21 * vg.Centimeter, Height: 14.8 * vg.Centimeter}
}

// NormalizeFormat lower-cases a format name or file extension and reports
// whether ExportPlot supports it
func NormalizeFormat(format string) (string, bool) {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	for _, known := range ExportFormats {
		if f == known {
			return f, true
		}
	}
	return f, false
}

// ExportPlot renders the view with gonum/plot in a print format: one scatter
// series per sector, churned customers as crosses, the sector mean, and the
// trend line clipped to the bounds
func ExportPlot(w io.Writer, v *View, bounds orb.Bound, colors map[string]color.NRGBA, format string, opts ExportOptions) error {
	format, ok := NormalizeFormat(format)
	if !ok {
		return fmt.Errorf("unsupported export format %q", format)
	}
	if bounds.Max.X() <= bounds.Min.X() || bounds.Max.Y() <= bounds.Min.Y() {
		return fmt.Errorf("degenerate export bounds %v", bounds)
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text, p.Y.Label.Text = AxisLabels(v.SwapAxes)
	p.Add(plotter.NewGrid())

	bySector := make(map[string]plotter.XYs)
	var churned plotter.XYs
	for _, pt := range v.Points {
		if !bounds.Contains(pt.Plot) {
			continue
		}
		xy := plotter.XY{X: pt.Plot.X(), Y: pt.Plot.Y()}
		if pt.Churned {
			churned = append(churned, xy)
			continue
		}
		bySector[pt.Sector] = append(bySector[pt.Sector], xy)
	}

	sectors := make([]string, 0, len(bySector))
	for s := range bySector {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	for _, s := range sectors {
		sc, err := plotter.NewScatter(bySector[s])
		if err != nil {
			return fmt.Errorf("sector %s: %w", s, err)
		}
		c, ok := colors[s]
		if !ok {
			c = AggregateColor
		}
		sc.GlyphStyle.Color = c
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2.5)
		if v.Aggregate {
			sc.GlyphStyle.Radius = vg.Points(5)
		}
		p.Add(sc)
		label := s
		if v.Aggregate {
			label += " Avg"
		}
		p.Legend.Add(label, sc)
	}

	if len(churned) > 0 {
		sc, err := plotter.NewScatter(churned)
		if err != nil {
			return fmt.Errorf("churned points: %w", err)
		}
		sc.GlyphStyle.Color = ChurnColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("Churn", sc)
	}

	if v.SectorMean != nil && bounds.Contains(*v.SectorMean) {
		sc, err := plotter.NewScatter(plotter.XYs{{X: v.SectorMean.X(), Y: v.SectorMean.Y()}})
		if err != nil {
			return fmt.Errorf("sector mean: %w", err)
		}
		sc.GlyphStyle.Color = SectorMeanColor
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(6)
		p.Add(sc)
		p.Legend.Add(v.Scope.Sector+" Avg", sc)
	}

	if v.Line != nil {
		for _, seg := range clip.LineString(bounds, v.Line.Extend(bounds)) {
			xys := make(plotter.XYs, len(seg))
			for i, pt := range seg {
				xys[i] = plotter.XY{X: pt.X(), Y: pt.Y()}
			}
			l, err := plotter.NewLine(xys)
			if err != nil {
				return fmt.Errorf("trend line: %w", err)
			}
			l.LineStyle.Color = TrendColor
			l.LineStyle.Width = vg.Points(1)
			l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(l)
			p.Legend.Add("Trend "+v.Line.String(), l)
		}
	}

	// Pin the axes after Add, which widens them to the data
	p.X.Min, p.X.Max = bounds.Min.X(), bounds.Max.X()
	p.Y.Min, p.Y.Max = bounds.Min.Y(), bounds.Max.Y()

	wt, err := p.WriterTo(opts.Width, opts.Height, format)
	if err != nil {
		return fmt.Errorf("preparing %s export: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing %s export: %w", format, err)
	}
	return nil
}

// AxisLabels returns the x and y axis titles for the orientation
func AxisLabels(swap bool) (x, y string) {
	if swap {
		return "MRR Growth (%)", "MRR"
	}
	return "MRR", "MRR Growth (%)"
}
