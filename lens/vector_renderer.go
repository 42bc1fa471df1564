package lens

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ChartRenderer draws a view as a scatter chart with tdewolff/canvas.
// Sizes are in canvas millimetres.
type ChartRenderer struct {
	View       *View
	Bounds     orb.Bound
	Config     FilterConfig
	Selected   KeySet
	Colors     map[string]color.NRGBA // sector -> marker color
	Rect       *orb.Bound             // in-progress selection box
	Width      float64
	Height     float64
	Margin     float64
	Radius     float64           // marker radius
	Resolution canvas.Resolution // Resolution for PNG output (default: 4 dots/mm)
	Caption    string            // stamped onto PNG output
}

// NewChartRenderer creates a renderer for the session's current view
func NewChartRenderer(s *Session) *ChartRenderer {
	r := &ChartRenderer{
		View:       s.View(),
		Bounds:     s.Bounds(),
		Config:     s.Config(),
		Selected:   s.selector.Selected.Clone(),
		Colors:     SectorColors(s.Table()),
		Width:      240.0,
		Height:     160.0,
		Margin:     12.0,
		Radius:     1.2,
		Resolution: canvas.DPMM(4.0),
	}
	if rect, ok := s.SelectionRect(); ok {
		r.Rect = &rect
	}
	sum := s.Summary()
	r.Caption = fmt.Sprintf("%s | %d visible | %d customers", sum.Scope, sum.Visible, sum.Customers)
	if sum.Line != nil {
		r.Caption += " | " + sum.Line.String()
	}
	return r
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the chart as an SVG to the provided writer
func (r *ChartRenderer) RenderToSVG(w io.Writer) error {
	if err := r.check(); err != nil {
		return err
	}
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer)
	return svgRenderer.Close()
}

// RenderToPNG writes the chart as a PNG with the caption and sector legend drawn
// on top in a bitmap font
func (r *ChartRenderer) RenderToPNG(w io.Writer) error {
	if err := r.check(); err != nil {
		return err
	}
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast)

	img := image.NewRGBA(rast.Bounds())
	draw.Draw(img, img.Bounds(), rast, rast.Bounds().Min, draw.Src)
	r.drawLegend(img)
	return png.Encode(w, img)
}

func (r *ChartRenderer) check() error {
	if r.View == nil {
		return fmt.Errorf("no view to render")
	}
	if r.Bounds.Max.X() <= r.Bounds.Min.X() || r.Bounds.Max.Y() <= r.Bounds.Min.Y() {
		return fmt.Errorf("degenerate chart bounds %v", r.Bounds)
	}
	return nil
}

// toCanvas maps displayed data coordinates into the plot area
func (r *ChartRenderer) toCanvas(p orb.Point) (float64, float64) {
	b := r.Bounds
	plotW := r.Width - 2*r.Margin
	plotH := r.Height - 2*r.Margin
	x := r.Margin + (p.X()-b.Min.X())/(b.Max.X()-b.Min.X())*plotW
	y := r.Margin + (p.Y()-b.Min.Y())/(b.Max.Y()-b.Min.Y())*plotH
	return x, y
}

func (r *ChartRenderer) rectPath(b orb.Bound) *canvas.Path {
	x0, y0 := r.toCanvas(b.Min)
	x1, y1 := r.toCanvas(b.Max)
	return canvas.Rectangle(x1-x0, y1-y0).Translate(x0, y0)
}

func (r *ChartRenderer) linePath(ls orb.LineString) *canvas.Path {
	p := &canvas.Path{}
	for i, pt := range ls {
		x, y := r.toCanvas(pt)
		if i == 0 {
			p.MoveTo(x, y)
		} else {
			p.LineTo(x, y)
		}
	}
	return p
}

func (r *ChartRenderer) renderToCanvas(renderer canvasRenderer) {
	v := r.View

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	// Risk quadrants
	for _, q := range RiskQuadrants(v, r.Config, r.Bounds) {
		qStyle := canvas.DefaultStyle
		qStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(q.Color)}
		qStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		renderer.RenderPath(r.rectPath(q.Bounds), qStyle, canvas.Identity)
	}

	// Grid
	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: color.RGBA{211, 211, 211, 255}}
	gridStyle.StrokeWidth = 0.15
	gridStyle.Dashes = []float64{1.0, 1.0}
	b := r.Bounds
	for _, x := range Ticks(b.Min.X(), b.Max.X(), 8) {
		renderer.RenderPath(r.linePath(orb.LineString{{x, b.Min.Y()}, {x, b.Max.Y()}}), gridStyle, canvas.Identity)
	}
	for _, y := range Ticks(b.Min.Y(), b.Max.Y(), 6) {
		renderer.RenderPath(r.linePath(orb.LineString{{b.Min.X(), y}, {b.Max.X(), y}}), gridStyle, canvas.Identity)
	}

	// Center cross
	axisStyle := canvas.DefaultStyle
	axisStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	axisStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	axisStyle.StrokeWidth = 0.3
	if b.Contains(v.Center) {
		renderer.RenderPath(r.linePath(orb.LineString{{v.Center.X(), b.Min.Y()}, {v.Center.X(), b.Max.Y()}}), axisStyle, canvas.Identity)
		renderer.RenderPath(r.linePath(orb.LineString{{b.Min.X(), v.Center.Y()}, {b.Max.X(), v.Center.Y()}}), axisStyle, canvas.Identity)
	}

	// Trend line, drawn long and clipped to the plot
	if v.Line != nil {
		lineStyle := canvas.DefaultStyle
		lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		lineStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(TrendColor)}
		lineStyle.StrokeWidth = 0.4
		for _, seg := range clip.LineString(b, v.Line.Extend(b)) {
			renderer.RenderPath(r.linePath(seg), lineStyle, canvas.Identity)
		}
	}

	// Before/after arrows of the license remap
	fadedStyle := canvas.DefaultStyle
	fadedStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	arrowStyle := canvas.DefaultStyle
	arrowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	arrowStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	arrowStyle.StrokeWidth = 0.2
	for _, p := range v.Points {
		if p.Before == nil || !b.Contains(*p.Before) {
			continue
		}
		c := r.markerColor(p)
		c.A = 90
		fadedStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(c)}
		x, y := r.toCanvas(*p.Before)
		renderer.RenderPath(canvas.Circle(r.Radius).Translate(x, y), fadedStyle, canvas.Identity)
		renderer.RenderPath(r.linePath(orb.LineString{*p.Before, p.Plot}), arrowStyle, canvas.Identity)
	}

	// Points
	churnStyle := canvas.DefaultStyle
	churnStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	churnStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(ChurnColor)}
	churnStyle.StrokeWidth = 0.5

	selStyle := canvas.DefaultStyle
	selStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	selStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(SelectionColor)}
	selStyle.StrokeWidth = 0.5

	for _, p := range v.Points {
		if !b.Contains(p.Plot) {
			continue
		}
		x, y := r.toCanvas(p.Plot)
		radius := r.Radius
		if p.Key.IsAggregate() {
			radius = 2.2 * r.Radius
		}

		if p.Churned {
			cross := &canvas.Path{}
			cross.MoveTo(x-radius, y-radius)
			cross.LineTo(x+radius, y+radius)
			cross.MoveTo(x-radius, y+radius)
			cross.LineTo(x+radius, y-radius)
			renderer.RenderPath(cross, churnStyle, canvas.Identity)
		} else {
			ptStyle := canvas.DefaultStyle
			ptStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.markerColor(p))}
			ptStyle.Stroke = canvas.Paint{Color: canvas.Black}
			ptStyle.StrokeWidth = 0.15
			renderer.RenderPath(canvas.Circle(radius).Translate(x, y), ptStyle, canvas.Identity)
		}

		if r.Selected.Has(p.Key) {
			renderer.RenderPath(canvas.Circle(radius*1.8).Translate(x, y), selStyle, canvas.Identity)
		}
	}

	// Sector mean
	if v.SectorMean != nil && b.Contains(*v.SectorMean) {
		meanStyle := canvas.DefaultStyle
		meanStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(SectorMeanColor)}
		meanStyle.Stroke = canvas.Paint{Color: canvas.Black}
		meanStyle.StrokeWidth = 0.2
		x, y := r.toCanvas(*v.SectorMean)
		renderer.RenderPath(canvas.Circle(2.4*r.Radius).Translate(x, y), meanStyle, canvas.Identity)
	}

	// Selection box
	if r.Rect != nil {
		boxStyle := canvas.DefaultStyle
		boxStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{0, 255, 0, 40})}
		boxStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(SelectionColor)}
		boxStyle.StrokeWidth = 0.3
		boxStyle.Dashes = []float64{1.5, 1.0}
		renderer.RenderPath(r.rectPath(*r.Rect), boxStyle, canvas.Identity)
	}

	// Frame
	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Black}
	frameStyle.StrokeWidth = 0.3
	renderer.RenderPath(r.rectPath(b), frameStyle, canvas.Identity)
}

// markerColor picks the fill of a point: aggregate red, risk color in risk view,
// otherwise the sector color
func (r *ChartRenderer) markerColor(p Point) color.NRGBA {
	switch {
	case p.Key.IsAggregate():
		if c, ok := r.Colors[p.Sector]; ok {
			return c
		}
		return AggregateColor
	case r.View.RiskView:
		return RiskColor(p.Risk)
	}
	if c, ok := r.Colors[p.Sector]; ok {
		return c
	}
	return color.NRGBA{128, 128, 128, 255}
}

// drawLegend stamps the caption and one swatch per visible sector
func (r *ChartRenderer) drawLegend(img *image.RGBA) {
	black := color.RGBA{0, 0, 0, 255}
	drawText(img, 10, 16, r.Caption, black)

	seen := make(map[string]bool)
	var sectors []string
	for _, p := range r.View.Points {
		if !seen[p.Sector] {
			seen[p.Sector] = true
			sectors = append(sectors, p.Sector)
		}
	}
	sort.Strings(sectors)

	y := 34
	for _, s := range sectors {
		c, ok := r.Colors[s]
		if !ok {
			continue
		}
		swatch := image.Rect(10, y-9, 20, y+1)
		draw.Draw(img, swatch, image.NewUniform(nrgbaToRGBA(c)), image.Point{}, draw.Src)
		drawText(img, 26, y, s, black)
		y += 16
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// Ticks returns round tick positions covering [lo, hi], about n of them
func Ticks(lo, hi float64, n int) []float64 {
	if !(hi > lo) || n < 1 || math.IsInf(hi-lo, 0) {
		return nil
	}
	step := niceStep((hi - lo) / float64(n))
	var out []float64
	for x := math.Ceil(lo/step) * step; x <= hi+step*1e-9; x += step {
		out = append(out, x)
	}
	return out
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten
func niceStep(raw float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / exp; {
	case f <= 1:
		return exp
	case f <= 2:
		return 2 * exp
	case f <= 5:
		return 5 * exp
	}
	return 10 * exp
}
