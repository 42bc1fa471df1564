package lens

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChartRenderer(t *testing.T) {
	s := newFixtureSession(t, basicCSV)
	s.Press(orb.Point{90, 8}, true, false)
	s.Motion(orb.Point{150, 15})

	r := NewChartRenderer(s)
	assert.Equal(t, s.Bounds(), r.Bounds)
	require.NotNil(t, r.Rect)
	assert.Equal(t, bound(90, 8, 150, 15), *r.Rect)
	assert.Equal(t, "All | 4 visible | 4 customers", r.Caption)
	assert.Len(t, r.Colors, 2)

	s.Release(orb.Point{150, 15})
	r = NewChartRenderer(s)
	assert.Nil(t, r.Rect)
	assert.Equal(t, 1, r.Selected.Len())
}

func TestChartRenderer_RenderToSVG(t *testing.T) {
	s := newFixtureSession(t, richCSV)
	cfg := s.Config()
	cfg.ShowRegression = true
	cfg.RiskView = true
	cfg.RiskColormap = true
	cfg.License = LicenseExc
	cfg.LicenseThreshold = 100
	cfg.UseExcLicenseValues = true
	require.NoError(t, s.ApplySettings(cfg))
	s.SetScope(Scope{Kind: ScopeSector, Sector: "Tech"})

	var buf bytes.Buffer
	require.NoError(t, NewChartRenderer(s).RenderToSVG(&buf))
	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "output should be SVG")
	assert.Contains(t, out, "</svg>")
	assert.Contains(t, out, "<path")
}

func TestChartRenderer_RenderToPNG(t *testing.T) {
	s := newFixtureSession(t, basicCSV)
	s.SetScope(Scope{Kind: ScopeAggregate})

	var buf bytes.Buffer
	require.NoError(t, NewChartRenderer(s).RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 960, img.Bounds().Dx())
	assert.Equal(t, 640, img.Bounds().Dy())

	// The canvas background is white
	r, g, b, _ := img.At(img.Bounds().Max.X-2, img.Bounds().Max.Y-2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestChartRenderer_Errors(t *testing.T) {
	r := &ChartRenderer{}
	assert.Error(t, r.RenderToSVG(&bytes.Buffer{}), "no view")

	r.View = &View{}
	r.Bounds = bound(0, 0, 0, 10)
	assert.Error(t, r.RenderToPNG(&bytes.Buffer{}), "degenerate bounds")
}

func TestChartRenderer_ToCanvas(t *testing.T) {
	r := &ChartRenderer{Bounds: bound(0, 0, 100, 10), Width: 120, Height: 70, Margin: 10}
	x, y := r.toCanvas(orb.Point{0, 0})
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, 10, y, 1e-9)
	x, y = r.toCanvas(orb.Point{100, 10})
	assert.InDelta(t, 110, x, 1e-9)
	assert.InDelta(t, 60, y, 1e-9)
}

func TestTicks(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi float64
		n      int
		want   []float64
	}{
		{"unit steps", 0, 10, 5, []float64{0, 2, 4, 6, 8, 10}},
		{"fractions", 0, 1, 4, []float64{0, 0.5, 1}},
		{"offset start", 7, 43, 6, []float64{10, 20, 30, 40}},
		{"negative", -5, 5, 2, []float64{-5, 0, 5}},
		{"empty range", 5, 5, 3, nil},
		{"reversed", 5, 1, 3, nil},
		{"no ticks wanted", 0, 1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ticks(tt.lo, tt.hi, tt.n)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestNiceStep(t *testing.T) {
	tests := map[float64]float64{
		0.7: 1,
		1:   1,
		1.5: 2,
		3:   5,
		7:   10,
		45:  50,
		120: 200,
	}
	for raw, want := range tests {
		assert.InDelta(t, want, niceStep(raw), 1e-9, "niceStep(%v)", raw)
	}
}
