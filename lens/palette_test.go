package lens

import (
	"image/color"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskColor(t *testing.T) {
	assert.Equal(t, color.NRGBA{220, 20, 60, 255}, RiskColor(RiskHigh))
	assert.Equal(t, color.NRGBA{128, 0, 128, 255}, RiskColor(RiskBooked))
	assert.Equal(t, unknownRisk, RiskColor(""))
	assert.Equal(t, unknownRisk, RiskColor("SOMEWHAT RISKY"))
}

func TestSectorColors(t *testing.T) {
	colors := SectorColors(readFixture(t, basicCSV))
	require.Len(t, colors, 2)
	assert.Equal(t, sectorPalette[0], colors["Retail"])
	assert.Equal(t, sectorPalette[1], colors["Tech"])

	assert.Empty(t, SectorColors(nil))
}

func TestNRGBAToRGBA(t *testing.T) {
	assert.Equal(t, color.RGBA{}, nrgbaToRGBA(color.NRGBA{255, 255, 255, 0}))
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, nrgbaToRGBA(color.NRGBA{10, 20, 30, 255}))
	assert.Equal(t, color.RGBA{127, 0, 0, 127}, nrgbaToRGBA(color.NRGBA{255, 0, 0, 127}))
}

func quadrantView() (*View, orb.Bound) {
	v := &View{
		Scope:   Scope{Kind: ScopeSector, Sector: "Retail"},
		HasRisk: true,
		Center:  orb.Point{250, 25},
		Points: []Point{
			{Plot: orb.Point{100, 10}, Risk: RiskLow},
			{Plot: orb.Point{200, 20}, Risk: RiskHigh},
		},
	}
	return v, bound(0, 0, 500, 50)
}

func TestRiskQuadrants(t *testing.T) {
	v, view := quadrantView()
	cfg := DefaultFilterConfig()
	cfg.RiskColormap = true
	cfg.RiskColormapWeighted = false

	quads := RiskQuadrants(v, cfg, view)
	require.Len(t, quads, 1)
	q := quads[0]
	assert.Equal(t, "Q3", q.Name)
	assert.Equal(t, bound(0, 0, 250, 25), q.Bounds)
	// Plain average of LOW and HIGH
	assert.Equal(t, color.NRGBA{135, 113, 55, 46}, q.Color)

	t.Run("weighted", func(t *testing.T) {
		cfg := cfg
		cfg.RiskColormapWeighted = true
		cfg.RiskColormapWeightPower = 1
		quads := RiskQuadrants(v, cfg, view)
		require.Len(t, quads, 1)
		// Acme sits further from the center and dominates
		assert.Greater(t, int(quads[0].Color.G), 113)
	})

	t.Run("zero weight at the center", func(t *testing.T) {
		cfg := cfg
		cfg.RiskColormapWeighted = true
		cfg.RiskColormapWeightPower = 1
		centered := *v
		centered.Points = []Point{{Plot: v.Center, Risk: RiskHigh}}
		assert.Empty(t, RiskQuadrants(&centered, cfg, view))
	})

	t.Run("every quadrant", func(t *testing.T) {
		spread := *v
		spread.Points = []Point{
			{Plot: orb.Point{400, 40}, Risk: RiskNone},
			{Plot: orb.Point{100, 40}, Risk: RiskLow},
			{Plot: orb.Point{100, 10}, Risk: RiskMedium},
			{Plot: orb.Point{400, 10}, Risk: RiskHigh},
		}
		quads := RiskQuadrants(&spread, cfg, view)
		require.Len(t, quads, 4)
		for i, name := range []string{"Q1", "Q2", "Q3", "Q4"} {
			assert.Equal(t, name, quads[i].Name)
		}
		assert.Equal(t, uint8(220), quads[3].Color.R)
	})
}

func TestRiskQuadrants_Disabled(t *testing.T) {
	v, view := quadrantView()
	on := DefaultFilterConfig()
	on.RiskColormap = true

	assert.Nil(t, RiskQuadrants(v, DefaultFilterConfig(), view), "colormap off")

	all := *v
	all.Scope = Scope{}
	assert.Nil(t, RiskQuadrants(&all, on, view), "not a sector scope")

	noRisk := *v
	noRisk.HasRisk = false
	assert.Nil(t, RiskQuadrants(&noRisk, on, view), "no risk column")

	empty := *v
	empty.Points = nil
	assert.Nil(t, RiskQuadrants(&empty, on, view), "no points")
}
