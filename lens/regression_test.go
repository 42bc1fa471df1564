package lens

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name   string
		points []orb.Point
		wantM  float64
		wantB  float64
		wantR2 float64
		wantNo bool
	}{
		{
			name:   "identity",
			points: []orb.Point{{0, 0}, {1, 1}, {2, 2}},
			wantM:  1, wantB: 0, wantR2: 1,
		},
		{
			name:   "scattered",
			points: []orb.Point{{1, 1}, {2, 3}, {3, 2}, {4, 4}},
			wantM:  0.8, wantB: 0.5, wantR2: 0.64,
		},
		{
			name:   "flat",
			points: []orb.Point{{1, 5}, {2, 5}, {3, 5}},
			wantM:  0, wantB: 5, wantR2: 1,
		},
		{
			name:   "non-finite pairs dropped",
			points: []orb.Point{{0, 0}, {math.NaN(), 3}, {1, 2}, {2, math.Inf(1)}},
			wantM:  2, wantB: 0, wantR2: 1,
		},
		{name: "empty", wantNo: true},
		{name: "single point", points: []orb.Point{{1, 1}}, wantNo: true},
		{name: "no spread in x", points: []orb.Point{{3, 1}, {3, 2}, {3, 9}}, wantNo: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Fit(tt.points)
			if tt.wantNo {
				assert.Nil(t, line)
				return
			}
			require.NotNil(t, line)
			assert.InDelta(t, tt.wantM, line.M, 1e-9)
			assert.InDelta(t, tt.wantB, line.B, 1e-9)
			assert.InDelta(t, tt.wantR2, line.RSquared, 1e-9)
		})
	}
}

func TestLine_Sides(t *testing.T) {
	l := Line{M: 1, B: 0}
	assert.True(t, l.Above(orb.Point{1, 2}))
	assert.False(t, l.Below(orb.Point{1, 2}))
	assert.True(t, l.Below(orb.Point{1, 0}))

	// Points on the line count for both sides
	assert.True(t, l.Above(orb.Point{3, 3}))
	assert.True(t, l.Below(orb.Point{3, 3}))
}

func TestLine_Extend(t *testing.T) {
	l := Line{M: 2, B: 1}
	seg := l.Extend(bound(0, 0, 10, 10))
	require.Len(t, seg, 2)
	assert.Less(t, seg[0].X(), -1000.0)
	assert.Greater(t, seg[1].X(), 1000.0)
	assert.InDelta(t, l.At(seg[1].X()), seg[1].Y(), 1e-6)

	// A zero-width view still yields a usable segment
	seg = l.Extend(bound(5, 0, 5, 10))
	assert.Less(t, seg[0].X(), seg[1].X())
}

func TestLine_String(t *testing.T) {
	assert.Equal(t, "y = 0.5*x + -2", Line{M: 0.5, B: -2}.String())
}
