package sholl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

// star is a core disk of radius 8 with rays of width 5 reaching radius 40.
func star(rays int) mask.Binary {
	m := mask.NewBinary(100, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			dx, dy := float64(x)-center.X, float64(y)-center.Y
			d := math.Hypot(dx, dy)
			if d <= 8 {
				m.Set(x, y, true)
				continue
			}
			if d > 40 {
				continue
			}
			for k := 0; k < rays; k++ {
				a := 2 * math.Pi * float64(k) / float64(rays)
				c, s := math.Cos(a), math.Sin(a)
				if dx*c+dy*s > 0 && math.Abs(-dx*s+dy*c) <= 2.5 {
					m.Set(x, y, true)
				}
			}
		}
	}
	return m
}

func TestIntersectionsStar(t *testing.T) {
	m := star(6)
	assert.Equal(t, 1, Intersections(m, center, 5), "circle inside the core")
	for _, r := range []float64{10, 20, 25, 35} {
		assert.Equal(t, 6, Intersections(m, center, r), "radius %g", r)
	}
	assert.Equal(t, 0, Intersections(m, center, 45))
	assert.Equal(t, 0, Intersections(m, center, 0))
	assert.Equal(t, 0, Intersections(mask.NewBinary(100, 100), center, 20))
}

func TestIntersectionsOutsideFrameIsBackground(t *testing.T) {
	m := mask.NewBinary(20, 20)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	// only the four diagonal arcs stay inside the frame
	assert.Equal(t, 4, Intersections(m, geometry.Point{X: 10, Y: 10}, 12))
}

func TestProfileCountIntersections(t *testing.T) {
	annuli, err := Partition(center, 10, 10, 40, Clip)
	require.NoError(t, err)

	prof := Measure(mask.NewBinary(100, 100), annuli, nil, calibration.Identity())
	prof.CountIntersections(star(5))
	for _, m := range prof.Measurements {
		assert.Equal(t, 5, m.Intersections, "annulus %d", m.Annulus.Index)
	}

	prof.CountIntersections(mask.NewBinary(100, 100))
	for _, m := range prof.Measurements {
		assert.Zero(t, m.Intersections)
	}
}
