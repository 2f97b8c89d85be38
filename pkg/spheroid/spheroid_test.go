package spheroid

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/imaging"
	"spheroidexpansion/pkg/mask"
)

func disk(w, h int, cx, cy, r float64) mask.Binary {
	b := mask.NewBinary(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r*r {
				b.Set(x, y, true)
			}
		}
	}
	return b
}

func TestFitCircleRecoversDisk(t *testing.T) {
	const r = 20.0
	g, err := FitCircle(disk(100, 100, 50, 40, r), calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)

	assert.InDelta(t, 50, g.Center.X, 0.05)
	assert.InDelta(t, 40, g.Center.Y, 0.05)
	assert.InDelta(t, r, g.Radius, 1)
	assert.InDelta(t, math.Pi*r*r, g.Area, 2*math.Pi*r)
	assert.InDelta(t, r, g.FitRadius, 1)
	assert.Less(t, g.FitResidual, 1.0)
	assert.NotEmpty(t, g.Boundary)
}

func TestFitCircleIgnoresDebris(t *testing.T) {
	m := disk(120, 100, 40, 50, 15)
	for y := 5; y < 8; y++ {
		for x := 100; x < 103; x++ {
			m.Set(x, y, true)
		}
	}

	g, err := FitCircle(m, calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)
	assert.InDelta(t, 40, g.Center.X, 0.05)
	assert.InDelta(t, 50, g.Center.Y, 0.05)
	assert.InDelta(t, 15, g.Radius, 1)
}

func TestFitCircleIgnoresHoles(t *testing.T) {
	solid := disk(100, 100, 50, 50, 20)
	holed := solid.Clone()
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			dx, dy := float64(x)-62, float64(y)-50
			if dx*dx+dy*dy <= 25 {
				holed.Set(x, y, false)
			}
		}
	}
	require.Less(t, holed.Count(), solid.Count())

	want, err := FitCircle(solid, calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)
	got, err := FitCircle(holed, calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)

	assert.InDelta(t, 50, got.Center.X, 0.05)
	assert.InDelta(t, 50, got.Center.Y, 0.05)
	assert.InDelta(t, want.Center.X, got.Center.X, 1e-9)
	assert.InDelta(t, want.Center.Y, got.Center.Y, 1e-9)
	assert.Equal(t, want.Radius, got.Radius)
	assert.Equal(t, solid.Count(), got.PixelCount)
	assert.Equal(t, want.Area, got.Area)
	assert.NotContains(t, got.Boundary, image.Pt(56, 50), "pixels around the hole are not part of the contour")
}

// brokenShapes fails labeling and delegates everything else to OpenCV.
type brokenShapes struct {
	imaging.OpenCV
}

func (brokenShapes) Label(mask.Binary) (mask.Labels, error) {
	return mask.Labels{}, errors.New("out of memory")
}

func TestFitCircleShapeError(t *testing.T) {
	_, err := FitCircle(disk(20, 20, 10, 10, 5), calibration.Identity(), brokenShapes{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSpheroidDetected)
}

func TestFitCircleCenterInsideBounds(t *testing.T) {
	// a disk clipped by the left frame edge
	m := disk(80, 80, 5, 40, 25)
	g, err := FitCircle(m, calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)

	assert.Greater(t, g.Radius, 0.0)
	assert.True(t, g.Center.In(m.Bounds(), 1))
}

func TestFitCircleAreaUsesCalibration(t *testing.T) {
	m := disk(60, 60, 30, 30, 10)
	cal := calibration.Resolve(calibration.Hints{}, calibration.Override{PixelWidth: 0.5})

	g, err := FitCircle(m, cal, imaging.OpenCV{})
	require.NoError(t, err)
	assert.InDelta(t, float64(m.Count())*0.25, g.Area, 1e-9)
	assert.InDelta(t, g.Radius*0.5, g.RadiusMicrons(cal), 1e-12)
}

func TestFitCircleEmptyMask(t *testing.T) {
	_, err := FitCircle(mask.NewBinary(10, 10), calibration.Identity(), imaging.OpenCV{})
	assert.ErrorIs(t, err, ErrNoSpheroidDetected)
}

func TestFitCircleSinglePixel(t *testing.T) {
	m := mask.NewBinary(5, 5)
	m.Set(2, 2, true)
	g, err := FitCircle(m, calibration.Identity(), imaging.OpenCV{})
	require.NoError(t, err)
	assert.Greater(t, g.Radius, 0.0)
	assert.Equal(t, geometry.Point{X: 2, Y: 2}, g.Center)
}

func TestLeastSquaresCircle(t *testing.T) {
	var pts []image.Point
	for a := 0.0; a < 2*math.Pi; a += 0.1 {
		pts = append(pts, image.Pt(int(math.Round(30+12*math.Cos(a))), int(math.Round(25+12*math.Sin(a)))))
	}
	c, r, res, err := LeastSquaresCircle(pts)
	require.NoError(t, err)
	assert.InDelta(t, 30, c.X, 0.5)
	assert.InDelta(t, 25, c.Y, 0.5)
	assert.InDelta(t, 12, r, 0.5)
	assert.Less(t, res, 0.5)

	_, _, _, err = LeastSquaresCircle(pts[:2])
	assert.Error(t, err)
}
