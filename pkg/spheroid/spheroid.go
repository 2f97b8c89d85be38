// Package spheroid derives the reference circle of a spheroid from its binary mask.
package spheroid

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

// ErrNoSpheroidDetected is returned when the mask has no foreground.
var ErrNoSpheroidDetected = errors.New("no spheroid detected")

// Shapes is the mask geometry the circle fit relies on.
type Shapes interface {
	Label(b mask.Binary) (mask.Labels, error)
	ExternalContours(b mask.Binary) ([][]image.Point, error)
	FillHoles(b mask.Binary) (mask.Binary, error)
	ConvexHull(pts []image.Point) ([]image.Point, error)
}

// Geometry is the circular approximation of a spheroid.
type Geometry struct {
	// Center is the centroid of the outer contour in pixel coordinates
	Center geometry.Point

	// Radius is half the maximum Feret diameter, in pixels
	Radius float64

	// Area is the filled area of the component in square microns
	Area float64

	// PixelCount is the number of pixels in the component with its holes filled
	PixelCount int

	// FitRadius and FitResidual come from a least-squares circle fit of the
	// contour and are reported for diagnostics only
	FitRadius   float64
	FitResidual float64

	// Boundary holds the outer contour the circle was derived from
	Boundary []image.Point
}

// RadiusMicrons converts the radius to physical units.
func (g Geometry) RadiusMicrons(cal calibration.Calibration) float64 {
	return cal.ToMicrons(g.Radius)
}

// FitCircle keeps the largest 8-connected component of m and derives its
// center from the outer contour, its radius from the maximum Feret diameter
// and its area from the pixel count with holes filled. Holes never move the
// center.
func FitCircle(m mask.Binary, cal calibration.Calibration, shapes Shapes) (Geometry, error) {
	labels, err := shapes.Label(m)
	if err != nil {
		return Geometry{}, fmt.Errorf("labeling: %w", err)
	}
	component, n := labels.Largest()
	if n == 0 {
		return Geometry{}, ErrNoSpheroidDetected
	}

	filled, err := shapes.FillHoles(component)
	if err != nil {
		return Geometry{}, fmt.Errorf("filling holes: %w", err)
	}
	contours, err := shapes.ExternalContours(component)
	if err != nil {
		return Geometry{}, fmt.Errorf("tracing contour: %w", err)
	}
	boundary := longest(contours)
	if len(boundary) == 0 {
		return Geometry{}, fmt.Errorf("tracing contour: %w", ErrNoSpheroidDetected)
	}
	hull, err := shapes.ConvexHull(boundary)
	if err != nil {
		return Geometry{}, err
	}

	feret, _, _ := geometry.MaxFeret(hull)
	area := filled.Count()
	g := Geometry{
		Center:     geometry.Mean(boundary),
		Radius:     feret / 2,
		Area:       cal.AreaOf(area),
		PixelCount: area,
		Boundary:   boundary,
	}

	// a single pixel has no caliper length
	if g.Radius == 0 {
		g.Radius = 0.5
	}

	if _, r, res, err := LeastSquaresCircle(boundary); err == nil {
		g.FitRadius = r
		g.FitResidual = res
	}
	return g, nil
}

// longest returns the contour with the most points. A single component
// yields one contour.
func longest(contours [][]image.Point) []image.Point {
	var best []image.Point
	for _, c := range contours {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// LeastSquaresCircle fits x² + y² + Dx + Ey + F = 0 to the points (Kasa
// method) and returns center, radius and the RMS radial residual.
func LeastSquaresCircle(pts []image.Point) (geometry.Point, float64, float64, error) {
	n := len(pts)
	if n < 3 {
		return geometry.Point{}, 0, 0, fmt.Errorf("need at least 3 points, got %d", n)
	}

	A := mat.NewDense(n, 3, nil)
	B := mat.NewVecDense(n, nil)
	for i, p := range pts {
		x, y := float64(p.X), float64(p.Y)
		A.Set(i, 0, x)
		A.Set(i, 1, y)
		A.Set(i, 2, 1)
		B.SetVec(i, -(x*x + y*y))
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.Point{}, 0, 0, fmt.Errorf("circle fit: %w", err)
	}

	c := geometry.Point{X: -params.AtVec(0) / 2, Y: -params.AtVec(1) / 2}
	r2 := c.X*c.X + c.Y*c.Y - params.AtVec(2)
	if r2 <= 0 || math.IsNaN(r2) {
		return geometry.Point{}, 0, 0, fmt.Errorf("circle fit: degenerate point set")
	}
	r := math.Sqrt(r2)

	var ss float64
	for _, p := range pts {
		d := c.Distance(geometry.FromImagePoint(p)) - r
		ss += d * d
	}
	return c, r, math.Sqrt(ss / float64(n)), nil
}
