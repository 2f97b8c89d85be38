// Package geometry provides the planar primitives used by the measurement pipeline.
package geometry

import (
	"image"
	"math"
)

// Point is a 2D point in pixel coordinates. Pixel (x, y) maps to Point{X: x, Y: y}.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FromImagePoint converts an integer pixel position to a Point.
func FromImagePoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// In reports whether the point lies inside r, allowing a tolerance in pixels.
func (p Point) In(r image.Rectangle, tolerance float64) bool {
	return p.X >= float64(r.Min.X)-tolerance && p.X <= float64(r.Max.X-1)+tolerance &&
		p.Y >= float64(r.Min.Y)-tolerance && p.Y <= float64(r.Max.Y-1)+tolerance
}

// Mean returns the arithmetic mean of a set of pixel positions.
// The zero Point is returned for an empty input.
func Mean(pts []image.Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(pts))
	return Point{X: sx / n, Y: sy / n}
}

// MaxFeret returns the largest distance between any two vertices of hull
// (the caliper diameter) along with the two endpoints. Any point set works;
// passing the convex hull keeps the pairwise scan short.
func MaxFeret(hull []image.Point) (float64, image.Point, image.Point) {
	var best int
	var a, b image.Point
	if len(hull) > 0 {
		a, b = hull[0], hull[0]
	}
	for i := 0; i < len(hull); i++ {
		for j := i + 1; j < len(hull); j++ {
			dx := hull[i].X - hull[j].X
			dy := hull[i].Y - hull[j].Y
			if d := dx*dx + dy*dy; d > best {
				best = d
				a, b = hull[i], hull[j]
			}
		}
	}
	return math.Sqrt(float64(best)), a, b
}
