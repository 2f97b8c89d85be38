package models

import (
	"fmt"
	"math"
)

// Plane is a single 2D intensity image stored in row-major order.
type Plane struct {
	// Data holds one intensity value per pixel, Data[y*Width+x]
	Data []float64

	// Width is the number of columns in pixels
	Width int

	// Height is the number of rows in pixels
	Height int
}

// NewPlane allocates a zero-filled plane.
func NewPlane(width, height int) Plane {
	return Plane{Data: make([]float64, width*height), Width: width, Height: height}
}

// At returns the intensity at (x, y).
func (p Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Set stores the intensity at (x, y).
func (p Plane) Set(x, y int, v float64) {
	p.Data[y*p.Width+x] = v
}

// Clone returns a deep copy of the plane.
func (p Plane) Clone() Plane {
	out := Plane{Data: make([]float64, len(p.Data)), Width: p.Width, Height: p.Height}
	copy(out.Data, p.Data)
	return out
}

// Range returns the minimum and maximum intensity.
func (p Plane) Range() (min, max float64) {
	if len(p.Data) == 0 {
		return 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range p.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// SameSize reports whether two planes share dimensions.
func (p Plane) SameSize(other Plane) bool {
	return p.Width == other.Width && p.Height == other.Height
}

// Stack is a z-series of planes acquired at the same XY position.
type Stack struct {
	// Planes are ordered by increasing z
	Planes []Plane

	// Depth is the physical distance between consecutive planes
	Depth float64
}

// MaxProjection collapses the stack into one plane keeping the brightest
// value of each XY position.
func (s Stack) MaxProjection() (Plane, error) {
	if len(s.Planes) == 0 {
		return Plane{}, fmt.Errorf("empty stack")
	}
	first := s.Planes[0]
	out := first.Clone()
	for z, p := range s.Planes[1:] {
		if !p.SameSize(first) {
			return Plane{}, fmt.Errorf("plane %d is %dx%d, expected %dx%d", z+1, p.Width, p.Height, first.Width, first.Height)
		}
		for i, v := range p.Data {
			if v > out.Data[i] {
				out.Data[i] = v
			}
		}
	}
	return out, nil
}
