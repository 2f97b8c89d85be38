package sholl

import (
	"math"

	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

// samplesPerPixel is the number of circle samples per pixel of circumference.
const samplesPerPixel = 2

// Intersections counts the separate foreground arcs of m met by the circle of
// the given radius around center. Samples outside the frame are background.
// A circle lying entirely in the foreground counts as one arc.
func Intersections(m mask.Binary, center geometry.Point, radius float64) int {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return 0
	}
	n := int(math.Ceil(samplesPerPixel * 2 * math.Pi * radius))
	if n < 8 {
		n = 8
	}

	samples := make([]bool, n)
	for k := range samples {
		theta := 2 * math.Pi * float64(k) / float64(n)
		x := int(math.Round(center.X + radius*math.Cos(theta)))
		y := int(math.Round(center.Y + radius*math.Sin(theta)))
		samples[k] = m.At(x, y)
	}

	runs := 0
	for k, v := range samples {
		if v && !samples[(k+n-1)%n] {
			runs++
		}
	}
	if runs == 0 && samples[0] {
		return 1
	}
	return runs
}

// CountIntersections sets the intersection count of every measurement from
// the inner circle of its annulus.
func (p *Profile) CountIntersections(m mask.Binary) {
	for i := range p.Measurements {
		a := p.Measurements[i].Annulus
		p.Measurements[i].Intersections = Intersections(m, a.Center, a.Inner)
	}
}
