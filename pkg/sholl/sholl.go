// Package sholl partitions the plane around a spheroid into concentric annuli
// and measures stain coverage and nucleus counts in each of them.
package sholl

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

var (
	// ErrDegenerateGeometry means no annulus fits between the spheroid and the outer bound.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrInvalidStep means the annulus width is not a positive finite number.
	ErrInvalidStep = errors.New("invalid step")
)

// MaxAnnuli caps the number of annuli a single partition may produce.
const MaxAnnuli = 1 << 20

// relTolerance absorbs floating point noise when comparing radii to the outer bound.
const relTolerance = 1e-9

// FinalAnnulusPolicy decides what happens to the last annulus when it does
// not fit entirely before the outer bound.
type FinalAnnulusPolicy int

const (
	// Clip emits the last annulus truncated at the outer bound.
	Clip FinalAnnulusPolicy = iota
	// Drop emits only annuli that fit entirely.
	Drop
)

// ParsePolicy resolves "clip" or "drop".
func ParsePolicy(name string) (FinalAnnulusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "clip", "":
		return Clip, nil
	case "drop":
		return Drop, nil
	}
	return 0, fmt.Errorf("unknown final annulus policy %q", name)
}

func (p FinalAnnulusPolicy) String() string {
	if p == Drop {
		return "drop"
	}
	return "clip"
}

// Annulus is the half-open ring Inner <= d < Outer around Center, in pixels.
type Annulus struct {
	// Index is 1-based and increases with radius
	Index  int
	Center geometry.Point
	Inner  float64
	Outer  float64
}

// Width returns Outer - Inner.
func (a Annulus) Width() float64 {
	return a.Outer - a.Inner
}

// OuterBound returns the radius of the largest scan anchored at center: per
// axis it takes the distance to the far edge when the center lies in the
// near half of the frame.
func OuterBound(center geometry.Point, width, height int) float64 {
	dx := center.X
	if center.X <= float64(width)/2 {
		dx = center.X - float64(width)
	}
	dy := center.Y
	if center.Y <= float64(height)/2 {
		dy = center.Y - float64(height)
	}
	return math.Sqrt(dx*dx + dy*dy)
}

// Partition splits [inner, outerBound) into annuli of the given step.
// The i-th annulus starts at inner + i*step. Emission stops once an inner
// radius reaches outerBound; the policy decides the fate of a final annulus
// that crosses it.
func Partition(center geometry.Point, inner, step, outerBound float64, policy FinalAnnulusPolicy) ([]Annulus, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step %g", ErrInvalidStep, step)
	}
	if !(inner > 0) || math.IsInf(inner, 0) || !(outerBound > inner) || math.IsInf(outerBound, 0) {
		return nil, fmt.Errorf("%w: inner radius %g, outer bound %g", ErrDegenerateGeometry, inner, outerBound)
	}
	if n := (outerBound - inner) / step; n > MaxAnnuli {
		return nil, fmt.Errorf("%w: %g annuli exceed the limit of %d", ErrInvalidStep, math.Ceil(n), MaxAnnuli)
	}

	tol := relTolerance * outerBound
	var annuli []Annulus
	for i := 0; ; i++ {
		r := inner + float64(i)*step
		if r >= outerBound-tol {
			break
		}
		outer := inner + float64(i+1)*step
		if outer > outerBound+tol {
			if policy == Drop {
				break
			}
			annuli = append(annuli, Annulus{Index: i + 1, Center: center, Inner: r, Outer: outerBound})
			break
		}
		annuli = append(annuli, Annulus{Index: i + 1, Center: center, Inner: r, Outer: math.Min(outer, outerBound)})
	}

	if len(annuli) == 0 {
		return nil, fmt.Errorf("%w: no annulus of width %g fits between %g and %g", ErrDegenerateGeometry, step, inner, outerBound)
	}
	return annuli, nil
}

// Measurement holds what was found inside one annulus.
type Measurement struct {
	Annulus      Annulus
	StainPixels  int
	StainArea    float64
	NucleusCount int

	// Intersections is the number of spheroid mask arcs crossed by the
	// inner circle, set by CountIntersections
	Intersections int
}

// Profile is the ordered list of measurements plus the nuclei that fell
// inside the first annulus or beyond the last one.
type Profile struct {
	Measurements []Measurement
	Inside       int
	Beyond       int
}

// NucleusTotal sums the per-annulus nucleus counts.
func (p Profile) NucleusTotal() int {
	n := 0
	for _, m := range p.Measurements {
		n += m.NucleusCount
	}
	return n
}

// StainTotal sums the per-annulus stain areas.
func (p Profile) StainTotal() float64 {
	var a float64
	for _, m := range p.Measurements {
		a += m.StainArea
	}
	return a
}

// Measure computes stain area and nucleus count for every annulus. Stain
// pixels are binned by their pixel distance to the annulus center; distances
// are physical and compared against the annulus radii scaled by the pixel width.
// Annuli must be contiguous and share one center, as produced by Partition.
func Measure(stain mask.Binary, annuli []Annulus, distances []float64, cal calibration.Calibration) Profile {
	prof := Profile{Measurements: make([]Measurement, len(annuli))}
	for i, a := range annuli {
		prof.Measurements[i].Annulus = a
	}
	if len(annuli) == 0 {
		prof.Beyond = len(distances)
		return prof
	}

	center := annuli[0].Center
	first, last := annuli[0].Inner, annuli[len(annuli)-1].Outer
	locate := func(d float64, scale float64) int {
		return sort.Search(len(annuli), func(i int) bool { return annuli[i].Outer*scale > d })
	}

	for y := 0; y < stain.Height; y++ {
		dy := float64(y) - center.Y
		for x := 0; x < stain.Width; x++ {
			if !stain.Pix[y*stain.Width+x] {
				continue
			}
			dx := float64(x) - center.X
			d := math.Sqrt(dx*dx + dy*dy)
			if d < first || d >= last {
				continue
			}
			if i := locate(d, 1); i < len(annuli) && d >= annuli[i].Inner {
				prof.Measurements[i].StainPixels++
			}
		}
	}
	for i := range prof.Measurements {
		prof.Measurements[i].StainArea = cal.AreaOf(prof.Measurements[i].StainPixels)
	}

	pw := cal.PixelWidth
	for _, d := range distances {
		switch {
		case d < first*pw:
			prof.Inside++
		case d >= last*pw:
			prof.Beyond++
		default:
			prof.Measurements[locate(d, pw)].NucleusCount++
		}
	}
	return prof
}
