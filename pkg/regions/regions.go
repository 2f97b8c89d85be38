// Package regions turns labeled masks into populations of measured objects.
package regions

import (
	"image"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

// Region is one labeled object. Area is in square microns, Centroid in pixels.
type Region struct {
	Label      int
	Area       float64
	PixelCount int
	Centroid   geometry.Point
	Bounds     image.Rectangle
	Pixels     []image.Point
}

// Population is an ordered set of regions with unique labels.
// It is never modified after construction.
type Population struct {
	regions []Region
}

// NewPopulation wraps regions as-is. Callers guarantee unique labels.
func NewPopulation(regions []Region) *Population {
	return &Population{regions: regions}
}

// FromLabels measures every non-zero label of l, ordered by label.
func FromLabels(l mask.Labels, cal calibration.Calibration) *Population {
	if l.N == 0 {
		return &Population{}
	}

	type acc struct {
		sx, sy float64
		bounds image.Rectangle
		pixels []image.Point
	}
	accs := make([]*acc, l.N+1)
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			v := int(l.Pix[y*l.Width+x])
			if v <= 0 || v > l.N {
				continue
			}
			a := accs[v]
			pt := image.Pt(x, y)
			if a == nil {
				a = &acc{bounds: image.Rectangle{Min: pt, Max: pt.Add(image.Pt(1, 1))}}
				accs[v] = a
			}
			a.sx += float64(x)
			a.sy += float64(y)
			a.bounds = a.bounds.Union(image.Rectangle{Min: pt, Max: pt.Add(image.Pt(1, 1))})
			a.pixels = append(a.pixels, pt)
		}
	}

	out := make([]Region, 0, l.N)
	for label, a := range accs {
		if a == nil {
			continue
		}
		n := len(a.pixels)
		out = append(out, Region{
			Label:      label,
			Area:       cal.AreaOf(n),
			PixelCount: n,
			Centroid:   geometry.Point{X: a.sx / float64(n), Y: a.sy / float64(n)},
			Bounds:     a.bounds,
			Pixels:     a.pixels,
		})
	}
	return &Population{regions: out}
}

// Len returns the number of regions.
func (p *Population) Len() int {
	if p == nil {
		return 0
	}
	return len(p.regions)
}

// At returns the i-th region.
func (p *Population) At(i int) Region {
	return p.regions[i]
}

// Regions returns a copy of the region list.
func (p *Population) Regions() []Region {
	if p == nil {
		return nil
	}
	out := make([]Region, len(p.regions))
	copy(out, p.regions)
	return out
}

// Centroids returns the centroid of every region in order.
func (p *Population) Centroids() []geometry.Point {
	out := make([]geometry.Point, p.Len())
	for i := range out {
		out[i] = p.regions[i].Centroid
	}
	return out
}

// TotalArea sums the area of every region.
func (p *Population) TotalArea() float64 {
	var total float64
	for i := 0; i < p.Len(); i++ {
		total += p.regions[i].Area
	}
	return total
}

// FilterBySize returns a new population without the regions whose area lies
// strictly outside [min, max]. Survivors are relabeled 1..n in their
// original order. The receiver is left untouched.
func (p *Population) FilterBySize(min, max float64) *Population {
	out := make([]Region, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		r := p.regions[i]
		if r.Area < min || r.Area > max {
			continue
		}
		r.Label = len(out) + 1
		out = append(out, r)
	}
	return &Population{regions: out}
}

// Labels paints the population back into a label image of the given size.
func (p *Population) Labels(width, height int) mask.Labels {
	l := mask.NewLabels(width, height)
	for i := 0; i < p.Len(); i++ {
		r := p.regions[i]
		for _, pt := range r.Pixels {
			if pt.X >= 0 && pt.Y >= 0 && pt.X < width && pt.Y < height {
				l.Pix[pt.Y*width+pt.X] = int32(r.Label)
			}
		}
		if r.Label > l.N {
			l.N = r.Label
		}
	}
	return l
}
