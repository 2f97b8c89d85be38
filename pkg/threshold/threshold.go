// Package threshold binarizes intensity planes with a fixed set of automatic
// histogram-based threshold methods.
//
// Every method works on a 256-bin histogram spanning the plane's intensity
// range and returns a bin level; pixels whose bin is above the level are
// foreground (bright objects on a dark background).
package threshold

import (
	"fmt"
	"strings"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/mask"
)

// Bins is the number of histogram bins used by every method.
const Bins = 256

// Method identifies an automatic threshold algorithm.
type Method int

const (
	// Default is the iterative intermeans (IsoData) variant.
	Default Method = iota
	Huang
	Li
	Mean
	Otsu
	Triangle
)

var methodNames = map[Method]string{
	Default:  "Default",
	Huang:    "Huang",
	Li:       "Li",
	Mean:     "Mean",
	Otsu:     "Otsu",
	Triangle: "Triangle",
}

var levelFuncs = map[Method]func([]int) int{
	Default:  isoData,
	Huang:    huang,
	Li:       li,
	Mean:     mean,
	Otsu:     otsu,
	Triangle: triangle,
}

// ParseMethod resolves a method by name, ignoring case.
func ParseMethod(name string) (Method, error) {
	for m, n := range methodNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown threshold method %q", name)
}

// Methods lists every supported method in declaration order.
func Methods() []Method {
	return []Method{Default, Huang, Li, Mean, Otsu, Triangle}
}

func (m Method) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Level returns the histogram bin separating background from foreground.
func (m Method) Level(hist []int) int {
	f, ok := levelFuncs[m]
	if !ok {
		f = isoData
	}
	return f(hist)
}

// Histogram bins the plane into Bins equal-width bins between its minimum
// and maximum intensity. A constant plane yields ok == false.
func Histogram(p models.Plane) (hist []int, min, max float64, ok bool) {
	hist = make([]int, Bins)
	min, max = p.Range()
	if max <= min {
		return hist, min, max, false
	}
	for _, v := range p.Data {
		hist[bin(v, min, max)]++
	}
	return hist, min, max, true
}

func bin(v, min, max float64) int {
	b := int((v - min) / (max - min) * Bins)
	if b < 0 {
		return 0
	}
	if b >= Bins {
		return Bins - 1
	}
	return b
}

// Apply thresholds p with method m. It returns the foreground mask and the
// intensity cutoff: pixels at or above the cutoff are foreground. A
// constant plane produces an empty mask.
func Apply(p models.Plane, m Method) (mask.Binary, float64) {
	out := mask.NewBinary(p.Width, p.Height)
	hist, min, max, ok := Histogram(p)
	if !ok {
		return out, max
	}

	level := m.Level(hist)
	for i, v := range p.Data {
		out.Pix[i] = bin(v, min, max) > level
	}
	return out, min + float64(level+1)*(max-min)/Bins
}
