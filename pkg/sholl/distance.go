package sholl

import (
	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/regions"
)

// Distances returns the physical distance from center to every region
// centroid, in region order.
func Distances(rs []regions.Region, center geometry.Point, cal calibration.Calibration) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = cal.ToMicrons(r.Centroid.Distance(center))
	}
	return out
}
