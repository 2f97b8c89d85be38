// Package calibration converts pixel-space measurements to physical units.
package calibration

import "math"

// Unit is the only physical unit reported by the pipeline.
const Unit = "microns"

// Calibration holds the physical size of one pixel along each axis.
// PixelHeight always equals PixelWidth: images are assumed isotropic in-plane.
type Calibration struct {
	PixelWidth  float64 `yaml:"pixelWidth" json:"pixel_width"`
	PixelHeight float64 `yaml:"pixelHeight" json:"pixel_height"`
	PixelDepth  float64 `yaml:"pixelDepth" json:"pixel_depth"`
	Unit        string  `yaml:"unit" json:"unit"`
}

// Hints are calibration values read from acquisition metadata.
// Zero means the metadata did not provide the value.
type Hints struct {
	PixelWidth float64 `yaml:"pixelWidth"`
	PixelDepth float64 `yaml:"pixelDepth"`
}

// Override holds user-confirmed values. Non-zero fields win over hints.
type Override struct {
	PixelWidth float64
	PixelDepth float64
}

// Identity returns the fallback calibration used when nothing is known.
func Identity() Calibration {
	return Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 1, Unit: Unit}
}

// Resolve merges metadata hints and user overrides into a usable calibration.
// It never fails: missing or non-positive values fall back to 1.
func Resolve(hints Hints, override Override) Calibration {
	cal := Identity()

	if valid(hints.PixelWidth) {
		cal.PixelWidth = hints.PixelWidth
	}
	if valid(hints.PixelDepth) {
		cal.PixelDepth = hints.PixelDepth
	}

	if valid(override.PixelWidth) {
		cal.PixelWidth = override.PixelWidth
	}
	if valid(override.PixelDepth) {
		cal.PixelDepth = override.PixelDepth
	}

	cal.PixelHeight = cal.PixelWidth
	return cal
}

func valid(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// PixelArea returns the physical area covered by a single pixel.
func (c Calibration) PixelArea() float64 {
	return c.PixelWidth * c.PixelHeight
}

// ToMicrons converts an in-plane pixel length to physical units.
func (c Calibration) ToMicrons(px float64) float64 {
	return px * c.PixelWidth
}

// ToPixels converts an in-plane physical length to pixels.
func (c Calibration) ToPixels(um float64) float64 {
	if c.PixelWidth == 0 {
		return um
	}
	return um / c.PixelWidth
}

// AreaOf converts a pixel count to physical area.
func (c Calibration) AreaOf(pixelCount int) float64 {
	return float64(pixelCount) * c.PixelArea()
}
