package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFallsBackToIdentity(t *testing.T) {
	cal := Resolve(Hints{}, Override{})
	assert.Equal(t, Identity(), cal)
	assert.Equal(t, Unit, cal.Unit)
}

func TestResolveHintsSeedDefaults(t *testing.T) {
	cal := Resolve(Hints{PixelWidth: 0.65, PixelDepth: 2}, Override{})
	assert.Equal(t, 0.65, cal.PixelWidth)
	assert.Equal(t, 0.65, cal.PixelHeight)
	assert.Equal(t, 2.0, cal.PixelDepth)
}

func TestResolveOverrideIsAuthoritative(t *testing.T) {
	cal := Resolve(Hints{PixelWidth: 0.65, PixelDepth: 2}, Override{PixelWidth: 1.3})
	assert.Equal(t, 1.3, cal.PixelWidth)
	assert.Equal(t, 1.3, cal.PixelHeight)
	assert.Equal(t, 2.0, cal.PixelDepth, "depth hint survives when not overridden")
}

func TestResolveIgnoresInvalidValues(t *testing.T) {
	cal := Resolve(Hints{PixelWidth: -1, PixelDepth: math.NaN()}, Override{PixelWidth: math.Inf(1)})
	assert.Equal(t, Identity(), cal)
}

func TestConversions(t *testing.T) {
	cal := Resolve(Hints{}, Override{PixelWidth: 0.5})

	assert.InDelta(t, 0.25, cal.PixelArea(), 1e-12)
	assert.InDelta(t, 5.0, cal.ToMicrons(10), 1e-12)
	assert.InDelta(t, 20.0, cal.ToPixels(10), 1e-12)
	assert.InDelta(t, 25.0, cal.AreaOf(100), 1e-12)
}
