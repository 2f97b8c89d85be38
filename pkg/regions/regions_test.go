package regions

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
)

// squares labels three blocks of 1, 4 and 9 pixels.
func squares() mask.Labels {
	l := mask.NewLabels(12, 4)
	set := func(label int32, x0, y0, size int) {
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				l.Pix[y*l.Width+x] = label
			}
		}
	}
	set(1, 0, 0, 1)
	set(2, 2, 0, 2)
	set(3, 6, 0, 3)
	l.N = 3
	return l
}

func TestFromLabels(t *testing.T) {
	cal := calibration.Resolve(calibration.Hints{}, calibration.Override{PixelWidth: 2})
	pop := FromLabels(squares(), cal)
	require.Equal(t, 3, pop.Len())

	r := pop.At(1)
	assert.Equal(t, 2, r.Label)
	assert.Equal(t, 4, r.PixelCount)
	assert.InDelta(t, 16.0, r.Area, 1e-12)
	assert.Equal(t, geometry.Point{X: 2.5, Y: 0.5}, r.Centroid)
	assert.Equal(t, 2, r.Bounds.Dx())

	assert.InDelta(t, (1+4+9)*4.0, pop.TotalArea(), 1e-12)
}

func TestFromLabelsEmpty(t *testing.T) {
	pop := FromLabels(mask.NewLabels(4, 4), calibration.Identity())
	assert.Zero(t, pop.Len())
	assert.Empty(t, pop.Centroids())
}

func TestFilterBySizeRelabelsDensely(t *testing.T) {
	pop := FromLabels(squares(), calibration.Identity())
	filtered := pop.FilterBySize(2, 9)

	require.Equal(t, 2, filtered.Len())
	assert.Equal(t, 1, filtered.At(0).Label)
	assert.Equal(t, 4, filtered.At(0).PixelCount)
	assert.Equal(t, 2, filtered.At(1).Label)
	assert.Equal(t, 9, filtered.At(1).PixelCount)

	// input untouched
	assert.Equal(t, 3, pop.Len())
	assert.Equal(t, 2, pop.At(1).Label)
}

func TestFilterBySizeBoundsInclusive(t *testing.T) {
	pop := FromLabels(squares(), calibration.Identity())
	assert.Equal(t, 3, pop.FilterBySize(1, 9).Len())
	assert.Equal(t, 1, pop.FilterBySize(4, 4).Len())
}

func TestFilterBySizeIdempotent(t *testing.T) {
	pop := FromLabels(squares(), calibration.Identity())
	once := pop.FilterBySize(2, 9)
	twice := once.FilterBySize(2, 9)
	if diff := cmp.Diff(once.Regions(), twice.Regions()); diff != "" {
		t.Errorf("second filter changed the population (-once +twice):\n%s", diff)
	}
}

func TestFilterBySizeEmptyResult(t *testing.T) {
	pop := FromLabels(squares(), calibration.Identity())
	empty := pop.FilterBySize(100, 200)
	assert.Zero(t, empty.Len())
	assert.Zero(t, empty.TotalArea())
}

func TestLabelsRoundTrip(t *testing.T) {
	pop := FromLabels(squares(), calibration.Identity()).FilterBySize(2, 9)
	l := pop.Labels(12, 4)
	assert.Equal(t, 2, l.N)
	assert.EqualValues(t, 0, l.At(0, 0))
	assert.EqualValues(t, 1, l.At(2, 0))
	assert.EqualValues(t, 2, l.At(8, 2))
}
