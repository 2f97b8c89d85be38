package threshold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/internal/models"
)

// bimodal returns a histogram with a large dark mode and a smaller bright mode.
func bimodal() []int {
	hist := make([]int, Bins)
	add := func(mu, sd, n float64) {
		for i := range hist {
			z := (float64(i) - mu) / sd
			hist[i] += int(math.Round(n * math.Exp(-z*z/2) / (sd * math.Sqrt(2*math.Pi))))
		}
	}
	add(60, 10, 30000)
	add(190, 12, 10000)
	return hist
}

func TestMethodsSeparateBimodalHistogram(t *testing.T) {
	hist := bimodal()
	for _, m := range Methods() {
		t.Run(m.String(), func(t *testing.T) {
			level := m.Level(hist)
			assert.Greater(t, level, 70, "level must sit above the dark mode")
			assert.Less(t, level, 180, "level must sit below the bright mode")
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods() {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMethod(" otsu ")
	require.NoError(t, err)
	assert.Equal(t, Otsu, got)

	_, err = ParseMethod("MaxEntropy")
	assert.Error(t, err)
}

func twoLevelPlane() models.Plane {
	p := models.NewPlane(20, 10)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := 100.0
			if x >= 5 && x < 10 && y >= 2 && y < 6 {
				v = 900
			}
			p.Set(x, y, v)
		}
	}
	return p
}

func TestApplyKeepsBrightObject(t *testing.T) {
	p := twoLevelPlane()
	for _, m := range Methods() {
		t.Run(m.String(), func(t *testing.T) {
			b, cutoff := Apply(p, m)
			assert.Equal(t, 20, b.Count())
			assert.True(t, b.At(7, 3))
			assert.False(t, b.At(0, 0))
			assert.Greater(t, cutoff, 100.0)
			assert.LessOrEqual(t, cutoff, 900.0)
		})
	}
}

func TestApplyConstantPlaneIsEmpty(t *testing.T) {
	p := models.NewPlane(4, 4)
	for i := range p.Data {
		p.Data[i] = 3
	}
	b, _ := Apply(p, Otsu)
	assert.Zero(t, b.Count())
}

func TestHistogramSpansRange(t *testing.T) {
	p := models.NewPlane(3, 1)
	p.Data = []float64{0, 0.5, 1}
	hist, min, max, ok := Histogram(p)
	require.True(t, ok)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 1.0, max)
	assert.Equal(t, 1, hist[0])
	assert.Equal(t, 1, hist[128])
	assert.Equal(t, 1, hist[Bins-1])
}
