package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/pkg/geometry"
)

// labelsFromRows builds a label image from a picture of digits; '.' is background.
func labelsFromRows(rows ...string) Labels {
	l := NewLabels(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			if c != '.' {
				l.Pix[y*l.Width+x] = int32(c - '0')
			}
		}
	}
	return l
}

func TestRenumberRasterOrder(t *testing.T) {
	l := labelsFromRows(
		"7..3",
		"7..3",
		"..5.",
	)
	l.N = 7
	got := Renumber(l)
	require.Equal(t, 3, got.N)
	assert.EqualValues(t, 1, got.At(0, 0))
	assert.EqualValues(t, 2, got.At(3, 0))
	assert.EqualValues(t, 3, got.At(2, 2))
	assert.Equal(t, []int{0, 2, 2, 1}, got.Sizes())
	assert.EqualValues(t, 7, l.At(0, 0), "source labels are untouched")

	assert.Zero(t, Renumber(NewLabels(3, 3)).N)
}

func TestLargest(t *testing.T) {
	l := labelsFromRows(
		"11....",
		"11..22",
		"....22",
		"....22",
	)
	l.N = 2
	largest, n := l.Largest()
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, largest.Count())
	assert.False(t, largest.At(0, 0))
	assert.True(t, largest.At(5, 3))

	empty, n := NewLabels(3, 3).Largest()
	assert.Zero(t, n)
	assert.Zero(t, empty.Count())
}

func TestLargestTieKeepsFirst(t *testing.T) {
	l := labelsFromRows("1...2")
	l.N = 2
	largest, n := l.Largest()
	assert.Equal(t, 1, n)
	assert.True(t, largest.At(0, 0))
	assert.False(t, largest.At(4, 0))
}

func TestBand(t *testing.T) {
	b := NewBinary(21, 21)
	for i := range b.Pix {
		b.Pix[i] = true
	}
	band := b.Band(geometry.Point{X: 10, Y: 10}, 3, 5)
	assert.False(t, band.At(10, 10))
	assert.False(t, band.At(12, 10), "d=2 is inside the inner circle")
	assert.True(t, band.At(13, 10), "inner bound is inclusive")
	assert.True(t, band.At(14, 10))
	assert.False(t, band.At(15, 10), "outer bound is exclusive")
	assert.True(t, b.At(10, 10), "source mask is untouched")
}

func TestClearDisk(t *testing.T) {
	l := NewLabels(9, 9)
	for i := range l.Pix {
		l.Pix[i] = 1
	}
	l.N = 1
	cleared := l.ClearDisk(geometry.Point{X: 4, Y: 4}, 2)
	assert.Zero(t, cleared.At(4, 4))
	assert.Zero(t, cleared.At(5, 5))
	assert.EqualValues(t, 1, cleared.At(6, 4))
	assert.EqualValues(t, 1, l.At(4, 4))
	assert.Equal(t, 9, 81-cleared.Binary().Count())
}
