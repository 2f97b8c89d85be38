// Package mask holds binary and labeled images.
package mask

import (
	"image"

	"spheroidexpansion/pkg/geometry"
)

// Binary is a foreground/background image stored in row-major order.
type Binary struct {
	Width  int
	Height int
	Pix    []bool
}

// NewBinary allocates an all-background mask.
func NewBinary(width, height int) Binary {
	return Binary{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// Bounds returns the image rectangle covered by the mask.
func (b Binary) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// At reports whether (x, y) is foreground. Out-of-frame positions are background.
func (b Binary) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Pix[y*b.Width+x]
}

// Set marks (x, y) as foreground or background.
func (b Binary) Set(x, y int, v bool) {
	b.Pix[y*b.Width+x] = v
}

// Count returns the number of foreground pixels.
func (b Binary) Count() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (b Binary) Clone() Binary {
	out := Binary{Width: b.Width, Height: b.Height, Pix: make([]bool, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// Band returns a copy of b restricted to the annulus inner <= d < outer around
// center: everything inside the inner circle and outside the outer circle is cleared.
func (b Binary) Band(center geometry.Point, inner, outer float64) Binary {
	out := NewBinary(b.Width, b.Height)
	in2, out2 := inner*inner, outer*outer
	for y := 0; y < b.Height; y++ {
		dy := float64(y) - center.Y
		for x := 0; x < b.Width; x++ {
			i := y*b.Width + x
			if !b.Pix[i] {
				continue
			}
			dx := float64(x) - center.X
			d2 := dx*dx + dy*dy
			out.Pix[i] = d2 >= in2 && d2 < out2
		}
	}
	return out
}

// Labels is an image of integer object labels; 0 is background.
type Labels struct {
	Width  int
	Height int
	Pix    []int32

	// N is the largest label present
	N int
}

// NewLabels allocates an empty label image.
func NewLabels(width, height int) Labels {
	return Labels{Width: width, Height: height, Pix: make([]int32, width*height)}
}

// At returns the label at (x, y).
func (l Labels) At(x, y int) int32 {
	return l.Pix[y*l.Width+x]
}

// ClearDisk returns a copy with every pixel closer than radius to center set to background.
func (l Labels) ClearDisk(center geometry.Point, radius float64) Labels {
	out := Labels{Width: l.Width, Height: l.Height, Pix: make([]int32, len(l.Pix)), N: l.N}
	copy(out.Pix, l.Pix)
	r2 := radius * radius
	for y := 0; y < l.Height; y++ {
		dy := float64(y) - center.Y
		for x := 0; x < l.Width; x++ {
			dx := float64(x) - center.X
			if dx*dx+dy*dy < r2 {
				out.Pix[y*l.Width+x] = 0
			}
		}
	}
	return out
}

// Binary returns the foreground of the label image.
func (l Labels) Binary() Binary {
	out := NewBinary(l.Width, l.Height)
	for i, v := range l.Pix {
		out.Pix[i] = v != 0
	}
	return out
}

// Sizes returns the pixel count of every label, indexed by label.
func (l Labels) Sizes() []int {
	sizes := make([]int, l.N+1)
	for _, v := range l.Pix {
		if v > 0 && int(v) <= l.N {
			sizes[v]++
		}
	}
	return sizes
}
