// Package visualization renders the measurement overlay of one image: the
// nucleus channel in gray with the stain, nuclei outlines, the spheroid
// circle and the numbered annuli drawn on top.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/geometry"
	"spheroidexpansion/pkg/mask"
	"spheroidexpansion/pkg/sholl"
	"spheroidexpansion/pkg/source"
)

// Overlay colors.
var (
	StainColor    = color.RGBA{G: 255, A: 255}
	NucleusColor  = color.RGBA{R: 255, A: 255}
	SpheroidColor = color.RGBA{G: 255, B: 255, A: 255}
	AnnulusColor  = color.RGBA{R: 255, G: 255, A: 255}
)

// Scene is everything drawn over the base plane. Empty fields are skipped.
type Scene struct {
	Stain          mask.Binary
	Nuclei         mask.Labels
	SpheroidCenter geometry.Point
	SpheroidRadius float64
	Annuli         []sholl.Annulus
}

// Overlay composes scenes over a grayscale base plane.
type Overlay struct {
	// base holds the background intensities
	base models.Plane

	// stainAlpha is the opacity of the stain tint
	stainAlpha float64
}

// NewOverlay creates an overlay over base.
func NewOverlay(base models.Plane) *Overlay {
	return &Overlay{base: base, stainAlpha: 0.4}
}

// Render draws the scene and returns the composite image.
func (o *Overlay) Render(s Scene) *image.RGBA {
	w, h := o.base.Width, o.base.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	lo, hi := o.base.Range()
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := uint8(math.Max(0, math.Min(255, (o.base.At(x, y)-lo)*scale)))
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	if s.Stain.Width == w && s.Stain.Height == h {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if s.Stain.Pix[y*w+x] {
					img.SetRGBA(x, y, blend(img.RGBAAt(x, y), StainColor, o.stainAlpha))
				}
			}
		}
	}

	if s.Nuclei.Width == w && s.Nuclei.Height == h {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if onOutline(s.Nuclei, x, y) {
					img.SetRGBA(x, y, NucleusColor)
				}
			}
		}
	}

	for _, a := range s.Annuli {
		drawCircle(img, a.Center, a.Outer, AnnulusColor)
		label := fmt.Sprintf("%d", a.Index)
		addLabel(img, int(a.Center.X+a.Outer)-7*len(label)-2, int(a.Center.Y)-2, label, AnnulusColor)
	}
	if len(s.Annuli) > 0 {
		drawCircle(img, s.Annuli[0].Center, s.Annuli[0].Inner, AnnulusColor)
	}

	if s.SpheroidRadius > 0 {
		drawCircle(img, s.SpheroidCenter, s.SpheroidRadius, SpheroidColor)
		cx, cy := int(math.Round(s.SpheroidCenter.X)), int(math.Round(s.SpheroidCenter.Y))
		for d := -3; d <= 3; d++ {
			setIn(img, cx+d, cy, SpheroidColor)
			setIn(img, cx, cy+d, SpheroidColor)
		}
	}
	return img
}

// Save renders the scene and writes it as TIFF or PNG, chosen by extension.
func (o *Overlay) Save(s Scene, path string) error {
	return source.SaveImage(path, o.Render(s))
}

func blend(dst, src color.RGBA, alpha float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a)*(1-alpha) + float64(b)*alpha + 0.5)
	}
	return color.RGBA{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 255}
}

// onOutline reports whether (x, y) is labeled and has a 4-neighbour with another label.
func onOutline(l mask.Labels, x, y int) bool {
	v := l.At(x, y)
	if v == 0 {
		return false
	}
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= l.Width || ny >= l.Height || l.At(nx, ny) != v {
			return true
		}
	}
	return false
}

func drawCircle(img *image.RGBA, c geometry.Point, r float64, col color.RGBA) {
	if r <= 0 {
		return
	}
	steps := int(math.Ceil(2 * math.Pi * r * 2))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		setIn(img, int(math.Round(c.X+r*math.Cos(a))), int(math.Round(c.Y+r*math.Sin(a))), col)
	}
}

func setIn(img *image.RGBA, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, col)
	}
}

// addLabel draws text with its baseline at (x, y).
func addLabel(img *image.RGBA, x, y int, label string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(label)
}
