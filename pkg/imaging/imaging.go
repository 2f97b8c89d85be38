// Package imaging wraps the OpenCV operations of the pipeline: the filters
// that prepare channel planes before thresholding and the shape analysis of
// the resulting masks.
package imaging

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/channel"
)

// OpenCV implements the preprocessing filters on top of gocv.
type OpenCV struct{}

// Median applies a median filter of the given pixel radius.
//
// Kernels wider than 5 are only supported by OpenCV on 8-bit data, so large
// radii are computed on a copy rescaled to 0..255 and mapped back.
func (OpenCV) Median(p models.Plane, radius int) (models.Plane, error) {
	if radius < 1 {
		return p.Clone(), nil
	}
	ksize := 2*radius + 1

	if ksize <= 5 {
		src := toMat(p)
		defer src.Close()
		dst := gocv.NewMat()
		defer dst.Close()
		if err := gocv.MedianBlur(src, &dst, ksize); err != nil {
			return models.Plane{}, fmt.Errorf("median filter: %w", err)
		}
		return fromMat(dst, p.Width, p.Height)
	}

	min, max := p.Range()
	if max <= min {
		return p.Clone(), nil
	}
	scale := 255 / (max - min)
	src := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV8U)
	defer src.Close()
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			src.SetUCharAt(y, x, uint8((p.At(x, y)-min)*scale+0.5))
		}
	}

	dst := gocv.NewMat()
	defer dst.Close()
	if err := gocv.MedianBlur(src, &dst, ksize); err != nil {
		return models.Plane{}, fmt.Errorf("median filter: %w", err)
	}
	if dst.Empty() {
		return models.Plane{}, fmt.Errorf("median filter produced no output")
	}

	out := models.NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			out.Set(x, y, float64(dst.GetUCharAt(y, x))/scale+min)
		}
	}
	return out, nil
}

// GaussianBlur smooths the plane with the given standard deviation in pixels.
func (OpenCV) GaussianBlur(p models.Plane, sigma float64) (models.Plane, error) {
	if sigma <= 0 {
		return p.Clone(), nil
	}
	src := toMat(p)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	k := int(6*sigma) | 1
	if err := gocv.GaussianBlur(src, &dst, image.Point{X: k, Y: k}, sigma, sigma, gocv.BorderDefault); err != nil {
		return models.Plane{}, fmt.Errorf("gaussian blur: %w", err)
	}
	return fromMat(dst, p.Width, p.Height)
}

// SubtractBackground removes slowly varying background with a morphological
// top-hat of the given radius.
func (OpenCV) SubtractBackground(p models.Plane, radius int) (models.Plane, error) {
	if radius < 1 {
		return p.Clone(), nil
	}
	src := toMat(p)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 2*radius + 1, Y: 2*radius + 1})
	defer kernel.Close()

	if err := gocv.MorphologyEx(src, &dst, gocv.MorphTophat, kernel); err != nil {
		return models.Plane{}, fmt.Errorf("top-hat: %w", err)
	}
	return fromMat(dst, p.Width, p.Height)
}

// Combine merges two same-sized channel planes.
func (OpenCV) Combine(a, b models.Plane, op channel.CombineOp) (models.Plane, error) {
	if !a.SameSize(b) {
		return models.Plane{}, fmt.Errorf("channel sizes differ: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	ma := toMat(a)
	defer ma.Close()
	mb := toMat(b)
	defer mb.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	var err error
	switch op {
	case channel.Multiply:
		err = gocv.Multiply(ma, mb, &dst)
	default:
		err = gocv.Add(ma, mb, &dst)
	}
	if err != nil {
		return models.Plane{}, fmt.Errorf("%s channels: %w", op, err)
	}
	return fromMat(dst, a.Width, a.Height)
}

func toMat(p models.Plane) gocv.Mat {
	m := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV32F)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			m.SetFloatAt(y, x, float32(p.At(x, y)))
		}
	}
	return m
}

func fromMat(m gocv.Mat, width, height int) (models.Plane, error) {
	if m.Empty() || m.Rows() != height || m.Cols() != width {
		return models.Plane{}, fmt.Errorf("unexpected filter output %dx%d", m.Cols(), m.Rows())
	}
	out := models.NewPlane(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Set(x, y, float64(m.GetFloatAt(y, x)))
		}
	}
	return out, nil
}
