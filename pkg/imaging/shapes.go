package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"spheroidexpansion/pkg/mask"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Label assigns a distinct label to every 8-connected foreground component.
// Labels are renumbered after OpenCV so they are dense, start at 1 and follow
// the raster order of each component's first pixel.
func (OpenCV) Label(b mask.Binary) (mask.Labels, error) {
	if b.Width == 0 || b.Height == 0 {
		return mask.NewLabels(b.Width, b.Height), nil
	}
	src := binaryMat(b)
	defer src.Close()
	labels := gocv.NewMat()
	defer labels.Close()

	gocv.ConnectedComponentsWithParams(src, &labels, 8, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)
	if labels.Empty() || labels.Rows() != b.Height || labels.Cols() != b.Width {
		return mask.Labels{}, fmt.Errorf("unexpected label image %dx%d", labels.Cols(), labels.Rows())
	}

	out := mask.NewLabels(b.Width, b.Height)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			out.Pix[y*b.Width+x] = labels.GetIntAt(y, x)
		}
	}
	return mask.Renumber(out), nil
}

// ExternalContours traces the outer contour of every component of b with no
// chain approximation. Holes are ignored.
func (OpenCV) ExternalContours(b mask.Binary) ([][]image.Point, error) {
	if b.Width == 0 || b.Height == 0 {
		return nil, nil
	}
	src := binaryMat(b)
	defer src.Close()

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()
	return contours.ToPoints(), nil
}

// FillHoles returns b with everything enclosed by an outer contour set to
// foreground.
func (OpenCV) FillHoles(b mask.Binary) (mask.Binary, error) {
	if b.Width == 0 || b.Height == 0 {
		return b.Clone(), nil
	}
	src := binaryMat(b)
	defer src.Close()

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()
	if contours.Size() == 0 {
		return b.Clone(), nil
	}

	filled := src.Clone()
	defer filled.Close()
	if err := gocv.DrawContours(&filled, contours, -1, white, -1); err != nil {
		return mask.Binary{}, fmt.Errorf("filling contours: %w", err)
	}

	out := mask.NewBinary(b.Width, b.Height)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			out.Pix[y*b.Width+x] = filled.GetUCharAt(y, x) != 0
		}
	}
	return out, nil
}

// ConvexHull returns the hull vertices of pts in the order OpenCV reports them.
func (OpenCV) ConvexHull(pts []image.Point) ([]image.Point, error) {
	if len(pts) < 3 {
		out := make([]image.Point, len(pts))
		copy(out, pts)
		return out, nil
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	hull := gocv.NewMat()
	defer hull.Close()

	// indices rather than points keep the vertices exact
	if err := gocv.ConvexHull(pv, &hull, false, false); err != nil {
		return nil, fmt.Errorf("convex hull: %w", err)
	}
	n := hull.Total()
	out := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		idx := int(hull.GetIntAt(i, 0))
		if idx < 0 || idx >= len(pts) {
			return nil, fmt.Errorf("convex hull: index %d out of range", idx)
		}
		out = append(out, pts[idx])
	}
	return out, nil
}

func binaryMat(b mask.Binary) gocv.Mat {
	m := gocv.NewMatWithSize(b.Height, b.Width, gocv.MatTypeCV8U)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			var v uint8
			if b.Pix[y*b.Width+x] {
				v = 255
			}
			m.SetUCharAt(y, x, v)
		}
	}
	return m
}
