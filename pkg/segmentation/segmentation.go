// Package segmentation detects nuclei in an intensity plane and returns them
// as a label image.
package segmentation

import (
	"context"
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/mask"
)

// Params are the detection hyperparameters passed to every segmenter.
type Params struct {
	// PercentileLow and PercentileHigh clip intensities before normalization, in percent
	PercentileLow  float64
	PercentileHigh float64

	// ProbThreshold is the minimum normalized response of an object pixel
	ProbThreshold float64

	// OverlapThreshold is the largest bounding box IoU two objects may share
	OverlapThreshold float64
}

// DefaultParams returns the detection settings of the reference pipeline.
func DefaultParams() Params {
	return Params{
		PercentileLow:    0.2,
		PercentileHigh:   99.8,
		ProbThreshold:    0.6,
		OverlapThreshold: 0.25,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.PercentileLow < 0 || p.PercentileHigh > 100 || p.PercentileLow >= p.PercentileHigh {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100, got %g and %g", p.PercentileLow, p.PercentileHigh)
	}
	if p.ProbThreshold < 0 || p.ProbThreshold > 1 {
		return fmt.Errorf("probability threshold must be in [0, 1], got %g", p.ProbThreshold)
	}
	if p.OverlapThreshold < 0 || p.OverlapThreshold > 1 {
		return fmt.Errorf("overlap threshold must be in [0, 1], got %g", p.OverlapThreshold)
	}
	return nil
}

// Segmenter turns a nucleus channel into labeled objects.
type Segmenter interface {
	Segment(ctx context.Context, p models.Plane, params Params) (mask.Labels, error)
}

// Labeler assigns a label to every 8-connected component of a mask.
type Labeler interface {
	Label(b mask.Binary) (mask.Labels, error)
}

// Local segments nuclei in-process: percentile normalization, a probability
// threshold on the normalized response, 8-connected labeling and overlap
// suppression of the resulting candidates.
type Local struct {
	Labeler Labeler
}

// Segment implements Segmenter.
func (s Local) Segment(ctx context.Context, p models.Plane, params Params) (mask.Labels, error) {
	if s.Labeler == nil {
		return mask.Labels{}, fmt.Errorf("local segmentation needs a labeler")
	}
	if err := params.Validate(); err != nil {
		return mask.Labels{}, err
	}
	if err := ctx.Err(); err != nil {
		return mask.Labels{}, err
	}

	norm := Normalize(p, params.PercentileLow, params.PercentileHigh)
	fg := mask.NewBinary(p.Width, p.Height)
	for i, v := range norm.Data {
		fg.Pix[i] = v > params.ProbThreshold
	}

	labels, err := s.Labeler.Label(fg)
	if err != nil {
		return mask.Labels{}, fmt.Errorf("labeling candidates: %w", err)
	}
	return suppressOverlaps(labels, params.OverlapThreshold), nil
}

// Normalize rescales p so the low percentile maps to 0 and the high
// percentile to 1, clamping everything outside.
func Normalize(p models.Plane, low, high float64) models.Plane {
	out := models.NewPlane(p.Width, p.Height)
	if len(p.Data) == 0 {
		return out
	}

	sorted := make([]float64, len(p.Data))
	copy(sorted, p.Data)
	sort.Float64s(sorted)
	lo := stat.Quantile(low/100, stat.Empirical, sorted, nil)
	hi := stat.Quantile(high/100, stat.Empirical, sorted, nil)
	if hi <= lo {
		return out
	}

	for i, v := range p.Data {
		n := (v - lo) / (hi - lo)
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		out.Data[i] = n
	}
	return out
}

// suppressOverlaps removes the smaller of every pair of objects whose
// bounding boxes overlap by more than threshold (intersection over union)
// and relabels the survivors densely in their original order.
func suppressOverlaps(l mask.Labels, threshold float64) mask.Labels {
	if l.N < 2 || threshold >= 1 {
		return l
	}

	boxes := make([]image.Rectangle, l.N+1)
	sizes := l.Sizes()
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			v := l.Pix[y*l.Width+x]
			if v == 0 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if boxes[v].Empty() {
				boxes[v] = px
			} else {
				boxes[v] = boxes[v].Union(px)
			}
		}
	}

	order := make([]int, 0, l.N)
	for i := 1; i <= l.N; i++ {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool { return sizes[order[a]] > sizes[order[b]] })

	suppressed := make([]bool, l.N+1)
	for i, a := range order {
		if suppressed[a] {
			continue
		}
		for _, b := range order[i+1:] {
			if !suppressed[b] && iou(boxes[a], boxes[b]) > threshold {
				suppressed[b] = true
			}
		}
	}

	remap := make([]int32, l.N+1)
	var next int32
	for i := 1; i <= l.N; i++ {
		if !suppressed[i] {
			next++
			remap[i] = next
		}
	}
	out := mask.NewLabels(l.Width, l.Height)
	for i, v := range l.Pix {
		out.Pix[i] = remap[v]
	}
	out.N = int(next)
	return out
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	return float64(ia) / float64(union)
}
