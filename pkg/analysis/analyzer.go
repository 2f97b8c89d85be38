// Package analysis runs the spheroid expansion pipeline: spheroid detection,
// stain masking, nucleus segmentation and the radial profile around the
// spheroid, one image at a time or over a whole batch.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/config"
	"spheroidexpansion/pkg/channel"
	"spheroidexpansion/pkg/mask"
	"spheroidexpansion/pkg/regions"
	"spheroidexpansion/pkg/results"
	"spheroidexpansion/pkg/segmentation"
	"spheroidexpansion/pkg/sholl"
	"spheroidexpansion/pkg/source"
	"spheroidexpansion/pkg/spheroid"
	"spheroidexpansion/pkg/threshold"
	"spheroidexpansion/pkg/visualization"
)

// Pipeline stages reported in failures.
const (
	StageLoad     = "load"
	StageSpheroid = "spheroid"
	StageStain    = "stain"
	StageNuclei   = "nuclei"
	StageSholl    = "sholl"
)

// Filters is the image preprocessing and mask shape analysis the pipeline
// relies on.
type Filters interface {
	Median(p models.Plane, radius int) (models.Plane, error)
	GaussianBlur(p models.Plane, sigma float64) (models.Plane, error)
	SubtractBackground(p models.Plane, radius int) (models.Plane, error)
	Combine(a, b models.Plane, op channel.CombineOp) (models.Plane, error)

	spheroid.Shapes
}

// Params holds the analysis parameters, with every name already resolved.
type Params struct {
	// Spheroid detection
	SpheroidMethod threshold.Method
	SpheroidMedian int
	Combine        channel.CombineOp

	// Stain mask
	StainBackground int
	StainMedian     int
	StainBlur       float64
	StainMethod     threshold.Method

	// Nuclei, areas in square microns
	NucleusMinArea        float64
	NucleusMaxArea        float64
	Segmentation          segmentation.Params
	ExcludeInsideSpheroid bool

	// Radial profile
	StepMicrons  float64
	FinalAnnulus sholl.FinalAnnulusPolicy

	// OutputDir receives overlays, plots and intermediary masks
	OutputDir               string
	SaveOverlay             bool
	SavePlots               bool
	SaveIntermediaryResults bool
}

// ParamsFromConfig resolves the analysis parameters of a validated config.
func ParamsFromConfig(cfg *config.Config, outputDir string) (Params, error) {
	spheroidMethod, err := threshold.ParseMethod(cfg.Spheroid.ThresholdMethod)
	if err != nil {
		return Params{}, err
	}
	stainMethod, err := threshold.ParseMethod(cfg.Stain.ThresholdMethod)
	if err != nil {
		return Params{}, err
	}
	op, err := channel.ParseCombineOp(cfg.Spheroid.Combine)
	if err != nil {
		return Params{}, err
	}
	policy, err := sholl.ParsePolicy(cfg.Sholl.FinalAnnulus)
	if err != nil {
		return Params{}, err
	}

	return Params{
		SpheroidMethod:          spheroidMethod,
		SpheroidMedian:          cfg.Spheroid.MedianRadius,
		Combine:                 op,
		StainBackground:         cfg.Stain.BackgroundRadius,
		StainMedian:             cfg.Stain.MedianRadius,
		StainBlur:               cfg.Stain.BlurSigma,
		StainMethod:             stainMethod,
		NucleusMinArea:          cfg.Nuclei.MinArea,
		NucleusMaxArea:          cfg.Nuclei.MaxArea,
		Segmentation:            cfg.SegmentationParams(),
		ExcludeInsideSpheroid:   cfg.Nuclei.ExcludeInsideSpheroid,
		StepMicrons:             cfg.Sholl.StepMicrons,
		FinalAnnulus:            policy,
		OutputDir:               outputDir,
		SaveOverlay:             cfg.Output.SaveOverlay,
		SavePlots:               cfg.Output.SavePlots,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
	}, nil
}

// Result is everything measured on one image.
type Result struct {
	Name      string
	Geometry  spheroid.Geometry
	StainMask mask.Binary
	Nuclei    *regions.Population
	Distances []float64
	Annuli    []sholl.Annulus
	Profile   sholl.Profile

	Summary     results.ImageSummary
	ProfileRows []results.ProfileRow
	NucleusRows []results.NucleusRecord
}

// Analyzer processes single images. It keeps no per-image state and is safe
// for concurrent use when its collaborators are.
type Analyzer struct {
	params    Params
	filters   Filters
	segmenter segmentation.Segmenter
	log       *logrus.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(params Params, filters Filters, segmenter segmentation.Segmenter, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{params: params, filters: filters, segmenter: segmenter, log: log}
}

func fail(name, stage string, err error) error {
	return results.Failure{ImageName: name, Stage: stage, Err: err}
}

// Analyze runs the pipeline on one loaded image. Errors are results.Failure
// values naming the stage that failed.
func (a *Analyzer) Analyze(ctx context.Context, name string, img source.Images, cal calibration.Calibration) (*Result, error) {
	entry := a.log.WithField("image", name)
	res := &Result{Name: name}

	// Step 1: spheroid mask and circle
	spheroidMask, err := a.spheroidMask(img)
	if err != nil {
		return nil, fail(name, StageSpheroid, err)
	}
	if res.Geometry, err = spheroid.FitCircle(spheroidMask, cal, a.filters); err != nil {
		return nil, fail(name, StageSpheroid, err)
	}
	entry.WithFields(logrus.Fields{
		"centerX":   res.Geometry.Center.X,
		"centerY":   res.Geometry.Center.Y,
		"radius_um": res.Geometry.RadiusMicrons(cal),
		"fitRadius": res.Geometry.FitRadius,
	}).Debug("Spheroid fitted")

	// Step 2: stain mask
	if res.StainMask, err = a.stainMask(img.Stain); err != nil {
		return nil, fail(name, StageStain, err)
	}

	// Step 3: nuclei
	labels, err := a.segmenter.Segment(ctx, img.Nucleus, a.params.Segmentation)
	if err != nil {
		return nil, fail(name, StageNuclei, err)
	}
	if labels.Width != img.Nucleus.Width || labels.Height != img.Nucleus.Height {
		return nil, fail(name, StageNuclei, fmt.Errorf("label image is %dx%d, want %dx%d",
			labels.Width, labels.Height, img.Nucleus.Width, img.Nucleus.Height))
	}
	if a.params.ExcludeInsideSpheroid {
		labels = labels.ClearDisk(res.Geometry.Center, res.Geometry.Radius)
	}
	detected := regions.FromLabels(labels, cal)
	res.Nuclei = detected.FilterBySize(a.params.NucleusMinArea, a.params.NucleusMaxArea)
	entry.WithFields(logrus.Fields{
		"detected": detected.Len(),
		"kept":     res.Nuclei.Len(),
	}).Debug("Nuclei filtered by size")

	// Step 4: distances and radial profile
	res.Distances = sholl.Distances(res.Nuclei.Regions(), res.Geometry.Center, cal)
	outer := sholl.OuterBound(res.Geometry.Center, img.Stain.Width, img.Stain.Height)
	res.Annuli, err = sholl.Partition(res.Geometry.Center, res.Geometry.Radius, cal.ToPixels(a.params.StepMicrons), outer, a.params.FinalAnnulus)
	if err != nil {
		return nil, fail(name, StageSholl, err)
	}
	res.Profile = sholl.Measure(res.StainMask, res.Annuli, res.Distances, cal)
	res.Profile.CountIntersections(spheroidMask)

	// Step 5: result rows
	stainArea := cal.AreaOf(res.StainMask.Count())
	res.Summary = results.Summarize(name, res.Geometry, cal, stainArea, res.Nuclei.Len(), res.Distances)
	res.ProfileRows = results.Profile(res.Profile.Measurements, cal)
	res.NucleusRows = results.Nuclei(name, res.Nuclei, res.Distances)

	entry.WithFields(logrus.Fields{
		"radius_um":     res.Summary.SpheroidRadiusMicrons,
		"stainArea_um2": stainArea,
		"nuclei":        res.Nuclei.Len(),
		"annuli":        len(res.Annuli),
		"inside":        res.Profile.Inside,
		"beyond":        res.Profile.Beyond,
	}).Info("Image analyzed")

	a.saveOutputs(entry, res, img, spheroidMask, labels)
	return res, nil
}

// spheroidMask combines both channels, smooths and thresholds them.
func (a *Analyzer) spheroidMask(img source.Images) (mask.Binary, error) {
	combined, err := a.filters.Combine(img.Nucleus, img.Stain, a.params.Combine)
	if err != nil {
		return mask.Binary{}, fmt.Errorf("combining channels: %w", err)
	}
	if a.params.SpheroidMedian > 0 {
		if combined, err = a.filters.Median(combined, a.params.SpheroidMedian); err != nil {
			return mask.Binary{}, fmt.Errorf("median filter: %w", err)
		}
	}
	m, _ := threshold.Apply(combined, a.params.SpheroidMethod)
	return m, nil
}

func (a *Analyzer) stainMask(p models.Plane) (mask.Binary, error) {
	var err error
	if a.params.StainBackground > 0 {
		if p, err = a.filters.SubtractBackground(p, a.params.StainBackground); err != nil {
			return mask.Binary{}, fmt.Errorf("background subtraction: %w", err)
		}
	}
	if a.params.StainMedian > 0 {
		if p, err = a.filters.Median(p, a.params.StainMedian); err != nil {
			return mask.Binary{}, fmt.Errorf("median filter: %w", err)
		}
	}
	if a.params.StainBlur > 0 {
		if p, err = a.filters.GaussianBlur(p, a.params.StainBlur); err != nil {
			return mask.Binary{}, fmt.Errorf("gaussian blur: %w", err)
		}
	}
	m, _ := threshold.Apply(p, a.params.StainMethod)
	return m, nil
}

// saveOutputs writes the optional images of one analyzed image. Failures
// here are logged and never fail the image.
func (a *Analyzer) saveOutputs(entry *logrus.Entry, res *Result, img source.Images, spheroidMask mask.Binary, labels mask.Labels) {
	if a.params.OutputDir == "" {
		return
	}

	if a.params.SaveIntermediaryResults {
		dir := filepath.Join(a.params.OutputDir, "intermediary")
		dumps := []struct {
			file string
			img  image.Image
		}{
			{res.Name + "_spheroid_mask.tif", binaryImage(spheroidMask)},
			{res.Name + "_stain_mask.tif", binaryImage(res.StainMask)},
			{res.Name + "_nuclei_labels.tif", labelImage(res.Nuclei.Labels(labels.Width, labels.Height))},
		}
		for _, d := range dumps {
			if err := source.SaveImage(filepath.Join(dir, d.file), d.img); err != nil {
				entry.WithError(err).Warnf("Failed to save %s", d.file)
			}
		}
	}

	if a.params.SaveOverlay {
		overlay := visualization.NewOverlay(img.Nucleus)
		scene := visualization.Scene{
			Stain:          res.StainMask,
			Nuclei:         res.Nuclei.Labels(img.Nucleus.Width, img.Nucleus.Height),
			SpheroidCenter: res.Geometry.Center,
			SpheroidRadius: res.Geometry.Radius,
			Annuli:         res.Annuli,
		}
		if err := overlay.Save(scene, filepath.Join(a.params.OutputDir, res.Name+"_overlay.tif")); err != nil {
			entry.WithError(err).Warn("Failed to save overlay")
		}
	}

	if a.params.SavePlots {
		if _, err := results.PlotProfile(filepath.Join(a.params.OutputDir, "plots"), res.Name, res.ProfileRows); err != nil {
			entry.WithError(err).Warn("Failed to save profile plots")
		}
	}
}

func binaryImage(b mask.Binary) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for i, v := range b.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

func labelImage(l mask.Labels) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, l.Width, l.Height))
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(l.At(x, y))})
		}
	}
	return img
}

// FailureOf extracts the failure carried by err, attributing unknown errors
// to stage.
func FailureOf(name, stage string, err error) results.Failure {
	var f results.Failure
	if errors.As(err, &f) {
		return f
	}
	return results.Failure{ImageName: name, Stage: stage, Err: err}
}
