// Package results shapes per-image measurements into output records and
// writes them to tabular sinks, a SQLite store, plots and an HTML report.
package results

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/regions"
	"spheroidexpansion/pkg/sholl"
	"spheroidexpansion/pkg/spheroid"
)

// ProfileRow is one annulus of an image's radial profile. Radii are in microns.
type ProfileRow struct {
	CircleIndex        int     `json:"circle_index"`
	RadiusMicrons      float64 `json:"radius_um"`
	OuterRadiusMicrons float64 `json:"outer_radius_um"`
	StainAreaMicrons2  float64 `json:"stain_area_um2"`
	NucleusCount       int     `json:"nucleus_count"`
	Intersections      int     `json:"intersections"`
}

// ImageSummary is the per-image row of the batch table.
type ImageSummary struct {
	ImageName             string  `json:"image_name"`
	SpheroidAreaMicrons2  float64 `json:"spheroid_area_um2"`
	SpheroidRadiusMicrons float64 `json:"spheroid_radius_um"`
	StainAreaMicrons2     float64 `json:"stain_area_um2"`
	NucleusCount          int     `json:"nucleus_count"`
	MeanNucleusDistance   float64 `json:"mean_nucleus_distance_um"`
	MedianNucleusDistance float64 `json:"median_nucleus_distance_um"`
}

// NucleusRecord describes one retained nucleus.
type NucleusRecord struct {
	ImageName       string  `json:"image_name"`
	Label           int     `json:"label"`
	AreaMicrons2    float64 `json:"area_um2"`
	DistanceMicrons float64 `json:"distance_um"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
}

// Failure records why an image produced no results.
type Failure struct {
	ImageName string
	Stage     string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.ImageName, f.Stage, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Summarize builds the summary row of one image.
func Summarize(name string, g spheroid.Geometry, cal calibration.Calibration, stainArea float64, nucleusCount int, distances []float64) ImageSummary {
	s := ImageSummary{
		ImageName:             name,
		SpheroidAreaMicrons2:  g.Area,
		SpheroidRadiusMicrons: g.RadiusMicrons(cal),
		StainAreaMicrons2:     stainArea,
		NucleusCount:          nucleusCount,
	}
	if len(distances) > 0 {
		s.MeanNucleusDistance = stat.Mean(distances, nil)
		s.MedianNucleusDistance = median(distances)
	}
	return s
}

// Profile converts measurements into profile rows, one per annulus, in order.
func Profile(ms []sholl.Measurement, cal calibration.Calibration) []ProfileRow {
	rows := make([]ProfileRow, len(ms))
	for i, m := range ms {
		rows[i] = ProfileRow{
			CircleIndex:        m.Annulus.Index,
			RadiusMicrons:      cal.ToMicrons(m.Annulus.Inner),
			OuterRadiusMicrons: cal.ToMicrons(m.Annulus.Outer),
			StainAreaMicrons2:  m.StainArea,
			NucleusCount:       m.NucleusCount,
			Intersections:      m.Intersections,
		}
	}
	return rows
}

// Nuclei pairs every region of the population with its distance.
func Nuclei(name string, pop *regions.Population, distances []float64) []NucleusRecord {
	recs := make([]NucleusRecord, pop.Len())
	for i := range recs {
		r := pop.At(i)
		recs[i] = NucleusRecord{
			ImageName:    name,
			Label:        r.Label,
			AreaMicrons2: r.Area,
			X:            r.Centroid.X,
			Y:            r.Centroid.Y,
		}
		if i < len(distances) {
			recs[i].DistanceMicrons = distances[i]
		}
	}
	return recs
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Sink receives the results of a batch. Implementations must be safe for
// concurrent use.
type Sink interface {
	WriteProfile(name string, rows []ProfileRow) error
	WriteNuclei(name string, recs []NucleusRecord) error
	WriteSummary(s ImageSummary) error
	WriteFailure(f Failure) error
	Close() error
}

// MultiSink forwards every write to each sink in turn.
type MultiSink []Sink

func (m MultiSink) each(f func(Sink) error) error {
	var first error
	for _, s := range m {
		if err := f(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) WriteProfile(name string, rows []ProfileRow) error {
	return m.each(func(s Sink) error { return s.WriteProfile(name, rows) })
}

func (m MultiSink) WriteNuclei(name string, recs []NucleusRecord) error {
	return m.each(func(s Sink) error { return s.WriteNuclei(name, recs) })
}

func (m MultiSink) WriteSummary(sum ImageSummary) error {
	return m.each(func(s Sink) error { return s.WriteSummary(sum) })
}

func (m MultiSink) WriteFailure(f Failure) error {
	return m.each(func(s Sink) error { return s.WriteFailure(f) })
}

func (m MultiSink) Close() error {
	return m.each(func(s Sink) error { return s.Close() })
}
