package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var (
	profileHeader = []string{"circleIndex", "radius_um", "outerRadius_um", "stainArea_um2", "nucleusCount", "intersections"}
	nucleiHeader  = []string{"label", "area_um2", "distance_um", "x", "y"}
	summaryHeader = []string{"imageName", "spheroidArea_um2", "spheroidRadius_um", "stainArea_um2", "nucleusCount",
		"meanNucleusDistance_um", "medianNucleusDistance_um"}
	failureHeader = []string{"imageName", "stage", "error"}
)

// TSVSink writes tab-separated tables into a directory: one profile and one
// nuclei table per image plus the batch-wide summary.tsv and failures.tsv.
type TSVSink struct {
	dir string

	mu       sync.Mutex
	summary  *tsvFile
	failures *tsvFile
}

type tsvFile struct {
	f *os.File
	w *csv.Writer
}

// NewTSVSink creates the output directory if needed and starts summary.tsv,
// so a batch without a single success still has its summary table.
func NewTSVSink(dir string) (*TSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	summary, err := createTSV(filepath.Join(dir, "summary.tsv"), summaryHeader)
	if err != nil {
		return nil, fmt.Errorf("creating summary table: %w", err)
	}
	summary.w.Flush()
	if err := summary.w.Error(); err != nil {
		summary.f.Close()
		return nil, fmt.Errorf("creating summary table: %w", err)
	}
	return &TSVSink{dir: dir, summary: summary}, nil
}

func createTSV(path string, header []string) (*tsvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &tsvFile{f: f, w: w}, nil
}

func (t *tsvFile) write(record []string) error {
	if err := t.w.Write(record); err != nil {
		return err
	}
	t.w.Flush()
	return t.w.Error()
}

func (t *tsvFile) close() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}

func writeTable(path string, header []string, records [][]string) error {
	t, err := createTSV(path, header)
	if err != nil {
		return err
	}
	if err := t.w.WriteAll(records); err != nil {
		t.f.Close()
		return err
	}
	return t.close()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ProfilePath returns the profile table path of an image.
func (s *TSVSink) ProfilePath(name string) string {
	return filepath.Join(s.dir, name+"_profile.tsv")
}

// WriteProfile writes <name>_profile.tsv.
func (s *TSVSink) WriteProfile(name string, rows []ProfileRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{strconv.Itoa(r.CircleIndex), ftoa(r.RadiusMicrons), ftoa(r.OuterRadiusMicrons),
			ftoa(r.StainAreaMicrons2), strconv.Itoa(r.NucleusCount), strconv.Itoa(r.Intersections)}
	}
	if err := writeTable(s.ProfilePath(name), profileHeader, records); err != nil {
		return fmt.Errorf("writing profile of %s: %w", name, err)
	}
	return nil
}

// WriteNuclei writes <name>_nuclei.tsv.
func (s *TSVSink) WriteNuclei(name string, recs []NucleusRecord) error {
	records := make([][]string, len(recs))
	for i, r := range recs {
		records[i] = []string{strconv.Itoa(r.Label), ftoa(r.AreaMicrons2), ftoa(r.DistanceMicrons), ftoa(r.X), ftoa(r.Y)}
	}
	if err := writeTable(filepath.Join(s.dir, name+"_nuclei.tsv"), nucleiHeader, records); err != nil {
		return fmt.Errorf("writing nuclei of %s: %w", name, err)
	}
	return nil
}

// WriteSummary appends a row to summary.tsv.
func (s *TSVSink) WriteSummary(sum ImageSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary == nil {
		return fmt.Errorf("summary table of %s is closed", s.dir)
	}
	return s.summary.write([]string{sum.ImageName, ftoa(sum.SpheroidAreaMicrons2), ftoa(sum.SpheroidRadiusMicrons),
		ftoa(sum.StainAreaMicrons2), strconv.Itoa(sum.NucleusCount), ftoa(sum.MeanNucleusDistance), ftoa(sum.MedianNucleusDistance)})
}

// WriteFailure appends a row to failures.tsv.
func (s *TSVSink) WriteFailure(f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures == nil {
		t, err := createTSV(filepath.Join(s.dir, "failures.tsv"), failureHeader)
		if err != nil {
			return fmt.Errorf("creating failure table: %w", err)
		}
		s.failures = t
	}
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return s.failures.write([]string{f.ImageName, f.Stage, msg})
}

// Close flushes and closes the batch tables.
func (s *TSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, t := range []*tsvFile{s.summary, s.failures} {
		if t == nil {
			continue
		}
		if err := t.close(); err != nil && first == nil {
			first = err
		}
	}
	s.summary, s.failures = nil, nil
	return first
}
