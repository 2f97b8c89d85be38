package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/results"
	"spheroidexpansion/pkg/source"
)

var channels = source.Channels{Nucleus: "_C1", Stain: "_C2"}

func writeSet(t *testing.T, dir, name string, imgs source.Images) {
	t.Helper()
	require.NoError(t, source.SaveImage(filepath.Join(dir, name+"_C1.png"), source.PlaneToImage(imgs.Nucleus)))
	require.NoError(t, source.SaveImage(filepath.Join(dir, name+"_C2.png"), source.PlaneToImage(imgs.Stain)))
}

func batchInput(t *testing.T) string {
	dir := t.TempDir()
	writeSet(t, dir, "spheroid_a", spheroidImages())
	writeSet(t, dir, "spheroid_b", spheroidImages())
	writeSet(t, dir, "blank", source.Images{Nucleus: models.NewPlane(size, size), Stain: models.NewPlane(size, size)})
	return dir
}

func TestRunnerIsolatesFailures(t *testing.T) {
	input := batchInput(t)
	sets, unpaired, err := source.Discover(input, channels)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Empty(t, unpaired)

	out := t.TempDir()
	sink, err := results.NewTSVSink(out)
	require.NoError(t, err)

	analyzer := NewAnalyzer(testParams(), &passthrough{}, fixedSegmenter{labels: nucleusLabels()}, quietLogger())
	runner := NewRunner(analyzer, sink, 2, quietLogger())
	batch, err := runner.Run(context.Background(), sets, calibration.Identity())
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	require.Len(t, batch.Summaries, 2)
	assert.Equal(t, "spheroid_a", batch.Summaries[0].ImageName)
	assert.Equal(t, "spheroid_b", batch.Summaries[1].ImageName)
	a, b := batch.Summaries[0], batch.Summaries[1]
	a.ImageName, b.ImageName = "", ""
	assert.Equal(t, a, b)
	assert.Len(t, batch.Profiles, 2)

	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "blank", batch.Failures[0].ImageName)
	assert.Equal(t, StageSpheroid, batch.Failures[0].Stage)

	// failed images write no profile
	_, err = os.Stat(filepath.Join(out, "blank_profile.tsv"))
	assert.True(t, os.IsNotExist(err))
	for _, name := range []string{"spheroid_a_profile.tsv", "spheroid_b_nuclei.tsv", "summary.tsv", "failures.tsv"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	summary, err := os.ReadFile(filepath.Join(out, "summary.tsv"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(summary), "\n"))
}

func TestRunnerRecordsLoadFailures(t *testing.T) {
	sets := []source.ImageSet{{Name: "missing", Nucleus: []string{"/nonexistent_C1.tif"}, Stain: []string{"/nonexistent_C2.tif"}}}
	sink := &memorySink{}
	analyzer := NewAnalyzer(testParams(), &passthrough{}, fixedSegmenter{labels: nucleusLabels()}, quietLogger())

	batch, err := NewRunner(analyzer, sink, 1, quietLogger()).Run(context.Background(), sets, calibration.Identity())
	require.NoError(t, err)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, StageLoad, batch.Failures[0].Stage)
	assert.Equal(t, batch.Failures, sink.failures)
	assert.Empty(t, sink.summaries)
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	sets, _, err := source.Discover(batchInput(t), channels)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memorySink{}
	analyzer := NewAnalyzer(testParams(), &passthrough{}, fixedSegmenter{labels: nucleusLabels()}, quietLogger())
	batch, err := NewRunner(analyzer, sink, 2, quietLogger()).Run(ctx, sets, calibration.Identity())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch.Summaries)
	assert.Empty(t, sink.summaries)
}

func TestCalibrate(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "a"+source.SidecarSuffix)
	require.NoError(t, os.WriteFile(sidecar, []byte("pixelWidth: 0.5\npixelDepth: 2\n"), 0644))
	sets := []source.ImageSet{{Name: "a", Sidecar: sidecar}, {Name: "b"}}

	cal := Calibrate(sets, calibration.Override{}, quietLogger())
	assert.Equal(t, 0.5, cal.PixelWidth)
	assert.Equal(t, 2.0, cal.PixelDepth)

	cal = Calibrate(sets, calibration.Override{PixelWidth: 0.65}, quietLogger())
	assert.Equal(t, 0.65, cal.PixelWidth)

	// broken hints fall back to identity
	require.NoError(t, os.WriteFile(sidecar, []byte("pixelWidth: [\n"), 0644))
	assert.Equal(t, calibration.Identity(), Calibrate(sets, calibration.Override{}, quietLogger()))
	assert.Equal(t, calibration.Identity(), Calibrate(nil, calibration.Override{}, quietLogger()))
}

// memorySink keeps everything written to it.
type memorySink struct {
	summaries []results.ImageSummary
	failures  []results.Failure
}

func (m *memorySink) WriteProfile(string, []results.ProfileRow) error { return nil }
func (m *memorySink) WriteNuclei(string, []results.NucleusRecord) error { return nil }
func (m *memorySink) WriteSummary(s results.ImageSummary) error {
	m.summaries = append(m.summaries, s)
	return nil
}
func (m *memorySink) WriteFailure(f results.Failure) error {
	m.failures = append(m.failures, f)
	return nil
}
func (m *memorySink) Close() error { return nil }
