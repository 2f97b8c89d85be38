package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spheroidexpansion/pkg/segmentation"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "_C1", cfg.Channels.NucleusSuffix)
	assert.Equal(t, "Li", cfg.Spheroid.ThresholdMethod)
	assert.Equal(t, "Triangle", cfg.Stain.ThresholdMethod)
	assert.Equal(t, "add", cfg.Spheroid.Combine)
	assert.Equal(t, "clip", cfg.Sholl.FinalAnnulus)
	assert.Equal(t, 30.0, cfg.Sholl.StepMicrons)
	assert.Equal(t, segmentation.DefaultParams(), cfg.SegmentationParams())
	assert.GreaterOrEqual(t, cfg.Processing.NumWorkers, 1)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigYAMLKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("sholl:\n  stepMicrons: 50\n  finalAnnulus: drop\nnuclei:\n  timeout: 30s\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50.0, cfg.Sholl.StepMicrons)
	assert.Equal(t, "drop", cfg.Sholl.FinalAnnulus)
	assert.Equal(t, 30*time.Second, cfg.Nuclei.Timeout)
	assert.Equal(t, "Li", cfg.Spheroid.ThresholdMethod)
	assert.Equal(t, 300.0, cfg.Nuclei.MaxArea)
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("[spheroid]\nthresholdMethod = \"Otsu\"\ncombine = \"multiply\"\n\n[calibration]\npixelWidth = 0.65\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Otsu", cfg.Spheroid.ThresholdMethod)
	assert.Equal(t, "multiply", cfg.Spheroid.Combine)
	assert.Equal(t, 0.65, cfg.CalibrationOverride().PixelWidth)
	assert.Zero(t, cfg.CalibrationOverride().PixelDepth)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sholl: [unclosed"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"nested/config.yaml", "nested/config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Stain.BackgroundRadius = 120
			cfg.Output.SQLitePath = "results.db"
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loaded)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown spheroid method": func(c *Config) { c.Spheroid.ThresholdMethod = "Magic" },
		"unknown stain method":    func(c *Config) { c.Stain.ThresholdMethod = "" },
		"unknown combine":         func(c *Config) { c.Spheroid.Combine = "subtract" },
		"unknown policy":          func(c *Config) { c.Sholl.FinalAnnulus = "round" },
		"zero step":               func(c *Config) { c.Sholl.StepMicrons = 0 },
		"inverted area range":     func(c *Config) { c.Nuclei.MinArea, c.Nuclei.MaxArea = 300, 30 },
		"bad percentiles":         func(c *Config) { c.Nuclei.PercentileLow = 99.9 },
		"same suffixes":           func(c *Config) { c.Channels.StainSuffix = c.Channels.NucleusSuffix },
		"no workers":              func(c *Config) { c.Processing.NumWorkers = 0 },
		"negative radius":         func(c *Config) { c.Stain.MedianRadius = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
