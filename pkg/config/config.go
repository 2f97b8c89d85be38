// Package config provides configuration loading and management for spheroidexpansion.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/channel"
		"spheroidexpansion/pkg/segmentation"
	"spheroidexpansion/pkg/sholl"
	"spheroidexpansion/pkg/threshold"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Channel file naming
	Channels struct {
		// NucleusSuffix marks the nucleus channel file of an image, e.g. "_C1"
		NucleusSuffix string `yaml:"nucleusSuffix" toml:"nucleusSuffix"`

		// StainSuffix marks the stain channel file of an image, e.g. "_C2"
		StainSuffix string `yaml:"stainSuffix" toml:"stainSuffix"`
	} `yaml:"channels" toml:"channels"`

	// Spheroid detection parameters
	Spheroid struct {
		// ThresholdMethod is the auto-threshold applied to the combined channels
		ThresholdMethod string `yaml:"thresholdMethod" toml:"thresholdMethod"`

		// MedianRadius is the median filter radius in pixels applied before thresholding
		MedianRadius int `yaml:"medianRadius" toml:"medianRadius"`

		// Combine selects how the two channels are merged: "add" or "multiply"
		Combine string `yaml:"combine" toml:"combine"`
	} `yaml:"spheroid" toml:"spheroid"`

	// Stain channel parameters
	Stain struct {
		// BackgroundRadius is the rolling background radius in pixels
		BackgroundRadius int `yaml:"backgroundRadius" toml:"backgroundRadius"`

		// MedianRadius is the median filter radius in pixels
		MedianRadius int `yaml:"medianRadius" toml:"medianRadius"`

		// BlurSigma applies a gaussian blur before thresholding when positive
		BlurSigma float64 `yaml:"blurSigma" toml:"blurSigma"`

		// ThresholdMethod is the auto-threshold applied to the filtered stain
		ThresholdMethod string `yaml:"thresholdMethod" toml:"thresholdMethod"`
	} `yaml:"stain" toml:"stain"`

	// Nucleus segmentation and filtering parameters
	Nuclei struct {
		// MinArea is the smallest nucleus area kept, in square microns
		MinArea float64 `yaml:"minArea" toml:"minArea"`

		// MaxArea is the largest nucleus area kept, in square microns
		MaxArea float64 `yaml:"maxArea" toml:"maxArea"`

		// PercentileLow is the lower normalization percentile
		PercentileLow float64 `yaml:"percentileLow" toml:"percentileLow"`

		// PercentileHigh is the upper normalization percentile
		PercentileHigh float64 `yaml:"percentileHigh" toml:"percentileHigh"`

		// ProbThreshold is the probability above which a pixel belongs to a nucleus
		ProbThreshold float64 `yaml:"probThreshold" toml:"probThreshold"`

		// OverlapThreshold is the overlap above which the smaller of two nuclei is dropped
		OverlapThreshold float64 `yaml:"overlapThreshold" toml:"overlapThreshold"`

		// ServiceURL points at a remote segmentation service; empty uses the local segmenter
		ServiceURL string `yaml:"serviceURL" toml:"serviceURL"`

		// Timeout bounds one request to the segmentation service
		Timeout time.Duration `yaml:"timeout" toml:"timeout"`

		// ExcludeInsideSpheroid clears nuclei lying within the spheroid disk
		ExcludeInsideSpheroid bool `yaml:"excludeInsideSpheroid" toml:"excludeInsideSpheroid"`
	} `yaml:"nuclei" toml:"nuclei"`

	// Radial profile parameters
	Sholl struct {
		// StepMicrons is the annulus width in microns
		StepMicrons float64 `yaml:"stepMicrons" toml:"stepMicrons"`

		// FinalAnnulus is "clip" or "drop"
		FinalAnnulus string `yaml:"finalAnnulus" toml:"finalAnnulus"`
	} `yaml:"sholl" toml:"sholl"`

	// Calibration overrides; zero keeps the value read from the image metadata
	Calibration struct {
		// PixelWidth in microns per pixel
		PixelWidth float64 `yaml:"pixelWidth" toml:"pixelWidth"`

		// PixelDepth in microns per plane
		PixelDepth float64 `yaml:"pixelDepth" toml:"pixelDepth"`
	} `yaml:"calibration" toml:"calibration"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many images are analyzed concurrently
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`
	} `yaml:"processing" toml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the results directory; empty creates Results_<timestamp>
		Dir string `yaml:"dir" toml:"dir"`

		// SaveOverlay writes a composite overlay image per analyzed image
		SaveOverlay bool `yaml:"saveOverlay" toml:"saveOverlay"`

		// SavePlots writes the radial profile charts per analyzed image
		SavePlots bool `yaml:"savePlots" toml:"savePlots"`

		// SaveIntermediaryResults determines whether to save the intermediate masks
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`

		// SQLitePath enables the SQLite results store when set
		SQLitePath string `yaml:"sqlitePath" toml:"sqlitePath"`

		// HTMLReport writes report.html at the end of the batch
		HTMLReport bool `yaml:"htmlReport" toml:"htmlReport"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`

		// Debug enables debug logging with a text formatter
		Debug bool `yaml:"debug" toml:"debug"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Channels.NucleusSuffix = "_C1"
	cfg.Channels.StainSuffix = "_C2"

	cfg.Spheroid.ThresholdMethod = threshold.Li.String()
	cfg.Spheroid.MedianRadius = 6
	cfg.Spheroid.Combine = channel.Add.String()

	cfg.Stain.BackgroundRadius = 300
	cfg.Stain.MedianRadius = 4
	cfg.Stain.ThresholdMethod = threshold.Triangle.String()

	seg := segmentation.DefaultParams()
	cfg.Nuclei.MinArea = 30
	cfg.Nuclei.MaxArea = 300
	cfg.Nuclei.PercentileLow = seg.PercentileLow
	cfg.Nuclei.PercentileHigh = seg.PercentileHigh
	cfg.Nuclei.ProbThreshold = seg.ProbThreshold
	cfg.Nuclei.OverlapThreshold = seg.OverlapThreshold
	cfg.Nuclei.Timeout = 2 * time.Minute
	cfg.Nuclei.ExcludeInsideSpheroid = true

	cfg.Sholl.StepMicrons = 30
	cfg.Sholl.FinalAnnulus = sholl.Clip.String()

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.SaveOverlay = true
	cfg.Output.SavePlots = true
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.HTMLReport = true
	cfg.Output.Verbose = true

	return cfg
}

// SegmentationParams returns the nucleus segmentation parameters.
func (c *Config) SegmentationParams() segmentation.Params {
	return segmentation.Params{
		PercentileLow:    c.Nuclei.PercentileLow,
		PercentileHigh:   c.Nuclei.PercentileHigh,
		ProbThreshold:    c.Nuclei.ProbThreshold,
		OverlapThreshold: c.Nuclei.OverlapThreshold,
	}
}

// CalibrationOverride returns the configured calibration override.
func (c *Config) CalibrationOverride() calibration.Override {
	return calibration.Override{
		PixelWidth: c.Calibration.PixelWidth,
		PixelDepth: c.Calibration.PixelDepth,
	}
}

// Validate checks every enumerated name and numeric range once, before any
// image is touched.
func (c *Config) Validate() error {
	if c.Channels.NucleusSuffix == "" || c.Channels.StainSuffix == "" {
		return fmt.Errorf("channel suffixes must not be empty")
	}
	if c.Channels.NucleusSuffix == c.Channels.StainSuffix {
		return fmt.Errorf("nucleus and stain suffixes must differ, both are %q", c.Channels.NucleusSuffix)
	}
	if _, err := threshold.ParseMethod(c.Spheroid.ThresholdMethod); err != nil {
		return fmt.Errorf("spheroid: %w", err)
	}
	if _, err := threshold.ParseMethod(c.Stain.ThresholdMethod); err != nil {
		return fmt.Errorf("stain: %w", err)
	}
	if _, err := channel.ParseCombineOp(c.Spheroid.Combine); err != nil {
		return fmt.Errorf("spheroid: %w", err)
	}
	if _, err := sholl.ParsePolicy(c.Sholl.FinalAnnulus); err != nil {
		return fmt.Errorf("sholl: %w", err)
	}
	if c.Spheroid.MedianRadius < 0 || c.Stain.MedianRadius < 0 || c.Stain.BackgroundRadius < 0 || c.Stain.BlurSigma < 0 {
		return fmt.Errorf("filter radii must not be negative")
	}
	if c.Sholl.StepMicrons <= 0 {
		return fmt.Errorf("sholl: step must be positive, got %g", c.Sholl.StepMicrons)
	}
	if c.Nuclei.MinArea < 0 || c.Nuclei.MaxArea < c.Nuclei.MinArea {
		return fmt.Errorf("nuclei: invalid area range [%g, %g]", c.Nuclei.MinArea, c.Nuclei.MaxArea)
	}
	if err := c.SegmentationParams().Validate(); err != nil {
		return fmt.Errorf("nuclei: %w", err)
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing: numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
