package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"spheroidexpansion/pkg/analysis"
	"spheroidexpansion/pkg/config"
	"spheroidexpansion/pkg/imaging"
	"spheroidexpansion/pkg/results"
	"spheroidexpansion/pkg/segmentation"
	"spheroidexpansion/pkg/source"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the two-channel spheroid images")
	outputDir := flag.String("output", "", "Results directory (default: Results_<timestamp> inside the input directory)")
	configPath := flag.String("config", "config.yaml", "Configuration file (.yaml or .toml)")
	createConfig := flag.Bool("create-config", false, "Write the default configuration to -config and exit")
	workers := flag.Int("workers", 0, "Number of images analyzed concurrently (default: from config)")
	pixelWidth := flag.Float64("pixel-width", 0, "Pixel width in microns, overrides image calibration")
	spheroidMethod := flag.String("spheroid-threshold", "", "Spheroid threshold method (Default, Huang, Li, Mean, Otsu, Triangle)")
	stainMethod := flag.String("stain-threshold", "", "Stain threshold method")
	step := flag.Float64("step", 0, "Annulus width in microns")
	segService := flag.String("segmentation-url", "", "Nucleus segmentation service URL (default: local segmentation)")
	verbose := flag.Bool("verbose", false, "Enable info logging")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command line values override the file
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *pixelWidth > 0 {
		cfg.Calibration.PixelWidth = *pixelWidth
	}
	if *spheroidMethod != "" {
		cfg.Spheroid.ThresholdMethod = *spheroidMethod
	}
	if *stainMethod != "" {
		cfg.Stain.ThresholdMethod = *stainMethod
	}
	if *step > 0 {
		cfg.Sholl.StepMicrons = *step
	}
	if *segService != "" {
		cfg.Nuclei.ServiceURL = *segService
	}
	cfg.Output.Verbose = cfg.Output.Verbose || *verbose
	cfg.Output.Debug = cfg.Output.Debug || *debug

	logger := initLogger(cfg.Output.Debug, cfg.Output.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = filepath.Join(*inputDir, "Results_"+time.Now().Format("20060102_150405"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputDir, logger); err != nil {
		logger.WithError(err).Fatal("Run failed")
	}
}

func initLogger(debugMode, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		if verbose {
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(logrus.WarnLevel)
		}
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

func run(ctx context.Context, cfg *config.Config, inputDir string, logger *logrus.Logger) error {
	sets, unpaired, err := source.Discover(inputDir, source.Channels{
		Nucleus: cfg.Channels.NucleusSuffix,
		Stain:   cfg.Channels.StainSuffix,
	})
	if err != nil {
		return err
	}
	for _, name := range unpaired {
		logger.WithField("image", name).Warn("Skipping image with a single channel")
	}
	if len(sets) == 0 {
		return fmt.Errorf("no image with both %s and %s channels in %s",
			cfg.Channels.NucleusSuffix, cfg.Channels.StainSuffix, inputDir)
	}

	cal := analysis.Calibrate(sets, cfg.CalibrationOverride(), logger)
	logger.WithFields(logrus.Fields{
		"images":     len(sets),
		"pixelWidth": cal.PixelWidth,
		"pixelDepth": cal.PixelDepth,
		"output":     cfg.Output.Dir,
	}).Info("Starting batch")

	sink, err := openSinks(cfg, inputDir, cal.PixelWidth, cal.PixelDepth)
	if err != nil {
		return err
	}

	var segmenter segmentation.Segmenter = segmentation.Local{Labeler: imaging.OpenCV{}}
	if cfg.Nuclei.ServiceURL != "" {
		segmenter = segmentation.NewService(nil, cfg.Nuclei.ServiceURL, cfg.Nuclei.Timeout)
	}

	params, err := analysis.ParamsFromConfig(cfg, cfg.Output.Dir)
	if err != nil {
		sink.Close()
		return err
	}
	analyzer := analysis.NewAnalyzer(params, imaging.OpenCV{}, segmenter, logger)
	runner := analysis.NewRunner(analyzer, sink, cfg.Processing.NumWorkers, logger)

	startTime := time.Now()
	batch, runErr := runner.Run(ctx, sets, cal)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if cfg.Output.HTMLReport {
		if err := results.WriteHTMLReport(filepath.Join(cfg.Output.Dir, "report.html"), batch); err != nil {
			logger.WithError(err).Warn("Failed to write HTML report")
		}
	}
	if err := config.SaveConfig(cfg, filepath.Join(cfg.Output.Dir, "config.yaml")); err != nil {
		logger.WithError(err).Warn("Failed to save run configuration")
	}

	fmt.Printf("\nAnalyzed %d of %d images in %.2f seconds\n", len(batch.Summaries), len(sets), time.Since(startTime).Seconds())
	for _, s := range batch.Summaries {
		fmt.Printf("- %s: spheroid radius %.1f µm, %d nuclei, mean distance %.1f µm\n",
			s.ImageName, s.SpheroidRadiusMicrons, s.NucleusCount, s.MeanNucleusDistance)
	}
	if len(batch.Failures) > 0 {
		fmt.Printf("\n%d images failed:\n", len(batch.Failures))
		for _, f := range batch.Failures {
			fmt.Printf("- %s\n", f.Error())
		}
	}
	fmt.Printf("\nResults saved to: %s\n", cfg.Output.Dir)
	return nil
}

// openSinks opens the TSV tables and, when configured, the SQLite store.
func openSinks(cfg *config.Config, inputDir string, pixelWidth, pixelDepth float64) (results.Sink, error) {
	tsv, err := results.NewTSVSink(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	if cfg.Output.SQLitePath == "" {
		return tsv, nil
	}

	store, err := results.OpenSQLiteStore(cfg.Output.SQLitePath, results.RunInfo{
		InputDir:   inputDir,
		PixelWidth: pixelWidth,
		PixelDepth: pixelDepth,
	})
	if err != nil {
		tsv.Close()
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	return results.MultiSink{tsv, store}, nil
}
