package analysis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"spheroidexpansion/pkg/calibration"
	"spheroidexpansion/pkg/results"
	"spheroidexpansion/pkg/source"
)

// Runner analyzes a batch of image sets with a bounded number of workers.
// A failing image is recorded and never stops the others; only sink errors
// and context cancellation end a run early.
type Runner struct {
	analyzer *Analyzer
	sink     results.Sink
	workers  int
	log      *logrus.Logger
}

// NewRunner creates a runner writing to sink. workers below 1 means one.
func NewRunner(analyzer *Analyzer, sink results.Sink, workers int, log *logrus.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{analyzer: analyzer, sink: sink, workers: workers, log: log}
}

// Calibrate resolves the batch calibration from the hints of the first set
// and the override. Unreadable hints are logged and ignored.
func Calibrate(sets []source.ImageSet, override calibration.Override, log *logrus.Logger) calibration.Calibration {
	var hints calibration.Hints
	if len(sets) > 0 && sets[0].Sidecar != "" {
		h, err := source.ReadHints(sets[0].Sidecar)
		if err != nil {
			log.WithError(err).WithField("image", sets[0].Name).Warn("Ignoring calibration hints")
		} else {
			hints = h
		}
	}
	return calibration.Resolve(hints, override)
}

// Run analyzes every set. The returned batch lists summaries, profiles and
// failures sorted by image name.
func (r *Runner) Run(ctx context.Context, sets []source.ImageSet, cal calibration.Calibration) (results.Batch, error) {
	batch := results.Batch{Profiles: make(map[string][]results.ProfileRow)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, set := range sets {
		if gctx.Err() != nil {
			break
		}
		set := set
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.process(gctx, set, cal, &batch, &mu)
		})
	}

	err := g.Wait()
	sort.Slice(batch.Summaries, func(i, j int) bool { return batch.Summaries[i].ImageName < batch.Summaries[j].ImageName })
	sort.Slice(batch.Failures, func(i, j int) bool { return batch.Failures[i].ImageName < batch.Failures[j].ImageName })
	if err != nil {
		return batch, err
	}
	return batch, ctx.Err()
}

func (r *Runner) process(ctx context.Context, set source.ImageSet, cal calibration.Calibration, batch *results.Batch, mu *sync.Mutex) error {
	start := time.Now()
	entry := r.log.WithField("image", set.Name)
	entry.Info("Processing image")

	imgs, err := source.Load(set)
	if err != nil {
		return r.recordFailure(entry, results.Failure{ImageName: set.Name, Stage: StageLoad, Err: err}, batch, mu)
	}

	res, err := r.analyzer.Analyze(ctx, set.Name, imgs, cal)
	if err != nil {
		// a cancelled run is not an image failure
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.recordFailure(entry, FailureOf(set.Name, StageNuclei, err), batch, mu)
	}

	if err := r.sink.WriteProfile(set.Name, res.ProfileRows); err != nil {
		return err
	}
	if err := r.sink.WriteNuclei(set.Name, res.NucleusRows); err != nil {
		return err
	}
	if err := r.sink.WriteSummary(res.Summary); err != nil {
		return err
	}

	mu.Lock()
	batch.Summaries = append(batch.Summaries, res.Summary)
	batch.Profiles[set.Name] = res.ProfileRows
	mu.Unlock()

	entry.WithField("elapsed", time.Since(start).Round(time.Millisecond).String()).Info("Image done")
	return nil
}

func (r *Runner) recordFailure(entry *logrus.Entry, f results.Failure, batch *results.Batch, mu *sync.Mutex) error {
	entry.WithFields(logrus.Fields{"stage": f.Stage}).WithError(f.Err).Warn("Image failed")
	if err := r.sink.WriteFailure(f); err != nil {
		return err
	}
	mu.Lock()
	batch.Failures = append(batch.Failures, f)
	mu.Unlock()
	return nil
}
