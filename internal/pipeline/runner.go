package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/pipeline/steps"
)

// Stage is one step of a group run.
//
// Outputs lists the files the stage produces. When every one of them exists
// and is non-empty the stage is a cache hit and Run is skipped; a stage that
// implements CacheChecker decides that itself. A stage with
// no declared outputs always runs. Load is called in both cases and reads the
// outputs back into the artifacts.
type Stage interface {
	Name() string
	Outputs(a *Artifacts) []string
	Run(ctx context.Context, a *Artifacts) error
	Load(ctx context.Context, a *Artifacts) error
}

// CacheChecker is implemented by stages whose outputs may legitimately be
// empty. Cached replaces the non-empty check of the runner.
type CacheChecker interface {
	Cached(a *Artifacts) bool
}

// Runner drives the stages of one group in order.
type Runner struct {
	Stages []Stage
	// Fresh removes each stage's outputs just before that stage, so every
	// stage recomputes.
	Fresh   bool
	Logger  *slog.Logger
	Printer *observability.Printer
	Metrics *observability.Metrics
}

// Run executes every stage against a and returns per-stage timings. It stops
// at the first failing stage; outputs of finished stages are left in place.
func (r *Runner) Run(ctx context.Context, a *Artifacts) ([]observability.StageTiming, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	printer := r.Printer
	if printer == nil {
		printer = observability.NewPrinter(io.Discard)
	}

	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name()
	}
	if err := steps.ValidateSequence(names); err != nil {
		return nil, err
	}

	timings := make([]observability.StageTiming, 0, len(r.Stages))
	completed := make(map[string]bool, len(r.Stages))
	for i, s := range r.Stages {
		if err := ctx.Err(); err != nil {
			return timings, &StageError{Group: a.Group, Stage: s.Name(), Cause: err}
		}
		printer.Step(i+1, len(r.Stages), fmt.Sprintf("%s (%s)", s.Name(), steps.StageRegistry[s.Name()].Category))
		start := time.Now()

		outputs := s.Outputs(a)
		if r.Fresh {
			removeOutputs(logger, outputs)
		}

		cached := len(outputs) > 0 && isCached(s, a, outputs)
		if cached {
			logger.Info("using cached stage output", "stage", s.Name())
		} else if err := s.Run(ctx, a); err != nil {
			reportUnfinished(logger, names, completed)
			return timings, &StageError{Group: a.Group, Stage: s.Name(), Cause: err}
		}
		if err := s.Load(ctx, a); err != nil {
			reportUnfinished(logger, names, completed)
			return timings, &StageError{Group: a.Group, Stage: s.Name(), Cause: err}
		}
		completed[s.Name()] = true

		d := time.Since(start)
		timings = append(timings, observability.StageTiming{Stage: s.Name(), Duration: d, Cached: cached})
		r.Metrics.Stage(s.Name(), d, cached)
		logger.Info("stage complete", "stage", s.Name(),
			"duration", observability.FormatDuration(d), "cached", cached)
	}
	return timings, nil
}

func isCached(s Stage, a *Artifacts, outputs []string) bool {
	if c, ok := s.(CacheChecker); ok {
		return c.Cached(a)
	}
	return allPresent(outputs)
}

// reportUnfinished logs which stages of this run could be retried next and
// which are blocked behind them.
func reportUnfinished(logger *slog.Logger, names []string, completed map[string]bool) {
	inRun := make(map[string]bool, len(names))
	for _, n := range names {
		inRun[n] = true
	}
	var next, blocked []string
	for _, n := range steps.GetAvailableStages(completed) {
		if inRun[n] {
			next = append(next, n)
		}
	}
	for _, n := range steps.GetBlockedStages(completed) {
		if inRun[n] {
			blocked = append(blocked, n)
		}
	}
	logger.Warn("stages left unfinished", "next", next, "blocked", blocked)
}

// allPresent reports whether every path exists and is non-empty. Tools that
// fail can leave an empty file behind, which must not count as a result.
func allPresent(paths []string) bool {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

func removeOutputs(logger *slog.Logger, paths []string) {
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			logger.Debug("removed stale output", "path", p)
		case !errors.Is(err, fs.ErrNotExist):
			logger.Warn("could not remove stale output", "path", p, "error", err)
		}
	}
}
