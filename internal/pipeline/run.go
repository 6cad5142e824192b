// Package pipeline orchestrates the stages that turn a family name into an
// annotated phylogenetic tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/saccharis/SACCHARIS-2/internal/config"
	"github.com/saccharis/SACCHARIS-2/internal/merge"
	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	Groups        []string
	Mode          types.ScrapeMode
	Domains       types.DomainSet
	Prune         bool
	KeepFragments bool
	Fresh         bool
	// AcquireOnly stops after the catalog stage.
	AcquireOnly bool

	UserFiles  []string
	Genomes    []string
	Genes      []string
	AutoRename bool
	Confirmer  Confirmer

	Config config.Config

	Scraper Scraper
	Fetcher SequenceFetcher
	Remote  merge.RemoteSource

	Logger      *slog.Logger
	Printer     *observability.Printer
	Metrics     *observability.Metrics
	GracePeriod time.Duration
}

func (o *RunOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *RunOptions) printer() *observability.Printer {
	if o.Printer == nil {
		return observability.NewPrinter(io.Discard)
	}
	return o.Printer
}

// GroupFolder is the output folder of group.
func (o *RunOptions) GroupFolder(group string) string {
	return filepath.Join(o.Config.OutputDir, GroupFolderName(group, o.Mode, o.Domains, o.Prune, o.KeepFragments))
}

// BuildStages assembles the stages of one group run.
func BuildStages(opts *RunOptions, logger *slog.Logger) []Stage {
	stages := []Stage{
		&AcquireStage{
			Scraper:       opts.Scraper,
			Fetcher:       opts.Fetcher,
			KeepFragments: opts.KeepFragments,
			Printer:       opts.printer(),
			Logger:        logger,
		},
	}
	if opts.AcquireOnly {
		return stages
	}

	ts := ToolSettings{Threads: opts.Config.Threads, GracePeriod: opts.GracePeriod, Logger: logger}
	tools := opts.Config.Tools
	stages = append(stages,
		&MergeStage{
			Merger:     merge.NewMerger(merge.Options{Remote: opts.Remote, Logger: logger, Metrics: opts.Metrics}),
			UserFiles:  opts.UserFiles,
			Genomes:    opts.Genomes,
			Genes:      opts.Genes,
			AutoRename: opts.AutoRename,
			Confirmer:  opts.Confirmer,
			Fresh:      opts.Fresh,
			Logger:     logger,
		},
		&ExtractStage{Settings: ts, Argv: tools.Extract, Prune: opts.Prune},
		&AlignStage{Settings: ts, Argv: tools.Align},
		&ModelSelectStage{Settings: ts, Argv: tools.ModelSelect},
		&TreeStage{
			Settings:      ts,
			Argv:          opts.Config.TreeTool(),
			Program:       opts.Config.TreeProgram,
			Prune:         opts.Prune,
			KeepFragments: opts.KeepFragments,
		},
	)
	if len(tools.Render) > 0 {
		stages = append(stages, &RenderStage{Settings: ts, Argv: tools.Render})
	}
	return stages
}

// RunGroup runs every stage for one group.
func RunGroup(ctx context.Context, opts *RunOptions, group string) (*Artifacts, error) {
	runID := uuid.NewString()
	logger := opts.logger().With("run_id", runID, "group", group)

	a := &Artifacts{
		RunID:   runID,
		Group:   group,
		Mode:    opts.Mode,
		Domains: opts.Domains,
		Layout:  NewLayout(opts.GroupFolder(group), opts.Config.TreeProgram),
	}
	logger.Info("starting group run", "mode", opts.Mode, "domains", opts.Domains.String(), "folder", a.Layout.Root)

	runner := &Runner{
		Stages:  BuildStages(opts, logger),
		Fresh:   opts.Fresh,
		Logger:  logger,
		Printer: opts.printer(),
		Metrics: opts.Metrics,
	}
	timings, err := runner.Run(ctx, a)
	opts.printer().PrintStageTimings(group, timings)
	if err != nil {
		return a, err
	}
	logger.Info("group run complete", "tree", a.TreeFile)
	return a, nil
}

// BatchResult records the outcome of every group of a batch.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
	Artifacts map[string]*Artifacts
}

// RunBatch runs the groups one after another. A failing group is logged and
// the next one still runs; only cancellation stops the batch early.
func RunBatch(ctx context.Context, opts *RunOptions) (*BatchResult, error) {
	if len(opts.Groups) == 0 {
		return nil, fmt.Errorf("no families or groups to run")
	}
	logger := opts.logger()
	res := &BatchResult{Failed: make(map[string]error), Artifacts: make(map[string]*Artifacts)}

	for i, group := range opts.Groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger.Info("running group", "group", group, "position", i+1, "of", len(opts.Groups))

		a, err := RunGroup(ctx, opts, group)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.Failed[group] = err
				return res, err
			}
			logger.Error("group failed, continuing with the next one", "group", group, "error", err, "hint", Hint(err))
			res.Failed[group] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, group)
		res.Artifacts[group] = a
	}

	if len(opts.Groups) > 1 {
		opts.printer().PrintBatchSummary(res.Succeeded, res.Failed)
	}
	return res, nil
}
