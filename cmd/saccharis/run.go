package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run [FAMILY...]",
	Short: "Run the full pipeline for one or more families",
	Long: `Scrapes each family from CAZy, downloads its sequences from NCBI, merges them with any
user sequences and runs extraction -> alignment -> model selection -> tree building -> rendering.

Every stage is cached in the family's output folder; rerunning resumes where the last run stopped.
Settings are read from --config (or ~/saccharis/config/advanced_settings.json) and flags override them.`,
	Example: `  saccharis run GH5 PL9 --domains bacteria,archaea
  saccharis run --category xyloglucan --user-file mine.fasta --auto-rename`,
	RunE: runPipelineCmd,
}

var (
	runFlags       acquireFlags
	runNoPrune     bool
	runUserFiles   []string
	runGenomes     []string
	runGenes       []string
	runAutoRename  bool
	runThreads     int
	runTreeProgram string
)

func init() {
	runFlags.register(runCommand)
	fs := runCommand.Flags()
	fs.BoolVar(&runNoPrune, "no-prune", false, "Keep every domain module instead of pruning to the family's modules")
	fs.StringArrayVarP(&runUserFiles, "user-file", "u", nil, "FASTA file of user sequences to merge (repeatable)")
	fs.StringSliceVar(&runGenomes, "genome", nil, "NCBI genome assembly accessions to merge, e.g. GCF_000005845.2")
	fs.StringSliceVar(&runGenes, "gene", nil, "NCBI gene ids to merge")
	fs.BoolVar(&runAutoRename, "auto-rename", false, "Rename user sequences with invalid or duplicate ids without asking")
	fs.IntVarP(&runThreads, "threads", "t", 0, "Threads for the external tools (default 3/4 of the CPUs)")
	fs.StringVar(&runTreeProgram, "tree-program", "", "Tree builder: fasttree, raxml or raxml_ng")
	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, args []string) error {
	return executeBatch(cmd, args, &runFlags, false)
}

// executeBatch runs the pipeline, or only its acquire stage, for every group.
func executeBatch(cmd *cobra.Command, args []string, f *acquireFlags, acquireOnly bool) error {
	groups, err := f.groups(args)
	if err != nil {
		return err
	}
	mode, domains, err := f.scope()
	if err != nil {
		return err
	}
	cfg, err := loadSettings(cmd, f)
	if err != nil {
		return err
	}

	logger := slog.Default()
	printer := observability.NewPrinter(cmd.OutOrStdout())
	metrics := observability.NewMetrics()
	scraper, client := sources(cfg, logger, metrics, printer)

	opts := &pipeline.RunOptions{
		Groups:        groups,
		Mode:          mode,
		Domains:       domains,
		Prune:         !runNoPrune,
		KeepFragments: f.keepFragments,
		Fresh:         f.fresh,
		AcquireOnly:   acquireOnly,
		Config:        cfg,
		Scraper:       scraper,
		Fetcher:       client,
		Logger:        logger,
		Printer:       printer,
		Metrics:       metrics,
	}
	if !acquireOnly {
		opts.UserFiles = runUserFiles
		opts.Genomes = runGenomes
		opts.Genes = runGenes
		opts.AutoRename = runAutoRename
		opts.Remote = client
		if isatty.IsTerminal(os.Stdin.Fd()) {
			opts.Confirmer = newPromptConfirmer(os.Stdin, cmd.OutOrStdout())
		}
	}

	res, err := pipeline.RunBatch(cmd.Context(), opts)
	writeMetrics(cfg, metrics)
	if err != nil {
		return err
	}
	switch len(res.Failed) {
	case 0:
		return nil
	case 1:
		if len(groups) == 1 {
			return res.Failed[groups[0]]
		}
	}
	return fmt.Errorf("%d of %d groups failed", len(res.Failed), len(groups))
}
