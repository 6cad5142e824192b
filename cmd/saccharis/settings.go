package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/config"
	"github.com/saccharis/SACCHARIS-2/internal/fetch"
	"github.com/saccharis/SACCHARIS-2/internal/ncbi"
	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// acquireFlags are shared by the commands that scrape the catalog.
type acquireFlags struct {
	configPath    string
	category      string
	mode          string
	domains       string
	fresh         bool
	keepFragments bool
	output        string
	useBrowser    bool
}

func (f *acquireFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to a JSON or YAML settings file (default ~/saccharis/config/advanced_settings.json)")
	fs.StringVar(&f.category, "category", "", "Run every family of a category (see 'saccharis families')")
	fs.StringVarP(&f.mode, "mode", "m", "characterized", "Catalog listing to scrape: characterized, all or structure")
	fs.StringVarP(&f.domains, "domains", "d", "all", "Comma separated domains to keep: archaea, bacteria, eukaryota, viruses, unclassified or all")
	fs.BoolVar(&f.fresh, "fresh", false, "Ignore cached results and recompute every stage")
	fs.BoolVar(&f.keepFragments, "keep-fragments", false, "Keep sequences marked as fragments")
	fs.StringVarP(&f.output, "output", "o", "", "Output folder (default ~/saccharis/output)")
	fs.BoolVar(&f.useBrowser, "use-browser", false, "Render catalog pages in headless Chrome")
}

// groups resolves the families named on the command line and by --category,
// in order and without repeats.
func (f *acquireFlags) groups(args []string) ([]string, error) {
	names := slices.Clone(args)
	if f.category != "" {
		fams, err := catalog.CategoryFamilies(f.category)
		if err != nil {
			return nil, err
		}
		names = append(names, fams...)
	}

	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		if err := catalog.ValidFamily(name); err != nil {
			return nil, err
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no families given; name at least one family or use --category")
	}
	return out, nil
}

func (f *acquireFlags) scope() (types.ScrapeMode, types.DomainSet, error) {
	mode, err := types.ParseScrapeMode(f.mode)
	if err != nil {
		return "", 0, err
	}
	domains, err := types.ParseDomainSet(f.domains)
	if err != nil {
		return "", 0, err
	}
	return mode, domains, nil
}

// loadSettings builds the effective settings: file, then explicitly set
// flags, then defaults, then the environment.
func loadSettings(cmd *cobra.Command, f *acquireFlags) (config.Config, error) {
	var cfg config.Config
	path := f.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath()); err == nil {
			path = config.DefaultPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
		slog.Debug("loaded settings", "path", path)
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir = f.output
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = f.useBrowser
	}
	if flags.Changed("threads") {
		cfg.Threads = runThreads
	}
	if flags.Changed("tree-program") {
		cfg.TreeProgram = runTreeProgram
	}

	cfg = cfg.MergeWithDefaults(config.Defaults())
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Verbose && !verbose {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), true))
	}
	return cfg, nil
}

// sources wires the catalog scraper and the NCBI client from the settings.
func sources(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics, printer *observability.Printer) (*catalog.Scraper, *ncbi.Client) {
	fetcher := fetch.New(&fetch.Options{Logger: logger, Metrics: metrics})
	var pages fetch.PageSource = fetcher
	if cfg.UseBrowser {
		pages = fetch.NewBrowserSource(0, logger)
	}
	scraper := catalog.NewScraper(pages, fetcher, cfg.CatalogBaseURL, logger)

	client := ncbi.NewClient(ncbi.Options{
		EutilsURL:   cfg.EutilsBaseURL,
		DatasetsURL: cfg.DatasetsBaseURL,
		APIKey:      cfg.APIKey,
		Email:       cfg.Email,
		Tool:        cfg.Tool,
		QuerySize:   cfg.QuerySize,
		MaxFailures: cfg.MaxFailures,
		Delay:       cfg.Delay(),
		Logger:      logger,
		Metrics:     metrics,
		Progress: func(done, total int) {
			printer.Progress("Downloading sequences", done, total)
		},
	})
	return scraper, client
}

func writeMetrics(cfg config.Config, metrics *observability.Metrics) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		slog.Warn("could not write metrics", "path", cfg.MetricsFile, "error", err)
	}
}
