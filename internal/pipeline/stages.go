package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/merge"
	"github.com/saccharis/SACCHARIS-2/internal/ncbi"
	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/pipeline/steps"
	"github.com/saccharis/SACCHARIS-2/internal/schemas"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// Scraper collects the catalog records of a family. *catalog.Scraper satisfies it.
type Scraper interface {
	Scrape(ctx context.Context, req catalog.Request) (*catalog.Result, error)
}

// SequenceFetcher downloads sequences by accession. *ncbi.Client satisfies it.
type SequenceFetcher interface {
	FetchSequences(ctx context.Context, accessions []string) (*ncbi.BatchResult, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// ToolSettings are shared by the external stages.
type ToolSettings struct {
	Threads     int
	GracePeriod time.Duration
	Logger      *slog.Logger
}

func (ts ToolSettings) tool(stage string, argv []string, dir string) Tool {
	return Tool{Stage: stage, Argv: argv, Dir: dir, GracePeriod: ts.GracePeriod, Logger: ts.Logger}
}

func (ts ToolSettings) vars(a *Artifacts, outdir string) map[string]string {
	return map[string]string{
		"threads":  strconv.Itoa(max(ts.Threads, 1)),
		"group":    a.Group,
		"outdir":   outdir,
		"model":    a.Model,
		"metadata": a.MetadataFile,
		"tree":     a.TreeFile,
	}
}

func requireOutput(stage, command, path string) error {
	if allPresent([]string{path}) {
		return nil
	}
	return &ToolError{Stage: stage, Command: command, Cause: fmt.Errorf("no output written to %s", path)}
}

func commandName(argv []string) string {
	if len(argv) == 0 {
		return "(none)"
	}
	return argv[0]
}

// AcquireStage scrapes the catalog and downloads the sequences of the kept records.
type AcquireStage struct {
	Scraper       Scraper
	Fetcher       SequenceFetcher
	KeepFragments bool
	Printer       *observability.Printer
	Logger        *slog.Logger
}

func (s *AcquireStage) Name() string { return steps.Acquire }

func (s *AcquireStage) store(a *Artifacts) *catalog.Store {
	return catalog.NewStore(a.Layout.Catalog, a.Group, a.Mode)
}

func (s *AcquireStage) Outputs(a *Artifacts) []string {
	return s.store(a).Paths()
}

// Cached accepts an empty sequence file: a family whose records were all
// filtered out is still a finished acquisition.
func (s *AcquireStage) Cached(a *Artifacts) bool {
	return s.store(a).Exists()
}

func (s *AcquireStage) Run(ctx context.Context, a *Artifacts) error {
	res, err := s.Scraper.Scrape(ctx, catalog.Request{
		Group:         a.Group,
		Mode:          a.Mode,
		Domains:       a.Domains,
		KeepFragments: s.KeepFragments,
		Folder:        a.Layout.Catalog,
	})
	if err != nil {
		return err
	}

	batch, err := s.Fetcher.FetchSequences(ctx, res.Order)
	if err != nil {
		return err
	}
	records, err := fasta.ParseString(batch.FASTA, "NCBI efetch")
	if err != nil {
		return err
	}

	stats := res.Stats
	stats.Remote = types.RemoteStats{Queried: batch.Queried, Retrieved: batch.Retrieved}
	return s.store(a).Save(records, res.Records, &stats)
}

func (s *AcquireStage) Load(_ context.Context, a *Artifacts) error {
	cached, err := s.store(a).Load()
	if err != nil {
		return err
	}
	a.CatalogRecords = cached.Metadata
	a.CatalogSequences = cached.Sequences
	a.Stats = cached.Stats
	if s.Printer != nil {
		s.Printer.PrintScrapeStats(a.Group, a.Mode, &a.Stats)
	}
	return nil
}

// MergeStage adds user and remote sequences to the catalog set. Merging has
// its own caches, so the stage always runs.
type MergeStage struct {
	Merger     *merge.Merger
	UserFiles  []string
	Genomes    []string
	Genes      []string
	AutoRename bool
	Confirmer  Confirmer
	Fresh      bool
	Logger     *slog.Logger
}

func (s *MergeStage) Name() string { return steps.Merge }

func (s *MergeStage) Outputs(*Artifacts) []string { return nil }

func (s *MergeStage) Run(ctx context.Context, a *Artifacts) error {
	in := merge.Input{
		Base:             a.Base(),
		Folder:           a.Layout.User,
		Catalog:          a.CatalogRecords,
		CatalogSequences: a.CatalogSequences,
		UserFiles:        s.UserFiles,
		Genomes:          s.Genomes,
		Genes:            s.Genes,
		Fresh:            s.Fresh,
	}

	renamed := false
	for {
		out, err := s.Merger.Merge(ctx, in)
		if err != nil {
			return err
		}
		if out.Status == merge.StatusOK {
			a.Run = out.Run
			a.Records = out.Records
			a.Sequences = out.Sequences
			a.InputFasta = out.FastaPath
			if !out.Run.Merged {
				a.InputFasta = catalog.NewStore(a.Layout.Catalog, a.Group, a.Mode).FastaPath()
			}
			return nil
		}

		if renamed {
			return &merge.IdentityError{Paths: out.NeedsRename, Message: "ids are still invalid after renaming"}
		}
		ok, err := s.approveRename(out)
		if err != nil {
			return err
		}
		if !ok {
			return &merge.IdentityError{Paths: out.NeedsRename, Message: "user sequence ids must be accession numbers or local ids like U000000001"}
		}
		files, err := merge.RenameFiles(in.UserFiles, a.Layout.User)
		if err != nil {
			return err
		}
		in.UserFiles = files
		renamed = true
	}
}

func (s *MergeStage) approveRename(out *merge.Outcome) (bool, error) {
	if s.AutoRename {
		return true, nil
	}
	if s.Confirmer == nil {
		return false, nil
	}
	var sb strings.Builder
	for _, path := range out.NeedsRename {
		fmt.Fprintf(&sb, "%s:\n", path)
		for _, p := range out.Problems[path] {
			fmt.Fprintf(&sb, "  %s\n", p)
		}
	}
	sb.WriteString("Rename all user sequences with local ids? Original headers are kept in the description.")
	return s.Confirmer.Confirm(sb.String())
}

func (s *MergeStage) Load(context.Context, *Artifacts) error { return nil }

// ExtractStage cuts the family modules out of every sequence.
type ExtractStage struct {
	Settings ToolSettings
	Argv     []string
	Prune    bool
}

func (s *ExtractStage) Name() string { return steps.Extract }

func (s *ExtractStage) paths(a *Artifacts) (pruned, bounds, metadata string) {
	base := a.RunBase()
	return filepath.Join(a.Layout.Extract, base+"_pruned.fasta"),
		filepath.Join(a.Layout.Extract, base+".bounds.tsv"),
		filepath.Join(a.Layout.Root, base+".json")
}

func (s *ExtractStage) Outputs(a *Artifacts) []string {
	pruned, bounds, metadata := s.paths(a)
	return []string{pruned, bounds, metadata}
}

func (s *ExtractStage) Run(ctx context.Context, a *Artifacts) error {
	pruned, bounds, metadata := s.paths(a)
	if err := os.MkdirAll(a.Layout.Extract, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Layout.Extract, err)
	}

	argv := s.Argv
	if !s.Prune {
		argv = append(append([]string(nil), argv...), "--no-prune")
	}
	vars := s.Settings.vars(a, a.Layout.Extract)
	vars["input"] = a.InputFasta
	vars["output"] = pruned
	vars["bounds"] = bounds
	if _, err := s.Settings.tool(steps.Extract, argv, a.Layout.Extract).Run(ctx, vars); err != nil {
		return err
	}
	if _, err := os.Stat(pruned); err != nil {
		return &ToolError{Stage: steps.Extract, Command: commandName(argv), Cause: fmt.Errorf("no output written to %s", pruned)}
	}

	modules, err := fasta.ReadFile(pruned)
	if err != nil {
		return err
	}
	ranges, err := ReadBounds(bounds)
	if err != nil {
		return err
	}
	return writeJSON(metadata, ModuleRecords(a.Records, modules, ranges))
}

func (s *ExtractStage) Load(_ context.Context, a *Artifacts) error {
	pruned, bounds, metadata := s.paths(a)
	modules, err := fasta.ReadFile(pruned)
	if err != nil {
		return err
	}
	if len(modules) < 2 {
		return &InsufficientDataError{Group: a.Group, Stage: steps.Extract, Records: len(modules)}
	}

	data, err := os.ReadFile(metadata)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", metadata, err)
	}
	if err := schemas.Validate(schemas.Metadata, data); err != nil {
		return fmt.Errorf("metadata file %s is invalid: %w", metadata, err)
	}
	records := make(types.RecordMap)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode %s: %w", metadata, err)
	}

	a.PrunedFasta = pruned
	a.BoundsFile = bounds
	a.MetadataFile = metadata
	a.Modules = modules
	a.Records = records
	return nil
}

// Bounds is the extent of one module, 1-based and inclusive.
type Bounds struct {
	Start int
	End   int
}

// ReadBounds reads a module_id\tstart\tend file. Blank lines and lines
// starting with '#' are skipped.
func ReadBounds(path string) (map[string]Bounds, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bounds file: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := make(map[string]Bounds)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%s line %d: expected module_id, start and end", path, line)
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(fields[1]))
		end, err2 := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err1 != nil || err2 != nil || start < 1 || end < start {
			return nil, fmt.Errorf("%s line %d: invalid range %q..%q", path, line, fields[1], fields[2])
		}
		out[strings.TrimSpace(fields[0])] = Bounds{Start: start, End: end}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bounds file: %w", err)
	}
	return out, nil
}

var moduleSuffix = regexp.MustCompile(`<\d+>$`)

// ParentID strips the <n> occurrence suffix from a module id.
func ParentID(moduleID string) string {
	return moduleSuffix.ReplaceAllString(moduleID, "")
}

// ModuleRecords builds one metadata record per extracted module, copied from
// the record of its parent sequence with the module boundaries filled in.
// Modules whose parent is unknown get a bare record.
func ModuleRecords(parents types.RecordMap, modules []fasta.Record, ranges map[string]Bounds) types.RecordMap {
	out := make(types.RecordMap, len(modules))
	for _, m := range modules {
		var rec types.SequenceRecord
		if parent, ok := parents[ParentID(m.ID)]; ok && parent != nil {
			rec = *parent
		} else {
			rec.SourceDescriptor = "unknown"
		}
		rec.RecordID = m.ID
		if b, ok := ranges[m.ID]; ok {
			rec.BoundaryStart = types.IntPtr(b.Start)
			rec.BoundaryEnd = types.IntPtr(b.End)
		}
		out[m.ID] = &rec
	}
	return out
}

// AlignStage aligns the extracted modules.
type AlignStage struct {
	Settings ToolSettings
	Argv     []string
}

func (s *AlignStage) Name() string { return steps.Align }

func (s *AlignStage) path(a *Artifacts) string {
	return filepath.Join(a.Layout.Align, a.RunBase()+".muscle_aln.fasta")
}

func (s *AlignStage) Outputs(a *Artifacts) []string { return []string{s.path(a)} }

func (s *AlignStage) Run(ctx context.Context, a *Artifacts) error {
	if err := os.MkdirAll(a.Layout.Align, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Layout.Align, err)
	}
	vars := s.Settings.vars(a, a.Layout.Align)
	vars["input"] = a.PrunedFasta
	vars["output"] = s.path(a)
	if _, err := s.Settings.tool(steps.Align, s.Argv, a.Layout.Align).Run(ctx, vars); err != nil {
		return err
	}
	return requireOutput(steps.Align, commandName(s.Argv), s.path(a))
}

func (s *AlignStage) Load(_ context.Context, a *Artifacts) error {
	a.Alignment = s.path(a)
	return nil
}

// ModelSelectStage picks the substitution model for tree building.
type ModelSelectStage struct {
	Settings ToolSettings
	Argv     []string
}

func (s *ModelSelectStage) Name() string { return steps.ModelSelect }

func (s *ModelSelectStage) path(a *Artifacts) string {
	return filepath.Join(a.Layout.ModelTest, a.RunBase()+".model")
}

func (s *ModelSelectStage) Outputs(a *Artifacts) []string { return []string{s.path(a)} }

func (s *ModelSelectStage) Run(ctx context.Context, a *Artifacts) error {
	if err := os.MkdirAll(a.Layout.ModelTest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Layout.ModelTest, err)
	}
	out := s.path(a)
	vars := s.Settings.vars(a, a.Layout.ModelTest)
	vars["input"] = a.Alignment
	vars["output"] = out
	stdout, err := s.Settings.tool(steps.ModelSelect, s.Argv, a.Layout.ModelTest).Run(ctx, vars)
	if err != nil {
		return err
	}
	if allPresent([]string{out}) {
		return nil
	}

	// The tool may print the model instead of writing it.
	model := lastLine(stdout)
	if model == "" {
		return &ToolError{Stage: steps.ModelSelect, Command: commandName(s.Argv), Cause: fmt.Errorf("no model written to %s or stdout", out)}
	}
	return fasta.WriteFileAtomic(out, []byte(model+"\n"))
}

func (s *ModelSelectStage) Load(_ context.Context, a *Artifacts) error {
	data, err := os.ReadFile(s.path(a))
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}
	a.ModelFile = s.path(a)
	a.Model = lastLine(string(data))
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// TreeStage builds the tree and records the settings it was built with.
type TreeStage struct {
	Settings      ToolSettings
	Argv          []string
	Program       string
	Prune         bool
	KeepFragments bool
	// Now is used for the settings timestamp.
	Now func() time.Time
}

func (s *TreeStage) Name() string { return steps.TreeBuild }

func (s *TreeStage) paths(a *Artifacts) (raw, tree, settings string) {
	name := a.RunBase() + "_" + strings.ToUpper(s.Program)
	return filepath.Join(a.Layout.Tree, a.RunBase()+".tree"),
		filepath.Join(a.Layout.Root, name+".tree"),
		filepath.Join(a.Layout.Root, name+"_settings.json")
}

func (s *TreeStage) Outputs(a *Artifacts) []string {
	raw, tree, settings := s.paths(a)
	return []string{raw, tree, settings}
}

// RunSettings is written next to the final tree.
type RunSettings struct {
	RunID         string   `json:"run_id"`
	Group         string   `json:"group"`
	Mode          string   `json:"mode"`
	Domains       []string `json:"domains"`
	TreeProgram   string   `json:"tree_program"`
	Model         string   `json:"model"`
	Threads       int      `json:"threads"`
	Prune         bool     `json:"prune"`
	KeepFragments bool     `json:"keep_fragments"`
	Sequences     int      `json:"sequences"`
	UserRun       *int     `json:"user_run"`
	ContentHash   string   `json:"content_hash,omitempty"`
	Created       string   `json:"created"`
}

func (s *TreeStage) Run(ctx context.Context, a *Artifacts) error {
	raw, tree, settings := s.paths(a)
	if err := os.MkdirAll(a.Layout.Tree, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Layout.Tree, err)
	}
	vars := s.Settings.vars(a, a.Layout.Tree)
	vars["input"] = a.Alignment
	vars["output"] = raw
	if _, err := s.Settings.tool(steps.TreeBuild, s.Argv, a.Layout.Tree).Run(ctx, vars); err != nil {
		return err
	}
	if err := requireOutput(steps.TreeBuild, commandName(s.Argv), raw); err != nil {
		return err
	}

	data, err := os.ReadFile(raw)
	if err != nil {
		return fmt.Errorf("failed to read tree: %w", err)
	}
	if err := fasta.WriteFileAtomic(tree, data); err != nil {
		return err
	}

	runID := a.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	rs := RunSettings{
		RunID:         runID,
		Group:         a.Group,
		Mode:          string(a.Mode),
		Domains:       domainNames(a.Domains),
		TreeProgram:   s.Program,
		Model:         a.Model,
		Threads:       s.Settings.Threads,
		Prune:         s.Prune,
		KeepFragments: s.KeepFragments,
		Sequences:     len(a.Modules),
		ContentHash:   a.Run.Hash,
		Created:       now().UTC().Format(time.RFC3339),
	}
	if a.Run.Merged {
		rs.UserRun = types.IntPtr(a.Run.Index)
	}
	return writeJSON(settings, rs)
}

func (s *TreeStage) Load(_ context.Context, a *Artifacts) error {
	raw, tree, settings := s.paths(a)
	a.RawTree = raw
	a.TreeFile = tree
	a.SettingsFile = settings
	return nil
}

func domainNames(ds types.DomainSet) []string {
	var out []string
	for _, d := range ds.Domains() {
		out = append(out, d.String())
	}
	return out
}

// RenderStage draws the annotated tree.
type RenderStage struct {
	Settings ToolSettings
	Argv     []string
}

func (s *RenderStage) Name() string { return steps.Render }

func (s *RenderStage) path(a *Artifacts) string {
	return filepath.Join(a.Layout.Render, a.RunBase()+"_render.log")
}

func (s *RenderStage) Outputs(a *Artifacts) []string { return []string{s.path(a)} }

func (s *RenderStage) Run(ctx context.Context, a *Artifacts) error {
	if err := os.MkdirAll(a.Layout.Render, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Layout.Render, err)
	}
	vars := s.Settings.vars(a, a.Layout.Render)
	vars["input"] = a.TreeFile
	vars["output"] = a.Layout.Render
	stdout, err := s.Settings.tool(steps.Render, s.Argv, a.Layout.Render).Run(ctx, vars)
	if err != nil {
		return err
	}
	log := fmt.Sprintf("rendered %s with %s\n%s", a.TreeFile, commandName(s.Argv), stdout)
	return fasta.WriteFileAtomic(s.path(a), []byte(log))
}

func (s *RenderStage) Load(_ context.Context, a *Artifacts) error {
	a.RenderDone = s.path(a)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return fasta.WriteFileAtomic(path, append(data, '\n'))
}
