package merge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/ncbi"
	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// RemoteSource downloads protein sets for genome assemblies and genes.
// *ncbi.Client satisfies it.
type RemoteSource interface {
	DownloadGenomes(ctx context.Context, ids []string) ([]fasta.Record, ncbi.Provenance, error)
	DownloadGenes(ctx context.Context, ids []string) ([]fasta.Record, ncbi.Provenance, error)
}

// Status tells the caller whether the merge finished.
type Status int

const (
	// StatusOK means the outcome holds the merged set.
	StatusOK Status = iota
	// StatusNeedsRename means some user files carry unusable ids. Nothing
	// was merged; the caller decides whether to rename and retry.
	StatusNeedsRename
)

func (s Status) String() string {
	if s == StatusNeedsRename {
		return "needs_rename"
	}
	return "ok"
}

const sourceRemote = "remote"

// Input is everything one merge combines.
type Input struct {
	// Base names the merged FASTA, e.g. "PL9_CHARACTERIZED".
	Base string
	// Folder receives the merged FASTA, the run table and the remote cache.
	Folder string

	Catalog          types.RecordMap
	CatalogSequences []fasta.Record

	UserFiles []string
	Genomes   []string
	Genes     []string

	// Fresh ignores cached remote downloads.
	Fresh bool
}

func (in Input) merging() bool {
	return len(in.UserFiles) > 0 || len(in.Genomes) > 0 || len(in.Genes) > 0
}

// Outcome is the result of a merge.
type Outcome struct {
	Status Status

	// NeedsRename lists user files with id problems, and Problems describes them.
	NeedsRename []string
	Problems    map[string][]string

	Records   types.RecordMap
	Sequences []fasta.Record
	Run       types.RunIdentity

	// FastaPath is the merged FASTA. Empty for catalog-only runs.
	FastaPath string
}

// Options configures a Merger.
type Options struct {
	Remote  RemoteSource
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Merger combines the sources of one run.
type Merger struct {
	opts   Options
	logger *slog.Logger
}

// NewMerger creates a Merger.
func NewMerger(opts Options) *Merger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{opts: opts, logger: logger.With("component", "merge")}
}

var trailingOrganism = regexp.MustCompile(`\[([^\[\]]+)\]\s*$`)

// Merge validates and combines the inputs. Id problems in user files are
// reported through Outcome.Status rather than an error; ids shared between
// sources are an *IdentityCollisionError.
func (m *Merger) Merge(ctx context.Context, in Input) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !in.merging() {
		return &Outcome{
			Status:    StatusOK,
			Records:   in.Catalog,
			Sequences: in.CatalogSequences,
		}, nil
	}

	userSets := make([][]fasta.Record, len(in.UserFiles))
	out := &Outcome{Problems: make(map[string][]string)}
	for i, path := range in.UserFiles {
		records, err := fasta.ReadFile(path)
		if err != nil {
			return nil, &FileError{Path: path, Message: "cannot read", Cause: err}
		}
		if len(records) == 0 {
			return nil, &FileError{Path: path, Message: "contains no sequences"}
		}
		if problems := checkRecords(records); len(problems) > 0 {
			out.NeedsRename = append(out.NeedsRename, path)
			out.Problems[path] = problems
		}
		userSets[i] = records
	}
	if len(out.NeedsRename) > 0 {
		out.Status = StatusNeedsRename
		m.logger.Warn("user files need renaming", "files", len(out.NeedsRename))
		return out, nil
	}

	remote, prov, err := m.remote(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := checkCollisions(in, userSets, remote); err != nil {
		return nil, err
	}
	remote = collapseRemote(remote)

	records := make(types.RecordMap, len(in.Catalog)+len(remote))
	for id, rec := range in.Catalog {
		records[id] = rec
	}
	sequences := make([]fasta.Record, 0, len(in.CatalogSequences)+len(remote))
	sequences = append(sequences, in.CatalogSequences...)
	m.opts.Metrics.RecordsMerged(types.SourceCatalog, len(in.CatalogSequences))

	annotate := len(in.UserFiles) > 1
	for i, path := range in.UserFiles {
		for _, r := range userSets[i] {
			records[r.ID] = userRecord(r, path)
			if annotate {
				r.Description = strings.TrimSpace(r.Description + " SACCHARIS merged record from " + path)
			}
			sequences = append(sequences, r)
		}
		m.opts.Metrics.RecordsMerged("user", len(userSets[i]))
	}
	for _, r := range remote {
		records[r.ID] = userRecord(r, prov[r.ID])
		sequences = append(sequences, r)
	}
	m.opts.Metrics.RecordsMerged(sourceRemote, len(remote))

	hash := ContentHash(sequences)
	idx, err := NewRunIndex(in.Folder, m.logger).Lookup(hash)
	if err != nil {
		return nil, err
	}
	run := types.RunIdentity{Hash: hash, Index: idx, Merged: true}

	path := filepath.Join(in.Folder, in.Base+run.Suffix()+".fasta")
	if _, err := os.Stat(path); err != nil || in.Fresh {
		if err := fasta.WriteFile(path, sequences); err != nil {
			return nil, &FileError{Path: path, Message: "cannot write merged sequences", Cause: err}
		}
	}

	m.logger.Info("merged sequence sources",
		"catalog", len(in.CatalogSequences),
		"user_files", len(in.UserFiles),
		"remote", len(remote),
		"total", len(sequences),
		"run_index", idx)

	out.Status = StatusOK
	out.Records = records
	out.Sequences = sequences
	out.Run = run
	out.FastaPath = path
	return out, nil
}

func userRecord(r fasta.Record, source string) *types.SequenceRecord {
	rec := &types.SequenceRecord{
		RecordID:         r.ID,
		DisplayName:      types.StrPtr(r.Description),
		SourceDescriptor: source,
	}
	if catalog.ValidAccession(r.ID) {
		rec.Accession = types.StrPtr(r.ID)
	}
	if m := trailingOrganism.FindStringSubmatch(r.Description); m != nil {
		rec.OrganismName = types.StrPtr(strings.TrimSpace(m[1]))
	}
	return rec
}

// checkCollisions finds ids owned by more than one source. Each user file is
// its own source; duplicates inside the remote set are handled by collapseRemote.
func checkCollisions(in Input, userSets [][]fasta.Record, remote []fasta.Record) error {
	owner := make(map[string]string)
	colliding := make(map[string]bool)
	claim := func(id, source string) {
		if prev, ok := owner[id]; ok && prev != source {
			colliding[id] = true
			return
		}
		owner[id] = source
	}

	for id := range in.Catalog {
		claim(id, types.SourceCatalog)
	}
	for _, r := range in.CatalogSequences {
		claim(r.ID, types.SourceCatalog)
	}
	for i, set := range userSets {
		source := fmt.Sprintf("user:%d", i)
		for _, r := range set {
			claim(r.ID, source)
		}
	}

	seqs := make(map[string]string)
	for _, r := range remote {
		claim(r.ID, sourceRemote)
		if prev, ok := seqs[r.ID]; ok && !strings.EqualFold(prev, r.Sequence) {
			colliding[r.ID] = true
		}
		seqs[r.ID] = r.Sequence
	}

	if len(colliding) == 0 {
		return nil
	}
	ids := make([]string, 0, len(colliding))
	for id := range colliding {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &IdentityCollisionError{IDs: ids}
}

// collapseRemote drops repeated remote ids. checkCollisions has already
// rejected repeats with differing sequences.
func collapseRemote(records []fasta.Record) []fasta.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// remote returns the genome and gene downloads, from the folder cache unless
// in.Fresh is set.
func (m *Merger) remote(ctx context.Context, in Input) ([]fasta.Record, ncbi.Provenance, error) {
	if len(in.Genomes) == 0 && len(in.Genes) == 0 {
		return nil, ncbi.Provenance{}, nil
	}

	key := remoteKey(in.Genomes, in.Genes)
	seqPath := filepath.Join(in.Folder, "remote_"+key+".fasta")
	provPath := filepath.Join(in.Folder, "remote_"+key+".json")

	if !in.Fresh {
		records, prov, err := readRemoteCache(seqPath, provPath)
		if err == nil {
			m.logger.Info("using cached remote sequences", "path", seqPath, "records", len(records))
			return records, prov, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("ignoring unreadable remote cache", "path", seqPath, "error", err)
		}
	}

	if m.opts.Remote == nil {
		return nil, nil, fmt.Errorf("genome or gene ids were given but no remote source is configured")
	}
	genomes, gprov, err := m.opts.Remote.DownloadGenomes(ctx, in.Genomes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download genomes: %w", err)
	}
	genes, nprov, err := m.opts.Remote.DownloadGenes(ctx, in.Genes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download genes: %w", err)
	}

	records := append(genomes, genes...)
	prov := make(ncbi.Provenance, len(gprov)+len(nprov))
	for id, src := range gprov {
		prov[id] = src
	}
	for id, src := range nprov {
		if _, ok := prov[id]; !ok {
			prov[id] = src
		}
	}

	var bad []string
	for _, r := range records {
		if !catalog.ValidAccession(r.ID) {
			bad = append(bad, r.ID)
		}
	}
	if len(bad) > 0 {
		return nil, nil, &IdentityError{Message: "downloaded records without an accession id: " + strings.Join(bad, ", ")}
	}

	if err := fasta.WriteFile(seqPath, records); err != nil {
		return nil, nil, &FileError{Path: seqPath, Message: "cannot cache remote sequences", Cause: err}
	}
	data, err := json.MarshalIndent(prov, "", "    ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode remote provenance: %w", err)
	}
	if err := fasta.WriteFileAtomic(provPath, append(data, '\n')); err != nil {
		return nil, nil, &FileError{Path: provPath, Message: "cannot cache remote provenance", Cause: err}
	}
	return records, prov, nil
}

func readRemoteCache(seqPath, provPath string) ([]fasta.Record, ncbi.Provenance, error) {
	data, err := os.ReadFile(provPath)
	if err != nil {
		return nil, nil, err
	}
	var prov ncbi.Provenance
	if err := json.Unmarshal(data, &prov); err != nil {
		return nil, nil, err
	}
	records, err := fasta.ReadFile(seqPath)
	if err != nil {
		return nil, nil, err
	}
	return records, prov, nil
}

// remoteKey identifies a set of genome and gene ids independent of their order.
func remoteKey(genomes, genes []string) string {
	g := append([]string(nil), genomes...)
	n := append([]string(nil), genes...)
	sort.Strings(g)
	sort.Strings(n)
	sum := sha256.Sum256([]byte("genomes:" + strings.Join(g, ",") + "\ngenes:" + strings.Join(n, ",")))
	return shortHash(hex.EncodeToString(sum[:]))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
