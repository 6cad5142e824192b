package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/schemas"
)

// RunTableName is the file holding the hash to run index table.
const RunTableName = "user_runs.json"

// ContentHash returns the hex SHA-256 of the records sorted by id, each
// serialized as "id\tSEQUENCE\n". Order of input and descriptions do not
// affect the result.
func ContentHash(records []fasta.Record) string {
	sorted := make([]fasta.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, r := range sorted {
		fmt.Fprintf(h, "%s\t%s\n", r.ID, strings.ToUpper(r.Sequence))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RunIndex is the persisted table mapping merged content hashes to small
// integers used in output file names.
type RunIndex struct {
	Path   string
	Logger *slog.Logger
}

// NewRunIndex opens the table in folder.
func NewRunIndex(folder string, logger *slog.Logger) *RunIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunIndex{Path: filepath.Join(folder, RunTableName), Logger: logger}
}

// Lookup returns the index for hash, assigning and persisting the next free
// index when hash is new.
func (ri *RunIndex) Lookup(hash string) (int, error) {
	table, err := ri.load()
	if err != nil {
		return 0, err
	}
	if idx, ok := table[hash]; ok {
		return idx, nil
	}

	next := 0
	for _, idx := range table {
		if idx >= next {
			next = idx + 1
		}
	}
	table[hash] = next

	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode run table: %w", err)
	}
	if err := fasta.WriteFileAtomic(ri.Path, append(data, '\n')); err != nil {
		return 0, &FileError{Path: ri.Path, Message: "cannot write run table", Cause: err}
	}
	ri.Logger.Info("assigned new run index", "index", next, "hash", shortHash(hash))
	return next, nil
}

// load reads the table. A corrupt table is moved aside and replaced by an
// empty one.
func (ri *RunIndex) load() (map[string]int, error) {
	data, err := os.ReadFile(ri.Path)
	if os.IsNotExist(err) {
		return make(map[string]int), nil
	}
	if err != nil {
		return nil, &FileError{Path: ri.Path, Message: "cannot read run table", Cause: err}
	}

	table := make(map[string]int)
	valid := json.Valid(data) && schemas.Validate(schemas.Runs, data) == nil
	if valid {
		valid = json.Unmarshal(data, &table) == nil
	}
	if valid {
		return table, nil
	}

	corrupt := ri.Path + ".corrupt"
	ri.Logger.Warn("run table is corrupt, starting a new one", "path", ri.Path, "moved_to", corrupt)
	if err := os.Rename(ri.Path, corrupt); err != nil {
		return nil, &FileError{Path: ri.Path, Message: "cannot move corrupt run table aside", Cause: err}
	}
	return make(map[string]int), nil
}
