package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/schemas"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// Store persists the acquisition result of one family and mode.
type Store struct {
	Folder string
	Group  string
	Mode   types.ScrapeMode
}

// NewStore creates a Store rooted at folder.
func NewStore(folder, group string, mode types.ScrapeMode) *Store {
	return &Store{Folder: folder, Group: group, Mode: mode}
}

func (s *Store) prefix() string {
	return filepath.Join(s.Folder, fmt.Sprintf("%s_%s", s.Group, s.Mode))
}

// FastaPath is the acquired sequence file.
func (s *Store) FastaPath() string { return s.prefix() + "_cazy.fasta" }

// DataPath is the accession to metadata record JSON file.
func (s *Store) DataPath() string { return s.prefix() + "_data.json" }

// StatsPath is the scrape statistics JSON file.
func (s *Store) StatsPath() string { return s.prefix() + "_stats.json" }

// Paths lists every file the store owns.
func (s *Store) Paths() []string {
	return []string{s.FastaPath(), s.DataPath(), s.StatsPath()}
}

// Exists reports whether a complete result is on disk. The sequence file may
// be empty when the family has no kept records; the JSON files never are.
func (s *Store) Exists() bool {
	if _, err := os.Stat(s.FastaPath()); err != nil {
		return false
	}
	for _, p := range []string{s.DataPath(), s.StatsPath()} {
		info, err := os.Stat(p)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// Save writes the sequences, metadata and statistics.
func (s *Store) Save(records []fasta.Record, metadata types.RecordMap, stats *types.ScrapeStats) error {
	if err := fasta.WriteFile(s.FastaPath(), records); err != nil {
		return err
	}
	if metadata == nil {
		metadata = types.RecordMap{}
	}
	if err := writeJSON(s.DataPath(), metadata); err != nil {
		return err
	}
	return writeJSON(s.StatsPath(), stats)
}

// Cached is an acquisition result read back from disk.
type Cached struct {
	Sequences []fasta.Record
	Metadata  types.RecordMap
	Stats     types.ScrapeStats
}

// Load reads a previously saved result. Files that fail schema validation
// are reported as a FormatError so the caller can suggest a fresh scrape.
func (s *Store) Load() (*Cached, error) {
	seqs, err := fasta.ReadFile(s.FastaPath())
	if err != nil {
		return nil, err
	}

	var c Cached
	c.Sequences = seqs
	if err := s.readValidated(schemas.Metadata, s.DataPath(), &c.Metadata); err != nil {
		return nil, err
	}
	if err := s.readValidated(schemas.Stats, s.StatsPath(), &c.Stats); err != nil {
		return nil, err
	}
	if c.Metadata == nil {
		c.Metadata = make(types.RecordMap)
	}
	return &c, nil
}

func (s *Store) readValidated(schema, path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return &FormatError{Group: s.Group, Message: fmt.Sprintf("cached file %s is not valid JSON; rerun with --fresh", filepath.Base(path))}
	}
	if err := schemas.Validate(schema, data); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return &FormatError{Group: s.Group, Message: fmt.Sprintf("cached file %s is not valid; rerun with --fresh", filepath.Base(path)), Cause: err}
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return fasta.WriteFileAtomic(path, append(data, '\n'))
}
