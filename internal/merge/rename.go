package merge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
)

var localID = regexp.MustCompile(`^U\d{1,9}$`)

// LocalID formats the n-th local identifier.
func LocalID(n int) string {
	return fmt.Sprintf("U%09d", n)
}

// ValidLocalID reports whether id has the U<digits> shape given by RenameFiles.
func ValidLocalID(id string) bool {
	return localID.MatchString(id)
}

// ValidUserID reports whether a user supplied id can be carried through the pipeline.
func ValidUserID(id string) bool {
	return ValidLocalID(id) || catalog.ValidAccession(id)
}

// checkRecords returns a description of every id problem in one file.
func checkRecords(records []fasta.Record) []string {
	var problems []string
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		switch {
		case !ValidUserID(r.ID):
			problems = append(problems, fmt.Sprintf("%q is not an accession or local id", r.ID))
		case seen[r.ID]:
			problems = append(problems, fmt.Sprintf("%q occurs more than once", r.ID))
		}
		seen[r.ID] = true
	}
	return problems
}

// RenamedPath is where the renamed copy of path is written. An empty folder
// keeps the copy next to the original.
func RenamedPath(path, folder string) string {
	if folder == "" {
		folder = filepath.Dir(path)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".fasta"
	}
	return filepath.Join(folder, name+"_UserFormat"+ext)
}

// RenameRecords replaces every id with a local id numbered from start. The old
// header is kept at the front of the description.
func RenameRecords(records []fasta.Record, start int) []fasta.Record {
	out := make([]fasta.Record, len(records))
	for i, r := range records {
		out[i] = fasta.Record{
			ID:          LocalID(start + i),
			Description: r.Header(),
			Sequence:    r.Sequence,
		}
	}
	return out
}

// RenameFile writes a renamed copy of in to out, numbering from start, and
// returns the next unused number.
func RenameFile(in, out string, start int) (int, error) {
	records, err := fasta.ReadFile(in)
	if err != nil {
		return start, &FileError{Path: in, Message: "cannot read", Cause: err}
	}
	if len(records) == 0 {
		return start, &FileError{Path: in, Message: "contains no sequences"}
	}
	if err := fasta.WriteFile(out, RenameRecords(records, start)); err != nil {
		return start, &FileError{Path: out, Message: "cannot write renamed copy", Cause: err}
	}
	return start + len(records), nil
}

// RenameFiles renames every file into folder with ids numbered across all
// files, so the copies never collide with each other. It returns the new paths
// in input order.
func RenameFiles(paths []string, folder string) ([]string, error) {
	renamed := make([]string, 0, len(paths))
	next := 0
	for _, p := range paths {
		out := RenamedPath(p, folder)
		n, err := RenameFile(p, out, next)
		if err != nil {
			return nil, err
		}
		next = n
		renamed = append(renamed, out)
	}
	return renamed, nil
}
