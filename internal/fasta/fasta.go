// Package fasta reads and writes protein FASTA files.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record is one FASTA entry. Description is the header text after the id.
type Record struct {
	ID          string
	Description string
	Sequence    string
}

// Header returns the header line without the leading '>'.
func (r Record) Header() string {
	if r.Description == "" {
		return r.ID
	}
	return r.ID + " " + r.Description
}

// ParseError reports malformed FASTA input.
type ParseError struct {
	Source  string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fasta parse error in %s at line %d: %s", e.Source, e.Line, e.Message)
}

// Parse reads every record from r. Blank lines are ignored; sequence text
// before the first header is an error.
func Parse(r io.Reader, source string) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)

	var (
		out  []Record
		cur  *Record
		seq  strings.Builder
		line int
	)
	flush := func() {
		if cur != nil {
			cur.Sequence = seq.String()
			out = append(out, *cur)
			seq.Reset()
		}
	}

	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.HasPrefix(text, ">") {
			flush()
			id, desc := splitHeader(text[1:])
			if id == "" {
				return nil, &ParseError{Source: source, Line: line, Message: "empty record id"}
			}
			cur = &Record{ID: id, Description: desc}
			continue
		}
		if cur == nil {
			return nil, &ParseError{Source: source, Line: line, Message: "sequence data before first header"}
		}
		seq.WriteString(strings.TrimSpace(text))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	flush()
	return out, nil
}

// ParseString is Parse over an in-memory FASTA blob.
func ParseString(s, source string) ([]Record, error) {
	return Parse(strings.NewReader(s), source)
}

// ReadFile parses the FASTA file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fasta file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f, path)
}

// Write writes records to w, one sequence line per record.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n%s\n", r.Header(), r.Sequence); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Format renders records as a FASTA blob.
func Format(records []Record) string {
	var sb strings.Builder
	_ = Write(&sb, records)
	return sb.String()
}

// WriteFile writes records to path through a temporary file so a crash never
// leaves a truncated file behind that would later look like a cache hit.
func WriteFile(path string, records []Record) error {
	return WriteFileAtomic(path, []byte(Format(records)))
}

// WriteFileAtomic writes data to path via a temp file in the same directory.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// CountHeaders counts header lines in a FASTA blob.
func CountHeaders(s string) int {
	n := 0
	if strings.HasPrefix(s, ">") {
		n++
	}
	return n + strings.Count(s, "\n>")
}

func splitHeader(h string) (id, desc string) {
	h = strings.TrimSpace(h)
	if i := strings.IndexAny(h, " \t"); i >= 0 {
		return h[:i], strings.TrimSpace(h[i+1:])
	}
	return h, ""
}
