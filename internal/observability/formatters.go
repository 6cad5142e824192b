// Package observability provides formatted console output and run metrics.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted console output for a run.
type Printer struct {
	out io.Writer
	tty bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// Progress lines are rewritten in place only when out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out}
	if f, ok := out.(*os.File); ok {
		p.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintScrapeStats outputs the accounting of one catalog scrape.
func (p *Printer) PrintScrapeStats(group string, mode types.ScrapeMode, stats *types.ScrapeStats) {
	if stats == nil {
		return
	}

	c := stats.Characterized
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Family:   %s\n", group))
	sb.WriteString(fmt.Sprintf("Mode:     %s\n", mode))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Retrieved from listing:     %d\n", c.Retrieved))
	sb.WriteString(fmt.Sprintf("  • accepted                %d\n", c.Accepted))
	sb.WriteString(fmt.Sprintf("  • duplicates              %d\n", c.Duplicate))
	sb.WriteString(fmt.Sprintf("  • fragments               %d\n", c.Fragment))
	sb.WriteString(fmt.Sprintf("  • missing accession       %d\n", c.Missing))
	sb.WriteString(fmt.Sprintf("  • outside domains         %d\n", c.WrongDomain))
	if c.NoDomain > 0 {
		sb.WriteString(fmt.Sprintf("  • no domain               %d\n", c.NoDomain))
	}

	if mode == types.ModeAllCAZymes {
		u := stats.Uncharacterized
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Uncharacterized retrieved:  %d\n", u.Retrieved))
		sb.WriteString(fmt.Sprintf("  • accepted                %d\n", u.Accepted))
		sb.WriteString(fmt.Sprintf("  • duplicates              %d\n", u.Duplicate))
		sb.WriteString(fmt.Sprintf("  • outside domains         %d\n", u.WrongDomain))
		if u.NoDomain > 0 {
			sb.WriteString(fmt.Sprintf("  • no domain               %d\n", u.NoDomain))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("NCBI queried/retrieved:     %d/%d", stats.Remote.Queried, stats.Remote.Retrieved))

	p.printBox("CATALOG SCRAPE SUMMARY", sb.String())
}

// StageTiming records how one pipeline stage was satisfied.
type StageTiming struct {
	Stage    string
	Duration time.Duration
	Cached   bool
}

// PrintStageTimings outputs per-stage durations for a group.
func (p *Printer) PrintStageTimings(group string, timings []StageTiming) {
	if len(timings) == 0 {
		return
	}

	var (
		sb    strings.Builder
		total time.Duration
	)
	for _, t := range timings {
		note := ""
		if t.Cached {
			note = " (cached)"
		}
		sb.WriteString(fmt.Sprintf("%-14s %s%s\n", t.Stage, FormatDuration(t.Duration), note))
		total += t.Duration
	}
	sb.WriteString(fmt.Sprintf("%-14s %s", "TOTAL", FormatDuration(total)))

	p.printBox("STAGE TIMINGS: "+group, sb.String())
}

// PrintBatchSummary lists the outcome of every group in a batch run.
func (p *Printer) PrintBatchSummary(succeeded []string, failed map[string]error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", len(succeeded)))
	count := min(len(succeeded), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", succeeded[i]))
	}
	if len(succeeded) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(succeeded)-maxItemsToShow))
	}
	sb.WriteString(fmt.Sprintf("Failed:    %d", len(failed)))
	for group, err := range failed {
		sb.WriteString(fmt.Sprintf("\n  ✗ %s: %v", group, err))
	}

	p.printBox("BATCH SUMMARY", sb.String())
}

// Progress prints a progress line. On a terminal the line is rewritten in
// place; otherwise every update is its own line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Progress(label string, done, total int) {
	if p.tty {
		fmt.Fprintf(p.out, "\r%s: %d/%d", label, done, total)
		if done >= total {
			fmt.Fprintln(p.out)
		}
		return
	}
	fmt.Fprintf(p.out, "%s: %d/%d\n", label, done, total)
}

// Step prints a numbered stage banner.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Step(n, total int, msg string) {
	fmt.Fprintf(p.out, "Step %d/%d: %s\n", n, total, msg)
}

// FormatDuration renders d as "1h 02m 03s", "2m 05s" or "4.2s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}
