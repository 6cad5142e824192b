package ncbi

import (
	"regexp"
	"strings"
)

var (
	blankLines = regexp.MustCompile(`\n+`)
	pipeRuns   = regexp.MustCompile(`\|+`)
)

// Cleanup collapses blank lines and rewrites composite headers such as
// ">sp|P12345|XYN_BACSU desc" or ">pir||A12345" to ">P12345 XYN_BACSU desc".
// anomaly is true when a '|' survives the rewrite.
func Cleanup(blob string) (cleaned string, anomaly bool) {
	blob = blankLines.ReplaceAllString(blob, "\n")
	if !strings.Contains(blob, "|") {
		return blob, false
	}

	lines := strings.Split(blob, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, ">") {
			continue
		}
		words := strings.Split(line[1:], " ")
		if !strings.Contains(words[0], "|") {
			continue
		}
		parts := strings.Split(pipeRuns.ReplaceAllString(words[0], "|"), "|")
		words[0] = strings.TrimSpace(strings.Join(parts[1:], " "))
		lines[i] = ">" + strings.Join(words, " ")
	}
	cleaned = strings.Join(lines, "\n")
	return cleaned, strings.Contains(cleaned, "|")
}
