package types

import (
	"fmt"
	"strings"
)

// ScrapeMode selects which catalog listing is scraped.
type ScrapeMode string

const (
	ModeCharacterized ScrapeMode = "CHARACTERIZED"
	ModeAllCAZymes    ScrapeMode = "ALL_CAZYMES"
	ModeStructure     ScrapeMode = "STRUCTURE"
)

// ParseScrapeMode accepts the canonical names as well as the short CLI forms
// "characterized", "all" and "structure".
func ParseScrapeMode(s string) (ScrapeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "characterized":
		return ModeCharacterized, nil
	case "all", "all_cazymes":
		return ModeAllCAZymes, nil
	case "structure":
		return ModeStructure, nil
	}
	return "", fmt.Errorf("unknown scrape mode %q (valid: characterized, all, structure)", s)
}
