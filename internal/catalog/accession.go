package catalog

import "regexp"

// Accession shapes accepted from the catalog. The upstream format is not
// versioned, so the prefix and digit counts are left open.
var (
	genericAccession      = regexp.MustCompile(`^[A-Za-z]{1,3}\d+(\.\d+)?$`)
	nonRedundantAccession = regexp.MustCompile(`^[A-Za-z]{2}_[A-Za-z0-9]+(\.\d+)?$`)
)

// ValidAccession reports whether s looks like a sequence database accession.
func ValidAccession(s string) bool {
	if s == "" {
		return false
	}
	return genericAccession.MatchString(s) || nonRedundantAccession.MatchString(s)
}
