package types

import (
	"fmt"
	"sort"
	"strings"
)

// Domain is a taxonomic domain of life as reported by the catalog.
type Domain uint8

const (
	Archaea Domain = 1 << iota
	Bacteria
	Eukaryota
	Viruses
	Unclassified
)

// allDomains lists every domain in display order.
var allDomains = []Domain{Archaea, Bacteria, Eukaryota, Viruses, Unclassified}

var domainNames = map[Domain]string{
	Archaea:      "archaea",
	Bacteria:     "bacteria",
	Eukaryota:    "eukaryota",
	Viruses:      "viruses",
	Unclassified: "unclassified",
}

func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("domain(%d)", uint8(d))
}

// ParseDomain resolves a single domain name. The catalog bulk list spells
// domains in title case ("Bacteria") so matching is case-insensitive.
func ParseDomain(s string) (Domain, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range domainNames {
		if s == name {
			return d, true
		}
	}
	return 0, false
}

// DomainSet is a set of domains. The zero value is the empty set.
type DomainSet uint8

// AllDomains returns the set containing every domain.
func AllDomains() DomainSet {
	var s DomainSet
	for _, d := range allDomains {
		s |= DomainSet(d)
	}
	return s
}

// NewDomainSet builds a set from the given domains.
func NewDomainSet(domains ...Domain) DomainSet {
	var s DomainSet
	for _, d := range domains {
		s |= DomainSet(d)
	}
	return s
}

// ParseDomainSet parses "all" or a comma separated list of domain names.
func ParseDomainSet(s string) (DomainSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllDomains(), nil
	}
	var set DomainSet
	for _, part := range strings.Split(s, ",") {
		d, ok := ParseDomain(part)
		if !ok {
			return 0, fmt.Errorf("unknown domain %q (valid: archaea, bacteria, eukaryota, viruses, unclassified, all)", strings.TrimSpace(part))
		}
		set |= DomainSet(d)
	}
	return set, nil
}

// Union returns the union of both sets.
func (s DomainSet) Union(other DomainSet) DomainSet {
	return s | other
}

// Has reports whether d is in the set.
func (s DomainSet) Has(d Domain) bool {
	return s&DomainSet(d) != 0
}

// IsAll reports whether every domain is in the set.
func (s DomainSet) IsAll() bool {
	return s == AllDomains()
}

// Domains returns the members in display order.
func (s DomainSet) Domains() []Domain {
	var out []Domain
	for _, d := range allDomains {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// DirName is the folder name fragment used for a run's output folder,
// "ALL_DOMAINS" or the upper-cased initials of each member, e.g. "AB".
func (s DomainSet) DirName() string {
	if s.IsAll() {
		return "ALL_DOMAINS"
	}
	var sb strings.Builder
	for _, d := range s.Domains() {
		sb.WriteString(strings.ToUpper(d.String()[:1]))
	}
	return sb.String()
}

func (s DomainSet) String() string {
	if s.IsAll() {
		return "all"
	}
	names := make([]string, 0, len(allDomains))
	for _, d := range s.Domains() {
		names = append(names, d.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
