package types

// CharacterizedStats counts rows of the paginated catalog listing.
type CharacterizedStats struct {
	Retrieved   int `json:"retrieved"`
	Accepted    int `json:"accepted"`
	Duplicate   int `json:"duplicate"`
	Fragment    int `json:"fragment"`
	Missing     int `json:"missing"`
	WrongDomain int `json:"wrong_domain"`
	NoDomain    int `json:"no_domain"`
}

// Balanced reports whether every retrieved row is accounted for exactly once.
func (s CharacterizedStats) Balanced() bool {
	return s.Retrieved == s.Accepted+s.Duplicate+s.Fragment+s.Missing+s.WrongDomain+s.NoDomain
}

// UncharacterizedStats counts bulk-list rows that were not on the listing pages.
type UncharacterizedStats struct {
	Retrieved   int `json:"retrieved"`
	Accepted    int `json:"accepted"`
	Duplicate   int `json:"duplicate"`
	WrongDomain int `json:"wrong_domain"`
	NoDomain    int `json:"no_domain"`
}

// Balanced reports whether every retrieved row is accounted for exactly once.
func (s UncharacterizedStats) Balanced() bool {
	return s.Retrieved == s.Accepted+s.Duplicate+s.WrongDomain+s.NoDomain
}

// RemoteStats counts accessions sent to and sequences returned by the sequence database.
type RemoteStats struct {
	Queried   int `json:"queried"`
	Retrieved int `json:"retrieved"`
}

// ScrapeStats is the per-scrape accounting persisted next to the catalog cache.
type ScrapeStats struct {
	Characterized   CharacterizedStats   `json:"characterized"`
	Uncharacterized UncharacterizedStats `json:"uncharacterized"`
	Remote          RemoteStats          `json:"remote"`
}
