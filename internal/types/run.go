package types

import "fmt"

// RunIdentity identifies the merged working set of one run.
type RunIdentity struct {
	Hash   string `json:"hash"`
	Index  int    `json:"index"`
	Merged bool   `json:"merged"`
}

// Suffix is appended to output file names. Catalog-only runs have no suffix.
func (r RunIdentity) Suffix() string {
	if !r.Merged {
		return ""
	}
	return fmt.Sprintf("_UserRun%05d", r.Index)
}
