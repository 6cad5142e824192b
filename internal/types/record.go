// Package types provides the data model shared by the acquisition, merge and pipeline packages.
package types

// SourceCatalog is the source descriptor of records scraped from the catalog.
const SourceCatalog = "catalog"

// SequenceRecord is the metadata kept for one sequence of the working set.
// Optional fields are nil when the source did not provide them.
type SequenceRecord struct {
	RecordID             string  `json:"record_id"`
	Accession            *string `json:"accession"`
	DisplayName          *string `json:"display_name"`
	OrganismName         *string `json:"organism_name"`
	DomainTag            *string `json:"domain_tag"`
	EnzymeClassification *string `json:"enzyme_classification"`
	UniprotIDs           *string `json:"uniprot_ids"`
	StructureIDs         *string `json:"structure_ids"`
	ReferenceURL         *string `json:"reference_url"`
	GroupIdentifier      *string `json:"group_identifier"`
	SubgroupIdentifier   *string `json:"subgroup_identifier"`
	BoundaryStart        *int    `json:"boundary_start"`
	BoundaryEnd          *int    `json:"boundary_end"`
	SourceDescriptor     string  `json:"source_descriptor"`
	Characterized        bool    `json:"characterized"`
}

// Domain resolves DomainTag. ok is false when the tag is missing or unknown.
func (r *SequenceRecord) Domain() (Domain, bool) {
	if r.DomainTag == nil {
		return 0, false
	}
	return ParseDomain(*r.DomainTag)
}

// StrPtr returns nil for an empty string and a pointer to s otherwise.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RecordMap indexes records by RecordID.
type RecordMap map[string]*SequenceRecord
