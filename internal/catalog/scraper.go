package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/fetch"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// DefaultBaseURL is the root of the catalog website.
const DefaultBaseURL = "http://www.cazy.org"

// PageSize is the number of entries per listing page.
const PageSize = 100

// Downloader retrieves raw files.
type Downloader interface {
	Download(ctx context.Context, urlStr string) ([]byte, error)
}

// Request describes one family scrape.
type Request struct {
	Group         string
	Mode          types.ScrapeMode
	Domains       types.DomainSet
	KeepFragments bool
	// Folder receives the downloaded bulk list. Empty skips saving it.
	Folder string
}

// Result holds the records kept after the domain filter, in listing order.
type Result struct {
	Records types.RecordMap
	Order   []string
	Stats   types.ScrapeStats
}

// Scraper walks the paginated listing of a family and cross-references the
// family's bulk list.
type Scraper struct {
	pages   fetch.PageSource
	files   Downloader
	baseURL string
	logger  *slog.Logger
}

// NewScraper creates a Scraper. baseURL defaults to DefaultBaseURL.
func NewScraper(pages fetch.PageSource, files Downloader, baseURL string, logger *slog.Logger) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		pages:   pages,
		files:   files,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "catalog"),
	}
}

// ListingURL returns the first listing page of a family. CBM families have
// no characterized tab, so they always use the structure tab.
func (s *Scraper) ListingURL(group string, mode types.ScrapeMode) string {
	tab := "characterized"
	if mode == types.ModeStructure || strings.Contains(group, "CBM") {
		tab = "structure"
	}
	return fmt.Sprintf("%s/%s_%s.html", s.baseURL, group, tab)
}

// BulkListURL returns the tab-separated dump of every entry of a family.
func (s *Scraper) BulkListURL(group string) string {
	return fmt.Sprintf("%s/IMG/cazy_data/%s.txt", s.baseURL, group)
}

// BulkListPath is where the bulk list of group is saved inside folder.
func BulkListPath(folder, group string) string {
	return filepath.Join(folder, group+"_full_list.txt")
}

// Scrape collects every accepted record of a family.
func (s *Scraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	if err := ValidFamily(req.Group); err != nil {
		return nil, err
	}
	listURL := s.ListingURL(req.Group, req.Mode)
	s.logger.Info("scraping catalog listing", "group", req.Group, "mode", req.Mode, "url", listURL)

	res := &Result{Records: make(types.RecordMap)}
	seen := make(map[string]bool)
	extras := make(map[string]bool)
	cs := &res.Stats.Characterized

	total := 1
	for offset := 0; offset < total; offset += PageSize {
		pageURL := listURL
		if offset > 0 {
			pageURL = fmt.Sprintf("%s?debut_FUNC=%d#pagination_FUNC", listURL, offset)
		}
		body, err := s.pages.Get(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch listing page at offset %d: %w", offset, err)
		}
		page, err := ParsePage(req.Group, body)
		if err != nil {
			return nil, err
		}
		if offset == 0 {
			total = page.Count
		}

		for _, row := range page.Rows {
			cs.Retrieved++
			switch Classify(row, seen, req.KeepFragments) {
			case Accepted:
				seen[row.Accession] = true
				res.Records[row.Accession] = listingRecord(req.Group, row)
				res.Order = append(res.Order, row.Accession)
			case Duplicate:
				cs.Duplicate++
				s.logger.Debug("duplicate entry not added", "accession", row.Accession, "name", row.DisplayName)
			case Fragment:
				cs.Fragment++
				s.logger.Debug("fragment entry not added", "accession", row.Accession, "name", row.DisplayName)
			case Missing:
				cs.Missing++
				s.logger.Debug("entry with missing accession not added", "accession", row.Accession, "name", row.DisplayName)
			}
		}
		for _, acc := range page.ExtraAccessions {
			extras[acc] = true
		}
	}
	added := len(res.Order)

	list, err := s.files.Download(ctx, s.BulkListURL(req.Group))
	if err != nil {
		return nil, fmt.Errorf("failed to download bulk list for %s: %w", req.Group, err)
	}
	if req.Folder != "" {
		if err := os.MkdirAll(req.Folder, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog folder: %w", err)
		}
		if err := os.WriteFile(BulkListPath(req.Folder, req.Group), list, 0o644); err != nil {
			return nil, fmt.Errorf("failed to save bulk list: %w", err)
		}
	}

	uncharAdded, err := s.crossReference(req, list, res, seen, extras)
	if err != nil {
		return nil, err
	}

	s.filterDomains(req.Domains, res)

	us := &res.Stats.Uncharacterized
	cs.Accepted = added - cs.WrongDomain - cs.NoDomain
	us.Accepted = uncharAdded - us.WrongDomain - us.NoDomain

	if !cs.Balanced() || (req.Mode == types.ModeAllCAZymes && !us.Balanced()) {
		s.logger.Warn("scrape statistics do not add up; counts are unreliable, please report this as a bug",
			"group", req.Group, "characterized", *cs, "uncharacterized", *us)
	}
	s.logger.Info("catalog scrape complete", "group", req.Group, "records", len(res.Order))
	return res, nil
}

// crossReference reads the bulk list, backfilling domains of listing records
// and, in ALL_CAZYMES mode, adding placeholders for entries missing from the
// listing. It returns the number of placeholders added.
func (s *Scraper) crossReference(req Request, list []byte, res *Result, listed, extras map[string]bool) (int, error) {
	r := csv.NewReader(bytes.NewReader(list))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	us := &res.Stats.Uncharacterized
	rows, matched, added := 0, 0, 0
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, &FormatError{Group: req.Group, Message: "malformed bulk list", Cause: err}
		}
		if len(fields) < 4 {
			s.logger.Warn("skipping short bulk list line", "group", req.Group, "fields", len(fields))
			continue
		}
		rows++
		class, domain, organism, acc := fields[0], strings.TrimSpace(fields[1]), fields[2], strings.TrimSpace(fields[3])

		if listed[acc] {
			matched++
			res.Records[acc].DomainTag = types.StrPtr(domain)
			continue
		}
		if req.Mode != types.ModeAllCAZymes {
			continue
		}
		if _, exists := res.Records[acc]; exists || extras[acc] || !ValidAccession(acc) {
			us.Duplicate++
			s.logger.Debug("duplicate uncharacterized entry not added", "accession", acc, "organism", organism)
			continue
		}
		res.Records[acc] = &types.SequenceRecord{
			RecordID:         acc,
			Accession:        types.StrPtr(acc),
			DisplayName:      types.StrPtr("Uncharacterized " + class),
			OrganismName:     types.StrPtr(strings.TrimSpace(organism)),
			DomainTag:        types.StrPtr(domain),
			GroupIdentifier:  types.StrPtr(req.Group),
			SourceDescriptor: types.SourceCatalog,
		}
		res.Order = append(res.Order, acc)
		added++
	}

	if req.Mode == types.ModeAllCAZymes {
		us.Retrieved = rows - matched
	}
	return added, nil
}

// filterDomains drops records outside the requested domains. Records whose
// domain tag is missing or unknown are dropped and counted as NoDomain.
func (s *Scraper) filterDomains(domains types.DomainSet, res *Result) {
	cs := &res.Stats.Characterized
	us := &res.Stats.Uncharacterized

	kept := res.Order[:0]
	for _, acc := range res.Order {
		rec := res.Records[acc]
		d, ok := rec.Domain()
		switch {
		case ok && domains.Has(d):
			kept = append(kept, acc)
			continue
		case !ok && rec.Characterized:
			cs.NoDomain++
		case !ok:
			us.NoDomain++
		case rec.Characterized:
			cs.WrongDomain++
		default:
			us.WrongDomain++
		}
		delete(res.Records, acc)
	}
	res.Order = kept
}

func listingRecord(group string, row Row) *types.SequenceRecord {
	return &types.SequenceRecord{
		RecordID:             row.Accession,
		Accession:            types.StrPtr(row.Accession),
		DisplayName:          types.StrPtr(row.DisplayName),
		OrganismName:         types.StrPtr(row.Organism),
		EnzymeClassification: types.StrPtr(row.EC),
		UniprotIDs:           types.StrPtr(row.UniprotIDs),
		StructureIDs:         types.StrPtr(row.StructureIDs),
		ReferenceURL:         types.StrPtr(row.ReferenceURL),
		GroupIdentifier:      types.StrPtr(group),
		SubgroupIdentifier:   types.StrPtr(row.Subfamily),
		SourceDescriptor:     types.SourceCatalog,
		Characterized:        true,
	}
}
