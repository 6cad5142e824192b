package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Column names of the catalog listing table.
const (
	colName      = "Protein Name"
	colEC        = "EC#"
	colReference = "Reference"
	colOrganism  = "Organism"
	colGenBank   = "GenBank"
	colUniprot   = "Uniprot"
	colPDB       = "PDB/3D"
	colSubfamily = "Subf"
)

var knownColumns = map[string]bool{
	colName: true, colEC: true, colReference: true, colOrganism: true,
	colGenBank: true, colUniprot: true, colPDB: true, colSubfamily: true,
}

var countPattern = regexp.MustCompile(`\(\s*(\d+)`)

// Row is one data row of a listing page. Empty strings mean the cell or
// sub-field was absent.
type Row struct {
	Accession    string
	DisplayName  string
	EC           string
	ReferenceURL string
	Organism     string
	UniprotIDs   string
	StructureIDs string
	Subfamily    string
}

// Page is the parsed content of one listing page.
type Page struct {
	// Count is the total number of entries across all pages of the listing.
	Count int
	Rows  []Row
	// ExtraAccessions are the non-authoritative accessions that followed the
	// first one in a GenBank cell.
	ExtraAccessions []string
}

// ParsePage extracts the entry count and data rows from a normalized
// listing page.
func ParsePage(group, pageHTML string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, &FormatError{Group: group, Message: "failed to parse HTML", Cause: err}
	}

	countSel := doc.Find("span#line_actif")
	if countSel.Length() == 0 {
		return nil, &FormatError{Group: group, Message: "no entry count on listing page; if the family has entries, the site layout may have changed"}
	}
	m := countPattern.FindStringSubmatch(countSel.First().Text())
	if m == nil {
		return nil, &FormatError{Group: group, Message: fmt.Sprintf("unreadable entry count %q", strings.TrimSpace(countSel.First().Text()))}
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &FormatError{Group: group, Message: "entry count out of range", Cause: err}
	}

	page := &Page{Count: count}
	rows := doc.Find(`tr[bgcolor="#ffffff"]`)
	if rows.Length() == 0 {
		return page, nil
	}

	columns, err := headerColumns(group, doc)
	if err != nil {
		return nil, err
	}

	rows.Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		cell := func(name string) *goquery.Selection {
			idx, ok := columns[name]
			if !ok || idx >= cells.Length() {
				return nil
			}
			return cells.Eq(idx)
		}

		var row Row
		if c := cell(colGenBank); c != nil {
			accs := separatedTexts(c)
			if len(accs) > 0 {
				row.Accession = accs[0]
				page.ExtraAccessions = append(page.ExtraAccessions, accs[1:]...)
			}
		}
		if c := cell(colName); c != nil {
			row.DisplayName = collapseSpace(c.Text())
		}
		if c := cell(colEC); c != nil {
			row.EC = strings.Join(separatedTexts(c), " ")
		}
		if c := cell(colReference); c != nil {
			if href, ok := c.Find("a").First().Attr("href"); ok {
				row.ReferenceURL = strings.TrimSpace(href)
			}
		}
		if c := cell(colOrganism); c != nil {
			row.Organism = collapseSpace(c.Text())
		}
		if c := cell(colUniprot); c != nil {
			row.UniprotIDs = strings.Join(separatedTexts(c), " ")
		}
		if c := cell(colPDB); c != nil {
			row.StructureIDs = strings.Join(linkTexts(c), " ")
		}
		if c := cell(colSubfamily); c != nil {
			row.Subfamily = collapseSpace(c.Text())
		}
		page.Rows = append(page.Rows, row)
	})

	return page, nil
}

// headerColumns maps known column names to their cell index.
func headerColumns(group string, doc *goquery.Document) (map[string]int, error) {
	header := doc.Find(`tr#line_titre > td:not([colspan])`)
	if header.Length() == 0 {
		return nil, &FormatError{Group: group, Message: "listing table has no header row"}
	}

	columns := make(map[string]int)
	header.Each(func(i int, td *goquery.Selection) {
		name := strings.TrimSpace(td.Text())
		if strings.Contains(name, " Carbohydrate Ligands") {
			name = strings.Fields(name)[0]
		}
		// resolution columns are headed with an Ångström sign, sometimes mis-encoded
		if name == "" || strings.Contains(name, "Å") || strings.Contains(name, "â„«") {
			return
		}
		if _, seen := columns[name]; knownColumns[name] && !seen {
			columns[name] = i
		}
	})

	if _, ok := columns[colGenBank]; !ok {
		return nil, &FormatError{Group: group, Message: "listing table has no GenBank column"}
	}
	return columns, nil
}

// separatedTexts returns the non-blank texts of the direct children of a
// cell, where <br> elements and whitespace separate entries.
func separatedTexts(cell *goquery.Selection) []string {
	var out []string
	cell.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "br" {
			return
		}
		if text := collapseSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// linkTexts prefers anchor texts and falls back to separatedTexts for cells
// without links.
func linkTexts(cell *goquery.Selection) []string {
	var out []string
	cell.Find("a").Each(func(_ int, a *goquery.Selection) {
		if text := collapseSpace(a.Text()); text != "" {
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		return separatedTexts(cell)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Verdict is the outcome of classifying one listing row.
type Verdict int

const (
	Accepted Verdict = iota
	Duplicate
	Fragment
	Missing
)

// Classify decides whether row enters the result. seen holds the accessions
// already accepted from earlier rows and pages.
func Classify(row Row, seen map[string]bool, keepFragments bool) Verdict {
	fragment := !keepFragments && strings.Contains(row.DisplayName, "fragment")
	switch {
	case ValidAccession(row.Accession) && !seen[row.Accession] && !fragment:
		return Accepted
	case row.Accession != "" && seen[row.Accession]:
		return Duplicate
	case row.Accession != "" && fragment:
		return Fragment
	default:
		return Missing
	}
}
