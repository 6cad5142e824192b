package catalog

import (
	"context"
	"fmt"
	"strings"
)

type fixtureRow struct {
	name      string
	ec        []string
	organism  string
	genbank   []string
	uniprot   string
	pdb       string
	subfamily string
	reference string
}

const fixtureHeader = `<tr id="line_titre"><td>Protein Name</td><td>EC#</td><td>Reference</td><td>Organism</td>` +
	`<td>GenBank</td><td>Uniprot</td><td>PDB/3D</td><td>Subf</td></tr>`

// listingHTML renders a listing page the way the catalog does after normalization.
func listingHTML(count int, rows []fixtureRow) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div><span id="line_actif">Characterized <a href="#">`)
	sb.WriteString(fmt.Sprintf("(%d)</a></span></div>", count))
	sb.WriteString(`<table><tr><td colspan="8">pagination</td></tr>`)
	sb.WriteString(fixtureHeader)
	for _, r := range rows {
		sb.WriteString(`<tr bgcolor="#ffffff">`)
		sb.WriteString("<td>" + r.name + "</td>")
		sb.WriteString("<td>")
		for i, ec := range r.ec {
			if i > 0 {
				sb.WriteString("<br>")
			}
			sb.WriteString(`<a href="http://www.enzyme-database.org/` + ec + `">` + ec + "</a>")
		}
		sb.WriteString("</td>")
		if r.reference != "" {
			sb.WriteString(`<td><a href="` + r.reference + `">ref</a></td>`)
		} else {
			sb.WriteString("<td></td>")
		}
		sb.WriteString("<td><b>" + r.organism + "</b></td>")
		sb.WriteString("<td>" + strings.Join(r.genbank, "<br>") + "</td>")
		sb.WriteString("<td>" + r.uniprot + "</td>")
		if r.pdb != "" {
			sb.WriteString(`<td><a href="#">` + r.pdb + "</a></td>")
		} else {
			sb.WriteString("<td></td>")
		}
		sb.WriteString("<td>" + r.subfamily + "</td>")
		sb.WriteString("</tr>")
	}
	sb.WriteString("</table></body></html>")
	return sb.String()
}

type bulkRow struct {
	class, domain, organism, accession string
}

func bulkList(rows []bulkRow) []byte {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(strings.Join([]string{r.class, r.domain, r.organism, r.accession}, "\t"))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// fakeSite serves pages and files from memory and counts requests.
type fakeSite struct {
	pages map[string]string
	files map[string][]byte
	calls int
}

func (f *fakeSite) Get(_ context.Context, urlStr string) (string, error) {
	f.calls++
	page, ok := f.pages[urlStr]
	if !ok {
		return "", fmt.Errorf("unexpected page %s", urlStr)
	}
	return page, nil
}

func (f *fakeSite) Download(_ context.Context, urlStr string) ([]byte, error) {
	f.calls++
	data, ok := f.files[urlStr]
	if !ok {
		return nil, fmt.Errorf("unexpected file %s", urlStr)
	}
	return data, nil
}
