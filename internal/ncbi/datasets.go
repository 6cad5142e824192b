package ncbi

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/fasta"
)

// DefaultDatasetsURL is the root of the NCBI Datasets v2 REST API.
const DefaultDatasetsURL = "https://api.ncbi.nlm.nih.gov/datasets/v2"

var genomeAccession = regexp.MustCompile(`^GC[AF]_\w{9}\.\d+$`)

// ValidGenomeAccession reports whether s is an assembly accession such as GCA_018292165.1.
func ValidGenomeAccession(s string) bool {
	return genomeAccession.MatchString(s)
}

// Provenance maps a record id to where it was downloaded from.
type Provenance map[string]string

// DownloadGenomes fetches the annotated proteins of every assembly.
func (c *Client) DownloadGenomes(ctx context.Context, ids []string) ([]fasta.Record, Provenance, error) {
	if len(ids) == 0 {
		return nil, Provenance{}, nil
	}
	for _, id := range ids {
		if !ValidGenomeAccession(id) {
			return nil, nil, &DatasetError{Message: fmt.Sprintf("%q is not a genome assembly accession (expected e.g. GCA_018292165.1)", id)}
		}
	}

	endpoint := fmt.Sprintf("%s/genome/accession/%s/download?include_annotation_type=PROT_FASTA",
		c.opts.DatasetsURL, url.PathEscape(strings.Join(ids, ",")))
	archive, err := c.downloadPackage(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}

	var records []fasta.Record
	prov := make(Provenance)
	for _, id := range ids {
		member := path.Join("ncbi_dataset", "data", id, "protein.faa")
		seqs, err := readMember(archive, member)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range seqs {
			prov[r.ID] = "NCBI Genome: " + id
		}
		records = append(records, seqs...)
		c.logger.Info("downloaded genome proteins", "genome", id, "proteins", len(seqs))
	}
	return records, prov, nil
}

// DownloadGenes fetches the protein products of every gene id.
func (c *Client) DownloadGenes(ctx context.Context, ids []string) ([]fasta.Record, Provenance, error) {
	if len(ids) == 0 {
		return nil, Provenance{}, nil
	}
	endpoint := fmt.Sprintf("%s/gene/id/%s/download?include_annotation_type=FASTA_PROTEIN",
		c.opts.DatasetsURL, url.PathEscape(strings.Join(ids, ",")))
	archive, err := c.downloadPackage(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}

	var records []fasta.Record
	prov := make(Provenance)
	for _, f := range archive.File {
		if path.Base(f.Name) != "protein.faa" {
			continue
		}
		seqs, err := readMember(archive, f.Name)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range seqs {
			prov[r.ID] = "NCBI Gene"
		}
		records = append(records, seqs...)
	}
	if len(records) == 0 {
		return nil, nil, &DatasetError{Message: fmt.Sprintf("no protein sequences in gene package for %s", strings.Join(ids, ","))}
	}
	c.logger.Info("downloaded gene proteins", "genes", len(ids), "proteins", len(records))
	return records, prov, nil
}

func (c *Client) downloadPackage(ctx context.Context, endpoint string) (*zip.Reader, error) {
	header := http.Header{}
	header.Set("Accept", "application/zip")
	if c.opts.APIKey != "" {
		header.Set("api-key", c.opts.APIKey)
	}
	data, err := c.getBytes(ctx, endpoint, header, "datasets download")
	if err != nil {
		return nil, &DatasetError{Message: "package download failed", Cause: err}
	}
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &DatasetError{Message: "problem reading zip package downloaded from NCBI", Cause: err}
	}
	return archive, nil
}

func readMember(archive *zip.Reader, name string) ([]fasta.Record, error) {
	f, err := archive.Open(name)
	if err != nil {
		return nil, &DatasetError{Message: fmt.Sprintf("package has no %s", name), Cause: err}
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &DatasetError{Message: fmt.Sprintf("failed to read %s", name), Cause: err}
	}
	return fasta.Parse(bytes.NewReader(data), name)
}
