package ncbi

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEutils simulates esearch/efetch. History searches larger than maxBatch
// return no query key, the way NCBI does for oversized requests.
type fakeEutils struct {
	mu         sync.Mutex
	maxBatch   int
	notFound   map[string]bool
	sessions   map[string][]string
	dropRecord int
	params     []map[string]string
}

func newFakeEutils(maxBatch int) *fakeEutils {
	return &fakeEutils{maxBatch: maxBatch, notFound: map[string]bool{}, sessions: map[string][]string{}}
}

func (f *fakeEutils) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	record := map[string]string{}
	for k := range q {
		record[k] = q.Get(k)
	}
	f.params = append(f.params, record)

	switch {
	case strings.HasSuffix(r.URL.Path, "/esearch.fcgi") && q.Get("usehistory") != "y":
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><eSearchResult><Count>1</Count>`)
		for _, acc := range strings.Split(q.Get("term"), ",") {
			if f.notFound[acc] {
				sb.WriteString("<ErrorList><PhraseNotFound>" + acc + "</PhraseNotFound></ErrorList>")
			}
		}
		sb.WriteString("</eSearchResult>")
		_, _ = w.Write([]byte(sb.String()))

	case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
		terms := strings.Split(q.Get("term"), ",")
		if len(terms) > f.maxBatch {
			_, _ = w.Write([]byte(`<eSearchResult><ERROR>Search Backend failed</ERROR></eSearchResult>`))
			return
		}
		env := fmt.Sprintf("MCID_%d", len(f.sessions))
		f.sessions[env] = terms
		_, _ = w.Write([]byte(`<eSearchResult><Count>` + fmt.Sprint(len(terms)) +
			`</Count><QueryKey>1</QueryKey><WebEnv>` + env + `</WebEnv></eSearchResult>`))

	case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
		terms, ok := f.sessions[q.Get("WebEnv")]
		if !ok {
			_, _ = w.Write([]byte(emptyResultMarker))
			return
		}
		var sb strings.Builder
		for i, acc := range terms {
			if f.dropRecord > 0 && i == 0 {
				f.dropRecord--
				continue
			}
			sb.WriteString(">" + acc + " glycoside hydrolase [Bacteroides ovatus]\nMKVLLA\nQQR\n\n")
		}
		_, _ = w.Write([]byte(sb.String()))

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts.EutilsURL = server.URL
	opts.DatasetsURL = server.URL
	opts.Delay = time.Millisecond
	return NewClient(opts)
}

func accessions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("ABC%05d.1", i)
	}
	return out
}

func TestFetchSequences_BatchShrinkConverges(t *testing.T) {
	fake := newFakeEutils(7)
	client := newTestClient(t, fake, Options{QuerySize: 40})

	res, err := client.FetchSequences(context.Background(), accessions(50))
	require.NoError(t, err)

	assert.Equal(t, 50, res.Queried)
	assert.Equal(t, 50, res.Retrieved)
	assert.LessOrEqual(t, res.BatchSize, 7)
	assert.Equal(t, 5, res.BatchSize, "40 -> 20 -> 10 -> 5")
	assert.Equal(t, 3, client.Failures())
	assert.Equal(t, 50, strings.Count(res.FASTA, ">"))
	assert.NotContains(t, res.FASTA, "\n\n")
}

func TestFetchSequences_RemovesNotFound(t *testing.T) {
	fake := newFakeEutils(100)
	fake.notFound["ABC00001.1"] = true
	fake.notFound["ABC00003.1"] = true
	client := newTestClient(t, fake, Options{})

	res, err := client.FetchSequences(context.Background(), accessions(5))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Queried)
	assert.Equal(t, 3, res.Retrieved)
	assert.NotContains(t, res.FASTA, "ABC00001.1")
	assert.Zero(t, client.Failures())
}

func TestFetchSequences_AllNotFound(t *testing.T) {
	fake := newFakeEutils(100)
	fake.notFound["ABC00000.1"] = true
	client := newTestClient(t, fake, Options{})

	res, err := client.FetchSequences(context.Background(), accessions(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queried)
	assert.Zero(t, res.Retrieved)
	assert.Empty(t, res.FASTA)
}

func TestFetchSequences_IncompleteResultIsRetried(t *testing.T) {
	fake := newFakeEutils(100)
	fake.dropRecord = 1
	client := newTestClient(t, fake, Options{QuerySize: 10})

	res, err := client.FetchSequences(context.Background(), accessions(10))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Retrieved)
	assert.Equal(t, 1, client.Failures())
	assert.Equal(t, 5, res.BatchSize)
}

func TestFetchSequences_FailureBudget(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(t, handler, Options{MaxFailures: 3})

	_, err := client.FetchSequences(context.Background(), accessions(4))
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 3, batchErr.Failures)
	assert.Contains(t, err.Error(), "reduce the query size")

	var queryErr *QueryError
	assert.ErrorAs(t, err, &queryErr)
}

func TestFetchSequences_FailureCounterIsPerClient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	first := newTestClient(t, handler, Options{MaxFailures: 2})
	second := newTestClient(t, handler, Options{MaxFailures: 2})

	_, err := first.FetchSequences(context.Background(), accessions(1))
	require.Error(t, err)
	assert.Equal(t, 2, first.Failures())
	assert.Zero(t, second.Failures())
}

func TestFetchSequences_SendsCredentials(t *testing.T) {
	fake := newFakeEutils(100)
	client := newTestClient(t, fake, Options{APIKey: "secret", Email: "lab@example.org", Tool: "saccharis"})

	_, err := client.FetchSequences(context.Background(), accessions(2))
	require.NoError(t, err)

	require.NotEmpty(t, fake.params)
	for _, p := range fake.params {
		assert.Equal(t, "protein", p["db"])
		assert.Equal(t, "secret", p["api_key"])
		assert.Equal(t, "lab@example.org", p["email"])
		assert.Equal(t, "saccharis", p["tool"])
	}
	history := fake.params[1]
	assert.Equal(t, "2", history["retmax"])
	assert.Equal(t, "y", history["usehistory"])
}

func TestFetchSequences_ContextCancelled(t *testing.T) {
	fake := newFakeEutils(100)
	client := newTestClient(t, fake, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchSequences(ctx, accessions(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.Failures())
}

func TestCleanup(t *testing.T) {
	in := ">sp|P12345|XYN_BACSU Endo-1,4-beta-xylanase\nMKKL\n\n\n>pir||A12345 hydrolase\nMST\n>AAA00001.1 plain\nMK\n"
	out, anomaly := Cleanup(in)

	assert.False(t, anomaly)
	assert.Equal(t, ">P12345 XYN_BACSU Endo-1,4-beta-xylanase\nMKKL\n>A12345 hydrolase\nMST\n>AAA00001.1 plain\nMK\n", out)
}

func TestCleanup_ResidualPipe(t *testing.T) {
	_, anomaly := Cleanup(">AAA00001.1 odd|description\nMK\n")
	assert.True(t, anomaly)
}

func zipPackage(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownloadGenomes(t *testing.T) {
	pkg := zipPackage(t, map[string]string{
		"ncbi_dataset/data/GCA_018292165.1/protein.faa": ">QJR00001.1 GH43 [Bacteroides]\nMKV\n>QJR00002.1 GH10\nMST\n",
		"ncbi_dataset/data/assembly_data_report.jsonl":  "{}",
	})
	var gotPath, gotKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		_, _ = w.Write(pkg)
	})
	client := newTestClient(t, handler, Options{APIKey: "k"})

	records, prov, err := client.DownloadGenomes(context.Background(), []string{"GCA_018292165.1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "QJR00001.1", records[0].ID)
	assert.Equal(t, "NCBI Genome: GCA_018292165.1", prov["QJR00002.1"])
	assert.Equal(t, "/genome/accession/GCA_018292165.1/download", gotPath)
	assert.Equal(t, "k", gotKey)
}

func TestDownloadGenomes_Validation(t *testing.T) {
	client := NewClient(Options{})
	_, _, err := client.DownloadGenomes(context.Background(), []string{"GCX_1"})
	require.Error(t, err)

	var dsErr *DatasetError
	assert.ErrorAs(t, err, &dsErr)
}

func TestDownloadGenomes_MissingMember(t *testing.T) {
	pkg := zipPackage(t, map[string]string{"ncbi_dataset/data/README.md": "x"})
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(pkg) })
	client := newTestClient(t, handler, Options{})

	_, _, err := client.DownloadGenomes(context.Background(), []string{"GCF_000005845.2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protein.faa")
}

func TestDownloadGenes(t *testing.T) {
	pkg := zipPackage(t, map[string]string{
		"ncbi_dataset/data/protein.faa": ">NP_414543.1 thrA\nMRV\n",
	})
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(pkg) })
	client := newTestClient(t, handler, Options{})

	records, prov, err := client.DownloadGenes(context.Background(), []string{"945803"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "NCBI Gene", prov["NP_414543.1"])
}

func TestDownloadGenes_NotZip(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("oops")) })
	client := newTestClient(t, handler, Options{})

	_, _, err := client.DownloadGenes(context.Background(), []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip")
}
