package ncbi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/observability"
	"golang.org/x/time/rate"
)

// Defaults for the E-utilities client.
const (
	DefaultEutilsURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	DefaultQuerySize    = 200
	DefaultMinQuerySize = 1
	DefaultMaxFailures  = 100
	DefaultDelay        = 300 * time.Millisecond
	DefaultTimeout      = 2 * time.Minute
)

const emptyResultMarker = "<ERROR>Empty result - nothing to do</ERROR>"

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	EutilsURL   string
	DatasetsURL string
	APIKey      string
	Email       string
	Tool        string

	QuerySize    int
	MinQuerySize int
	MaxFailures  int
	// Delay is the minimum interval between two remote calls.
	Delay time.Duration

	Client  *http.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Progress is called after every successful sub-batch.
	Progress func(done, total int)
}

// Client talks to NCBI. It owns the failure budget shared by every
// FetchSequences call made through it.
type Client struct {
	opts     Options
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *observability.Metrics
	failures int
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.EutilsURL == "" {
		opts.EutilsURL = DefaultEutilsURL
	}
	if opts.DatasetsURL == "" {
		opts.DatasetsURL = DefaultDatasetsURL
	}
	if opts.QuerySize <= 0 {
		opts.QuerySize = DefaultQuerySize
	}
	if opts.MinQuerySize <= 0 {
		opts.MinQuerySize = DefaultMinQuerySize
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.EutilsURL = strings.TrimRight(opts.EutilsURL, "/")
	opts.DatasetsURL = strings.TrimRight(opts.DatasetsURL, "/")

	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(opts.Delay), 1),
		logger:  logger.With("component", "ncbi"),
		metrics: opts.Metrics,
	}
}

// Failures returns the number of failed sub-batches so far.
func (c *Client) Failures() int {
	return c.failures
}

// BatchResult is the outcome of FetchSequences.
type BatchResult struct {
	FASTA     string
	Queried   int
	Retrieved int
	// BatchSize is the sub-batch size in use when the last batch succeeded.
	BatchSize int
}

// FetchSequences downloads the protein FASTA of every accession. Sub-batches
// that fail are retried at half the size until the failure budget runs out.
func (c *Client) FetchSequences(ctx context.Context, accessions []string) (*BatchResult, error) {
	res := &BatchResult{BatchSize: c.opts.QuerySize}
	var sb strings.Builder
	c.metrics.BatchSize(res.BatchSize)

	for res.Queried < len(accessions) {
		end := min(res.Queried+res.BatchSize, len(accessions))
		blob, n, err := c.fetchBatch(ctx, accessions[res.Queried:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.failures++
			if c.failures >= c.opts.MaxFailures {
				return nil, &BatchError{Failures: c.failures, Cause: err}
			}
			res.BatchSize = max((res.BatchSize+1)/2, c.opts.MinQuerySize)
			c.metrics.BatchFailure(res.BatchSize)
			c.logger.Warn("missing FASTA data from NCBI, reducing query size and retrying",
				"error", err, "query_size", res.BatchSize, "failures", c.failures)
			continue
		}

		sb.WriteString(blob)
		res.Retrieved += n
		res.Queried = end
		c.metrics.SequencesFetched(n)
		if c.opts.Progress != nil {
			c.opts.Progress(res.Queried, len(accessions))
		}
	}

	res.FASTA = sb.String()
	if res.Queried != res.Retrieved {
		c.logger.Warn("some accessions have no FASTA data at NCBI",
			"queried", res.Queried, "retrieved", res.Retrieved)
	}
	return res, nil
}

// fetchBatch runs search, history search and fetch for one sub-batch.
func (c *Client) fetchBatch(ctx context.Context, batch []string) (string, int, error) {
	params := c.baseParams()
	params.Set("term", strings.Join(batch, ","))
	body, err := c.get(ctx, c.opts.EutilsURL+"/esearch.fcgi", params, "search")
	if err != nil {
		return "", 0, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", 0, &QueryError{Step: "search", Message: "unreadable response", Cause: err}
	}

	notFound := make(map[string]bool)
	// the HTML parser lowercases element names
	doc.Find("phrasenotfound").Each(func(_ int, s *goquery.Selection) {
		notFound[strings.TrimSpace(s.Text())] = true
	})
	valid := make([]string, 0, len(batch))
	for _, acc := range batch {
		if notFound[acc] {
			c.logger.Debug("accession not found at NCBI", "accession", acc)
			continue
		}
		valid = append(valid, acc)
	}
	if len(valid) == 0 {
		return "", 0, nil
	}

	params = c.baseParams()
	params.Set("retmax", strconv.Itoa(len(valid)))
	params.Set("term", strings.Join(valid, ","))
	params.Set("usehistory", "y")
	body, err = c.get(ctx, c.opts.EutilsURL+"/esearch.fcgi", params, "history search")
	if err != nil {
		return "", 0, err
	}
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", 0, &QueryError{Step: "history search", Message: "unreadable response", Cause: err}
	}
	queryKey := strings.TrimSpace(doc.Find("querykey").First().Text())
	webEnv := strings.TrimSpace(doc.Find("webenv").First().Text())
	if queryKey == "" || webEnv == "" {
		return "", 0, &QueryError{Step: "history search", Message: "query key not found; usually this means the query size is too large"}
	}

	params = c.baseParams()
	params.Set("query_key", queryKey)
	params.Set("WebEnv", webEnv)
	params.Set("rettype", "fasta")
	params.Set("retmode", "text")
	body, err = c.get(ctx, c.opts.EutilsURL+"/efetch.fcgi", params, "fetch")
	if err != nil {
		return "", 0, err
	}
	if strings.Contains(body, emptyResultMarker) {
		c.logger.Warn("NCBI fetch returned an empty result", "accessions", len(valid))
		return "", 0, nil
	}

	cleaned, anomaly := Cleanup(body)
	if anomaly {
		c.logger.Warn("probable parsing error on an accession containing a '|' character; please report this as a bug")
	}
	count := fasta.CountHeaders(cleaned)
	if count != len(valid) {
		return "", 0, &QueryError{Step: "fetch", Message: fmt.Sprintf("incomplete FASTA results: %d/%d returned", count, len(valid))}
	}
	return cleaned, count, nil
}

func (c *Client) baseParams() url.Values {
	v := url.Values{}
	v.Set("db", "protein")
	if c.opts.APIKey != "" {
		v.Set("api_key", c.opts.APIKey)
	}
	if c.opts.Email != "" {
		v.Set("email", c.opts.Email)
	}
	if c.opts.Tool != "" {
		v.Set("tool", c.opts.Tool)
	}
	return v
}

// get performs one paced GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, step string) (string, error) {
	data, err := c.getBytes(ctx, endpoint+"?"+params.Encode(), nil, step)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) getBytes(ctx context.Context, urlStr string, header http.Header, step string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &QueryError{Step: step, Message: "failed to create request", Cause: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.HTTPRequest(0)
		return nil, &QueryError{Step: step, Message: "request failed; NCBI might be down", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.HTTPRequest(resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{Step: step, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &QueryError{Step: step, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return data, nil
}
