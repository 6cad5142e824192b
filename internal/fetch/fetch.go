// Package fetch retrieves catalog pages and files over HTTP with retry and backoff.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/saccharis/SACCHARIS-2/internal/observability"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; SACCHARIS/2.0)"

// DefaultMaxAttempts bounds the number of requests made for one URL.
const DefaultMaxAttempts = 5

// Backoff steps per attempt when the server gives no Retry-After.
const (
	tooManyRequestsStep = 30 * time.Second
	unavailableStep     = 60 * time.Second
	otherStatusStep     = 3 * time.Second
)

// PageSource returns the normalized HTML of a page.
type PageSource interface {
	Get(ctx context.Context, urlStr string) (string, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures the fetch behavior.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxAttempts int
	Client      *http.Client
	Sleep       SleepFunc
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Fetcher performs GET requests with the retry policy of the catalog site.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxAttempts int
	sleep       SleepFunc
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Fetcher. Zero fields of opts take their defaults.
func New(opts *Options) *Fetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	f := &Fetcher{
		client:      opts.Client,
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if f.client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		f.client = &http.Client{Timeout: timeout}
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	if f.sleep == nil {
		f.sleep = SleepContext
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "fetch")
	return f
}

// Get retrieves a catalog page and returns its normalized HTML.
func (f *Fetcher) Get(ctx context.Context, urlStr string) (string, error) {
	body, err := f.Download(ctx, urlStr)
	if err != nil {
		return "", err
	}
	return Normalize(string(body)), nil
}

// Download retrieves urlStr and returns the raw body.
//
// 429 and 503 responses honor Retry-After, falling back to a linear backoff
// of 30s or 60s per attempt. Any other non-200 status backs off 3s per
// attempt. A transport failure is returned immediately.
func (f *Fetcher) Download(ctx context.Context, urlStr string) ([]byte, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &TransportError{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	lastStatus := 0
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		status, body, retryAfter, err := f.do(ctx, urlStr)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return body, nil
		}
		lastStatus = status

		if attempt == f.maxAttempts {
			break
		}

		wait := backoff(status, attempt, retryAfter)
		f.logger.Warn("retrying request",
			"url", urlStr, "status", status, "attempt", attempt, "wait", wait)
		f.metrics.HTTPRetry()
		if err := f.sleep(ctx, wait); err != nil {
			return nil, &TransportError{URL: urlStr, Message: "interrupted while backing off", Cause: err}
		}
	}

	return nil, &ServiceError{URL: urlStr, StatusCode: lastStatus, Attempts: f.maxAttempts}
}

func (f *Fetcher) do(ctx context.Context, urlStr string) (int, []byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, nil, "", &TransportError{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.HTTPRequest(0)
		return 0, nil, "", &TransportError{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	f.metrics.HTTPRequest(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, resp.Header.Get("Retry-After"), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", &TransportError{URL: urlStr, Message: "failed to read response body", Cause: err}
	}
	return resp.StatusCode, body, "", nil
}

func backoff(status, attempt int, retryAfter string) time.Duration {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if d, ok := ParseRetryAfter(retryAfter, time.Now()); ok {
			return d
		}
		if status == http.StatusTooManyRequests {
			return tooManyRequestsStep * time.Duration(attempt)
		}
		return unavailableStep * time.Duration(attempt)
	default:
		return otherStatusStep * time.Duration(attempt)
	}
}

// ParseRetryAfter interprets a Retry-After header given as delta-seconds or
// an HTTP date. Dates in the past yield zero.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// Normalize repairs whitespace and color-attribute quirks of the catalog
// markup so row selectors match consistently.
func Normalize(html string) string {
	html = strings.ReplaceAll(html, "> <", "><")
	return strings.ReplaceAll(html, "#FFFFFF", "#ffffff")
}

// SleepContext sleeps for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time check that Fetcher satisfies PageSource.
var _ PageSource = (*Fetcher)(nil)
