package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleeps returns a SleepFunc that records the requested waits instead of sleeping.
func recordSleeps(waits *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestGet_SuccessNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<table> <tr bgcolor="#FFFFFF"><td>x</td></tr></table>`))
	}))
	defer server.Close()

	f := New(&Options{})
	html, err := f.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, `<table><tr bgcolor="#ffffff"><td>x</td></tr></table>`, html)
}

func TestGet_InvalidURL(t *testing.T) {
	_, err := New(nil).Get(context.Background(), "not-a-valid-url")
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestGet_TransportErrorIsImmediate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	var waits []time.Duration
	f := New(&Options{Sleep: recordSleeps(&waits)})
	_, err := f.Get(context.Background(), url)
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Empty(t, waits, "transport errors must not be retried")
}

func TestGet_ServiceUnavailableHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	var waits []time.Duration
	f := New(&Options{Sleep: recordSleeps(&waits)})
	body, err := f.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, waits)
}

func TestGet_BackoffWithoutRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		status int
		step   time.Duration
	}{
		{"too many requests", http.StatusTooManyRequests, 30 * time.Second},
		{"service unavailable", http.StatusServiceUnavailable, 60 * time.Second},
		{"other status", http.StatusInternalServerError, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			var waits []time.Duration
			f := New(&Options{Sleep: recordSleeps(&waits)})
			_, err := f.Get(context.Background(), server.URL)
			require.Error(t, err)

			var serviceErr *ServiceError
			require.ErrorAs(t, err, &serviceErr)
			assert.Equal(t, tt.status, serviceErr.StatusCode)
			assert.Equal(t, DefaultMaxAttempts, serviceErr.Attempts)
			assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
			assert.Equal(t, []time.Duration{tt.step, 2 * tt.step, 3 * tt.step, 4 * tt.step}, waits)
		})
	}
}

func TestGet_CancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := New(&Options{Sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}})
	_, err := f.Get(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownload_ReturnsRawBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("GH\tBacteria\tE. coli\tAAA1.1\n#FFFFFF"))
	}))
	defer server.Close()

	body, err := New(nil).Download(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "#FFFFFF")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	d, ok := ParseRetryAfter("120", now)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, d)

	d, ok = ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	d, ok = ParseRetryAfter(now.Add(-time.Hour).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Zero(t, d)

	_, ok = ParseRetryAfter("", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("soon", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("-3", now)
	assert.False(t, ok)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
