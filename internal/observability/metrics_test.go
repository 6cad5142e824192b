package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.HTTPRequest(200)
	m.HTTPRetry()
	m.BatchFailure(10)
	m.Stage("ALIGN", time.Second, true)
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequest(200)
	m.HTTPRequest(503)
	m.HTTPRequest(503)
	m.HTTPRequest(0)
	m.BatchFailure(50)
	m.Stage("ALIGN", time.Second, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("2xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("error")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.batchSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageCacheHits.WithLabelValues("ALIGN")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.SequencesFetched(7)

	path := filepath.Join(t.TempDir(), "saccharis.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "saccharis_ncbi_sequences_fetched_total 7")
}
