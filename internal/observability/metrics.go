package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms of one run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpRetries      prometheus.Counter
	batchFailures    prometheus.Counter
	batchSize        prometheus.Gauge
	sequencesFetched prometheus.Counter
	stageDuration    *prometheus.HistogramVec
	stageCacheHits   *prometheus.CounterVec
	recordsMerged    *prometheus.CounterVec
}

// NewMetrics registers every metric on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saccharis_http_requests_total",
			Help: "HTTP requests made to remote services by status class",
		}, []string{"status"}),
		httpRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "saccharis_http_retries_total",
			Help: "HTTP requests retried after a non-200 response",
		}),
		batchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "saccharis_ncbi_batch_failures_total",
			Help: "NCBI sub-batches that failed and were retried with a smaller size",
		}),
		batchSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "saccharis_ncbi_batch_size",
			Help: "Current NCBI sub-batch size",
		}),
		sequencesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "saccharis_ncbi_sequences_fetched_total",
			Help: "Sequences downloaded from NCBI",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saccharis_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"stage"}),
		stageCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saccharis_stage_cache_hits_total",
			Help: "Pipeline stages satisfied from existing outputs",
		}, []string{"stage"}),
		recordsMerged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saccharis_records_merged_total",
			Help: "Records in the merged working set by source kind",
		}, []string{"source"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTPRequest records one completed request. status 0 means a transport error.
func (m *Metrics) HTTPRequest(status int) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.httpRequests.WithLabelValues(class).Inc()
}

// HTTPRetry records a retried request.
func (m *Metrics) HTTPRetry() {
	if m == nil {
		return
	}
	m.httpRetries.Inc()
}

// BatchFailure records a failed sub-batch and the size it shrank to.
func (m *Metrics) BatchFailure(newSize int) {
	if m == nil {
		return
	}
	m.batchFailures.Inc()
	m.batchSize.Set(float64(newSize))
}

// BatchSize records the current sub-batch size.
func (m *Metrics) BatchSize(size int) {
	if m == nil {
		return
	}
	m.batchSize.Set(float64(size))
}

// SequencesFetched adds n downloaded sequences.
func (m *Metrics) SequencesFetched(n int) {
	if m == nil {
		return
	}
	m.sequencesFetched.Add(float64(n))
}

// Stage records a stage run or cache hit.
func (m *Metrics) Stage(stage string, d time.Duration, cached bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if cached {
		m.stageCacheHits.WithLabelValues(stage).Inc()
	}
}

// RecordsMerged adds n records from the given source kind.
func (m *Metrics) RecordsMerged(source string, n int) {
	if m == nil {
		return
	}
	m.recordsMerged.WithLabelValues(source).Add(float64(n))
}

// WriteTextfile dumps every metric in the Prometheus text format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
