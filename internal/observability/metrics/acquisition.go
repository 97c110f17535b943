package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AcquisitionMetrics contains Prometheus metrics for digitizer acquisition.
// All recording methods are safe on a nil receiver so components can run
// without metrics wired.
type AcquisitionMetrics struct {
	registry *prometheus.Registry

	// Driver metrics
	deviceCalls  *prometheus.CounterVec
	deviceErrors *prometheus.CounterVec

	// Session metrics
	sessions         *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	operationSeconds *prometheus.HistogramVec

	// Buffer metrics
	buffersCompleted  *prometheus.CounterVec
	bytesCaptured     *prometheus.CounterVec
	bufferAllocations *prometheus.CounterVec
	buffersLive       prometheus.Gauge
	bufferLeaks       prometheus.Counter

	// Sink metrics
	chunksDropped *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewAcquisitionMetrics creates and registers new acquisition metrics
func NewAcquisitionMetrics(registry *prometheus.Registry) (*AcquisitionMetrics, error) {
	m := &AcquisitionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AcquisitionMetrics) initMetrics() {
	m.deviceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_device_calls_total",
			Help: "Total number of driver calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.deviceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_device_errors_total",
			Help: "Total number of failed driver calls by operation and error class",
		},
		[]string{"operation", "class"},
	)

	m.sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_sessions_total",
			Help: "Total number of acquisition sessions by mode and result",
		},
		[]string{"mode", "result"},
	)

	m.sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atsdaq_session_duration_seconds",
			Help:    "Wall time of acquisition sessions from arm to exit",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
		},
		[]string{"mode"},
	)

	m.operationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atsdaq_operation_duration_seconds",
			Help:    "Duration of engine operations such as configure",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.buffersCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_buffers_completed_total",
			Help: "Total number of DMA buffers completed by the board",
		},
		[]string{"mode"},
	)

	m.bytesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_bytes_captured_total",
			Help: "Total number of sample bytes delivered to sinks",
		},
		[]string{"mode"},
	)

	m.bufferAllocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_buffer_allocations_total",
			Help: "Total number of pinned buffer allocations by status",
		},
		[]string{"status"},
	)

	m.buffersLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "atsdaq_buffers_live",
			Help: "Number of pinned buffers currently allocated",
		},
	)

	m.bufferLeaks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atsdaq_buffer_leaks_total",
			Help: "Total number of pinned buffers found unreleased",
		},
	)

	m.chunksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atsdaq_chunks_dropped_total",
			Help: "Total number of chunks a sink could not accept",
		},
		[]string{"sink"},
	)

	m.collectors = []prometheus.Collector{
		m.deviceCalls,
		m.deviceErrors,
		m.sessions,
		m.sessionDuration,
		m.operationSeconds,
		m.buffersCompleted,
		m.bytesCaptured,
		m.bufferAllocations,
		m.buffersLive,
		m.bufferLeaks,
		m.chunksDropped,
	}
}

// Describe implements the Collector interface
func (m *AcquisitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AcquisitionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records a driver call outcome
func (m *AcquisitionMetrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.deviceCalls.WithLabelValues(operation, status).Inc()
}

// RecordDuration records the duration of an engine operation
func (m *AcquisitionMetrics) RecordDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationSeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordError records a classified driver error
func (m *AcquisitionMetrics) RecordError(operation, errorType string) {
	if m == nil {
		return
	}
	m.deviceErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordSession records a finished acquisition session
func (m *AcquisitionMetrics) RecordSession(mode, result string, seconds float64) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(mode, result).Inc()
	m.sessionDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordBufferCompleted records one completed DMA buffer of the given size
func (m *AcquisitionMetrics) RecordBufferCompleted(mode string, bytes int) {
	if m == nil {
		return
	}
	m.buffersCompleted.WithLabelValues(mode).Inc()
	m.bytesCaptured.WithLabelValues(mode).Add(float64(bytes))
}

// RecordBufferAllocation records an allocation attempt of count buffers
func (m *AcquisitionMetrics) RecordBufferAllocation(status string, count int) {
	if m == nil {
		return
	}
	m.bufferAllocations.WithLabelValues(status).Add(float64(count))
}

// SetLiveBuffers updates the number of currently allocated buffers
func (m *AcquisitionMetrics) SetLiveBuffers(count int) {
	if m == nil {
		return
	}
	m.buffersLive.Set(float64(count))
}

// RecordBufferLeak records a buffer that was never released
func (m *AcquisitionMetrics) RecordBufferLeak() {
	if m == nil {
		return
	}
	m.bufferLeaks.Inc()
}

// RecordChunkDropped records a chunk a sink dropped
func (m *AcquisitionMetrics) RecordChunkDropped(sink string) {
	if m == nil {
		return
	}
	m.chunksDropped.WithLabelValues(sink).Inc()
}
