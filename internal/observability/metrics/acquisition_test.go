package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *AcquisitionMetrics {
	t.Helper()
	m, err := NewAcquisitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestAcquisitionMetricsRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewAcquisitionMetrics(registry)
	require.NoError(t, err)

	_, err = NewAcquisitionMetrics(registry)
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestDeviceCallCounters(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordOperation("start_capture", StatusSuccess)
	m.RecordOperation("wait_buffer", StatusSuccess)
	m.RecordOperation("wait_buffer", StatusSuccess)
	m.RecordOperation("wait_buffer", StatusError)
	m.RecordError("wait_buffer", "timeout")

	assert.InDelta(t, 2, testutil.ToFloat64(m.deviceCalls.WithLabelValues("wait_buffer", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deviceCalls.WithLabelValues("wait_buffer", StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deviceErrors.WithLabelValues("wait_buffer", "timeout")), 0)
}

func TestBufferAndSessionMetrics(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordBufferAllocation(StatusSuccess, 4)
	m.SetLiveBuffers(4)
	for range 3 {
		m.RecordBufferCompleted("npt", 1024)
	}
	m.RecordBufferLeak()
	m.SetLiveBuffers(0)
	m.RecordSession("npt", ResultCompleted, 0.5)
	m.RecordChunkDropped("ring")

	assert.InDelta(t, 4, testutil.ToFloat64(m.bufferAllocations.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.buffersCompleted.WithLabelValues("npt")), 0)
	assert.InDelta(t, 3072, testutil.ToFloat64(m.bytesCaptured.WithLabelValues("npt")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.buffersLive), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.bufferLeaks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessions.WithLabelValues("npt", ResultCompleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.chunksDropped.WithLabelValues("ring")), 0)

	expected := `
# HELP atsdaq_buffer_leaks_total Total number of pinned buffers found unreleased
# TYPE atsdaq_buffer_leaks_total counter
atsdaq_buffer_leaks_total 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "atsdaq_buffer_leaks_total"))
}

func TestNilAcquisitionMetricsIsNoOp(t *testing.T) {
	t.Parallel()

	var m *AcquisitionMetrics
	assert.NotPanics(t, func() {
		m.RecordOperation("abort", StatusSuccess)
		m.RecordError("abort", "api")
		m.RecordDuration("configure", 0.1)
		m.RecordSession("ts", ResultAborted, 1)
		m.RecordBufferCompleted("ts", 10)
		m.RecordBufferAllocation(StatusError, 1)
		m.SetLiveBuffers(1)
		m.RecordBufferLeak()
		m.RecordChunkDropped("ring")
	})
}
