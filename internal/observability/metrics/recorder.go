// Package metrics provides custom Prometheus metrics for the acquisition engine.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components that only need generic counters depend on it instead of the
// concrete collectors.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g. ("start_capture", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its class, e.g. ("wait_buffer", "timeout").
	RecordError(operation, errorType string)
}

var _ Recorder = (*AcquisitionMetrics)(nil)
