// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Status label values.
const (
	// StatusSuccess marks a device call or allocation that succeeded.
	StatusSuccess = "success"
	// StatusError marks a failed operation.
	StatusError = "error"
)

// Session result label values.
const (
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
	ResultFailed    = "failed"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
