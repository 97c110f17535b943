package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitizerlab/ats-go/internal/observability/metrics"
)

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Acquisition.RecordOperation("start_capture", metrics.StatusSuccess)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	endpoint, err := NewEndpoint(listener.Addr().String(), m, nil)
	require.NoError(t, err)
	assert.Same(t, m, endpoint.GetMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- endpoint.Serve(ctx, listener) }()

	client := &http.Client{Timeout: 5 * time.Second}
	var body string
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + listener.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(data)
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, `atsdaq_device_calls_total{operation="start_capture",status="success"} 1`)
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("endpoint did not shut down")
	}
}

func TestNewEndpointValidation(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint("", m, nil)
	require.Error(t, err)

	_, err = NewEndpoint("127.0.0.1:0", nil, nil)
	require.Error(t, err)
}
