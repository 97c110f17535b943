package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/digitizerlab/ats-go/internal/logger"
	metricspkg "github.com/digitizerlab/ats-go/internal/observability/metrics"
)

// readHeaderTimeout bounds slow scrapers
const readHeaderTimeout = 10 * time.Second

// Endpoint serves the Prometheus /metrics page.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates a new metrics Endpoint listening on listenAddress.
func NewEndpoint(listenAddress string, metrics *Metrics, log logger.Logger) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is empty")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics instance is required")
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)

	return &Endpoint{
		server: &http.Server{
			Addr:              listenAddress,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listenAddress: listenAddress,
		metrics:       metrics,
		log:           log.Module("metrics"),
	}, nil
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	return e.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is cancelled.
func (e *Endpoint) Serve(ctx context.Context, listener net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		serveErr <- e.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-serveErr
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
