// Package sinks holds acquisition.Sink implementations: a ring buffer a
// reader drains concurrently with the capture, and a WAV file writer.
package sinks

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
	"github.com/digitizerlab/ats-go/internal/observability/metrics"
)

// ComponentSinks is the error component of this package
const ComponentSinks = "sinks"

// drop warnings are limited to one per second with a small burst
const (
	dropWarnEvery = time.Second
	dropWarnBurst = 3
)

// RingStats summarises a RingSink
type RingStats struct {
	Chunks   uint64 `yaml:"chunks"`
	Bytes    uint64 `yaml:"bytes"`
	Dropped  uint64 `yaml:"dropped"`
	Buffered int    `yaml:"buffered"`
	Capacity int    `yaml:"capacity"`
}

// RingSink copies chunk data into a byte ring. A chunk that does not fit is
// dropped whole, so the capture loop never blocks on a slow reader.
type RingSink struct {
	log     logger.Logger
	metrics *metrics.AcquisitionMetrics
	limiter *rate.Limiter

	mu     sync.Mutex
	rb     *ringbuffer.RingBuffer
	closed bool

	ready chan struct{}
	done  chan struct{}
	once  sync.Once

	chunks  atomic.Uint64
	bytes   atomic.Uint64
	dropped atomic.Uint64
}

var _ acquisition.Sink = (*RingSink)(nil)

// RingOption configures a RingSink
type RingOption func(*RingSink)

// WithRingLogger sets the sink logger
func WithRingLogger(log logger.Logger) RingOption {
	return func(s *RingSink) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRingMetrics counts dropped chunks
func WithRingMetrics(m *metrics.AcquisitionMetrics) RingOption {
	return func(s *RingSink) { s.metrics = m }
}

// NewRingSink creates a ring of size bytes
func NewRingSink(size int, opts ...RingOption) (*RingSink, error) {
	if size <= 0 {
		return nil, errors.Newf("ring size must be positive, got %d", size).
			Component(ComponentSinks).
			Category(errors.CategoryValidation).
			Context("size", size).
			Build()
	}
	s := &RingSink{
		log:     logger.NewDiscardLogger(),
		limiter: rate.NewLimiter(rate.Every(dropWarnEvery), dropWarnBurst),
		rb:      ringbuffer.New(size),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Module("sinks").With(logger.String("sink", "ring"))
	return s, nil
}

// Consume implements acquisition.Sink
func (s *RingSink) Consume(ctx context.Context, c acquisition.Chunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Newf("ring sink is closed").
			Component(ComponentSinks).
			Category(errors.CategoryState).
			Build()
	}
	free := s.rb.Free()
	if len(c.Data) > free {
		s.mu.Unlock()
		s.drop(ctx, c, free)
		return nil
	}
	_, err := s.rb.Write(c.Data)
	s.mu.Unlock()

	if err != nil {
		return errors.New(err).
			Component(ComponentSinks).
			Category(errors.CategorySink).
			Context("sequence", c.Sequence).
			Build()
	}
	s.chunks.Add(1)
	s.bytes.Add(uint64(len(c.Data)))

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

func (s *RingSink) drop(ctx context.Context, c acquisition.Chunk, free int) {
	n := s.dropped.Add(1)
	s.metrics.RecordChunkDropped("ring")
	if s.limiter.Allow() {
		s.log.WithContext(ctx).Warn("ring full, dropping chunk",
			logger.Uint64("sequence", uint64(c.Sequence)),
			logger.Int("chunk_bytes", len(c.Data)),
			logger.Int("free", free),
			logger.Uint64("dropped_total", n))
	}
}

// Read copies buffered bytes into p without blocking. It returns io.EOF
// once the sink is closed and empty.
func (s *RingSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.rb.Read(p)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		if s.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	return n, err
}

// ReadContext blocks until data is available, the sink is closed and
// drained, or ctx is done
func (s *RingSink) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := s.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.ready:
		case <-s.done:
		}
	}
}

// Drain copies everything the sink receives to w until the sink is closed
// and empty or ctx is done
func (s *RingSink) Drain(ctx context.Context, w io.Writer) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := s.ReadContext(ctx, buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, errors.New(werr).
					Component(ComponentSinks).
					Category(errors.CategoryFileIO).
					Context("operation", "drain").
					Build()
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close stops accepting chunks. Buffered bytes stay readable.
func (s *RingSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Stats returns counters of the sink
func (s *RingSink) Stats() RingStats {
	s.mu.Lock()
	buffered, capacity := s.rb.Length(), s.rb.Capacity()
	s.mu.Unlock()
	return RingStats{
		Chunks:   s.chunks.Load(),
		Bytes:    s.bytes.Load(),
		Dropped:  s.dropped.Load(),
		Buffered: buffered,
		Capacity: capacity,
	}
}
