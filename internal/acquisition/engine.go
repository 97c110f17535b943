// Package acquisition drives a two-channel 8-bit digitizer board.
//
// A Registry tracks every board parameter and whether its value still has
// to reach the board. An Engine commits the registry through a Driver,
// computes the buffer geometry of an NPT or TS acquisition and runs the
// post/wait/repost loop over pinned buffers from a BufferPool. Every driver
// status passes through the Taxonomy, so failures surface as typed errors:
//
//	engine, err := acquisition.NewEngine(drv, acquisition.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	err = engine.Configure(ctx, acquisition.SetClock(acquisition.ClockInternal,
//	    acquisition.SampleRate100M, acquisition.EdgeRising))
//	res, err := engine.Acquire(ctx, acquisition.Request{
//	    Mode:                  acquisition.ModeNPT,
//	    SamplesPerRecord:      1024,
//	    RecordsPerBuffer:      4,
//	    BuffersPerAcquisition: 10,
//	    Sink:                  sink,
//	})
package acquisition

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digitizerlab/ats-go/internal/acquisition/memory"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
	"github.com/digitizerlab/ats-go/internal/observability/metrics"
)

// Engine defaults
const (
	DefaultSystemID    = 1
	DefaultBoardID     = 1
	DefaultWaitTimeout = 5 * time.Second
)

// Engine owns one board handle. Configure and Acquire are serialised; Abort
// may be called from any goroutine at any time.
type Engine struct {
	driver   Driver
	handle   BoardHandle
	registry *Registry
	taxonomy *Taxonomy
	pool     *BufferPool
	log      logger.Logger
	metrics  *metrics.AcquisitionMetrics

	systemID    uint32
	boardID     uint32
	waitTimeout time.Duration
	bufferCount int
	alloc       memory.Allocator
	probe       MemoryProbe

	opMu           sync.Mutex
	state          atomic.Int32
	abortRequested atomic.Bool
	closed         atomic.Bool

	geoMu    sync.RWMutex
	geometry Geometry
	hasGeo   bool
}

// Option configures an Engine
type Option func(*Engine)

// WithBoard selects the board by system and board id
func WithBoard(systemID, boardID uint32) Option {
	return func(e *Engine) {
		e.systemID = systemID
		e.boardID = boardID
	}
}

// WithLogger sets the engine logger
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics records driver calls, sessions and buffers
func WithMetrics(m *metrics.AcquisitionMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRegistry uses r instead of a registry holding the power-on defaults
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithAllocator sets the memory buffers are drawn from
func WithAllocator(a memory.Allocator) Option {
	return func(e *Engine) { e.alloc = a }
}

// WithMemoryProbe replaces the available memory check of the buffer pool
func WithMemoryProbe(probe MemoryProbe) Option {
	return func(e *Engine) { e.probe = probe }
}

// WithWaitTimeout bounds each wait for a buffer completion
func WithWaitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.waitTimeout = d
		}
	}
}

// WithBufferCount sets how many DMA buffers rotate during a capture. Zero
// allocates one buffer per buffer of the acquisition.
func WithBufferCount(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.bufferCount = n
		}
	}
}

// NewEngine opens the board through driver
func NewEngine(driver Driver, opts ...Option) (*Engine, error) {
	if driver == nil {
		return nil, errors.Newf("driver is nil").
			Component(ComponentAcquisition).
			Category(errors.CategoryValidation).
			Build()
	}

	e := &Engine{
		driver:      driver,
		taxonomy:    DefaultTaxonomy(),
		log:         logger.NewDiscardLogger(),
		systemID:    DefaultSystemID,
		boardID:     DefaultBoardID,
		waitTimeout: DefaultWaitTimeout,
		alloc:       memory.New(),
		probe:       SystemMemory,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Module("acquisition")

	if e.registry == nil {
		e.registry = NewRegistry()
		if err := e.registry.ApplyDefaults(); err != nil {
			return nil, err
		}
	}

	e.handle = driver.BoardBySystemID(e.systemID, e.boardID)
	if e.handle == 0 {
		e.metrics.RecordOperation(OpBoardBySystemID, metrics.StatusError)
		return nil, errors.Newf("board %d/%d not found", e.systemID, e.boardID).
			Component(ComponentAcquisition).
			Category(errors.CategoryNotFound).
			Context("operation", OpBoardBySystemID).
			Context("system_id", e.systemID).
			Context("board_id", e.boardID).
			Build()
	}
	e.metrics.RecordOperation(OpBoardBySystemID, metrics.StatusSuccess)

	e.pool = NewBufferPool(e.alloc,
		WithPoolLogger(e.log),
		WithPoolMetrics(e.metrics),
		WithPoolMemoryProbe(e.probe))

	e.log.Info("board opened",
		logger.Uint32("system_id", e.systemID),
		logger.Uint32("board_id", e.boardID))
	return e, nil
}

// State returns the current engine state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Registry returns the configuration registry of the engine
func (e *Engine) Registry() *Registry {
	return e.registry
}

// LastGeometry returns the geometry of the most recently armed acquisition
func (e *Engine) LastGeometry() (Geometry, bool) {
	e.geoMu.RLock()
	defer e.geoMu.RUnlock()
	return e.geometry, e.hasGeo
}

func (e *Engine) setGeometry(g Geometry) {
	e.geoMu.Lock()
	defer e.geoMu.Unlock()
	e.geometry = g
	e.hasGeo = true
}

// BufferStats returns the statistics of the engine's buffer pool
func (e *Engine) BufferStats() PoolStats {
	return e.pool.Stats()
}

// check classifies a driver status and records the call
func (e *Engine) check(op string, status StatusCode) error {
	err := e.taxonomy.Check(op, status)
	if err == nil {
		e.metrics.RecordOperation(op, metrics.StatusSuccess)
		return nil
	}
	e.metrics.RecordOperation(op, metrics.StatusError)

	class := "unknown"
	var dce *DeviceCallError
	if errors.As(err, &dce) {
		class = string(dce.Class)
	}
	e.metrics.RecordError(op, class)
	e.log.Debug("driver call failed",
		logger.String("operation", op),
		logger.Uint32("status", uint32(status)),
		logger.String("class", class))
	return err
}

func (e *Engine) waitTimeoutMS() uint32 {
	ms := e.waitTimeout.Milliseconds()
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms) //nolint:gosec // bounded above
}

// Abort stops any capture and disarms the board. It is valid in every
// state, always calls the driver and leaves the engine Aborted. A running
// Acquire returns ErrAborted after its current wait.
func (e *Engine) Abort() error {
	e.abortRequested.Store(true)
	err := e.check(OpAbortAsyncRead, e.driver.AbortAsyncRead(e.handle))
	e.setState(StateAborted)
	if err != nil {
		return wrapError(err, "abort", "")
	}
	e.log.Debug("acquisition aborted")
	return nil
}

// Close aborts the board and releases the buffer pool. Buffers still live
// at this point are reported as leaks.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	abortErr := e.Abort()

	e.opMu.Lock()
	defer e.opMu.Unlock()
	return errors.Join(abortErr, e.pool.Close())
}

func (e *Engine) errIfClosed(op string) error {
	if !e.closed.Load() {
		return nil
	}
	return errors.Newf("engine is closed").
		Component(ComponentAcquisition).
		Category(errors.CategoryState).
		Context("operation", op).
		Build()
}
