package acquisition

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/digitizerlab/ats-go/internal/acquisition/memory"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
	"github.com/digitizerlab/ats-go/internal/observability/metrics"
)

// BitsPerSample is the only sample width the engine captures
const BitsPerSample = 8

// BufferOwner tells who may touch a buffer's memory
type BufferOwner int32

const (
	// OwnerEngine means the engine may read or free the buffer
	OwnerEngine BufferOwner = iota
	// OwnerDriver means the buffer is posted and the board may write it
	OwnerDriver
)

func (o BufferOwner) String() string {
	if o == OwnerDriver {
		return "driver"
	}
	return "engine"
}

// region is one allocation. The pool tracks regions, callers hold Buffers,
// so a Buffer can become unreachable while its region is still live.
type region struct {
	id     string
	mem    []byte
	freed  bool
	leaked bool
}

// Buffer is a pinned DMA buffer handed out by a BufferPool
type Buffer struct {
	index  int
	region *region
	owner  atomic.Int32
}

// Bytes returns the buffer memory. It must not be read while the driver
// owns the buffer.
func (b *Buffer) Bytes() []byte {
	return b.region.mem
}

// Size returns the buffer size in bytes
func (b *Buffer) Size() int {
	return len(b.region.mem)
}

// Index returns the position of the buffer in its allocation
func (b *Buffer) Index() int {
	return b.index
}

// Owner returns the current owner of the buffer memory
func (b *Buffer) Owner() BufferOwner {
	return BufferOwner(b.owner.Load())
}

// handOff moves ownership from one side to the other
func (b *Buffer) handOff(from, to BufferOwner) error {
	if !b.owner.CompareAndSwap(int32(from), int32(to)) {
		return errors.Newf("buffer %d is owned by %s, expected %s", b.index, b.Owner(), from).
			Component(ComponentAcquisition).
			Category(errors.CategoryState).
			Context("buffer_index", b.index).
			Build()
	}
	return nil
}

// MemoryProbe reports the host memory available for new buffers
type MemoryProbe func() (uint64, error)

// SystemMemory reports available host memory
func SystemMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Available, nil
}

// PoolStats summarises a pool
type PoolStats struct {
	Live    int          `yaml:"live"`
	Tracker TrackerStats `yaml:"tracker"`
}

// BufferPool allocates pinned buffers and releases them as a group
type BufferPool struct {
	alloc   memory.Allocator
	probe   MemoryProbe
	log     logger.Logger
	metrics *metrics.AcquisitionMetrics
	tracker *ResourceTracker

	mu     sync.Mutex
	live   map[string]*region
	closed bool
}

// PoolOption configures a BufferPool
type PoolOption func(*BufferPool)

// WithPoolLogger sets the pool logger
func WithPoolLogger(log logger.Logger) PoolOption {
	return func(p *BufferPool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithPoolMetrics records allocations, live buffers and leaks
func WithPoolMetrics(m *metrics.AcquisitionMetrics) PoolOption {
	return func(p *BufferPool) { p.metrics = m }
}

// WithPoolMemoryProbe replaces the available memory check. A nil probe
// disables the check.
func WithPoolMemoryProbe(probe MemoryProbe) PoolOption {
	return func(p *BufferPool) { p.probe = probe }
}

// NewBufferPool creates a pool drawing memory from alloc
func NewBufferPool(alloc memory.Allocator, opts ...PoolOption) *BufferPool {
	p := &BufferPool{
		alloc: alloc,
		probe: SystemMemory,
		log:   logger.NewDiscardLogger(),
		live:  make(map[string]*region),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Module("buffers")
	p.tracker = NewResourceTracker(p.log)
	return p
}

// Allocate returns count buffers of exactly size bytes. Either all buffers
// are allocated or none are.
func (p *BufferPool) Allocate(count, size int, bitsPerSample uint8) ([]*Buffer, error) {
	if bitsPerSample != BitsPerSample {
		return nil, &UnsupportedFormatError{BitsPerSample: bitsPerSample}
	}
	if p.alloc == nil || !p.alloc.Supported() {
		return nil, &UnsupportedFormatError{
			BitsPerSample: bitsPerSample,
			Reason:        fmt.Sprintf("pinned memory is not available on %s", runtime.GOOS),
		}
	}
	if count <= 0 || size <= 0 {
		return nil, &ResourceAllocationError{Count: count, Size: size,
			Err: errors.NewStd("buffer count and size must be positive")}
	}
	if err := p.checkAvailable(count, size); err != nil {
		p.metrics.RecordBufferAllocation(metrics.StatusError, count)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.Newf("buffer pool is closed").
			Component(ComponentAcquisition).
			Category(errors.CategoryState).
			Build()
	}

	regions := make([]*region, 0, count)
	for range count {
		buf, err := p.alloc.Alloc(size)
		if err != nil {
			p.rollback(regions)
			p.metrics.RecordBufferAllocation(metrics.StatusError, count)
			p.log.Error("buffer allocation failed",
				logger.Int("count", count),
				logger.Int("size", size),
				logger.Int("allocated", len(regions)),
				logger.Error(err))
			return nil, &ResourceAllocationError{Count: count, Size: size, Err: err}
		}
		regions = append(regions, &region{id: p.tracker.Track("dma_buffer", size), mem: buf})
	}

	buffers := make([]*Buffer, count)
	for i, r := range regions {
		p.live[r.id] = r
		b := &Buffer{index: i, region: r}
		runtime.AddCleanup(b, p.collect, r)
		buffers[i] = b
	}

	p.metrics.RecordBufferAllocation(metrics.StatusSuccess, count)
	p.metrics.SetLiveBuffers(len(p.live))
	p.log.Debug("buffers allocated",
		logger.Int("count", count),
		logger.Int("size", size))
	return buffers, nil
}

func (p *BufferPool) checkAvailable(count, size int) error {
	if p.probe == nil {
		return nil
	}
	available, err := p.probe()
	if err != nil {
		p.log.Debug("memory probe failed, skipping check", logger.Error(err))
		return nil
	}
	requested := uint64(count) * uint64(size)
	if requested > available {
		return &ResourceAllocationError{
			Count: count,
			Size:  size,
			Err:   fmt.Errorf("%d bytes requested, %d bytes available", requested, available),
		}
	}
	return nil
}

// rollback frees regions of a failed allocation. Caller holds p.mu.
func (p *BufferPool) rollback(regions []*region) {
	for _, r := range regions {
		if err := p.alloc.Free(r.mem); err != nil {
			p.log.Warn("free during rollback failed", logger.Error(err))
		}
		r.freed = true
		_ = p.tracker.Release(r.id)
	}
}

// collect runs when a Buffer becomes unreachable. A region still live at
// that point was never released. It is reported and left mapped, since the
// board may still own it. ReleaseAll or Close frees it.
func (p *BufferPool) collect(r *region) {
	p.mu.Lock()
	if r.freed || r.leaked {
		p.mu.Unlock()
		return
	}
	r.leaked = true
	p.mu.Unlock()

	p.tracker.ReportLeak(r.id, "buffer unreachable before ReleaseAll")
	p.metrics.RecordBufferLeak()
}

// freeLocked frees one region. Caller holds p.mu.
func (p *BufferPool) freeLocked(r *region) error {
	r.freed = true
	delete(p.live, r.id)
	return p.alloc.Free(r.mem)
}

// ReleaseAll frees every live buffer. Calling it again is a no-op.
func (p *BufferPool) ReleaseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.live) == 0 {
		return nil
	}

	var errs []error
	for _, r := range p.live {
		if err := p.freeLocked(r); err != nil {
			errs = append(errs, err)
		}
		if r.leaked {
			continue
		}
		if err := p.tracker.Release(r.id); err != nil {
			errs = append(errs, err)
		}
	}
	p.metrics.SetLiveBuffers(0)
	return errors.Join(errs...)
}

// Close reports buffers that were never released as leaks, frees them and
// rejects further allocations
func (p *BufferPool) Close() error {
	p.mu.Lock()
	p.closed = true
	freed := len(p.live)
	leaked := make([]*region, 0, len(p.live))
	var errs []error
	for _, r := range p.live {
		if !r.leaked {
			leaked = append(leaked, r)
		}
		if err := p.freeLocked(r); err != nil {
			errs = append(errs, err)
		}
	}
	p.mu.Unlock()

	for _, r := range leaked {
		p.tracker.ReportLeak(r.id, "buffer pool closed with live buffers")
		p.metrics.RecordBufferLeak()
	}
	if freed > 0 {
		p.metrics.SetLiveBuffers(0)
	}
	return errors.Join(errs...)
}

// Live returns the number of allocated buffers not yet released
func (p *BufferPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Stats returns pool statistics
func (p *BufferPool) Stats() PoolStats {
	return PoolStats{Live: p.Live(), Tracker: p.tracker.Stats()}
}
