// Package simulator provides an in-process digitizer board that implements
// acquisition.Driver. It honours the post/wait/abort protocol of the real
// board, fills completed buffers with a deterministic waveform and lets
// tests inject status codes per operation.
package simulator

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// Status codes the simulated board produces on its own
const (
	StatusNotInitialized acquisition.StatusCode = 556
	StatusNoSuchChannel  acquisition.StatusCode = 561
	StatusInvalidHandle  acquisition.StatusCode = 572
	StatusBufferNotReady acquisition.StatusCode = 573
	StatusWaitTimeout    acquisition.StatusCode = 579
	StatusWaitCanceled   acquisition.StatusCode = 580
	StatusBufferTooSmall acquisition.StatusCode = 581
	StatusInvalidBuffer  acquisition.StatusCode = 583
)

const (
	simulatedHandle     acquisition.BoardHandle = 1
	defaultMaxSamples                           = 1 << 28
	waveformPeriod                              = 64
	waveformAmplitude                           = 100
	interleaveSamplesBit                        = 0x1000
)

// Call is one recorded driver call
type Call struct {
	Op      string
	Channel uint8
	Args    []int64
}

// Board is a simulated two-channel 8-bit board
type Board struct {
	log logger.Logger

	mu            sync.Mutex
	systemID      uint32
	boardID       uint32
	bitsPerSample uint8
	maxSamples    uint32
	delay         time.Duration

	calls   []Call
	next    map[string][]acquisition.StatusCode
	always  map[string]acquisition.StatusCode
	config  map[string]uint32
	params  acquisition.AsyncReadParams
	armed   bool
	running bool
	posted  [][]byte
	abortCh chan struct{}
	sample  uint64
}

var _ acquisition.Driver = (*Board)(nil)

// Option configures a Board
type Option func(*Board)

// WithBoardID sets the system and board id the board answers to
func WithBoardID(systemID, boardID uint32) Option {
	return func(b *Board) {
		b.systemID = systemID
		b.boardID = boardID
	}
}

// WithBitsPerSample sets the sample width reported by GetChannelInfo
func WithBitsPerSample(bits uint8) Option {
	return func(b *Board) { b.bitsPerSample = bits }
}

// WithCompletionDelay sets how long each buffer takes to fill
func WithCompletionDelay(d time.Duration) Option {
	return func(b *Board) { b.delay = d }
}

// WithLogger sets the board logger
func WithLogger(log logger.Logger) Option {
	return func(b *Board) {
		if log != nil {
			b.log = log
		}
	}
}

// New creates a simulated board with system id 1 and board id 1
func New(opts ...Option) *Board {
	b := &Board{
		log:           logger.NewDiscardLogger(),
		systemID:      1,
		boardID:       1,
		bitsPerSample: 8,
		maxSamples:    defaultMaxSamples,
		next:          make(map[string][]acquisition.StatusCode),
		always:        make(map[string]acquisition.StatusCode),
		config:        make(map[string]uint32),
		abortCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Module("simulator")
	return b
}

// FailNext makes the next call of op return code. Repeated calls queue up.
func (b *Board) FailNext(op string, code acquisition.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next[op] = append(b.next[op], code)
}

// FailAlways makes every call of op return code
func (b *Board) FailAlways(op string, code acquisition.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.always[op] = code
}

// ClearFailures removes all injected statuses
func (b *Board) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.next)
	clear(b.always)
}

// SetBitsPerSample changes the reported sample width
func (b *Board) SetBitsPerSample(bits uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bitsPerSample = bits
}

// SetCompletionDelay changes how long each buffer takes to fill
func (b *Board) SetCompletionDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Calls returns the recorded calls in order
func (b *Board) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// Ops returns the recorded operation names in order
func (b *Board) Ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]string, len(b.calls))
	for i, c := range b.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how often op was called
func (b *Board) Count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls
func (b *Board) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// Params returns the arguments of the last accepted BeforeAsyncRead
func (b *Board) Params() acquisition.AsyncReadParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params
}

// Config returns the last accepted code of a configuration value such as
// "sample_rate" or "range1"
func (b *Board) Config(name string) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.config[name]
	return v, ok
}

// Posted returns the number of buffers the board holds
func (b *Board) Posted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posted)
}

// Running reports whether a capture is in progress
func (b *Board) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// begin records a call and returns an injected or handle status.
// Caller holds b.mu.
func (b *Board) begin(h acquisition.BoardHandle, c Call) (acquisition.StatusCode, bool) {
	b.calls = append(b.calls, c)
	b.log.Trace("driver call", logger.String("operation", c.Op))

	if q := b.next[c.Op]; len(q) > 0 {
		b.next[c.Op] = q[1:]
		return q[0], true
	}
	if code, ok := b.always[c.Op]; ok {
		return code, true
	}
	if h != simulatedHandle {
		return StatusInvalidHandle, true
	}
	return acquisition.StatusSuccess, false
}

// BoardBySystemID implements acquisition.Driver
func (b *Board) BoardBySystemID(systemID, boardID uint32) acquisition.BoardHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: acquisition.OpBoardBySystemID, Args: []int64{int64(systemID), int64(boardID)}})
	if systemID != b.systemID || boardID != b.boardID {
		return 0
	}
	return simulatedHandle
}

// SetCaptureClock implements acquisition.Driver
func (b *Board) SetCaptureClock(h acquisition.BoardHandle, source, rate, edge, decimation uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetCaptureClock, Args: args(source, rate, edge, decimation)}); done {
		return code
	}
	b.store(map[string]uint32{"clock_source": source, "sample_rate": rate, "clock_edge": edge, "decimation": decimation})
	return acquisition.StatusSuccess
}

// InputControl implements acquisition.Driver
func (b *Board) InputControl(h acquisition.BoardHandle, channel uint8, coupling, inputRange, impedance uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpInputControl, Channel: channel, Args: args(coupling, inputRange, impedance)}); done {
		return code
	}
	if channel != 1 && channel != 2 {
		return StatusNoSuchChannel
	}
	b.store(map[string]uint32{
		suffix("coupling", channel):  coupling,
		suffix("range", channel):     inputRange,
		suffix("impedance", channel): impedance,
	})
	return acquisition.StatusSuccess
}

// SetBWLimit implements acquisition.Driver
func (b *Board) SetBWLimit(h acquisition.BoardHandle, channel uint8, enable uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetBWLimit, Channel: channel, Args: args(enable)}); done {
		return code
	}
	if channel != 1 && channel != 2 {
		return StatusNoSuchChannel
	}
	b.store(map[string]uint32{suffix("bwlimit", channel): enable})
	return acquisition.StatusSuccess
}

// SetTriggerOperation implements acquisition.Driver
func (b *Board) SetTriggerOperation(h acquisition.BoardHandle, t acquisition.TriggerOperationArgs) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := Call{Op: acquisition.OpSetTriggerOp, Args: args(t.Operation,
		t.Engine1, t.Source1, t.Slope1, t.Level1,
		t.Engine2, t.Source2, t.Slope2, t.Level2)}
	if code, done := b.begin(h, c); done {
		return code
	}
	b.store(map[string]uint32{
		"trigger_operation": t.Operation,
		"trigger_engine1":   t.Engine1,
		"trigger_source1":   t.Source1,
		"trigger_slope1":    t.Slope1,
		"trigger_level1":    t.Level1,
		"trigger_engine2":   t.Engine2,
		"trigger_source2":   t.Source2,
		"trigger_slope2":    t.Slope2,
		"trigger_level2":    t.Level2,
	})
	return acquisition.StatusSuccess
}

// SetExternalTrigger implements acquisition.Driver
func (b *Board) SetExternalTrigger(h acquisition.BoardHandle, coupling, inputRange uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetExternalTrig, Args: args(coupling, inputRange)}); done {
		return code
	}
	b.store(map[string]uint32{"external_trigger_coupling": coupling, "trigger_range": inputRange})
	return acquisition.StatusSuccess
}

// SetTriggerDelay implements acquisition.Driver
func (b *Board) SetTriggerDelay(h acquisition.BoardHandle, delay uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetTriggerDelay, Args: args(delay)}); done {
		return code
	}
	b.store(map[string]uint32{"trigger_delay": delay})
	return acquisition.StatusSuccess
}

// SetTriggerTimeOut implements acquisition.Driver
func (b *Board) SetTriggerTimeOut(h acquisition.BoardHandle, ticks uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetTriggerTimeOut, Args: args(ticks)}); done {
		return code
	}
	b.store(map[string]uint32{"timeout_ticks": ticks})
	return acquisition.StatusSuccess
}

// AbortAsyncRead implements acquisition.Driver. It cancels pending waits
// and returns every posted buffer.
func (b *Board) AbortAsyncRead(h acquisition.BoardHandle) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpAbortAsyncRead}); done {
		return code
	}
	b.armed = false
	b.running = false
	b.posted = nil
	close(b.abortCh)
	b.abortCh = make(chan struct{})
	return acquisition.StatusSuccess
}

// GetChannelInfo implements acquisition.Driver
func (b *Board) GetChannelInfo(h acquisition.BoardHandle) (acquisition.ChannelInfo, acquisition.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpGetChannelInfo}); done {
		return acquisition.ChannelInfo{}, code
	}
	return acquisition.ChannelInfo{MaxSamples: b.maxSamples, BitsPerSample: b.bitsPerSample}, acquisition.StatusSuccess
}

// SetRecordSize implements acquisition.Driver
func (b *Board) SetRecordSize(h acquisition.BoardHandle, preTrigger, postTrigger uint32) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpSetRecordSize, Args: args(preTrigger, postTrigger)}); done {
		return code
	}
	b.store(map[string]uint32{"pre_trigger_samples": preTrigger, "post_trigger_samples": postTrigger})
	return acquisition.StatusSuccess
}

// BeforeAsyncRead implements acquisition.Driver
func (b *Board) BeforeAsyncRead(h acquisition.BoardHandle, p acquisition.AsyncReadParams) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := Call{Op: acquisition.OpBeforeAsyncRead, Args: []int64{
		int64(p.ChannelSelection), int64(p.TransferOffset), int64(p.SamplesPerRecord),
		int64(p.RecordsPerBuffer), int64(p.RecordsPerAcquisition), int64(p.Flags),
	}}
	if code, done := b.begin(h, c); done {
		return code
	}
	if p.BufferSamples() == 0 {
		return StatusInvalidBuffer
	}
	b.params = p
	b.armed = true
	b.running = false
	b.posted = nil
	return acquisition.StatusSuccess
}

// PostAsyncBuffer implements acquisition.Driver
func (b *Board) PostAsyncBuffer(h acquisition.BoardHandle, buf []byte) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpPostAsyncBuffer, Args: []int64{int64(len(buf))}}); done {
		return code
	}
	if !b.armed {
		return StatusNotInitialized
	}
	if uint64(len(buf)) < b.bufferBytes() {
		return StatusBufferTooSmall
	}
	b.posted = append(b.posted, buf)
	return acquisition.StatusSuccess
}

// StartCapture implements acquisition.Driver
func (b *Board) StartCapture(h acquisition.BoardHandle) acquisition.StatusCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, done := b.begin(h, Call{Op: acquisition.OpStartCapture}); done {
		return code
	}
	if !b.armed || len(b.posted) == 0 {
		return StatusNotInitialized
	}
	b.running = true
	return acquisition.StatusSuccess
}

// WaitAsyncBufferComplete implements acquisition.Driver. Buffers complete
// in the order they were posted.
func (b *Board) WaitAsyncBufferComplete(h acquisition.BoardHandle, buf []byte, timeoutMS uint32) acquisition.StatusCode {
	b.mu.Lock()
	if code, done := b.begin(h, Call{Op: acquisition.OpWaitBuffer, Args: args(timeoutMS)}); done {
		b.mu.Unlock()
		return code
	}
	if !b.running {
		b.mu.Unlock()
		return StatusBufferNotReady
	}
	if len(b.posted) == 0 || len(buf) == 0 || &b.posted[0][0] != &buf[0] {
		b.mu.Unlock()
		return StatusInvalidBuffer
	}
	abortCh, delay := b.abortCh, b.delay
	b.mu.Unlock()

	timeout := time.Duration(timeoutMS) * time.Millisecond
	status := acquisition.StatusSuccess
	wait := delay
	if timeoutMS > 0 && delay > timeout {
		wait, status = timeout, StatusWaitTimeout
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-abortCh:
			return StatusWaitCanceled
		}
	}
	if status != acquisition.StatusSuccess {
		return status
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || len(b.posted) == 0 || &b.posted[0][0] != &buf[0] {
		return StatusWaitCanceled
	}
	b.fill(buf)
	b.posted = b.posted[1:]
	return acquisition.StatusSuccess
}

// bufferBytes returns the buffer size the armed layout needs.
// Caller holds b.mu.
func (b *Board) bufferBytes() uint64 {
	return b.params.BufferSamples() * uint64(b.channels())
}

func (b *Board) channels() int {
	if b.params.ChannelSelection == 3 {
		return 2
	}
	return 1
}

// fill writes a sine on the first channel and a cosine on the second.
// Caller holds b.mu.
func (b *Board) fill(buf []byte) {
	n := b.channels()
	spb := int(b.params.BufferSamples())
	interleaved := b.params.Flags&interleaveSamplesBit != 0
	for s := range spb {
		t := float64(b.sample+uint64(s)) / waveformPeriod * 2 * math.Pi
		for c := range n {
			v := Sample(t, c)
			if interleaved {
				buf[s*n+c] = v
			} else {
				buf[c*spb+s] = v
			}
		}
	}
	b.sample += uint64(spb)
}

// Sample returns the simulated code of channel c at phase t
func Sample(t float64, c int) byte {
	return byte(128 + math.Round(waveformAmplitude*math.Sin(t+float64(c)*math.Pi/2)))
}

// store records configuration codes. Caller holds b.mu.
func (b *Board) store(values map[string]uint32) {
	for k, v := range values {
		b.config[k] = v
	}
}

func suffix(name string, channel uint8) string {
	return name + string(rune('0'+channel))
}

func args(values ...uint32) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
