package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/acquisition/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(t *testing.T, board *Board, opts ...acquisition.Option) *acquisition.Engine {
	t.Helper()

	base := []acquisition.Option{
		acquisition.WithAllocator(memory.NewHeap()),
		acquisition.WithMemoryProbe(nil),
	}
	e, err := acquisition.NewEngine(board, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// firstSamples records the first sample of every channel of every chunk
type firstSamples struct {
	mu          sync.Mutex
	chunks      int
	interleaved bool
	values      [][]byte
}

func (f *firstSamples) Consume(_ context.Context, c acquisition.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks++
	f.interleaved = c.Interleaved
	row := make([]byte, c.Channels())
	for i := range row {
		row[i] = c.Channel(i)[0]
	}
	f.values = append(f.values, row)
	return nil
}

// TestEndToEndNPT configures the simulated board and captures ten buffers
func TestEndToEndNPT(t *testing.T) {
	t.Parallel()

	board := New()
	e := newEngine(t, board, acquisition.WithBufferCount(4))
	require.NoError(t, e.Configure(t.Context()))

	sink := &firstSamples{}
	res, err := e.Acquire(t.Context(), acquisition.Request{
		Mode:                  acquisition.ModeNPT,
		SamplesPerRecord:      1024,
		RecordsPerBuffer:      4,
		BuffersPerAcquisition: 10,
		Sink:                  sink,
	})
	require.NoError(t, err)

	assert.Equal(t, acquisition.StateCompleted, e.State())
	assert.Equal(t, uint32(10), res.BuffersCompleted)
	assert.Equal(t, uint32(10), res.BuffersPosted)
	assert.Equal(t, uint64(10*2*4096), res.BytesCaptured)
	assert.Empty(t, e.Registry().StaleFields())
	assert.Equal(t, 0, e.BufferStats().Live)

	assert.Equal(t, 10, board.Count(acquisition.OpPostAsyncBuffer))
	assert.Equal(t, 10, board.Count(acquisition.OpWaitBuffer))
	assert.Equal(t, 0, board.Posted())
	assert.False(t, board.Running())

	p := board.Params()
	assert.Equal(t, uint32(40), p.RecordsPerAcquisition)
	assert.Equal(t, uint64(4096), p.BufferSamples())

	rate, ok := board.Config("sample_rate")
	require.True(t, ok)
	assert.Equal(t, uint32(0x24), rate)
	post, ok := board.Config("post_trigger_samples")
	require.True(t, ok)
	assert.Equal(t, uint32(1024), post)

	require.Equal(t, 10, sink.chunks)
	assert.False(t, sink.interleaved)
	assert.Equal(t, []byte{Sample(0, 0), Sample(0, 1)}, sink.values[0])
	assert.Equal(t, byte(128), sink.values[0][0])
	assert.Equal(t, byte(228), sink.values[0][1])
}

func TestEndToEndInterleavedTS(t *testing.T) {
	t.Parallel()

	board := New()
	e := newEngine(t, board)

	sink := &firstSamples{}
	res, err := e.Acquire(t.Context(), acquisition.Request{
		Mode:                  acquisition.ModeTS,
		SamplesPerRecord:      3 * 640,
		BuffersPerAcquisition: 3,
		Settings:              []acquisition.Setting{acquisition.SetFlag(acquisition.FlagInterleaveSamples, true)},
		Sink:                  sink,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(640), res.Geometry.SamplesPerBuffer)
	assert.Equal(t, uint32(0x400|0x1000|0x1), board.Params().Flags)

	require.Equal(t, 3, sink.chunks)
	assert.True(t, sink.interleaved)
	for _, row := range sink.values {
		// 640 samples are ten whole periods, so every buffer starts in phase
		assert.Equal(t, []byte{Sample(0, 0), Sample(0, 1)}, row)
	}
}

func TestWaitTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	board := New(WithCompletionDelay(time.Second))
	e := newEngine(t, board, acquisition.WithWaitTimeout(20*time.Millisecond))

	res, err := e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT, BuffersPerAcquisition: 2})
	var dce *acquisition.DeviceCallError
	require.ErrorAs(t, err, &dce)
	assert.Equal(t, StatusWaitTimeout, dce.Code)
	assert.True(t, acquisition.IsRetryable(err))
	assert.Equal(t, uint32(0), res.BuffersCompleted)
	assert.Equal(t, 0, board.Posted())
}

// TestAbortInterruptsWait tests that Abort from another goroutine releases
// a blocked wait
func TestAbortInterruptsWait(t *testing.T) {
	t.Parallel()

	board := New(WithCompletionDelay(10 * time.Second))
	e := newEngine(t, board, acquisition.WithWaitTimeout(30*time.Second))

	var wg sync.WaitGroup
	wg.Go(func() {
		for !board.Running() {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
		_ = e.Abort()
	})

	start := time.Now()
	_, err := e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT, BuffersPerAcquisition: 4})
	wg.Wait()

	require.ErrorIs(t, err, acquisition.ErrAborted)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, acquisition.StateAborted, e.State())
	assert.Equal(t, 0, board.Posted())
}

func TestContextCancelInterruptsWait(t *testing.T) {
	t.Parallel()

	board := New(WithCompletionDelay(10 * time.Second))
	e := newEngine(t, board, acquisition.WithWaitTimeout(30*time.Second))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Acquire(ctx, acquisition.Request{Mode: acquisition.ModeNPT, BuffersPerAcquisition: 4})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, e.BufferStats().Live)
}

func TestInjectedStatuses(t *testing.T) {
	t.Parallel()

	board := New()
	e := newEngine(t, board)

	board.FailNext(acquisition.OpStartCapture, 590)
	_, err := e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT})
	var dce *acquisition.DeviceCallError
	require.ErrorAs(t, err, &dce)
	assert.Equal(t, "ApiPllNotLocked", dce.Name)

	board.FailAlways(acquisition.OpGetChannelInfo, 0xDEAD)
	_, err = e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT})
	var ude *acquisition.UnknownDeviceError
	require.ErrorAs(t, err, &ude)

	board.ClearFailures()
	_, err = e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT})
	require.NoError(t, err)
}

func TestBitsPerSampleCheck(t *testing.T) {
	t.Parallel()

	board := New(WithBitsPerSample(12))
	e := newEngine(t, board)

	_, err := e.Acquire(t.Context(), acquisition.Request{Mode: acquisition.ModeNPT})
	var fmtErr *acquisition.UnsupportedFormatError
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, 0, board.Count(acquisition.OpBeforeAsyncRead))
}

// TestBoardProtocol drives the board directly to check the statuses it
// returns for out-of-order calls
func TestBoardProtocol(t *testing.T) {
	t.Parallel()

	board := New(WithBoardID(2, 5))
	assert.Equal(t, acquisition.BoardHandle(0), board.BoardBySystemID(1, 1))
	h := board.BoardBySystemID(2, 5)
	require.NotZero(t, h)

	assert.Equal(t, StatusInvalidHandle, board.StartCapture(h+1))
	assert.Equal(t, StatusNoSuchChannel, board.InputControl(h, 3, 1, 0xC, 2))

	buf := make([]byte, 512)
	other := make([]byte, 512)
	assert.Equal(t, StatusNotInitialized, board.PostAsyncBuffer(h, buf))
	assert.Equal(t, StatusNotInitialized, board.StartCapture(h))

	params := acquisition.AsyncReadParams{ChannelSelection: 1, SamplesPerRecord: 256, RecordsPerBuffer: 2, RecordsPerAcquisition: 2, Flags: 0x200}
	require.Equal(t, acquisition.StatusSuccess, board.BeforeAsyncRead(h, params))
	assert.Equal(t, StatusBufferTooSmall, board.PostAsyncBuffer(h, buf[:100]))
	require.Equal(t, acquisition.StatusSuccess, board.PostAsyncBuffer(h, buf))
	assert.Equal(t, StatusBufferNotReady, board.WaitAsyncBufferComplete(h, buf, 0))

	require.Equal(t, acquisition.StatusSuccess, board.StartCapture(h))
	assert.Equal(t, StatusInvalidBuffer, board.WaitAsyncBufferComplete(h, other, 0))
	require.Equal(t, acquisition.StatusSuccess, board.WaitAsyncBufferComplete(h, buf, 0))
	assert.Equal(t, Sample(0, 0), buf[0])
	assert.Equal(t, 0, board.Posted())

	require.Equal(t, acquisition.StatusSuccess, board.AbortAsyncRead(h))
	assert.False(t, board.Running())
	assert.Equal(t, acquisition.StatusSuccess, board.AbortAsyncRead(h), "abort is valid when idle")

	ops := board.Ops()
	assert.Equal(t, acquisition.OpBoardBySystemID, ops[0])
	assert.Equal(t, acquisition.OpAbortAsyncRead, ops[len(ops)-1])
	board.ResetCalls()
	assert.Empty(t, board.Calls())
}
