package sinks

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chunk builds a contiguous chunk whose channel c holds base+c+sample
func chunk(t *testing.T, seq uint32, spb uint32, channels int, base byte) acquisition.Chunk {
	t.Helper()

	g, err := acquisition.ComputeGeometry(acquisition.ModeNPT, spb, 1, 1, channels)
	require.NoError(t, err)
	data := make([]byte, g.BytesPerBuffer)
	for c := range channels {
		for s := range int(spb) {
			data[c*int(spb)+s] = base + byte(c*100+s)
		}
	}
	return acquisition.Chunk{Sequence: seq, Geometry: g, Data: data}
}

func TestRingSinkRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewRingSink(64)
	require.NoError(t, err)

	require.NoError(t, s.Consume(t.Context(), chunk(t, 0, 8, 1, 0)))
	require.NoError(t, s.Consume(t.Context(), chunk(t, 1, 8, 1, 10)))

	p := make([]byte, 32)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 10, 11, 12, 13, 14, 15, 16, 17}, p[:n])

	n, err = s.Read(p)
	require.NoError(t, err, "an empty open ring is not EOF")
	assert.Zero(t, n)

	require.NoError(t, s.Close())
	_, err = s.Read(p)
	require.ErrorIs(t, err, io.EOF)

	stats := s.Stats()
	assert.Equal(t, RingStats{Chunks: 2, Bytes: 16, Capacity: 64}, stats)
}

// TestRingSinkDropsWholeChunks tests that a full ring drops chunks without
// failing the capture
func TestRingSinkDropsWholeChunks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s, err := NewRingSink(20, WithRingLogger(logger.NewSlogLogger(&buf, logger.LogLevelDebug, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, s.Consume(t.Context(), chunk(t, 0, 16, 1, 0)))
	require.NoError(t, s.Consume(logger.WithTraceID(t.Context(), "session-1"), chunk(t, 1, 16, 1, 0)))
	require.NoError(t, s.Consume(t.Context(), chunk(t, 2, 32, 1, 0)))

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Chunks)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, 16, stats.Buffered)
	assert.Contains(t, buf.String(), "dropping chunk")
	assert.Contains(t, buf.String(), `"trace_id":"session-1"`)

	require.NoError(t, s.Close())
	err = s.Consume(t.Context(), chunk(t, 3, 1, 1, 0))
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestRingSinkDrain(t *testing.T) {
	t.Parallel()

	s, err := NewRingSink(1024)
	require.NoError(t, err)

	var out bytes.Buffer
	var drained int64
	var drainErr error
	var wg sync.WaitGroup
	wg.Go(func() {
		drained, drainErr = s.Drain(t.Context(), &out)
	})

	var want []byte
	for i := range 20 {
		c := chunk(t, uint32(i), 32, 2, byte(i))
		want = append(want, c.Data...)
		for {
			before := s.Stats().Dropped
			require.NoError(t, s.Consume(t.Context(), c))
			if s.Stats().Dropped == before {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	require.NoError(t, s.Close())
	wg.Wait()

	require.NoError(t, drainErr)
	assert.Equal(t, int64(len(want)), drained)
	assert.Equal(t, want, out.Bytes())
}

func TestRingSinkReadContextCancel(t *testing.T) {
	t.Parallel()

	s, err := NewRingSink(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = s.ReadContext(ctx, make([]byte, 8))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRingSinkValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRingSink(0)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

// TestWAVSinkWritesInterleavedFrames tests header fields and the sample
// layout of a two channel file
func TestWAVSinkWritesInterleavedFrames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "capture.wav")
	s, err := NewWAVFile(path, 1_000_000, 2, nil)
	require.NoError(t, err)

	first := chunk(t, 0, 4, 2, 0)
	second := chunk(t, 1, 4, 2, 50)
	require.NoError(t, s.Consume(t.Context(), first))
	require.NoError(t, s.Consume(t.Context(), second))
	assert.Equal(t, 8, s.Frames())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := []byte{
		0, 100, 1, 101, 2, 102, 3, 103,
		50, 150, 51, 151, 52, 152, 53, 153,
	}
	assert.True(t, bytes.HasSuffix(raw, want), "file should end with interleaved frames")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(1_000_000), dec.SampleRate)
	assert.Equal(t, uint16(8), dec.BitDepth)
}

// TestWAVSinkBoardRateAllocation tests that a sink at the fastest board rate
// does not reserve encoder memory in proportion to the rate
func TestWAVSinkBoardRateAllocation(t *testing.T) {
	// Not parallel: the allocation counter is process wide.
	path := filepath.Join(t.TempDir(), "fast.wav")

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	s, err := NewWAVFile(path, uint64(acquisition.SampleRate1G), 2, nil)
	runtime.ReadMemStats(&after)
	require.NoError(t, err)

	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))

	require.NoError(t, s.Consume(t.Context(), chunk(t, 0, 4, 2, 0)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(acquisition.SampleRate1G), dec.SampleRate)
	assert.Equal(t, uint32(2_000_000_000), dec.AvgBytesPerSec, "two 8-bit channels")
}

func TestWAVSinkRejectsMismatchedChunks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mono.wav")
	s, err := NewWAVFile(path, 1000, 1, nil)
	require.NoError(t, err)

	err = s.Consume(t.Context(), chunk(t, 0, 4, 2, 0))
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	short := chunk(t, 1, 4, 1, 0)
	short.Data = short.Data[:2]
	require.Error(t, s.Consume(t.Context(), short))

	require.NoError(t, s.Close())
	err = s.Consume(t.Context(), chunk(t, 2, 4, 1, 0))
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestNewWAVSinkValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewWAVFile(filepath.Join(dir, "a.wav"), 0, 1, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	_, err = os.Stat(filepath.Join(dir, "a.wav"))
	assert.True(t, os.IsNotExist(err), "a rejected file is removed")

	_, err = NewWAVFile(filepath.Join(dir, "b.wav"), 1000, 3, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
