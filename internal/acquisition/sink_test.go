package acquisition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitizerlab/ats-go/internal/errors"
)

func testChunk(t *testing.T, interleaved bool) Chunk {
	t.Helper()

	g, err := ComputeGeometry(ModeNPT, 4, 2, 1, 2)
	require.NoError(t, err)

	data := make([]byte, g.BytesPerBuffer)
	for s := range int(g.SamplesPerBuffer) {
		a, b := byte(s), byte(100+s)
		if interleaved {
			data[2*s], data[2*s+1] = a, b
		} else {
			data[s], data[int(g.SamplesPerBuffer)+s] = a, b
		}
	}
	return Chunk{Geometry: g, ChannelSelection: ChannelBoth, Interleaved: interleaved, Data: data}
}

func TestChunkChannels(t *testing.T) {
	t.Parallel()

	for _, interleaved := range []bool{false, true} {
		c := testChunk(t, interleaved)
		assert.Equal(t, 2, c.Channels())
		assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, c.Channel(0), "interleaved=%v", interleaved)
		assert.Equal(t, []byte{100, 101, 102, 103, 104, 105, 106, 107}, c.Channel(1), "interleaved=%v", interleaved)
		assert.Nil(t, c.Channel(2))
		assert.Nil(t, c.Channel(-1))

		assert.Equal(t, []byte{4, 5, 6, 7}, c.Record(0, 1))
		assert.Equal(t, []byte{100, 101, 102, 103}, c.Record(1, 0))
		assert.Nil(t, c.Record(0, 2))
	}
}

func TestChunkChannelViewAliasesData(t *testing.T) {
	t.Parallel()

	c := testChunk(t, false)
	ch := c.Channel(0)
	ch[0] = 42
	assert.Equal(t, byte(42), c.Data[0])
	assert.Equal(t, 8, cap(ch), "channel views are capped at their own samples")
}

func TestChunkShortData(t *testing.T) {
	t.Parallel()

	c := testChunk(t, false)
	c.Data = c.Data[:5]
	assert.Nil(t, c.Channel(0))
	assert.Nil(t, c.Record(0, 0))
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	var got []string
	record := func(name string) Sink {
		return SinkFunc(func(_ context.Context, c Chunk) error {
			got = append(got, name)
			return nil
		})
	}
	failing := SinkFunc(func(context.Context, Chunk) error {
		return errors.NewStd("disk full")
	})

	s := MultiSink(record("a"), nil, record("b"))
	require.NoError(t, s.Consume(t.Context(), Chunk{}))
	assert.Equal(t, []string{"a", "b"}, got)

	got = nil
	s = MultiSink(record("a"), failing, record("b"))
	require.EqualError(t, s.Consume(t.Context(), Chunk{}), "disk full")
	assert.Equal(t, []string{"a"}, got)
}
