package acquisition

import (
	"context"
)

// Sink consumes completed buffers. Consume runs on the capture goroutine
// between buffer completion and repost, so it must return quickly.
type Sink interface {
	Consume(ctx context.Context, chunk Chunk) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, chunk Chunk) error

// Consume calls f
func (f SinkFunc) Consume(ctx context.Context, chunk Chunk) error {
	return f(ctx, chunk)
}

// MultiSink hands every chunk to each sink in order and stops at the first
// error
func MultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return SinkFunc(func(ctx context.Context, chunk Chunk) error {
		for _, s := range filtered {
			if err := s.Consume(ctx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// Chunk is one completed buffer. Data aliases the DMA buffer and is only
// valid until Consume returns; sinks that keep samples must copy them.
type Chunk struct {
	SessionID        string
	Sequence         uint32
	BufferIndex      int
	Geometry         Geometry
	ChannelSelection ChannelSelection
	Interleaved      bool
	Data             []byte
}

// Channels returns the number of channels in the chunk
func (c Chunk) Channels() int {
	return c.Geometry.Channels
}

// Channel returns the samples of the i-th selected channel. Contiguous
// layouts return a view of Data, interleaved layouts return a copy.
func (c Chunk) Channel(i int) []byte {
	n := c.Geometry.Channels
	spb := int(c.Geometry.SamplesPerBuffer)
	if i < 0 || i >= n || len(c.Data) < n*spb {
		return nil
	}
	if !c.Interleaved || n == 1 {
		return c.Data[i*spb : (i+1)*spb : (i+1)*spb]
	}
	out := make([]byte, spb)
	for s := range spb {
		out[s] = c.Data[s*n+i]
	}
	return out
}

// Record returns record r of the i-th selected channel
func (c Chunk) Record(i, r int) []byte {
	spr := int(c.Geometry.SamplesPerRecord)
	if r < 0 || r >= int(c.Geometry.RecordsPerBuffer) {
		return nil
	}
	ch := c.Channel(i)
	if len(ch) < (r+1)*spr {
		return nil
	}
	return ch[r*spr : (r+1)*spr]
}
