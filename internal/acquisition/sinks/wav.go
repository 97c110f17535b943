package sinks

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// wavBitDepth matches the board's unsigned 8-bit samples, which is also the
// native 8-bit WAV encoding
const wavBitDepth = 8

// encoderRate is the rate handed to wav.NewEncoder, which reserves a minute
// of audio at that rate. The real rate is set on the encoder afterwards.
const encoderRate = 8000

// WAVSink writes every chunk as interleaved 8-bit PCM frames, one WAV
// channel per selected board channel
type WAVSink struct {
	log        logger.Logger
	sampleRate int
	channels   int

	mu     sync.Mutex
	enc    *wav.Encoder
	file   *os.File
	buf    *audio.IntBuffer
	frames int
	closed bool
}

var _ acquisition.Sink = (*WAVSink)(nil)

// NewWAVSink encodes to w. The caller keeps ownership of w.
func NewWAVSink(w io.WriteSeeker, sampleRate uint64, channels int, log logger.Logger) (*WAVSink, error) {
	if sampleRate == 0 || sampleRate > math.MaxUint32 {
		return nil, errors.Newf("wav sample rate %d out of range", sampleRate).
			Component(ComponentSinks).
			Category(errors.CategoryValidation).
			Context("sample_rate", sampleRate).
			Build()
	}
	if channels != 1 && channels != 2 {
		return nil, errors.Newf("wav output needs 1 or 2 channels, got %d", channels).
			Component(ComponentSinks).
			Category(errors.CategoryValidation).
			Context("channels", channels).
			Build()
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	rate := int(sampleRate) //nolint:gosec // bounded above
	enc := wav.NewEncoder(w, encoderRate, wavBitDepth, channels, 1)
	enc.SampleRate = rate
	return &WAVSink{
		log:        log.Module("sinks").With(logger.String("sink", "wav")),
		sampleRate: rate,
		channels:   channels,
		enc:        enc,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
			SourceBitDepth: wavBitDepth,
		},
	}, nil
}

// NewWAVFile creates path, including missing directories, and encodes to it.
// Close closes the file.
func NewWAVFile(path string, sampleRate uint64, channels int, log logger.Logger) (*WAVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fileError(err, "mkdir", path)
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fileError(err, "create", path)
	}
	s, err := NewWAVSink(f, sampleRate, channels, log)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	s.file = f
	return s, nil
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component(ComponentSinks).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}

// Consume implements acquisition.Sink
func (s *WAVSink) Consume(_ context.Context, c acquisition.Chunk) error {
	if c.Channels() != s.channels {
		return errors.Newf("chunk has %d channels, wav file has %d", c.Channels(), s.channels).
			Component(ComponentSinks).
			Category(errors.CategoryValidation).
			Context("sequence", c.Sequence).
			Build()
	}

	spb := int(c.Geometry.SamplesPerBuffer)
	channels := make([][]byte, s.channels)
	for i := range channels {
		channels[i] = c.Channel(i)
		if len(channels[i]) != spb {
			return errors.Newf("chunk %d is shorter than its geometry", c.Sequence).
				Component(ComponentSinks).
				Category(errors.CategoryValidation).
				Build()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Newf("wav sink is closed").
			Component(ComponentSinks).
			Category(errors.CategoryState).
			Build()
	}

	n := spb * s.channels
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for f := range spb {
		for ch, samples := range channels {
			s.buf.Data[f*s.channels+ch] = int(samples[f])
		}
	}

	if err := s.enc.Write(s.buf); err != nil {
		return errors.New(err).
			Component(ComponentSinks).
			Category(errors.CategorySink).
			Context("operation", "wav_write").
			Context("sequence", c.Sequence).
			Build()
	}
	s.frames += spb
	return nil
}

// Frames returns the number of frames written so far
func (s *WAVSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close finalises the WAV header and closes the file when the sink owns it
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.enc.Close(); err != nil {
		errs = append(errs, fileError(err, "wav_close", ""))
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fileError(err, "close", s.file.Name()))
		}
	}
	s.log.Info("wav output closed",
		logger.Int("frames", s.frames),
		logger.Int("channels", s.channels),
		logger.Int("sample_rate", s.sampleRate))
	return errors.Join(errs...)
}
