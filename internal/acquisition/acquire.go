package acquisition

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
	"github.com/digitizerlab/ats-go/internal/observability/metrics"
)

// Request describes one acquisition. Zero fields keep the value already in
// the registry.
type Request struct {
	Mode                  Mode
	SamplesPerRecord      uint32
	RecordsPerBuffer      uint32
	BuffersPerAcquisition uint32
	ChannelSelection      ChannelSelection

	// Settings are applied after the fields above
	Settings []Setting

	// Sink receives every completed buffer. Nil discards the data.
	Sink Sink
}

func (q Request) settings() []Setting {
	var out []Setting
	if q.Mode != "" {
		out = append(out, SetMode(q.Mode))
	}
	if q.SamplesPerRecord != 0 {
		out = append(out, SetField("samples_per_record", q.SamplesPerRecord))
	}
	if q.RecordsPerBuffer != 0 {
		out = append(out, SetField("records_per_buffer", q.RecordsPerBuffer))
	}
	if q.BuffersPerAcquisition != 0 {
		out = append(out, SetField("buffers_per_acquisition", q.BuffersPerAcquisition))
	}
	if q.ChannelSelection != "" {
		out = append(out, SetChannelSelection(q.ChannelSelection))
	}
	return append(out, q.Settings...)
}

// Result summarises an acquisition. It is returned with the error of a
// failed session too.
type Result struct {
	SessionID        string        `yaml:"session_id"`
	Geometry         Geometry      `yaml:"geometry"`
	BuffersPosted    uint32        `yaml:"buffers_posted"`
	BuffersCompleted uint32        `yaml:"buffers_completed"`
	BytesCaptured    uint64        `yaml:"bytes_captured"`
	Duration         time.Duration `yaml:"duration"`
}

// session is the per-Acquire state
type session struct {
	id     string
	mode   Mode
	sink   Sink
	log    logger.Logger
	result *Result
}

// Acquire arms the board for an NPT or TS acquisition and runs the capture
// loop until BuffersPerAcquisition buffers completed or an error, an Abort
// or ctx ends the session. The board is disarmed and all buffers released
// on every exit path.
func (e *Engine) Acquire(ctx context.Context, req Request) (*Result, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.errIfClosed("acquire"); err != nil {
		return nil, err
	}
	if req.Mode != "" && !req.Mode.Supported() {
		return nil, wrapError(&UnsupportedModeError{Mode: req.Mode}, "acquire", "")
	}
	if err := e.registry.Apply(req.settings()...); err != nil {
		e.disarm()
		return nil, wrapError(err, "acquire", "")
	}
	mode, ok := e.registry.Mode.Get()
	if !ok {
		e.disarm()
		return nil, wrapError(&UnsetFieldError{Field: e.registry.Mode.Name()}, "acquire", "")
	}
	if !mode.Supported() {
		return nil, wrapError(&UnsupportedModeError{Mode: mode}, "acquire", "")
	}

	e.abortRequested.Store(false)
	s := &session{
		id:     uuid.NewString(),
		mode:   mode,
		sink:   req.Sink,
		result: &Result{},
	}
	s.result.SessionID = s.id
	s.log = e.log.With(logger.String("session_id", s.id), logger.String("mode", string(mode)))

	// Sinks log under the session id
	ctx = logger.WithTraceID(ctx, s.id)
	start := time.Now()
	err := e.capture(ctx, s)
	s.result.Duration = time.Since(start)

	label := metrics.ResultCompleted
	switch {
	case err == nil:
		e.setState(StateCompleted)
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		label = metrics.ResultAborted
		e.setState(StateAborted)
	default:
		label = metrics.ResultFailed
		e.setState(StateAborted)
	}
	e.metrics.RecordSession(string(mode), label, s.result.Duration.Seconds())

	if err != nil {
		s.log.Warn("acquisition ended with error",
			logger.Uint64("buffers_completed", uint64(s.result.BuffersCompleted)),
			logger.Error(err))
		return s.result, wrapError(err, "acquire", s.id)
	}
	s.log.Info("acquisition completed",
		logger.Uint64("buffers_completed", uint64(s.result.BuffersCompleted)),
		logger.Uint64("bytes_captured", s.result.BytesCaptured),
		logger.Duration("elapsed", s.result.Duration))
	return s.result, nil
}

// disarm issues the closing abort for a request rejected before the board
// was armed. Mode rejections skip it and make no driver call at all.
func (e *Engine) disarm() {
	if err := e.check(OpAbortAsyncRead, e.driver.AbortAsyncRead(e.handle)); err != nil {
		e.log.Warn("abort after rejected request failed", logger.Error(err))
	}
}

// capture arms the board and runs the loop. The closing abort and the
// buffer release are deferred so they run on every path, abort first.
func (e *Engine) capture(ctx context.Context, s *session) (err error) {
	var buffers []*Buffer
	defer func() {
		releaseErr := e.pool.ReleaseAll()
		runtime.KeepAlive(buffers)
		if releaseErr != nil {
			s.log.Error("buffer release failed", logger.Error(releaseErr))
			if err == nil {
				err = releaseErr
			}
		}
	}()
	defer func() {
		abortErr := e.check(OpAbortAsyncRead, e.driver.AbortAsyncRead(e.handle))
		if abortErr == nil {
			return
		}
		if err == nil {
			err = abortErr
			return
		}
		s.log.Error("closing abort failed", logger.Error(abortErr))
	}()

	if err := e.check(OpAbortAsyncRead, e.driver.AbortAsyncRead(e.handle)); err != nil {
		return err
	}

	info, status := e.driver.GetChannelInfo(e.handle)
	if err := e.check(OpGetChannelInfo, status); err != nil {
		return err
	}
	if info.BitsPerSample != BitsPerSample {
		return &UnsupportedFormatError{BitsPerSample: info.BitsPerSample}
	}

	geo, interleaved, err := e.arm(ctx, s)
	if err != nil {
		return err
	}
	s.result.Geometry = geo

	count := int(geo.BuffersPerAcquisition)
	if e.bufferCount > 0 && e.bufferCount < count {
		count = e.bufferCount
	}
	buffers, err = e.pool.Allocate(count, geo.BytesPerBuffer, info.BitsPerSample)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := e.check(OpAbortAsyncRead, e.driver.AbortAsyncRead(e.handle)); err != nil {
			s.log.Warn("abort on context cancellation failed", logger.Error(err))
		}
	})
	defer stop()

	target := geo.BuffersPerAcquisition
	for _, b := range buffers {
		if err := e.post(s, b); err != nil {
			return err
		}
	}

	if err := e.check(OpStartCapture, e.driver.StartCapture(e.handle)); err != nil {
		return err
	}
	e.setState(StateStreaming)
	s.log.Info("capture started",
		logger.Int("buffers", len(buffers)),
		logger.Int("buffer_bytes", geo.BytesPerBuffer),
		logger.Uint64("target", uint64(target)),
		logger.Uint64("expected_bytes", geo.TotalBytes()))

	timeoutMS := e.waitTimeoutMS()
	sel, _ := e.registry.ChannelSelection.Get()
	for s.result.BuffersCompleted < target {
		if err := e.interrupted(ctx); err != nil {
			return err
		}

		b := buffers[int(s.result.BuffersCompleted)%len(buffers)]
		status := e.driver.WaitAsyncBufferComplete(e.handle, b.Bytes(), timeoutMS)
		if err := e.interrupted(ctx); err != nil {
			return err
		}
		if err := e.check(OpWaitBuffer, status); err != nil {
			return err
		}
		if err := b.handOff(OwnerDriver, OwnerEngine); err != nil {
			return err
		}

		seq := s.result.BuffersCompleted
		s.result.BuffersCompleted++
		s.result.BytesCaptured += uint64(b.Size())
		e.metrics.RecordBufferCompleted(string(s.mode), b.Size())

		if s.sink != nil {
			chunk := Chunk{
				SessionID:        s.id,
				Sequence:         seq,
				BufferIndex:      b.Index(),
				Geometry:         geo,
				ChannelSelection: sel,
				Interleaved:      interleaved,
				Data:             b.Bytes(),
			}
			if err := s.sink.Consume(ctx, chunk); err != nil {
				return errors.New(err).
					Component(ComponentAcquisition).
					Category(errors.CategorySink).
					Context("operation", "consume").
					Context("sequence", seq).
					Context("session_id", s.id).
					Build()
			}
		}

		if s.result.BuffersPosted < target {
			if err := e.post(s, b); err != nil {
				return err
			}
		}
	}

	return nil
}

// arm computes the geometry of the session and issues the record size and
// BeforeAsyncRead calls. It reports whether samples arrive interleaved.
func (e *Engine) arm(ctx context.Context, s *session) (Geometry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Geometry{}, false, err
	}
	r := e.registry

	fields := []field{
		r.Mode, r.SamplesPerRecord, r.RecordsPerBuffer, r.BuffersPerAcquisition,
		r.ChannelSelection, r.TransferOffset,
	}
	for _, f := range Flags {
		fields = append(fields, r.Flag(f))
	}
	codes, err := readCodes(fields)
	if err != nil {
		return Geometry{}, false, err
	}
	modeCode, spr, rpb, bpa, channelCode := codes[0], codes[1], codes[2], codes[3], codes[4]
	offset := int32(codes[5]) //nolint:gosec // bit-cast back from the device code
	flags := modeCode
	for _, c := range codes[6:] {
		flags |= c
	}

	sel, _ := r.ChannelSelection.Get()
	geo, err := ComputeGeometry(s.mode, spr, rpb, bpa, sel.Count())
	if err != nil {
		return Geometry{}, false, err
	}
	if geo.RecordsPerBufferOverridden {
		s.log.Warn("records per buffer must be 1 in ts mode, overriding",
			logger.Uint64("requested", uint64(rpb)))
		if err := r.RecordsPerBuffer.Set(1); err != nil {
			return Geometry{}, false, err
		}
	}
	if geo.Rounded {
		s.log.Warn("samples per record is not a multiple of buffers per acquisition, rounding down",
			logger.Uint64("samples_per_record", uint64(spr)),
			logger.Uint64("buffers_per_acquisition", uint64(bpa)),
			logger.Uint64("samples_per_buffer", uint64(geo.SamplesPerBuffer)))
	}

	if s.mode == ModeNPT {
		if err := e.check(OpSetRecordSize, e.driver.SetRecordSize(e.handle, 0, spr)); err != nil {
			return Geometry{}, false, err
		}
	}

	params := geo.Params(channelCode, flags, offset)
	if err := e.check(OpBeforeAsyncRead, e.driver.BeforeAsyncRead(e.handle, params)); err != nil {
		return Geometry{}, false, err
	}
	for _, f := range fields {
		f.commit()
	}
	e.setGeometry(geo)
	e.setState(StateArmed)

	s.log.Debug("board armed",
		logger.Uint64("samples_per_buffer", uint64(geo.SamplesPerBuffer)),
		logger.Uint64("records_per_acquisition", uint64(geo.RecordsPerAcquisition)),
		logger.Uint32("flags", flags))
	return geo, flags&flagBits[FlagInterleaveSamples] != 0, nil
}

// post hands a buffer to the board
func (e *Engine) post(s *session, b *Buffer) error {
	if err := b.handOff(OwnerEngine, OwnerDriver); err != nil {
		return err
	}
	if err := e.check(OpPostAsyncBuffer, e.driver.PostAsyncBuffer(e.handle, b.Bytes())); err != nil {
		_ = b.handOff(OwnerDriver, OwnerEngine)
		return err
	}
	s.result.BuffersPosted++
	return nil
}

// interrupted reports a cancelled context or an Abort request
func (e *Engine) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.abortRequested.Load() {
		return ErrAborted
	}
	return nil
}
