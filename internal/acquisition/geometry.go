package acquisition

import (
	"fmt"
	"math"
)

// Geometry is the buffer layout of one acquisition. It is computed once
// before the capture loop and not changed while the loop runs.
type Geometry struct {
	Mode Mode `yaml:"mode"`

	// SamplesPerRecord is the record length handed to the board. In TS mode
	// it equals SamplesPerBuffer.
	SamplesPerRecord      uint32 `yaml:"samples_per_record"`
	RecordsPerBuffer      uint32 `yaml:"records_per_buffer"`
	RecordsPerAcquisition uint32 `yaml:"records_per_acquisition"`
	BuffersPerAcquisition uint32 `yaml:"buffers_per_acquisition"`

	// SamplesPerBuffer counts samples of one channel in one buffer
	SamplesPerBuffer uint32 `yaml:"samples_per_buffer"`
	Channels         int    `yaml:"channels"`
	BytesPerBuffer   int    `yaml:"bytes_per_buffer"`

	// Rounded is set when TS samples per buffer was floored
	Rounded bool `yaml:"rounded,omitempty"`
	// RecordsPerBufferOverridden is set when TS mode replaced the requested
	// records per buffer with 1
	RecordsPerBufferOverridden bool `yaml:"records_per_buffer_overridden,omitempty"`
}

// TotalBytes returns the bytes captured by the whole acquisition
func (g Geometry) TotalBytes() uint64 {
	return uint64(g.BytesPerBuffer) * uint64(g.BuffersPerAcquisition)
}

// Params returns the BeforeAsyncRead arguments for this layout
func (g Geometry) Params(channels, flags uint32, transferOffset int32) AsyncReadParams {
	return AsyncReadParams{
		ChannelSelection:      channels,
		TransferOffset:        transferOffset,
		SamplesPerRecord:      g.SamplesPerRecord,
		RecordsPerBuffer:      g.RecordsPerBuffer,
		RecordsPerAcquisition: g.RecordsPerAcquisition,
		Flags:                 flags,
	}
}

// ComputeGeometry derives the buffer layout of a mode from the requested
// record and buffer counts. Samples are 8 bits wide.
func ComputeGeometry(mode Mode, samplesPerRecord, recordsPerBuffer, buffersPerAcquisition uint32, channels int) (Geometry, error) {
	if !mode.Supported() {
		return Geometry{}, &UnsupportedModeError{Mode: mode}
	}
	if samplesPerRecord == 0 {
		return Geometry{}, &ConfigurationError{Field: "samples_per_record", Value: samplesPerRecord, Reason: "must be positive"}
	}
	if recordsPerBuffer == 0 {
		return Geometry{}, &ConfigurationError{Field: "records_per_buffer", Value: recordsPerBuffer, Reason: "must be positive"}
	}
	if buffersPerAcquisition == 0 {
		return Geometry{}, &ConfigurationError{Field: "buffers_per_acquisition", Value: buffersPerAcquisition, Reason: "must be positive"}
	}
	if channels != 1 && channels != 2 {
		return Geometry{}, &ConfigurationError{Field: "channel_selection", Value: channels, Reason: "one or two channels"}
	}

	g := Geometry{
		Mode:                  mode,
		BuffersPerAcquisition: buffersPerAcquisition,
		Channels:              channels,
	}

	switch mode {
	case ModeNPT:
		rpa := uint64(recordsPerBuffer) * uint64(buffersPerAcquisition)
		if rpa > math.MaxUint32 {
			return Geometry{}, &ConfigurationError{
				Field:  "buffers_per_acquisition",
				Value:  buffersPerAcquisition,
				Reason: fmt.Sprintf("records per acquisition %d exceeds 32 bits", rpa),
			}
		}
		spb := uint64(samplesPerRecord) * uint64(recordsPerBuffer)
		if spb > math.MaxUint32 {
			return Geometry{}, &ConfigurationError{
				Field:  "records_per_buffer",
				Value:  recordsPerBuffer,
				Reason: fmt.Sprintf("samples per buffer %d exceeds 32 bits", spb),
			}
		}
		g.SamplesPerRecord = samplesPerRecord
		g.RecordsPerBuffer = recordsPerBuffer
		g.RecordsPerAcquisition = uint32(rpa)
		g.SamplesPerBuffer = uint32(spb)

	case ModeTS:
		spb := samplesPerRecord / buffersPerAcquisition
		if spb == 0 {
			return Geometry{}, &ConfigurationError{
				Field:  "samples_per_record",
				Value:  samplesPerRecord,
				Reason: fmt.Sprintf("ts mode needs at least %d samples for %d buffers", buffersPerAcquisition, buffersPerAcquisition),
			}
		}
		g.Rounded = samplesPerRecord%buffersPerAcquisition != 0
		g.RecordsPerBufferOverridden = recordsPerBuffer != 1
		g.SamplesPerRecord = spb
		g.SamplesPerBuffer = spb
		g.RecordsPerBuffer = 1
		g.RecordsPerAcquisition = buffersPerAcquisition
	}

	bytes := uint64(g.SamplesPerBuffer) * uint64(channels)
	if bytes > math.MaxInt32 {
		return Geometry{}, &ConfigurationError{
			Field:  "samples_per_record",
			Value:  samplesPerRecord,
			Reason: fmt.Sprintf("buffer of %d bytes is too large", bytes),
		}
	}
	g.BytesPerBuffer = int(bytes)
	return g, nil
}
