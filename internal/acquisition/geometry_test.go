package acquisition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGeometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     Mode
		spr      uint32
		rpb      uint32
		bpa      uint32
		channels int
		want     Geometry
	}{
		{
			name: "npt two channels",
			mode: ModeNPT, spr: 1024, rpb: 4, bpa: 10, channels: 2,
			want: Geometry{
				Mode: ModeNPT, SamplesPerRecord: 1024, RecordsPerBuffer: 4,
				RecordsPerAcquisition: 40, BuffersPerAcquisition: 10,
				SamplesPerBuffer: 4096, Channels: 2, BytesPerBuffer: 8192,
			},
		},
		{
			name: "npt single channel single record",
			mode: ModeNPT, spr: 256, rpb: 1, bpa: 1, channels: 1,
			want: Geometry{
				Mode: ModeNPT, SamplesPerRecord: 256, RecordsPerBuffer: 1,
				RecordsPerAcquisition: 1, BuffersPerAcquisition: 1,
				SamplesPerBuffer: 256, Channels: 1, BytesPerBuffer: 256,
			},
		},
		{
			name: "ts exact split",
			mode: ModeTS, spr: 1200, rpb: 1, bpa: 3, channels: 1,
			want: Geometry{
				Mode: ModeTS, SamplesPerRecord: 400, RecordsPerBuffer: 1,
				RecordsPerAcquisition: 3, BuffersPerAcquisition: 3,
				SamplesPerBuffer: 400, Channels: 1, BytesPerBuffer: 400,
			},
		},
		{
			name: "ts rounds down",
			mode: ModeTS, spr: 1000, rpb: 1, bpa: 3, channels: 2,
			want: Geometry{
				Mode: ModeTS, SamplesPerRecord: 333, RecordsPerBuffer: 1,
				RecordsPerAcquisition: 3, BuffersPerAcquisition: 3,
				SamplesPerBuffer: 333, Channels: 2, BytesPerBuffer: 666,
				Rounded: true,
			},
		},
		{
			name: "ts overrides records per buffer",
			mode: ModeTS, spr: 4096, rpb: 5, bpa: 4, channels: 1,
			want: Geometry{
				Mode: ModeTS, SamplesPerRecord: 1024, RecordsPerBuffer: 1,
				RecordsPerAcquisition: 4, BuffersPerAcquisition: 4,
				SamplesPerBuffer: 1024, Channels: 1, BytesPerBuffer: 1024,
				RecordsPerBufferOverridden: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ComputeGeometry(tt.mode, tt.spr, tt.rpb, tt.bpa, tt.channels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, uint64(tt.want.BytesPerBuffer)*uint64(tt.bpa), got.TotalBytes())
		})
	}
}

func TestComputeGeometryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     Mode
		spr      uint32
		rpb      uint32
		bpa      uint32
		channels int
		field    string
	}{
		{"zero samples", ModeNPT, 0, 1, 1, 1, "samples_per_record"},
		{"zero records", ModeNPT, 1024, 0, 1, 1, "records_per_buffer"},
		{"zero buffers", ModeTS, 1024, 1, 0, 1, "buffers_per_acquisition"},
		{"three channels", ModeNPT, 1024, 1, 1, 3, "channel_selection"},
		{"ts fewer samples than buffers", ModeTS, 2, 1, 3, 1, "samples_per_record"},
		{"records per acquisition overflow", ModeNPT, 16, math.MaxUint32, 2, 1, "buffers_per_acquisition"},
		{"samples per buffer overflow", ModeNPT, math.MaxUint32, 2, 1, 1, "records_per_buffer"},
		{"buffer too large", ModeNPT, 1 << 30, 2, 1, 2, "samples_per_record"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ComputeGeometry(tt.mode, tt.spr, tt.rpb, tt.bpa, tt.channels)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestComputeGeometryUnsupportedModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeTraditional, ModeCR, Mode("")} {
		_, err := ComputeGeometry(mode, 1024, 1, 1, 1)
		var modeErr *UnsupportedModeError
		require.ErrorAs(t, err, &modeErr, "mode %q", mode)
		assert.Equal(t, mode, modeErr.Mode)
	}
}

func TestGeometryParams(t *testing.T) {
	t.Parallel()

	g, err := ComputeGeometry(ModeNPT, 1024, 4, 10, 2)
	require.NoError(t, err)

	p := g.Params(3, 0x201, -16)
	assert.Equal(t, AsyncReadParams{
		ChannelSelection:      3,
		TransferOffset:        -16,
		SamplesPerRecord:      1024,
		RecordsPerBuffer:      4,
		RecordsPerAcquisition: 40,
		Flags:                 0x201,
	}, p)
	assert.Equal(t, uint64(4096), p.BufferSamples())
}
