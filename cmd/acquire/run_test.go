package acquire

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/acquisition/drivers/atsapi"
	"github.com/digitizerlab/ats-go/internal/acquisition/drivers/simulator"
	"github.com/digitizerlab/ats-go/internal/acquisition/memory"
	"github.com/digitizerlab/ats-go/internal/buildinfo"
	"github.com/digitizerlab/ats-go/internal/conf"
	"github.com/digitizerlab/ats-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loadSettings returns the default settings with a 4 x 1024 sample NPT
// acquisition of 10 buffers on both channels
func loadSettings(t *testing.T) *conf.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, conf.WriteDefaultConfig(path))
	settings, err := conf.Load(viper.New(), path)
	require.NoError(t, err)

	settings.Acquisition.SamplesPerRecord = 1024
	settings.Acquisition.RecordsPerBuffer = 4
	settings.Acquisition.BuffersPerAcquisition = 10
	return settings
}

func decodeSummary(t *testing.T, report *bytes.Buffer) Summary {
	t.Helper()
	var summary Summary
	require.NoError(t, yaml.Unmarshal(report.Bytes(), &summary))
	require.NotNil(t, summary.Result)
	return summary
}

// TestRunStreamsToRingAndWAV tests a simulated acquisition feeding both sinks
func TestRunStreamsToRingAndWAV(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t)
	settings.Output.RingSize = 1 << 20
	settings.Output.WAVPath = filepath.Join(t.TempDir(), "out", "capture.wav")

	var data, report bytes.Buffer
	err := Run(t.Context(), settings, Options{
		Build:     buildinfo.NewContext("test", ""),
		Data:      &data,
		Report:    &report,
		LogWriter: io.Discard,
	})
	require.NoError(t, err)

	assert.Equal(t, 10*8192, data.Len())
	assert.Equal(t, simulator.Sample(0, 0), data.Bytes()[0])

	summary := decodeSummary(t, &report)
	assert.Equal(t, uint32(10), summary.Result.BuffersCompleted)
	assert.Equal(t, uint64(81920), summary.Result.BytesCaptured)
	assert.Equal(t, 8192, summary.Result.Geometry.BytesPerBuffer)
	assert.Equal(t, 40960, summary.WAVFrames)
	require.NotNil(t, summary.Ring)
	assert.Equal(t, uint64(10), summary.Ring.Chunks)
	assert.Zero(t, summary.Ring.Dropped)
}

// TestRunWithMetricsEndpoint tests that the endpoint stops with the capture
func TestRunWithMetricsEndpoint(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t)
	settings.Metrics.Enabled = true
	settings.Metrics.Listen = "127.0.0.1:0"

	var report bytes.Buffer
	err := Run(t.Context(), settings, Options{Report: &report, LogWriter: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, uint32(10), decodeSummary(t, &report).Result.BuffersCompleted)
}

// TestRunConfigureFailure tests that a rejected configuration call ends the
// run before any acquisition
func TestRunConfigureFailure(t *testing.T) {
	t.Parallel()

	board := simulator.New()
	board.FailNext(acquisition.OpSetCaptureClock, 590)

	var report bytes.Buffer
	err := Run(t.Context(), loadSettings(t), Options{
		Report:        &report,
		LogWriter:     io.Discard,
		Driver:        board,
		EngineOptions: []acquisition.Option{acquisition.WithAllocator(memory.NewHeap())},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDevice))
	assert.Contains(t, err.Error(), "ApiPllNotLocked")
	assert.Zero(t, board.Count(acquisition.OpStartCapture))
	assert.Empty(t, report.String())
}

// TestRunAcquireFailureReports tests that a failed acquisition still prints
// its summary
func TestRunAcquireFailureReports(t *testing.T) {
	t.Parallel()

	board := simulator.New()
	board.FailNext(acquisition.OpWaitBuffer, 590)

	var report bytes.Buffer
	err := Run(t.Context(), loadSettings(t), Options{
		Report:        &report,
		LogWriter:     io.Discard,
		Driver:        board,
		EngineOptions: []acquisition.Option{acquisition.WithAllocator(memory.NewHeap())},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), acquisition.OpWaitBuffer)

	summary := decodeSummary(t, &report)
	assert.Zero(t, summary.Result.BuffersCompleted)
	assert.Equal(t, uint32(10), summary.Result.BuffersPosted)
	assert.False(t, board.Running())
}

// TestRunBoardNotFound tests a board id the driver does not know
func TestRunBoardNotFound(t *testing.T) {
	t.Parallel()

	settings := loadSettings(t)
	board := simulator.New(simulator.WithBoardID(1, 2))

	err := Run(t.Context(), settings, Options{LogWriter: io.Discard, Driver: board})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

// TestRunVendorDriverUnavailable tests the atsapi driver in a build without
// the vendor library
func TestRunVendorDriverUnavailable(t *testing.T) {
	t.Parallel()
	if atsapi.Available {
		t.Skip("built with the vendor library")
	}

	settings := loadSettings(t)
	settings.Board.Driver = conf.DriverATSApi

	err := Run(t.Context(), settings, Options{LogWriter: io.Discard})
	require.ErrorIs(t, err, atsapi.ErrNotBuilt)
}

// TestSetupTelemetryRejectsInvalidDSN tests Sentry initialisation errors
func TestSetupTelemetryRejectsInvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := setupTelemetry(conf.TelemetrySettings{Enabled: true, DSN: "not a dsn"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

// TestCommandFlagsBindToViper tests that acquire flags override their keys
func TestCommandFlagsBindToViper(t *testing.T) {
	t.Parallel()

	v := viper.New()
	cmd := Command(&conf.Settings{}, v, nil)

	require.NoError(t, cmd.Flags().Set("ring", "4096"))
	require.NoError(t, cmd.Flags().Set("mode", "ts"))
	require.NoError(t, cmd.Flags().Set("buffers", "3"))
	require.NoError(t, cmd.Flags().Set("wav-rate", "250000"))

	assert.Equal(t, 4096, v.GetInt("output.ring_size"))
	assert.Equal(t, "ts", v.GetString("acquisition.mode"))
	assert.Equal(t, uint32(3), v.GetUint32("acquisition.buffers_per_acquisition"))
	assert.Equal(t, uint64(250000), v.GetUint64("output.wav_sample_rate"))
}
