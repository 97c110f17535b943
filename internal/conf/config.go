// Package conf loads the atsdaq configuration with viper and converts it to
// acquisition engine settings.
package conf

import (
	"bytes"
	"embed"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Driver names
const (
	DriverSimulator = "simulator"
	DriverATSApi    = "atsapi"
)

// Settings contains all configuration options for atsdaq
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Board       BoardSettings        `yaml:"board" mapstructure:"board"`
	Clock       ClockSettings        `yaml:"clock" mapstructure:"clock"`
	Channels    ChannelsSettings     `yaml:"channels" mapstructure:"channels"`
	Trigger     TriggerSettings      `yaml:"trigger" mapstructure:"trigger"`
	Acquisition AcquisitionSettings  `yaml:"acquisition" mapstructure:"acquisition"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics     MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry   TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Output      OutputSettings       `yaml:"output" mapstructure:"output"`
}

// BoardSettings selects the board and its driver
type BoardSettings struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`             // simulator or atsapi
	SystemID    uint32        `yaml:"system_id" mapstructure:"system_id"`       // board system id
	BoardID     uint32        `yaml:"board_id" mapstructure:"board_id"`         // board id within the system
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"` // bound on each buffer wait
	BufferCount int           `yaml:"buffer_count" mapstructure:"buffer_count"` // DMA buffers in rotation, 0 for one per buffer
}

// ClockSettings configures the capture clock
type ClockSettings struct {
	Source     string `yaml:"source" mapstructure:"source"`
	SampleRate uint64 `yaml:"sample_rate" mapstructure:"sample_rate"` // samples per second, 0 for external
	Edge       string `yaml:"edge" mapstructure:"edge"`
	Decimation uint32 `yaml:"decimation" mapstructure:"decimation"`
}

// ChannelsSettings holds both analog inputs
type ChannelsSettings struct {
	A ChannelSettings `yaml:"a" mapstructure:"a"`
	B ChannelSettings `yaml:"b" mapstructure:"b"`
}

// ChannelSettings configures one analog input
type ChannelSettings struct {
	Coupling  string  `yaml:"coupling" mapstructure:"coupling"`
	Range     float64 `yaml:"range" mapstructure:"range"`         // full scale in volts
	Impedance uint32  `yaml:"impedance" mapstructure:"impedance"` // ohms
	BWLimit   bool    `yaml:"bw_limit" mapstructure:"bw_limit"`
}

// TriggerSettings configures the trigger engines
type TriggerSettings struct {
	Operation    string                  `yaml:"operation" mapstructure:"operation"`
	Engine1      TriggerEngineSettings   `yaml:"engine1" mapstructure:"engine1"`
	Engine2      TriggerEngineSettings   `yaml:"engine2" mapstructure:"engine2"`
	External     ExternalTriggerSettings `yaml:"external" mapstructure:"external"`
	Delay        uint32                  `yaml:"delay" mapstructure:"delay"`                 // samples
	TimeoutTicks uint32                  `yaml:"timeout_ticks" mapstructure:"timeout_ticks"` // 10 µs ticks, 0 waits forever
}

// TriggerEngineSettings configures one trigger slot
type TriggerEngineSettings struct {
	Engine string `yaml:"engine" mapstructure:"engine"`
	Source string `yaml:"source" mapstructure:"source"`
	Slope  string `yaml:"slope" mapstructure:"slope"`
	Level  uint32 `yaml:"level" mapstructure:"level"`
}

// ExternalTriggerSettings configures the external trigger input
type ExternalTriggerSettings struct {
	Coupling string `yaml:"coupling" mapstructure:"coupling"`
	Range    string `yaml:"range" mapstructure:"range"`
}

// AcquisitionSettings describes the default acquisition
type AcquisitionSettings struct {
	Mode                  string          `yaml:"mode" mapstructure:"mode"`
	SamplesPerRecord      uint32          `yaml:"samples_per_record" mapstructure:"samples_per_record"`
	RecordsPerBuffer      uint32          `yaml:"records_per_buffer" mapstructure:"records_per_buffer"`
	BuffersPerAcquisition uint32          `yaml:"buffers_per_acquisition" mapstructure:"buffers_per_acquisition"`
	ChannelSelection      string          `yaml:"channel_selection" mapstructure:"channel_selection"`
	TransferOffset        int32           `yaml:"transfer_offset" mapstructure:"transfer_offset"`
	Flags                 map[string]bool `yaml:"flags" mapstructure:"flags"`
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings controls Sentry error reporting
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// OutputSettings selects where captured data goes
type OutputSettings struct {
	WAVPath       string `yaml:"wav_path" mapstructure:"wav_path"`               // empty disables the WAV sink
	WAVSampleRate uint64 `yaml:"wav_sample_rate" mapstructure:"wav_sample_rate"` // 0 uses clock.sample_rate
	RingSize      int    `yaml:"ring_size" mapstructure:"ring_size"`             // bytes, 0 disables the ring sink
}

// WAVSampleRate returns the rate written to the WAV header. With an external
// clock the board rate is unknown and output.wav_sample_rate must be set.
func (s *Settings) WAVSampleRate() uint64 {
	if s.Output.WAVSampleRate > 0 {
		return s.Output.WAVSampleRate
	}
	return s.Clock.SampleRate
}

// Load reads the configuration file and environment variables into v and
// unmarshals and validates the result. configFile overrides the search paths
// when set. Flags bound to v take precedence over both.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "validate-config").
			Build()
	}
	return settings, nil
}

// initViper sets defaults and environment bindings on v and reads the
// configuration file. Without a file the embedded default configuration is
// read instead.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)
	if err := bindEnvVars(v); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "bind-env").
			Build()
	}

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if configFile == "" && errors.As(err, &notFound) {
		return v.ReadConfig(bytes.NewReader(getDefaultConfig()))
	}
	return errors.New(err).
		Category(errors.CategoryFileIO).
		Context("operation", "read-config").
		Context("config_file", configFile).
		Build()
}

// getDefaultConfig returns the embedded config.yaml
func getDefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time
		panic(err)
	}
	return data
}

// WriteDefaultConfig writes the default configuration to path. An existing
// file is left alone.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path).
			Category(errors.CategoryValidation).
			Context("operation", "write-default-config").
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-dir").
			Build()
	}
	if err := os.WriteFile(path, getDefaultConfig(), 0o644); err != nil { //nolint:gosec // config is not secret
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write-default-config").
			Build()
	}
	return nil
}

// EngineSettings converts the board sections to registry settings, in
// device call order
func (s *Settings) EngineSettings() []acquisition.Setting {
	out := []acquisition.Setting{
		acquisition.SetField("clock_source", s.Clock.Source),
		acquisition.SetField("sample_rate", s.Clock.SampleRate),
		acquisition.SetField("clock_edge", s.Clock.Edge),
		acquisition.SetField("decimation", s.Clock.Decimation),
	}

	for i, ch := range []ChannelSettings{s.Channels.A, s.Channels.B} {
		n := i + 1
		out = append(out,
			acquisition.SetField(fieldName("coupling", n), ch.Coupling),
			acquisition.SetField(fieldName("range", n), ch.Range),
			acquisition.SetField(fieldName("impedance", n), ch.Impedance),
			acquisition.SetField(fieldName("bwlimit", n), ch.BWLimit),
		)
	}

	out = append(out, acquisition.SetField("trigger_operation", s.Trigger.Operation))
	for i, te := range []TriggerEngineSettings{s.Trigger.Engine1, s.Trigger.Engine2} {
		n := i + 1
		out = append(out,
			acquisition.SetField(fieldName("trigger_engine", n), te.Engine),
			acquisition.SetField(fieldName("trigger_source", n), te.Source),
			acquisition.SetField(fieldName("trigger_slope", n), te.Slope),
			acquisition.SetField(fieldName("trigger_level", n), te.Level),
		)
	}

	a := s.Acquisition
	out = append(out,
		acquisition.SetField("external_trigger_coupling", s.Trigger.External.Coupling),
		acquisition.SetField("trigger_range", s.Trigger.External.Range),
		acquisition.SetField("trigger_delay", s.Trigger.Delay),
		acquisition.SetField("timeout_ticks", s.Trigger.TimeoutTicks),
		acquisition.SetField("mode", a.Mode),
		acquisition.SetField("samples_per_record", a.SamplesPerRecord),
		acquisition.SetField("records_per_buffer", a.RecordsPerBuffer),
		acquisition.SetField("buffers_per_acquisition", a.BuffersPerAcquisition),
		acquisition.SetField("channel_selection", a.ChannelSelection),
		acquisition.SetField("transfer_offset", a.TransferOffset),
	)

	for _, name := range slices.Sorted(maps.Keys(a.Flags)) {
		out = append(out, acquisition.SetField(name, a.Flags[name]))
	}
	return out
}

// EngineOptions returns the engine options of the board section
func (s *Settings) EngineOptions() []acquisition.Option {
	return []acquisition.Option{
		acquisition.WithBoard(s.Board.SystemID, s.Board.BoardID),
		acquisition.WithWaitTimeout(s.Board.WaitTimeout),
		acquisition.WithBufferCount(s.Board.BufferCount),
	}
}

func fieldName(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}
