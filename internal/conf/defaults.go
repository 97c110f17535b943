// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// Sets default values for the configuration. They match the board power-on
// configuration of the acquisition registry.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("board.driver", DriverSimulator)
	v.SetDefault("board.system_id", acquisition.DefaultSystemID)
	v.SetDefault("board.board_id", acquisition.DefaultBoardID)
	v.SetDefault("board.wait_timeout", acquisition.DefaultWaitTimeout)
	v.SetDefault("board.buffer_count", 0)

	v.SetDefault("clock.source", string(acquisition.ClockInternal))
	v.SetDefault("clock.sample_rate", uint64(acquisition.SampleRate100M))
	v.SetDefault("clock.edge", string(acquisition.EdgeRising))
	v.SetDefault("clock.decimation", 0)

	for _, ch := range []string{"a", "b"} {
		v.SetDefault("channels."+ch+".coupling", string(acquisition.CouplingAC))
		v.SetDefault("channels."+ch+".range", 4.0)
		v.SetDefault("channels."+ch+".impedance", uint32(acquisition.Impedance50))
		v.SetDefault("channels."+ch+".bw_limit", false)
	}

	v.SetDefault("trigger.operation", string(acquisition.TriggerJ))
	v.SetDefault("trigger.engine1.engine", string(acquisition.EngineJ))
	v.SetDefault("trigger.engine1.source", string(acquisition.SourceExternal))
	v.SetDefault("trigger.engine1.slope", string(acquisition.SlopePositive))
	v.SetDefault("trigger.engine1.level", acquisition.TriggerLevelZero)
	v.SetDefault("trigger.engine2.engine", string(acquisition.EngineK))
	v.SetDefault("trigger.engine2.source", string(acquisition.SourceDisable))
	v.SetDefault("trigger.engine2.slope", string(acquisition.SlopePositive))
	v.SetDefault("trigger.engine2.level", acquisition.TriggerLevelZero)
	v.SetDefault("trigger.external.coupling", string(acquisition.CouplingAC))
	v.SetDefault("trigger.external.range", string(acquisition.ExtTrigger5V))
	v.SetDefault("trigger.delay", 0)
	v.SetDefault("trigger.timeout_ticks", 0)

	v.SetDefault("acquisition.mode", string(acquisition.ModeNPT))
	v.SetDefault("acquisition.samples_per_record", 1024)
	v.SetDefault("acquisition.records_per_buffer", 1)
	v.SetDefault("acquisition.buffers_per_acquisition", 1)
	v.SetDefault("acquisition.channel_selection", string(acquisition.ChannelBoth))
	v.SetDefault("acquisition.transfer_offset", 0)
	for _, f := range acquisition.Flags {
		v.SetDefault("acquisition.flags."+string(f), f == acquisition.FlagExternalStartCapture)
	}

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "localhost:9090")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")

	v.SetDefault("output.wav_path", "")
	v.SetDefault("output.wav_sample_rate", 0)
	v.SetDefault("output.ring_size", 0)
}
