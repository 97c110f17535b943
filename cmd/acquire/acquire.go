package acquire

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digitizerlab/ats-go/internal/buildinfo"
	"github.com/digitizerlab/ats-go/internal/conf"
)

// Command creates a new command that configures the board and runs one
// acquisition.
func Command(settings *conf.Settings, v *viper.Viper, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Configure the board and run one acquisition",
		Long: "Writes the configured clock, input and trigger settings to the board and streams " +
			"one NPT or TS acquisition to the configured sinks. With a ring buffer the raw samples " +
			"are written to stdout and the summary to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, Options{
				Build:  build,
				Data:   cmd.OutOrStdout(),
				Report: cmd.ErrOrStderr(),
			})
		},
	}

	// Set up flags specific to the 'acquire' command
	cobra.CheckErr(setupFlags(cmd, v))

	return cmd
}

// setupFlags configures flags specific to the acquire command and binds them
// to their configuration keys.
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.String("mode", "", "Acquisition mode: npt or ts")
	flags.Uint32("samples-per-record", 0, "Samples per record and channel")
	flags.Uint32("records-per-buffer", 0, "Records per DMA buffer (npt)")
	flags.Uint32("buffers", 0, "Buffers per acquisition")
	flags.String("channels", "", "Channels to transfer: A, B or AB")
	flags.String("wav", "", "Write the samples to this WAV file")
	flags.Uint64("wav-rate", 0, "Sample rate written to the WAV header, required with an external clock")
	flags.Int("ring", 0, "Stream raw samples to stdout through a ring buffer of this many bytes")
	flags.Bool("metrics", false, "Serve Prometheus metrics while acquiring")
	flags.String("listen", "", "Listen address of the metrics endpoint")

	bindings := map[string]string{
		"mode":               "acquisition.mode",
		"samples-per-record": "acquisition.samples_per_record",
		"records-per-buffer": "acquisition.records_per_buffer",
		"buffers":            "acquisition.buffers_per_acquisition",
		"channels":           "acquisition.channel_selection",
		"wav":                "output.wav_path",
		"wav-rate":           "output.wav_sample_rate",
		"ring":               "output.ring_size",
		"metrics":            "metrics.enabled",
		"listen":             "metrics.listen",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
