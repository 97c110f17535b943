package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digitizerlab/ats-go/cmd/acquire"
	"github.com/digitizerlab/ats-go/cmd/codes"
	"github.com/digitizerlab/ats-go/cmd/config"
	"github.com/digitizerlab/ats-go/internal/buildinfo"
	"github.com/digitizerlab/ats-go/internal/conf"
)

// RootCommand creates and returns the root command. Flags are bound to v, so
// they take precedence over the configuration file and the environment.
func RootCommand(v *viper.Viper, build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "atsdaq",
		Short:         "Streaming acquisition for ATS9870 digitizers",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	cobra.CheckErr(setupFlags(rootCmd, v, &configFile))

	// Add sub-commands to the root command.
	acquireCmd := acquire.Command(settings, v, build)
	configCmd := config.Command(settings)
	codesCmd := codes.Command()

	rootCmd.AddCommand(acquireCmd, configCmd, codesCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip loading for commands that do not read the configuration
		if cmd.Name() == codesCmd.Name() || cmd.Name() == config.InitCommandName {
			return nil
		}

		loaded, err := conf.Load(v, configFile)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Configuration file (default: search ., ~/.config/atsdaq, /etc/atsdaq)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("driver", "", "Board driver: simulator or atsapi")

	if err := v.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := v.BindPFlag("board.driver", flags.Lookup("driver")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
