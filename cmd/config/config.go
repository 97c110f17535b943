package config

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/conf"
)

// InitCommandName is the name of the subcommand writing a default file
const InitCommandName = "init"

// FieldView is one registry field as printed by atsdaq config
type FieldView struct {
	Name    string `yaml:"name"`
	Value   any    `yaml:"value"`
	Code    string `yaml:"code"`
	Accepts string `yaml:"accepts,omitempty"`
}

// Command creates a new cobra.Command printing the board configuration
// that the loaded settings produce.
func Command(settings *conf.Settings) *cobra.Command {
	var describe bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the board configuration",
		Long:  "Applies the loaded settings to a configuration registry and prints every field with its device code.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Print(cmd.OutOrStdout(), settings, describe)
		},
	}

	cmd.Flags().BoolVar(&describe, "describe", false, "Include the accepted values of each field")
	cmd.AddCommand(initCommand())

	return cmd
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   InitCommandName + " [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(".", "config.yaml")
			if len(args) == 1 {
				path = args[0]
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created default config file at:", path)
			return nil
		},
	}
}

// Print writes the registry snapshot of settings to w as YAML
func Print(w io.Writer, settings *conf.Settings, describe bool) error {
	r := acquisition.NewRegistry()
	if err := r.Apply(settings.EngineSettings()...); err != nil {
		return err
	}

	fields := r.Fields()
	views := make([]FieldView, 0, len(fields))
	for _, f := range fields {
		view := FieldView{Name: f.Name, Value: f.Value, Code: fmt.Sprintf("0x%X", f.Code)}
		if describe {
			view.Accepts, _ = r.Describe(f.Name)
		}
		views = append(views, view)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(views)
}
