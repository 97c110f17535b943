package codes

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/acquisition"
)

// Command creates a new cobra.Command to print the driver status codes.
func Command() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Print the board status codes",
		Long:  "Prints every documented board status code with its name, class and message.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Print(cmd.OutOrStdout(), asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")

	return cmd
}

// Print writes the status table to w
func Print(w io.Writer, asYAML bool) error {
	records := acquisition.DefaultTaxonomy().Records()
	if asYAML {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tCLASS\tRETRYABLE\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", r.Code, r.Name, r.Class, r.Class.Retryable(), r.Message)
	}
	return tw.Flush()
}
