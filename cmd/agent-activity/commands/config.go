package commands

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command
func NewConfigCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == formatTable {
				format = formatYAML
			}
			if err := validateFormat(format); err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), format, a.cfg)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatYAML, "Output format (json, yaml)")
	return cmd
}
