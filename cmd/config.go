package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective project configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := loadProject()
		if err != nil {
			return err
		}
		out, err := project.YAML()
		if err != nil {
			return err
		}
		if project.File != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", project.File)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# built-in defaults for %s\n", project.Dir)
		}
		_, _ = cmd.OutOrStdout().Write(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
