package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

var covCmd = &cobra.Command{
	Use:   "cov",
	Short: "Reserved for coverage (not implemented)",
	Long:  "cov is reserved. It runs nothing and exits with status 1 so that CI never mistakes it for a coverage run.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := (&orchestrator.Orchestrator{}).Cov(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.AddCommand(covCmd)
}
