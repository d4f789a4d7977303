package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the test suite with all features enabled",
	Long:  "Run the test runner with CELLA_ENV=test set for the runner only. relman exits with the runner's exit code.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOperation(cmd, (*orchestrator.Orchestrator).Test)
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
