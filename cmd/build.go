package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile in debug mode, then install the binary",
	Long: "Compile the project with the build command, then copy the artifact to the install path. " +
		"The installed binary is only replaced once the new artifact is verified.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOperation(cmd, (*orchestrator.Orchestrator).Build)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
