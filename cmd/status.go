package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/install"
	"github.com/VoxDroid/relman/internal/render"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the artifact and the installed binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := loadProject()
		if err != nil {
			return err
		}
		artifact, err := project.ArtifactPath()
		if err != nil {
			return err
		}
		target, err := project.InstallPath()
		if err != nil {
			return err
		}
		st, err := install.GetStatus(artifact, target)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s status:\n", project.Binary)
		render.Status(cmd.OutOrStdout(), st, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
