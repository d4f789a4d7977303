package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

var (
	installFrom string
	installTo   string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the already compiled artifact",
	Long:  "Run only the install step of build. Use --dry-run to preview the actions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := loadProject()
		if err != nil {
			return err
		}
		if installFrom != "" {
			project.Build.Artifact = installFrom
		}
		if installTo != "" {
			project.Build.InstallPath = installTo
		}
		return runOperationFor(cmd, project, (*orchestrator.Orchestrator).Install)
	},
}

func init() {
	installCmd.Flags().StringVar(&installFrom, "from", "", "Artifact to install (default from the project file)")
	installCmd.Flags().StringVar(&installTo, "to", "", "Install path including the file name (default from the project file)")
	rootCmd.AddCommand(installCmd)
}
