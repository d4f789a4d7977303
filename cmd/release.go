package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/orchestrator"
	"github.com/VoxDroid/relman/internal/utils"
)

var releaseConfirm bool

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Tag, update the changelog, commit, push and publish",
	Long: `Run the release workflow:

  1. tag        cargo release tag --execute
  2. changelog  git cliff -o CHANGELOG.md
  3. commit     git commit -a -m "Update CHANGELOG.md" (allowed to fail)
  4. push       git push origin master
  5. publish    cargo release push --execute

Any other failing step stops the release. Completed steps are not undone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, err := loadProject()
		if err != nil {
			return err
		}
		if releaseConfirm && !dryRun {
			msg := fmt.Sprintf("Release %s and push to %s/%s now?", project.Binary, project.Release.Remote, project.Release.Branch)
			if !utils.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), msg) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
		}
		return runOperationFor(cmd, project, (*orchestrator.Orchestrator).Release)
	},
}

func init() {
	releaseCmd.Flags().BoolVar(&releaseConfirm, "confirm", false, "Ask for confirmation before the first step")
	rootCmd.AddCommand(releaseCmd)
}
