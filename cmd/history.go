package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/history"
	"github.com/VoxDroid/relman/internal/render"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repo, err := historyRepository()
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		runs, err := repo.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		render.Runs(cmd.OutOrStdout(), runs, time.Now())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the steps of one run",
	Long:  "Show the steps of one run. A unique prefix of the run id is enough.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := historyRepository()
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		run, err := repo.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		render.RunDetail(cmd.OutOrStdout(), run)
		return nil
	},
}

var exportRunID string

var historyExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the history database, or one run with --run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := historyRepository()
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		if exportRunID != "" {
			err = repo.ExportRun(cmd.Context(), exportRunID, args[0])
		} else {
			err = repo.ExportDatabase(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", args[0])
		return nil
	},
}

func historyRepository() (*history.Repository, error) {
	project, err := loadProject()
	if err != nil {
		return nil, err
	}
	return openHistory(project)
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Maximum number of runs to list")
	historyExportCmd.Flags().StringVar(&exportRunID, "run", "", "Export only this run (a unique id prefix is enough)")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
