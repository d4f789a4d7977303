package cmd

import (
	"context"
	"os"

	"github.com/n0rad/go-erlog/logs"
	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/VoxDroid/relman/internal/config"
	"github.com/VoxDroid/relman/internal/db"
	"github.com/VoxDroid/relman/internal/executor"
	"github.com/VoxDroid/relman/internal/history"
	"github.com/VoxDroid/relman/internal/orchestrator"
	"github.com/VoxDroid/relman/internal/progress"
	"github.com/VoxDroid/relman/internal/render"
)

var (
	cfgFile   string
	logLevel  string
	dryRun    bool
	noHistory bool
	quiet     bool
)

// newRunner builds the process runner; tests replace it with a fake.
var newRunner = func(verbose bool) executor.Runner {
	return executor.New(verbose)
}

var rootCmd = &cobra.Command{
	Use:   "relman",
	Short: "relman builds, tests and releases a cargo project",
	Long: "relman wraps the build tool, the test runner, the changelog generator and git " +
		"into four operations: build, test, release and cov",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if logLevel != "" {
			level, err := logs.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logs.SetLevel(level)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Project file (default: relman.yaml found from the working directory up)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the planned steps without running them")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Hide command output unless a step fails")
}

// Execute executes the root command and exits with the operation's exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logs.WithE(err).Error("Command failed")
		os.Exit(orchestrator.ExitCode(err))
	}
}

func loadProject() (*config.Project, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv(config.EnvRelmanConfig)
	}
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Discover(wd)
}

// newOrchestrator wires the engine for project. The returned func releases
// the history database.
func newOrchestrator(cmd *cobra.Command, project *config.Project) (*orchestrator.Orchestrator, func()) {
	engine := &orchestrator.Engine{
		Runner: newRunner(!quiet),
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		DryRun: dryRun,
		Quiet:  quiet,
	}
	if quiet {
		engine.Progress = progress.For(os.Stderr)
	}

	closeFn := func() {}
	if !dryRun && !noHistory && project.HistoryEnabled() {
		if repo, err := openHistory(project); err != nil {
			logs.WithE(err).Warn("Run history is not available, this run will not be recorded")
		} else {
			engine.Recorder = repo
			closeFn = func() { _ = repo.Close() }
		}
	}
	return orchestrator.New(project, engine), closeFn
}

func openHistory(project *config.Project) (*history.Repository, error) {
	path, err := project.HistoryPath()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return history.NewRepository(conn), nil
}

type operation func(o *orchestrator.Orchestrator, ctx context.Context) (*orchestrator.Report, error)

// runOperation runs op for the current project next to the signal actor
// and prints its step table.
func runOperation(cmd *cobra.Command, op operation) error {
	project, err := loadProject()
	if err != nil {
		return err
	}
	return runOperationFor(cmd, project, op)
}

func runOperationFor(cmd *cobra.Command, project *config.Project, op operation) error {
	o, closeFn := newOrchestrator(cmd, project)
	defer closeFn()

	sig := &SigtermService{}
	sig.Init()
	var report *orchestrator.Report
	err := runInterruptible(cmd.Context(), sig, func(ctx context.Context) error {
		var err error
		report, err = op(o, ctx)
		return err
	})
	if report != nil {
		render.Report(cmd.OutOrStdout(), report)
	}
	return err
}

// runInterruptible runs f in an oklog/run group with sig. Whichever returns
// first stops the other: a signal cancels f's context.
func runInterruptible(parent context.Context, sig *SigtermService, f func(ctx context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var g run.Group
	g.Add(sig.Start, sig.Stop)
	g.Add(func() error {
		return f(ctx)
	}, func(error) {
		cancel()
	})
	return g.Run()
}
