package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/n0rad/go-erlog/logs"

	"github.com/VoxDroid/relman/internal/config"
	"github.com/VoxDroid/relman/internal/executor"
	"github.com/VoxDroid/relman/internal/install"
)

// Operation names.
const (
	OpBuild   = "build"
	OpInstall = "install"
	OpTest    = "test"
	OpRelease = "release"
	OpCov     = "cov"
)

// Orchestrator builds the workflows of a project and runs them.
type Orchestrator struct {
	Project *config.Project
	Engine  *Engine
}

// New returns an Orchestrator for project running on engine.
func New(project *config.Project, engine *Engine) *Orchestrator {
	if engine.Dir == "" {
		engine.Dir = project.Dir
	}
	return &Orchestrator{Project: project, Engine: engine}
}

// Build compiles the project, then installs the artifact.
func (o *Orchestrator) Build(ctx context.Context) (*Report, error) {
	return o.run(ctx, o.BuildWorkflow)
}

// Install installs an artifact that was already compiled.
func (o *Orchestrator) Install(ctx context.Context) (*Report, error) {
	return o.run(ctx, o.InstallWorkflow)
}

// Test runs the test suite.
func (o *Orchestrator) Test(ctx context.Context) (*Report, error) {
	return o.run(ctx, o.TestWorkflow)
}

// Release runs the five release steps.
func (o *Orchestrator) Release(ctx context.Context) (*Report, error) {
	return o.run(ctx, o.ReleaseWorkflow)
}

// Cov is reserved. It runs nothing and always fails.
func (o *Orchestrator) Cov(_ context.Context) (*Report, error) {
	return nil, &StepError{
		Operation: OpCov,
		Step:      OpCov,
		Kind:      NotImplemented,
		Err:       fmt.Errorf("cov is reserved and %w", ErrNotImplemented),
	}
}

func (o *Orchestrator) run(ctx context.Context, build func() (Workflow, error)) (*Report, error) {
	wf, err := build()
	if err != nil {
		return nil, err
	}
	return o.Engine.Run(ctx, wf)
}

// BuildWorkflow is compile followed by install.
func (o *Orchestrator) BuildWorkflow() (Workflow, error) {
	compile, err := o.command(o.Project.Build.Command, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("build.command: %w", err)
	}
	installStep, err := o.installStep()
	if err != nil {
		return Workflow{}, err
	}
	return Workflow{Operation: OpBuild, Steps: []Step{
		{Name: "compile", Kind: CompileFailure, Command: compile},
		installStep,
	}}, nil
}

// InstallWorkflow is the install step of BuildWorkflow on its own.
func (o *Orchestrator) InstallWorkflow() (Workflow, error) {
	installStep, err := o.installStep()
	if err != nil {
		return Workflow{}, err
	}
	return Workflow{Operation: OpInstall, Steps: []Step{installStep}}, nil
}

func (o *Orchestrator) installStep() (Step, error) {
	artifact, err := o.Project.ArtifactPath()
	if err != nil {
		return Step{}, err
	}
	target, err := o.Project.InstallPath()
	if err != nil {
		return Step{}, err
	}
	return Step{
		Name:     "install",
		Kind:     InstallFailure,
		Describe: fmt.Sprintf("install %s -> %s", artifact, target),
		Action: func(context.Context) error {
			actions, err := install.ExecuteInstall(install.Options{From: artifact, Target: target})
			if err != nil {
				return err
			}
			if logs.IsDebugEnabled() {
				for _, a := range actions {
					logs.WithField("step", "install").Debug(a)
				}
			}
			dir := filepath.Dir(target)
			if hint := install.PathHint(os.Getenv("PATH"), dir); hint != "" {
				logs.WithField("dir", dir).Info("Install directory is not on PATH. " + hint)
			}
			return nil
		},
	}, nil
}

// TestWorkflow runs the test command with the test env visible to it only.
func (o *Orchestrator) TestWorkflow() (Workflow, error) {
	c, err := o.command(o.Project.Test.Command, o.Project.Test.Env)
	if err != nil {
		return Workflow{}, fmt.Errorf("test.command: %w", err)
	}
	return Workflow{Operation: OpTest, Steps: []Step{
		{Name: "test", Kind: TestFailure, Command: c},
	}}, nil
}

// ReleaseWorkflow is tag, changelog, commit, push and publish. Only the
// commit step is tolerated.
func (o *Orchestrator) ReleaseWorkflow() (Workflow, error) {
	r := o.Project.Release
	tag, err := o.command(r.Tag, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("release.tag: %w", err)
	}
	changelog, err := o.command(r.Changelog, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("release.changelog: %w", err)
	}
	publish, err := o.command(r.Publish, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("release.publish: %w", err)
	}
	changelogPath, err := o.Project.ChangelogPath()
	if err != nil {
		return Workflow{}, err
	}
	commit := &executor.Command{Name: r.Git, Args: []string{"commit", "-a", "-m", r.CommitMessage}, Dir: o.Project.Dir}
	push := &executor.Command{Name: r.Git, Args: []string{"push", r.Remote, r.Branch}, Dir: o.Project.Dir}

	return Workflow{Operation: OpRelease, Steps: []Step{
		{Name: "tag", Kind: TagFailure, Command: tag},
		{Name: "changelog", Kind: ChangelogFailure, Command: changelog, Check: fileExists(changelogPath)},
		{Name: "commit", Kind: CommitFailure, Policy: Tolerated, Command: commit, Classify: ClassifyCommit},
		{Name: "push", Kind: PushFailure, Command: push},
		{Name: "publish", Kind: PublishFailure, Command: publish},
	}}, nil
}

func (o *Orchestrator) command(line string, env map[string]string) (*executor.Command, error) {
	c, err := executor.ParseCommand(line)
	if err != nil {
		return nil, err
	}
	if len(env) > 0 {
		c = c.WithEnv(env)
	}
	c.Dir = o.Project.Dir
	return &c, nil
}

func fileExists(path string) func() error {
	return func() error {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("changelog generator did not write %s", path)
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("changelog is not a regular file: %s", path)
		}
		return nil
	}
}

var nothingToCommit = []string{
	"nothing to commit",
	"no changes added to commit",
	"nothing added to commit",
}

// ClassifyCommit tells an empty commit apart from a real commit failure.
func ClassifyCommit(res executor.Result) Outcome {
	out := strings.ToLower(res.Output)
	for _, marker := range nothingToCommit {
		if strings.Contains(out, marker) {
			return NoChanges
		}
	}
	return ToleratedFailure
}
