package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VoxDroid/relman/internal/config"
	"github.com/VoxDroid/relman/internal/executor"
	"github.com/VoxDroid/relman/internal/install"
)

const (
	keyCompile   = "cargo build"
	keyTest      = "cargo nextest run"
	keyTag       = "cargo release tag"
	keyChangelog = "git cliff -o"
	keyCommit    = "git commit -a"
	keyPush      = "git push origin"
	keyPublish   = "cargo release push"
)

type fixture struct {
	dir      string
	artifact string
	target   string
	runner   *fakeRunner
	recorder *memRecorder
	stderr   *bytes.Buffer
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	p := config.Default(dir)
	p.Build.Artifact = filepath.Join(dir, "target", "debug", "app")
	p.Build.InstallPath = filepath.Join(dir, "home", ".cargo", "bin", "app")

	f := &fixture{
		dir:      dir,
		artifact: p.Build.Artifact,
		target:   p.Build.InstallPath,
		runner:   newFakeRunner(),
		recorder: &memRecorder{},
		stderr:   &bytes.Buffer{},
	}
	f.orch = New(p, &Engine{Runner: f.runner, Recorder: f.recorder, Stderr: f.stderr})
	// a clean changelog generator writes the file
	f.runner.hooks[keyChangelog] = func(context.Context) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "CHANGELOG.md"), []byte("# Changelog\n"), 0o644))
	}
	return f
}

func (f *fixture) writeTarget(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(f.target), 0o755))
	require.NoError(t, os.WriteFile(f.target, []byte(content), 0o755))
}

func outcomes(r *Report) []Outcome {
	out := make([]Outcome, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Outcome)
	}
	return out
}

func TestDefaultPolicyIsFatal(t *testing.T) {
	assert.Equal(t, Fatal, Step{}.Policy)
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "tolerated", Tolerated.String())
}

func TestBuildCompileFailureLeavesInstallUntouched(t *testing.T) {
	f := newFixture(t)
	f.writeTarget(t, "old binary")
	f.runner.results[keyCompile] = fakeResult{code: 101, output: "error[E0308]: mismatched types"}

	report, err := f.orch.Build(context.Background())
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, CompileFailure, stepErr.Kind)
	assert.Equal(t, 101, ExitCode(err))
	assert.Equal(t, []Outcome{Failed, Skipped}, outcomes(report))

	got, rerr := os.ReadFile(f.target)
	require.NoError(t, rerr)
	assert.Equal(t, "old binary", string(got))
}

func TestBuildInstallsByteIdenticalArtifact(t *testing.T) {
	f := newFixture(t)
	f.writeTarget(t, "old binary")
	payload := []byte("\x7fELF fresh build")
	f.runner.hooks[keyCompile] = func(context.Context) {
		require.NoError(t, os.MkdirAll(filepath.Dir(f.artifact), 0o755))
		require.NoError(t, os.WriteFile(f.artifact, payload, 0o755))
	}

	report, err := f.orch.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Outcome{Succeeded, Succeeded}, outcomes(report))
	assert.Equal(t, StatusSucceeded, report.Status)

	got, rerr := os.ReadFile(f.target)
	require.NoError(t, rerr)
	assert.Equal(t, payload, got)
}

func TestBuildMissingArtifactKeepsOldBinary(t *testing.T) {
	f := newFixture(t)
	f.writeTarget(t, "old binary")

	report, err := f.orch.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, install.ErrArtifactMissing))
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, []Outcome{Succeeded, Failed}, outcomes(report))
	assert.Equal(t, "install", report.FailedStep())

	got, rerr := os.ReadFile(f.target)
	require.NoError(t, rerr)
	assert.Equal(t, "old binary", string(got))
}

func TestTestPropagatesExitCodeAndScopesEnv(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyTest] = fakeResult{code: 4}

	_, err := f.orch.Test(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, ExitCode(err))

	require.Len(t, f.runner.calls, 1)
	c := f.runner.calls[0]
	assert.Equal(t, "test", c.Env[config.TestEnvKey])
	assert.Contains(t, c.Args, "--all-features")
	_, leaked := os.LookupEnv(config.TestEnvKey)
	assert.False(t, leaked)
}

func TestTestWithRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX sh")
	}
	if _, ok := os.LookupEnv(config.TestEnvKey); ok {
		t.Skipf("%s is set in the test environment", config.TestEnvKey)
	}
	dir := t.TempDir()
	p := config.Default(dir)
	// exits 7 only when the variable reached the child
	p.Test.Command = `sh -c 'test "$CELLA_ENV" = test && exit 7'`
	o := New(p, &Engine{Runner: executor.New(false)})

	_, err := o.Test(context.Background())
	require.Error(t, err)
	assert.Equal(t, 7, ExitCode(err))
	_, leaked := os.LookupEnv(config.TestEnvKey)
	assert.False(t, leaked)
}

func TestReleaseTagFailureHaltsEverything(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyTag] = fakeResult{code: 101}

	report, err := f.orch.Release(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{keyTag}, f.runner.keys())
	assert.Equal(t, []Outcome{Failed, Skipped, Skipped, Skipped, Skipped}, outcomes(report))

	_, serr := os.Stat(filepath.Join(f.dir, "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(serr))

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, TagFailure, stepErr.Kind)
}

func TestReleaseNothingToCommitContinues(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyCommit] = fakeResult{code: 1, output: "On branch master\nnothing to commit, working tree clean\n"}

	report, err := f.orch.Release(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit, keyPush, keyPublish}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Succeeded, NoChanges, Succeeded, Succeeded}, outcomes(report))
	assert.Equal(t, 0, ExitCode(err))
}

func TestReleaseOtherCommitFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyCommit] = fakeResult{code: 128, output: "fatal: unable to auto-detect email address"}

	report, err := f.orch.Release(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ToleratedFailure, report.Steps[2].Outcome)
	assert.Equal(t, 128, report.Steps[2].ExitCode)
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit, keyPush, keyPublish}, f.runner.keys())
}

func TestReleasePushFailureHaltsBeforePublish(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyPush] = fakeResult{code: 1, output: "rejected"}

	report, err := f.orch.Release(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit, keyPush}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Succeeded, Succeeded, Failed, Skipped}, outcomes(report))
	assert.Equal(t, "push", report.FailedStep())
	assert.Equal(t, StatusFailed, report.Status)
}

func TestReleaseChangelogMustExist(t *testing.T) {
	f := newFixture(t)
	delete(f.runner.hooks, keyChangelog)

	report, err := f.orch.Release(context.Background())
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, ChangelogFailure, stepErr.Kind)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, []string{keyTag, keyChangelog}, f.runner.keys())
	assert.Equal(t, Skipped, report.Steps[2].Outcome)
}

func TestReleaseChangelogGeneratorFailureHaltsBeforeCommit(t *testing.T) {
	f := newFixture(t)
	delete(f.runner.hooks, keyChangelog)
	f.runner.results[keyChangelog] = fakeResult{code: 2, output: "error: no tags found"}

	report, err := f.orch.Release(context.Background())
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, ChangelogFailure, stepErr.Kind)
	assert.Equal(t, 2, ExitCode(err))
	assert.Equal(t, []string{keyTag, keyChangelog}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Failed, Skipped, Skipped, Skipped}, outcomes(report))
	assert.Equal(t, "changelog", report.FailedStep())
}

func TestReleasePublishFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.results[keyPublish] = fakeResult{code: 101, output: "error: failed to push"}

	report, err := f.orch.Release(context.Background())
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, PublishFailure, stepErr.Kind)
	assert.Equal(t, 101, ExitCode(err))
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit, keyPush, keyPublish}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Succeeded, Succeeded, Succeeded, Failed}, outcomes(report))
	assert.Equal(t, StatusFailed, report.Status)
}

func TestTestCustomEnvKeepsTestMode(t *testing.T) {
	dir := t.TempDir()
	p, err := config.Parse([]byte("test:\n  env:\n    RUST_LOG: debug\n"), dir)
	require.NoError(t, err)
	runner := newFakeRunner()
	o := New(p, &Engine{Runner: runner})

	_, err = o.Test(context.Background())
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	env := runner.calls[0].Env
	assert.Equal(t, "test", env[config.TestEnvKey])
	assert.Equal(t, "debug", env["RUST_LOG"])
}

func TestReleaseEndToEnd(t *testing.T) {
	f := newFixture(t)

	report, err := f.orch.Release(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit, keyPush, keyPublish}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Succeeded, Succeeded, Succeeded, Succeeded}, outcomes(report))

	commit := f.runner.calls[2]
	assert.Equal(t, []string{"commit", "-a", "-m", "Update CHANGELOG.md"}, commit.Args)
	push := f.runner.calls[3]
	assert.Equal(t, []string{"push", "origin", "master"}, push.Args)
	for _, c := range f.runner.calls {
		assert.Equal(t, f.dir, c.Dir)
	}
	_, serr := os.Stat(filepath.Join(f.dir, "CHANGELOG.md"))
	assert.NoError(t, serr)

	require.Len(t, f.recorder.reports, 1)
	assert.Equal(t, report.RunID, f.recorder.reports[0].RunID)
	assert.Equal(t, OpRelease, f.recorder.reports[0].Operation)
}

func TestDryRunPlansWithoutRunning(t *testing.T) {
	f := newFixture(t)
	f.orch.Engine.DryRun = true

	report, err := f.orch.Release(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.runner.calls)
	assert.Equal(t, []Outcome{Planned, Planned, Planned, Planned, Planned}, outcomes(report))
	assert.Equal(t, StatusPlanned, report.Status)
	assert.Equal(t, "cargo release tag --execute", report.Steps[0].Command)
	assert.Empty(t, f.recorder.reports)
}

func TestInterruptIsFatalForToleratedStep(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.hooks[keyCommit] = func(context.Context) { cancel() }

	report, err := f.orch.Release(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Equal(t, []string{keyTag, keyChangelog, keyCommit}, f.runner.keys())
	assert.Equal(t, []Outcome{Succeeded, Succeeded, Failed, Skipped, Skipped}, outcomes(report))
	assert.Equal(t, StatusInterrupted, report.Status)
	// still recorded although ctx is done
	require.Len(t, f.recorder.reports, 1)
}

func TestCovIsNotImplemented(t *testing.T) {
	f := newFixture(t)
	report, err := f.orch.Cov(context.Background())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, err.Error(), "cov is reserved and not implemented")
	assert.Empty(t, f.runner.calls)
}

func TestRecorderFailureDoesNotChangeResult(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errRecorder

	_, err := f.orch.Test(context.Background())
	assert.NoError(t, err)
}

func TestQuietCapturesOutputAndDumpsTailOnFailure(t *testing.T) {
	f := newFixture(t)
	progress := &countingProgress{}
	stdout := &bytes.Buffer{}
	f.orch.Engine.Quiet = true
	f.orch.Engine.Progress = progress
	f.orch.Engine.Stdout = stdout
	f.runner.results[keyTest] = fakeResult{code: 2, output: "test foo ... FAILED\n"}

	_, err := f.orch.Test(context.Background())
	require.Error(t, err)
	assert.Empty(t, stdout.String())
	assert.Contains(t, f.stderr.String(), "test foo ... FAILED")
	assert.Equal(t, []string{"test"}, progress.starts)
	assert.Equal(t, 1, progress.stops)
}

func TestReportTimes(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	f.orch.Engine.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	report, err := f.orch.Test(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, len(report.Steps))
	assert.True(t, report.Finished.After(report.Started))
	assert.Equal(t, time.Second, report.Steps[0].Duration)
}

func TestClassifyCommit(t *testing.T) {
	cases := []struct {
		output string
		want   Outcome
	}{
		{"nothing to commit, working tree clean", NoChanges},
		{"no changes added to commit (use \"git add\")", NoChanges},
		{"nothing added to commit but untracked files present", NoChanges},
		{"Nothing To Commit", NoChanges},
		{"fatal: not a git repository", ToleratedFailure},
		{"", ToleratedFailure},
		{"error: gpg failed to sign the data\nfatal: failed to write commit object", ToleratedFailure},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyCommit(executor.Result{ExitCode: 1, Output: c.output}), c.output)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitInterrupted, ExitCode(ErrInterrupted))
	assert.Equal(t, ExitInterrupted, ExitCode(&StepError{Err: context.Canceled, ExitCode: -1}))
	assert.Equal(t, 1, ExitCode(&StepError{Err: errors.New("x"), ExitCode: -1}))
	assert.Equal(t, 42, ExitCode(&StepError{Err: errors.New("x"), ExitCode: 42}))
	assert.Equal(t, 3, ExitCode(&executor.ExitError{Code: 3}))
}
