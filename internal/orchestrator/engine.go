package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/n0rad/go-erlog/data"
	"github.com/n0rad/go-erlog/logs"

	"github.com/VoxDroid/relman/internal/executor"
)

// Status is the final state of a run.
type Status string

// Run statuses.
const (
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
	StatusPlanned     Status = "planned"
)

// StepResult records what happened to one step.
type StepResult struct {
	Step     string
	Kind     Kind
	Policy   Policy
	Outcome  Outcome
	Command  string
	ExitCode int
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Report is the result of one workflow run.
type Report struct {
	RunID     uuid.UUID
	Operation string
	Dir       string
	DryRun    bool
	Started   time.Time
	Finished  time.Time
	Steps     []StepResult
	Status    Status
	Err       error
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// FailedStep returns the step that halted the run, if any.
func (r *Report) FailedStep() string {
	for _, s := range r.Steps {
		if s.Outcome == Failed {
			return s.Step
		}
	}
	return ""
}

// Recorder persists finished reports.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// Progress is shown while a step runs with captured output.
type Progress interface {
	Start(msg string)
	Stop()
}

// Engine runs workflows one step at a time.
type Engine struct {
	Runner executor.Runner
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Dir    string

	// DryRun marks every step planned without running it.
	DryRun bool
	// Quiet keeps child output off the terminal and dumps its tail on failure.
	Quiet    bool
	Progress Progress
	Recorder Recorder

	now func() time.Time
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Run executes the steps of wf in order. The first failure of a Fatal step
// halts the workflow; the remaining steps are reported skipped and never
// started. Cancellation of ctx is fatal at any step.
func (e *Engine) Run(ctx context.Context, wf Workflow) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		Operation: wf.Operation,
		Dir:       e.Dir,
		DryRun:    e.DryRun,
		Started:   e.clock(),
	}
	logs.WithField("operation", wf.Operation).Debug("Starting operation")

	halted := false
	for _, step := range wf.Steps {
		if halted {
			report.Steps = append(report.Steps, StepResult{
				Step: step.Name, Kind: step.Kind, Policy: step.Policy,
				Outcome: Skipped, Command: step.Description(),
			})
			continue
		}
		res := e.runStep(ctx, wf.Operation, step)
		report.Steps = append(report.Steps, res)
		if res.Outcome == Failed {
			halted = true
			report.Err = &StepError{
				Operation: wf.Operation,
				Step:      step.Name,
				Kind:      step.Kind,
				ExitCode:  res.ExitCode,
				Err:       res.Err,
			}
		}
	}
	report.Finished = e.clock()
	report.Status = statusOf(report)

	if !e.DryRun && e.Recorder != nil {
		// an interrupted run is still recorded
		if err := e.Recorder.Record(context.WithoutCancel(ctx), report); err != nil {
			logs.WithEF(err, data.WithField("run", report.RunID.String())).Warn("Failed to record run history")
		}
	}
	return report, report.Err
}

func statusOf(r *Report) Status {
	switch {
	case r.DryRun:
		return StatusPlanned
	case r.Err == nil:
		return StatusSucceeded
	case errors.Is(r.Err, ErrInterrupted) || errors.Is(r.Err, context.Canceled):
		return StatusInterrupted
	default:
		return StatusFailed
	}
}

func (e *Engine) runStep(ctx context.Context, operation string, step Step) StepResult {
	res := StepResult{
		Step:    step.Name,
		Kind:    step.Kind,
		Policy:  step.Policy,
		Command: step.Description(),
		Started: e.clock(),
	}
	fields := data.WithField("operation", operation).WithField("step", step.Name)

	if e.DryRun {
		res.Outcome = Planned
		logs.WithField("step", step.Name).WithField("command", res.Command).Info("Planned")
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Outcome = Failed
		res.Err = err
		res.ExitCode = -1
		return res
	}

	logs.WithField("operation", operation).WithField("step", step.Name).Info("Starting step")
	out, err := e.execute(ctx, step)
	res.Duration = e.clock().Sub(res.Started)
	res.ExitCode = out.ExitCode

	switch {
	case err == nil:
		res.Outcome = Succeeded
		logs.WithField("step", step.Name).WithField("duration", res.Duration.Round(time.Millisecond).String()).Info("Step done")
	case ctx.Err() != nil:
		// interruption is fatal even for tolerated steps
		res.Outcome = Failed
		res.Err = ctx.Err()
		logs.WithField("step", step.Name).Warn("Step interrupted")
	case step.Policy == Tolerated:
		res.Outcome = ToleratedFailure
		if step.Classify != nil {
			res.Outcome = step.Classify(out)
		}
		res.Err = err
		if res.Outcome == NoChanges {
			logs.WithField("step", step.Name).Info("Nothing to do, continuing")
		} else {
			logs.WithEF(err, fields.WithField("exit_code", out.ExitCode).WithField("output", lastLines(out.Output, 5))).
				Warn("Step failed, continuing")
		}
	default:
		res.Outcome = Failed
		res.Err = err
		logs.WithEF(err, fields.WithField("exit_code", out.ExitCode)).Error("Step failed")
		if e.Quiet && out.Output != "" {
			_, _ = fmt.Fprintf(orDiscard(e.Stderr), "--- output of %s ---\n%s", step.Name, out.Output)
		}
	}
	return res
}

func (e *Engine) execute(ctx context.Context, step Step) (executor.Result, error) {
	if step.Command == nil {
		if step.Action == nil {
			return executor.Result{}, fmt.Errorf("step %s has nothing to run", step.Name)
		}
		return executor.Result{}, step.Action(ctx)
	}
	if e.Runner == nil {
		return executor.Result{ExitCode: -1}, fmt.Errorf("no runner configured")
	}

	streams := executor.Streams{Stdin: e.Stdin, Stdout: e.Stdout, Stderr: e.Stderr}
	if e.Quiet {
		streams.Stdout, streams.Stderr = nil, nil
		if e.Progress != nil {
			e.Progress.Start(step.Name)
		}
	}
	out, err := e.Runner.Run(ctx, *step.Command, streams)
	if e.Quiet && e.Progress != nil {
		e.Progress.Stop()
	}
	if err != nil {
		return out, err
	}
	if step.Check != nil {
		if err := step.Check(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
