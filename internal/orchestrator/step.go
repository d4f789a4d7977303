// Package orchestrator sequences the external calls behind relman's
// operations and classifies their failures.
package orchestrator

import (
	"context"

	"github.com/VoxDroid/relman/internal/executor"
)

// Policy decides whether a step failure halts the workflow.
type Policy int

const (
	// Fatal halts the workflow on failure. It is the zero value.
	Fatal Policy = iota
	// Tolerated logs the failure and lets the workflow continue.
	Tolerated
)

func (p Policy) String() string {
	if p == Tolerated {
		return "tolerated"
	}
	return "fatal"
}

// Kind names the failure category of a step.
type Kind string

// Failure kinds.
const (
	CompileFailure   Kind = "COMPILE_FAILURE"
	InstallFailure   Kind = "INSTALL_FAILURE"
	TestFailure      Kind = "TEST_FAILURE"
	TagFailure       Kind = "TAG_FAILURE"
	ChangelogFailure Kind = "CHANGELOG_FAILURE"
	CommitFailure    Kind = "COMMIT_FAILURE"
	PushFailure      Kind = "PUSH_FAILURE"
	PublishFailure   Kind = "PUBLISH_FAILURE"
	NotImplemented   Kind = "NOT_IMPLEMENTED"
)

// Outcome is what happened to a single step.
type Outcome string

// Step outcomes.
const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	// ToleratedFailure is a failure swallowed by a Tolerated step.
	ToleratedFailure Outcome = "tolerated"
	// NoChanges is a tolerated step that had nothing to do.
	NoChanges Outcome = "no-changes"
	Skipped   Outcome = "skipped"
	Planned   Outcome = "planned"
)

// Step is one unit of a workflow: either an external Command or an
// in-process Action.
type Step struct {
	Name   string
	Kind   Kind
	Policy Policy

	Command *executor.Command
	Action  func(ctx context.Context) error
	// Describe is shown for Action steps in plans and history.
	Describe string

	// Check runs after a successful Command and fails the step when it
	// returns an error.
	Check func() error
	// Classify maps a tolerated failure to its outcome. Nil means
	// ToleratedFailure.
	Classify func(executor.Result) Outcome
}

// Description is the command line, or the action description.
func (s Step) Description() string {
	if s.Command != nil {
		return s.Command.String()
	}
	return s.Describe
}

// Workflow is an ordered list of steps run by one loop.
type Workflow struct {
	Operation string
	Steps     []Step
}
