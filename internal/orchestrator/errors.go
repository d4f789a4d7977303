package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/VoxDroid/relman/internal/executor"
)

// ExitInterrupted is the exit code of an operation stopped by a signal.
const ExitInterrupted = 130

var (
	// ErrNotImplemented is returned by reserved operations.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInterrupted is returned when a signal stopped the operation.
	ErrInterrupted = errors.New("interrupted")
)

// StepError is the error of a fatal step failure.
type StepError struct {
	Operation string
	Step      string
	Kind      Kind
	// ExitCode is the child's exit code, -1 when it did not exit normally
	// and 0 for in-process steps.
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s failed (%s): %v", e.Operation, e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExitCode maps an operation error to a process exit code: 0 on success,
// 130 on interruption, the child's exit code when it is positive, else 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.ExitCode > 0 {
		return stepErr.ExitCode
	}
	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}
