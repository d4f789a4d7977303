// Package executor runs external toolchain programs for relman steps.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/n0rad/go-erlog/data"
	"github.com/n0rad/go-erlog/logs"
)

// DefaultTailSize bounds the output kept in Result for classification and
// failure reports.
const DefaultTailSize = 16 * 1024

// waitDelay bounds how long Run waits for output pipes held open by
// grandchildren once the child itself is gone.
const waitDelay = 5 * time.Second

// Streams are the child's standard streams. Nil writers discard output; a
// nil Stdin reads from the null device.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is what is left of a finished command: its exit code and the tail
// of its combined stdout and stderr.
type Result struct {
	ExitCode int
	Output   string
}

// Runner is an interface for executing commands. It allows tests to inject
// fake implementations without running real programs.
type Runner interface {
	Run(ctx context.Context, c Command, s Streams) (Result, error)
}

// ExitError reports a command that ran and exited non-zero, or could not be
// started at all (Code is -1 then).
type ExitError struct {
	Command string
	Code    int
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("command failed: %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command failed: %s: exit status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Executor runs commands directly, without a shell, streaming their output
// to the given writers while keeping a bounded tail.
type Executor struct {
	Verbose  bool
	TailSize int
}

// New returns a Runner backed by the real Executor implementation.
func New(verbose bool) Runner {
	return &Executor{Verbose: verbose, TailSize: DefaultTailSize}
}

// Run starts c and waits for it. Cancelling ctx kills the child.
func (e *Executor) Run(ctx context.Context, c Command, s Streams) (Result, error) {
	if err := validate(c); err != nil {
		return Result{ExitCode: -1}, err
	}
	line := c.String()
	if e.Verbose {
		logs.WithField("command", line).Info("Running command")
	} else if logs.IsDebugEnabled() {
		logs.WithField("command", line).Debug("Running command")
	}

	size := e.TailSize
	if size <= 0 {
		size = DefaultTailSize
	}
	tail := newTailBuffer(size)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = MergeEnv(os.Environ(), c.Env)
	cmd.Stdin = s.Stdin
	cmd.Stdout = io.MultiWriter(orDiscard(s.Stdout), tail)
	cmd.Stderr = io.MultiWriter(orDiscard(s.Stderr), tail)

	err := cmd.Run()
	res := Result{Output: tail.String()}
	if err == nil {
		return res, nil
	}
	return checkExecutionError(ctx, err, res, line)
}

func checkExecutionError(ctx context.Context, err error, res Result, line string) (Result, error) {
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// killed by us; report the cancellation rather than the signal
		err = ctxErr
	}
	if res.ExitCode < 0 {
		logs.WithEF(err, data.WithField("command", line)).Debug("Command did not exit normally")
	}
	return res, &ExitError{Command: line, Code: res.ExitCode, Output: res.Output, Err: err}
}

func validate(c Command) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("invalid command: no program to run")
	}
	for i, a := range append([]string{c.Name}, c.Args...) {
		if strings.IndexFunc(a, func(r rune) bool { return r == 0 }) != -1 {
			return fmt.Errorf("invalid command arg[%d]: contains NUL", i)
		}
	}
	for k := range c.Env {
		if !isEnvName(k) {
			return fmt.Errorf("invalid environment variable name %q", k)
		}
	}
	return nil
}

// MergeEnv returns base with extra applied on top. Existing keys are
// replaced so the child sees exactly one value per variable. base is not
// modified.
func MergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[k]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := Command{Env: extra}.envKeys()
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
