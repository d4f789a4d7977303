package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	_ "github.com/n0rad/go-erlog/register"

	"github.com/VoxDroid/relman/internal/executor"
)

// keyOf identifies a command by its program and first two arguments,
// e.g. "cargo release tag" or "git push origin".
func keyOf(c executor.Command) string {
	words := append([]string{c.Name}, c.Args...)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

type fakeResult struct {
	code   int
	output string
}

// fakeRunner is a scripted executor.Runner. Commands without a scripted
// result succeed.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []executor.Command
	results map[string]fakeResult
	// hooks run before the result is returned, keyed like results
	hooks map[string]func(ctx context.Context)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: map[string]fakeResult{}, hooks: map[string]func(context.Context){}}
}

func (f *fakeRunner) Run(ctx context.Context, c executor.Command, s executor.Streams) (executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	key := keyOf(c)
	if h, ok := f.hooks[key]; ok {
		h(ctx)
	}
	r := f.results[key]
	if s.Stdout != nil && r.output != "" {
		_, _ = io.WriteString(s.Stdout, r.output)
	}
	if err := ctx.Err(); err != nil {
		return executor.Result{ExitCode: -1, Output: r.output}, &executor.ExitError{Command: c.String(), Code: -1, Err: err}
	}
	if r.code == 0 {
		return executor.Result{Output: r.output}, nil
	}
	return executor.Result{ExitCode: r.code, Output: r.output}, &executor.ExitError{
		Command: c.String(),
		Code:    r.code,
		Output:  r.output,
		Err:     fmt.Errorf("exit status %d", r.code),
	}
}

func (f *fakeRunner) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, keyOf(c))
	}
	return out
}

type memRecorder struct {
	reports []*Report
	err     error
}

func (m *memRecorder) Record(_ context.Context, r *Report) error {
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

type countingProgress struct {
	starts []string
	stops  int
}

func (p *countingProgress) Start(msg string) { p.starts = append(p.starts, msg) }
func (p *countingProgress) Stop()            { p.stops++ }

var errRecorder = errors.New("disk full")
