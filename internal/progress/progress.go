// Package progress shows a spinner while a step runs with captured output.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

var (
	_ orchestrator.Progress = (*Spinner)(nil)
	_ orchestrator.Progress = Nop{}
)

// Spinner wraps briandowns/spinner for one step at a time.
type Spinner struct {
	loader *spinner.Spinner
}

// New returns a Spinner writing to w.
func New(w io.Writer) *Spinner {
	loader := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	loader.Color("yellow") //nolint:errcheck
	return &Spinner{loader: loader}
}

// Start shows the spinner with msg as its suffix.
func (s *Spinner) Start(msg string) {
	s.loader.Suffix = " " + msg + "..."
	s.loader.Start()
}

// Stop hides the spinner.
func (s *Spinner) Stop() {
	s.loader.Stop()
}

// Nop does nothing. It is used when stderr is not a terminal.
type Nop struct{}

// Start implements the orchestrator's Progress.
func (Nop) Start(string) {}

// Stop implements the orchestrator's Progress.
func (Nop) Stop() {}

// For returns a spinner when f is a terminal, and Nop otherwise.
func For(f *os.File) orchestrator.Progress {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return Nop{}
	}
	return New(f)
}
