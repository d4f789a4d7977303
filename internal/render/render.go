// Package render draws relman's terminal tables.
package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/VoxDroid/relman/internal/history"
	"github.com/VoxDroid/relman/internal/install"
	"github.com/VoxDroid/relman/internal/orchestrator"
)

const maxCommandWidth = 60

// Report renders the step table of a finished run followed by a one-line
// summary.
func Report(w io.Writer, r *orchestrator.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Step", "Outcome", "Exit", "Duration", "Command"})
	for i, s := range r.Steps {
		t.AppendRow(table.Row{
			i + 1,
			s.Step,
			colorOutcome(string(s.Outcome)),
			exitCode(s.Outcome, s.ExitCode),
			duration(s.Outcome, s.Duration),
			truncate(s.Command, maxCommandWidth),
		})
	}
	t.Render()

	summary := fmt.Sprintf("%s %s in %s", r.Operation, r.Status, r.Duration().Round(time.Millisecond))
	switch r.Status {
	case orchestrator.StatusSucceeded:
		summary = text.FgGreen.Sprint(summary)
	case orchestrator.StatusPlanned:
		summary = text.FgCyan.Sprintf("%s (dry run, nothing executed)", r.Operation)
	default:
		if step := r.FailedStep(); step != "" {
			summary += " at step " + step
		}
		summary = text.FgRed.Sprint(summary)
	}
	_, _ = fmt.Fprintln(w, summary)
}

// Runs renders recorded runs, newest first as given.
func Runs(w io.Writer, runs []history.Run, now time.Time) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded yet")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Operation", "Status", "Started", "Duration", "Failed step"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.Operation,
			colorOutcome(r.Status),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Duration.String(),
			r.FailedStep.String,
		})
	}
	t.Render()
}

// RunDetail renders one run with its steps.
func RunDetail(w io.Writer, r *history.Run) {
	_, _ = fmt.Fprintf(w, "Run %s\n", r.ID)
	_, _ = fmt.Fprintf(w, "  operation: %s\n  status:    %s\n  started:   %s\n  duration:  %s\n",
		r.Operation, colorOutcome(r.Status), r.StartedAt.Local().Format(time.RFC1123), r.Duration)
	if r.ProjectDir != "" {
		_, _ = fmt.Fprintf(w, "  project:   %s\n", r.ProjectDir)
	}
	if r.Version.Valid {
		_, _ = fmt.Fprintf(w, "  relman:    %s\n", r.Version.String)
	}
	if r.Error.Valid {
		_, _ = fmt.Fprintf(w, "  error:     %s\n", text.FgRed.Sprint(r.Error.String))
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Step", "Kind", "Outcome", "Exit", "Duration", "Command"})
	for _, s := range r.Steps {
		t.AppendRow(table.Row{
			s.Position,
			s.Name,
			s.Kind,
			colorOutcome(s.Outcome),
			exitCode(orchestrator.Outcome(s.Outcome), s.ExitCode),
			duration(orchestrator.Outcome(s.Outcome), s.Duration),
			truncate(s.Command.String, maxCommandWidth),
		})
	}
	t.Render()
}

// Status renders the artifact and install path side by side.
func Status(w io.Writer, st *install.Status, now time.Time) {
	t := newTable(w)
	t.AppendHeader(table.Row{"", "Path", "Present", "Size", "Modified"})
	for _, row := range []struct {
		label string
		f     install.File
	}{{"artifact", st.Artifact}, {"installed", st.Install}} {
		if !row.f.Exists {
			t.AppendRow(table.Row{row.label, row.f.Path, text.FgRed.Sprint("no"), "-", "-"})
			continue
		}
		t.AppendRow(table.Row{
			row.label,
			row.f.Path,
			text.FgGreen.Sprint("yes"),
			humanize.Bytes(uint64(row.f.Size)),
			humanize.RelTime(row.f.ModTime, now, "ago", "from now"),
		})
	}
	t.Render()

	switch {
	case st.UpToDate:
		_, _ = fmt.Fprintln(w, text.FgGreen.Sprint("Installed binary is up to date"))
	case st.Artifact.Exists && st.Install.Exists:
		_, _ = fmt.Fprintln(w, text.FgYellow.Sprint("Installed binary differs from the artifact; run 'relman install'"))
	case st.Artifact.Exists:
		_, _ = fmt.Fprintln(w, text.FgYellow.Sprint("Not installed; run 'relman install'"))
	default:
		_, _ = fmt.Fprintln(w, text.FgYellow.Sprint("No artifact; run 'relman build'"))
	}
	if !st.OnPath {
		_, _ = fmt.Fprintln(w, "Install directory is not on PATH")
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func colorOutcome(o string) string {
	switch orchestrator.Outcome(o) {
	case orchestrator.Succeeded:
		return text.FgGreen.Sprint(o)
	case orchestrator.Failed, orchestrator.Outcome(orchestrator.StatusInterrupted):
		return text.FgRed.Sprint(o)
	case orchestrator.ToleratedFailure:
		return text.FgYellow.Sprint(o)
	case orchestrator.Skipped, orchestrator.NoChanges:
		return text.FgHiBlack.Sprint(o)
	case orchestrator.Planned:
		return text.FgCyan.Sprint(o)
	}
	return o
}

func exitCode(o orchestrator.Outcome, code int) string {
	if o == orchestrator.Skipped || o == orchestrator.Planned {
		return "-"
	}
	return strconv.Itoa(code)
}

func duration(o orchestrator.Outcome, d time.Duration) string {
	if o == orchestrator.Skipped || o == orchestrator.Planned {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
