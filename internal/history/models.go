// Package history stores finished runs in the local SQLite ledger.
package history

import (
	"database/sql"
	"time"
)

// Run is one recorded operation.
type Run struct {
	ID         string
	Operation  string
	Status     string
	ProjectDir string
	Version    sql.NullString
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	FailedStep sql.NullString
	Error      sql.NullString
	Steps      []Step
}

// Step is one recorded step of a Run.
type Step struct {
	Position int
	Name     string
	Kind     string
	Outcome  string
	ExitCode int
	Duration time.Duration
	Command  sql.NullString
	Error    sql.NullString
}
