package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VoxDroid/relman/internal/orchestrator"
	"github.com/VoxDroid/relman/internal/version"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// DefaultLimit is the number of runs ListRuns returns when limit <= 0.
const DefaultLimit = 20

// fixed width so that started_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository records runs and reads them back.
type Repository struct {
	db *sql.DB
}

var _ orchestrator.Recorder = (*Repository)(nil)

// NewRepository creates a new Repository using db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying DB connection used by the Repository.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record stores a finished report and its steps in one transaction.
func (r *Repository) Record(ctx context.Context, rep *orchestrator.Report) error {
	trx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = trx.Rollback() }()

	_, err = trx.ExecContext(ctx, `INSERT INTO runs
		(id, operation, status, project_dir, version, started_at, finished_at, duration_ms, failed_step, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID.String(), rep.Operation, string(rep.Status), rep.Dir, version.Version,
		rep.Started.UTC().Format(timeLayout), rep.Finished.UTC().Format(timeLayout),
		rep.Duration().Milliseconds(), nullString(rep.FailedStep()), nullError(rep.Err))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, s := range rep.Steps {
		if _, err := trx.ExecContext(ctx, `INSERT INTO steps
			(run_id, position, name, kind, outcome, exit_code, duration_ms, command, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID.String(), i+1, s.Step, string(s.Kind), string(s.Outcome), s.ExitCode,
			s.Duration.Milliseconds(), nullString(s.Command), nullError(s.Err)); err != nil {
			return fmt.Errorf("insert step %s: %w", s.Step, err)
		}
	}
	return trx.Commit()
}

// ListRuns returns the most recent runs first, without their steps.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, operation, status, project_dir, version,
		started_at, finished_at, duration_ms, failed_step, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun returns one run with its steps. id may be a unique prefix.
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("invalid run id: empty")
	}
	fullID, err := r.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT id, operation, status, project_dir, version,
		started_at, finished_at, duration_ms, failed_step, error
		FROM runs WHERE id = ?`, fullID)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, fullID)
	if err != nil {
		return nil, err
	}
	run.Steps = steps
	return &run, nil
}

func (r *Repository) resolveID(ctx context.Context, prefix string) (string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM runs WHERE id LIKE ? || '%' ESCAPE '\\' LIMIT 2", escapeLike(prefix))
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id %q is ambiguous", prefix)
	}
}

func (r *Repository) listSteps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT position, name, kind, outcome, exit_code, duration_ms, command, error
		FROM steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Step
	for rows.Next() {
		var s Step
		var ms int64
		if err := rows.Scan(&s.Position, &s.Name, &s.Kind, &s.Outcome, &s.ExitCode, &ms, &s.Command, &s.Error); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var started, finished string
	var ms int64
	if err := s.Scan(&run.ID, &run.Operation, &run.Status, &run.ProjectDir, &run.Version,
		&started, &finished, &ms, &run.FailedStep, &run.Error); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("run %s: parse finished_at: %w", run.ID, err)
	}
	run.Duration = time.Duration(ms) * time.Millisecond
	return run, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullError(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
