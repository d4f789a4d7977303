package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	dbpkg "github.com/VoxDroid/relman/internal/db"
)

// ExportDatabase writes a consistent copy of the whole ledger to dstPath.
func (r *Repository) ExportDatabase(ctx context.Context, dstPath string) error {
	if err := prepareDst(dstPath); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "VACUUM INTO ?", dstPath); err != nil {
		return fmt.Errorf("export db: %w", err)
	}
	return nil
}

// ExportRun exports a single run and its steps into a standalone SQLite DB
// at dstPath. id may be a unique prefix.
func (r *Repository) ExportRun(ctx context.Context, id, dstPath string) error {
	run, err := r.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if err := prepareDst(dstPath); err != nil {
		return err
	}
	dstDB, err := dbpkg.Open(dstPath)
	if err != nil {
		return fmt.Errorf("open dst db: %w", err)
	}
	defer func() { _ = dstDB.Close() }()

	trx, err := dstDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = trx.Rollback() }()

	if _, err := trx.ExecContext(ctx, `INSERT INTO runs
		(id, operation, status, project_dir, version, started_at, finished_at, duration_ms, failed_step, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Operation, run.Status, run.ProjectDir, run.Version,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Duration.Milliseconds(), run.FailedStep, run.Error); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, s := range run.Steps {
		if _, err := trx.ExecContext(ctx, `INSERT INTO steps
			(run_id, position, name, kind, outcome, exit_code, duration_ms, command, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, s.Position, s.Name, s.Kind, s.Outcome, s.ExitCode, s.Duration.Milliseconds(), s.Command, s.Error); err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
	}
	return trx.Commit()
}

// prepareDst creates the parent directory and refuses to overwrite.
func prepareDst(dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("destination already exists: %s", dstPath)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("create dst dir: %w", err)
	}
	return nil
}
