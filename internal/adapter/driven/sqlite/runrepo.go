package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Record stores a cycle summary. Recording the same run ID again replaces it.
func (r *RunRepo) Record(ctx context.Context, run model.RunSummary) error {
	const query = `
		INSERT INTO autorevert_runs (
			run_id, repo, started_at, finished_at, dry_run, workflows,
			patterns, signals, restarts, reverts, suspended, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			patterns = excluded.patterns,
			signals = excluded.signals,
			restarts = excluded.restarts,
			reverts = excluded.reverts,
			suspended = excluded.suspended,
			error = excluded.error
	`

	workflows, err := encodeStrings(run.Workflows)
	if err != nil {
		return fmt.Errorf("encode workflows: %w", err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		run.RunID, run.Repo, run.StartedAt.UTC(), run.FinishedAt.UTC(), boolToInt(run.DryRun), workflows,
		run.Patterns, run.Signals, run.Restarts, run.Reverts, boolToInt(run.Suspended), run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}

	return nil
}

// ListRecent returns the most recent cycle summaries, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]model.RunSummary, error) {
	const query = `
		SELECT run_id, repo, started_at, finished_at, dry_run, workflows,
		       patterns, signals, restarts, reverts, suspended, error
		FROM autorevert_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

func scanRun(s scanner) (*model.RunSummary, error) {
	var run model.RunSummary
	var startedAt, finishedAt, workflows string
	var dryRun, suspended int

	err := s.Scan(&run.RunID, &run.Repo, &startedAt, &finishedAt, &dryRun, &workflows,
		&run.Patterns, &run.Signals, &run.Restarts, &run.Reverts, &suspended, &run.Error)
	if err != nil {
		return nil, err
	}

	run.DryRun = dryRun != 0
	run.Suspended = suspended != 0
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	if run.Workflows, err = decodeStrings(workflows); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}

	return &run, nil
}
