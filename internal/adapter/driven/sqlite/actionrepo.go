package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActionStore = (*ActionRepo)(nil)

// ActionRepo is the SQLite implementation of the ActionStore port interface.
type ActionRepo struct {
	db *DB
}

// NewActionRepo creates a new ActionRepo backed by the given DB.
func NewActionRepo(db *DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// PriorRevertExists reports whether a non-dry-run revert was recorded for the commit.
func (r *ActionRepo) PriorRevertExists(ctx context.Context, repo, commitSHA string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM autorevert_events
			WHERE repo = ? AND action = 'revert' AND commit_sha = ? AND dry_run = 0
		)
	`

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, repo, commitSHA).Scan(&exists); err != nil {
		return false, fmt.Errorf("check prior revert for %s: %w", commitSHA, err)
	}

	return exists, nil
}

// RecentRestarts returns the newest non-dry-run restart timestamps for the
// (workflow, commit) pair.
func (r *ActionRepo) RecentRestarts(ctx context.Context, repo, workflow, commitSHA string, limit int) ([]time.Time, error) {
	const query = `
		SELECT ts FROM autorevert_events
		WHERE repo = ? AND action = 'restart' AND dry_run = 0 AND commit_sha = ?
		  AND EXISTS (SELECT 1 FROM json_each(autorevert_events.workflows) WHERE value = ?)
		ORDER BY ts DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repo, commitSHA, workflow, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent restarts for %s@%s: %w", workflow, commitSHA, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan restart ts: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse restart ts: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restarts: %w", err)
	}

	return out, nil
}

// InsertEvent records one action row.
func (r *ActionRepo) InsertEvent(ctx context.Context, event model.ActionEvent) error {
	const query = `
		INSERT INTO autorevert_events (
			run_id, ts, repo, action, commit_sha, workflows, source_signal_keys, dry_run, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	workflows, err := encodeStrings(event.Workflows)
	if err != nil {
		return fmt.Errorf("encode workflows: %w", err)
	}
	keys, err := encodeStrings(event.SourceSignalKeys)
	if err != nil {
		return fmt.Errorf("encode source signal keys: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		event.RunID, ts.UTC(), event.Repo, string(event.Action), event.CommitSHA,
		workflows, keys, boolToInt(event.DryRun), event.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert %s event for %s: %w", event.Action, event.CommitSHA, err)
	}

	return nil
}

// ListRecent returns the most recent actions, newest first.
func (r *ActionRepo) ListRecent(ctx context.Context, limit int) ([]model.ActionEvent, error) {
	const query = `
		SELECT id, run_id, ts, repo, action, commit_sha, workflows, source_signal_keys, dry_run, notes
		FROM autorevert_events
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.ActionEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func scanEvent(s scanner) (*model.ActionEvent, error) {
	var e model.ActionEvent
	var ts, action, workflows, keys string
	var dryRun int

	err := s.Scan(&e.ID, &e.RunID, &ts, &e.Repo, &action, &e.CommitSHA, &workflows, &keys, &dryRun, &e.Notes)
	if err != nil {
		return nil, err
	}

	e.Action = model.ActionType(action)
	e.DryRun = dryRun != 0

	e.Timestamp, err = parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parse ts: %w", err)
	}
	if e.Workflows, err = decodeStrings(workflows); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}
	if e.SourceSignalKeys, err = decodeStrings(keys); err != nil {
		return nil, fmt.Errorf("decode source signal keys: %w", err)
	}

	return &e, nil
}
