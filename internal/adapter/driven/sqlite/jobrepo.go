package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the SQLite implementation of the JobStore port interface.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func validateJob(j model.JobResult) error {
	switch {
	case j.JobID == 0:
		return fmt.Errorf("%w: missing job id", driven.ErrInvalidJob)
	case j.HeadSHA == "":
		return fmt.Errorf("%w: job %d has no head sha", driven.ErrInvalidJob, j.JobID)
	case j.WorkflowName == "":
		return fmt.Errorf("%w: job %d has no workflow name", driven.ErrInvalidJob, j.JobID)
	case j.Name == "":
		return fmt.Errorf("%w: job %d has no name", driven.ErrInvalidJob, j.JobID)
	case j.WorkflowCreatedAt.IsZero():
		return fmt.Errorf("%w: job %d has no workflow creation time", driven.ErrInvalidJob, j.JobID)
	}
	return nil
}

// UpsertJobs inserts or updates job results in a single transaction. The
// batch is rejected as a whole if any job is invalid.
func (r *JobRepo) UpsertJobs(ctx context.Context, jobs []model.JobResult) error {
	for _, j := range jobs {
		if err := validateJob(j); err != nil {
			return err
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `
		INSERT INTO job_results (
			job_id, workflow_name, head_sha, run_id, name, conclusion, status,
			classification_rule, workflow_created_at, started_at, event, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(job_id) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			head_sha = excluded.head_sha,
			run_id = excluded.run_id,
			name = excluded.name,
			conclusion = excluded.conclusion,
			status = excluded.status,
			classification_rule = CASE
				WHEN excluded.classification_rule != '' THEN excluded.classification_rule
				ELSE job_results.classification_rule
			END,
			workflow_created_at = excluded.workflow_created_at,
			started_at = COALESCE(excluded.started_at, job_results.started_at),
			event = CASE
				WHEN excluded.event != '' THEN excluded.event
				ELSE job_results.event
			END,
			updated_at = CURRENT_TIMESTAMP
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare job upsert: %w", err)
	}
	defer stmt.Close()

	for _, j := range jobs {
		if _, err := stmt.ExecContext(ctx,
			j.JobID, j.WorkflowName, j.HeadSHA, j.RunID, j.Name, j.Conclusion, j.Status,
			j.ClassificationRule, j.WorkflowCreatedAt.UTC(), nullTime(j.StartedAt), j.Event,
		); err != nil {
			return fmt.Errorf("upsert job %d: %w", j.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit jobs: %w", err)
	}

	return nil
}

// LoadWorkflowCommits reads every requested workflow inside one read
// transaction so all histories come from the same snapshot. A commit is
// included with all of its jobs when any of its runs was created at or after
// since. Commits are ordered by their earliest push run, newest first.
// Restart runs never position a commit: a commit whose only runs are
// restarts has a zero CreatedAt and sorts last.
func (r *JobRepo) LoadWorkflowCommits(ctx context.Context, workflows []string, since time.Time) (map[string][]model.CommitJobs, error) {
	tx, err := r.db.Reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Read-only transaction.

	out := make(map[string][]model.CommitJobs, len(workflows))
	for _, wf := range workflows {
		commits, err := loadCommits(ctx, tx, wf, since)
		if err != nil {
			return nil, err
		}
		out[wf] = commits
	}

	return out, nil
}

func loadCommits(ctx context.Context, tx *sql.Tx, workflow string, since time.Time) ([]model.CommitJobs, error) {
	const query = `
		SELECT job_id, workflow_name, head_sha, run_id, name, conclusion, status,
		       classification_rule, workflow_created_at, started_at, event
		FROM job_results
		WHERE workflow_name = ?
		  AND head_sha IN (
			SELECT head_sha FROM job_results
			WHERE workflow_name = ? AND workflow_created_at >= ?
		  )
		ORDER BY head_sha, job_id
	`

	rows, err := tx.QueryContext(ctx, query, workflow, workflow, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query jobs for %s: %w", workflow, err)
	}
	defer rows.Close()

	var commits []model.CommitJobs
	index := make(map[string]int)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		i, ok := index[j.HeadSHA]
		if !ok {
			i = len(commits)
			index[j.HeadSHA] = i
			commits = append(commits, model.CommitJobs{HeadSHA: j.HeadSHA})
		}
		if !j.IsRestart() && (commits[i].CreatedAt.IsZero() || j.WorkflowCreatedAt.Before(commits[i].CreatedAt)) {
			commits[i].CreatedAt = j.WorkflowCreatedAt
		}
		commits[i].Jobs = append(commits[i].Jobs, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs for %s: %w", workflow, err)
	}

	sort.SliceStable(commits, func(a, b int) bool {
		if !commits[a].CreatedAt.Equal(commits[b].CreatedAt) {
			return commits[a].CreatedAt.After(commits[b].CreatedAt)
		}
		return commits[a].HeadSHA < commits[b].HeadSHA
	})

	if commits == nil {
		commits = []model.CommitJobs{}
	}

	return commits, nil
}

func scanJob(s scanner) (*model.JobResult, error) {
	var j model.JobResult
	var createdAt string
	var startedAt sql.NullString

	err := s.Scan(&j.JobID, &j.WorkflowName, &j.HeadSHA, &j.RunID, &j.Name, &j.Conclusion, &j.Status,
		&j.ClassificationRule, &createdAt, &startedAt, &j.Event)
	if err != nil {
		return nil, err
	}

	j.WorkflowCreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse workflow_created_at: %w", err)
	}
	j.StartedAt, err = parseNullTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	return &j, nil
}

// PruneBefore deletes every job of commits whose newest run was created
// before the cutoff, so no commit is left with a partial job set.
func (r *JobRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM job_results
		WHERE head_sha IN (
			SELECT head_sha FROM job_results
			GROUP BY head_sha
			HAVING MAX(workflow_created_at) < ?
		)
	`

	result, err := r.db.Writer.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return rows, nil
}
