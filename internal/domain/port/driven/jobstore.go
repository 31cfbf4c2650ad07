// Package driven defines the secondary ports the analysis engine depends on.
package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// ErrInvalidJob is returned when a job result lacks the fields needed to
// store and group it.
var ErrInvalidJob = errors.New("invalid job result")

// JobStore defines the driven port for CI job result persistence. It is the
// telemetry source the analysis cycle reads its snapshot from.
type JobStore interface {
	// UpsertJobs inserts or updates job results keyed by job ID. An empty
	// incoming classification rule never clears a stored one, so GitHub
	// syncs do not erase classifier annotations.
	UpsertJobs(ctx context.Context, jobs []model.JobResult) error
	// LoadWorkflowCommits returns, per workflow, the commits with job data
	// created at or after since, ordered newest first. Every requested
	// workflow is present in the result, possibly with an empty list.
	LoadWorkflowCommits(ctx context.Context, workflows []string, since time.Time) (map[string][]model.CommitJobs, error)
	// PruneBefore deletes job rows whose workflow was created before the cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
