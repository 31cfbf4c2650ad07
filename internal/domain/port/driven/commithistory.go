package driven

import "github.com/ericfisherdev/autorevert/internal/domain/model"

// CommitHistoryProvider supplies the per-workflow commit history the pattern
// checker reads. Implementations hold an already-fetched snapshot; lookups
// perform no I/O.
type CommitHistoryProvider interface {
	// WorkflowCommits returns the workflow's commits, newest first. ok is
	// false when the workflow was never loaded.
	WorkflowCommits(workflow string) (commits []model.CommitJobs, ok bool)
}
