package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// GitHubClient defines the driven port for reading CI and commit data from GitHub.
type GitHubClient interface {
	// FetchWorkflowJobs returns the jobs of push-triggered runs of the given
	// workflow file on the branch, created at or after since.
	FetchWorkflowJobs(ctx context.Context, repoFullName, workflowFile, branch string, since time.Time) ([]model.JobResult, error)
	// FetchCommits returns commits on the branch since the given time, newest first.
	FetchCommits(ctx context.Context, repoFullName, branch string, since time.Time) ([]model.PushCommit, error)
	// ListOpenIssuesByLabel returns open issues and pull requests carrying
	// the label.
	ListOpenIssuesByLabel(ctx context.Context, repoFullName, label string) ([]model.Issue, error)
}

// WorkflowDispatcher triggers a re-run of a workflow for a commit.
type WorkflowDispatcher interface {
	// DispatchWorkflow fires a workflow_dispatch event for workflowFile at the
	// tag ref pointing at commitSHA.
	DispatchWorkflow(ctx context.Context, repoFullName, workflowFile, commitSHA string) error
}
