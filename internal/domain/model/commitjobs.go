package model

import (
	"regexp"
	"strings"
	"time"
)

// Job conclusions and statuses as reported by GitHub Actions.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"

	JobStatusCompleted = "completed"
)

// Workflow run trigger events. Restarts are dispatched runs.
const (
	EventPush             = "push"
	EventWorkflowDispatch = "workflow_dispatch"
)

// JobResult is one CI job execution for a commit.
type JobResult struct {
	HeadSHA            string
	WorkflowName       string
	RunID              int64 // Workflow run ID; 0 when unknown.
	JobID              int64 // GitHub job ID, used as the store's primary key.
	Name               string
	Conclusion         string    // success, failure, neutral, cancelled, skipped, ...; empty while running.
	Status             string    // queued, in_progress, completed.
	ClassificationRule string    // Log classifier tag; meaningful only when Conclusion is failure.
	WorkflowCreatedAt  time.Time // When the owning workflow run was created.
	StartedAt          time.Time
	Event              string // Run trigger event; empty when unknown, which counts as a push.
}

// IsFailed reports whether the job concluded with a failure.
func (j JobResult) IsFailed() bool { return j.Conclusion == ConclusionFailure }

// IsRestart reports whether the job ran in a dispatched restart rather than
// the commit's own push run.
func (j JobResult) IsRestart() bool { return j.Event == EventWorkflowDispatch }

// IsCompleted reports whether the job has finished running.
func (j JobResult) IsCompleted() bool { return j.Status == JobStatusCompleted }

// FailureRule returns the classification rule of a failed job, or "" when
// the job did not fail or has no rule. Rules on non-failed jobs are noise.
func (j JobResult) FailureRule() string {
	if !j.IsFailed() {
		return ""
	}
	return j.ClassificationRule
}

// CommitJobs groups all job results for one commit of one workflow.
// CreatedAt is the commit's position on the branch timeline. It is zero
// while the position is unknown.
type CommitJobs struct {
	HeadSHA   string
	CreatedAt time.Time
	Jobs      []JobResult
}

// RestartOnly reports whether every job of the commit came from a restart,
// in which case the job data says nothing about where the commit sits on
// the branch.
func (c CommitJobs) RestartOnly() bool {
	if len(c.Jobs) == 0 {
		return false
	}
	for _, j := range c.Jobs {
		if !j.IsRestart() {
			return false
		}
	}
	return true
}

// FailedJobs returns jobs that failed with a classification rule.
func (c CommitJobs) FailedJobs() []JobResult {
	var out []JobResult
	for _, j := range c.Jobs {
		if j.FailureRule() != "" {
			out = append(out, j)
		}
	}
	return out
}

var (
	trailingParenRe = regexp.MustCompile(`\s*\(.*\)$`)
	shardTokensRe   = regexp.MustCompile(`, \d+, \d+, `)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeJobName reduces a job name to a stable base so shards of the same
// job match across commits: trailing parenthetical qualifiers and ", N, M, "
// shard tokens are removed and whitespace is collapsed.
func NormalizeJobName(name string) string {
	base := trailingParenRe.ReplaceAllString(name, "")
	base = shardTokensRe.ReplaceAllString(base, ", ")
	base = whitespaceRe.ReplaceAllString(base, " ")
	return strings.TrimSpace(base)
}

// JobFilter decides whether a job takes part in analysis.
type JobFilter func(name string) bool

// UnstableSubstring returns a filter matching job names that contain any of
// the given substrings. With no substrings it matches "unstable".
func UnstableSubstring(substrings ...string) JobFilter {
	if len(substrings) == 0 {
		substrings = []string{"unstable"}
	}
	return func(name string) bool {
		for _, s := range substrings {
			if s != "" && strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
}
