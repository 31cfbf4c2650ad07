package application

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// ErrWorkflowNotLoaded is returned when detection is requested for a
// workflow the commit history provider never loaded. It indicates a caller
// bug, not missing CI data.
var ErrWorkflowNotLoaded = errors.New("workflow not loaded")

// maxFailedJobNames caps the job names listed on a pattern report.
const maxFailedJobNames = 10

// PatternChecker detects two-commit regressions against a clean baseline
// in per-commit job histories. It performs no I/O.
type PatternChecker struct {
	history     driven.CommitHistoryProvider
	isUnstable  model.JobFilter
	ignoreRules map[string]bool
}

// NewPatternChecker creates a PatternChecker over the given history. A nil
// isUnstable uses model.UnstableSubstring(). Failure rules in ignoreRules
// never form a pattern.
func NewPatternChecker(history driven.CommitHistoryProvider, isUnstable model.JobFilter, ignoreRules []string) *PatternChecker {
	if isUnstable == nil {
		isUnstable = model.UnstableSubstring()
	}
	ignore := make(map[string]bool, len(ignoreRules))
	for _, r := range ignoreRules {
		ignore[r] = true
	}
	return &PatternChecker{
		history:     history,
		isUnstable:  isUnstable,
		ignoreRules: ignore,
	}
}

// stableJobs returns the commit's jobs with unstable ones removed.
func (c *PatternChecker) stableJobs(commit model.CommitJobs) []model.JobResult {
	jobs := make([]model.JobResult, 0, len(commit.Jobs))
	for _, j := range commit.Jobs {
		if !c.isUnstable(j.Name) {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// failureRules returns the distinct rules that failed jobs carry.
func failureRules(jobs []model.JobResult) map[string]bool {
	rules := make(map[string]bool)
	for _, j := range jobs {
		if r := j.FailureRule(); r != "" {
			rules[r] = true
		}
	}
	return rules
}

func hasCompletedJob(jobs []model.JobResult) bool {
	for _, j := range jobs {
		if j.IsCompleted() {
			return true
		}
	}
	return false
}

// DetectWorkflow returns one report per classification rule that fails on
// both of the two most recent commits with job data and is absent from
// an older baseline commit. Reports are ordered by rule. No match yields an
// empty slice.
func (c *PatternChecker) DetectWorkflow(workflow string) ([]model.AutorevertPattern, error) {
	commits, ok := c.history.WorkflowCommits(workflow)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorkflowNotLoaded, workflow)
	}

	// Indices (into commits) of commits with stable job data, newest first.
	var withData []int
	jobsAt := make(map[int][]model.JobResult, len(commits))
	for i, commit := range commits {
		jobs := c.stableJobs(commit)
		if len(jobs) == 0 {
			continue
		}
		withData = append(withData, i)
		jobsAt[i] = jobs
	}

	patterns := []model.AutorevertPattern{}
	if len(withData) < 3 {
		return patterns, nil
	}

	newest, second := withData[0], withData[1]
	newestRules := failureRules(jobsAt[newest])
	secondRules := failureRules(jobsAt[second])

	var candidates []string
	for rule := range newestRules {
		if secondRules[rule] && !c.ignoreRules[rule] {
			candidates = append(candidates, rule)
		}
	}
	sort.Strings(candidates)

	for _, rule := range candidates {
		older := -1
		for _, idx := range withData[2:] {
			jobs := jobsAt[idx]
			if failureRules(jobs)[rule] {
				continue
			}
			// A commit whose jobs are all still running is no evidence of a
			// clean baseline.
			if !hasCompletedJob(jobs) {
				continue
			}
			older = idx
			break
		}
		if older < 0 {
			continue
		}

		untested := make([]string, 0, older-second-1)
		for _, commit := range commits[second+1 : older] {
			untested = append(untested, commit.HeadSHA)
		}

		var failedNames []string
		for _, j := range jobsAt[second] {
			if j.FailureRule() == rule && len(failedNames) < maxFailedJobNames {
				failedNames = append(failedNames, j.Name)
			}
		}

		patterns = append(patterns, model.AutorevertPattern{
			WorkflowName:    workflow,
			FailureRule:     rule,
			NewerCommits:    [2]string{commits[newest].HeadSHA, commits[second].HeadSHA},
			OlderCommit:     commits[older].HeadSHA,
			UntestedCommits: untested,
			FailedJobNames:  failedNames,
		})
	}

	return patterns, nil
}

// DetectAll runs DetectWorkflow for each workflow in order. A report whose
// newer-commit pair (in either order) was first reported by a different
// workflow is folded into that report's AdditionalWorkflows.
func (c *PatternChecker) DetectAll(workflows []string) ([]model.AutorevertPattern, error) {
	var all []model.AutorevertPattern
	seen := make(map[[2]string]int)

	for _, wf := range workflows {
		patterns, err := c.DetectWorkflow(wf)
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			key := p.NewerCommits
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if idx, ok := seen[key]; ok && all[idx].WorkflowName != p.WorkflowName {
				all[idx].AdditionalWorkflows = append(all[idx].AdditionalWorkflows, model.WorkflowRule{
					WorkflowName: p.WorkflowName,
					FailureRule:  p.FailureRule,
				})
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = len(all)
			}
			all = append(all, p)
		}
	}

	return all, nil
}
