package application

import (
	"sort"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// SignalExtractor builds per-job Signals from per-commit job histories.
type SignalExtractor struct {
	isUnstable model.JobFilter
}

// NewSignalExtractor creates a SignalExtractor. A nil isUnstable uses
// model.UnstableSubstring().
func NewSignalExtractor(isUnstable model.JobFilter) *SignalExtractor {
	if isUnstable == nil {
		isUnstable = model.UnstableSubstring()
	}
	return &SignalExtractor{isUnstable: isUnstable}
}

// jobEvent converts a job result into a signal event. ok is false for
// completed jobs with an inconclusive conclusion (neutral, cancelled, ...).
func jobEvent(j model.JobResult) (model.SignalEvent, bool) {
	var status model.SignalStatus
	switch {
	case !j.IsCompleted():
		status = model.SignalPending
	default:
		parsed, ok := model.ParseSignalStatus(j.Conclusion)
		if !ok || parsed == model.SignalPending {
			return model.SignalEvent{}, false
		}
		status = parsed
	}

	startedAt := j.StartedAt
	if startedAt.IsZero() {
		startedAt = j.WorkflowCreatedAt
	}

	return model.SignalEvent{
		Name:      j.Name,
		Status:    status,
		StartedAt: startedAt,
		WfRunID:   j.RunID,
	}, true
}

// Extract returns one deduplicated Signal per normalized job name seen in
// the workflow's commits, ordered by key. Every signal spans all commits;
// commits where the job never ran carry no events.
func (e *SignalExtractor) Extract(workflow string, commits []model.CommitJobs) []model.Signal {
	byKey := make(map[string][][]model.SignalEvent)

	for i, commit := range commits {
		for _, j := range commit.Jobs {
			if e.isUnstable(j.Name) {
				continue
			}
			key := model.NormalizeJobName(j.Name)
			if _, ok := byKey[key]; !ok {
				byKey[key] = make([][]model.SignalEvent, len(commits))
			}
			if event, ok := jobEvent(j); ok {
				byKey[key][i] = append(byKey[key][i], event)
			}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	signals := make([]model.Signal, 0, len(keys))
	for _, key := range keys {
		perCommit := byKey[key]
		sigCommits := make([]model.SignalCommit, 0, len(commits))
		for i, commit := range commits {
			sigCommits = append(sigCommits, model.NewSignalCommit(commit.HeadSHA, commit.CreatedAt, perCommit[i]))
		}
		sig := model.Signal{Key: key, WorkflowName: workflow, Commits: sigCommits}
		signals = append(signals, sig.Dedup())
	}

	return signals
}

// AlignToPushes returns the full branch timeline, newest first: one entry
// per pushed commit, carrying the workflow's jobs when it has any and no
// jobs otherwise. Push order is kept. Commits with job data but no matching
// push are placed by their creation time. Commits known only from restarts
// cannot be placed without a matching push and are left out. With no pushes
// the input order is kept.
func AlignToPushes(pushes []model.PushCommit, commits []model.CommitJobs) []model.CommitJobs {
	if len(pushes) == 0 {
		out := make([]model.CommitJobs, 0, len(commits))
		for _, c := range commits {
			if !c.RestartOnly() {
				out = append(out, c)
			}
		}
		return out
	}

	bySHA := make(map[string]model.CommitJobs, len(commits))
	for _, c := range commits {
		bySHA[c.HeadSHA] = c
	}

	timeline := make([]model.CommitJobs, 0, len(pushes)+len(commits))
	pushed := make(map[string]bool, len(pushes))
	for _, p := range pushes {
		if pushed[p.SHA] {
			continue
		}
		pushed[p.SHA] = true
		if c, ok := bySHA[p.SHA]; ok {
			c.CreatedAt = p.Timestamp
			timeline = append(timeline, c)
			continue
		}
		timeline = append(timeline, model.CommitJobs{HeadSHA: p.SHA, CreatedAt: p.Timestamp})
	}

	// Push order is authoritative; orphans go before the first older entry.
	for _, c := range commits {
		if pushed[c.HeadSHA] || c.RestartOnly() {
			continue
		}
		at := len(timeline)
		for i, t := range timeline {
			if t.CreatedAt.Before(c.CreatedAt) {
				at = i
				break
			}
		}
		timeline = append(timeline, model.CommitJobs{})
		copy(timeline[at+1:], timeline[at:])
		timeline[at] = c
	}

	return timeline
}
