// Package model holds the CI signal, outcome and action types.
package model

import (
	"sort"
	"time"
)

// SignalStatus is the outcome of a single signal event.
type SignalStatus string

const (
	SignalPending SignalStatus = "pending"
	SignalSuccess SignalStatus = "success"
	SignalFailure SignalStatus = "failure"
)

// ParseSignalStatus maps a raw status string onto the closed SignalStatus set.
// Any other value (neutral, cancelled, skipped, ...) is inconclusive and
// reported with ok=false.
func ParseSignalStatus(s string) (SignalStatus, bool) {
	switch SignalStatus(s) {
	case SignalPending, SignalSuccess, SignalFailure:
		return SignalStatus(s), true
	default:
		return "", false
	}
}

// SignalEvent is one job execution observed against a commit.
type SignalEvent struct {
	Name      string // Job name; may vary by shard.
	Status    SignalStatus
	StartedAt time.Time
	EndedAt   time.Time // Zero while the job is still running.
	WfRunID   int64     // Workflow run identifier, used for dedup.
}

func (e SignalEvent) IsPending() bool { return e.Status == SignalPending }
func (e SignalEvent) IsSuccess() bool { return e.Status == SignalSuccess }
func (e SignalEvent) IsFailure() bool { return e.Status == SignalFailure }

// dedupKey identifies duplicate recordings of the same execution.
type dedupKey struct {
	startedAt time.Time
	wfRunID   int64
}

func (e SignalEvent) key() dedupKey {
	return dedupKey{startedAt: e.StartedAt.UTC(), wfRunID: e.WfRunID}
}

// SignalCommit holds all events for a single commit, oldest first.
// A commit with no events is untested.
type SignalCommit struct {
	HeadSHA   string
	Timestamp time.Time
	Events    []SignalEvent
}

// NewSignalCommit builds a SignalCommit with events ordered by
// (StartedAt, WfRunID). Equal keys keep their input order.
func NewSignalCommit(headSHA string, timestamp time.Time, events []SignalEvent) SignalCommit {
	sorted := make([]SignalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartedAt.Equal(sorted[j].StartedAt) {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		}
		return sorted[i].WfRunID < sorted[j].WfRunID
	})
	return SignalCommit{HeadSHA: headSHA, Timestamp: timestamp, Events: sorted}
}

// Count returns the number of events with the given status.
func (c SignalCommit) Count(status SignalStatus) int {
	n := 0
	for _, e := range c.Events {
		if e.Status == status {
			n++
		}
	}
	return n
}

func (c SignalCommit) HasPending() bool { return c.Count(SignalPending) > 0 }
func (c SignalCommit) HasSuccess() bool { return c.Count(SignalSuccess) > 0 }
func (c SignalCommit) HasFailure() bool { return c.Count(SignalFailure) > 0 }

// IsCovered reports whether the commit already has a result or a scheduled
// (pending) run.
func (c SignalCommit) IsCovered() bool { return len(c.Events) > 0 }

// Signal is the timeline of one logical job across a commit range.
// Commits are ordered newest first; index 0 is the most recent commit.
type Signal struct {
	Key          string
	WorkflowName string
	Commits      []SignalCommit
}

// Dedup returns a copy of the signal where, within each commit, events
// sharing (StartedAt, WfRunID) with an earlier event are dropped.
func (s Signal) Dedup() Signal {
	commits := make([]SignalCommit, 0, len(s.Commits))
	for _, c := range s.Commits {
		seen := make(map[dedupKey]struct{}, len(c.Events))
		events := make([]SignalEvent, 0, len(c.Events))
		for _, e := range c.Events {
			k := e.key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			events = append(events, e)
		}
		commits = append(commits, SignalCommit{HeadSHA: c.HeadSHA, Timestamp: c.Timestamp, Events: events})
	}
	return Signal{Key: s.Key, WorkflowName: s.WorkflowName, Commits: commits}
}

// DetectFlaky reports whether any commit has both a success and a failure.
// A false result can also mean there is not enough data yet.
func (s Signal) DetectFlaky() bool {
	for _, c := range s.Commits {
		if c.HasSuccess() && c.HasFailure() {
			return true
		}
	}
	return false
}

// DetectFixed finds the newest commit with a terminal event and reports
// whether it contains a success.
func (s Signal) DetectFixed() bool {
	for _, c := range s.Commits {
		if c.HasSuccess() || c.HasFailure() {
			return c.HasSuccess()
		}
	}
	return false
}

// HasSuccesses reports whether any commit in the signal has a success.
func (s Signal) HasSuccesses() bool {
	for _, c := range s.Commits {
		if c.HasSuccess() {
			return true
		}
	}
	return false
}

// Partition splits the most recent history into a failing head, an unknown
// middle (untested or pending-only commits) and a successful baseline, in
// the signal's newest-first order. Older breakages past the first success
// streak are ignored. ok is false when either side would be empty.
func (s Signal) Partition() (PartitionedCommits, bool) {
	if len(s.Commits) < 2 {
		return PartitionedCommits{}, false
	}

	var failed, successful []SignalCommit
	pickingFailed := true
	for _, c := range s.Commits {
		if c.HasSuccess() {
			pickingFailed = false
		} else if c.HasFailure() && !pickingFailed {
			break
		}
		if pickingFailed {
			failed = append(failed, c)
		} else {
			successful = append(successful, c)
		}
	}

	cut := len(failed)
	for cut > 0 && !failed[cut-1].HasFailure() {
		cut--
	}
	unknown := failed[cut:]
	failed = failed[:cut:cut]

	if len(failed) == 0 || len(successful) == 0 {
		return PartitionedCommits{}, false
	}
	return PartitionedCommits{Failed: failed, Unknown: unknown, Successful: successful}, true
}
