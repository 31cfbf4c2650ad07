package model

import "time"

// InfraCheckResult classifies whether a partition's failures look
// commit-caused or infrastructure-caused.
type InfraCheckResult string

const (
	// InfraConfirmed means a failure lies strictly between two successes.
	InfraConfirmed InfraCheckResult = "confirmed"
	// InfraPending means the ranges overlap but pending events could still
	// complete the sandwich.
	InfraPending InfraCheckResult = "pending"
	// InfraRestartSuccess means no success-like event follows any failure.
	InfraRestartSuccess InfraCheckResult = "restart_success"
	// InfraRestartFailure means no failure-like event follows any success.
	InfraRestartFailure InfraCheckResult = "restart_failure"
)

// PartitionedCommits is the result of Signal.Partition. Each side keeps the
// signal's newest-first order.
//
// Pending commits in Failed are expected to resolve to failure, those in
// Successful to success; Unknown commits can go either way and untested
// commits always land there.
type PartitionedCommits struct {
	Failed     []SignalCommit
	Unknown    []SignalCommit
	Successful []SignalCommit
}

// FailureEventsCount counts failure events on the failing side.
func (p PartitionedCommits) FailureEventsCount() int {
	n := 0
	for _, c := range p.Failed {
		n += c.Count(SignalFailure)
	}
	return n
}

// SuccessEventsCount counts success events on the baseline side.
func (p PartitionedCommits) SuccessEventsCount() int {
	n := 0
	for _, c := range p.Successful {
		n += c.Count(SignalSuccess)
	}
	return n
}

// OldestFailed returns the suspected commit: the oldest commit on the
// failing side.
func (p PartitionedCommits) OldestFailed() SignalCommit {
	return p.Failed[len(p.Failed)-1]
}

// NewestSuccessful returns the baseline commit closest to the failures.
func (p PartitionedCommits) NewestSuccessful() SignalCommit {
	return p.Successful[0]
}

// timeBounds returns the min and max StartedAt over events accepted by keep.
// ok is false when no event matched.
func timeBounds(commits []SignalCommit, keep func(SignalEvent) bool) (lo, hi time.Time, ok bool) {
	for _, c := range commits {
		for _, e := range c.Events {
			if !keep(e) {
				continue
			}
			if !ok || e.StartedAt.Before(lo) {
				lo = e.StartedAt
			}
			if !ok || e.StartedAt.After(hi) {
				hi = e.StartedAt
			}
			ok = true
		}
	}
	return lo, hi, ok
}

// ConfirmNotInfra checks whether the observed failures are interleaved in
// time with the baseline successes. Success-like is success or pending;
// failure-like is failure or pending. Unknown commits are ignored.
// Priority: confirmed over pending.
func (p PartitionedCommits) ConfirmNotInfra() InfraCheckResult {
	minSuccLike, maxSuccLike, hasSuccLike := timeBounds(p.Successful, func(e SignalEvent) bool {
		return e.IsSuccess() || e.IsPending()
	})
	minSucc, maxSucc, hasSucc := timeBounds(p.Successful, SignalEvent.IsSuccess)
	minFailLike, maxFailLike, hasFailLike := timeBounds(p.Failed, func(e SignalEvent) bool {
		return e.IsFailure() || e.IsPending()
	})

	if !hasSuccLike || (hasFailLike && !maxSuccLike.After(minFailLike)) {
		return InfraRestartSuccess
	}
	if !hasFailLike || !maxFailLike.After(minSuccLike) {
		return InfraRestartFailure
	}

	if hasSucc && minSucc.Before(maxSucc) {
		for _, c := range p.Failed {
			for _, e := range c.Events {
				if e.IsFailure() && e.StartedAt.After(minSucc) && e.StartedAt.Before(maxSucc) {
					return InfraConfirmed
				}
			}
		}
	}

	return InfraPending
}
