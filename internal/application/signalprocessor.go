package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// Default confidence thresholds for trusting a signal pattern.
const (
	DefaultMinFailureEvents = 3
	DefaultMinSuccessEvents = 2
)

// SignalProcessor turns a Signal into a pattern, a restart request, or a
// reason to wait.
type SignalProcessor struct {
	bisectionLimit   *int
	minFailureEvents int
	minSuccessEvents int
}

// NewSignalProcessor creates a SignalProcessor. bisectionLimit caps how many
// commits of the untested gap may be covered per cycle (nil = unlimited).
// Non-positive thresholds fall back to the defaults.
func NewSignalProcessor(bisectionLimit *int, minFailureEvents, minSuccessEvents int) *SignalProcessor {
	if minFailureEvents <= 0 {
		minFailureEvents = DefaultMinFailureEvents
	}
	if minSuccessEvents <= 0 {
		minSuccessEvents = DefaultMinSuccessEvents
	}
	return &SignalProcessor{
		bisectionLimit:   bisectionLimit,
		minFailureEvents: minFailureEvents,
		minSuccessEvents: minSuccessEvents,
	}
}

// Process validates the signal's invariants and returns one of
// model.SignalPattern, model.RestartCommits or model.Ineligible.
func (p *SignalProcessor) Process(sig model.Signal) model.Outcome {
	if sig.DetectFlaky() {
		return model.Ineligible{Reason: model.IneligibleFlaky, Message: "signal is flaky (mixed outcomes on same commit)"}
	}
	if sig.DetectFixed() {
		return model.Ineligible{Reason: model.IneligibleFixed, Message: "signal appears recovered at head"}
	}
	if !sig.HasSuccesses() {
		return model.Ineligible{Reason: model.IneligibleNoSuccesses, Message: "no successful commits present in window"}
	}

	partition, ok := sig.Partition()
	if !ok {
		return model.Ineligible{Reason: model.IneligibleNoPartition, Message: "insufficient history to form failed/unknown/successful partitions"}
	}

	restarts := newShaSet()
	for _, sha := range planGap(partition.Unknown, p.bisectionLimit).CommitSHAs {
		restarts.add(sha)
	}

	oldestFailed := partition.OldestFailed()
	newestSuccessful := partition.NewestSuccessful()

	infra := partition.ConfirmNotInfra()
	if infra == model.InfraRestartFailure && !oldestFailed.HasPending() {
		restarts.add(oldestFailed.HeadSHA)
	}
	if infra == model.InfraRestartSuccess && !newestSuccessful.HasPending() {
		restarts.add(newestSuccessful.HeadSHA)
	}

	failures := partition.FailureEventsCount()
	successes := partition.SuccessEventsCount()
	if failures < p.minFailureEvents && !oldestFailed.HasPending() {
		restarts.add(oldestFailed.HeadSHA)
	}
	if successes < p.minSuccessEvents && !newestSuccessful.HasPending() {
		restarts.add(newestSuccessful.HeadSHA)
	}

	if restarts.len() > 0 {
		return model.RestartCommits{CommitSHAs: restarts.inSignalOrder(sig)}
	}

	if infra != model.InfraConfirmed {
		return model.Ineligible{Reason: model.IneligibleInfraNotConfirmed, Message: fmt.Sprintf("infra check result: %s", infra)}
	}
	if failures < p.minFailureEvents {
		return model.Ineligible{Reason: model.IneligibleInsufficientFailures, Message: fmt.Sprintf("not enough failures to make call: %d", failures)}
	}
	if successes < p.minSuccessEvents {
		return model.Ineligible{Reason: model.IneligibleInsufficientSuccesses, Message: fmt.Sprintf("not enough successes to make call: %d", successes)}
	}
	if len(partition.Unknown) > 0 {
		shas := make([]string, 0, len(partition.Unknown))
		for _, c := range partition.Unknown {
			shas = append(shas, c.HeadSHA)
		}
		return model.Ineligible{Reason: model.IneligiblePendingGap, Message: "pending/missing commits present: " + strings.Join(shas, ", ")}
	}

	newer := make([]string, 0, len(partition.Failed)-1)
	for _, c := range partition.Failed[:len(partition.Failed)-1] {
		newer = append(newer, c.HeadSHA)
	}
	return model.SignalPattern{
		WorkflowName:          sig.WorkflowName,
		NewerFailingCommits:   newer,
		SuspectedCommit:       oldestFailed.HeadSHA,
		OlderSuccessfulCommit: newestSuccessful.HeadSHA,
	}
}

// shaSet is a set of commit SHAs.
type shaSet map[string]struct{}

func newShaSet() shaSet         { return make(shaSet) }
func (s shaSet) add(sha string) { s[sha] = struct{}{} }
func (s shaSet) len() int       { return len(s) }

func (s shaSet) has(sha string) bool {
	_, ok := s[sha]
	return ok
}

// inSignalOrder returns the set's SHAs in the signal's newest-first order.
func (s shaSet) inSignalOrder(sig model.Signal) []string {
	out := make([]string, 0, len(s))
	for _, c := range sig.Commits {
		if s.has(c.HeadSHA) {
			out = append(out, c.HeadSHA)
		}
	}
	return out
}
