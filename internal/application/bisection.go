package application

import (
	"github.com/ericfisherdev/autorevert/internal/domain/bisect"
	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// PlanBisection picks which commits in the untested range between a
// signal's failing head and its successful baseline to dispatch this cycle.
// Commits with any event, including pending-only ones, count as covered and
// use budget without being re-dispatched. A nil limit schedules every
// untested commit. It never dispatches anything itself.
func PlanBisection(sig model.Signal, limit *int) model.RestartCommits {
	partition, ok := sig.Partition()
	if !ok {
		return model.RestartCommits{}
	}
	return planGap(partition.Unknown, limit)
}

// planGap maps bisect.Plan over the unknown commits back to commit SHAs.
func planGap(unknown []model.SignalCommit, limit *int) model.RestartCommits {
	covered := make([]bool, len(unknown))
	for i, c := range unknown {
		covered[i] = c.IsCovered()
	}

	var shas []string
	for i, pick := range bisect.Plan(covered, limit) {
		if pick {
			shas = append(shas, unknown[i].HeadSHA)
		}
	}
	return model.RestartCommits{CommitSHAs: shas}
}
