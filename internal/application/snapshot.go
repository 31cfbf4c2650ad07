package application

import (
	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommitHistoryProvider = CommitSnapshot(nil)

// CommitSnapshot is an immutable, already-fetched view of per-workflow
// commit histories (newest first). One snapshot backs one analysis cycle so
// every signal in the cycle sees the same data.
type CommitSnapshot map[string][]model.CommitJobs

// WorkflowCommits implements driven.CommitHistoryProvider.
func (s CommitSnapshot) WorkflowCommits(workflow string) ([]model.CommitJobs, bool) {
	commits, ok := s[workflow]
	return commits, ok
}
