package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// ActionStore defines the driven port for the action log used for dedup,
// restart caps and audit.
type ActionStore interface {
	// PriorRevertExists reports whether a non-dry-run revert was already
	// recorded for the commit.
	PriorRevertExists(ctx context.Context, repo, commitSHA string) (bool, error)
	// RecentRestarts returns timestamps of the most recent non-dry-run
	// restarts for (workflow, commit), newest first.
	RecentRestarts(ctx context.Context, repo, workflow, commitSHA string, limit int) ([]time.Time, error)
	// InsertEvent records an action.
	InsertEvent(ctx context.Context, event model.ActionEvent) error
	// ListRecent returns the most recent actions, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.ActionEvent, error)
}
