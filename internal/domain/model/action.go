package model

import "time"

// ActionType is the kind of action the engine can take on a commit.
type ActionType string

const (
	ActionRevert  ActionType = "revert"
	ActionRestart ActionType = "restart"
)

// SignalSource identifies a signal that contributed to an action.
type SignalSource struct {
	WorkflowName string
	Key          string
}

// ActionGroup is a coalesced action built from one or more signals.
// Reverts are keyed by commit; restarts by (workflow, commit).
type ActionGroup struct {
	Type           ActionType
	CommitSHA      string
	WorkflowTarget string // Restart only.
	Sources        []SignalSource
}

// ActionEvent is one recorded action, persisted for dedup, caps and audit.
type ActionEvent struct {
	ID               int64
	RunID            string
	Timestamp        time.Time
	Repo             string
	Action           ActionType
	CommitSHA        string
	Workflows        []string
	SourceSignalKeys []string
	DryRun           bool
	Notes            string
}

// RunSummary records the result of one analysis cycle.
type RunSummary struct {
	RunID      string
	Repo       string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Workflows  []string
	Patterns   int // Reports from the pattern checker.
	Signals    int
	Restarts   int // Restart actions executed.
	Reverts    int // Revert intents recorded.
	// Suspended is set when the circuit breaker was open and the cycle took
	// no action.
	Suspended bool
	Error     string
}

// PushCommit is a commit on the tracked branch, used for revert detection.
type PushCommit struct {
	SHA       string
	Message   string
	Timestamp time.Time
}

// RevertInfo describes a commit that reverted an earlier commit.
type RevertInfo struct {
	RevertSHA     string
	RevertMessage string
	RevertedAt    time.Time
	Delay         time.Duration // Time between the target commit and its revert.
}
