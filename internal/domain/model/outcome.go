package model

// AutorevertPattern is a regression detected by the pattern checker: two
// consecutive newer commits fail with the same classification rule and an
// older commit does not.
type AutorevertPattern struct {
	WorkflowName        string
	FailureRule         string
	NewerCommits        [2]string // newest first
	OlderCommit         string
	UntestedCommits     []string // strictly between NewerCommits[1] and OlderCommit, newest first
	FailedJobNames      []string // up to 10 failing job names on the suspected commit
	AdditionalWorkflows []WorkflowRule
}

// WorkflowRule names another workflow that exhibited the same pattern.
type WorkflowRule struct {
	WorkflowName string
	FailureRule  string
}

// SuspectedCommit is the older of the two failing commits.
func (p AutorevertPattern) SuspectedCommit() string { return p.NewerCommits[1] }

// Outcome is the result of processing one Signal. It is one of
// SignalPattern, RestartCommits or Ineligible.
type Outcome interface {
	isOutcome()
}

// SignalPattern is a confirmed regression on a signal, ready for action.
type SignalPattern struct {
	WorkflowName          string
	NewerFailingCommits   []string // newest first, excluding the suspect
	SuspectedCommit       string
	OlderSuccessfulCommit string
}

// RestartCommits asks for the listed commits to be re-run to reduce
// uncertainty. CommitSHAs keep the signal's newest-first order.
type RestartCommits struct {
	CommitSHAs []string
}

// IneligibleReason explains why a signal has no actionable pattern yet.
type IneligibleReason string

const (
	IneligibleFlaky                 IneligibleReason = "flaky"
	IneligibleFixed                 IneligibleReason = "fixed"
	IneligibleNoSuccesses           IneligibleReason = "no_successes"
	IneligibleNoPartition           IneligibleReason = "no_partition"
	IneligibleInfraNotConfirmed     IneligibleReason = "infra_not_confirmed"
	IneligibleInsufficientFailures  IneligibleReason = "insufficient_failures"
	IneligibleInsufficientSuccesses IneligibleReason = "insufficient_successes"
	IneligiblePendingGap            IneligibleReason = "pending_gap"
)

// Ineligible carries the reason no action was taken for a signal.
type Ineligible struct {
	Reason  IneligibleReason
	Message string
}

func (SignalPattern) isOutcome()  {}
func (RestartCommits) isOutcome() {}
func (Ineligible) isOutcome()     {}
