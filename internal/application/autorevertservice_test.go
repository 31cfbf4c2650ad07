package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorevert/internal/application"
	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// --- Mock implementations ---

type fetchJobsCall struct {
	Repo, File, Branch string
}

type mockGitHubClient struct {
	jobs        []model.JobResult
	commits     []model.PushCommit
	issues      []model.Issue
	jobCalls    []fetchJobsCall
	issueLabels []string
	fetchErr    error
	commitErr   error
	issueErr    error
}

func (m *mockGitHubClient) FetchWorkflowJobs(_ context.Context, repo, file, branch string, _ time.Time) ([]model.JobResult, error) {
	m.jobCalls = append(m.jobCalls, fetchJobsCall{Repo: repo, File: file, Branch: branch})
	return m.jobs, m.fetchErr
}

func (m *mockGitHubClient) FetchCommits(_ context.Context, _, _ string, _ time.Time) ([]model.PushCommit, error) {
	return m.commits, m.commitErr
}

func (m *mockGitHubClient) ListOpenIssuesByLabel(_ context.Context, _, label string) ([]model.Issue, error) {
	m.issueLabels = append(m.issueLabels, label)
	return m.issues, m.issueErr
}

type mockJobStore struct {
	histories map[string][]model.CommitJobs
	upserted  []model.JobResult
	loadErr   error
	pruned    []time.Time
}

func (m *mockJobStore) UpsertJobs(_ context.Context, jobs []model.JobResult) error {
	m.upserted = append(m.upserted, jobs...)
	return nil
}

func (m *mockJobStore) LoadWorkflowCommits(_ context.Context, workflows []string, _ time.Time) (map[string][]model.CommitJobs, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string][]model.CommitJobs, len(workflows))
	for _, wf := range workflows {
		out[wf] = m.histories[wf]
	}
	return out, nil
}

func (m *mockJobStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.pruned = append(m.pruned, cutoff)
	return 0, nil
}

type mockRunStore struct {
	runs []model.RunSummary
}

func (m *mockRunStore) Record(_ context.Context, run model.RunSummary) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockRunStore) ListRecent(_ context.Context, _ int) ([]model.RunSummary, error) {
	return m.runs, nil
}

// --- Helpers ---

func startedJob(job model.JobResult, runID int64, minute int) model.JobResult {
	job.RunID = runID
	job.JobID = runID*100 + int64(minute)
	job.StartedAt = at(minute)
	return job
}

// regressionHistory is a trunk history where h1 broke "test".
func regressionHistory() []model.CommitJobs {
	return []model.CommitJobs{
		commitJobs("h2", 44, startedJob(failedJob("test", "pytest failure"), 4, 45)),
		commitJobs("h1", 29,
			startedJob(failedJob("test", "pytest failure"), 3, 30),
			startedJob(failedJob("test", "pytest failure"), 5, 35),
		),
		commitJobs("s1", 39, startedJob(successJob("test"), 2, 40)),
		commitJobs("s0", 9, startedJob(successJob("test"), 1, 10)),
	}
}

type serviceFixture struct {
	svc      *application.AutorevertService
	jobs     *mockJobStore
	runs     *mockRunStore
	actions  *mockActionStore
	dispatch *mockDispatcher
}

func newServiceFixture(gh *mockGitHubClient, dryRun bool, approvedUsers ...string) serviceFixture {
	f := serviceFixture{
		jobs:     &mockJobStore{histories: map[string][]model.CommitJobs{"trunk": regressionHistory()}},
		runs:     &mockRunStore{},
		actions:  &mockActionStore{},
		dispatch: &mockDispatcher{},
	}
	cfg := application.ServiceConfig{
		Repo:           "pytorch/pytorch",
		Branch:         "main",
		Workflows:      []string{"trunk"},
		WorkflowFiles:  map[string]string{"trunk": "trunk.yml"},
		Interval:       time.Hour,
		Lookback:       24 * time.Hour,
		DryRun:         dryRun,
		SyncFromGitHub: true,

		CircuitBreakerLabel:         application.DefaultCircuitBreakerLabel,
		CircuitBreakerApprovedUsers: approvedUsers,
	}
	executor := application.NewActionExecutor(f.actions, f.dispatch, cfg.WorkflowFiles, 0, 0)
	processor := application.NewSignalProcessor(intPtr(2), 0, 0)

	// A nil *mockGitHubClient must reach the service as a nil interface.
	if gh == nil {
		f.svc = application.NewAutorevertService(nil, f.jobs, f.runs, processor, executor, nil, cfg)
	} else {
		f.svc = application.NewAutorevertService(gh, f.jobs, f.runs, processor, executor, nil, cfg)
	}
	return f
}

// --- Tests ---

func TestAutorevertService_RunOnceRecordsRevert(t *testing.T) {
	f := newServiceFixture(nil, true)

	summary, err := f.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, summary.Patterns)
	assert.Equal(t, 1, summary.Signals)
	assert.Equal(t, 1, summary.Reverts)
	assert.Equal(t, 0, summary.Restarts)
	assert.True(t, summary.DryRun)
	assert.Empty(t, summary.Error)

	require.Len(t, f.actions.events, 1)
	assert.Equal(t, model.ActionRevert, f.actions.events[0].Action)
	assert.Equal(t, "h1", f.actions.events[0].CommitSHA)
	assert.Equal(t, summary.RunID, f.actions.events[0].RunID)

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, summary.RunID, f.runs.runs[0].RunID)
}

func TestAutorevertService_RunOnceSyncsAndSkipsUpstreamRevert(t *testing.T) {
	gh := &mockGitHubClient{
		jobs: []model.JobResult{successJob("test")},
		commits: []model.PushCommit{
			{SHA: "revert-h1", Message: "Revert \"break\"\n\nThis reverts commit h1.", Timestamp: at(50)},
			{SHA: "h2", Timestamp: at(44)},
			{SHA: "h1", Message: "break", Timestamp: at(29)},
			{SHA: "s1", Timestamp: at(20)},
			{SHA: "s0", Timestamp: at(9)},
		},
	}
	f := newServiceFixture(gh, false)

	summary, err := f.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []fetchJobsCall{{Repo: "pytorch/pytorch", File: "trunk.yml", Branch: "main"}}, gh.jobCalls)
	assert.Len(t, f.jobs.upserted, 1)
	assert.Len(t, f.jobs.pruned, 1)
	assert.Equal(t, 0, summary.Reverts)
	assert.Empty(t, f.actions.events)
}

func TestAutorevertService_RunOnceContinuesWhenGitHubFails(t *testing.T) {
	gh := &mockGitHubClient{
		fetchErr:  errors.New("rate limited"),
		commitErr: errors.New("rate limited"),
	}
	f := newServiceFixture(gh, true)

	summary, err := f.svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.jobs.upserted)
	assert.Equal(t, 1, summary.Reverts)
}

func TestAutorevertService_RunOnceRecordsFailure(t *testing.T) {
	f := newServiceFixture(nil, true)
	f.jobs.loadErr = errors.New("database is locked")

	summary, err := f.svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, summary.Error, "database is locked")
	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, summary.Error, f.runs.runs[0].Error)
}

func TestAutorevertService_TriggerCycle(t *testing.T) {
	f := newServiceFixture(nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.svc.Start(ctx)
		close(done)
	}()

	summary, err := f.svc.TriggerCycle(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)

	cancel()
	<-done

	// The initial cycle plus the triggered one.
	require.Len(t, f.runs.runs, 2)
	assert.NotEqual(t, f.runs.runs[0].RunID, f.runs.runs[1].RunID)
	// Dry-run intents are not deduplicated, so each cycle records one.
	assert.Len(t, f.actions.events, 2)
}

func TestAutorevertService_TriggerCycleCanceled(t *testing.T) {
	f := newServiceFixture(nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.TriggerCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAutorevertService_DetectPatterns(t *testing.T) {
	f := newServiceFixture(nil, true)

	patterns, err := f.svc.DetectPatterns(context.Background(), "trunk")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "h1", patterns[0].SuspectedCommit())
	assert.Empty(t, f.actions.events)

	_, err = f.svc.DetectPatterns(context.Background(), "nightly")
	assert.ErrorIs(t, err, application.ErrWorkflowNotLoaded)
}

// restartedUntestedHistory is trunk where U was skipped on push and later
// restarted, so its only run is newer than every push run. Push order is
// C, B, U, A and B broke "test".
func restartedUntestedHistory() ([]model.PushCommit, []model.CommitJobs) {
	restart := successJob("test")
	restart.Event = model.EventWorkflowDispatch
	untested := commitJobs("U", 300, restart)
	untested.CreatedAt = time.Time{}

	pushes := []model.PushCommit{
		{SHA: "C", Timestamp: at(180)},
		{SHA: "B", Timestamp: at(120)},
		{SHA: "U", Timestamp: at(90)},
		{SHA: "A", Timestamp: at(60)},
	}
	commits := []model.CommitJobs{
		commitJobs("C", 180, failedJob("test", "pytest failure")),
		commitJobs("B", 120, failedJob("test", "pytest failure")),
		commitJobs("A", 60, successJob("test")),
		untested,
	}
	return pushes, commits
}

func TestAutorevertService_DetectPatternsUsesPushOrder(t *testing.T) {
	pushes, commits := restartedUntestedHistory()
	f := newServiceFixture(&mockGitHubClient{commits: pushes}, true)
	f.jobs.histories["trunk"] = commits

	patterns, err := f.svc.DetectPatterns(context.Background(), "trunk")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, [2]string{"C", "B"}, patterns[0].NewerCommits)
	assert.Equal(t, "U", patterns[0].OlderCommit)
	assert.Empty(t, patterns[0].UntestedCommits)
}

func TestAutorevertService_DetectPatternsWithoutPushesSkipsRestartOnlyCommits(t *testing.T) {
	_, commits := restartedUntestedHistory()
	f := newServiceFixture(nil, true)
	f.jobs.histories["trunk"] = commits

	patterns, err := f.svc.DetectPatterns(context.Background(), "trunk")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, [2]string{"C", "B"}, patterns[0].NewerCommits)
	assert.Equal(t, "A", patterns[0].OlderCommit)
}

func TestAutorevertService_CircuitBreaker(t *testing.T) {
	tests := []struct {
		name          string
		issues        []model.Issue
		issueErr      error
		approvedUsers []string
		wantSuspended bool
	}{
		{
			name: "no labelled issue",
		},
		{
			name:   "pull request only",
			issues: []model.Issue{{Number: 100, Author: "oncall", IsPullRequest: true}},
		},
		{
			name:          "issue from any author",
			issues:        []model.Issue{{Number: 200, Author: "someone"}},
			wantSuspended: true,
		},
		{
			name:          "issue from unapproved author",
			issues:        []model.Issue{{Number: 200, Author: "someone"}},
			approvedUsers: []string{"oncall"},
		},
		{
			name: "issue from approved author",
			issues: []model.Issue{
				{Number: 100, Author: "someone"},
				{Number: 200, Author: "oncall"},
			},
			approvedUsers: []string{"oncall"},
			wantSuspended: true,
		},
		{
			name:     "lookup error",
			issueErr: errors.New("bad credentials"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := &mockGitHubClient{issues: tt.issues, issueErr: tt.issueErr}
			f := newServiceFixture(gh, true, tt.approvedUsers...)

			summary, err := f.svc.RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []string{application.DefaultCircuitBreakerLabel}, gh.issueLabels)
			assert.Equal(t, tt.wantSuspended, summary.Suspended)
			assert.Equal(t, 1, summary.Patterns)
			require.Len(t, f.runs.runs, 1)
			assert.Equal(t, tt.wantSuspended, f.runs.runs[0].Suspended)

			if tt.wantSuspended {
				assert.Equal(t, 0, summary.Reverts)
				assert.Empty(t, f.actions.events)
				return
			}
			assert.Equal(t, 1, summary.Reverts)
			assert.Len(t, f.actions.events, 1)
		})
	}
}

func TestFindBreakerIssue(t *testing.T) {
	issues := []model.Issue{
		{Number: 1, Author: "oncall", IsPullRequest: true},
		{Number: 2, Author: "someone"},
		{Number: 3, Author: "oncall"},
	}

	got, ok := application.FindBreakerIssue(issues, nil)
	require.True(t, ok)
	assert.Equal(t, 2, got.Number)

	got, ok = application.FindBreakerIssue(issues, []string{"oncall"})
	require.True(t, ok)
	assert.Equal(t, 3, got.Number)

	_, ok = application.FindBreakerIssue(issues[:2], []string{"oncall"})
	assert.False(t, ok)

	_, ok = application.FindBreakerIssue(nil, nil)
	assert.False(t, ok)
}
