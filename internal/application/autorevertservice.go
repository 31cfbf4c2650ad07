// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// ServiceConfig holds the settings of one tracked repository.
type ServiceConfig struct {
	Repo      string
	Branch    string
	Workflows []string
	// WorkflowFiles maps workflow names to the file used to sync and
	// dispatch them.
	WorkflowFiles  map[string]string
	Interval       time.Duration
	Lookback       time.Duration
	DryRun         bool
	SyncFromGitHub bool
	// IgnoreRules are classification rules that never form a pattern.
	IgnoreRules []string
	// CircuitBreakerLabel names the issue label that suspends actions. An
	// empty label disables the check.
	CircuitBreakerLabel string
	// CircuitBreakerApprovedUsers, when set, limits the breaker to issues
	// opened by these users.
	CircuitBreakerApprovedUsers []string
}

// cycleRequest represents a manual cycle trigger.
type cycleRequest struct {
	done chan cycleResult
}

type cycleResult struct {
	summary model.RunSummary
	err     error
}

// AutorevertService runs analysis cycles on an interval: it syncs job
// results, snapshots per-workflow histories, turns signals into outcomes,
// and executes the resulting actions.
type AutorevertService struct {
	ghClient   driven.GitHubClient
	jobStore   driven.JobStore
	runStore   driven.RunStore
	extractor  *SignalExtractor
	processor  *SignalProcessor
	executor   *ActionExecutor
	isUnstable model.JobFilter
	cfg        ServiceConfig
	now        func() time.Time
	triggerCh  chan cycleRequest
}

// NewAutorevertService creates an AutorevertService. ghClient may be nil, in
// which case job results only arrive through the job store and no branch
// history is used for revert detection.
func NewAutorevertService(
	ghClient driven.GitHubClient,
	jobStore driven.JobStore,
	runStore driven.RunStore,
	processor *SignalProcessor,
	executor *ActionExecutor,
	isUnstable model.JobFilter,
	cfg ServiceConfig,
) *AutorevertService {
	if isUnstable == nil {
		isUnstable = model.UnstableSubstring()
	}
	return &AutorevertService{
		ghClient:   ghClient,
		jobStore:   jobStore,
		runStore:   runStore,
		extractor:  NewSignalExtractor(isUnstable),
		processor:  processor,
		executor:   executor,
		isUnstable: isUnstable,
		cfg:        cfg,
		now:        time.Now,
		triggerCh:  make(chan cycleRequest),
	}
}

// Start runs an immediate cycle, then one per configured interval. It also
// serves manual triggers. Start blocks until the context is canceled.
func (s *AutorevertService) Start(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("initial cycle failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("autorevert service stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("cycle failed", "error", err)
			}
		case req := <-s.triggerCh:
			summary, err := s.RunOnce(ctx)
			req.done <- cycleResult{summary: summary, err: err}
		}
	}
}

// TriggerCycle asks the running loop for an immediate cycle, bypassing the
// interval. It blocks until the cycle completes or the context is canceled.
func (s *AutorevertService) TriggerCycle(ctx context.Context) (model.RunSummary, error) {
	done := make(chan cycleResult, 1)

	select {
	case s.triggerCh <- cycleRequest{done: done}:
	case <-ctx.Done():
		return model.RunSummary{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res.summary, res.err
	case <-ctx.Done():
		return model.RunSummary{}, ctx.Err()
	}
}

// RunOnce executes a single analysis cycle and records its summary. The
// summary is returned even when the cycle fails.
func (s *AutorevertService) RunOnce(ctx context.Context) (model.RunSummary, error) {
	start := s.now()
	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		Repo:      s.cfg.Repo,
		StartedAt: start,
		DryRun:    s.cfg.DryRun,
		Workflows: s.cfg.Workflows,
	}

	cycleErr := s.runCycle(ctx, &summary)
	summary.FinishedAt = s.now()
	if cycleErr != nil {
		summary.Error = cycleErr.Error()
	}

	// The summary is written even if the cycle context was canceled.
	if err := s.runStore.Record(context.WithoutCancel(ctx), summary); err != nil {
		cycleErr = errors.Join(cycleErr, fmt.Errorf("record run %s: %w", summary.RunID, err))
	}

	slog.Info("autorevert cycle complete",
		"run_id", summary.RunID,
		"repo", summary.Repo,
		"patterns", summary.Patterns,
		"signals", summary.Signals,
		"restarts", summary.Restarts,
		"reverts", summary.Reverts,
		"dry_run", summary.DryRun,
		"suspended", summary.Suspended,
		"duration", summary.FinishedAt.Sub(start).Round(time.Millisecond),
	)

	return summary, cycleErr
}

func (s *AutorevertService) runCycle(ctx context.Context, summary *model.RunSummary) error {
	since := summary.StartedAt.Add(-s.cfg.Lookback)

	if s.ghClient != nil && s.cfg.SyncFromGitHub {
		s.syncJobs(ctx, since)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	pushes := s.fetchPushes(ctx, since)
	snapshot, err := s.loadSnapshot(ctx, s.cfg.Workflows, pushes, since)
	if err != nil {
		return err
	}

	checker := NewPatternChecker(snapshot, s.isUnstable, s.cfg.IgnoreRules)
	patterns, err := checker.DetectAll(s.cfg.Workflows)
	if err != nil {
		return fmt.Errorf("detect patterns: %w", err)
	}
	summary.Patterns = len(patterns)
	for _, p := range patterns {
		slog.Info("autorevert pattern detected",
			"workflow", p.WorkflowName,
			"rule", p.FailureRule,
			"suspected", p.SuspectedCommit(),
			"baseline", p.OlderCommit,
			"untested", len(p.UntestedCommits),
			"additional_workflows", len(p.AdditionalWorkflows),
		)
	}

	var pairs []SignalOutcome
	for _, wf := range s.cfg.Workflows {
		for _, sig := range s.extractor.Extract(wf, snapshot[wf]) {
			outcome := s.processor.Process(sig)
			if inel, ok := outcome.(model.Ineligible); ok {
				slog.Debug("signal ineligible", "workflow", wf, "signal", sig.Key, "reason", inel.Reason)
			}
			pairs = append(pairs, SignalOutcome{Signal: sig, Outcome: outcome})
		}
	}
	summary.Signals = len(pairs)

	if s.circuitBreakerOpen(ctx) {
		summary.Suspended = true
		return nil
	}

	run := RunContext{
		RunID:     summary.RunID,
		Repo:      s.cfg.Repo,
		Timestamp: summary.StartedAt,
		DryRun:    s.cfg.DryRun,
		Pushes:    pushes,
	}

	var execErrs []error
	for _, group := range GroupActions(pairs) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		executed, err := s.executor.Execute(ctx, group, run)
		if err != nil {
			slog.Error("action failed", "action", group.Type, "sha", group.CommitSHA, "error", err)
			execErrs = append(execErrs, err)
			continue
		}
		if !executed {
			continue
		}
		switch group.Type {
		case model.ActionRevert:
			summary.Reverts++
		case model.ActionRestart:
			summary.Restarts++
		}
	}

	return errors.Join(execErrs...)
}

// syncJobs pulls recent job results from GitHub into the job store. Failures
// are per workflow and never abort the cycle.
func (s *AutorevertService) syncJobs(ctx context.Context, since time.Time) {
	for _, wf := range s.cfg.Workflows {
		if ctx.Err() != nil {
			return
		}
		file, ok := s.cfg.WorkflowFiles[wf]
		if !ok || file == "" {
			file = wf + ".yml"
		}

		jobs, err := s.ghClient.FetchWorkflowJobs(ctx, s.cfg.Repo, file, s.cfg.Branch, since)
		if err != nil {
			slog.Error("fetch workflow jobs failed", "repo", s.cfg.Repo, "workflow", wf, "error", err)
			continue
		}
		if err := s.jobStore.UpsertJobs(ctx, jobs); err != nil {
			slog.Error("store workflow jobs failed", "repo", s.cfg.Repo, "workflow", wf, "error", err)
			continue
		}
		slog.Debug("workflow jobs synced", "workflow", wf, "jobs", len(jobs))
	}

	// Rows older than two lookback windows can never enter a snapshot again.
	pruned, err := s.jobStore.PruneBefore(ctx, since.Add(-s.cfg.Lookback))
	if err != nil {
		slog.Error("prune job results failed", "error", err)
	} else if pruned > 0 {
		slog.Debug("job results pruned", "rows", pruned)
	}
}

// fetchPushes returns the branch commits since the given time. Without a
// GitHub client, or when the fetch fails, it returns nil and job data alone
// orders the history.
func (s *AutorevertService) fetchPushes(ctx context.Context, since time.Time) []model.PushCommit {
	if s.ghClient == nil {
		return nil
	}
	pushes, err := s.ghClient.FetchCommits(ctx, s.cfg.Repo, s.cfg.Branch, since)
	if err != nil {
		slog.Error("fetch branch commits failed", "repo", s.cfg.Repo, "branch", s.cfg.Branch, "error", err)
		return nil
	}
	return pushes
}

// loadSnapshot reads the workflows' histories in one store call and aligns
// them to the branch timeline.
func (s *AutorevertService) loadSnapshot(ctx context.Context, workflows []string, pushes []model.PushCommit, since time.Time) (CommitSnapshot, error) {
	histories, err := s.jobStore.LoadWorkflowCommits(ctx, workflows, since)
	if err != nil {
		return nil, fmt.Errorf("load workflow commits: %w", err)
	}

	snapshot := make(CommitSnapshot, len(workflows))
	for _, wf := range workflows {
		commits, ok := histories[wf]
		if !ok {
			continue
		}
		snapshot[wf] = AlignToPushes(pushes, commits)
	}
	return snapshot, nil
}

// DetectPatterns loads a fresh snapshot, aligned to the branch timeline like
// a cycle's, and runs the pattern checker for a single tracked workflow. It
// takes no action.
func (s *AutorevertService) DetectPatterns(ctx context.Context, workflow string) ([]model.AutorevertPattern, error) {
	if !slices.Contains(s.cfg.Workflows, workflow) {
		return nil, fmt.Errorf("%w: %q is not tracked", ErrWorkflowNotLoaded, workflow)
	}

	since := s.now().Add(-s.cfg.Lookback)
	snapshot, err := s.loadSnapshot(ctx, []string{workflow}, s.fetchPushes(ctx, since), since)
	if err != nil {
		return nil, err
	}
	checker := NewPatternChecker(snapshot, s.isUnstable, s.cfg.IgnoreRules)
	return checker.DetectWorkflow(workflow)
}
