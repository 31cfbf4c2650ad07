package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Restart caps applied per (workflow, commit).
const (
	DefaultMaxRestartsPerCommit = 2
	DefaultRestartPacing        = 15 * time.Minute
)

// noteDispatchFailed is recorded on restart events whose dispatch errored.
const noteDispatchFailed = "dispatch_failed"

// SignalOutcome pairs a signal with the outcome of processing it.
type SignalOutcome struct {
	Signal  model.Signal
	Outcome model.Outcome
}

// RunContext carries the per-cycle values every action in a run shares.
type RunContext struct {
	RunID     string
	Repo      string
	Timestamp time.Time
	DryRun    bool
	// Pushes are the recent branch commits, used to skip reverts of commits
	// that were already reverted upstream.
	Pushes []model.PushCommit
}

// GroupActions coalesces per-signal outcomes into action groups. Reverts are
// keyed by suspected commit, restarts by (workflow, commit). Ineligible
// outcomes produce nothing. Reverts come first, each kind sorted by key.
func GroupActions(pairs []SignalOutcome) []model.ActionGroup {
	type restartKey struct{ workflow, sha string }

	reverts := make(map[string][]model.SignalSource)
	restarts := make(map[restartKey][]model.SignalSource)

	for _, pair := range pairs {
		src := model.SignalSource{WorkflowName: pair.Signal.WorkflowName, Key: pair.Signal.Key}
		switch o := pair.Outcome.(type) {
		case model.SignalPattern:
			reverts[o.SuspectedCommit] = append(reverts[o.SuspectedCommit], src)
		case model.RestartCommits:
			for _, sha := range o.CommitSHAs {
				k := restartKey{workflow: pair.Signal.WorkflowName, sha: sha}
				restarts[k] = append(restarts[k], src)
			}
		}
	}

	revertSHAs := make([]string, 0, len(reverts))
	for sha := range reverts {
		revertSHAs = append(revertSHAs, sha)
	}
	sort.Strings(revertSHAs)

	restartKeys := make([]restartKey, 0, len(restarts))
	for k := range restarts {
		restartKeys = append(restartKeys, k)
	}
	sort.Slice(restartKeys, func(i, j int) bool {
		if restartKeys[i].workflow != restartKeys[j].workflow {
			return restartKeys[i].workflow < restartKeys[j].workflow
		}
		return restartKeys[i].sha < restartKeys[j].sha
	})

	groups := make([]model.ActionGroup, 0, len(reverts)+len(restarts))
	for _, sha := range revertSHAs {
		groups = append(groups, model.ActionGroup{
			Type:      model.ActionRevert,
			CommitSHA: sha,
			Sources:   reverts[sha],
		})
	}
	for _, k := range restartKeys {
		groups = append(groups, model.ActionGroup{
			Type:           model.ActionRestart,
			CommitSHA:      k.sha,
			WorkflowTarget: k.workflow,
			Sources:        restarts[k],
		})
	}
	return groups
}

// ActionExecutor applies action groups against the action log and, for
// restarts, the workflow dispatcher. It never reverts a commit; reverts are
// recorded as intents.
type ActionExecutor struct {
	store         driven.ActionStore
	dispatcher    driven.WorkflowDispatcher
	workflowFiles map[string]string
	maxRestarts   int
	pacing        time.Duration
}

// NewActionExecutor creates an ActionExecutor. dispatcher may be nil, in
// which case every restart is recorded as a failed dispatch unless the run
// is a dry run. workflowFiles maps workflow names to their workflow file;
// unmapped names dispatch "<name>.yml". Non-positive caps use the defaults.
func NewActionExecutor(
	store driven.ActionStore,
	dispatcher driven.WorkflowDispatcher,
	workflowFiles map[string]string,
	maxRestarts int,
	pacing time.Duration,
) *ActionExecutor {
	if maxRestarts <= 0 {
		maxRestarts = DefaultMaxRestartsPerCommit
	}
	if pacing <= 0 {
		pacing = DefaultRestartPacing
	}
	return &ActionExecutor{
		store:         store,
		dispatcher:    dispatcher,
		workflowFiles: workflowFiles,
		maxRestarts:   maxRestarts,
		pacing:        pacing,
	}
}

// Execute applies one action group. It reports whether an event row was
// recorded, i.e. the group passed dedup and caps.
func (e *ActionExecutor) Execute(ctx context.Context, group model.ActionGroup, run RunContext) (bool, error) {
	switch group.Type {
	case model.ActionRevert:
		return e.executeRevert(ctx, group, run)
	case model.ActionRestart:
		if group.WorkflowTarget == "" {
			return false, fmt.Errorf("restart of %s has no workflow target", group.CommitSHA)
		}
		return e.executeRestart(ctx, group, run)
	default:
		return false, fmt.Errorf("unknown action type %q", group.Type)
	}
}

func (e *ActionExecutor) executeRevert(ctx context.Context, group model.ActionGroup, run RunContext) (bool, error) {
	if info, ok := FindRevert(run.Pushes, group.CommitSHA); ok {
		slog.Info("commit already reverted upstream",
			"repo", run.Repo,
			"sha", group.CommitSHA,
			"revert_sha", info.RevertSHA,
			"delay", info.Delay.Round(time.Second),
		)
		return false, nil
	}

	exists, err := e.store.PriorRevertExists(ctx, run.Repo, group.CommitSHA)
	if err != nil {
		return false, fmt.Errorf("check prior revert for %s: %w", group.CommitSHA, err)
	}
	if exists {
		return false, nil
	}

	event := model.ActionEvent{
		RunID:            run.RunID,
		Timestamp:        run.Timestamp,
		Repo:             run.Repo,
		Action:           model.ActionRevert,
		CommitSHA:        group.CommitSHA,
		Workflows:        sourceWorkflows(group.Sources),
		SourceSignalKeys: sourceKeys(group.Sources),
		DryRun:           run.DryRun,
	}
	if err := e.store.InsertEvent(ctx, event); err != nil {
		return false, fmt.Errorf("record revert of %s: %w", group.CommitSHA, err)
	}

	slog.Info("revert intent recorded",
		"repo", run.Repo,
		"sha", group.CommitSHA,
		"workflows", event.Workflows,
		"dry_run", run.DryRun,
	)
	return true, nil
}

func (e *ActionExecutor) executeRestart(ctx context.Context, group model.ActionGroup, run RunContext) (bool, error) {
	recent, err := e.store.RecentRestarts(ctx, run.Repo, group.WorkflowTarget, group.CommitSHA, e.maxRestarts)
	if err != nil {
		return false, fmt.Errorf("load recent restarts for %s@%s: %w", group.WorkflowTarget, group.CommitSHA, err)
	}
	if len(recent) >= e.maxRestarts {
		slog.Debug("restart cap reached", "workflow", group.WorkflowTarget, "sha", group.CommitSHA)
		return false, nil
	}
	if len(recent) > 0 && run.Timestamp.Sub(recent[0]) < e.pacing {
		slog.Debug("restart paced", "workflow", group.WorkflowTarget, "sha", group.CommitSHA, "last", recent[0])
		return false, nil
	}

	var notes string
	if !run.DryRun {
		if err := e.dispatch(ctx, run.Repo, group.WorkflowTarget, group.CommitSHA); err != nil {
			slog.Error("workflow dispatch failed",
				"repo", run.Repo,
				"workflow", group.WorkflowTarget,
				"sha", group.CommitSHA,
				"error", err,
			)
			notes = noteDispatchFailed
		}
	}

	event := model.ActionEvent{
		RunID:            run.RunID,
		Timestamp:        run.Timestamp,
		Repo:             run.Repo,
		Action:           model.ActionRestart,
		CommitSHA:        group.CommitSHA,
		Workflows:        []string{group.WorkflowTarget},
		SourceSignalKeys: sourceKeys(group.Sources),
		DryRun:           run.DryRun,
		Notes:            notes,
	}
	if err := e.store.InsertEvent(ctx, event); err != nil {
		return false, fmt.Errorf("record restart of %s@%s: %w", group.WorkflowTarget, group.CommitSHA, err)
	}

	slog.Info("restart recorded",
		"repo", run.Repo,
		"workflow", group.WorkflowTarget,
		"sha", group.CommitSHA,
		"dry_run", run.DryRun,
		"notes", notes,
	)
	return true, nil
}

func (e *ActionExecutor) dispatch(ctx context.Context, repo, workflow, sha string) error {
	if e.dispatcher == nil {
		return fmt.Errorf("no workflow dispatcher configured")
	}
	file, ok := e.workflowFiles[workflow]
	if !ok || file == "" {
		file = workflow + ".yml"
	}
	return e.dispatcher.DispatchWorkflow(ctx, repo, file, sha)
}

func sourceKeys(sources []model.SignalSource) []string {
	keys := make([]string, 0, len(sources))
	for _, s := range sources {
		keys = append(keys, s.Key)
	}
	return keys
}

// sourceWorkflows returns the distinct workflow names, sorted.
func sourceWorkflows(sources []model.SignalSource) []string {
	seen := make(map[string]bool, len(sources))
	var out []string
	for _, s := range sources {
		if !seen[s.WorkflowName] {
			seen[s.WorkflowName] = true
			out = append(out, s.WorkflowName)
		}
	}
	sort.Strings(out)
	return out
}
