package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// JobRequest is one job result in the ingestion body. Times are RFC 3339.
type JobRequest struct {
	JobID              int64      `json:"job_id"`
	RunID              int64      `json:"run_id"`
	WorkflowName       string     `json:"workflow_name"`
	HeadSHA            string     `json:"head_sha"`
	Name               string     `json:"name"`
	Conclusion         string     `json:"conclusion"`
	Status             string     `json:"status"`
	ClassificationRule string     `json:"classification_rule"`
	WorkflowCreatedAt  time.Time  `json:"workflow_created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	Event              string     `json:"event,omitempty"` // Run trigger event, e.g. "workflow_dispatch".
}

func (j JobRequest) toModel() model.JobResult {
	job := model.JobResult{
		HeadSHA:            j.HeadSHA,
		WorkflowName:       j.WorkflowName,
		RunID:              j.RunID,
		JobID:              j.JobID,
		Name:               j.Name,
		Conclusion:         j.Conclusion,
		Status:             j.Status,
		ClassificationRule: j.ClassificationRule,
		WorkflowCreatedAt:  j.WorkflowCreatedAt,
		Event:              j.Event,
	}
	if j.StartedAt != nil {
		job.StartedAt = *j.StartedAt
	}
	return job
}

// IngestResponse reports how many job results were stored.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

// EventResponse is the JSON representation of a recorded action.
type EventResponse struct {
	ID               int64    `json:"id"`
	RunID            string   `json:"run_id"`
	Timestamp        string   `json:"ts"`
	Repo             string   `json:"repo"`
	Action           string   `json:"action"`
	CommitSHA        string   `json:"commit_sha"`
	Workflows        []string `json:"workflows"`
	SourceSignalKeys []string `json:"source_signal_keys"`
	DryRun           bool     `json:"dry_run"`
	Notes            string   `json:"notes"`
}

// RunResponse is the JSON representation of a cycle summary.
type RunResponse struct {
	RunID      string   `json:"run_id"`
	Repo       string   `json:"repo"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	DryRun     bool     `json:"dry_run"`
	Workflows  []string `json:"workflows"`
	Patterns   int      `json:"patterns"`
	Signals    int      `json:"signals"`
	Restarts   int      `json:"restarts"`
	Reverts    int      `json:"reverts"`
	Suspended  bool     `json:"suspended"`
	Error      string   `json:"error,omitempty"`
}

// PatternResponse is the JSON representation of a detected pattern.
type PatternResponse struct {
	WorkflowName        string                 `json:"workflow_name"`
	FailureRule         string                 `json:"failure_rule"`
	NewerCommits        []string               `json:"newer_commits"`
	SuspectedCommit     string                 `json:"suspected_commit"`
	OlderCommit         string                 `json:"older_commit"`
	UntestedCommits     []string               `json:"untested_commits"`
	FailedJobNames      []string               `json:"failed_job_names"`
	AdditionalWorkflows []WorkflowRuleResponse `json:"additional_workflows"`
}

// WorkflowRuleResponse names another workflow sharing a pattern.
type WorkflowRuleResponse struct {
	WorkflowName string `json:"workflow_name"`
	FailureRule  string `json:"failure_rule"`
}

// nonNil keeps empty lists as [] instead of null.
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func toEventResponse(e model.ActionEvent) EventResponse {
	return EventResponse{
		ID:               e.ID,
		RunID:            e.RunID,
		Timestamp:        e.Timestamp.UTC().Format(time.RFC3339),
		Repo:             e.Repo,
		Action:           string(e.Action),
		CommitSHA:        e.CommitSHA,
		Workflows:        nonNil(e.Workflows),
		SourceSignalKeys: nonNil(e.SourceSignalKeys),
		DryRun:           e.DryRun,
		Notes:            e.Notes,
	}
}

func toRunResponse(run model.RunSummary) RunResponse {
	return RunResponse{
		RunID:      run.RunID,
		Repo:       run.Repo,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		DryRun:     run.DryRun,
		Workflows:  nonNil(run.Workflows),
		Patterns:   run.Patterns,
		Signals:    run.Signals,
		Restarts:   run.Restarts,
		Reverts:    run.Reverts,
		Suspended:  run.Suspended,
		Error:      run.Error,
	}
}

func toPatternResponse(p model.AutorevertPattern) PatternResponse {
	additional := make([]WorkflowRuleResponse, 0, len(p.AdditionalWorkflows))
	for _, wr := range p.AdditionalWorkflows {
		additional = append(additional, WorkflowRuleResponse{WorkflowName: wr.WorkflowName, FailureRule: wr.FailureRule})
	}

	return PatternResponse{
		WorkflowName:        p.WorkflowName,
		FailureRule:         p.FailureRule,
		NewerCommits:        p.NewerCommits[:],
		SuspectedCommit:     p.SuspectedCommit(),
		OlderCommit:         p.OlderCommit,
		UntestedCommits:     nonNil(p.UntestedCommits),
		FailedJobNames:      nonNil(p.FailedJobNames),
		AdditionalWorkflows: additional,
	}
}
