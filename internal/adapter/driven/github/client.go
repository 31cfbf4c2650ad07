// Package github implements the GitHubClient and WorkflowDispatcher ports
// using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.GitHubClient       = (*Client)(nil)
	_ driven.WorkflowDispatcher = (*Client)(nil)
)

// DispatchRefPrefix is the tag namespace restarts are dispatched on. Every
// trunk commit has a matching "trunk/<sha>" tag.
const DispatchRefPrefix = "trunk/"

// Client implements the driven.GitHubClient and driven.WorkflowDispatcher
// ports using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchWorkflowJobs returns every job attempt of the workflow's runs created
// at or after since that ran against the branch: push runs on the branch
// itself and dispatched restarts on trunk/<sha> tags.
func (c *Client) FetchWorkflowJobs(ctx context.Context, repoFullName, workflowFile, branch string, since time.Time) ([]model.JobResult, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	runs, err := c.listWorkflowRuns(ctx, owner, repo, workflowFile, since)
	if err != nil {
		return nil, fmt.Errorf("listing runs of %s in %s: %w", workflowFile, repoFullName, err)
	}

	var jobs []model.JobResult
	for _, run := range runs {
		if !isTrunkRun(run, branch) {
			continue
		}

		runJobs, err := c.listRunJobs(ctx, owner, repo, run)
		if err != nil {
			return nil, fmt.Errorf("listing jobs of run %d in %s: %w", run.GetID(), repoFullName, err)
		}
		jobs = append(jobs, runJobs...)
	}

	if jobs == nil {
		jobs = []model.JobResult{}
	}

	return jobs, nil
}

func (c *Client) listWorkflowRuns(ctx context.Context, owner, repo, workflowFile string, since time.Time) ([]*gh.WorkflowRun, error) {
	opts := &gh.ListWorkflowRunsOptions{
		Created: ">=" + since.UTC().Format(time.RFC3339),
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	var all []*gh.WorkflowRun
	for {
		runs, resp, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, workflowFile, opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", opts.Page, err)
		}

		logRateLimit(resp, "workflow_runs/"+workflowFile, opts.Page, len(runs.WorkflowRuns))
		all = append(all, runs.WorkflowRuns...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *Client) listRunJobs(ctx context.Context, owner, repo string, run *gh.WorkflowRun) ([]model.JobResult, error) {
	// "all" includes every attempt of re-run jobs, not only the latest.
	opts := &gh.ListWorkflowJobsOptions{
		Filter:      "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var jobs []model.JobResult
	for {
		page, resp, err := c.gh.Actions.ListWorkflowJobs(ctx, owner, repo, run.GetID(), opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", opts.Page, err)
		}

		for _, j := range page.Jobs {
			jobs = append(jobs, mapWorkflowJob(j, run))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return jobs, nil
}

// isTrunkRun reports whether a run tested a commit of the tracked branch.
func isTrunkRun(run *gh.WorkflowRun, branch string) bool {
	switch run.GetEvent() {
	case "push":
		return run.GetHeadBranch() == branch
	case "workflow_dispatch":
		return strings.HasPrefix(run.GetHeadBranch(), DispatchRefPrefix)
	default:
		return false
	}
}

// mapWorkflowJob converts a go-github WorkflowJob to a domain JobResult.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapWorkflowJob(j *gh.WorkflowJob, run *gh.WorkflowRun) model.JobResult {
	headSHA := j.GetHeadSHA()
	if headSHA == "" {
		headSHA = run.GetHeadSHA()
	}
	return model.JobResult{
		HeadSHA:           headSHA,
		WorkflowName:      run.GetName(),
		RunID:             run.GetID(),
		JobID:             j.GetID(),
		Name:              j.GetName(),
		Conclusion:        j.GetConclusion(),
		Status:            j.GetStatus(),
		WorkflowCreatedAt: run.GetCreatedAt().Time,
		StartedAt:         j.GetStartedAt().Time,
		Event:             run.GetEvent(),
	}
}

// FetchCommits returns the branch's commits since the given time, newest first.
func (c *Client) FetchCommits(ctx context.Context, repoFullName, branch string, since time.Time) ([]model.PushCommit, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.CommitsListOptions{
		SHA:   branch,
		Since: since,
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	var commits []model.PushCommit
	for {
		page, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s@%s (page %d): %w", repoFullName, branch, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/commits", opts.Page, len(page))

		for _, rc := range page {
			commits = append(commits, model.PushCommit{
				SHA:       rc.GetSHA(),
				Message:   rc.GetCommit().GetMessage(),
				Timestamp: rc.GetCommit().GetCommitter().GetDate().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if commits == nil {
		commits = []model.PushCommit{}
	}

	return commits, nil
}

// ListOpenIssuesByLabel returns the repository's open issues and pull
// requests carrying the label.
func (c *Client) ListOpenIssuesByLabel(ctx context.Context, repoFullName, label string) ([]model.Issue, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListByRepoOptions{
		State:  "open",
		Labels: []string{label},
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	issues := []model.Issue{}
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing %q issues in %s (page %d): %w", label, repoFullName, opts.ListOptions.Page, err)
		}

		logRateLimit(resp, repoFullName+"/issues", opts.ListOptions.Page, len(page))

		for _, issue := range page {
			issues = append(issues, model.Issue{
				Number:        issue.GetNumber(),
				Author:        issue.GetUser().GetLogin(),
				IsPullRequest: issue.IsPullRequest(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return issues, nil
}

// dispatchRequest is the body of the workflow dispatch endpoint.
type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// DispatchWorkflow fires a workflow_dispatch event for workflowFile on the
// trunk/<sha> tag of the commit.
func (c *Client) DispatchWorkflow(ctx context.Context, repoFullName, workflowFile, commitSHA string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	if commitSHA == "" {
		return fmt.Errorf("dispatching %s: empty commit sha", workflowFile)
	}

	u := fmt.Sprintf("repos/%s/%s/actions/workflows/%s/dispatches",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(workflowFile))
	req, err := c.gh.NewRequest(http.MethodPost, u, dispatchRequest{Ref: DispatchRefPrefix + commitSHA})
	if err != nil {
		return fmt.Errorf("building dispatch request: %w", err)
	}

	resp, err := c.gh.Do(ctx, req, nil)
	if err != nil {
		return fmt.Errorf("dispatching %s for %s in %s: %w", workflowFile, commitSHA, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/dispatches", 0, 1)
	slog.Info("workflow dispatched",
		"repo", repoFullName,
		"workflow", workflowFile,
		"sha", commitSHA,
		"url", fmt.Sprintf("https://github.com/%s/actions/workflows/%s?query=branch%%3Atrunk%%2F%s", repoFullName, workflowFile, commitSHA),
	)

	return nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
