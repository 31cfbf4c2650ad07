package application

import (
	"context"
	"log/slog"
	"slices"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// DefaultCircuitBreakerLabel is the issue label that suspends autorevert.
const DefaultCircuitBreakerLabel = "ci: disable-autorevert"

// FindBreakerIssue returns the first open issue that trips the circuit
// breaker. Pull requests never do. With a non-empty approvedUsers list only
// issues opened by those users count.
func FindBreakerIssue(issues []model.Issue, approvedUsers []string) (model.Issue, bool) {
	for _, issue := range issues {
		if issue.IsPullRequest {
			slog.Debug("circuit breaker ignores pull request", "number", issue.Number)
			continue
		}
		if len(approvedUsers) > 0 && !slices.Contains(approvedUsers, issue.Author) {
			slog.Warn("circuit breaker ignores issue from unapproved user",
				"number", issue.Number,
				"author", issue.Author,
			)
			continue
		}
		return issue, true
	}
	return model.Issue{}, false
}

// circuitBreakerOpen reports whether a labelled issue suspends actions for
// the repository. A failed lookup leaves the breaker closed.
func (s *AutorevertService) circuitBreakerOpen(ctx context.Context) bool {
	if s.ghClient == nil || s.cfg.CircuitBreakerLabel == "" {
		return false
	}

	issues, err := s.ghClient.ListOpenIssuesByLabel(ctx, s.cfg.Repo, s.cfg.CircuitBreakerLabel)
	if err != nil {
		slog.Error("circuit breaker check failed", "repo", s.cfg.Repo, "label", s.cfg.CircuitBreakerLabel, "error", err)
		return false
	}

	issue, ok := FindBreakerIssue(issues, s.cfg.CircuitBreakerApprovedUsers)
	if !ok {
		return false
	}
	slog.Warn("autorevert suspended by circuit breaker",
		"repo", s.cfg.Repo,
		"label", s.cfg.CircuitBreakerLabel,
		"issue", issue.Number,
		"author", issue.Author,
	)
	return true
}
