// Package config loads application configuration from environment variables
// and an optional YAML policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken  string
	Repo         string // owner/repo whose CI is analysed.
	Branch       string
	PollInterval time.Duration
	ListenAddr   string
	DBPath       string
	Lookback     time.Duration
	// BisectionLimit caps how many commits of an untested range may be
	// covered per cycle. nil means unlimited.
	BisectionLimit *int
	DryRun         bool
	SyncFromGitHub bool
	PolicyPath     string
	Policy         Policy
}

// HasGitHubCredentials returns true when a GitHub token is configured. The
// composition root uses it to decide whether to create a GitHub client;
// without one, jobs arrive only through webhook ingestion and the run is
// forced into dry-run mode.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// AUTOREVERT_GITHUB_TOKEN is optional. Optional variables with defaults:
// AUTOREVERT_REPO (pytorch/pytorch), AUTOREVERT_BRANCH (main),
// AUTOREVERT_POLL_INTERVAL (5m), AUTOREVERT_LISTEN_ADDR (127.0.0.1:8080),
// AUTOREVERT_DB_PATH (autorevert.db), AUTOREVERT_LOOKBACK (48h),
// AUTOREVERT_BISECTION_LIMIT (2; "unlimited" disables the cap),
// AUTOREVERT_DRY_RUN (false), AUTOREVERT_SYNC_GITHUB (true),
// AUTOREVERT_POLICY (no file), AUTOREVERT_WORKFLOWS (overrides the policy's
// workflow list; comma separated "name" or "name=file.yml"),
// AUTOREVERT_CIRCUIT_BREAKER_APPROVED_USERS (overrides the policy's approved
// users; comma separated GitHub logins).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:    os.Getenv("AUTOREVERT_GITHUB_TOKEN"),
		Repo:           "pytorch/pytorch",
		Branch:         "main",
		PollInterval:   5 * time.Minute,
		ListenAddr:     "127.0.0.1:8080",
		DBPath:         "autorevert.db",
		Lookback:       48 * time.Hour,
		BisectionLimit: intPtr(2),
		SyncFromGitHub: true,
	}

	if v, ok := os.LookupEnv("AUTOREVERT_REPO"); ok {
		if !isRepoFullName(v) {
			return nil, fmt.Errorf("AUTOREVERT_REPO has invalid value %q: expected owner/repo", v)
		}
		cfg.Repo = v
	}

	if v, ok := os.LookupEnv("AUTOREVERT_BRANCH"); ok && v != "" {
		cfg.Branch = v
	}

	var err error
	if cfg.PollInterval, err = durationEnv("AUTOREVERT_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = durationEnv("AUTOREVERT_LOOKBACK", cfg.Lookback); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("AUTOREVERT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("AUTOREVERT_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("AUTOREVERT_BISECTION_LIMIT"); ok {
		limit, err := ParseBisectionLimit(v)
		if err != nil {
			return nil, err
		}
		cfg.BisectionLimit = limit
	}

	if cfg.DryRun, err = boolEnv("AUTOREVERT_DRY_RUN", false); err != nil {
		return nil, err
	}
	if cfg.SyncFromGitHub, err = boolEnv("AUTOREVERT_SYNC_GITHUB", true); err != nil {
		return nil, err
	}

	cfg.Policy = DefaultPolicy()
	if v, ok := os.LookupEnv("AUTOREVERT_POLICY"); ok && v != "" {
		cfg.PolicyPath = v
		policy, err := LoadPolicy(v)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if v, ok := os.LookupEnv("AUTOREVERT_WORKFLOWS"); ok && v != "" {
		cfg.Policy.Workflows = ParseWorkflowList(v)
		if err := cfg.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("AUTOREVERT_WORKFLOWS: %w", err)
		}
	}

	if v, ok := os.LookupEnv("AUTOREVERT_CIRCUIT_BREAKER_APPROVED_USERS"); ok {
		cfg.Policy.CircuitBreaker.ApprovedUsers = splitList(v)
	}

	return cfg, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, entry := range strings.Split(v, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// ParseBisectionLimit parses a bisection budget. "unlimited" (or "none")
// yields nil; otherwise the value must be a non-negative integer.
func ParseBisectionLimit(v string) (*int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "unlimited", "none":
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("AUTOREVERT_BISECTION_LIMIT has invalid value %q: expected a non-negative integer or \"unlimited\"", v)
	}
	return &n, nil
}

// ParseWorkflowList parses a comma separated list of "name" or
// "name=file.yml" entries. A missing file defaults to name + ".yml".
func ParseWorkflowList(v string) []Workflow {
	var workflows []Workflow
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, file, _ := strings.Cut(entry, "=")
		wf := Workflow{Name: strings.TrimSpace(name), File: strings.TrimSpace(file)}
		if wf.File == "" {
			wf.File = wf.Name + ".yml"
		}
		workflows = append(workflows, wf)
	}
	return workflows
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}

func isRepoFullName(s string) bool {
	owner, name, ok := strings.Cut(s, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

func intPtr(n int) *int { return &n }
