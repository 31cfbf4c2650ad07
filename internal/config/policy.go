package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Workflow pairs a workflow's display name, as it appears on job rows, with
// the file name used to dispatch it.
type Workflow struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// RestartPolicy bounds how often a (workflow, commit) pair is re-run.
type RestartPolicy struct {
	// MaxPerCommit is the number of non-dry-run restarts allowed per
	// (workflow, commit).
	MaxPerCommit int `yaml:"max_per_commit"`
	// Pacing is the minimum time between two restarts of the same pair.
	Pacing time.Duration `yaml:"pacing"`
}

// ConfidencePolicy holds the event counts required before a signal pattern
// is trusted.
type ConfidencePolicy struct {
	MinFailures  int `yaml:"min_failures"`
	MinSuccesses int `yaml:"min_successes"`
}

// CircuitBreakerPolicy configures the issue label that suspends all
// actions while an open issue carries it.
type CircuitBreakerPolicy struct {
	// Label is the issue label to look for. Empty disables the breaker.
	Label string `yaml:"label"`
	// ApprovedUsers, when non-empty, limits the breaker to issues opened
	// by these GitHub users.
	ApprovedUsers []string `yaml:"approved_users"`
}

// Policy is the analysis policy, loaded from YAML.
type Policy struct {
	Workflows                 []Workflow           `yaml:"workflows"`
	IgnoreClassificationRules []string             `yaml:"ignore_classification_rules"`
	UnstableJobPatterns       []string             `yaml:"unstable_job_patterns"`
	Restart                   RestartPolicy        `yaml:"restart"`
	Confidence                ConfidencePolicy     `yaml:"confidence"`
	CircuitBreaker            CircuitBreakerPolicy `yaml:"circuit_breaker"`
}

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Workflows:           []Workflow{{Name: "trunk", File: "trunk.yml"}},
		UnstableJobPatterns: []string{"unstable"},
		Restart:             RestartPolicy{MaxPerCommit: 2, Pacing: 15 * time.Minute},
		Confidence:          ConfidencePolicy{MinFailures: 3, MinSuccesses: 2},
		CircuitBreaker:      CircuitBreakerPolicy{Label: "ci: disable-autorevert"},
	}
}

// WorkflowNames returns the display names of the configured workflows.
func (p Policy) WorkflowNames() []string {
	names := make([]string, 0, len(p.Workflows))
	for _, wf := range p.Workflows {
		names = append(names, wf.Name)
	}
	return names
}

// WorkflowFiles maps each workflow display name to its dispatch file.
func (p Policy) WorkflowFiles() map[string]string {
	files := make(map[string]string, len(p.Workflows))
	for _, wf := range p.Workflows {
		files[wf.Name] = wf.File
	}
	return files
}

// LoadPolicy reads a YAML policy file. Fields absent from the file keep
// their DefaultPolicy values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy decodes and validates YAML policy bytes on top of DefaultPolicy.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks the policy for values the engine cannot run with.
func (p *Policy) Validate() error {
	if len(p.Workflows) == 0 {
		return errors.New("at least one workflow is required")
	}
	seen := make(map[string]bool, len(p.Workflows))
	for i := range p.Workflows {
		wf := &p.Workflows[i]
		if wf.Name == "" {
			return fmt.Errorf("workflow %d: name is required", i)
		}
		if seen[wf.Name] {
			return fmt.Errorf("workflow %q listed twice", wf.Name)
		}
		seen[wf.Name] = true
		if wf.File == "" {
			wf.File = wf.Name + ".yml"
		}
	}
	if p.Restart.MaxPerCommit < 1 {
		return fmt.Errorf("restart.max_per_commit must be >= 1, got %d", p.Restart.MaxPerCommit)
	}
	if p.Restart.Pacing <= 0 {
		return fmt.Errorf("restart.pacing must be positive, got %s", p.Restart.Pacing)
	}
	if p.Confidence.MinFailures < 1 || p.Confidence.MinSuccesses < 1 {
		return errors.New("confidence thresholds must be >= 1")
	}
	return nil
}
