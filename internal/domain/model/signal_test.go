package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)

func ev(status SignalStatus, minute int, runID int64) SignalEvent {
	return SignalEvent{
		Name:      "job",
		Status:    status,
		StartedAt: t0.Add(time.Duration(minute) * time.Minute),
		WfRunID:   runID,
	}
}

func commit(sha string, events ...SignalEvent) SignalCommit {
	return NewSignalCommit(sha, t0, events)
}

func TestParseSignalStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   SignalStatus
		wantOK bool
	}{
		{"success", SignalSuccess, true},
		{"failure", SignalFailure, true},
		{"pending", SignalPending, true},
		{"neutral", "", false},
		{"cancelled", "", false},
		{"skipped", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSignalStatus(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNewSignalCommit_OrdersEvents(t *testing.T) {
	c := commit("sha",
		ev(SignalFailure, 5, 1),
		ev(SignalSuccess, 1, 9),
		ev(SignalPending, 1, 2),
	)

	require.Len(t, c.Events, 3)
	assert.Equal(t, int64(2), c.Events[0].WfRunID)
	assert.Equal(t, int64(9), c.Events[1].WfRunID)
	assert.Equal(t, SignalFailure, c.Events[2].Status)
	assert.True(t, c.HasPending())
	assert.True(t, c.HasSuccess())
	assert.True(t, c.HasFailure())
	assert.Equal(t, 1, c.Count(SignalFailure))
}

func TestSignalCommit_IsCovered(t *testing.T) {
	assert.False(t, commit("untested").IsCovered())
	assert.True(t, commit("inflight", ev(SignalPending, 0, 1)).IsCovered())
}

func TestDedup(t *testing.T) {
	first := ev(SignalFailure, 1, 7)
	first.Name = "first"
	dup := ev(SignalSuccess, 1, 7)
	dup.Name = "dup"
	other := ev(SignalFailure, 2, 7)

	s := Signal{
		Key:          "job",
		WorkflowName: "trunk",
		Commits: []SignalCommit{
			{HeadSHA: "a", Events: []SignalEvent{first, dup, other}},
			// Same key as in commit "a": independent per commit.
			{HeadSHA: "b", Events: []SignalEvent{ev(SignalFailure, 1, 7)}},
			{HeadSHA: "c"},
		},
	}

	got := s.Dedup()

	require.Len(t, got.Commits, 3)
	require.Len(t, got.Commits[0].Events, 2)
	assert.Equal(t, "first", got.Commits[0].Events[0].Name, "first occurrence wins")
	assert.Equal(t, other, got.Commits[0].Events[1])
	assert.Len(t, got.Commits[1].Events, 1)
	assert.Empty(t, got.Commits[2].Events)
	assert.Equal(t, "job", got.Key)
	assert.Equal(t, "trunk", got.WorkflowName)

	// Input is untouched.
	assert.Len(t, s.Commits[0].Events, 3)
}

func TestDedup_SameInstantDifferentZone(t *testing.T) {
	a := ev(SignalFailure, 0, 1)
	b := a
	b.StartedAt = a.StartedAt.In(time.FixedZone("X", 3600))

	s := Signal{Commits: []SignalCommit{{HeadSHA: "a", Events: []SignalEvent{a, b}}}}
	assert.Len(t, s.Dedup().Commits[0].Events, 1)
}

func TestDetectFixed(t *testing.T) {
	tests := []struct {
		name    string
		commits []SignalCommit
		want    bool
	}{
		{
			"newest has success alongside pending",
			[]SignalCommit{
				commit("new", ev(SignalPending, 1, 1), ev(SignalSuccess, 2, 1)),
				commit("old", ev(SignalFailure, 1, 1)),
			},
			true,
		},
		{
			"newest only failure",
			[]SignalCommit{
				commit("new", ev(SignalFailure, 1, 1)),
				commit("old", ev(SignalSuccess, 1, 1)),
			},
			false,
		},
		{
			"skips pending-only head",
			[]SignalCommit{
				commit("new", ev(SignalPending, 1, 1)),
				commit("mid", ev(SignalSuccess, 1, 1)),
			},
			true,
		},
		{"no terminal events", []SignalCommit{commit("a"), commit("b", ev(SignalPending, 0, 1))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Signal{Key: "job", WorkflowName: "wf", Commits: tt.commits}
			assert.Equal(t, tt.want, s.DetectFixed())
		})
	}
}

func TestDetectFlaky(t *testing.T) {
	flaky := Signal{Commits: []SignalCommit{
		commit("a", ev(SignalSuccess, 1, 1), ev(SignalFailure, 2, 1)),
	}}
	assert.True(t, flaky.DetectFlaky())

	clean := Signal{Commits: []SignalCommit{
		commit("a", ev(SignalFailure, 1, 1)),
		commit("b", ev(SignalSuccess, 1, 1)),
	}}
	assert.False(t, clean.DetectFlaky())
	assert.True(t, clean.HasSuccesses())
}

func TestPartition(t *testing.T) {
	s := Signal{Commits: []SignalCommit{
		commit("f1", ev(SignalFailure, 10, 1)),
		commit("f2", ev(SignalPending, 9, 1)),
		commit("f3", ev(SignalFailure, 8, 1)),
		commit("u1", ev(SignalPending, 7, 1)),
		commit("u2"),
		commit("s1", ev(SignalSuccess, 5, 1)),
		commit("s2"),
		commit("s3", ev(SignalSuccess, 3, 1)),
		commit("older-break", ev(SignalFailure, 2, 1)),
		commit("ignored", ev(SignalSuccess, 1, 1)),
	}}

	p, ok := s.Partition()
	require.True(t, ok)

	assert.Equal(t, []string{"f1", "f2", "f3"}, shas(p.Failed))
	assert.Equal(t, []string{"u1", "u2"}, shas(p.Unknown))
	assert.Equal(t, []string{"s1", "s2", "s3"}, shas(p.Successful))
	assert.Equal(t, "f3", p.OldestFailed().HeadSHA)
	assert.Equal(t, "s1", p.NewestSuccessful().HeadSHA)
	assert.Equal(t, 2, p.FailureEventsCount())
	assert.Equal(t, 2, p.SuccessEventsCount())
}

func TestPartition_NotFormed(t *testing.T) {
	tests := []struct {
		name    string
		commits []SignalCommit
	}{
		{"single commit", []SignalCommit{commit("a", ev(SignalFailure, 1, 1))}},
		{"no failures", []SignalCommit{commit("a", ev(SignalSuccess, 1, 1)), commit("b", ev(SignalSuccess, 0, 1))}},
		{"no successes", []SignalCommit{commit("a", ev(SignalFailure, 1, 1)), commit("b", ev(SignalFailure, 0, 1))}},
		{"untested head only", []SignalCommit{commit("a"), commit("b", ev(SignalSuccess, 0, 1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Signal{Commits: tt.commits}.Partition()
			assert.False(t, ok)
		})
	}
}

func TestConfirmNotInfra(t *testing.T) {
	tests := []struct {
		name       string
		failed     []SignalCommit
		successful []SignalCommit
		want       InfraCheckResult
	}{
		{
			"failure sandwiched between successes",
			[]SignalCommit{commit("f", ev(SignalFailure, 5, 1))},
			[]SignalCommit{commit("s", ev(SignalSuccess, 1, 1), ev(SignalSuccess, 10, 2))},
			InfraConfirmed,
		},
		{
			"all successes before failures",
			[]SignalCommit{commit("f", ev(SignalFailure, 10, 1))},
			[]SignalCommit{commit("s", ev(SignalSuccess, 1, 1))},
			InfraRestartSuccess,
		},
		{
			"all failures before successes",
			[]SignalCommit{commit("f", ev(SignalFailure, 1, 1))},
			[]SignalCommit{commit("s", ev(SignalSuccess, 10, 1))},
			InfraRestartFailure,
		},
		{
			"overlap via pending only",
			[]SignalCommit{commit("f", ev(SignalFailure, 5, 1))},
			[]SignalCommit{commit("s", ev(SignalSuccess, 1, 1), ev(SignalPending, 10, 2))},
			InfraPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PartitionedCommits{Failed: tt.failed, Successful: tt.successful}
			assert.Equal(t, tt.want, p.ConfirmNotInfra())
		})
	}
}

func shas(commits []SignalCommit) []string {
	out := make([]string, 0, len(commits))
	for _, c := range commits {
		out = append(out, c.HeadSHA)
	}
	return out
}
