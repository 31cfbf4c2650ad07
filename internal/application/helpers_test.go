package application_test

import (
	"time"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

var base = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return base.Add(time.Duration(minute) * time.Minute)
}

func failedJob(name, rule string) model.JobResult {
	return model.JobResult{
		Name:               name,
		Conclusion:         model.ConclusionFailure,
		Status:             model.JobStatusCompleted,
		ClassificationRule: rule,
	}
}

func successJob(name string) model.JobResult {
	return model.JobResult{
		Name:       name,
		Conclusion: model.ConclusionSuccess,
		Status:     model.JobStatusCompleted,
	}
}

func pendingJob(name string) model.JobResult {
	return model.JobResult{Name: name, Status: "in_progress"}
}

func commitJobs(sha string, minute int, jobs ...model.JobResult) model.CommitJobs {
	for i := range jobs {
		jobs[i].HeadSHA = sha
		jobs[i].WorkflowCreatedAt = at(minute)
	}
	return model.CommitJobs{HeadSHA: sha, CreatedAt: at(minute), Jobs: jobs}
}

func event(status model.SignalStatus, minute int) model.SignalEvent {
	return model.SignalEvent{Name: "test", Status: status, StartedAt: at(minute), WfRunID: int64(minute)}
}

func sigCommit(sha string, events ...model.SignalEvent) model.SignalCommit {
	return model.NewSignalCommit(sha, base, events)
}
