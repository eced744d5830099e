// Package bulkaudio starts and monitors a server-side bulk utterance-audio
// generation job. The server owns the queue; this package only polls status
// and re-attaches to an already-running job after a process restart.
package bulkaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/kinoforge/internal/supervisor"
)

// KindBulkAudio is the supervisor job kind used for the bulk audio poller.
const KindBulkAudio supervisor.Kind = "bulk_audio"

// PollInterval is how often the job status is re-checked.
const PollInterval = 2 * time.Second

// JobState is the lifecycle of a bulk audio job as reported by the server.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// ErrNoActiveJob is returned by ResumeIfRunning when the project has no
// in-progress bulk audio job to reattach to.
var ErrNoActiveJob = errors.New("bulkaudio: no active job for project")

// Status is the bulk-status payload polled from the server.
type Status struct {
	JobID               string   `json:"job_id"`
	State               JobState `json:"state"`
	TotalUtterances     int      `json:"total_utterances"`
	ProcessedUtterances int      `json:"processed_utterances"`
	SuccessCount        int      `json:"success_count"`
	FailedCount         int      `json:"failed_count"`
}

// ProgressPercent reports completion as a 0-100 integer, floored at 0 when
// there are no utterances to process.
func (s Status) ProgressPercent() int {
	if s.TotalUtterances <= 0 {
		return 0
	}
	pct := s.ProcessedUtterances * 100 / s.TotalUtterances
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Backend is the set of remote operations the bulk audio job drives.
type Backend interface {
	StartJob(ctx context.Context, projectID string) (jobID string, err error)
	JobStatus(ctx context.Context, projectID, jobID string) (Status, error)
	// ActiveJob reports the id of a currently running job for projectID, if
	// any, used to reattach after a restart.
	ActiveJob(ctx context.Context, projectID string) (jobID string, active bool, err error)
	CancelJob(ctx context.Context, projectID, jobID string) error
}

// Job tracks bulk audio generation, one job per project.
type Job struct {
	backend    Backend
	supervisor *supervisor.Supervisor

	mu     sync.RWMutex
	active map[string]bool // projectID -> audio job active, for the build-gating check
}

// New creates a Job tracker.
func New(backend Backend, sv *supervisor.Supervisor) *Job {
	return &Job{backend: backend, supervisor: sv, active: map[string]bool{}}
}

// Start launches a new bulk audio job for projectID and begins polling it.
func (j *Job) Start(ctx context.Context, projectID string, onProgress func(Status), onDone func(Status), onAbort func(supervisor.AbortReason, error)) error {
	jobID, err := j.backend.StartJob(ctx, projectID)
	if err != nil {
		return fmt.Errorf("bulkaudio: start job: %w", err)
	}
	j.setActive(projectID, true)
	return j.watch(ctx, projectID, jobID, onProgress, onDone, onAbort)
}

// ResumeIfRunning checks whether projectID already has an active job (e.g.
// after a process restart) and, if so, re-attaches the poller to it. It
// returns ErrNoActiveJob when there is nothing to resume.
func (j *Job) ResumeIfRunning(ctx context.Context, projectID string, onProgress func(Status), onDone func(Status), onAbort func(supervisor.AbortReason, error)) error {
	jobID, active, err := j.backend.ActiveJob(ctx, projectID)
	if err != nil {
		return fmt.Errorf("bulkaudio: check active job: %w", err)
	}
	if !active {
		return ErrNoActiveJob
	}
	j.setActive(projectID, true)
	return j.watch(ctx, projectID, jobID, onProgress, onDone, onAbort)
}

// Cancel stops the poller and asks the backend to cancel the job.
func (j *Job) Cancel(ctx context.Context, projectID, jobID string) error {
	j.supervisor.Stop(KindBulkAudio, projectID)
	j.setActive(projectID, false)
	if err := j.backend.CancelJob(ctx, projectID, jobID); err != nil {
		return fmt.Errorf("bulkaudio: cancel job: %w", err)
	}
	return nil
}

// AudioJobActive reports whether a bulk audio job is currently believed to
// be in flight for projectID. Consulted by video-build submission to refuse
// starting a render that would miss audio still being generated.
func (j *Job) AudioJobActive(projectID string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.active[projectID]
}

func (j *Job) setActive(projectID string, active bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if active {
		j.active[projectID] = true
	} else {
		delete(j.active, projectID)
	}
}

func (j *Job) watch(ctx context.Context, projectID, jobID string, onProgress func(Status), onDone func(Status), onAbort func(supervisor.AbortReason, error)) error {
	spec := supervisor.JobSpec{
		Kind:         KindBulkAudio,
		EntityID:     projectID,
		TickInterval: PollInterval,
		Poll: func(pollCtx context.Context) (supervisor.PollResult, error) {
			st, err := j.backend.JobStatus(pollCtx, projectID, jobID)
			if err != nil {
				return supervisor.PollResult{}, err
			}
			if onProgress != nil {
				onProgress(st)
			}
			terminal := st.State == JobCompleted || st.State == JobFailed || st.State == JobCanceled
			if terminal {
				j.setActive(projectID, false)
				if onDone != nil {
					onDone(st)
				}
			}
			return supervisor.PollResult{Terminal: terminal, Failed: st.State == JobFailed}, nil
		},
		OnAbort: func(reason supervisor.AbortReason, err error) {
			j.setActive(projectID, false)
			if onAbort != nil {
				onAbort(reason, err)
			}
		},
	}
	return j.supervisor.Start(ctx, spec)
}
