// Package sceneformat drives the chain that turns an uploaded project into
// formatted scenes. The chain depends on the project's source type: text
// projects go straight to parse→format, audio projects are transcribed
// first. It supports two formatting modes — a synchronous "preserve" mode
// and a batch-polled "ai" mode — behind one entry point.
package sceneformat

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/kinoforge/internal/lifecycle"
	"github.com/MrWong99/kinoforge/internal/supervisor"
	"github.com/MrWong99/kinoforge/pkg/types"
)

// KindAIFormat is the supervisor job kind used for ai-mode format watches.
const KindAIFormat supervisor.Kind = "scene_format_ai"

// stepSettleDelay is how long the orchestrator sleeps between prerequisite
// steps to let the backend settle before checking status again.
const stepSettleDelay = 1 * time.Second

// Backend is the set of remote operations the orchestrator drives. A
// concrete implementation wraps [restclient.Client] calls; tests supply a
// stub.
type Backend interface {
	Transcribe(ctx context.Context, projectID string) error
	Parse(ctx context.Context, projectID string) error
	// Format triggers (or resumes) formatting and reports whether the mode
	// is "preserve" (completes synchronously) or "ai" (returns a run id to
	// watch).
	Format(ctx context.Context, projectID string, mode types.SplitMode) (FormatStartResult, error)
	// BatchStatus polls an in-progress ai-mode format run.
	BatchStatus(ctx context.Context, projectID, runID string) (BatchStatus, error)
	ProjectStatus(ctx context.Context, projectID string) (types.ProjectStatus, error)
}

// FormatStartResult is returned by Backend.Format.
type FormatStartResult struct {
	// Synchronous is true for preserve mode: the call already completed.
	Synchronous bool `json:"synchronous"`
	// RunID is set only when Synchronous is false.
	RunID string `json:"run_id"`
	// IntegrityCheckPassed and PreservedCharCount apply only to preserve mode.
	IntegrityCheckPassed bool `json:"integrity_check_passed"`
	PreservedCharCount   int  `json:"preserved_char_count"`
}

// BatchStatus is the batch-aware status reported while watching an ai-mode
// format run.
type BatchStatus struct {
	RunID       string              `json:"run_id"`
	TotalChunks int                 `json:"total_chunks"`
	Processed   int                 `json:"processed"`
	Processing  int                 `json:"processing"`
	Pending     int                 `json:"pending"`
	Failed      int                 `json:"failed"`
	Status      types.ProjectStatus `json:"status"`
}

// Orchestrator drives the transcribe/parse/format chain for one project at
// a time, dispatching ai-mode watches through a shared [supervisor.Supervisor].
type Orchestrator struct {
	backend    Backend
	supervisor *supervisor.Supervisor
	sleep      func(time.Duration)
}

// New creates an Orchestrator.
func New(backend Backend, sv *supervisor.Supervisor) *Orchestrator {
	return &Orchestrator{backend: backend, supervisor: sv, sleep: time.Sleep}
}

// Run drives the project from its current status toward "formatted",
// invoking only the prerequisite steps the project hasn't already passed.
func (o *Orchestrator) Run(ctx context.Context, projectID string, sourceType types.SourceType, mode types.SplitMode, onTick func(BatchStatus), onPreserveDone func(FormatStartResult), onAbort func(supervisor.AbortReason, error)) error {
	status, err := o.backend.ProjectStatus(ctx, projectID)
	if err != nil {
		return fmt.Errorf("sceneformat: fetch project status: %w", err)
	}

	if sourceType == types.SourceAudio && lifecycle.StatusRank(status) < lifecycle.StatusRank(types.StatusTranscribed) {
		if lifecycle.StatusRank(status) < lifecycle.StatusRank(types.StatusTranscribing) {
			if err := o.backend.Transcribe(ctx, projectID); err != nil {
				return fmt.Errorf("sceneformat: transcribe: %w", err)
			}
			o.sleep(stepSettleDelay)
		}
		status, err = o.waitFor(ctx, projectID, types.StatusTranscribed)
		if err != nil {
			return err
		}
	}

	if lifecycle.StatusRank(status) < lifecycle.StatusRank(types.StatusParsed) {
		if lifecycle.StatusRank(status) < lifecycle.StatusRank(types.StatusParsing) {
			if err := o.backend.Parse(ctx, projectID); err != nil {
				return fmt.Errorf("sceneformat: parse: %w", err)
			}
			o.sleep(stepSettleDelay)
		}
		status, err = o.waitFor(ctx, projectID, types.StatusParsed)
		if err != nil {
			return err
		}
	}

	if lifecycle.StatusRank(status) >= lifecycle.StatusRank(types.StatusFormatted) {
		return nil
	}

	result, err := o.backend.Format(ctx, projectID, mode)
	if err != nil {
		return fmt.Errorf("sceneformat: format: %w", err)
	}

	if result.Synchronous {
		if !result.IntegrityCheckPassed {
			return fmt.Errorf("sceneformat: preserve-mode integrity check failed")
		}
		if onPreserveDone != nil {
			onPreserveDone(result)
		}
		return nil
	}

	return o.watchAIMode(ctx, projectID, result.RunID, onTick, onAbort)
}

// waitFor polls ProjectStatus until it reaches at least want, sleeping
// stepSettleDelay between checks. In production this loop is short — the
// backend settles within one or two ticks.
func (o *Orchestrator) waitFor(ctx context.Context, projectID string, want types.ProjectStatus) (types.ProjectStatus, error) {
	for {
		status, err := o.backend.ProjectStatus(ctx, projectID)
		if err != nil {
			return "", fmt.Errorf("sceneformat: poll project status: %w", err)
		}
		if status == types.StatusFailed {
			return status, fmt.Errorf("sceneformat: project entered failed status")
		}
		if lifecycle.StatusRank(status) >= lifecycle.StatusRank(want) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		default:
		}
		o.sleep(stepSettleDelay)
	}
}

// watchAIMode registers a supervisor watch over the ai-mode format run.
// Each tick reconciles the batch-aware status: resuming idle batches,
// triggering the final merge, and surfacing per-chunk failures.
func (o *Orchestrator) watchAIMode(ctx context.Context, projectID, runID string, onTick func(BatchStatus), onAbort func(supervisor.AbortReason, error)) error {
	spec := supervisor.JobSpec{
		Kind:          KindAIFormat,
		EntityID:      projectID,
		ExpectedRunID: runID,
		Poll: func(pollCtx context.Context) (supervisor.PollResult, error) {
			st, err := o.backend.BatchStatus(pollCtx, projectID, runID)
			if err != nil {
				return supervisor.PollResult{}, err
			}

			if st.Pending > 0 && st.Processing == 0 {
				if _, err := o.backend.Format(pollCtx, projectID, types.SplitAI); err != nil {
					return supervisor.PollResult{}, fmt.Errorf("sceneformat: resume batch: %w", err)
				}
			} else if st.Pending == 0 && st.Processing == 0 && st.Status != types.StatusFormatted {
				if _, err := o.backend.Format(pollCtx, projectID, types.SplitAI); err != nil {
					return supervisor.PollResult{}, fmt.Errorf("sceneformat: trigger final merge: %w", err)
				}
			}

			if onTick != nil {
				onTick(st)
			}

			return supervisor.PollResult{
				Terminal: st.Status == types.StatusFormatted,
				RunID:    st.RunID,
			}, nil
		},
		OnAbort: onAbort,
	}
	return o.supervisor.Start(ctx, spec)
}

