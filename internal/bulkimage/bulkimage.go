// Package bulkimage drives image generation across every scene in a
// project. It supports two sub-modes: a synchronous "all" mode that
// regenerates every scene via one long-running backend call, and a
// client-driven "pending/failed" streaming queue that dispatches one scene
// at a time until the project converges.
package bulkimage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kinoforge/internal/supervisor"
)

// KindImage is the supervisor job kind used for individual per-scene image
// watches started while a bulk job is in flight.
const KindImage supervisor.Kind = "image"

// StreamingDeadline is the wall-clock budget for the pending/failed
// streaming queue before it gives up and reports a timeout.
const StreamingDeadline = 25 * time.Minute

// streamingPollInterval governs how often the streaming queue re-checks
// project-wide generation status between dispatches.
const streamingPollInterval = 3 * time.Second

// maxConcurrentDispatch bounds how many per-scene generation calls the "all"
// mode's background poll can be fanning status requests out to at once.
const maxConcurrentDispatch = 4

// ProjectImageStatus is the project-wide tally the streaming queue polls.
type ProjectImageStatus struct {
	Processed  int
	Pending    int
	Failed     int
	Generating int
	Done       bool
}

// Backend is the set of remote operations bulk image generation drives.
type Backend interface {
	// GenerateAll kicks off the synchronous all-scenes regeneration and
	// blocks (subject to ctx) until the backend responds.
	GenerateAll(ctx context.Context, projectID string) error
	// GenerateScene starts generation for a single scene.
	GenerateScene(ctx context.Context, projectID, sceneID string) error
	// SceneStatus polls a single scene's generation status.
	SceneStatus(ctx context.Context, projectID, sceneID string) (supervisor.PollResult, error)
	// ProjectImageStatus polls the project-wide tally used by the streaming
	// queue, plus the list of scene ids not yet terminal.
	ProjectImageStatus(ctx context.Context, projectID string) (ProjectImageStatus, []string, error)
	// FinalizeBatch is called once pending and generating both reach zero,
	// to let the backend flip the project status to completed.
	FinalizeBatch(ctx context.Context, projectID string) error
}

// Generator coordinates bulk image generation for one project at a time,
// guarded by the shared supervisor's process-wide bulk-image lock.
type Generator struct {
	backend    Backend
	supervisor *supervisor.Supervisor
	sleep      func(time.Duration)
}

// New creates a Generator.
func New(backend Backend, sv *supervisor.Supervisor) *Generator {
	return &Generator{backend: backend, supervisor: sv, sleep: time.Sleep}
}

// RunAll runs the synchronous "all" sub-mode: one long-running backend call,
// with onSceneProgress invoked periodically (every 3s, via the shared
// per-scene supervisor watches) for each scene still in flight. onComplete
// fires once GenerateAll has returned and every per-scene watch has reached
// a terminal state.
func (g *Generator) RunAll(ctx context.Context, projectID string, sceneIDs []string, onSceneProgress func(sceneID string, percent int), onComplete func()) error {
	if !g.supervisor.TryLockBulkImage() {
		return fmt.Errorf("bulkimage: a bulk job is already running")
	}
	defer g.supervisor.UnlockBulkImage()

	var wg sync.WaitGroup
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDispatch)

	for _, id := range sceneIDs {
		sceneID := id
		wg.Add(1)
		finish := sync.OnceFunc(wg.Done)
		eg.Go(func() error {
			return g.supervisor.Start(egCtx, supervisor.JobSpec{
				Kind:         KindImage,
				EntityID:     sceneID,
				TickInterval: streamingPollInterval,
				Poll: func(pollCtx context.Context) (supervisor.PollResult, error) {
					return g.backend.SceneStatus(pollCtx, projectID, sceneID)
				},
				OnProgress: func(percent int) {
					if onSceneProgress != nil {
						onSceneProgress(sceneID, percent)
					}
				},
				OnComplete: func(supervisor.PollResult) { finish() },
				OnAbort:    func(supervisor.AbortReason, error) { finish() },
			})
		})
	}

	if err := g.backend.GenerateAll(ctx, projectID); err != nil {
		return fmt.Errorf("bulkimage: generate all: %w", err)
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("bulkimage: per-scene watch setup: %w", err)
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		for _, id := range sceneIDs {
			g.supervisor.Stop(KindImage, id)
		}
		return ctx.Err()
	}

	if onComplete != nil {
		onComplete()
	}
	return nil
}

// RunStreaming runs the client-driven "pending/failed" sub-mode: repeatedly
// check project-wide status, dispatch the next single-scene job when
// nothing is currently generating, and finalize once the queue drains.
// Continues until every target is terminal or StreamingDeadline elapses.
func (g *Generator) RunStreaming(ctx context.Context, projectID string, onTick func(ProjectImageStatus), onComplete func()) error {
	if !g.supervisor.TryLockBulkImage() {
		return fmt.Errorf("bulkimage: a bulk job is already running")
	}
	defer g.supervisor.UnlockBulkImage()

	deadline := now().Add(StreamingDeadline)

	for {
		if now().After(deadline) {
			return fmt.Errorf("bulkimage: streaming queue exceeded %s", StreamingDeadline)
		}

		status, remaining, err := g.backend.ProjectImageStatus(ctx, projectID)
		if err != nil {
			return fmt.Errorf("bulkimage: project image status: %w", err)
		}
		if onTick != nil {
			onTick(status)
		}

		if status.Done {
			if onComplete != nil {
				onComplete()
			}
			return nil
		}

		if status.Generating == 0 {
			if len(remaining) == 0 {
				if status.Pending == 0 {
					if err := g.backend.FinalizeBatch(ctx, projectID); err != nil {
						return fmt.Errorf("bulkimage: finalize batch: %w", err)
					}
				}
			} else {
				next := remaining[0]
				if err := g.backend.GenerateScene(ctx, projectID, next); err != nil {
					return fmt.Errorf("bulkimage: generate scene %q: %w", next, err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamingPollInterval):
		}
	}
}

var now = time.Now
