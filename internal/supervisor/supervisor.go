// Package supervisor implements the central job-polling contract: one named
// job per (kind, entity), resumable after a page reload. It owns the
// fake-progress curve shown while a backend job runs without its own
// progress stream, the consecutive-failure/timeout abort rules, and the
// gateway-timeout tolerance the synchronous image-generation endpoint needs.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/kinoforge/pkg/restclient"
)

// Kind identifies the category of job being supervised (image generation,
// audio generation, scene-format ai-mode, video build, ...). Callers define
// their own Kind constants; the supervisor only uses it as a map key.
type Kind string

// TickInterval is the default polling interval.
const TickInterval = 5 * time.Second

// DefaultTimeout is the default wall-clock budget before a watch aborts.
const DefaultTimeout = 10 * time.Minute

// ErrAlreadyInFlight is returned by Start when a job for the same
// (kind, entity) is already running under a different run id.
var ErrAlreadyInFlight = errors.New("supervisor: job already in flight")

// AbortReason classifies why a watch stopped without reaching a terminal
// poll result.
type AbortReason string

const (
	AbortTimeout             AbortReason = "timeout"
	AbortConsecutiveFailures AbortReason = "consecutive_failures"
	AbortNonTransientError   AbortReason = "non_transient_error"
	AbortRunIDMismatch       AbortReason = "run_id_mismatch"
	AbortStopped             AbortReason = "stopped"
)

// PollResult is what a [PollFunc] reports back on each tick.
type PollResult struct {
	// Terminal is true once the job has reached a final state (completed or
	// failed) and polling should stop.
	Terminal bool
	// Failed is only meaningful when Terminal is true.
	Failed bool
	// RunID, if non-empty, is compared against the watch's ExpectedRunID.
	// A mismatch aborts the watch: a different run started server-side.
	RunID string
}

// PollFunc fetches the current status of a job. A non-nil error is
// interpreted via [restclient.IsTransient] and [restclient.IsGatewayTimeout]
// to decide whether to retry, tolerate, or abort.
type PollFunc func(ctx context.Context) (PollResult, error)

// JobSpec describes a single watch to start.
type JobSpec struct {
	Kind Kind
	// EntityID is the scene, project, or build id this job is watching.
	EntityID string
	// ExpectedRunID, if set, makes Start idempotent only for callers that
	// agree on which run they're watching, and aborts the watch early if the
	// backend reports a different run id mid-flight.
	ExpectedRunID string

	Poll PollFunc
	// ForceCleanup is called on each timeout (at most twice, since the watch
	// restarts at most once) to give the backend a chance to reconcile a
	// stuck record before the watch gives up or restarts. Used by
	// the image-generation watch specifically; leave nil for other kinds.
	ForceCleanup PollFunc

	Timeout      time.Duration // defaults to DefaultTimeout
	TickInterval time.Duration // defaults to TickInterval

	// OnProgress is invoked with the fake progress percent on every tick.
	OnProgress func(percent int)
	// OnComplete is invoked once, when Poll reports a terminal result.
	OnComplete func(result PollResult)
	// OnAbort is invoked once if the watch stops without a terminal result.
	OnAbort func(reason AbortReason, err error)
}

type jobKey struct {
	kind     Kind
	entityID string
}

type jobEntry struct {
	startedAt     time.Time
	attempts      int
	expectedRunID string
	cancel        context.CancelFunc
	restartedOnce bool
}

// Supervisor owns the registry of in-flight jobs plus the two coarser locks
// the builder UI derives its button state from: a single process-wide bulk
// image lock, and a per-scene save/generate mutex.
type Supervisor struct {
	mu       sync.Mutex
	inFlight map[jobKey]*jobEntry

	bulkMu    sync.Mutex
	bulkImage bool

	sceneMu       sync.Mutex
	sceneInFlight map[string]bool
}

// New creates an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{
		inFlight:      make(map[jobKey]*jobEntry),
		sceneInFlight: make(map[string]bool),
	}
}

// Start begins watching spec.Kind/spec.EntityID. It is idempotent: a second
// Start for the same (kind, entity) with no ExpectedRunID, or with an
// ExpectedRunID matching the one already running, returns nil without
// starting a second watch. A second Start naming a different ExpectedRunID
// returns [ErrAlreadyInFlight].
func (s *Supervisor) Start(ctx context.Context, spec JobSpec) error {
	if spec.Poll == nil {
		return fmt.Errorf("supervisor: JobSpec.Poll must not be nil")
	}
	key := jobKey{kind: spec.Kind, entityID: spec.EntityID}

	s.mu.Lock()
	if existing, ok := s.inFlight[key]; ok {
		if spec.ExpectedRunID == "" || existing.expectedRunID == spec.ExpectedRunID {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrAlreadyInFlight, spec.Kind, spec.EntityID)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	entry := &jobEntry{
		startedAt:     now(),
		expectedRunID: spec.ExpectedRunID,
		cancel:        cancel,
	}
	s.inFlight[key] = entry
	s.mu.Unlock()

	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}
	if spec.TickInterval <= 0 {
		spec.TickInterval = TickInterval
	}

	go s.watch(jobCtx, key, entry, spec)
	return nil
}

// Stop cancels and clears the watch for (kind, entityID), if any.
func (s *Supervisor) Stop(kind Kind, entityID string) {
	key := jobKey{kind: kind, entityID: entityID}
	s.mu.Lock()
	entry, ok := s.inFlight[key]
	if ok {
		delete(s.inFlight, key)
	}
	s.mu.Unlock()
	if ok {
		entry.cancel()
	}
}

// IsInFlight reports whether a watch is currently registered for
// (kind, entityID). Used after a page reload to decide whether to re-attach
// a poller instead of starting a fresh job.
func (s *Supervisor) IsInFlight(kind Kind, entityID string) bool {
	key := jobKey{kind: kind, entityID: entityID}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[key]
	return ok
}

func (s *Supervisor) clear(key jobKey) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *Supervisor) watch(ctx context.Context, key jobKey, entry *jobEntry, spec JobSpec) {
	defer s.clear(key)

	ticker := time.NewTicker(spec.TickInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			if spec.OnAbort != nil {
				spec.OnAbort(AbortStopped, ctx.Err())
			}
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		entry.attempts++
		elapsed := now().Sub(entry.startedAt)
		s.mu.Unlock()

		if spec.OnProgress != nil {
			spec.OnProgress(fakeProgressPercent(elapsed))
		}

		if elapsed > spec.Timeout {
			if s.handleTimeout(ctx, key, entry, spec) {
				continue // restarted the watch once with a fresh clock
			}
			return
		}

		result, err := spec.Poll(ctx)
		if err != nil {
			if restclient.IsGatewayTimeout(err) {
				// The synchronous image endpoint may 524 while work
				// continues server-side. Not a failure: keep polling.
				slog.Debug("supervisor tolerating gateway timeout", "kind", key.kind, "entity_id", key.entityID)
				continue
			}
			if restclient.IsTransient(err) {
				consecutiveFailures++
				if consecutiveFailures >= 3 {
					if spec.OnAbort != nil {
						spec.OnAbort(AbortConsecutiveFailures, err)
					}
					return
				}
				continue
			}
			if spec.OnAbort != nil {
				spec.OnAbort(AbortNonTransientError, err)
			}
			return
		}
		consecutiveFailures = 0

		if spec.ExpectedRunID != "" && result.RunID != "" && result.RunID != spec.ExpectedRunID {
			if spec.OnAbort != nil {
				spec.OnAbort(AbortRunIDMismatch, fmt.Errorf("supervisor: another run started (run_id=%s)", result.RunID))
			}
			return
		}

		if result.Terminal {
			if spec.OnComplete != nil {
				spec.OnComplete(result)
			}
			return
		}
	}
}

// handleTimeout runs the image-kind-specific recovery path. It returns true
// if the watch was restarted with a fresh clock and should keep polling,
// false if the caller should treat the watch as finished (either because
// OnComplete/OnAbort was already called, or because there is no recovery
// path for this kind).
func (s *Supervisor) handleTimeout(ctx context.Context, key jobKey, entry *jobEntry, spec JobSpec) bool {
	if spec.ForceCleanup == nil {
		if spec.OnAbort != nil {
			spec.OnAbort(AbortTimeout, fmt.Errorf("supervisor: watch exceeded %s", spec.Timeout))
		}
		return false
	}

	result, err := spec.ForceCleanup(ctx)
	if err == nil && result.Terminal && !result.Failed {
		if spec.OnComplete != nil {
			spec.OnComplete(result)
		}
		return false
	}
	if err == nil && !result.Terminal && !entry.restartedOnce {
		s.mu.Lock()
		entry.restartedOnce = true
		entry.startedAt = now()
		entry.attempts = 0
		s.mu.Unlock()
		return true
	}

	if spec.OnAbort != nil {
		spec.OnAbort(AbortTimeout, fmt.Errorf("supervisor: watch exceeded %s and force-cleanup did not recover it", spec.Timeout))
	}
	return false
}

// TryLockBulkImage acquires the process-wide bulk-image-generation lock. It
// returns false if a bulk job is already running.
func (s *Supervisor) TryLockBulkImage() bool {
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()
	if s.bulkImage {
		return false
	}
	s.bulkImage = true
	return true
}

// UnlockBulkImage releases the bulk-image-generation lock.
func (s *Supervisor) UnlockBulkImage() {
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()
	s.bulkImage = false
}

// IsBulkImageGenerating reports whether a bulk image job currently holds the
// lock. Individual scene image buttons are disabled while true.
func (s *Supervisor) IsBulkImageGenerating() bool {
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()
	return s.bulkImage
}

// TryLockScene acquires the per-scene save/generate mutex for sceneID. It
// returns false if the scene is already being processed.
func (s *Supervisor) TryLockScene(sceneID string) bool {
	s.sceneMu.Lock()
	defer s.sceneMu.Unlock()
	if s.sceneInFlight[sceneID] {
		return false
	}
	s.sceneInFlight[sceneID] = true
	return true
}

// UnlockScene releases the per-scene mutex for sceneID.
func (s *Supervisor) UnlockScene(sceneID string) {
	s.sceneMu.Lock()
	defer s.sceneMu.Unlock()
	delete(s.sceneInFlight, sceneID)
}

// fakeProgressPercent computes user-facing progress purely from elapsed
// time, for jobs whose backend does not stream real progress. It never
// reaches 100%; only a terminal poll result does that.
func fakeProgressPercent(elapsed time.Duration) int {
	s := elapsed.Seconds()
	switch {
	case s <= 45:
		return int(s / 45 * 80)
	case s <= 90:
		return int(80 + (s-45)/45*15)
	default:
		return 95
	}
}

var now = time.Now
