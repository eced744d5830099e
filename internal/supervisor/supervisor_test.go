package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/kinoforge/pkg/restclient"
)

func TestStart_IdempotentWithoutExpectedRunID(t *testing.T) {
	s := New()
	var calls int32
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-1",
		TickInterval: 5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			atomic.AddInt32(&calls, 1)
			return PollResult{}, nil
		},
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
	s.Stop("image", "scene-1")
}

func TestStart_RefusesDifferentExpectedRunID(t *testing.T) {
	s := New()
	spec := JobSpec{
		Kind:          "format",
		EntityID:      "proj-1",
		ExpectedRunID: "run-a",
		TickInterval:  5 * time.Millisecond,
		Poll:          func(ctx context.Context) (PollResult, error) { return PollResult{}, nil },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop("format", "proj-1")

	spec2 := spec
	spec2.ExpectedRunID = "run-b"
	if err := s.Start(context.Background(), spec2); !errors.Is(err, ErrAlreadyInFlight) {
		t.Errorf("expected ErrAlreadyInFlight, got: %v", err)
	}
}

func TestWatch_CompletesOnTerminalResult(t *testing.T) {
	s := New()
	done := make(chan PollResult, 1)
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-2",
		TickInterval: 5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			return PollResult{Terminal: true}, nil
		},
		OnComplete: func(r PollResult) { done <- r },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnComplete was not called")
	}
	if s.IsInFlight("image", "scene-2") {
		t.Error("expected job to be cleared after completion")
	}
}

func TestWatch_AbortsAfterThreeConsecutiveTransientFailures(t *testing.T) {
	s := New()
	var failCount int32
	abortCh := make(chan AbortReason, 1)
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-3",
		TickInterval: 5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			atomic.AddInt32(&failCount, 1)
			return PollResult{}, &restclient.APIError{Status: 503, Message: "server busy"}
		},
		OnAbort: func(reason AbortReason, err error) { abortCh <- reason },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case reason := <-abortCh:
		if reason != AbortConsecutiveFailures {
			t.Errorf("expected AbortConsecutiveFailures, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnAbort was not called")
	}
	if atomic.LoadInt32(&failCount) < 3 {
		t.Errorf("expected at least 3 poll attempts, got %d", failCount)
	}
}

func TestWatch_AbortsImmediatelyOnNonTransientError(t *testing.T) {
	s := New()
	abortCh := make(chan AbortReason, 1)
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-4",
		TickInterval: 5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			return PollResult{}, errors.New("bad request")
		},
		OnAbort: func(reason AbortReason, err error) { abortCh <- reason },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case reason := <-abortCh:
		if reason != AbortNonTransientError {
			t.Errorf("expected AbortNonTransientError, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnAbort was not called")
	}
}

func TestWatch_AbortsOnRunIDMismatch(t *testing.T) {
	s := New()
	abortCh := make(chan AbortReason, 1)
	spec := JobSpec{
		Kind:          "format",
		EntityID:      "proj-2",
		ExpectedRunID: "run-a",
		TickInterval:  5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			return PollResult{RunID: "run-b"}, nil
		},
		OnAbort: func(reason AbortReason, err error) { abortCh <- reason },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case reason := <-abortCh:
		if reason != AbortRunIDMismatch {
			t.Errorf("expected AbortRunIDMismatch, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnAbort was not called")
	}
}

func TestWatch_ToleratesGatewayTimeoutIndefinitely(t *testing.T) {
	s := New()
	var calls int32
	done := make(chan struct{})
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-5",
		TickInterval: 5 * time.Millisecond,
		Poll: func(ctx context.Context) (PollResult, error) {
			n := atomic.AddInt32(&calls, 1)
			if n < 5 {
				return PollResult{}, &restclient.APIError{Status: 524, Message: "gateway timeout"}
			}
			close(done)
			return PollResult{Terminal: true}, nil
		},
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected watch to keep polling through repeated 524s")
	}
}

func TestHandleTimeout_ForceCleanupRecoversCompleted(t *testing.T) {
	s := New()
	entry := &jobEntry{startedAt: time.Now().Add(-time.Hour)}
	completeCh := make(chan PollResult, 1)
	spec := JobSpec{
		Timeout: time.Millisecond,
		ForceCleanup: func(ctx context.Context) (PollResult, error) {
			return PollResult{Terminal: true}, nil
		},
		OnComplete: func(r PollResult) { completeCh <- r },
	}
	restarted := s.handleTimeout(context.Background(), jobKey{}, entry, spec)
	if restarted {
		t.Error("expected handleTimeout to report finished, not restarted")
	}
	select {
	case <-completeCh:
	default:
		t.Error("expected OnComplete to be called")
	}
}

func TestHandleTimeout_ForceCleanupRestartsOnceWhenStillGenerating(t *testing.T) {
	s := New()
	entry := &jobEntry{startedAt: time.Now().Add(-time.Hour)}
	spec := JobSpec{
		Timeout: time.Millisecond,
		ForceCleanup: func(ctx context.Context) (PollResult, error) {
			return PollResult{Terminal: false}, nil
		},
	}
	restarted := s.handleTimeout(context.Background(), jobKey{}, entry, spec)
	if !restarted {
		t.Fatal("expected first timeout to restart the watch once")
	}
	if !entry.restartedOnce {
		t.Error("expected restartedOnce to be set")
	}

	// A second timeout must not restart again.
	entry.startedAt = time.Now().Add(-time.Hour)
	restarted = s.handleTimeout(context.Background(), jobKey{}, entry, spec)
	if restarted {
		t.Error("expected second timeout to not restart again")
	}
}

func TestHandleTimeout_NoForceCleanupAbortsImmediately(t *testing.T) {
	s := New()
	entry := &jobEntry{startedAt: time.Now().Add(-time.Hour)}
	abortCh := make(chan AbortReason, 1)
	spec := JobSpec{
		Timeout: time.Millisecond,
		OnAbort: func(reason AbortReason, err error) { abortCh <- reason },
	}
	restarted := s.handleTimeout(context.Background(), jobKey{}, entry, spec)
	if restarted {
		t.Error("expected no restart without ForceCleanup")
	}
	select {
	case reason := <-abortCh:
		if reason != AbortTimeout {
			t.Errorf("expected AbortTimeout, got %v", reason)
		}
	default:
		t.Error("expected OnAbort to be called")
	}
}

func TestBulkImageLock(t *testing.T) {
	s := New()
	if !s.TryLockBulkImage() {
		t.Fatal("expected first lock attempt to succeed")
	}
	if s.TryLockBulkImage() {
		t.Error("expected second lock attempt to fail while held")
	}
	if !s.IsBulkImageGenerating() {
		t.Error("expected IsBulkImageGenerating to be true")
	}
	s.UnlockBulkImage()
	if s.IsBulkImageGenerating() {
		t.Error("expected IsBulkImageGenerating to be false after unlock")
	}
	if !s.TryLockBulkImage() {
		t.Error("expected lock to be acquirable again after unlock")
	}
}

func TestSceneLock_PerSceneIndependence(t *testing.T) {
	s := New()
	if !s.TryLockScene("scene-1") {
		t.Fatal("expected lock to succeed")
	}
	if s.TryLockScene("scene-1") {
		t.Error("expected second lock on same scene to fail")
	}
	if !s.TryLockScene("scene-2") {
		t.Error("expected lock on a different scene to succeed independently")
	}
	s.UnlockScene("scene-1")
	if !s.TryLockScene("scene-1") {
		t.Error("expected lock to be acquirable again after unlock")
	}
}

func TestFakeProgressPercent_NeverReaches100(t *testing.T) {
	cases := []time.Duration{0, 20 * time.Second, 45 * time.Second, 60 * time.Second, 90 * time.Second, 5 * time.Minute}
	for _, d := range cases {
		p := fakeProgressPercent(d)
		if p >= 100 {
			t.Errorf("fakeProgressPercent(%s) = %d, must never reach 100", d, p)
		}
	}
}

func TestFakeProgressPercent_Monotonic(t *testing.T) {
	prev := -1
	for s := 0; s <= 120; s += 5 {
		p := fakeProgressPercent(time.Duration(s) * time.Second)
		if p < prev {
			t.Errorf("progress regressed at %ds: %d < %d", s, p, prev)
		}
		prev = p
	}
}

func TestStop_IsIdempotentAndSafeConcurrently(t *testing.T) {
	s := New()
	spec := JobSpec{
		Kind:         "image",
		EntityID:     "scene-6",
		TickInterval: 5 * time.Millisecond,
		Poll:         func(ctx context.Context) (PollResult, error) { return PollResult{}, nil },
	}
	if err := s.Start(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop("image", "scene-6")
		}()
	}
	wg.Wait()
}
