package playback

import (
	"testing"
	"time"

	"github.com/MrWong99/kinoforge/pkg/types"
)

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func testScenes() []types.Scene {
	return []types.Scene{
		{ID: "s1", Idx: 1, DurationOverrideMs: intPtr(2000)},
		{ID: "s2", Idx: 2, UtteranceStatus: types.UtteranceStatus{TotalDurationMs: 3000, WithAudio: 1}},
		{ID: "s3", Idx: -3, HiddenAt: timePtr(time.Unix(0, 0))},
		{ID: "s4", Idx: 4},
	}
}

func TestNew_ResolvesFirstSceneAtZero(t *testing.T) {
	tr := New(testScenes())
	ctx := tr.Current()
	if ctx.SceneID != "s1" {
		t.Errorf("expected s1, got %+v", ctx)
	}
}

func TestLocate_SecondSceneAfterFirstBoundary(t *testing.T) {
	ctx := locate(testScenes(), 2500)
	if ctx.SceneID != "s2" {
		t.Errorf("expected s2 at 2500ms, got %+v", ctx)
	}
}

func TestLocate_HiddenSceneIsSkipped(t *testing.T) {
	// s1 (2000ms) + s2 (3000ms) = 5000ms cumulative before the hidden s3 is
	// skipped entirely; s4 falls back to the default duration.
	ctx := locate(testScenes(), 5500)
	if ctx.SceneID != "s4" {
		t.Errorf("expected s4 (hidden s3 skipped), got %+v", ctx)
	}
}

func TestLocate_PastEndResolvesToLastScene(t *testing.T) {
	ctx := locate(testScenes(), 1_000_000)
	if ctx.SceneID != "s4" {
		t.Errorf("expected last visible scene s4, got %+v", ctx)
	}
}

func TestLocate_EmptySceneListReturnsZeroContext(t *testing.T) {
	ctx := locate(nil, 1500)
	if ctx.SceneID != "" || ctx.PlaybackTimeMs != 1500 {
		t.Errorf("expected empty scene id with playback time preserved, got %+v", ctx)
	}
}

func TestSetScenes_ReResolvesAgainstSamePosition(t *testing.T) {
	tr := New(testScenes())
	tr.mu.Lock()
	tr.current.PlaybackTimeMs = 2500
	tr.mu.Unlock()

	tr.SetScenes(testScenes())
	if got := tr.Current().SceneID; got != "s2" {
		t.Errorf("expected re-resolve to s2, got %s", got)
	}
}

type fakeSource struct {
	ch chan int
}

func (f *fakeSource) Positions() <-chan int { return f.ch }

func TestWatch_UpdatesCurrentOnEachPosition(t *testing.T) {
	tr := New(testScenes())
	src := &fakeSource{ch: make(chan int)}

	done := make(chan struct{})
	go func() {
		tr.Watch(src)
		close(done)
	}()

	src.ch <- 2500
	src.ch <- 6000
	close(src.ch)
	<-done

	if got := tr.Current().SceneID; got != "s4" {
		t.Errorf("expected final position to resolve to s4, got %s", got)
	}
}

func TestSnapshotFor_ReportsImageAudioTelopAndCounts(t *testing.T) {
	scene := types.Scene{
		ActiveImage:    &types.Generation{},
		TextRenderMode: types.RenderBaked,
		Utterances:     []types.Utterance{{}, {}},
		SFX:            []types.SFXCue{{}},
		UtteranceStatus: types.UtteranceStatus{WithAudio: 1},
	}
	snap := snapshotFor(scene)
	if !snap.HasImage || !snap.HasAudio || !snap.TelopEnabled {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.BalloonCount != 2 || snap.SFXCount != 1 {
		t.Errorf("unexpected counts: %+v", snap)
	}
}
