// Package playback tracks a browser player's current position and resolves
// it to the scene it falls within, so chat-edit can resolve "this scene" /
// "here" without the caller naming a scene explicitly.
package playback

import (
	"sync"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// defaultSceneDurationMs is the assumed screen time for a scene that has no
// recorded narration yet (no utterances, no DurationOverrideMs).
const defaultSceneDurationMs = 4000

// SceneSnapshot is a point-in-time read of the scene the playhead is
// currently inside, cheap enough to recompute on every position update.
type SceneSnapshot struct {
	HasImage     bool
	HasAudio     bool
	TelopEnabled bool
	BalloonCount int
	SFXCount     int
}

// Context is what C12 consumes to resolve a Contextual chat-edit action.
type Context struct {
	SceneIdx       int
	SceneID        string
	PlaybackTimeMs int
	SceneSnapshot  SceneSnapshot
}

// PositionSource feeds playhead updates, in milliseconds from the start of
// the assembled video, to a Tracker. internal/playback/wsposition implements
// it for a remote browser pushing positions over a websocket.
type PositionSource interface {
	Positions() <-chan int
}

// Tracker holds the current scene list and the latest resolved Context for
// a single project's playback session.
//
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	scenes  []types.Scene
	current Context
}

// New returns a Tracker seeded with scenes, resolved at PlaybackTimeMs 0.
func New(scenes []types.Scene) *Tracker {
	t := &Tracker{}
	t.SetScenes(scenes)
	return t
}

// SetScenes replaces the tracked scene list, e.g. after a scene edit commits,
// and re-resolves the current context against the same playhead position.
func (t *Tracker) SetScenes(scenes []types.Scene) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scenes = scenes
	t.current = locate(scenes, t.current.PlaybackTimeMs)
}

// Current returns the most recently resolved Context.
func (t *Tracker) Current() Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Watch consumes position updates from source until its channel closes,
// updating Current on every tick. Callers run this in its own goroutine.
func (t *Tracker) Watch(source PositionSource) {
	for ms := range source.Positions() {
		t.mu.Lock()
		t.current = locate(t.scenes, ms)
		t.mu.Unlock()
	}
}

// locate walks the visible scene list accumulating durations until the
// first scene whose cumulative end exceeds playbackTimeMs; that scene
// becomes the context. A playhead past the end of the last scene resolves
// to the last scene.
func locate(scenes []types.Scene, playbackTimeMs int) Context {
	visible := make([]types.Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.IsVisible() {
			visible = append(visible, s)
		}
	}
	if len(visible) == 0 {
		return Context{PlaybackTimeMs: playbackTimeMs}
	}

	cumulative := 0
	for _, s := range visible {
		cumulative += effectiveDurationMs(s)
		if playbackTimeMs < cumulative {
			return contextFor(s, playbackTimeMs)
		}
	}
	return contextFor(visible[len(visible)-1], playbackTimeMs)
}

func effectiveDurationMs(s types.Scene) int {
	if s.DurationOverrideMs != nil {
		return *s.DurationOverrideMs
	}
	if s.UtteranceStatus.TotalDurationMs > 0 {
		return s.UtteranceStatus.TotalDurationMs
	}
	return defaultSceneDurationMs
}

func contextFor(s types.Scene, playbackTimeMs int) Context {
	return Context{
		SceneIdx:       s.Idx,
		SceneID:        s.ID,
		PlaybackTimeMs: playbackTimeMs,
		SceneSnapshot:  snapshotFor(s),
	}
}

func snapshotFor(s types.Scene) SceneSnapshot {
	return SceneSnapshot{
		HasImage:     s.ActiveImage != nil || s.ActiveComic != nil || s.ActiveVideo != nil,
		HasAudio:     s.UtteranceStatus.WithAudio > 0,
		TelopEnabled: s.TextRenderMode != types.RenderNone,
		BalloonCount: len(s.Utterances),
		SFXCount:     len(s.SFX),
	}
}
