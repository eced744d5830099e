package aiparse

import (
	"context"
	"strings"
	"testing"

	llm "github.com/MrWong99/kinoforge/pkg/provider/llm"
	"github.com/MrWong99/kinoforge/pkg/provider/llm/mock"

	"github.com/MrWong99/kinoforge/internal/chatedit"
)

func TestParse_ValidResponseIsDecoded(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"actions": [{"kind": "bgm.set_volume", "volume": 0.3}]}`}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "turn the music down a bit", "scene 2, 00:14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != chatedit.KindBGMSetVolume {
		t.Errorf("unexpected kind: %v", actions[0].Kind)
	}
	if actions[0].Volume != 0.3 {
		t.Errorf("unexpected volume: %v", actions[0].Volume)
	}
}

func TestParse_EmptyActionsIsConversationMode(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"actions": []}`}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "how does this scene look?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %v", actions)
	}
}

func TestParse_ContextualSceneIsPreservedWhenSceneIdxOmitted(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"actions": [{"kind": "sfx.remove", "cue_no": 2, "contextual": true}]}`}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "remove that sound effect", "scene 1, 00:03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	a := actions[0]
	if a.SceneIdx != nil {
		t.Errorf("expected nil scene idx, got %v", a.SceneIdx)
	}
	if !a.Contextual {
		t.Error("expected Contextual to be true")
	}
	if !a.NeedsSceneContext() {
		t.Error("expected NeedsSceneContext to be true")
	}
}

func TestParse_UnknownKindIsDropped(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"actions": [{"kind": "unknown.thing"}, {"kind": "bgm.set_loop", "loop": true}]}`}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "loop the bgm", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected unknown kind to be dropped, got %d actions", len(actions))
	}
	if actions[0].Kind != chatedit.KindBGMSetLoop {
		t.Errorf("unexpected surviving action: %+v", actions[0])
	}
}

func TestParse_UnparseableResponseFallsBackSilently(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not json at all"}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("expected nil error on graceful fallback, got %v", err)
	}
	if actions != nil {
		t.Errorf("expected nil actions on graceful fallback, got %v", actions)
	}
}

func TestParse_StripsMarkdownFences(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n{\"actions\": [{\"kind\": \"telop.set_enabled\", \"enabled\": true}]}\n```"}}
	p := New(provider)

	actions, err := p.Parse(context.Background(), "turn on telops", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 || !actions[0].Enabled {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}

func TestParse_ProviderErrorIsPropagated(t *testing.T) {
	provider := &mock.Provider{CompleteErr: context.DeadlineExceeded}
	p := New(provider)

	_, err := p.Parse(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestParse_SystemPromptCarriesPlaybackContext(t *testing.T) {
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"actions": []}`}}
	p := New(provider)

	_, err := p.Parse(context.Background(), "hello", "scene 5, 01:02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("expected 1 Complete call, got %d", len(provider.CompleteCalls))
	}
	if want := "scene 5, 01:02"; !strings.Contains(provider.CompleteCalls[0].Req.SystemPrompt, want) {
		t.Errorf("expected system prompt to mention playback context %q", want)
	}
}
