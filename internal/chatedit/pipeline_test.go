package chatedit

import (
	"context"
	"testing"
)

type stubBackend struct {
	dryRunCalls int
	dryRunResult DryRunResult
	dryRunErr    error

	applyCalls  int
	applyResult ApplyResult
	applyErr    error

	lastIntent Intent
}

func (b *stubBackend) DryRun(ctx context.Context, projectID, userMessage string, intent Intent, videoBuildID *string) (DryRunResult, error) {
	b.dryRunCalls++
	b.lastIntent = intent
	if b.dryRunErr != nil {
		return DryRunResult{}, b.dryRunErr
	}
	return b.dryRunResult, nil
}

func (b *stubBackend) Apply(ctx context.Context, projectID, patchRequestID string) (ApplyResult, error) {
	b.applyCalls++
	if b.applyErr != nil {
		return ApplyResult{}, b.applyErr
	}
	return b.applyResult, nil
}

func noRules(message string) []Action { return nil }

func rulesReturning(actions []Action) RuleParser {
	return func(message string) []Action { return actions }
}

func aiReturning(actions []Action) AIParser {
	return func(ctx context.Context, message, playbackContext string) ([]Action, error) {
		return actions, nil
	}
}

func TestClassify_NoActionsIsConversationMode(t *testing.T) {
	p := New(&stubBackend{}, noRules, aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "how does this scene look?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Mode != ModeConversation {
		t.Errorf("expected conversation mode, got %v", outcome.Mode)
	}
}

func TestClassify_RegexMatchSkipsAIFallback(t *testing.T) {
	sceneIdx := 2
	action := Action{Kind: KindBGMSetVolume, Volume: 0.5}
	aiCalled := false
	aiParser := func(ctx context.Context, message, playbackContext string) ([]Action, error) {
		aiCalled = true
		return nil, nil
	}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiParser)

	outcome, err := p.Classify(context.Background(), "bgm to 50%", &PlaybackContext{SceneIdx: sceneIdx})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aiCalled {
		t.Error("expected AI fallback to be skipped when regex matched")
	}
	if outcome.Intent.Mode != ParseModeRegex {
		t.Errorf("expected regex parse mode, got %v", outcome.Intent.Mode)
	}
}

func TestClassify_EmptyRegexFallsBackToAI(t *testing.T) {
	action := Action{Kind: KindTelopSetEnabled, Enabled: true}
	p := New(&stubBackend{}, noRules, aiReturning([]Action{action}))

	outcome, err := p.Classify(context.Background(), "turn on captions please", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Intent.Mode != ParseModeAI {
		t.Errorf("expected ai parse mode, got %v", outcome.Intent.Mode)
	}
	if outcome.Mode != ModeDirectEdit {
		t.Errorf("expected direct edit mode, got %v", outcome.Mode)
	}
}

func TestClassify_ContextualActionResolvedFromPlayback(t *testing.T) {
	action := Action{Kind: KindMotionSetPreset, PresetID: "zoom_in", Contextual: true}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "zoom in on this scene", &PlaybackContext{SceneIdx: 4, SceneID: "scene-4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Mode != ModeDirectEdit {
		t.Fatalf("expected direct edit mode, got %v", outcome.Mode)
	}
	resolved := outcome.Intent.Actions[0]
	if resolved.SceneIdx == nil || *resolved.SceneIdx != 4 {
		t.Errorf("unexpected resolved scene idx: %v", resolved.SceneIdx)
	}
}

func TestClassify_ContextualActionFallsBackToSceneOneWithoutPlayback(t *testing.T) {
	action := Action{Kind: KindMotionSetPreset, PresetID: "zoom_in", Contextual: true}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "zoom in on this scene", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved := outcome.Intent.Actions[0]
	if resolved.SceneIdx == nil || *resolved.SceneIdx != 1 {
		t.Errorf("expected fallback scene idx 1, got %v", resolved.SceneIdx)
	}
}

func TestClassify_OutOfRangeVolumeIsSuggestionMode(t *testing.T) {
	action := Action{Kind: KindBGMSetVolume, Volume: 1.5}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "blast the music", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Mode != ModeSuggestion {
		t.Errorf("expected suggestion mode, got %v", outcome.Mode)
	}
	if outcome.Proposal.Summary == "" {
		t.Error("expected a non-empty proposal summary")
	}
}

func TestDryRun_RetainsExplainRecordByPatchRequestID(t *testing.T) {
	backend := &stubBackend{dryRunResult: DryRunResult{OK: true, PatchRequestID: "patch-1"}}
	p := New(backend, rulesReturning([]Action{{Kind: KindTelopSetEnabled, Enabled: true}}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "turn on captions", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := p.DryRun(context.Background(), "proj-1", outcome, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PatchRequestID != "patch-1" {
		t.Fatalf("unexpected patch request id: %q", result.PatchRequestID)
	}

	explain, ok := p.Explain("patch-1")
	if !ok {
		t.Fatal("expected explain record to be retained")
	}
	if explain.Mode != ModeDirectEdit {
		t.Errorf("unexpected explain mode: %v", explain.Mode)
	}
}

func TestApply_PropagatesBackendResult(t *testing.T) {
	backend := &stubBackend{applyResult: ApplyResult{VideoBuildID: "build-9", AutoRebake: true, PendingScrollTo: "build-9"}}
	p := New(backend, noRules, aiReturning(nil))

	result, err := p.Apply(context.Background(), "proj-1", "patch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VideoBuildID != "build-9" {
		t.Errorf("unexpected video build id: %q", result.VideoBuildID)
	}
	if !result.AutoRebake {
		t.Error("expected AutoRebake to be true")
	}
	if backend.applyCalls != 1 {
		t.Errorf("expected 1 apply call, got %d", backend.applyCalls)
	}
}

func TestClassify_FallbackToSceneOneRecordsWarning(t *testing.T) {
	action := Action{Kind: KindMotionSetPreset, PresetID: "zoom_in", Contextual: true}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "zoom in on this scene", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Explain.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(outcome.Explain.Warnings), outcome.Explain.Warnings)
	}
}

func TestClassify_AmbiguousWindowIsRejectedIntoSuggestionMode(t *testing.T) {
	sceneIdx := 2
	delta := 200
	absolute := 1000
	action := Action{
		Kind:            KindBalloonAdjustWindow,
		SceneIdx:        &sceneIdx,
		BalloonNo:       1,
		DeltaStartMs:    &delta,
		AbsoluteStartMs: &absolute,
	}
	p := New(&stubBackend{}, rulesReturning([]Action{action}), aiReturning(nil))

	outcome, err := p.Classify(context.Background(), "adjust balloon 1 window", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Mode != ModeSuggestion {
		t.Fatalf("expected suggestion mode, got %v", outcome.Mode)
	}
	if len(outcome.Explain.RejectedActions) != 1 {
		t.Fatalf("expected 1 rejected action, got %d", len(outcome.Explain.RejectedActions))
	}
}

func TestClassify_AIParseErrorPropagates(t *testing.T) {
	erroringAI := func(ctx context.Context, message, playbackContext string) ([]Action, error) {
		return nil, context.DeadlineExceeded
	}
	p := New(&stubBackend{}, noRules, erroringAI)

	_, err := p.Classify(context.Background(), "hello", nil)
	if err == nil {
		t.Fatal("expected error to propagate from AI parse failure")
	}
}
