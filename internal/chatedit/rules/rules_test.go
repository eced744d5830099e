package rules

import (
	"testing"

	"github.com/MrWong99/kinoforge/internal/chatedit"
)

func TestParse_EmptyMessageReturnsNil(t *testing.T) {
	if got := Parse("   "); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestParse_UnmatchedMessageReturnsNil(t *testing.T) {
	got := Parse("how does the lighting look in this scene?")
	if got != nil {
		t.Errorf("expected nil for unmatched message, got %v", got)
	}
}

func TestParse_BGMVolumePercent(t *testing.T) {
	got := Parse("set the bgm to 40%")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.Kind != chatedit.KindBGMSetVolume {
		t.Errorf("unexpected kind: %v", a.Kind)
	}
	if a.Volume != 0.4 {
		t.Errorf("unexpected volume: %v", a.Volume)
	}
}

func TestParse_BGMLoopOnAndOff(t *testing.T) {
	on := Parse("turn bgm loop on")
	if len(on) != 1 || !on[0].Loop || on[0].Kind != chatedit.KindBGMSetLoop {
		t.Fatalf("unexpected loop-on result: %+v", on)
	}
	off := Parse("bgm loopを無効にして")
	if len(off) != 1 || off[0].Loop || off[0].Kind != chatedit.KindBGMSetLoop {
		t.Fatalf("unexpected loop-off result: %+v", off)
	}
}

func TestParse_SFXVolumeWithSceneAndCue(t *testing.T) {
	got := Parse("scene 3 sfx #2 を 80% にして")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.Kind != chatedit.KindSFXSetVolume {
		t.Fatalf("unexpected kind: %v", a.Kind)
	}
	if a.SceneIdx == nil || *a.SceneIdx != 3 {
		t.Errorf("unexpected scene idx: %v", a.SceneIdx)
	}
	if a.CueNo != 2 {
		t.Errorf("unexpected cue no: %d", a.CueNo)
	}
	if a.Volume != 0.8 {
		t.Errorf("unexpected volume: %v", a.Volume)
	}
}

func TestParse_SFXRemove(t *testing.T) {
	got := Parse("シーン5 sfx No.1 を削除")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.Kind != chatedit.KindSFXRemove {
		t.Fatalf("unexpected kind: %v", a.Kind)
	}
	if a.SceneIdx == nil || *a.SceneIdx != 5 {
		t.Errorf("unexpected scene idx: %v", a.SceneIdx)
	}
	if a.CueNo != 1 {
		t.Errorf("unexpected cue no: %d", a.CueNo)
	}
}

func TestParse_BalloonPolicyVariants(t *testing.T) {
	cases := []struct {
		message string
		want    chatedit.BalloonPolicy
	}{
		{"scene 2 balloon #1 を 出しっぱなし にして", chatedit.PolicyAlwaysOn},
		{"scene 2 balloon #1 always-on", chatedit.PolicyAlwaysOn},
		{"scene 2 balloon #1 を 喋る時だけ にして", chatedit.PolicyVoiceWindow},
		{"scene 2 balloon #1 voice_window", chatedit.PolicyVoiceWindow},
		{"scene 2 balloon #1 を 手動 にして", chatedit.PolicyManualWindow},
		{"scene 2 balloon #1 manual window", chatedit.PolicyManualWindow},
	}
	for _, tc := range cases {
		got := Parse(tc.message)
		if len(got) != 1 {
			t.Fatalf("message %q: expected 1 action, got %d", tc.message, len(got))
		}
		if got[0].Policy != tc.want {
			t.Errorf("message %q: got policy %v, want %v", tc.message, got[0].Policy, tc.want)
		}
		if got[0].SceneIdx == nil || *got[0].SceneIdx != 2 {
			t.Errorf("message %q: unexpected scene idx %v", tc.message, got[0].SceneIdx)
		}
	}
}

func TestParse_BalloonPolicyBabburuAlias(t *testing.T) {
	// バブル is the product's own term for a speech balloon (builder card
	// "バブル/表現"); with no scene number given the caller resolves SceneIdx
	// from playback context, so rules.Parse must leave it nil here.
	got := Parse("バブル1を出しっぱなしに")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d: %+v", len(got), got)
	}
	a := got[0]
	if a.Kind != chatedit.KindBalloonSetPolicy {
		t.Fatalf("unexpected kind: %v", a.Kind)
	}
	if a.BalloonNo != 1 {
		t.Errorf("unexpected balloon no: %d", a.BalloonNo)
	}
	if a.Policy != chatedit.PolicyAlwaysOn {
		t.Errorf("unexpected policy: %v", a.Policy)
	}
	if a.SceneIdx != nil {
		t.Errorf("expected nil scene idx pending playback-context resolution, got %v", *a.SceneIdx)
	}
}

func TestParse_TelopProjectToggle(t *testing.T) {
	on := Parse("telopを有効にして")
	if len(on) != 1 || !on[0].Enabled || on[0].Kind != chatedit.KindTelopSetEnabled {
		t.Fatalf("unexpected telop-on result: %+v", on)
	}
	off := Parse("telop off")
	if len(off) != 1 || off[0].Enabled || off[0].Kind != chatedit.KindTelopSetEnabled {
		t.Fatalf("unexpected telop-off result: %+v", off)
	}
}

func TestParse_TelopSceneToggle(t *testing.T) {
	got := Parse("scene 4のtelopをoff")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.Kind != chatedit.KindTelopSetEnabledScene {
		t.Fatalf("unexpected kind: %v", a.Kind)
	}
	if a.SceneIdx == nil || *a.SceneIdx != 4 {
		t.Errorf("unexpected scene idx: %v", a.SceneIdx)
	}
	if a.Enabled {
		t.Error("expected Enabled to be false")
	}
}

func TestParse_TelopPositionAndSize(t *testing.T) {
	pos := Parse("move the telop to bottom")
	if len(pos) != 1 || pos[0].PositionPreset != chatedit.TelopBottom {
		t.Fatalf("unexpected position result: %+v", pos)
	}
	size := Parse("telopを大きくして")
	if len(size) != 1 || size[0].SizePreset != chatedit.TelopLarge {
		t.Fatalf("unexpected size result: %+v", size)
	}
}

func TestParse_MotionPresetSceneAndBulk(t *testing.T) {
	scene := Parse("scene 6のmotionをzoom_in")
	if len(scene) != 1 {
		t.Fatalf("expected 1 action, got %d", len(scene))
	}
	if scene[0].Kind != chatedit.KindMotionSetPreset || scene[0].PresetID != "zoom_in" {
		t.Fatalf("unexpected scene motion action: %+v", scene[0])
	}
	if scene[0].SceneIdx == nil || *scene[0].SceneIdx != 6 {
		t.Errorf("unexpected scene idx: %v", scene[0].SceneIdx)
	}

	bulk := Parse("all scenes motionをpan_left")
	if len(bulk) != 1 {
		t.Fatalf("expected 1 action, got %d", len(bulk))
	}
	if bulk[0].Kind != chatedit.KindMotionSetPresetBulk || bulk[0].PresetID != "pan_left" {
		t.Fatalf("unexpected bulk motion action: %+v", bulk[0])
	}
}

func TestParse_SFXTimingAbsoluteRangeSeconds(t *testing.T) {
	got := Parse("scene 1 sfx #2 を 1.5秒 から 3秒 に")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.Kind != chatedit.KindSFXSetTiming {
		t.Fatalf("unexpected kind: %v", a.Kind)
	}
	if a.StartMs == nil || *a.StartMs != 1500 {
		t.Errorf("unexpected start ms: %v", a.StartMs)
	}
	if a.EndMs == nil || *a.EndMs != 3000 {
		t.Errorf("unexpected end ms: %v", a.EndMs)
	}
}

func TestParse_SFXTimingAbsoluteRangeMilliseconds(t *testing.T) {
	got := Parse("scene 1 sfx #1 500ms-1200ms")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	a := got[0]
	if a.StartMs == nil || *a.StartMs != 500 {
		t.Errorf("unexpected start ms: %v", a.StartMs)
	}
	if a.EndMs == nil || *a.EndMs != 1200 {
		t.Errorf("unexpected end ms: %v", a.EndMs)
	}
}

func TestParse_BalloonWindowDeltaStartAndEnd(t *testing.T) {
	start := Parse("scene 2 balloon #1 startを+200ms")
	if len(start) != 1 || start[0].Kind != chatedit.KindBalloonAdjustWindow {
		t.Fatalf("unexpected start-delta result: %+v", start)
	}
	if start[0].DeltaStartMs == nil || *start[0].DeltaStartMs != 200 {
		t.Errorf("unexpected delta start ms: %v", start[0].DeltaStartMs)
	}

	end := Parse("scene 2 balloon #1 endを-0.5秒")
	if len(end) != 1 || end[0].Kind != chatedit.KindBalloonAdjustWindow {
		t.Fatalf("unexpected end-delta result: %+v", end)
	}
	if end[0].DeltaEndMs == nil || *end[0].DeltaEndMs != -500 {
		t.Errorf("unexpected delta end ms: %v", end[0].DeltaEndMs)
	}
}

func TestParse_FuzzyCorrectsKnownPresetName(t *testing.T) {
	SetKnownPresets([]string{"zoom_in", "pan_left", "dolly_out"})
	defer SetKnownPresets(nil)

	got := Parse("scene 6のmotionをzom_in")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	if got[0].PresetID != "zoom_in" {
		t.Errorf("expected fuzzy-corrected preset id, got %q", got[0].PresetID)
	}
}

func TestParse_FuzzyLeavesUnknownTokenUnchanged(t *testing.T) {
	SetKnownPresets([]string{"zoom_in", "pan_left"})
	defer SetKnownPresets(nil)

	got := Parse("scene 6のmotionをcompletely_unrelated_token")
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	if got[0].PresetID != "completely_unrelated_token" {
		t.Errorf("expected unchanged preset id, got %q", got[0].PresetID)
	}
}

func TestParse_MultiplePatternsCanAllMatchOneMessage(t *testing.T) {
	got := Parse("bgmを50%にして、telopを有効にして")
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(got), got)
	}
}
