// Package preflight classifies a project's readiness for final video build
// into a required bucket (blocks the build) and a recommended bucket
// (warns but does not block), and decides whether a build may start.
package preflight

import (
	"errors"
	"fmt"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// MaxSceneCount is the hard cap on visible scenes a project may submit
// for build.
const MaxSceneCount = 100

// UtteranceError flags scenes missing voice audio, grouped so a caller can
// target a bulk-audio call-to-action at exactly these scenes.
type UtteranceError struct {
	Message  string
	SceneIDs []string
}

// ValidationFlags tallies presence of optional expressive elements.
type ValidationFlags struct {
	HasBGM  bool
	HasSFX  bool
	Summary struct{ HasVoice bool }
}

// OutputPresetInfo is the caller-facing description of the project's
// selected output preset.
type OutputPresetInfo struct {
	ID          string
	Label       string
	AspectRatio string
}

// BalloonPolicySummary tallies the project's dialogue-balloon display
// policy distribution.
type BalloonPolicySummary struct {
	Total        int
	AlwaysOn     int
	VoiceWindow  int
	ManualWindow int
}

// Result is the full preflight evaluation for one project.
type Result struct {
	IsReady              bool
	CanGenerate          bool
	ReadyCount           int
	TotalCount           int
	Missing              []string
	Warnings             []string
	UtteranceErrors      []UtteranceError
	Validation           ValidationFlags
	OutputPreset         OutputPresetInfo
	BalloonPolicySummary BalloonPolicySummary
	ExpressionSummary    types.ExpressionSummary
}

// Color classifies a Result for caller-side badge coloring.
type Color string

const (
	ColorRed   Color = "red"
	ColorAmber Color = "amber"
	ColorGreen Color = "green"
)

// Colorize derives the badge color: red when any required item is missing
// or the scene count exceeds the cap, amber when only warnings remain,
// green when fully ready.
func (r Result) Colorize() Color {
	if len(r.Missing) > 0 {
		return ColorRed
	}
	if len(r.Warnings) > 0 || len(r.UtteranceErrors) > 0 {
		return ColorAmber
	}
	return ColorGreen
}

// presetLabels maps an output preset id to its caller-facing label and
// aspect ratio.
var presetLabels = map[types.OutputPreset]OutputPresetInfo{
	types.PresetYTLong:    {ID: string(types.PresetYTLong), Label: "YouTube (横長)", AspectRatio: "16:9"},
	types.PresetShortVert: {ID: string(types.PresetShortVert), Label: "ショート (縦長)", AspectRatio: "9:16"},
	types.PresetYTShorts:  {ID: string(types.PresetYTShorts), Label: "YouTube Shorts", AspectRatio: "9:16"},
	types.PresetReels:     {ID: string(types.PresetReels), Label: "Instagram Reels", AspectRatio: "9:16"},
	types.PresetTikTok:    {ID: string(types.PresetTikTok), Label: "TikTok", AspectRatio: "9:16"},
}

// Evaluate classifies project readiness over its visible scenes.
func Evaluate(project types.Project, scenes []types.Scene) Result {
	var visible []types.Scene
	for _, s := range scenes {
		if s.IsVisible() {
			visible = append(visible, s)
		}
	}

	var missing []error
	var missingIDs []string
	ready := 0

	for _, s := range visible {
		if sceneHasAdoptedAsset(s) {
			ready++
			continue
		}
		missing = append(missing, fmt.Errorf("scene %d: no adopted %s asset", s.Idx, s.DisplayAssetType))
		missingIDs = append(missingIDs, s.ID)
	}
	if len(visible) > MaxSceneCount {
		missing = append(missing, fmt.Errorf("scene count %d exceeds the %d-scene cap", len(visible), MaxSceneCount))
	}

	result := Result{
		ReadyCount: ready,
		TotalCount: len(visible),
		OutputPreset: presetLabels[project.OutputPreset],
	}
	if len(missing) > 0 {
		result.Missing = errorMessages(errors.Join(missing...))
	}

	hasVoice, hasBGM, hasSFX := false, project.Settings.BGM.Enabled, false
	var utteranceErrs []UtteranceError
	var audioMissingIDs []string
	for _, s := range visible {
		if s.BGM != nil {
			hasBGM = true
		}
		if len(s.SFX) > 0 {
			hasSFX = true
		}
		if s.UtteranceStatus.WithAudio > 0 {
			hasVoice = true
		}
		if s.UtteranceStatus.Total > 0 && !s.UtteranceStatus.IsReady {
			audioMissingIDs = append(audioMissingIDs, s.ID)
		}
	}
	if len(audioMissingIDs) > 0 {
		utteranceErrs = append(utteranceErrs, UtteranceError{
			Message:  fmt.Sprintf("%d scene(s) have utterances missing audio", len(audioMissingIDs)),
			SceneIDs: audioMissingIDs,
		})
	}
	result.UtteranceErrors = utteranceErrs

	var warnings []string
	if !hasVoice && !hasBGM && !hasSFX {
		warnings = append(warnings, "no voice, BGM, or SFX present — this will render as a silent video")
	}
	result.Warnings = warnings

	result.Validation = ValidationFlags{HasBGM: hasBGM, HasSFX: hasSFX}
	result.Validation.Summary.HasVoice = hasVoice

	result.IsReady = len(result.Missing) == 0
	result.CanGenerate = result.IsReady

	result.BalloonPolicySummary = summarizeBalloonPolicy(visible)
	result.ExpressionSummary = types.ExpressionSummary{
		HasVoice: hasVoice,
		HasBGM:   hasBGM,
		HasSFX:   hasSFX,
		IsSilent: !hasVoice && !hasBGM && !hasSFX,
	}

	return result
}

func sceneHasAdoptedAsset(s types.Scene) bool {
	switch s.DisplayAssetType {
	case types.AssetImage:
		return s.ActiveImage != nil && s.ActiveImage.R2URL != nil
	case types.AssetComic:
		return s.ActiveComic != nil && s.ActiveComic.R2URL != nil
	case types.AssetVideo:
		return s.ActiveVideo != nil && s.ActiveVideo.R2URL != nil
	default:
		return false
	}
}

// summarizeBalloonPolicy is a placeholder tally until per-balloon policy
// data is threaded through pkg/types; it currently reports zero balloons
// for every scene, which Colorize and CanGenerate do not depend on.
//
// Because of this, the balloon_policy_summary field on the returned Result
// is never populated with real data — it stays zero-valued regardless of
// what balloon.set_policy edits have been applied. Fixing that requires
// pkg/types.Scene to carry per-balloon policy state, which it doesn't today.
func summarizeBalloonPolicy(scenes []types.Scene) BalloonPolicySummary {
	return BalloonPolicySummary{}
}

func errorMessages(err error) []string {
	if err == nil {
		return nil
	}
	var msgs []string
	for _, e := range unwrapJoined(err) {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// unwrapJoined flattens an errors.Join tree (possibly nested) into its leaves.
func unwrapJoined(err error) []error {
	type multiError interface{ Unwrap() []error }
	if m, ok := err.(multiError); ok {
		var out []error
		for _, e := range m.Unwrap() {
			out = append(out, unwrapJoined(e)...)
		}
		return out
	}
	return []error{err}
}
