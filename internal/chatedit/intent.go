// Package chatedit parses natural-language edit requests against an
// already-generated video, classifies them into conversation/suggestion/
// direct-edit modes, and drives the dry-run/apply round trip.
package chatedit

import "errors"

// IntentSchema is the versioned schema tag carried on every Intent, so the
// server can reject intents parsed by an incompatible client build.
const IntentSchema = "rilarc_intent_v1"

// ErrAmbiguousWindow is returned by Action.Validate when a balloon.adjust_window
// action sets both a Delta* and an Absolute* field on the same axis, leaving
// no safe default to prefer.
var ErrAmbiguousWindow = errors.New("chatedit: action sets both delta and absolute window bounds")

// ActionKind is the closed tag discriminating an Action's variant.
type ActionKind string

const (
	KindBGMSetVolume          ActionKind = "bgm.set_volume"
	KindBGMSetLoop            ActionKind = "bgm.set_loop"
	KindSFXSetVolume          ActionKind = "sfx.set_volume"
	KindSFXSetTiming          ActionKind = "sfx.set_timing"
	KindSFXRemove             ActionKind = "sfx.remove"
	KindBalloonAdjustWindow   ActionKind = "balloon.adjust_window"
	KindBalloonSetPolicy      ActionKind = "balloon.set_policy"
	KindTelopSetEnabled       ActionKind = "telop.set_enabled"
	KindTelopSetEnabledScene  ActionKind = "telop.set_enabled_scene"
	KindTelopSetPosition      ActionKind = "telop.set_position"
	KindTelopSetSize          ActionKind = "telop.set_size"
	KindMotionSetPreset       ActionKind = "motion.set_preset"
	KindMotionSetPresetBulk   ActionKind = "motion.set_preset_bulk"
)

// BalloonPolicy is the dialogue-balloon display policy.
type BalloonPolicy string

const (
	PolicyAlwaysOn    BalloonPolicy = "always_on"
	PolicyVoiceWindow BalloonPolicy = "voice_window"
	PolicyManualWindow BalloonPolicy = "manual_window"
)

// TelopPosition and TelopSize mirror the project-level telop presets.
type TelopPosition string

const (
	TelopTop    TelopPosition = "top"
	TelopCenter TelopPosition = "center"
	TelopBottom TelopPosition = "bottom"
)

type TelopSize string

const (
	TelopSmall  TelopSize = "sm"
	TelopMedium TelopSize = "md"
	TelopLarge  TelopSize = "lg"
)

// Action is a single closed-sum-type edit operation. Exactly the fields
// relevant to Kind are populated; every consumer switches on Kind.
type Action struct {
	Kind ActionKind `json:"kind"`

	// bgm.set_volume / bgm.set_loop
	Volume float64 `json:"volume,omitempty"`
	Loop   bool    `json:"loop,omitempty"`

	// sfx.* / balloon.* (scene-scoped)
	SceneIdx  *int `json:"scene_idx,omitempty"`
	CueNo     int  `json:"cue_no,omitempty"`
	BalloonNo int  `json:"balloon_no,omitempty"`
	StartMs   *int `json:"start_ms,omitempty"`
	EndMs     *int `json:"end_ms,omitempty"`

	// balloon.adjust_window
	DeltaStartMs    *int `json:"delta_start_ms,omitempty"`
	DeltaEndMs      *int `json:"delta_end_ms,omitempty"`
	AbsoluteStartMs *int `json:"absolute_start_ms,omitempty"`
	AbsoluteEndMs   *int `json:"absolute_end_ms,omitempty"`

	// balloon.set_policy
	Policy BalloonPolicy `json:"policy,omitempty"`

	// telop.*
	Enabled bool `json:"enabled,omitempty"`

	// Contextual marks an action whose SceneIdx must be resolved from
	// playback position rather than the message text. It is the only
	// mechanism by which playback position enters intent resolution and is
	// cleared by normalizeWithPlaybackContext once SceneIdx is filled, so it
	// never reaches network serialization.
	Contextual     bool          `json:"contextual,omitempty"`
	PositionPreset TelopPosition `json:"position_preset,omitempty"`
	SizePreset     TelopSize     `json:"size_preset,omitempty"`

	// motion.*
	PresetID string `json:"preset_id,omitempty"`
}

// IsExplicit reports whether the action carries everything needed to apply
// without ambiguity: a scene-scoped action either names its scene or, with
// Contextual set, resolves from playback context at normalize time (Step
// B fills SceneIdx before this is consulted again by the mode classifier).
// Project-scoped actions (bgm.*, telop.set_enabled, telop.set_position,
// telop.set_size, motion.set_preset_bulk) are always explicit.
func (a Action) IsExplicit() bool {
	switch a.Kind {
	case KindSFXSetVolume, KindSFXSetTiming, KindSFXRemove,
		KindBalloonAdjustWindow, KindBalloonSetPolicy,
		KindTelopSetEnabledScene, KindMotionSetPreset:
		return a.SceneIdx != nil
	default:
		return true
	}
}

// NeedsSceneContext reports whether this action's SceneIdx is still nil and
// its Contextual flag requests resolution from playback position.
func (a Action) NeedsSceneContext() bool {
	return a.SceneIdx == nil && a.Contextual
}

// Validate checks invariants Parse and the AI fallback cannot themselves
// enforce. It never silently prefers one family of fields over another.
func (a Action) Validate() error {
	if a.Kind != KindBalloonAdjustWindow {
		return nil
	}
	startAmbiguous := a.DeltaStartMs != nil && a.AbsoluteStartMs != nil
	endAmbiguous := a.DeltaEndMs != nil && a.AbsoluteEndMs != nil
	if startAmbiguous || endAmbiguous {
		return ErrAmbiguousWindow
	}
	return nil
}

// ParseMode records which parsing stage produced an Intent.
type ParseMode string

const (
	ParseModeRegex ParseMode = "regex"
	ParseModeAI    ParseMode = "ai"
)

// Intent is the parsed representation of a user chat-edit message.
type Intent struct {
	Schema  string    `json:"schema"`
	Actions []Action  `json:"actions"`
	Mode    ParseMode `json:"mode"`
}
