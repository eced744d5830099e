// Package sceneedit implements a dirty-tracked transaction over a single
// scene's editable sub-resources: image/voice characters, per-character
// trait overrides, per-line utterances, scene BGM, and SFX cues. Each
// sub-resource saves independently; dirty tracking mirrors the structural
// comparison the configuration loader uses to detect a safely-reloadable
// change.
package sceneedit

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// OpenSource identifies where a Transaction was opened from. A transaction
// opened from the builder hides the chat-edit shortcut; one opened from the
// video-build screen does not.
type OpenSource string

const (
	OpenFromBuilder   OpenSource = "builder"
	OpenFromVideoBuild OpenSource = "video_build"
)

// EditContext is the character/trait editable state persisted by a single
// atomic save.
type EditContext struct {
	ImageCharacterKeys []string          `json:"image_character_keys"`
	VoiceCharacterKey  *string           `json:"voice_character_key"`
	SceneTraits        map[string]string `json:"scene_traits"` // character key -> override text
}

// Backend is the set of remote operations a Transaction drives. A concrete
// implementation wraps restclient.Client calls; tests supply a stub.
type Backend interface {
	SaveEditContext(ctx context.Context, sceneID string, ec EditContext) error
	SaveMotion(ctx context.Context, sceneID, presetID string) error
	SaveDuration(ctx context.Context, sceneID string, overrideMs *int) error
	SaveBGM(ctx context.Context, sceneID string, bgm *SceneBGM) error
	SaveSFX(ctx context.Context, sceneID string, cues []SFXCue) error
}

// SceneBGM mirrors pkg/types.SceneBGM; duplicated here so sceneedit's
// sub-transactions depend only on their own save payloads, not on the wider
// type graph.
type SceneBGM struct {
	TrackID        string   `json:"track_id"`
	StartMs        int      `json:"start_ms"`
	EndMs          int      `json:"end_ms"`
	VolumeOverride *float64 `json:"volume_override"`
	LoopOverride   *bool    `json:"loop_override"`
}

// SFXCue mirrors pkg/types.SFXCue.
type SFXCue struct {
	Name          string  `json:"name"`
	StartMs       int     `json:"start_ms"`
	EndMs         *int    `json:"end_ms"`
	Volume        float64 `json:"volume"`
	Loop          bool    `json:"loop"`
	R2URL         string  `json:"r2_url"`
	DisplayNumber int     `json:"display_number"`
}

// Transaction represents a single working edit over one scene. The
// character/trait fields share one dirty-tracked pair (original/current);
// motion, duration, BGM, and SFX are independent sub-transactions because
// each maps to a distinct server resource.
type Transaction struct {
	sceneID    string
	backend    Backend
	openSource OpenSource

	original EditContext
	current  EditContext

	motionOriginal, motionCurrent     string
	durationOriginal, durationCurrent *int
	bgmOriginal, bgmCurrent           *SceneBGM
	sfxOriginal, sfxCurrent           []SFXCue
}

// New opens a Transaction over sceneID, seeded with its current server
// state.
func New(sceneID string, backend Backend, openSource OpenSource, initial EditContext, motion string, duration *int, bgm *SceneBGM, sfx []SFXCue) *Transaction {
	t := &Transaction{
		sceneID:          sceneID,
		backend:          backend,
		openSource:       openSource,
		original:         cloneEditContext(initial),
		current:          cloneEditContext(initial),
		motionOriginal:   motion,
		motionCurrent:    motion,
		durationOriginal: duration,
		durationCurrent:  duration,
		bgmOriginal:      cloneBGM(bgm),
		bgmCurrent:       cloneBGM(bgm),
		sfxOriginal:      cloneSFX(sfx),
		sfxCurrent:       cloneSFX(sfx),
	}
	return t
}

// OpenSource reports where this transaction was opened from.
func (t *Transaction) OpenSource() OpenSource { return t.openSource }

// SetImageCharacters replaces the working image character set (0-3 keys).
func (t *Transaction) SetImageCharacters(keys []string) {
	t.current.ImageCharacterKeys = append([]string(nil), keys...)
}

// SetVoiceCharacter narrows the voice character to one of the assigned
// image characters, or nil for narrator. Callers are expected to have
// already validated membership; the transaction itself does not reject.
func (t *Transaction) SetVoiceCharacter(key *string) {
	t.current.VoiceCharacterKey = key
}

// SetTrait sets the per-character override text (layer C). An empty string
// clears the override back to the project-defined layers.
func (t *Transaction) SetTrait(characterKey, text string) {
	if t.current.SceneTraits == nil {
		t.current.SceneTraits = map[string]string{}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		delete(t.current.SceneTraits, characterKey)
		return
	}
	t.current.SceneTraits[characterKey] = text
}

// SetMotion sets the working motion preset.
func (t *Transaction) SetMotion(presetID string) { t.motionCurrent = presetID }

// SetDuration sets the working duration override in milliseconds.
func (t *Transaction) SetDuration(overrideMs *int) { t.durationCurrent = overrideMs }

// SetBGM sets the working scene BGM assignment.
func (t *Transaction) SetBGM(bgm *SceneBGM) { t.bgmCurrent = cloneBGM(bgm) }

// SetSFX replaces the working SFX cue list.
func (t *Transaction) SetSFX(cues []SFXCue) { t.sfxCurrent = cloneSFX(cues) }

// IsDirty reports whether the character/trait edit context differs from
// its last-saved state: image-character set equality, voice-character
// equality, and per-key trimmed-string trait equality.
func (t *Transaction) IsDirty() bool {
	return !stringSetEqual(t.original.ImageCharacterKeys, t.current.ImageCharacterKeys) ||
		!nullableStringEqual(t.original.VoiceCharacterKey, t.current.VoiceCharacterKey) ||
		!traitsEqual(t.original.SceneTraits, t.current.SceneTraits)
}

// MotionIsDirty reports whether the motion sub-transaction has unsaved changes.
func (t *Transaction) MotionIsDirty() bool { return t.motionOriginal != t.motionCurrent }

// DurationIsDirty reports whether the duration sub-transaction has unsaved changes.
func (t *Transaction) DurationIsDirty() bool {
	return !nullableIntEqual(t.durationOriginal, t.durationCurrent)
}

// BGMIsDirty reports whether the BGM sub-transaction has unsaved changes.
func (t *Transaction) BGMIsDirty() bool { return !bgmEqual(t.bgmOriginal, t.bgmCurrent) }

// SFXIsDirty reports whether the SFX sub-transaction has unsaved changes.
func (t *Transaction) SFXIsDirty() bool { return !sfxEqual(t.sfxOriginal, t.sfxCurrent) }

// Save persists the character/trait edit context in a single POST and, on
// success, commits current as the new original (clearing IsDirty).
func (t *Transaction) Save(ctx context.Context) error {
	if !t.IsDirty() {
		return nil
	}
	if err := t.backend.SaveEditContext(ctx, t.sceneID, t.current); err != nil {
		return fmt.Errorf("sceneedit: save edit context: %w", err)
	}
	t.original = cloneEditContext(t.current)
	return nil
}

// SaveMotion persists the motion preset sub-transaction independently.
func (t *Transaction) SaveMotion(ctx context.Context) error {
	if !t.MotionIsDirty() {
		return nil
	}
	if err := t.backend.SaveMotion(ctx, t.sceneID, t.motionCurrent); err != nil {
		return fmt.Errorf("sceneedit: save motion: %w", err)
	}
	t.motionOriginal = t.motionCurrent
	return nil
}

// SaveDuration persists the duration override sub-transaction independently.
func (t *Transaction) SaveDuration(ctx context.Context) error {
	if !t.DurationIsDirty() {
		return nil
	}
	if err := t.backend.SaveDuration(ctx, t.sceneID, t.durationCurrent); err != nil {
		return fmt.Errorf("sceneedit: save duration: %w", err)
	}
	t.durationOriginal = t.durationCurrent
	return nil
}

// SaveBGM persists the BGM sub-transaction independently.
func (t *Transaction) SaveBGM(ctx context.Context) error {
	if !t.BGMIsDirty() {
		return nil
	}
	if err := t.backend.SaveBGM(ctx, t.sceneID, t.bgmCurrent); err != nil {
		return fmt.Errorf("sceneedit: save bgm: %w", err)
	}
	t.bgmOriginal = cloneBGM(t.bgmCurrent)
	return nil
}

// SaveSFX persists the SFX sub-transaction independently.
func (t *Transaction) SaveSFX(ctx context.Context) error {
	if !t.SFXIsDirty() {
		return nil
	}
	if err := t.backend.SaveSFX(ctx, t.sceneID, t.sfxCurrent); err != nil {
		return fmt.Errorf("sceneedit: save sfx: %w", err)
	}
	t.sfxOriginal = cloneSFX(t.sfxCurrent)
	return nil
}

func cloneEditContext(ec EditContext) EditContext {
	out := EditContext{
		ImageCharacterKeys: append([]string(nil), ec.ImageCharacterKeys...),
	}
	if ec.VoiceCharacterKey != nil {
		v := *ec.VoiceCharacterKey
		out.VoiceCharacterKey = &v
	}
	if ec.SceneTraits != nil {
		out.SceneTraits = make(map[string]string, len(ec.SceneTraits))
		for k, v := range ec.SceneTraits {
			out.SceneTraits[k] = v
		}
	}
	return out
}

func cloneBGM(b *SceneBGM) *SceneBGM {
	if b == nil {
		return nil
	}
	cp := *b
	if b.VolumeOverride != nil {
		v := *b.VolumeOverride
		cp.VolumeOverride = &v
	}
	if b.LoopOverride != nil {
		v := *b.LoopOverride
		cp.LoopOverride = &v
	}
	return &cp
}

func cloneSFX(cues []SFXCue) []SFXCue {
	if cues == nil {
		return nil
	}
	out := make([]SFXCue, len(cues))
	for i, c := range cues {
		out[i] = c
		if c.EndMs != nil {
			v := *c.EndMs
			out[i].EndMs = &v
		}
	}
	return out
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func nullableStringEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func nullableIntEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func traitsEqual(a, b map[string]string) bool {
	na, nb := trimmedNonEmpty(a), trimmedNonEmpty(b)
	if len(na) != len(nb) {
		return false
	}
	for k, v := range na {
		if nb[k] != v {
			return false
		}
	}
	return true
}

func trimmedNonEmpty(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		v = strings.TrimSpace(v)
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func bgmEqual(a, b *SceneBGM) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.TrackID != b.TrackID || a.StartMs != b.StartMs || a.EndMs != b.EndMs {
		return false
	}
	if !floatPtrEqual(a.VolumeOverride, b.VolumeOverride) {
		return false
	}
	if !boolPtrEqual(a.LoopOverride, b.LoopOverride) {
		return false
	}
	return true
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sfxEqual(a, b []SFXCue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].StartMs != b[i].StartMs ||
			a[i].Volume != b[i].Volume || a[i].Loop != b[i].Loop ||
			a[i].R2URL != b[i].R2URL || a[i].DisplayNumber != b[i].DisplayNumber {
			return false
		}
		if !intPtrEqual(a[i].EndMs, b[i].EndMs) {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
