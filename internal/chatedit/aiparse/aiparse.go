// Package aiparse implements the AI-assisted fallback stage of chat-edit
// message parsing, used when internal/chatedit/rules.Parse finds nothing.
// It sends the user message and current playback context to an LLM
// provider and asks for a structured JSON list of actions.
package aiparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llm "github.com/MrWong99/kinoforge/pkg/provider/llm"
	"github.com/MrWong99/kinoforge/pkg/types"

	"github.com/MrWong99/kinoforge/internal/chatedit"
)

const defaultTemperature = 0.1

const systemPromptTemplate = `You are a chat-edit command parser for a video production tool.

Your task: read the user's message and emit a JSON list of edit actions.

Rules:
- Only emit actions for edits the user clearly requested. Do not invent edits.
- Each action must use one of these exact kind strings:
%s
- Scene-scoped actions (sfx.*, balloon.*, telop.set_enabled_scene, motion.set_preset) should include a "scene_idx" (1-based) when the user names a scene explicitly. If the user says "this scene" or gives no scene at all, omit scene_idx and set "contextual": true so the caller resolves it from current playback position.
- Volumes are fractions in [0, 1], not percentages.
- Timing fields (start_ms, end_ms, delta_start_ms, delta_end_ms) are integers in milliseconds.
- balloon policy values are exactly one of: always_on, voice_window, manual_window.
- telop position values are exactly one of: top, center, bottom.
- telop size values are exactly one of: sm, md, lg.

Current playback context: %s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "actions": [
    {
      "kind": "<kind>",
      "scene_idx": <int or omit>,
      "contextual": <bool, omit if scene_idx is set>,
      "cue_no": <int, omit if not applicable>,
      "balloon_no": <int, omit if not applicable>,
      "volume": <float, omit if not applicable>,
      "loop": <bool, omit if not applicable>,
      "start_ms": <int, omit if not applicable>,
      "end_ms": <int, omit if not applicable>,
      "delta_start_ms": <int, omit if not applicable>,
      "delta_end_ms": <int, omit if not applicable>,
      "policy": "<always_on|voice_window|manual_window>, omit if not applicable",
      "enabled": <bool, omit if not applicable>,
      "position_preset": "<top|center|bottom>, omit if not applicable",
      "size_preset": "<sm|md|lg>, omit if not applicable",
      "preset_id": "<string>, omit if not applicable"
    }
  ]
}

If the message is conversational and requests no edit, return {"actions": []}.`

var knownKinds = []chatedit.ActionKind{
	chatedit.KindBGMSetVolume,
	chatedit.KindBGMSetLoop,
	chatedit.KindSFXSetVolume,
	chatedit.KindSFXSetTiming,
	chatedit.KindSFXRemove,
	chatedit.KindBalloonAdjustWindow,
	chatedit.KindBalloonSetPolicy,
	chatedit.KindTelopSetEnabled,
	chatedit.KindTelopSetEnabledScene,
	chatedit.KindTelopSetPosition,
	chatedit.KindTelopSetSize,
	chatedit.KindMotionSetPreset,
	chatedit.KindMotionSetPresetBulk,
}

// rawAction mirrors the JSON shape the model is asked to produce.
type rawAction struct {
	Kind          string   `json:"kind"`
	SceneIdx      *int     `json:"scene_idx"`
	Contextual    bool     `json:"contextual"`
	CueNo         int      `json:"cue_no"`
	BalloonNo     int      `json:"balloon_no"`
	Volume        float64  `json:"volume"`
	Loop          bool     `json:"loop"`
	StartMs       *int     `json:"start_ms"`
	EndMs         *int     `json:"end_ms"`
	DeltaStartMs  *int     `json:"delta_start_ms"`
	DeltaEndMs    *int     `json:"delta_end_ms"`
	Policy        string   `json:"policy"`
	Enabled       bool     `json:"enabled"`
	PositionPreset string  `json:"position_preset"`
	SizePreset    string   `json:"size_preset"`
	PresetID      string   `json:"preset_id"`
}

type rawResponse struct {
	Actions []rawAction `json:"actions"`
}

// Option configures a Parser.
type Option func(*Parser)

// WithTemperature overrides the default sampling temperature.
func WithTemperature(temp float64) Option {
	return func(p *Parser) { p.temperature = temp }
}

// Parser calls an LLM provider to parse a chat-edit message it could not
// match deterministically.
type Parser struct {
	llm         llm.Provider
	temperature float64
}

// New returns a Parser backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Parser {
	p := &Parser{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse asks the LLM to extract actions from message, given a human-readable
// summary of the current playback context (e.g. "scene 3, 00:12").
//
// When the model response cannot be parsed into valid actions, Parse returns
// a nil slice and a nil error: the caller falls through to Mode A
// (conversation) rather than surfacing a parse failure to the user.
func (p *Parser) Parse(ctx context.Context, message, playbackContext string) ([]chatedit.Action, error) {
	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(playbackContext),
		Temperature:  p.temperature,
		Messages: []types.Message{
			{Role: "user", Content: message},
		},
	}

	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("aiparse: complete: %w", err)
	}

	actions, parseErr := parseResponse(resp.Content)
	if parseErr != nil {
		return nil, nil //nolint:nilerr // intentional graceful fallback to conversation mode
	}
	return actions, nil
}

func buildSystemPrompt(playbackContext string) string {
	var sb strings.Builder
	for _, k := range knownKinds {
		sb.WriteString("- ")
		sb.WriteString(string(k))
		sb.WriteByte('\n')
	}
	ctx := playbackContext
	if ctx == "" {
		ctx = "unknown (no scene is currently in view)"
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String(), ctx)
}

func parseResponse(content string) ([]chatedit.Action, error) {
	cleaned := stripMarkdown(content)

	var r rawResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, fmt.Errorf("aiparse: parse response: %w", err)
	}

	actions := make([]chatedit.Action, 0, len(r.Actions))
	for _, ra := range r.Actions {
		a, ok := toAction(ra)
		if !ok {
			continue
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func toAction(ra rawAction) (chatedit.Action, bool) {
	kind := chatedit.ActionKind(ra.Kind)
	if !isKnownKind(kind) {
		return chatedit.Action{}, false
	}
	return chatedit.Action{
		Kind:            kind,
		Volume:          ra.Volume,
		Loop:            ra.Loop,
		SceneIdx:        ra.SceneIdx,
		CueNo:           ra.CueNo,
		BalloonNo:       ra.BalloonNo,
		StartMs:         ra.StartMs,
		EndMs:           ra.EndMs,
		DeltaStartMs:    ra.DeltaStartMs,
		DeltaEndMs:      ra.DeltaEndMs,
		Policy:          chatedit.BalloonPolicy(ra.Policy),
		Enabled:         ra.Enabled,
		Contextual:      ra.Contextual && ra.SceneIdx == nil,
		PositionPreset:  chatedit.TelopPosition(ra.PositionPreset),
		SizePreset:      chatedit.TelopSize(ra.SizePreset),
		PresetID:        ra.PresetID,
	}, true
}

func isKnownKind(k chatedit.ActionKind) bool {
	for _, known := range knownKinds {
		if known == k {
			return true
		}
	}
	return false
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
