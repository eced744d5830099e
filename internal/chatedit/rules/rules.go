// Package rules implements the deterministic, regex-first stage of chat-edit
// message parsing. It recognizes a fixed set of Japanese/English phrasings
// for volume, timing, balloon-policy, telop, and motion edits before the
// pipeline falls back to an AI parse.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/kinoforge/internal/chatedit"
)

// pattern pairs a compiled regex with the function that turns its matches
// into zero or more Actions.
type pattern struct {
	name  string
	regex *regexp.Regexp
	build func(matches []string) []chatedit.Action
}

// Parse attempts to extract edit Actions from message using deterministic
// pattern matching only. It returns nil when the message is blank or no
// pattern matches, signaling the caller to fall back to an AI parse.
func Parse(message string) []chatedit.Action {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	var actions []chatedit.Action
	for _, p := range allPatterns() {
		matches := p.regex.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}
		actions = append(actions, p.build(matches)...)
	}
	return actions
}

func allPatterns() []pattern {
	return []pattern{
		{
			name:  "bgm-volume-percent",
			regex: regexp.MustCompile(`(?i)bgm.*?(\d{1,3})\s*%`),
			build: func(m []string) []chatedit.Action {
				pct, err := strconv.Atoi(m[1])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{Kind: chatedit.KindBGMSetVolume, Volume: clampFraction(float64(pct) / 100)}}
			},
		},
		{
			name:  "bgm-loop-on",
			regex: regexp.MustCompile(`(?i)bgm.*(loop|ループ).*(on|有効|つけ)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{Kind: chatedit.KindBGMSetLoop, Loop: true}}
			},
		},
		{
			name:  "bgm-loop-off",
			regex: regexp.MustCompile(`(?i)bgm.*(loop|ループ).*(off|無効|消し)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{Kind: chatedit.KindBGMSetLoop, Loop: false}}
			},
		},
		{
			name:  "sfx-volume-percent",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?sfx\s*(?:#|No\.?)?\s*(\d+).*?(\d{1,3})\s*%`),
			build: func(m []string) []chatedit.Action {
				pct, err := strconv.Atoi(m[4])
				if err != nil {
					return nil
				}
				cueNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{
					Kind:     chatedit.KindSFXSetVolume,
					SceneIdx: sceneIdxFrom(m[1], m[2]),
					CueNo:    cueNo,
					Volume:   clampFraction(float64(pct) / 100),
				}}
			},
		},
		{
			name:  "sfx-remove",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?sfx\s*(?:#|No\.?)?\s*(\d+)\s*(?:を)?(?:削除|remove|delete)`),
			build: func(m []string) []chatedit.Action {
				cueNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{
					Kind:     chatedit.KindSFXRemove,
					SceneIdx: sceneIdxFrom(m[1], m[2]),
					CueNo:    cueNo,
				}}
			},
		},
		{
			name:  "balloon-policy-always-on",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?(?:balloon|吹き出し|バブル)\s*(?:#|No\.?)?\s*(\d+).*?(出しっぱなし|always[ _-]?on)`),
			build: func(m []string) []chatedit.Action {
				balloonNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{
					Kind:      chatedit.KindBalloonSetPolicy,
					SceneIdx:  sceneIdxFrom(m[1], m[2]),
					BalloonNo: balloonNo,
					Policy:    chatedit.PolicyAlwaysOn,
				}}
			},
		},
		{
			name:  "balloon-policy-voice-window",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?(?:balloon|吹き出し|バブル)\s*(?:#|No\.?)?\s*(\d+).*?(喋る時だけ|voice[ _-]?window)`),
			build: func(m []string) []chatedit.Action {
				balloonNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{
					Kind:      chatedit.KindBalloonSetPolicy,
					SceneIdx:  sceneIdxFrom(m[1], m[2]),
					BalloonNo: balloonNo,
					Policy:    chatedit.PolicyVoiceWindow,
				}}
			},
		},
		{
			name:  "balloon-policy-manual-window",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?(?:balloon|吹き出し|バブル)\s*(?:#|No\.?)?\s*(\d+).*?(手動|manual[ _-]?window)`),
			build: func(m []string) []chatedit.Action {
				balloonNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				return []chatedit.Action{{
					Kind:      chatedit.KindBalloonSetPolicy,
					SceneIdx:  sceneIdxFrom(m[1], m[2]),
					BalloonNo: balloonNo,
					Policy:    chatedit.PolicyManualWindow,
				}}
			},
		},
		{
			name:  "telop-enable-project",
			regex: regexp.MustCompile(`(?i)(?:^|[、,。]\s*)(?:telop|テロップ)\s*を?\s*(?:on|有効|つけ)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{Kind: chatedit.KindTelopSetEnabled, Enabled: true}}
			},
		},
		{
			name:  "telop-disable-project",
			regex: regexp.MustCompile(`(?i)(?:^|[、,。]\s*)(?:telop|テロップ)\s*を?\s*(?:off|無効|消し)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{Kind: chatedit.KindTelopSetEnabled, Enabled: false}}
			},
		},
		{
			name:  "telop-enable-scene",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))\s*(?:の)?(?:telop|テロップ)を?(on|有効|off|無効)`),
			build: func(m []string) []chatedit.Action {
				enabled := m[3] == "on" || m[3] == "有効"
				return []chatedit.Action{{
					Kind:     chatedit.KindTelopSetEnabledScene,
					SceneIdx: sceneIdxFrom(m[1], m[2]),
					Enabled:  enabled,
				}}
			},
		},
		{
			name:  "telop-position",
			regex: regexp.MustCompile(`(?i)(?:telop|テロップ).*?(top|center|bottom|上|中央|下)`),
			build: func(m []string) []chatedit.Action {
				pos := telopPositionFrom(m[1])
				if pos == "" {
					return nil
				}
				return []chatedit.Action{{Kind: chatedit.KindTelopSetPosition, PositionPreset: pos}}
			},
		},
		{
			name:  "telop-size",
			regex: regexp.MustCompile(`(?i)(?:telop|テロップ).*?(?:(sm|md|lg)\b|(小|中|大)(?:[^央]|$))`),
			build: func(m []string) []chatedit.Action {
				token := m[1]
				if token == "" {
					token = m[2]
				}
				size := telopSizeFrom(token)
				if size == "" {
					return nil
				}
				return []chatedit.Action{{Kind: chatedit.KindTelopSetSize, SizePreset: size}}
			},
		},
		{
			name:  "motion-preset-scene",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))\s*(?:の)?(?:motion|モーション)を?\s*([a-zA-Z_][a-zA-Z0-9_-]*)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{
					Kind:     chatedit.KindMotionSetPreset,
					SceneIdx: sceneIdxFrom(m[1], m[2]),
					PresetID: correctPresetID(m[3]),
				}}
			},
		},
		{
			name:  "motion-preset-bulk",
			regex: regexp.MustCompile(`(?i)^(?:all scenes?|全シーン).*?(?:motion|モーション)を?\s*([a-zA-Z_][a-zA-Z0-9_-]*)`),
			build: func(m []string) []chatedit.Action {
				return []chatedit.Action{{Kind: chatedit.KindMotionSetPresetBulk, PresetID: correctPresetID(m[1])}}
			},
		},
		{
			name:  "sfx-timing-absolute-range",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?sfx\s*(?:#|No\.?)?\s*(\d+).*?(\d+(?:\.\d+)?)\s*(ms|s|秒|ミリ秒)\s*(?:-|から|~|to)\s*(\d+(?:\.\d+)?)\s*(ms|s|秒|ミリ秒)?`),
			build: func(m []string) []chatedit.Action {
				cueNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				startMs, ok := toMillis(m[4], m[5])
				if !ok {
					return nil
				}
				endUnit := m[7]
				if endUnit == "" {
					endUnit = m[5]
				}
				endMs, ok := toMillis(m[6], endUnit)
				if !ok {
					return nil
				}
				return []chatedit.Action{{
					Kind:     chatedit.KindSFXSetTiming,
					SceneIdx: sceneIdxFrom(m[1], m[2]),
					CueNo:    cueNo,
					StartMs:  &startMs,
					EndMs:    &endMs,
				}}
			},
		},
		{
			name:  "balloon-window-delta-start",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?(?:balloon|吹き出し|バブル)\s*(?:#|No\.?)?\s*(\d+).*?(?:start|開始).*?([+-]?\d+(?:\.\d+)?)\s*(ms|s|秒|ミリ秒)`),
			build: func(m []string) []chatedit.Action {
				balloonNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				deltaMs, ok := toMillisSigned(m[4], m[5])
				if !ok {
					return nil
				}
				return []chatedit.Action{{
					Kind:         chatedit.KindBalloonAdjustWindow,
					SceneIdx:     sceneIdxFrom(m[1], m[2]),
					BalloonNo:    balloonNo,
					DeltaStartMs: &deltaMs,
				}}
			},
		},
		{
			name:  "balloon-window-delta-end",
			regex: regexp.MustCompile(`(?i)(?:scene\s*(\d+)|シーン\s*(\d+))?.*?(?:balloon|吹き出し|バブル)\s*(?:#|No\.?)?\s*(\d+).*?(?:end|終了).*?([+-]?\d+(?:\.\d+)?)\s*(ms|s|秒|ミリ秒)`),
			build: func(m []string) []chatedit.Action {
				balloonNo, err := strconv.Atoi(m[3])
				if err != nil {
					return nil
				}
				deltaMs, ok := toMillisSigned(m[4], m[5])
				if !ok {
					return nil
				}
				return []chatedit.Action{{
					Kind:       chatedit.KindBalloonAdjustWindow,
					SceneIdx:   sceneIdxFrom(m[1], m[2]),
					BalloonNo:  balloonNo,
					DeltaEndMs: &deltaMs,
				}}
			},
		},
	}
}

// toMillis parses a non-negative numeric duration in the given unit
// ("ms"/"ミリ秒" or "s"/"秒", default seconds) into whole milliseconds.
func toMillis(numeral, unit string) (int, bool) {
	ms, ok := toMillisSigned(numeral, unit)
	if !ok || ms < 0 {
		return 0, false
	}
	return ms, true
}

func toMillisSigned(numeral, unit string) (int, bool) {
	f, err := strconv.ParseFloat(numeral, 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "ms", "ミリ秒":
		return int(f), true
	default:
		return int(f * 1000), true
	}
}

func sceneIdxFrom(a, b string) *int {
	for _, s := range []string{a, b} {
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}

func telopPositionFrom(s string) chatedit.TelopPosition {
	switch strings.ToLower(s) {
	case "top", "上":
		return chatedit.TelopTop
	case "center", "中央":
		return chatedit.TelopCenter
	case "bottom", "下":
		return chatedit.TelopBottom
	default:
		return ""
	}
}

func telopSizeFrom(s string) chatedit.TelopSize {
	switch strings.ToLower(s) {
	case "sm", "小":
		return chatedit.TelopSmall
	case "md", "中":
		return chatedit.TelopMedium
	case "lg", "大":
		return chatedit.TelopLarge
	default:
		return ""
	}
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
