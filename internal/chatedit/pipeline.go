package chatedit

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// PlaybackContext mirrors the subset of the playback-tracker's Context that
// the pipeline needs to resolve contextual/nil-scene actions. Kept local
// (rather than importing internal/playback) so chatedit has no dependency
// on the tracker's position-source plumbing.
type PlaybackContext struct {
	SceneIdx int
	SceneID  string
}

// Change describes one resolved edit within a dry-run summary.
type Change struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Detail string `json:"detail"`
}

// DryRunResult is the decoded response of POST /chat-edits/dry-run.
type DryRunResult struct {
	OK                        bool                  `json:"ok"`
	PatchRequestID            string                `json:"patch_request_id"`
	ResolvedOps               []Action              `json:"resolved_ops"`
	Summary                   struct {
		Changes []Change `json:"changes"`
	} `json:"summary"`
	ComicRegenerationRequired []string              `json:"comic_regeneration_required"`
	RequiresConfirmation      bool                  `json:"requires_confirmation"`
	TelopSettingsOverride     *types.TelopSettings  `json:"telop_settings_override"`
	Errors                    []string              `json:"errors"`
	Warnings                  []string              `json:"warnings"`
}

// ApplyResult is the decoded response of POST /chat-edits/apply.
type ApplyResult struct {
	VideoBuildID    string `json:"video_build_id"`
	AutoRebake      bool   `json:"auto_rebake"`
	PendingScrollTo string `json:"pending_scroll_to"`
}

// Backend is the set of remote operations the pipeline drives.
type Backend interface {
	DryRun(ctx context.Context, projectID, userMessage string, intent Intent, videoBuildID *string) (DryRunResult, error)
	Apply(ctx context.Context, projectID, patchRequestID string) (ApplyResult, error)
}

// ModeDecision is the outcome of Step C's mode classification.
type ModeDecision string

const (
	ModeConversation ModeDecision = "conversation"
	ModeSuggestion   ModeDecision = "suggestion"
	ModeDirectEdit   ModeDecision = "direct_edit"
)

// Proposal is returned in Mode B (Suggestion): a human-readable summary the
// caller must confirm before anything is sent to the server.
type Proposal struct {
	Summary string
}

// Explain is the structured record of one parse-through-classify attempt,
// retained for debugging ambiguous phrasing.
type Explain struct {
	Mode            ModeDecision
	ModeReason      string
	UserMessage     string
	Intent          Intent
	RejectedActions []Action
	Context         *PlaybackContext
	Warnings        []string
}

// Outcome is the result of running a message through the pipeline up to and
// including mode classification. Proposal is filled only in Mode B
// (Suggestion); Intent is filled in Suggestion and Direct-Edit modes.
type Outcome struct {
	Mode     ModeDecision
	Proposal Proposal
	Intent   Intent
	Explain  Explain
}

// RuleParser matches internal/chatedit/rules.Parse's signature.
type RuleParser func(message string) []Action

// AIParser matches internal/chatedit/aiparse.Parser.Parse's signature.
type AIParser func(ctx context.Context, message, playbackContext string) ([]Action, error)

// Pipeline drives parsing, mode classification, dry-run, and apply for
// chat-edit messages. It holds no in-flight guard of its own: overlapping
// DryRun or Apply calls each reach the backend.
type Pipeline struct {
	backend    Backend
	parseRules RuleParser
	parseAI    AIParser

	mu       sync.Mutex
	explains map[string]Explain // keyed by patch request id
}

// New returns a Pipeline. ruleParser and aiParser are injected (rather than
// imported directly) so tests can substitute deterministic stand-ins.
func New(backend Backend, ruleParser RuleParser, aiParser AIParser) *Pipeline {
	return &Pipeline{
		backend:    backend,
		parseRules: ruleParser,
		parseAI:    aiParser,
		explains:   map[string]Explain{},
	}
}

// Classify runs Steps A through C: parse the message, normalize with
// playback context, and classify into Conversation/Suggestion/Direct-Edit.
func (p *Pipeline) Classify(ctx context.Context, userMessage string, playback *PlaybackContext) (Outcome, error) {
	actions := p.parseRules(userMessage)
	mode := ParseModeRegex
	if len(actions) == 0 {
		aiActions, err := p.parseAI(ctx, userMessage, describePlayback(playback))
		if err != nil {
			return Outcome{}, fmt.Errorf("chatedit: ai parse: %w", err)
		}
		actions = aiActions
		mode = ParseModeAI
	}

	intent := Intent{Schema: IntentSchema, Actions: actions, Mode: mode}

	if len(intent.Actions) == 0 {
		return Outcome{
			Mode: ModeConversation,
			Explain: Explain{
				Mode:        ModeConversation,
				ModeReason:  "no actions were parsed from the message",
				UserMessage: userMessage,
				Intent:      intent,
				Context:     playback,
			},
		}, nil
	}

	warnings := normalizeWithPlaybackContext(intent.Actions, playback)
	rejected := rejectedActions(intent.Actions)

	if len(rejected) > 0 || anyAmbiguous(intent.Actions) {
		reason := "one or more actions are ambiguous after normalization"
		if len(rejected) > 0 {
			reason = "one or more actions failed validation"
		}
		return Outcome{
			Mode:     ModeSuggestion,
			Proposal: Proposal{Summary: summarizeProposal(intent.Actions)},
			Intent:   intent,
			Explain: Explain{
				Mode:            ModeSuggestion,
				ModeReason:      reason,
				UserMessage:     userMessage,
				Intent:          intent,
				Context:         playback,
				RejectedActions: rejected,
				Warnings:        warnings,
			},
		}, nil
	}

	return Outcome{
		Mode:   ModeDirectEdit,
		Intent: intent,
		Explain: Explain{
			Mode:        ModeDirectEdit,
			ModeReason:  "every action is explicit",
			UserMessage: userMessage,
			Intent:      intent,
			Context:     playback,
			Warnings:    warnings,
		},
	}, nil
}

// DryRun runs Step D: submits the intent for server-side validation without
// mutating anything. The resulting explain record is retained under the
// returned PatchRequestID.
func (p *Pipeline) DryRun(ctx context.Context, projectID string, outcome Outcome, videoBuildID *string) (DryRunResult, error) {
	result, err := p.backend.DryRun(ctx, projectID, outcome.Explain.UserMessage, outcome.Intent, videoBuildID)
	if err != nil {
		return DryRunResult{}, fmt.Errorf("chatedit: dry run: %w", err)
	}

	p.mu.Lock()
	p.explains[result.PatchRequestID] = outcome.Explain
	p.mu.Unlock()

	return result, nil
}

// Apply runs Step E: commits a previously dry-run patch. Callers check
// AutoRebake on the result and invalidate internal/rebakecache accordingly.
func (p *Pipeline) Apply(ctx context.Context, projectID, patchRequestID string) (ApplyResult, error) {
	result, err := p.backend.Apply(ctx, projectID, patchRequestID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("chatedit: apply: %w", err)
	}
	return result, nil
}

// Explain returns the retained explain record for a patch request id, if one
// was recorded by a prior DryRun call.
func (p *Pipeline) Explain(patchRequestID string) (Explain, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.explains[patchRequestID]
	return e, ok
}

// normalizeWithPlaybackContext fills contextual or nil-scene actions from
// playback, falling back to scene 1 when no playback context is available
// and recording a warning for each fallback (never a hard failure). Decided
// as an Open Question: silently guessing scene 1 would hide a genuine
// mistake, but blocking the whole message on a missing playback feed is
// worse — the warning lets the caller surface the guess for confirmation
// without forcing Mode B for every contextual action.
func normalizeWithPlaybackContext(actions []Action, playback *PlaybackContext) []string {
	var warnings []string
	for i := range actions {
		a := &actions[i]
		if a.SceneIdx != nil {
			continue
		}
		if !a.Contextual && !isSceneScoped(a.Kind) {
			continue
		}
		if playback != nil {
			idx := playback.SceneIdx
			a.SceneIdx = &idx
			a.Contextual = false
			continue
		}
		fallback := 1
		a.SceneIdx = &fallback
		a.Contextual = false
		warnings = append(warnings, fmt.Sprintf(
			"no playback context available; assumed scene 1 for %s", a.Kind))
	}
	return warnings
}

// rejectedActions returns the actions that fail Validate, e.g. a
// balloon.adjust_window setting both a Delta* and Absolute* bound on the
// same axis.
func rejectedActions(actions []Action) []Action {
	var rejected []Action
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			rejected = append(rejected, a)
		}
	}
	return rejected
}

func isSceneScoped(k ActionKind) bool {
	switch k {
	case KindSFXSetVolume, KindSFXSetTiming, KindSFXRemove,
		KindBalloonAdjustWindow, KindBalloonSetPolicy,
		KindTelopSetEnabledScene, KindMotionSetPreset:
		return true
	default:
		return false
	}
}

// anyAmbiguous reports whether any action remains unexplicit after
// normalization, or carries an out-of-range required parameter.
func anyAmbiguous(actions []Action) bool {
	for _, a := range actions {
		if !a.IsExplicit() {
			return true
		}
		if (a.Kind == KindBGMSetVolume || a.Kind == KindSFXSetVolume) && (a.Volume < 0 || a.Volume > 1) {
			return true
		}
	}
	return false
}

func summarizeProposal(actions []Action) string {
	if len(actions) == 1 {
		return fmt.Sprintf("1 edit needs confirmation: %s", actions[0].Kind)
	}
	return fmt.Sprintf("%d edits need confirmation", len(actions))
}

func describePlayback(playback *PlaybackContext) string {
	if playback == nil {
		return ""
	}
	return fmt.Sprintf("scene %d (%s)", playback.SceneIdx, playback.SceneID)
}
