// Package builderwizard projects a preflight.Result into the four step
// cards the builder UI renders: material, audio, expression, build.
package builderwizard

import (
	"fmt"

	"github.com/MrWong99/kinoforge/internal/preflight"
)

// StepKey identifies one of the four wizard cards.
type StepKey string

const (
	StepMaterial   StepKey = "material"
	StepAudio      StepKey = "audio"
	StepExpression StepKey = "expression"
	StepBuild      StepKey = "build"
)

// Step is one read-only wizard card.
type Step struct {
	Key   StepKey
	Tag   preflight.Color
	Tip   string
}

// Wizard is the rendered four-card view plus the project's current output
// preset, derived entirely from a preflight.Result.
type Wizard struct {
	Steps        []Step
	OutputPreset preflight.OutputPresetInfo
}

// Project derives a Wizard from result. It never calls the network or
// mutates result; every field is computed directly from what's already
// there, mirroring internal/config's Diff-from-two-structs style.
func Project(result preflight.Result) Wizard {
	return Wizard{
		Steps: []Step{
			materialStep(result),
			audioStep(result),
			expressionStep(result),
			buildStep(result),
		},
		OutputPreset: result.OutputPreset,
	}
}

func materialStep(r preflight.Result) Step {
	if len(r.Missing) > 0 {
		return Step{Key: StepMaterial, Tag: preflight.ColorRed, Tip: fmt.Sprintf("%d scene(s) missing an adopted image, comic, or video", len(r.Missing))}
	}
	if r.TotalCount > preflight.MaxSceneCount {
		return Step{Key: StepMaterial, Tag: preflight.ColorRed, Tip: fmt.Sprintf("scene count %d exceeds the %d-scene cap", r.TotalCount, preflight.MaxSceneCount)}
	}
	return Step{Key: StepMaterial, Tag: preflight.ColorGreen, Tip: "all scenes have an adopted visual"}
}

func audioStep(r preflight.Result) Step {
	if len(r.UtteranceErrors) > 0 {
		return Step{Key: StepAudio, Tag: preflight.ColorAmber, Tip: fmt.Sprintf("%d scene(s) have unresolved audio utterance errors", len(r.UtteranceErrors))}
	}
	if !r.Validation.Summary.HasVoice {
		return Step{Key: StepAudio, Tag: preflight.ColorAmber, Tip: "no scene has narration audio yet"}
	}
	return Step{Key: StepAudio, Tag: preflight.ColorGreen, Tip: "narration audio is ready"}
}

func expressionStep(r preflight.Result) Step {
	if r.ExpressionSummary.IsSilent {
		return Step{Key: StepExpression, Tag: preflight.ColorAmber, Tip: "this video will render silent: no voice, BGM, or SFX"}
	}
	return Step{Key: StepExpression, Tag: preflight.ColorGreen, Tip: "at least one of voice, BGM, or SFX is present"}
}

func buildStep(r preflight.Result) Step {
	switch r.Colorize() {
	case preflight.ColorRed:
		return Step{Key: StepBuild, Tag: preflight.ColorRed, Tip: "resolve the missing materials above before building"}
	case preflight.ColorAmber:
		return Step{Key: StepBuild, Tag: preflight.ColorAmber, Tip: "ready to build, but review the warnings above first"}
	default:
		return Step{Key: StepBuild, Tag: preflight.ColorGreen, Tip: "ready to build"}
	}
}
