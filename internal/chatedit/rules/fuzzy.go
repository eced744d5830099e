package rules

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a captured
// preset token to be corrected against a known name, mirroring the
// transcript corrector's phonetic-matcher threshold.
const fuzzyThreshold = 0.85

var knownPresets struct {
	mu    sync.RWMutex
	names []string
}

// SetKnownPresets registers the current catalog of motion-preset and BGM/SFX
// library names. Parse fuzzy-corrects captured preset tokens against this
// list before falling back to the literal token, so a near-miss spelling
// ("zom_in") resolves to the real preset name ("zoom_in") without needing
// the AI-parse fallback.
func SetKnownPresets(names []string) {
	knownPresets.mu.Lock()
	defer knownPresets.mu.Unlock()
	knownPresets.names = append([]string(nil), names...)
}

// correctPresetID returns the closest known preset name for token if one
// scores above fuzzyThreshold, otherwise token unchanged.
func correctPresetID(token string) string {
	knownPresets.mu.RLock()
	names := knownPresets.names
	knownPresets.mu.RUnlock()

	best := token
	bestScore := 0.0
	lower := strings.ToLower(token)
	for _, name := range names {
		score := matchr.JaroWinkler(lower, strings.ToLower(name), false)
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	if bestScore >= fuzzyThreshold {
		return best
	}
	return token
}
