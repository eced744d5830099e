package sceneedit

import "strings"

// visualVocabulary is the deterministic wordlist ProposeTraitCandidates
// scans for. It intentionally favors appearance/wardrobe/expression terms
// over generic adjectives, to keep false positives low without an AI call.
var visualVocabulary = []string{
	"ショートヘア", "ロングヘア", "金髪", "黒髪", "赤髪", "青髪",
	"眼鏡", "帽子", "制服", "スーツ", "ドレス", "浴衣", "着物",
	"笑顔", "怒り", "涙", "驚き",
	"short hair", "long hair", "blonde", "redhead", "glasses",
	"hat", "uniform", "suit", "dress", "smiling", "crying", "surprised",
}

// dialogueMarkers are substrings that indicate a candidate span is quoted
// speech rather than a visual description, and should be excluded.
var dialogueMarkers = []string{"「", "」", "『", "』", "\"", "'"}

// ProposeTraitCandidates extracts trait override candidates from dialogue
// and imagePrompt text using the visual vocabulary above, excluding any
// span that looks like quoted dialogue. It is a deterministic heuristic,
// not an AI call. Candidates from imagePrompt come first, then those from
// dialogue, each group in the order of the visual vocabulary, with
// duplicates removed.
func ProposeTraitCandidates(dialogue, imagePrompt string) []string {
	var out []string
	seen := map[string]bool{}

	scan := func(text string, isDialogue bool) {
		lower := strings.ToLower(text)
		for _, term := range visualVocabulary {
			idx := strings.Index(lower, strings.ToLower(term))
			if idx < 0 {
				continue
			}
			if isDialogue && withinDialogueMarkers(text, idx) {
				continue
			}
			if seen[term] {
				continue
			}
			seen[term] = true
			out = append(out, term)
		}
	}

	scan(imagePrompt, false)
	scan(dialogue, true)
	return out
}

// withinDialogueMarkers reports whether the byte offset idx in text falls
// between a pair of dialogue quote markers, meaning the matched term is
// spoken text rather than a visual description.
func withinDialogueMarkers(text string, idx int) bool {
	prefix := text[:idx]
	openCount := 0
	for _, m := range dialogueMarkers {
		openCount += strings.Count(prefix, m)
	}
	return openCount%2 == 1
}
