package core

import "strings"

// Controlled vocabularies for concept extraction. Labels outside these
// lists are dropped so downstream prompting stays on known terms.

var feelingVocabulary = []string{
	"afraid", "angry", "annoyed", "anxious", "ashamed", "confused",
	"disappointed", "discouraged", "embarrassed", "exhausted",
	"frustrated", "guilty", "helpless", "hopeful", "hurt", "irritated",
	"lonely", "nervous", "overwhelmed", "relieved", "resentful", "sad",
	"scared", "stressed", "tense", "tired", "uncomfortable", "worried",
	"calm", "content", "curious", "excited", "grateful", "happy",
	"inspired", "peaceful", "proud", "surprised",
}

var needVocabulary = []string{
	"acceptance", "acknowledgment", "appreciation", "autonomy",
	"belonging", "clarity", "closeness", "community", "competence",
	"connection", "consideration", "consistency", "cooperation",
	"fairness", "freedom", "growth", "harmony", "honesty", "inclusion",
	"independence", "integrity", "meaning", "mutuality", "order",
	"peace", "predictability", "purpose", "respect", "rest", "safety",
	"security", "space", "stability", "support", "trust",
	"understanding", "warmth",
}

var feelingSet = toSet(feelingVocabulary)
var needSet = toSet(needVocabulary)

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// filterVocabulary keeps labels present in the controlled set,
// lower-cased and deduplicated, preserving input order.
func filterVocabulary(labels []string, set map[string]bool) []string {
	seen := make(map[string]bool, len(labels))
	kept := make([]string, 0, len(labels))
	for _, label := range labels {
		normalized := strings.ToLower(strings.TrimSpace(label))
		if !set[normalized] || seen[normalized] {
			continue
		}
		seen[normalized] = true
		kept = append(kept, normalized)
	}
	return kept
}
