package memory

import (
	"strings"

	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// categoryKeywords maps memory categories to lexical cues. Classification
// is a pure heuristic, kept as a standalone function so a model-based
// classifier can replace it without touching callers.
var categoryKeywords = map[types.MemoryCategory][]string{
	types.MemoryCategoryCoreIdentity: {
		"i am", "i'm a", "my value", "i believe", "i always", "i never",
		"my identity", "deep down", "at my core", "as a person",
	},
	types.MemoryCategoryPatterns: {
		"i tend to", "i usually", "every time", "whenever", "i keep",
		"i often", "again and again", "my habit", "pattern",
	},
	types.MemoryCategoryPreferences: {
		"i like", "i love", "i prefer", "i enjoy", "i hate", "i dislike",
		"my favorite", "i'd rather", "i would rather",
	},
	types.MemoryCategoryContextual: {
		"this week", "right now", "currently", "at the moment", "today",
		"tomorrow", "deadline", "upcoming", "this month",
	},
}

// classifyOrder fixes the evaluation order so overlapping cues resolve
// deterministically, most durable category first.
var classifyOrder = []types.MemoryCategory{
	types.MemoryCategoryCoreIdentity,
	types.MemoryCategoryPatterns,
	types.MemoryCategoryPreferences,
	types.MemoryCategoryContextual,
}

// Classify assigns a memory category from lexical cues in the fact text.
// Text matching no cue falls back to episodic.
func Classify(text string) types.MemoryCategory {
	lowered := strings.ToLower(text)
	for _, category := range classifyOrder {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lowered, kw) {
				return category
			}
		}
	}
	return types.MemoryCategoryEpisodic
}
