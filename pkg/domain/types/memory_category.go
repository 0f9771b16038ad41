package types

import "fmt"

// MemoryCategory classifies a memory by how durable and central it is to
// the owner. The category drives both retention priority and expiry.
type MemoryCategory string

const (
	MemoryCategoryCoreIdentity MemoryCategory = "core-identity"
	MemoryCategoryPatterns     MemoryCategory = "patterns"
	MemoryCategoryPreferences  MemoryCategory = "preferences"
	MemoryCategoryContextual   MemoryCategory = "contextual"
	MemoryCategoryEpisodic     MemoryCategory = "episodic"
)

// AllMemoryCategories returns all valid memory categories
func AllMemoryCategories() []MemoryCategory {
	return []MemoryCategory{
		MemoryCategoryCoreIdentity,
		MemoryCategoryPatterns,
		MemoryCategoryPreferences,
		MemoryCategoryContextual,
		MemoryCategoryEpisodic,
	}
}

// IsValid checks if the memory category is valid
func (c MemoryCategory) IsValid() bool {
	switch c {
	case MemoryCategoryCoreIdentity,
		MemoryCategoryPatterns,
		MemoryCategoryPreferences,
		MemoryCategoryContextual,
		MemoryCategoryEpisodic:
		return true
	default:
		return false
	}
}

// Priority returns the fixed retention priority for the category.
// Higher values sort first in listings.
func (c MemoryCategory) Priority() int {
	switch c {
	case MemoryCategoryCoreIdentity:
		return 10
	case MemoryCategoryPatterns:
		return 8
	case MemoryCategoryPreferences:
		return 6
	case MemoryCategoryContextual:
		return 4
	case MemoryCategoryEpisodic:
		return 2
	default:
		return 0
	}
}

// ExpiryDays returns the fixed retention period in days for the category.
// A zero return value means the memory never expires.
func (c MemoryCategory) ExpiryDays() int {
	switch c {
	case MemoryCategoryCoreIdentity:
		return 0
	case MemoryCategoryPatterns:
		return 365
	case MemoryCategoryPreferences:
		return 180
	case MemoryCategoryEpisodic:
		return 90
	case MemoryCategoryContextual:
		return 30
	default:
		return 0
	}
}

// String returns the string representation of the memory category
func (c MemoryCategory) String() string {
	return string(c)
}

// ParseMemoryCategory parses a string into a MemoryCategory
func ParseMemoryCategory(s string) (MemoryCategory, error) {
	category := MemoryCategory(s)
	if !category.IsValid() {
		return "", fmt.Errorf("invalid memory category: %s", s)
	}
	return category, nil
}
