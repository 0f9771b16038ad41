package types

import "fmt"

// ConfidenceTier expresses how certain the extraction pass was that a
// memory claim is actually true for the owner.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// IsValid checks if the confidence tier is valid
func (c ConfidenceTier) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// Normalize returns the tier, treating empty as ConfidenceMedium.
func (c ConfidenceTier) Normalize() ConfidenceTier {
	if c == "" {
		return ConfidenceMedium
	}
	return c
}

// String returns the string representation of the confidence tier
func (c ConfidenceTier) String() string {
	return string(c)
}

// ParseConfidenceTier parses a string into a ConfidenceTier
func ParseConfidenceTier(s string) (ConfidenceTier, error) {
	tier := ConfidenceTier(s)
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid confidence tier: %s", s)
	}
	return tier, nil
}
