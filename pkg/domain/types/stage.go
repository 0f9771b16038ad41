package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// StageID represents a named phase of the guided conversation
type StageID string

// Built-in stages. The catalog is open-ended: additional stages may be
// registered from configuration, so StageID validity is decided by the
// catalog, not by this enum.
const (
	StageOrientation        StageID = "orientation"
	StageSelfReflection     StageID = "self-reflection"
	StageOtherPerspective   StageID = "other-perspective"
	StageActionPlanning     StageID = "action-planning"
	StageConflictResolution StageID = "conflict-resolution"
	StageMemoryRecall       StageID = "memory-recall"
	StageClosingFeedback    StageID = "closing-feedback"
)

var stageIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks if the StageID is well-formed
func (s StageID) Validate() error {
	if s == "" {
		return goerr.New("stage ID cannot be empty")
	}
	if !stageIDPattern.MatchString(string(s)) {
		return goerr.New("stage ID must be lowercase alphanumeric with hyphens", goerr.V("id", s))
	}
	return nil
}

// String returns the string representation of StageID
func (s StageID) String() string {
	return string(s)
}
