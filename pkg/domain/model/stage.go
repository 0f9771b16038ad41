package model

import "github.com/cocoro-lab/cocoro/pkg/domain/types"

// StageDefinition is one entry of the static stage catalog. The prompt
// template is an opaque string with named {placeholder} slots resolved by
// the surrounding application and the turn pipeline.
type StageDefinition struct {
	ID             types.StageID
	PromptTemplate string
	// LikelyNext is advisory only: it is surfaced to the transition
	// classifier as a hint but never enforced.
	LikelyNext []types.StageID
	Entry      string // human-readable entry description
	Exit       string // human-readable exit description
	// SwitchKeywords: while in this stage, transition evaluation is
	// skipped unless the message contains one of these cues. Only the
	// closing-feedback stage uses this in the default catalog.
	SwitchKeywords []string
}
