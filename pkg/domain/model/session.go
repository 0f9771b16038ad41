package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// SessionID is a UUID v7 identifier for ConversationSession
type SessionID string

// NewSessionID generates a new UUID v7 SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// StageTransition records one applied stage change. At most one
// transition is applied per turn, atomically with the history append.
type StageTransition struct {
	From       types.StageID
	To         types.StageID
	Confidence int
	Rationale  string
	At         time.Time
}

// Session is the per-owner conversation session. There is one active
// session per owner; it is mutated only by stage transitions.
type Session struct {
	ID             SessionID
	OwnerID        string
	CurrentStage   types.StageID
	History        []StageTransition
	StageStartedAt time.Time
	LastSwitchedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSession creates a session in the given initial stage.
func NewSession(ownerID string, initial types.StageID) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             NewSessionID(),
		OwnerID:        ownerID,
		CurrentStage:   initial,
		StageStartedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Turn is one prior exchange element passed in as recent history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
