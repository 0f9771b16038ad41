package interfaces

import (
	"context"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// SessionRepository defines the interface for ConversationSession
// persistence. One active session exists per owner.
type SessionRepository interface {
	// GetByOwner retrieves the owner's active session
	GetByOwner(ctx context.Context, ownerID string) (*model.Session, error)

	// Create stores a new session for the owner
	Create(ctx context.Context, session *model.Session) (*model.Session, error)

	// ApplyTransition atomically sets the current stage and appends the
	// transition to the history, updating the stage timestamps.
	ApplyTransition(ctx context.Context, ownerID string, tr model.StageTransition) (*model.Session, error)
}
