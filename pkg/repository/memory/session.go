package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session // ownerID -> session
}

func newSessionRepository() *sessionRepository {
	return &sessionRepository{
		sessions: make(map[string]*model.Session),
	}
}

func copySession(s *model.Session) *model.Session {
	copied := *s
	copied.History = make([]model.StageTransition, len(s.History))
	copy(copied.History, s.History)
	return &copied
}

func (r *sessionRepository) GetByOwner(ctx context.Context, ownerID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[ownerID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "session not found", goerr.V("ownerID", ownerID))
	}

	return copySession(sess), nil
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	if session.OwnerID == "" {
		return nil, goerr.New("owner ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.OwnerID]; exists {
		return nil, goerr.New("session already exists", goerr.V("ownerID", session.OwnerID))
	}

	now := time.Now().UTC()
	created := copySession(session)
	if created.ID == "" {
		created.ID = model.NewSessionID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	r.sessions[session.OwnerID] = created
	return copySession(created), nil
}

func (r *sessionRepository) ApplyTransition(ctx context.Context, ownerID string, tr model.StageTransition) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[ownerID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "session not found", goerr.V("ownerID", ownerID))
	}

	now := time.Now().UTC()
	if tr.At.IsZero() {
		tr.At = now
	}

	sess.CurrentStage = tr.To
	sess.History = append(sess.History, tr)
	sess.StageStartedAt = tr.At
	sess.LastSwitchedAt = tr.At
	sess.UpdatedAt = now

	return copySession(sess), nil
}
