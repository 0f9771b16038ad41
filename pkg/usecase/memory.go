package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// ListMemories returns the owner's live memories ordered by priority.
func (u *UseCases) ListMemories(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error) {
	if ownerID == "" {
		return nil, goerr.New("ownerID is required")
	}
	return u.memories.List(ctx, ownerID, limit)
}

// ForgetMemories permanently removes the given memories for an owner.
func (u *UseCases) ForgetMemories(ctx context.Context, ownerID string, ids []model.MemoryID) error {
	if ownerID == "" {
		return goerr.New("ownerID is required")
	}
	return u.memories.Forget(ctx, ownerID, ids...)
}
