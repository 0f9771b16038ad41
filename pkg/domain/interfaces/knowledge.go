package interfaces

import (
	"context"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// KnowledgeFilter narrows a knowledge vector search. Language is always
// applied; Category and Tags are optional. Only active entries match.
type KnowledgeFilter struct {
	Language types.LangCode
	Category string
	Tags     []string
}

// KnowledgeRepository defines the interface for KnowledgeEntry data
// persistence. Entries are written by curators outside this core, so the
// write surface exists for curation tooling and tests only.
type KnowledgeRepository interface {
	// Create inserts a new knowledge entry
	Create(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error)

	// Get retrieves a knowledge entry by ID (active or not)
	Get(ctx context.Context, id model.KnowledgeID) (*model.KnowledgeEntry, error)

	// Update overwrites an existing knowledge entry
	Update(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error)

	// Deactivate clears the active flag instead of deleting the row
	Deactivate(ctx context.Context, id model.KnowledgeID) error

	// List retrieves entries with pagination, newest first.
	// Returns entries, total count, and error.
	List(ctx context.Context, limit, offset int) ([]*model.KnowledgeEntry, int, error)

	// ListByTranslationGroup retrieves all active entries sharing a
	// translation group, i.e. the language variants of one concept.
	ListByTranslationGroup(ctx context.Context, group model.TranslationGroupID) ([]*model.KnowledgeEntry, error)

	// FindByEmbedding performs filtered vector similarity search over
	// active entries. Rows without an embedding are excluded. Results
	// are ordered by similarity descending.
	FindByEmbedding(ctx context.Context, filter KnowledgeFilter, embedding []float32, limit int) ([]*model.ScoredKnowledge, error)
}
