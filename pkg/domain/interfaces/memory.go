package interfaces

import (
	"context"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// MemoryRepository defines the interface for Memory data persistence.
// All operations are owner-scoped.
type MemoryRepository interface {
	// Create inserts a new memory entry
	Create(ctx context.Context, memory *model.Memory) (*model.Memory, error)

	// Get retrieves a memory entry by ID
	Get(ctx context.Context, ownerID string, memoryID model.MemoryID) (*model.Memory, error)

	// Update overwrites an existing memory entry (merge, access bump)
	Update(ctx context.Context, memory *model.Memory) (*model.Memory, error)

	// Delete hard-deletes one or more memory entries for the owner
	Delete(ctx context.Context, ownerID string, memoryIDs ...model.MemoryID) error

	// List retrieves all non-expired memory entries for the owner,
	// ordered by priority descending then access count descending,
	// capped at limit (0 means no cap).
	List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error)

	// FindByEmbedding performs vector similarity search using cosine
	// similarity. Rows without an embedding and expired rows are
	// excluded. Results are ordered by similarity descending.
	FindByEmbedding(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*model.ScoredMemory, error)
}
