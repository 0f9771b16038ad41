package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[string]map[model.MemoryID]*model.Memory // ownerID -> id -> row
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[string]map[model.MemoryID]*model.Memory),
	}
}

func copyMemory(m *model.Memory) *model.Memory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	if m.ExpiresAt != nil {
		exp := *m.ExpiresAt
		copied.ExpiresAt = &exp
	}
	return &copied
}

func (r *memoryRepository) Create(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	if mem.OwnerID == "" {
		return nil, goerr.New("owner ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[mem.OwnerID]; !exists {
		r.entries[mem.OwnerID] = make(map[model.MemoryID]*model.Memory)
	}

	now := time.Now().UTC()
	created := copyMemory(mem)
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	r.entries[mem.OwnerID][created.ID] = created
	return copyMemory(created), nil
}

func (r *memoryRepository) Get(ctx context.Context, ownerID string, memoryID model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[ownerID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
	}

	mem, exists := bucket[memoryID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
	}

	return copyMemory(mem), nil
}

func (r *memoryRepository) Update(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[mem.OwnerID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", mem.ID))
	}
	if _, exists := bucket[mem.ID]; !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", mem.ID))
	}

	updated := copyMemory(mem)
	updated.UpdatedAt = time.Now().UTC()
	bucket[mem.ID] = updated

	return copyMemory(updated), nil
}

func (r *memoryRepository) Delete(ctx context.Context, ownerID string, memoryIDs ...model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[ownerID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "no memories for owner", goerr.V("ownerID", ownerID))
	}

	for _, id := range memoryIDs {
		if _, exists := bucket[id]; !exists {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", id))
		}
	}
	for _, id := range memoryIDs {
		delete(bucket, id)
	}

	return nil
}

func (r *memoryRepository) List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[ownerID]
	if !exists {
		return []*model.Memory{}, nil
	}

	now := time.Now().UTC()
	result := make([]*model.Memory, 0, len(bucket))
	for _, m := range bucket {
		if m.Expired(now) {
			continue
		}
		result = append(result, copyMemory(m))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		if result[i].AccessCount != result[j].AccessCount {
			return result[i].AccessCount > result[j].AccessCount
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

func (r *memoryRepository) FindByEmbedding(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*model.ScoredMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[ownerID]
	if !exists {
		return []*model.ScoredMemory{}, nil
	}

	now := time.Now().UTC()
	var candidates []*model.ScoredMemory
	for _, m := range bucket {
		if len(m.Embedding) == 0 || m.Expired(now) {
			continue
		}
		candidates = append(candidates, &model.ScoredMemory{
			Memory:     copyMemory(m),
			Similarity: cosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	if candidates == nil {
		candidates = []*model.ScoredMemory{}
	}

	return candidates, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
