package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

type knowledgeRepository struct {
	mu      sync.RWMutex
	entries map[model.KnowledgeID]*model.KnowledgeEntry
}

func newKnowledgeRepository() *knowledgeRepository {
	return &knowledgeRepository{
		entries: make(map[model.KnowledgeID]*model.KnowledgeEntry),
	}
}

func copyKnowledge(k *model.KnowledgeEntry) *model.KnowledgeEntry {
	copied := *k
	if k.Embedding != nil {
		copied.Embedding = make([]float32, len(k.Embedding))
		copy(copied.Embedding, k.Embedding)
	}
	if k.Tags != nil {
		copied.Tags = make([]string, len(k.Tags))
		copy(copied.Tags, k.Tags)
	}
	return &copied
}

func (r *knowledgeRepository) Create(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := copyKnowledge(entry)
	if created.ID == "" {
		created.ID = model.NewKnowledgeID()
	}
	if created.TranslationGroup == "" {
		created.TranslationGroup = model.NewTranslationGroupID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	r.entries[created.ID] = created
	return copyKnowledge(created), nil
}

func (r *knowledgeRepository) Get(ctx context.Context, id model.KnowledgeID) (*model.KnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", id))
	}

	return copyKnowledge(entry), nil
}

func (r *knowledgeRepository) Update(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; !exists {
		return nil, goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", entry.ID))
	}

	updated := copyKnowledge(entry)
	updated.UpdatedAt = time.Now().UTC()
	r.entries[entry.ID] = updated

	return copyKnowledge(updated), nil
}

func (r *knowledgeRepository) Deactivate(ctx context.Context, id model.KnowledgeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", id))
	}

	entry.Active = false
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *knowledgeRepository) List(ctx context.Context, limit, offset int) ([]*model.KnowledgeEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.KnowledgeEntry, 0, len(r.entries))
	for _, k := range r.entries {
		all = append(all, copyKnowledge(k))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*model.KnowledgeEntry{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, total, nil
}

func (r *knowledgeRepository) ListByTranslationGroup(ctx context.Context, group model.TranslationGroupID) ([]*model.KnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.KnowledgeEntry, 0)
	for _, k := range r.entries {
		if k.TranslationGroup == group && k.Active {
			result = append(result, copyKnowledge(k))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Language < result[j].Language
	})

	return result, nil
}

func (r *knowledgeRepository) FindByEmbedding(ctx context.Context, filter interfaces.KnowledgeFilter, embedding []float32, limit int) ([]*model.ScoredKnowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*model.ScoredKnowledge
	for _, k := range r.entries {
		if !k.Active || len(k.Embedding) == 0 {
			continue
		}
		if !matchKnowledgeFilter(k, filter) {
			continue
		}
		candidates = append(candidates, &model.ScoredKnowledge{
			Entry:      copyKnowledge(k),
			Similarity: cosineSimilarity(embedding, k.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	if candidates == nil {
		candidates = []*model.ScoredKnowledge{}
	}

	return candidates, nil
}

func matchKnowledgeFilter(k *model.KnowledgeEntry, filter interfaces.KnowledgeFilter) bool {
	if filter.Language != "" && k.Language != filter.Language {
		return false
	}
	if filter.Category != "" && k.Category != filter.Category {
		return false
	}
	if len(filter.Tags) > 0 {
		tagSet := make(map[string]bool, len(k.Tags))
		for _, t := range k.Tags {
			tagSet[t] = true
		}
		found := false
		for _, t := range filter.Tags {
			if tagSet[t] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
