package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/vector"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

const (
	// MergeThreshold is the cosine similarity at or above which a new
	// fact is merged into an existing memory instead of inserted.
	MergeThreshold = 0.85

	// mergeSeparator joins merged fact segments inside one value.
	mergeSeparator = " | "

	// maxValueRunes bounds a merged value. Oldest segments are dropped
	// first so repeated near-duplicate writes cannot grow unbounded.
	maxValueRunes = 2000
)

// Service implements owner-scoped durable memory on top of a repository
// backend and a shared embedder.
type Service struct {
	repo     interfaces.MemoryRepository
	embedder vector.Embedder
}

func New(repo interfaces.MemoryRepository, embedder vector.Embedder) (*Service, error) {
	if repo == nil {
		return nil, goerr.New("memory repository is required")
	}
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	return &Service{repo: repo, embedder: embedder}, nil
}

// CreateInput carries one extracted fact to remember. Category is
// optional; facts without one are classified lexically.
type CreateInput struct {
	Value         string
	Title         string
	RelatedPerson string
	Confidence    types.ConfidenceTier
	SourceRef     string
	Category      types.MemoryCategory
}

// Create stores a fact for the owner. When the nearest existing memory
// is at or above the merge threshold the fact is appended to it instead
// of inserted, so no two memories of one owner stay near-duplicates.
// Embedding failure is fatal to this call only.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*model.Memory, error) {
	if ownerID == "" {
		return nil, goerr.New("owner ID is required")
	}
	if strings.TrimSpace(input.Value) == "" {
		return nil, goerr.New("memory value is required")
	}

	embedding, err := s.embedder.Embed(ctx, input.Value)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory value", goerr.V("ownerID", ownerID))
	}

	nearest, err := s.repo.FindByEmbedding(ctx, ownerID, embedding, 1)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search for duplicate memory", goerr.V("ownerID", ownerID))
	}

	if len(nearest) > 0 && nearest[0].Similarity >= MergeThreshold {
		return s.merge(ctx, nearest[0].Memory, input.Value)
	}

	category := input.Category
	if !category.IsValid() {
		category = Classify(input.Value)
	}

	mem := &model.Memory{
		OwnerID:       ownerID,
		Category:      category,
		Value:         input.Value,
		Title:         input.Title,
		RelatedPerson: input.RelatedPerson,
		Confidence:    input.Confidence.Normalize(),
		Priority:      category.Priority(),
		Embedding:     embedding,
		AccessCount:   0,
		SourceRef:     input.SourceRef,
		ExpiresAt:     expiryFor(category, time.Now().UTC()),
	}

	created, err := s.repo.Create(ctx, mem)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store memory", goerr.V("ownerID", ownerID))
	}
	return created, nil
}

// merge appends the new fact to the existing value, re-embeds the
// concatenation, and bumps the access count. Append-only, no separate
// provenance log.
func (s *Service) merge(ctx context.Context, existing *model.Memory, value string) (*model.Memory, error) {
	merged := capMergedValue(existing.Value + mergeSeparator + value)

	embedding, err := s.embedder.Embed(ctx, merged)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed merged memory value", goerr.V("memoryID", existing.ID))
	}

	existing.Value = merged
	existing.Embedding = embedding
	existing.AccessCount++
	existing.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update merged memory", goerr.V("memoryID", existing.ID))
	}
	return updated, nil
}

// capMergedValue drops the oldest separator-delimited segments until the
// value fits the rune bound. A single oversized segment is truncated.
func capMergedValue(value string) string {
	if len([]rune(value)) <= maxValueRunes {
		return value
	}

	segments := strings.Split(value, mergeSeparator)
	for len(segments) > 1 && len([]rune(strings.Join(segments, mergeSeparator))) > maxValueRunes {
		segments = segments[1:]
	}

	joined := strings.Join(segments, mergeSeparator)
	if runes := []rune(joined); len(runes) > maxValueRunes {
		return string(runes[:maxValueRunes])
	}
	return joined
}

func expiryFor(category types.MemoryCategory, now time.Time) *time.Time {
	days := category.ExpiryDays()
	if days == 0 {
		return nil
	}
	at := now.AddDate(0, 0, days)
	return &at
}

// Search performs owner-scoped semantic retrieval. Every returned row
// gets its access count incremented and last-access stamped as a read
// side effect, used later to weight prompt formatting.
func (s *Service) Search(ctx context.Context, ownerID, query string, limit int) ([]*model.ScoredMemory, error) {
	if ownerID == "" {
		return nil, goerr.New("owner ID is required")
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query", goerr.V("ownerID", ownerID))
	}

	results, err := s.repo.FindByEmbedding(ctx, ownerID, embedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("ownerID", ownerID))
	}

	now := time.Now().UTC()
	for _, r := range results {
		r.Memory.AccessCount++
		r.Memory.LastAccessed = now
		if _, err := s.repo.Update(ctx, r.Memory); err != nil {
			logging.From(ctx).Warn("failed to bump memory access count",
				"memoryID", r.Memory.ID, "error", err)
		}
	}

	return results, nil
}

// List returns the owner's non-expired memories ordered by priority then
// access count, without touching access counters.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error) {
	memories, err := s.repo.List(ctx, ownerID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.V("ownerID", ownerID))
	}
	return memories, nil
}

// Forget hard-deletes the given memories for the owner.
func (s *Service) Forget(ctx context.Context, ownerID string, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.Delete(ctx, ownerID, ids...); err != nil {
		return goerr.Wrap(err, "failed to delete memories", goerr.V("ownerID", ownerID))
	}
	return nil
}

// formatOrder fixes category ordering in the prompt block, most durable
// category first.
var formatOrder = []types.MemoryCategory{
	types.MemoryCategoryCoreIdentity,
	types.MemoryCategoryPatterns,
	types.MemoryCategoryPreferences,
	types.MemoryCategoryContextual,
	types.MemoryCategoryEpisodic,
}

var categoryHeadings = map[types.MemoryCategory]string{
	types.MemoryCategoryCoreIdentity: "Core identity",
	types.MemoryCategoryPatterns:     "Patterns",
	types.MemoryCategoryPreferences:  "Preferences",
	types.MemoryCategoryContextual:   "Current context",
	types.MemoryCategoryEpisodic:     "Episodes",
}

// FormatForPrompt renders memories as a category-grouped bulleted block.
// Rows mentioned more than once carry a repetition marker so the model
// can weight them.
func FormatForPrompt(memories []*model.Memory) string {
	if len(memories) == 0 {
		return ""
	}

	grouped := make(map[types.MemoryCategory][]*model.Memory)
	for _, m := range memories {
		grouped[m.Category] = append(grouped[m.Category], m)
	}

	var sb strings.Builder
	for _, category := range formatOrder {
		rows := grouped[category]
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n", categoryHeadings[category])
		for _, m := range rows {
			sb.WriteString("- ")
			sb.WriteString(m.Value)
			if m.RelatedPerson != "" {
				fmt.Fprintf(&sb, " [about: %s]", m.RelatedPerson)
			}
			if m.AccessCount > 1 {
				fmt.Fprintf(&sb, " (mentioned %d×)", m.AccessCount)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
