package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// memoryDoc is the Firestore document representation of model.Memory.
// Embedding is stored as firestore.Vector32 for FindNearest vector search.
type memoryDoc struct {
	ID            model.MemoryID     `firestore:"ID"`
	OwnerID       string             `firestore:"OwnerID"`
	Category      string             `firestore:"Category"`
	Value         string             `firestore:"Value"`
	Title         string             `firestore:"Title,omitempty"`
	RelatedPerson string             `firestore:"RelatedPerson,omitempty"`
	Confidence    string             `firestore:"Confidence"`
	Priority      int                `firestore:"Priority"`
	Embedding     firestore.Vector32 `firestore:"Embedding,omitempty"`
	AccessCount   int                `firestore:"AccessCount"`
	LastAccessed  time.Time          `firestore:"LastAccessed,omitempty"`
	ExpiresAt     *time.Time         `firestore:"ExpiresAt,omitempty"`
	SourceRef     string             `firestore:"SourceRef,omitempty"`
	CreatedAt     time.Time          `firestore:"CreatedAt"`
	UpdatedAt     time.Time          `firestore:"UpdatedAt"`

	// Populated by FindNearest via DistanceResultField, never written.
	VectorDistance float64 `firestore:"vector_distance,omitempty"`
}

func toMemoryDoc(m *model.Memory) *memoryDoc {
	doc := &memoryDoc{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Category:      m.Category.String(),
		Value:         m.Value,
		Title:         m.Title,
		RelatedPerson: m.RelatedPerson,
		Confidence:    m.Confidence.String(),
		Priority:      m.Priority,
		AccessCount:   m.AccessCount,
		LastAccessed:  m.LastAccessed,
		ExpiresAt:     m.ExpiresAt,
		SourceRef:     m.SourceRef,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromMemoryDoc(d *memoryDoc) *model.Memory {
	m := &model.Memory{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Category:      types.MemoryCategory(d.Category),
		Value:         d.Value,
		Title:         d.Title,
		RelatedPerson: d.RelatedPerson,
		Confidence:    types.ConfidenceTier(d.Confidence),
		Priority:      d.Priority,
		AccessCount:   d.AccessCount,
		LastAccessed:  d.LastAccessed,
		ExpiresAt:     d.ExpiresAt,
		SourceRef:     d.SourceRef,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m
}

type memoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMemoryRepository(client *firestore.Client) *memoryRepository {
	return &memoryRepository{client: client}
}

// memoriesCollection returns the subcollection path:
// owners/{ownerID}/memories
func (r *memoryRepository) memoriesCollection(ownerID string) *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "owners").Doc(ownerID).Collection("memories")
}

func (r *memoryRepository) Create(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	if mem.OwnerID == "" {
		return nil, goerr.New("owner ID is required")
	}
	if mem.ID == "" {
		mem.ID = model.NewMemoryID()
	}
	now := time.Now().UTC()
	mem.CreatedAt = now
	mem.UpdatedAt = now

	docRef := r.memoriesCollection(mem.OwnerID).Doc(string(mem.ID))
	if _, err := docRef.Set(ctx, toMemoryDoc(mem)); err != nil {
		return nil, goerr.Wrap(err, "failed to create memory")
	}

	return mem, nil
}

func (r *memoryRepository) Get(ctx context.Context, ownerID string, memoryID model.MemoryID) (*model.Memory, error) {
	doc, err := r.memoriesCollection(ownerID).Doc(string(memoryID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memoryID", memoryID))
	}

	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory", goerr.V("memoryID", memoryID))
	}

	return fromMemoryDoc(&d), nil
}

func (r *memoryRepository) Update(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	docRef := r.memoriesCollection(mem.OwnerID).Doc(string(mem.ID))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", mem.ID))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memoryID", mem.ID))
	}

	mem.UpdatedAt = time.Now().UTC()
	if _, err := docRef.Set(ctx, toMemoryDoc(mem)); err != nil {
		return nil, goerr.Wrap(err, "failed to update memory", goerr.V("memoryID", mem.ID))
	}

	return mem, nil
}

func (r *memoryRepository) Delete(ctx context.Context, ownerID string, memoryIDs ...model.MemoryID) error {
	col := r.memoriesCollection(ownerID)

	for _, id := range memoryIDs {
		if _, err := col.Doc(string(id)).Get(ctx); err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", id))
			}
			return goerr.Wrap(err, "failed to get memory", goerr.V("memoryID", id))
		}
	}

	batch := r.client.BulkWriter(ctx)
	for _, id := range memoryIDs {
		if _, err := batch.Delete(col.Doc(string(id))); err != nil {
			return goerr.Wrap(err, "failed to enqueue memory delete", goerr.V("memoryID", id))
		}
	}
	batch.End()

	return nil
}

func (r *memoryRepository) List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error) {
	iter := r.memoriesCollection(ownerID).
		OrderBy("Priority", firestore.Desc).
		OrderBy("AccessCount", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	now := time.Now().UTC()
	memories := make([]*model.Memory, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories")
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory")
		}

		m := fromMemoryDoc(&d)
		if m.Expired(now) {
			continue
		}
		memories = append(memories, m)
		if limit > 0 && len(memories) >= limit {
			break
		}
	}

	return memories, nil
}

func (r *memoryRepository) FindByEmbedding(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*model.ScoredMemory, error) {
	// Over-fetch so that client-side expiry filtering still fills the
	// requested limit in the common case.
	fetch := limit * 2
	if fetch <= 0 {
		fetch = 10
	}

	vq := r.memoriesCollection(ownerID).
		FindNearest("Embedding", firestore.Vector32(embedding), fetch, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: "vector_distance"})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	now := time.Now().UTC()
	results := make([]*model.ScoredMemory, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory vector search results")
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory from vector search")
		}

		m := fromMemoryDoc(&d)
		if m.Expired(now) {
			continue
		}

		// Cosine distance to similarity
		results = append(results, &model.ScoredMemory{
			Memory:     m,
			Similarity: 1.0 - d.VectorDistance,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	return results, nil
}
