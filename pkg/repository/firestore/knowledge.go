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

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// knowledgeDoc is the Firestore document representation of
// model.KnowledgeEntry. Embedding is stored as firestore.Vector32 so that
// FindNearest vector search works.
type knowledgeDoc struct {
	ID               model.KnowledgeID        `firestore:"ID"`
	TranslationGroup model.TranslationGroupID `firestore:"TranslationGroup"`
	Language         string                   `firestore:"Language"`
	Title            string                   `firestore:"Title"`
	Body             string                   `firestore:"Body"`
	Embedding        firestore.Vector32       `firestore:"Embedding,omitempty"`
	Category         string                   `firestore:"Category,omitempty"`
	Subcategory      string                   `firestore:"Subcategory,omitempty"`
	Source           string                   `firestore:"Source,omitempty"`
	Tags             []string                 `firestore:"Tags,omitempty"`
	Priority         int                      `firestore:"Priority"`
	Active           bool                     `firestore:"Active"`
	CreatedBy        string                   `firestore:"CreatedBy,omitempty"`
	UpdatedBy        string                   `firestore:"UpdatedBy,omitempty"`
	CreatedAt        time.Time                `firestore:"CreatedAt"`
	UpdatedAt        time.Time                `firestore:"UpdatedAt"`

	VectorDistance float64 `firestore:"vector_distance,omitempty"`
}

func toKnowledgeDoc(k *model.KnowledgeEntry) *knowledgeDoc {
	doc := &knowledgeDoc{
		ID:               k.ID,
		TranslationGroup: k.TranslationGroup,
		Language:         k.Language.String(),
		Title:            k.Title,
		Body:             k.Body,
		Category:         k.Category,
		Subcategory:      k.Subcategory,
		Source:           k.Source,
		Tags:             k.Tags,
		Priority:         k.Priority,
		Active:           k.Active,
		CreatedBy:        k.CreatedBy,
		UpdatedBy:        k.UpdatedBy,
		CreatedAt:        k.CreatedAt,
		UpdatedAt:        k.UpdatedAt,
	}
	if len(k.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(k.Embedding)
	}
	return doc
}

func fromKnowledgeDoc(d *knowledgeDoc) *model.KnowledgeEntry {
	k := &model.KnowledgeEntry{
		ID:               d.ID,
		TranslationGroup: d.TranslationGroup,
		Language:         types.LangCode(d.Language),
		Title:            d.Title,
		Body:             d.Body,
		Category:         d.Category,
		Subcategory:      d.Subcategory,
		Source:           d.Source,
		Tags:             d.Tags,
		Priority:         d.Priority,
		Active:           d.Active,
		CreatedBy:        d.CreatedBy,
		UpdatedBy:        d.UpdatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if len(d.Embedding) > 0 {
		k.Embedding = []float32(d.Embedding)
	}
	return k
}

type knowledgeRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newKnowledgeRepository(client *firestore.Client) *knowledgeRepository {
	return &knowledgeRepository{client: client}
}

func (r *knowledgeRepository) knowledgesCollection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "knowledges")
}

func (r *knowledgeRepository) Create(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error) {
	if entry.ID == "" {
		entry.ID = model.NewKnowledgeID()
	}
	if entry.TranslationGroup == "" {
		entry.TranslationGroup = model.NewTranslationGroupID()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	docRef := r.knowledgesCollection().Doc(string(entry.ID))
	if _, err := docRef.Set(ctx, toKnowledgeDoc(entry)); err != nil {
		return nil, goerr.Wrap(err, "failed to create knowledge")
	}

	return entry, nil
}

func (r *knowledgeRepository) Get(ctx context.Context, id model.KnowledgeID) (*model.KnowledgeEntry, error) {
	doc, err := r.knowledgesCollection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V("id", id))
	}

	var d knowledgeDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal knowledge", goerr.V("id", id))
	}

	return fromKnowledgeDoc(&d), nil
}

func (r *knowledgeRepository) Update(ctx context.Context, entry *model.KnowledgeEntry) (*model.KnowledgeEntry, error) {
	docRef := r.knowledgesCollection().Doc(string(entry.ID))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", entry.ID))
		}
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V("id", entry.ID))
	}

	entry.UpdatedAt = time.Now().UTC()
	if _, err := docRef.Set(ctx, toKnowledgeDoc(entry)); err != nil {
		return nil, goerr.Wrap(err, "failed to update knowledge", goerr.V("id", entry.ID))
	}

	return entry, nil
}

func (r *knowledgeRepository) Deactivate(ctx context.Context, id model.KnowledgeID) error {
	docRef := r.knowledgesCollection().Doc(string(id))

	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "Active", Value: false},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "knowledge not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to deactivate knowledge", goerr.V("id", id))
	}

	return nil
}

func (r *knowledgeRepository) List(ctx context.Context, limit, offset int) ([]*model.KnowledgeEntry, int, error) {
	allDocs, err := r.knowledgesCollection().Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to count knowledges")
	}
	total := len(allDocs)

	q := r.knowledgesCollection().OrderBy("CreatedAt", firestore.Desc).Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	entries := make([]*model.KnowledgeEntry, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to iterate knowledges")
		}

		var d knowledgeDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, 0, goerr.Wrap(err, "failed to unmarshal knowledge")
		}
		entries = append(entries, fromKnowledgeDoc(&d))
	}

	return entries, total, nil
}

func (r *knowledgeRepository) ListByTranslationGroup(ctx context.Context, group model.TranslationGroupID) ([]*model.KnowledgeEntry, error) {
	iter := r.knowledgesCollection().
		Where("TranslationGroup", "==", string(group)).
		Where("Active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	entries := make([]*model.KnowledgeEntry, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate translation group", goerr.V("group", group))
		}

		var d knowledgeDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal knowledge")
		}
		entries = append(entries, fromKnowledgeDoc(&d))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Language < entries[j].Language
	})

	return entries, nil
}

func (r *knowledgeRepository) FindByEmbedding(ctx context.Context, filter interfaces.KnowledgeFilter, embedding []float32, limit int) ([]*model.ScoredKnowledge, error) {
	q := r.knowledgesCollection().Query.Where("Active", "==", true)
	if filter.Language != "" {
		q = q.Where("Language", "==", filter.Language.String())
	}
	if filter.Category != "" {
		q = q.Where("Category", "==", filter.Category)
	}
	if len(filter.Tags) > 0 {
		q = q.Where("Tags", "array-contains-any", filter.Tags)
	}

	fetch := limit
	if fetch <= 0 {
		fetch = 5
	}

	vq := q.FindNearest("Embedding", firestore.Vector32(embedding), fetch, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: "vector_distance"})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredKnowledge, 0, fetch)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate knowledge vector search results")
		}

		var d knowledgeDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal knowledge from vector search")
		}

		results = append(results, &model.ScoredKnowledge{
			Entry:      fromKnowledgeDoc(&d),
			Similarity: 1.0 - d.VectorDistance,
		})
	}

	return results, nil
}
