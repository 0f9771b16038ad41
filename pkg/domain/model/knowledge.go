package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// EmbeddingDimension is the dimension of the embedding vector.
// Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// KnowledgeID is a UUID-based identifier for KnowledgeEntry
type KnowledgeID string

// NewKnowledgeID generates a new UUID v4 KnowledgeID
func NewKnowledgeID() KnowledgeID {
	return KnowledgeID(uuid.New().String())
}

// TranslationGroupID links the language variants of one knowledge concept.
type TranslationGroupID string

// NewTranslationGroupID generates a new UUID v4 TranslationGroupID
func NewTranslationGroupID() TranslationGroupID {
	return TranslationGroupID(uuid.New().String())
}

// KnowledgeEntry is a curated, citable domain reference retrievable by
// semantic similarity. Entries are written by curators outside this core;
// this core only reads them. Deactivation replaces deletion so curator
// history is preserved.
type KnowledgeEntry struct {
	ID               KnowledgeID
	TranslationGroup TranslationGroupID
	Language         types.LangCode
	Title            string
	Body             string
	Embedding        []float32
	Category         string
	Subcategory      string
	Source           string
	Tags             []string
	Priority         int // 1 (lowest) to 5 (highest)
	Active           bool
	CreatedBy        string
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ScoredKnowledge is a knowledge entry paired with its similarity to a
// query vector.
type ScoredKnowledge struct {
	Entry      *KnowledgeEntry
	Similarity float64
}
