package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// MemoryID is a UUID-based identifier for Memory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory represents a durable, owner-scoped fact derived from
// conversation content. Memories survive across sessions; their
// retention is governed by category-based priority and expiry.
type Memory struct {
	ID            MemoryID
	OwnerID       string
	Category      types.MemoryCategory
	Value         string // The fact text; merged near-duplicates are separator-joined
	Title         string
	RelatedPerson string
	Confidence    types.ConfidenceTier
	Priority      int
	Embedding     []float32 // Vector embedding for similarity search
	AccessCount   int
	LastAccessed  time.Time
	ExpiresAt     *time.Time // nil means the memory never expires
	SourceRef     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Expired reports whether the memory has passed its expiry at the given time.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ScoredMemory is a memory paired with its similarity to a query vector.
type ScoredMemory struct {
	Memory     *Memory
	Similarity float64
}
