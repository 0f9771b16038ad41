package interfaces

// Repository is the facade over all persistence backends. The storage
// engine itself is opaque: backends only need owner-scoped rows plus
// nearest-neighbor vector queries.
type Repository interface {
	Memory() MemoryRepository
	Knowledge() KnowledgeRepository
	Session() SessionRepository

	// Close releases backend resources
	Close() error
}
