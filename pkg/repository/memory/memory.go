package memory

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = goerr.New("not found")

// Memory is an in-process repository backend for development and tests.
type Memory struct {
	memory    *memoryRepository
	knowledge *knowledgeRepository
	session   *sessionRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		memory:    newMemoryRepository(),
		knowledge: newKnowledgeRepository(),
		session:   newSessionRepository(),
	}
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memory
}

func (m *Memory) Knowledge() interfaces.KnowledgeRepository {
	return m.knowledge
}

func (m *Memory) Session() interfaces.SessionRepository {
	return m.session
}

func (m *Memory) Close() error {
	return nil
}
