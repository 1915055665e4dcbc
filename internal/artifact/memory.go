package artifact

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore holds checkpoints in process memory. Test use only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func memKey(courseID uuid.UUID, stage string) string {
	return courseID.String() + "/" + stage
}

func (m *MemoryStore) Put(_ context.Context, courseID uuid.UUID, stage string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.data[memKey(courseID, stage)] = cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, courseID uuid.UUID, stage string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[memKey(courseID, stage)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, nil
}
