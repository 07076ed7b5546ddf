package restart

import (
	"context"
	"sync"
)

// MemoryStore is an in-process DocumentStore. State does not survive a
// re-exec, so it only serves tests and dry runs.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[int64][]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[int64][]Record)}
}

func (m *MemoryStore) FindOne(_ context.Context, ownerID int64) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs, ok := m.docs[ownerID]
	if !ok {
		return nil, nil
	}
	return &Document{OwnerID: ownerID, Records: append([]Record(nil), recs...)}, nil
}

func (m *MemoryStore) AppendToSet(_ context.Context, ownerID int64, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.docs[ownerID] {
		if existing == rec {
			return nil
		}
	}
	m.docs[ownerID] = append(m.docs[ownerID], rec)
	return nil
}

func (m *MemoryStore) DeleteOne(_ context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, ownerID)
	return nil
}
