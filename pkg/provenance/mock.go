package provenance

import (
	"context"
	"sync"

	"github.com/j2o/migrate/pkg/mapping"
)

// MockStore implements Store for testing.
type MockStore struct {
	mu sync.Mutex

	// ByID and ByKey seed lookup results.
	ByID  map[string]int
	ByKey map[string]int

	// Tagged records EnsureTagged calls keyed by target ID.
	Tagged map[int]mapping.ProvenanceTag

	FindErr error
	TagErr  error
	ScanErr error

	FindCalls int
	ScanCalls int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		ByID:   make(map[string]int),
		ByKey:  make(map[string]int),
		Tagged: make(map[int]mapping.ProvenanceTag),
	}
}

func (m *MockStore) FindByProvenance(ctx context.Context, tag mapping.ProvenanceTag) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls++
	if m.FindErr != nil {
		return 0, false, m.FindErr
	}
	if id, ok := m.ByID[tag.ID]; ok {
		return id, true, nil
	}
	if id, ok := m.ByKey[tag.Key]; ok {
		return id, true, nil
	}
	return 0, false, nil
}

func (m *MockStore) EnsureTagged(ctx context.Context, targetID int, tag mapping.ProvenanceTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TagErr != nil {
		return m.TagErr
	}
	m.Tagged[targetID] = tag
	m.ByID[tag.ID] = targetID
	m.ByKey[tag.Key] = targetID
	return nil
}

func (m *MockStore) BuildMappingCache(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	out := make(map[string]int, len(m.ByKey))
	for k, v := range m.ByKey {
		out[k] = v
	}
	return out, nil
}
