package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockStore implements Store in memory for testing.
type MockStore struct {
	mu          sync.Mutex
	Checkpoints map[string]*Checkpoint
	AdvanceErr  error
	Now         func() time.Time
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		Checkpoints: make(map[string]*Checkpoint),
		Now:         time.Now,
	}
}

func (m *MockStore) Get(ctx context.Context, component string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp, ok := m.Checkpoints[component]; ok {
		copied := *cp
		return &copied, nil
	}
	return nil, nil
}

func (m *MockStore) Advance(ctx context.Context, component string, batch int, resumeToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdvanceErr != nil {
		return m.AdvanceErr
	}
	if existing, ok := m.Checkpoints[component]; ok && batch <= existing.LastBatch {
		return fmt.Errorf("%w: %s at %d, requested %d", ErrNotMonotonic, component, existing.LastBatch, batch)
	}
	m.Checkpoints[component] = &Checkpoint{
		Component:   component,
		LastBatch:   batch,
		ResumeToken: resumeToken,
		UpdatedAt:   m.Now(),
	}
	return nil
}

func (m *MockStore) Reset(ctx context.Context, component string, force bool) error {
	if !force {
		return ErrResetNotForced
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Checkpoints, component)
	return nil
}

func (m *MockStore) Close() error { return nil }
