package migration

import (
	"context"
	"sync"
)

// MockComponent implements Component for pipeline testing with canned
// batches and programmable failures.
type MockComponent struct {
	mu sync.Mutex

	ComponentName string
	Deps          []string
	Batches       []*Batch

	ExtractErr error
	MapErr     error
	// LoadErrs holds one-shot failures keyed by batch index; each is
	// returned once and then cleared, so retries observe recovery.
	LoadErrs map[int]error

	// MapCalls and LoadCalls record the batch indexes in call order.
	MapCalls  []int
	LoadCalls []int
}

// NewMockComponent creates a mock component with the given batches.
func NewMockComponent(name string, batches ...*Batch) *MockComponent {
	return &MockComponent{
		ComponentName: name,
		Batches:       batches,
		LoadErrs:      make(map[int]error),
	}
}

func (m *MockComponent) Name() string           { return m.ComponentName }
func (m *MockComponent) Dependencies() []string { return m.Deps }

func (m *MockComponent) Extract(ctx context.Context) ([]*Batch, error) {
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	return m.Batches, nil
}

func (m *MockComponent) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	m.mu.Lock()
	m.MapCalls = append(m.MapCalls, batch.Index)
	m.mu.Unlock()
	if m.MapErr != nil {
		return nil, m.MapErr
	}
	return batch, nil
}

func (m *MockComponent) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls = append(m.LoadCalls, batch.Index)
	if err, ok := m.LoadErrs[batch.Index]; ok {
		delete(m.LoadErrs, batch.Index)
		return nil, err
	}
	return &LoadReport{Created: len(batch.Rows)}, nil
}
