package openproject

import (
	"context"
	"sync"
)

// MockClient implements Client for testing.
type MockClient struct {
	mu sync.Mutex

	Principals map[string]*Principal // keyed by login
	Version    string
	HealthErr  error
	LookupErr  error
	UploadErr  error

	HealthCalls   int
	AvatarUploads map[int][]byte // keyed by user ID
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		Principals:    make(map[string]*Principal),
		Version:       "16.0.0",
		AvatarUploads: make(map[int][]byte),
	}
}

func (m *MockClient) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HealthCalls++
	return m.HealthErr
}

func (m *MockClient) CoreVersion(ctx context.Context) (string, error) {
	if m.HealthErr != nil {
		return "", m.HealthErr
	}
	return m.Version, nil
}

func (m *MockClient) FindPrincipalByLogin(ctx context.Context, login string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	return m.Principals[login], nil
}

func (m *MockClient) UploadUserAvatar(ctx context.Context, userID int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return m.UploadErr
	}
	m.AvatarUploads[userID] = data
	return nil
}
