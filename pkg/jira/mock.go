package jira

import (
	"bytes"
	"context"
	"io"
)

// MockClient implements Client for testing with canned data.
type MockClient struct {
	Projects    []*Project
	Issues      []*Issue
	Users       map[string][]*User // keyed by project key
	Groups      []*Group
	IssueTypes  []*IssueTypeMeta
	Statuses    []*StatusMeta
	Priorities  []*PriorityMeta
	Worklogs    map[string][]*Worklog    // keyed by issue key
	Watchers    map[string][]string      // keyed by issue key
	RemoteLinks map[string][]*RemoteLink // keyed by issue key
	Attachments map[string][]byte        // keyed by attachment ID
	Avatars     map[string][]byte        // keyed by avatar URL

	AuthenticateError error
	SearchError       error

	// SearchCalls records every JQL string passed to SearchIssuesPage.
	SearchCalls []string
}

// NewMockClient creates a mock client with empty canned data.
func NewMockClient() *MockClient {
	return &MockClient{
		Users:       make(map[string][]*User),
		Worklogs:    make(map[string][]*Worklog),
		Watchers:    make(map[string][]string),
		RemoteLinks: make(map[string][]*RemoteLink),
		Attachments: make(map[string][]byte),
		Avatars:     make(map[string][]byte),
	}
}

func (m *MockClient) Authenticate(ctx context.Context) error {
	return m.AuthenticateError
}

func (m *MockClient) GetProjects(ctx context.Context, keys []string) ([]*Project, error) {
	if len(keys) == 0 {
		return m.Projects, nil
	}
	var out []*Project
	for _, p := range m.Projects {
		for _, k := range keys {
			if p.Key == k {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *MockClient) SearchIssuesPage(ctx context.Context, jql string, startAt, maxResults int) (*IssuePage, error) {
	m.SearchCalls = append(m.SearchCalls, jql)
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	end := startAt + maxResults
	if end > len(m.Issues) {
		end = len(m.Issues)
	}
	page := &IssuePage{StartAt: startAt, Total: len(m.Issues)}
	if startAt < len(m.Issues) {
		page.Issues = m.Issues[startAt:end]
	}
	return page, nil
}

func (m *MockClient) GetAssignableUsers(ctx context.Context, projectKey string) ([]*User, error) {
	return m.Users[projectKey], nil
}

func (m *MockClient) GetGroups(ctx context.Context) ([]*Group, error) {
	return m.Groups, nil
}

func (m *MockClient) GetIssueTypes(ctx context.Context) ([]*IssueTypeMeta, error) {
	return m.IssueTypes, nil
}

func (m *MockClient) GetStatuses(ctx context.Context) ([]*StatusMeta, error) {
	return m.Statuses, nil
}

func (m *MockClient) GetPriorities(ctx context.Context) ([]*PriorityMeta, error) {
	return m.Priorities, nil
}

func (m *MockClient) GetWorklogs(ctx context.Context, issueKey string) ([]*Worklog, error) {
	return m.Worklogs[issueKey], nil
}

func (m *MockClient) GetWatchers(ctx context.Context, issueKey string) ([]string, error) {
	return m.Watchers[issueKey], nil
}

func (m *MockClient) GetRemoteLinks(ctx context.Context, issueKey string) ([]*RemoteLink, error) {
	return m.RemoteLinks[issueKey], nil
}

func (m *MockClient) DownloadAvatar(ctx context.Context, avatarURL string) ([]byte, error) {
	data, ok := m.Avatars[avatarURL]
	if !ok {
		return nil, &ClientError{Type: "not_found", Message: "avatar not found", Context: avatarURL}
	}
	return data, nil
}

func (m *MockClient) DownloadAttachment(ctx context.Context, attachmentID string) (io.ReadCloser, error) {
	data, ok := m.Attachments[attachmentID]
	if !ok {
		return nil, &ClientError{Type: "not_found", Message: "attachment not found", Context: attachmentID}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
